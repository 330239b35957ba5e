package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingDefaultFileUsesDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	chdir(t, t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Default()
	if *cfg != *want {
		t.Fatalf("Load() = %+v, want defaults %+v", cfg, want)
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "zoomify.yaml")
	data := []byte("log_level: debug\nviewer:\n  zoom_step: 0.5\n  show_tips: false\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ZOOMIFY_VIEWER_SPOTLIGHT_RADIUS", "42")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.Viewer.ZoomStep != 0.5 {
		t.Errorf("ZoomStep = %g, want 0.5", cfg.Viewer.ZoomStep)
	}
	if cfg.Viewer.ShowTips {
		t.Error("ShowTips should be false from file")
	}
	if cfg.Viewer.SpotlightRadius != 42 {
		t.Errorf("SpotlightRadius = %g, want 42 from env", cfg.Viewer.SpotlightRadius)
	}
	if cfg.Viewer.ZoomMax != 100 {
		t.Errorf("ZoomMax = %g, want default 100", cfg.Viewer.ZoomMax)
	}
}

func TestLoadSearchesXDGConfigHome(t *testing.T) {
	xdg := t.TempDir()
	if err := os.MkdirAll(filepath.Join(xdg, "zoomify"), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(xdg, "zoomify", "zoomify.yaml"), []byte("log_format: json\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("XDG_CONFIG_HOME", xdg)
	chdir(t, t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogFormat != "json" {
		t.Fatalf("LogFormat = %q, want json", cfg.LogFormat)
	}
}

// chdir changes the working directory for the duration of the test,
// equivalent to testing.T.Chdir (Go 1.24+).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}
