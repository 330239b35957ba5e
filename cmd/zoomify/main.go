package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/zoomify/zoomify/internal/capture"
	"github.com/zoomify/zoomify/internal/config"
	"github.com/zoomify/zoomify/internal/hotkey"
	"github.com/zoomify/zoomify/internal/logging"
	"github.com/zoomify/zoomify/internal/viewer"
)

var (
	version   = "0.1.0"
	cfgFile   string
	logLevel  string
	logFormat string
	hotkeyArg string
)

var log = logging.L("main")

var rootCmd = &cobra.Command{
	Use:   "zoomify",
	Short: "Screen magnifier",
	Long: `zoomify captures every monitor once and shows the captures in a
full-screen viewer you can pan, zoom and spotlight.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runViewer(cmd.Context())
	},
}

var captureCmd = &cobra.Command{
	Use:          "capture",
	Short:        "Capture every monitor and print a summary",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCapture(cmd.Context(), cmd.OutOrStdout())
	},
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Stay resident and open the magnifier on a global hotkey",
	Long: `daemon grabs a key chord (default super+shift+z) on the X server and
starts a fresh magnifier each time it is pressed. Presses made while the
magnifier is open are ignored.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon(cmd.Context())
	},
}

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "Show which capture backend this session would use",
	RunE: func(cmd *cobra.Command, args []string) error {
		return printYAML(cmd.OutOrStdout(), capture.DetectEnvironment(os.Getenv))
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return printYAML(cmd.OutOrStdout(), cfg)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "zoomify v%s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/zoomify/zoomify.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text or json")
	daemonCmd.Flags().StringVar(&hotkeyArg, "hotkey", "", "key chord, e.g. ctrl+alt+z (overrides hotkey in the config)")

	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(captureCmd)
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(envCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the config file, applies flag overrides and validates.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}
	if result := cfg.ValidateTiered(); result.HasFatals() {
		return nil, fmt.Errorf("invalid config: %w", result.Fatals[0])
	}
	return cfg, nil
}

// setup loads config and installs the logger. The returned closer releases
// the log file, if any.
func setup() (*config.Config, io.Closer, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	var out io.Writer = os.Stderr
	var closer io.Closer = io.NopCloser(nil)
	if cfg.LogFile != "" {
		rw, err := logging.NewRotatingWriter(cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups)
		if err != nil {
			return nil, nil, err
		}
		out = logging.TeeWriter(os.Stderr, rw)
		closer = rw
	}
	logging.Init(cfg.LogFormat, cfg.LogLevel, out)
	return cfg, closer, nil
}

// captureAll is swapped out in tests.
var captureAll = func(ctx context.Context) ([]capture.Result, error) {
	return capture.New(capture.WithLogger(logging.FromContext(ctx))).Capture(ctx)
}

func runViewer(ctx context.Context) error {
	cfg, closer, err := setup()
	if err != nil {
		return err
	}
	defer closer.Close()
	ctx = logging.NewContext(ctx, logging.L("capture"))

	results, err := captureAll(ctx)
	if err != nil {
		return err
	}
	log.Info("starting viewer", "monitors", len(results), "version", version)
	return viewer.Run(results, cfg.Viewer)
}

func runCapture(ctx context.Context, w io.Writer) error {
	_, closer, err := setup()
	if err != nil {
		return err
	}
	defer closer.Close()
	ctx = logging.NewContext(ctx, logging.L("capture"))

	results, err := captureAll(ctx)
	if err != nil {
		return err
	}
	for _, r := range results {
		primary := ""
		if r.Primary {
			primary = " primary"
		}
		fmt.Fprintf(w, "#%d %s %dx%d%+d%+d %d bytes%s\n",
			r.Index, r.Backend, r.Width, r.Height, r.X, r.Y, len(r.Image), primary)
	}
	return nil
}

// launchMagnifier is swapped out in tests.
var launchMagnifier = func(ctx context.Context) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return fmt.Errorf("failed to resolve symlinks: %w", err)
	}

	var args []string
	if cfgFile != "" {
		args = append(args, "--config", cfgFile)
	}
	if logLevel != "" {
		args = append(args, "--log-level", logLevel)
	}
	if logFormat != "" {
		args = append(args, "--log-format", logFormat)
	}
	cmd := exec.CommandContext(ctx, exe, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// listenHotkey is swapped out in tests.
var listenHotkey hotkey.ListenFunc = hotkey.Listen

func runDaemon(ctx context.Context) error {
	chord := hotkeyArg
	if chord != "" {
		if _, err := hotkey.Parse(chord); err != nil {
			return err
		}
	}
	cfg, closer, err := setup()
	if err != nil {
		return err
	}
	defer closer.Close()
	if chord == "" {
		chord = cfg.Hotkey
	}
	c, err := hotkey.Parse(chord)
	if err != nil {
		return err
	}

	l := logging.L("daemon")
	if session := os.Getenv(capture.SessionTypeEnv); session == "wayland" {
		l.Warn("wayland compositors only deliver grabbed keys to X clients in focus; bind the hotkey in the compositor to run zoomify instead")
	}
	return hotkey.Run(ctx, l, c, listenHotkey, launchMagnifier)
}

func printYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
