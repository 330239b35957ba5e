// Package viewer shows captured monitors in a pannable, zoomable window.
package viewer

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/vector"

	"github.com/zoomify/zoomify/internal/capture"
	"github.com/zoomify/zoomify/internal/config"
	"github.com/zoomify/zoomify/internal/logging"
	"github.com/zoomify/zoomify/internal/viewport"
)

//go:embed spotlight.kage
var spotlightSrc []byte

const spotlightDim = 0.85

var log = logging.L("viewer")

// ErrNoCaptures is returned when Run is given nothing to show.
var ErrNoCaptures = errors.New("viewer: no captures to display")

type tile struct {
	img    *ebiten.Image
	origin viewport.Vec
}

type game struct {
	tiles     []tile
	focus     image.Rectangle
	state     viewport.State
	spotlight *ebiten.Shader

	fitted     bool
	lastCursor viewport.Vec
	renderW    int
	renderH    int
}

// Run decodes the captures and blocks in the window loop until the user
// quits with Esc or closes the window.
func Run(results []capture.Result, cfg config.Viewer) error {
	g, err := newGame(results, cfg)
	if err != nil {
		return err
	}

	ebiten.SetWindowTitle("zoomify")
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetVsyncEnabled(cfg.VSync)
	ebiten.SetFullscreen(cfg.Fullscreen)
	if !cfg.Fullscreen {
		w, h := ebiten.Monitor().Size()
		ebiten.SetWindowSize(w*3/4, h*3/4)
	}

	log.Info("viewer starting", "tiles", len(g.tiles), "fullscreen", cfg.Fullscreen)
	if err := ebiten.RunGame(g); err != nil && !errors.Is(err, ebiten.Termination) {
		return fmt.Errorf("viewer: %w", err)
	}
	log.Info("viewer closed")
	return nil
}

func newGame(results []capture.Result, cfg config.Viewer) (*game, error) {
	if len(results) == 0 {
		return nil, ErrNoCaptures
	}

	rects := make([]image.Rectangle, len(results))
	for i, r := range results {
		rects[i] = r.Bounds()
	}
	world, _ := viewport.Arrange(rects)

	g := &game{
		state: viewport.State{
			Limits: viewport.Limits{
				ZoomMin:   cfg.ZoomMin,
				ZoomMax:   cfg.ZoomMax,
				ZoomStep:  cfg.ZoomStep,
				RadiusMin: cfg.SpotlightRadiusMin,
				RadiusMax: cfg.SpotlightRadiusMax,
			},
			Camera:    viewport.Camera{Zoom: 1},
			Radius:    cfg.SpotlightRadius,
			ShowTips:  cfg.ShowTips,
			ShowDebug: cfg.ShowDebug,
		},
		focus: world[0],
	}

	for i, r := range results {
		img, err := png.Decode(bytes.NewReader(r.Image))
		if err != nil {
			return nil, fmt.Errorf("viewer: decode capture %d: %w", r.Index, err)
		}
		g.tiles = append(g.tiles, tile{
			img:    ebiten.NewImageFromImage(img),
			origin: viewport.Vec{X: float64(world[i].Min.X), Y: float64(world[i].Min.Y)},
		})
		if r.Primary {
			g.focus = world[i]
		}
		log.Debug("tile loaded", "index", r.Index, "world", world[i].String(), "primary", r.Primary)
	}

	shader, err := ebiten.NewShader(spotlightSrc)
	if err != nil {
		return nil, fmt.Errorf("viewer: compile spotlight shader: %w", err)
	}
	g.spotlight = shader
	return g, nil
}

func (g *game) Update() error {
	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		return ebiten.Termination
	}
	if !g.fitted && g.renderW > 0 {
		g.state.Fit(g.focus, g.renderW, g.renderH)
		g.fitted = true
	}

	cx, cy := ebiten.CursorPosition()
	cursor := viewport.Vec{X: float64(cx), Y: float64(cy)}
	_, wheel := ebiten.Wheel()

	in := viewport.Input{
		Cursor:          cursor,
		Wheel:           wheel,
		ToggleTips:      inpututil.IsKeyJustPressed(ebiten.KeyH),
		ToggleDebug:     inpututil.IsKeyJustPressed(ebiten.KeyD),
		ToggleSpotlight: inpututil.IsKeyJustPressed(ebiten.KeyL),
	}
	if ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft) && !inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft) {
		in.Drag = cursor.Sub(g.lastCursor)
	}
	g.lastCursor = cursor

	before := g.state.Spotlight
	g.state.Update(in)
	if g.state.Spotlight != before {
		log.Debug("spotlight toggled", "enabled", g.state.Spotlight, "radius", g.state.Radius)
	}
	return nil
}

func (g *game) Draw(screen *ebiten.Image) {
	screen.Fill(color.Black)

	cam := g.state.Camera
	for _, t := range g.tiles {
		op := &ebiten.DrawImageOptions{}
		op.GeoM.Translate(t.origin.X-cam.Target.X, t.origin.Y-cam.Target.Y)
		op.GeoM.Scale(cam.Zoom, cam.Zoom)
		op.GeoM.Translate(cam.Offset.X, cam.Offset.Y)
		op.Filter = ebiten.FilterLinear
		if cam.Zoom >= 2 {
			op.Filter = ebiten.FilterNearest
		}
		screen.DrawImage(t.img, op)
	}

	if g.state.Spotlight {
		b := screen.Bounds()
		op := &ebiten.DrawRectShaderOptions{
			Uniforms: map[string]any{
				"Center": []float32{float32(g.state.Cursor.X), float32(g.state.Cursor.Y)},
				"Radius": float32(g.state.Radius),
				"Dim":    float32(spotlightDim),
			},
		}
		screen.DrawRectShader(b.Dx(), b.Dy(), g.spotlight, op)
	}

	if g.state.ShowDebug {
		drawDebug(screen, g.state)
	}
	if g.state.ShowTips {
		drawTips(screen)
	}
}

func (g *game) Layout(outsideWidth, outsideHeight int) (int, int) {
	g.renderW, g.renderH = outsideWidth, outsideHeight
	return outsideWidth, outsideHeight
}

var (
	panelFill   = color.NRGBA{0x82, 0x82, 0x82, 0xf2}
	panelBorder = color.Black
	tipsFill    = color.NRGBA{0xff, 0x6d, 0xc2, 0xf2}
	tipsBorder  = color.NRGBA{0x70, 0x1f, 0x7e, 0xff}
)

func panel(screen *ebiten.Image, x, y, w, h float32, fill, border color.Color) {
	vector.DrawFilledRect(screen, x, y, w, h, fill, false)
	vector.StrokeRect(screen, x, y, w, h, 2, border, false)
}

func drawDebug(screen *ebiten.Image, s viewport.State) {
	panel(screen, 10, 30, 420, 96, panelFill, panelBorder)
	lines := []string{
		fmt.Sprintf("zoom: %.4f  fps: %.1f", s.Camera.Zoom, ebiten.ActualFPS()),
		fmt.Sprintf("camera offset: (%.1f, %.1f)", s.Camera.Offset.X, s.Camera.Offset.Y),
		fmt.Sprintf("camera target: (%.1f, %.1f)", s.Camera.Target.X, s.Camera.Target.Y),
		fmt.Sprintf("mouse position: (%.0f, %.0f)", s.Cursor.X, s.Cursor.Y),
		fmt.Sprintf("mouse world position: (%.1f, %.1f)", s.CursorWorld.X, s.CursorWorld.Y),
	}
	for i, l := range lines {
		ebitenutil.DebugPrintAt(screen, l, 20, 38+i*16)
	}
}

var tips = []string{
	"esc - quit",
	"h - toggle keystroke tips",
	"d - toggle debug info",
	"l - toggle spotlight",
	"drag - pan, wheel - zoom",
}

func drawTips(screen *ebiten.Image) {
	w := screen.Bounds().Dx()
	x := float32(w - 230)
	panel(screen, x, 30, 220, float32(16*len(tips)+16), tipsFill, tipsBorder)
	for i, l := range tips {
		ebitenutil.DebugPrintAt(screen, l, int(x)+10, 38+i*16)
	}
}
