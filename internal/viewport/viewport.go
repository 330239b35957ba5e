// Package viewport holds the magnifier's camera and input model. It has no
// rendering dependency; internal/viewer feeds it input and draws its state.
package viewport

import (
	"image"
	"math"
)

// Vec is a point or offset in screen or world space.
type Vec struct {
	X, Y float64
}

func (v Vec) Add(o Vec) Vec { return Vec{v.X + o.X, v.Y + o.Y} }
func (v Vec) Sub(o Vec) Vec { return Vec{v.X - o.X, v.Y - o.Y} }
func (v Vec) Scale(f float64) Vec { return Vec{v.X * f, v.Y * f} }

// Camera maps world space to the screen. Target is the world point drawn at
// Offset on screen, magnified by Zoom.
type Camera struct {
	Offset Vec
	Target Vec
	Zoom   float64
}

// WorldToScreen projects a world point.
func (c Camera) WorldToScreen(p Vec) Vec {
	return p.Sub(c.Target).Scale(c.Zoom).Add(c.Offset)
}

// ScreenToWorld unprojects a screen point.
func (c Camera) ScreenToWorld(p Vec) Vec {
	return p.Sub(c.Offset).Scale(1 / c.Zoom).Add(c.Target)
}

// Limits bound the camera zoom and the spotlight radius. Both bounds are
// exclusive.
type Limits struct {
	ZoomMin, ZoomMax     float64
	ZoomStep             float64
	RadiusMin, RadiusMax float64
}

// Input is one frame of pointer and keyboard input.
type Input struct {
	Cursor Vec
	// Drag is the pointer movement since the last frame while the pan
	// button is held. Zero when not dragging.
	Drag  Vec
	Wheel float64

	ToggleTips      bool
	ToggleDebug     bool
	ToggleSpotlight bool
}

// State is the full viewer model.
type State struct {
	Camera Camera
	Limits Limits

	Spotlight bool
	Radius    float64
	ShowTips  bool
	ShowDebug bool

	// Cursor and CursorWorld are the pointer position of the last update.
	Cursor      Vec
	CursorWorld Vec
}

// ScaleFactor converts a wheel delta into a multiplicative step. Negative
// deltas shrink.
func ScaleFactor(wheel, step float64) float64 {
	f := 1 + step*math.Abs(wheel)
	if wheel < 0 {
		return 1 / f
	}
	return f
}

// Update applies one frame of input.
func (s *State) Update(in Input) {
	s.Cursor = in.Cursor
	s.CursorWorld = s.Camera.ScreenToWorld(in.Cursor)

	if in.Drag != (Vec{}) {
		s.Camera.Target = s.Camera.Target.Sub(in.Drag.Scale(1 / s.Camera.Zoom))
	}

	if in.Wheel != 0 {
		f := ScaleFactor(in.Wheel, s.Limits.ZoomStep)
		if s.Spotlight {
			if r := s.Radius * f; r > s.Limits.RadiusMin && r < s.Limits.RadiusMax {
				s.Radius = r
			}
		} else {
			// anchor the zoom on the pointer
			s.Camera.Offset = in.Cursor
			s.Camera.Target = s.CursorWorld
			if z := s.Camera.Zoom * f; z > s.Limits.ZoomMin && z < s.Limits.ZoomMax {
				s.Camera.Zoom = z
			}
		}
	}

	if in.ToggleTips {
		s.ShowTips = !s.ShowTips
	}
	if in.ToggleDebug {
		s.ShowDebug = !s.ShowDebug
	}
	if in.ToggleSpotlight {
		s.Spotlight = !s.Spotlight
	}
}

// Fit zooms so that focus fills the render area and centres it.
func (s *State) Fit(focus image.Rectangle, renderW, renderH int) {
	if focus.Empty() || renderW <= 0 || renderH <= 0 {
		return
	}
	zoom := math.Min(float64(renderW)/float64(focus.Dx()), float64(renderH)/float64(focus.Dy()))
	if s.Limits.ZoomMax > s.Limits.ZoomMin {
		zoom = math.Max(s.Limits.ZoomMin, math.Min(zoom, s.Limits.ZoomMax))
	}
	s.Camera = Camera{
		Offset: Vec{float64(renderW) / 2, float64(renderH) / 2},
		Target: Vec{
			float64(focus.Min.X) + float64(focus.Dx())/2,
			float64(focus.Min.Y) + float64(focus.Dy())/2,
		},
		Zoom: zoom,
	}
}

// Arrange shifts monitor rectangles from virtual desktop space into world
// space, where the top-left corner of their union is the origin.
func Arrange(monitors []image.Rectangle) (world []image.Rectangle, bounds image.Rectangle) {
	if len(monitors) == 0 {
		return nil, image.Rectangle{}
	}
	union := monitors[0]
	for _, m := range monitors[1:] {
		union = union.Union(m)
	}
	world = make([]image.Rectangle, len(monitors))
	for i, m := range monitors {
		world[i] = m.Sub(union.Min)
	}
	return world, union.Sub(union.Min)
}
