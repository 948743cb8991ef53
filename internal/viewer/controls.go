// Package viewer shows a SimpleMap in a desktop window and steers it from the keyboard.
package viewer

import (
	"time"

	"simplemap/internal/simplemap"
)

// Action is a view change bound to a key.
type Action int

const (
	PanLeft Action = iota
	PanRight
	PanUp
	PanDown
	ZoomIn
	ZoomOut
	PitchUp
	PitchDown
	RotateLeft
	RotateRight
)

// Steps are the changes applied on every tick a key is held.
type Steps struct {
	Pan      float64 // pixels
	Zoom     float64
	Pitch    float64 // degrees
	Rotation float64 // degrees
}

var DefaultSteps = Steps{Pan: 8, Zoom: 0.05, Pitch: 1, Rotation: 2}

// Options configures the window. Zero values take the defaults.
type Options struct {
	Title string
	Steps Steps
	// Timeout bounds a single frame; 0 waits for every tile.
	Timeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Title == "" {
		o.Title = "simplemap"
	}
	if o.Steps == (Steps{}) {
		o.Steps = DefaultSteps
	}
	return o
}

// Apply performs actions on m and reports whether the view moved. Opposite actions cancel;
// a change the map clamps away does not count.
func Apply(m *simplemap.SimpleMap, actions []Action, s Steps) bool {
	if len(actions) == 0 {
		return false
	}
	var dx, dy, dz, dp, dr float64
	for _, a := range actions {
		switch a {
		case PanLeft:
			dx -= s.Pan
		case PanRight:
			dx += s.Pan
		case PanUp:
			dy -= s.Pan
		case PanDown:
			dy += s.Pan
		case ZoomIn:
			dz += s.Zoom
		case ZoomOut:
			dz -= s.Zoom
		case PitchUp:
			dp += s.Pitch
		case PitchDown:
			dp -= s.Pitch
		case RotateLeft:
			dr -= s.Rotation
		case RotateRight:
			dr += s.Rotation
		}
	}

	moved := false
	if dz != 0 {
		z := m.Zoom()
		moved = m.SetZoom(z+dz) != z || moved
	}
	if dp != 0 {
		p := m.Pitch()
		moved = m.SetPitch(p+dp) != p || moved
	}
	if dr != 0 {
		r := m.Rotation()
		moved = m.SetRotation(r+dr) != r || moved
	}
	if dx != 0 || dy != 0 {
		m.Pan(dx, dy)
		moved = true
	}
	return moved
}
