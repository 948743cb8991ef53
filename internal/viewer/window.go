//go:build cgo

package viewer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	log "github.com/sirupsen/logrus"

	"simplemap/internal/simplemap"
)

var keyActions = []struct {
	key    ebiten.Key
	action Action
}{
	{ebiten.KeyArrowLeft, PanLeft},
	{ebiten.KeyArrowRight, PanRight},
	{ebiten.KeyArrowUp, PanUp},
	{ebiten.KeyArrowDown, PanDown},
	{ebiten.KeyEqual, ZoomIn},
	{ebiten.KeyNumpadAdd, ZoomIn},
	{ebiten.KeyMinus, ZoomOut},
	{ebiten.KeyNumpadSubtract, ZoomOut},
	{ebiten.KeyW, PitchUp},
	{ebiten.KeyS, PitchDown},
	{ebiten.KeyQ, RotateLeft},
	{ebiten.KeyE, RotateRight},
}

type window struct {
	ctx  context.Context
	m    *simplemap.SimpleMap
	opts Options

	// set when the view moved since the last frame started
	dirty     atomic.Bool
	rendering atomic.Bool

	mu     sync.Mutex
	pix    []byte
	fw, fh int
	img    *ebiten.Image
}

// Run opens a window on m and blocks until it is closed, Escape is pressed or ctx ends.
func Run(ctx context.Context, m *simplemap.SimpleMap, opts Options) error {
	opts = opts.withDefaults()
	w := &window{ctx: ctx, m: m, opts: opts}
	w.dirty.Store(true)

	vw, vh := m.Camera().ViewSize()
	ebiten.SetWindowTitle(opts.Title)
	ebiten.SetWindowSize(int(vw), int(vh))
	ebiten.SetTPS(60)
	if err := ebiten.RunGame(w); err != nil && !errors.Is(err, ebiten.Termination) {
		return err
	}
	return nil
}

func (w *window) Update() error {
	if w.ctx.Err() != nil || inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		return ebiten.Termination
	}
	var actions []Action
	for _, ka := range keyActions {
		if ebiten.IsKeyPressed(ka.key) {
			actions = append(actions, ka.action)
		}
	}
	if Apply(w.m, actions, w.opts.Steps) {
		w.dirty.Store(true)
	}
	// one frame in flight; moves made meanwhile are picked up by the next one
	if w.dirty.Load() && w.rendering.CompareAndSwap(false, true) {
		w.dirty.Store(false)
		go w.render()
	}
	return nil
}

func (w *window) render() {
	defer w.rendering.Store(false)

	ctx := w.ctx
	if w.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.opts.Timeout)
		defer cancel()
	}
	frame, stats, err := w.m.RenderFrame(ctx, nil)
	if err != nil {
		log.Warnf("frame incomplete: %v", err)
	}
	if frame == nil {
		return
	}
	w.mu.Lock()
	w.pix = append(w.pix[:0], frame.Pix...)
	w.fw, w.fh = frame.Rect.Dx(), frame.Rect.Dy()
	w.mu.Unlock()
	log.Debugf("frame %s", stats)
}

func (w *window) Draw(screen *ebiten.Image) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pix == nil {
		return
	}
	if w.img == nil || w.img.Bounds().Dx() != w.fw || w.img.Bounds().Dy() != w.fh {
		w.img = ebiten.NewImage(w.fw, w.fh)
	}
	w.img.WritePixels(w.pix)
	screen.DrawImage(w.img, nil)
}

func (w *window) Layout(outsideWidth, outsideHeight int) (int, int) {
	vw, vh := w.m.Camera().ViewSize()
	return int(vw), int(vh)
}
