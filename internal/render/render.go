// Package render rasterizes raster tiles seen through a perspective camera into an RGBA frame.
package render

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"sync"

	"github.com/paulmach/orb"

	"simplemap/internal/camera"
	"simplemap/internal/projection"
	"simplemap/internal/source"
	"simplemap/internal/tile"
)

// Background is painted where no tile covers the ground and where the view sees sky.
var Background = color.RGBA{0xd9, 0xe4, 0xea, 0xff}

// Texture is the uploaded pixel copy of a raster tile. It is attached to the tile as its
// resource and released when the tile leaves the cache.
type Texture struct {
	mu  sync.Mutex
	pix *image.RGBA
	src image.Image
}

func newTexture(img image.Image) *Texture {
	b := img.Bounds()
	pix := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(pix, pix.Bounds(), img, b.Min, draw.Src)
	return &Texture{pix: pix, src: img}
}

// Pixels returns the texture image, nil once released.
func (t *Texture) Pixels() *image.RGBA {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pix
}

func (t *Texture) Release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pix = nil
	t.src = nil
}

func (t *Texture) builtFrom(img image.Image) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pix != nil && t.src == img
}

// Renderer draws one frame at a time. It is not safe for concurrent use.
type Renderer struct {
	width, height int
	frame         *image.RGBA
	cam           *camera.PerspectiveCamera

	// planar ground point under each pixel center, valid where hit is set
	ground []orb.Point
	hit    []bool

	uploads int
	// pixels examined by DrawTile
	scanned int
}

// New allocates a renderer for a width×height frame.
func New(width, height int) (*Renderer, error) {
	r := &Renderer{}
	if err := r.Resize(width, height); err != nil {
		return nil, err
	}
	return r, nil
}

// Resize reallocates the frame buffers.
func (r *Renderer) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", width, height)
	}
	r.width, r.height = width, height
	r.frame = image.NewRGBA(image.Rect(0, 0, width, height))
	r.ground = make([]orb.Point, width*height)
	r.hit = make([]bool, width*height)
	return nil
}

func (r *Renderer) Size() (width, height int) {
	return r.width, r.height
}

// Uploads counts textures built since the renderer was created.
func (r *Renderer) Uploads() int {
	return r.uploads
}

// Begin clears the frame and casts one ground ray per pixel from cam.
func (r *Renderer) Begin(cam *camera.PerspectiveCamera) error {
	if cam == nil {
		return errors.New("render needs a camera")
	}
	w, h := cam.ViewSize()
	if int(w) != r.width || int(h) != r.height {
		return fmt.Errorf("camera view %gx%g does not match frame %dx%d", w, h, r.width, r.height)
	}
	draw.Draw(r.frame, r.frame.Bounds(), &image.Uniform{C: Background}, image.Point{}, draw.Src)
	r.cam = cam

	picker := cam.Picker()
	for y := 0; y < r.height; y++ {
		for x := 0; x < r.width; x++ {
			i := y*r.width + x
			r.ground[i], r.hit[i] = picker.Pick(float64(x)+0.5, float64(y)+0.5)
		}
	}
	return nil
}

// texture returns the texture of t, rebuilt when the attached one is gone or stale.
func (r *Renderer) texture(t *tile.Tile[source.Raster]) *image.RGBA {
	img := t.Data().Image
	if img == nil {
		return nil
	}
	if tex, ok := t.Resource().(*Texture); ok && tex.builtFrom(img) {
		if pix := tex.Pixels(); pix != nil {
			return pix
		}
	}
	tex := newTexture(img)
	t.AttachResource(tex)
	r.uploads++
	return tex.Pixels()
}

// DrawTile paints t into the world copy given by offset and returns the number of pixels it
// covered.
func (r *Renderer) DrawTile(t *tile.Tile[source.Raster], offset int) int {
	if t == nil || !t.Loaded() {
		return 0
	}
	pix := r.texture(t)
	if pix == nil {
		return 0
	}
	b := t.Data().Quad.Bound()
	shift := float64(offset) * projection.Circumference
	minX, maxX := b.Min.X()+shift, b.Max.X()+shift
	minY, maxY := b.Min.Y(), b.Max.Y()
	spanX, spanY := maxX-minX, maxY-minY
	tw, th := pix.Bounds().Dx(), pix.Bounds().Dy()

	covered := 0
	rect := r.screenRect(orb.Bound{Min: orb.Point{minX, minY}, Max: orb.Point{maxX, maxY}})
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			i := y*r.width + x
			r.scanned++
			if !r.hit[i] {
				continue
			}
			gx, gy := r.ground[i].X(), r.ground[i].Y()
			if gx < minX || gx >= maxX || gy <= minY || gy > maxY {
				continue
			}
			u := (gx - minX) / spanX
			v := (maxY - gy) / spanY
			tx := clamp(int(math.Floor(u*float64(tw))), 0, tw-1)
			ty := clamp(int(math.Floor(v*float64(th))), 0, th-1)
			blend(r.frame, i, pix.RGBAAt(tx, ty))
			covered++
		}
	}
	return covered
}

// screenRect bounds the pixels that can see the planar rectangle b, padded by one pixel. It is
// the whole frame when a corner of b lies behind the camera.
func (r *Renderer) screenRect(b orb.Bound) image.Rectangle {
	full := r.frame.Bounds()
	if r.cam == nil {
		return full
	}
	x0, y0 := math.Inf(1), math.Inf(1)
	x1, y1 := math.Inf(-1), math.Inf(-1)
	for _, p := range []orb.Point{b.Min, b.Max, {b.Min.X(), b.Max.Y()}, {b.Max.X(), b.Min.Y()}} {
		sx, sy, ok := r.cam.Project(p)
		if !ok {
			return full
		}
		x0, x1 = math.Min(x0, sx), math.Max(x1, sx)
		y0, y1 = math.Min(y0, sy), math.Max(y1, sy)
	}
	// clip before converting, far corners can land very far off screen
	w, h := float64(r.width), float64(r.height)
	x0, x1 = math.Max(x0, -1), math.Min(x1, w+1)
	y0, y1 = math.Max(y0, -1), math.Min(y1, h+1)
	if x0 > x1 || y0 > y1 {
		return image.Rectangle{}
	}
	rect := image.Rect(int(math.Floor(x0))-1, int(math.Floor(y0))-1, int(math.Ceil(x1))+1, int(math.Ceil(y1))+1)
	return rect.Intersect(full)
}

// Frame is the image being drawn; it is reused by the next Begin.
func (r *Renderer) Frame() *image.RGBA {
	return r.frame
}

// Covered reports whether the pixel at (x, y) sees the ground.
func (r *Renderer) Covered(x, y int) bool {
	if x < 0 || y < 0 || x >= r.width || y >= r.height {
		return false
	}
	return r.hit[y*r.width+x]
}

// blend composites premultiplied c over the pixel with linear index i.
func blend(dst *image.RGBA, i int, c color.RGBA) {
	p := dst.Pix[i*4 : i*4+4 : i*4+4]
	if c.A == 0xff {
		p[0], p[1], p[2], p[3] = c.R, c.G, c.B, c.A
		return
	}
	inv := uint32(0xff - c.A)
	p[0] = uint8(uint32(c.R) + uint32(p[0])*inv/0xff)
	p[1] = uint8(uint32(c.G) + uint32(p[1])*inv/0xff)
	p[2] = uint8(uint32(c.B) + uint32(p[2])*inv/0xff)
	p[3] = uint8(uint32(c.A) + uint32(p[3])*inv/0xff)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
