package source

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/gen2brain/webp"
	"github.com/paulmach/orb"

	"simplemap/internal/projection"
	"simplemap/internal/tile"
)

// Constants representing tile formats
const (
	GZIP = "gzip" // encoding = gzip
	PNG  = "png"
	JPG  = "jpg"
	JPEG = "jpeg"
	WEBP = "webp"
)

// Quad is the ground geometry of a raster tile: planar corners of its home world copy and the
// texture coordinate of each corner, in the order top-left, top-right, bottom-right,
// bottom-left.
type Quad struct {
	Corners [4]orb.Point
	UV      [4][2]float64
}

// NewQuad builds the quad of num without its world offset.
func NewQuad(num tile.Num) Quad {
	home := num
	home.Offset = 0
	b := projection.TileCoordBounds(home)
	return Quad{
		Corners: [4]orb.Point{
			{b.Min.X(), b.Max.Y()},
			{b.Max.X(), b.Max.Y()},
			{b.Max.X(), b.Min.Y()},
			{b.Min.X(), b.Min.Y()},
		},
		UV: [4][2]float64{{0, 0}, {1, 0}, {1, 1}, {0, 1}},
	}
}

// Bound is the planar extent of the quad.
func (q Quad) Bound() orb.Bound {
	return orb.MultiPoint(q.Corners[:]).Bound()
}

// Raster is the decoded content of an image tile.
type Raster struct {
	Image  image.Image
	Format string
	// Raw is the payload as fetched.
	Raw  []byte
	Quad Quad
}

// Size is the fetched payload size in bytes.
func (r Raster) Size() int {
	return len(r.Raw)
}

// RasterSource loads image tiles through a Fetcher.
type RasterSource struct {
	fetcher Fetcher
	format  string
}

// NewRasterSource decodes what f returns. An empty format sniffs every payload.
func NewRasterSource(f Fetcher, format string) *RasterSource {
	return &RasterSource{fetcher: f, format: format}
}

func (rs *RasterSource) CreateTile(num tile.Num) *tile.Tile[Raster] {
	return tile.New[Raster](num)
}

func (rs *RasterSource) Load(ctx context.Context, t *tile.Tile[Raster]) (Raster, error) {
	data, err := rs.fetcher.Fetch(ctx, t.Num)
	if err != nil {
		return Raster{}, err
	}
	if len(data) == 0 {
		return Raster{}, fmt.Errorf("%s: %w", t.Num, ErrEmptyTile)
	}
	img, format, err := DecodeImage(data, rs.format)
	if err != nil {
		return Raster{}, fmt.Errorf("decode %s: %w", t.Num, err)
	}
	return Raster{
		Image:  img,
		Format: format,
		Raw:    data,
		Quad:   NewQuad(t.Num),
	}, nil
}

// DecodeImage decodes tile bytes in the given format; an empty format is detected from the
// payload signature. The detected or given format is returned with the image.
func DecodeImage(data []byte, format string) (image.Image, string, error) {
	if format == "" {
		format = DetectFormat(data)
	}
	r := bytes.NewReader(data)
	var img image.Image
	var err error
	switch format {
	case PNG:
		img, err = png.Decode(r)
	case JPG, JPEG:
		img, err = jpeg.Decode(r)
	case WEBP:
		img, err = webp.Decode(r)
	default:
		return nil, format, fmt.Errorf("unsupported tile format %q", format)
	}
	return img, format, err
}

// DetectFormat names the image format of data by its magic bytes, empty when unknown.
func DetectFormat(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return PNG
	case bytes.HasPrefix(data, []byte{0xff, 0xd8, 0xff}):
		return JPG
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return WEBP
	case bytes.HasPrefix(data, []byte{0x1f, 0x8b}):
		return GZIP
	}
	return ""
}
