package source

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"simplemap/internal/tile"
)

// Tile schemas: xyz counts rows from the top, tms from the bottom.
const (
	SchemaXYZ = "xyz"
	SchemaTMS = "tms"
)

// Fetcher returns the raw payload of one tile.
type Fetcher interface {
	Fetch(ctx context.Context, num tile.Num) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, num tile.Num) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, num tile.Num) ([]byte, error) {
	return f(ctx, num)
}

func schemaRow(num tile.Num, schema string) int {
	if schema == SchemaTMS {
		return num.FlipY()
	}
	return num.Y
}

func checkSchema(schema string) (string, error) {
	switch schema {
	case "", SchemaXYZ:
		return SchemaXYZ, nil
	case SchemaTMS:
		return SchemaTMS, nil
	}
	return "", fmt.Errorf("unknown tile schema %q", schema)
}

// gunzip inflates gzip payloads and passes everything else through.
func gunzip(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, []byte{0x1f, 0x8b}) {
		return data, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

// HTTPFetcher downloads tiles from a URL template with {x}, {y} and {z} placeholders.
type HTTPFetcher struct {
	template string
	schema   string
	client   *http.Client
}

// NewHTTPFetcher validates the template and schema. A zero timeout disables it.
func NewHTTPFetcher(template, schema string, timeout time.Duration) (*HTTPFetcher, error) {
	for _, p := range []string{"{x}", "{y}", "{z}"} {
		if !strings.Contains(template, p) {
			return nil, fmt.Errorf("tile url %q lacks placeholder %s", template, p)
		}
	}
	u, err := url.Parse(tileURL(template, 0, 0, 0))
	if err != nil {
		return nil, fmt.Errorf("tile url %q: %w", template, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("tile url %q must be http or https", template)
	}
	schema, err = checkSchema(schema)
	if err != nil {
		return nil, err
	}
	return &HTTPFetcher{
		template: template,
		schema:   schema,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

func tileURL(template string, x, y, z int) string {
	return strings.NewReplacer(
		"{x}", strconv.Itoa(x),
		"{y}", strconv.Itoa(y),
		"{z}", strconv.Itoa(z),
	).Replace(template)
}

// URL is the address of num.
func (f *HTTPFetcher) URL(num tile.Num) string {
	return tileURL(f.template, num.X, schemaRow(num, f.schema), num.Z)
}

func (f *HTTPFetcher) Fetch(ctx context.Context, num tile.Num) ([]byte, error) {
	u := f.URL(num)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", u, err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("fetch %s: %w", u, ErrTileNotFound)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("fetch %s: status code %d", u, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", u, err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("fetch %s: %w", u, ErrEmptyTile)
	}
	log.WithFields(log.Fields{"tile": num.String(), "bytes": len(body)}).Debugf("fetched in %s", time.Since(start))
	return gunzip(body)
}

// DirFetcher reads tiles laid out as root/z/x/y.ext.
type DirFetcher struct {
	root   string
	ext    string
	schema string
}

// NewDirFetcher checks that root is a directory.
func NewDirFetcher(root, ext, schema string) (*DirFetcher, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}
	schema, err = checkSchema(schema)
	if err != nil {
		return nil, err
	}
	if ext == "" {
		ext = PNG
	}
	return &DirFetcher{root: root, ext: strings.TrimPrefix(ext, "."), schema: schema}, nil
}

// Path is the file holding num.
func (f *DirFetcher) Path(num tile.Num) string {
	return filepath.Join(f.root, strconv.Itoa(num.Z), strconv.Itoa(num.X),
		strconv.Itoa(schemaRow(num, f.schema))+"."+f.ext)
}

func (f *DirFetcher) Fetch(ctx context.Context, num tile.Num) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.Path(num))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", num, ErrTileNotFound)
	}
	if err != nil {
		return nil, err
	}
	return gunzip(data)
}

// SyntheticFetcher paints checkerboard PNG tiles in memory, tinted by grid position, for
// offline use.
type SyntheticFetcher struct {
	// Size is the tile edge in pixels, tile.TileSize when zero.
	Size int
	// Cells is the checkerboard resolution per tile edge, 8 when zero.
	Cells int
	// Delay simulates latency.
	Delay time.Duration
}

var syntheticPalette = []color.RGBA{
	{0xe4, 0x57, 0x2e, 0xff},
	{0x29, 0x33, 0x5c, 0xff},
	{0xf3, 0xa7, 0x12, 0xff},
	{0x66, 0x9b, 0xbc, 0xff},
	{0x3e, 0x8e, 0x41, 0xff},
}

// SyntheticColor is the dark cell color of num; light cells are white.
func SyntheticColor(num tile.Num) color.RGBA {
	return syntheticPalette[(num.X+num.Y+num.Z)%len(syntheticPalette)]
}

func (f SyntheticFetcher) Fetch(ctx context.Context, num tile.Num) ([]byte, error) {
	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if !num.Valid() {
		return nil, fmt.Errorf("%s: %w", num, ErrTileNotFound)
	}
	size, cells := f.Size, f.Cells
	if size <= 0 {
		size = tile.TileSize
	}
	if cells <= 0 {
		cells = 8
	}
	dark := SyntheticColor(num)
	light := color.RGBA{0xff, 0xff, 0xff, 0xff}
	cell := size / cells
	if cell == 0 {
		cell = 1
	}

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			c := light
			if (x/cell+y/cell)%2 == 0 {
				c = dark
			}
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
