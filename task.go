package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/teris-io/shortid"
	pb "gopkg.in/cheggaaa/pb.v1"

	"simplemap/internal/simplemap"
	"simplemap/internal/source"
	"simplemap/internal/tile"
)

// RenderTask 渲染任务, one frame of the configured view written to the output directory
type RenderTask struct {
	ID        string
	Name      string
	TileMap   TileMap
	Bar       *pb.ProgressBar
	m         *simplemap.SimpleMap
	outdir    string
	timeout   time.Duration
	footprint bool
	saveTiles bool
	mbtiles   *source.MBTilesWriter
	tileSet   Set
}

// NewRenderTask 创建渲染任务
func NewRenderTask(m *simplemap.SimpleMap, conf *Conf) (*RenderTask, error) {
	if m == nil {
		return nil, errors.New("render task needs a map")
	}
	id, err := shortid.Generate()
	if err != nil {
		return nil, err
	}
	return &RenderTask{
		ID:        id,
		Name:      conf.App.Title,
		TileMap:   conf.Tm,
		m:         m,
		outdir:    conf.Output.Directory,
		timeout:   conf.Task.Timeout,
		footprint: conf.Output.Footprint,
		saveTiles: conf.Output.MBTiles,
	}, nil
}

// File is the output path of the task with the given extension.
func (task *RenderTask) File(ext string) string {
	return filepath.Join(task.outdir, fmt.Sprintf("%s-%s.%s", task.TileMap.Name, task.ID, ext))
}

// MetaItems 输出
func (task *RenderTask) MetaItems(p simplemap.Plan) map[string]string {
	b := p.Footprint.Bound
	c := task.m.Center()
	minz, maxz := tile.ZoomMax, tile.ZoomMin
	for _, lp := range p.Layers {
		minz = min(minz, lp.Zoom)
		maxz = max(maxz, lp.Zoom)
	}
	format := task.TileMap.Format
	if format == "" {
		format = source.PNG
	}
	return map[string]string{
		"id":          task.ID,
		"name":        task.Name,
		"description": fmt.Sprintf("tiles drawn by frame %s, pitch %.1f rotation %.1f", task.ID, task.m.Pitch(), task.m.Rotation()),
		"basename":    task.TileMap.Name,
		"format":      format,
		"type":        "baselayer",
		"pixel_scale": strconv.Itoa(tile.TileSize),
		"version":     source.MBTileVersion,
		"bounds":      fmt.Sprintf(`%f,%f,%f,%f`, b.Left(), b.Bottom(), b.Right(), b.Top()),
		"center":      fmt.Sprintf(`%f,%f,%d`, c.X(), c.Y(), int(task.m.Zoom())),
		"minzoom":     strconv.Itoa(minz),
		"maxzoom":     strconv.Itoa(maxz),
	}
}

// Run plans the frame, streams its tiles into the renderer and writes the results.
func (task *RenderTask) Run(ctx context.Context) error {
	if err := os.MkdirAll(task.outdir, os.ModePerm); err != nil {
		return err
	}
	plan := task.m.Plan()
	if plan.Footprint.Empty() {
		log.Warnf("task %s: no ground in view", task.ID)
	}

	if task.saveTiles && plan.Tiles() > 0 {
		w, err := source.CreateMBTiles(task.File("mbtiles"), task.MetaItems(plan))
		if err != nil {
			return err
		}
		task.mbtiles = w
		defer func() {
			if err := w.Close(); err != nil {
				log.Errorf("close %s error ~ %s", task.File("mbtiles"), err)
			}
			task.mbtiles = nil
		}()
	}

	if task.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, task.timeout)
		defer cancel()
	}

	task.Bar = pb.New(plan.Tiles()).Prefix(fmt.Sprintf("Frame %s : ", task.ID))
	task.Bar.Start()
	frame, stats, err := task.m.RenderPlan(ctx, plan, task.onTile)
	task.Bar.FinishPrint(fmt.Sprintf("task %s drew %d/%d tiles ~", task.ID, stats.Loaded(), plan.Tiles()))
	if frame == nil {
		return err
	}
	if err != nil {
		log.Warnf("task %s got canceled, saving the partial frame ~ %s", task.ID, err)
	}

	if err := savePNG(task.File("png"), frame); err != nil {
		return fmt.Errorf("save frame: %w", err)
	}
	log.Infof("output finished : %s", task.File("png"))

	if task.footprint {
		fc := task.tileSet.FeatureCollection()
		if f := footprintFeature(plan.Footprint, plan.Camera.Projection()); f != nil {
			fc.Append(f)
		}
		if err := saveGeoJSON(task.File("geojson"), fc); err != nil {
			return fmt.Errorf("save footprint: %w", err)
		}
		log.Infof("output finished : %s", task.File("geojson"))
	}

	for _, l := range task.m.Layers() {
		log.Infof("layer %s: %s", l.Name(), l.Source().Stats())
	}
	log.Infof("task %s finished, %s", task.ID, stats)
	return nil
}

func (task *RenderTask) onTile(l *simplemap.RasterTileLayer, t *tile.Tile[source.Raster]) {
	task.Bar.Increment()
	task.tileSet.Add(t.Num)
	if task.mbtiles == nil {
		return
	}
	if err := task.mbtiles.Put(t.Num, t.Data().Raw); err != nil {
		log.Errorf("save %v tile to mbtiles db error ~ %s", t.Num, err)
	}
}
