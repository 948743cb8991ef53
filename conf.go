package main

import (
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"simplemap/internal/source"
	"simplemap/internal/tile"
)

// App modes
const (
	ModeRender = "render"
	ModeWindow = "window"
)

// Conf is the content of the config file.
type Conf struct {
	App struct {
		Version string
		Title   string
		Mode    string
	}
	Map struct {
		Center     []float64
		Zoom       float64
		Pitch      float64
		Rotation   float64
		Fov        float64
		Width      int
		Height     int
		Projection string
	}
	Tm    TileMap
	Layer struct {
		Min      int
		Max      int
		MaxTiles int
		ZIndex   int
	}
	Task struct {
		Workers   int
		CacheSize int
		Timeout   time.Duration
	}
	Output struct {
		Directory      string
		LogDir         string
		OutputTerminal bool
		Footprint      bool
		MBTiles        bool
	}
}

// initConf 初始化配置
func initConf(cfgFile string) (*Conf, error) {
	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		log.Warnf("config file(%s) not exist", cfgFile)
	}
	viper.SetConfigType("toml")
	viper.SetConfigFile(cfgFile)
	viper.AutomaticEnv() // read in environment variables that match
	err := viper.ReadInConfig()
	if err != nil {
		log.Warnf("read config file(%s) error, details: %s", viper.ConfigFileUsed(), err)
	}
	setDefaults()

	conf := &Conf{}
	if err := viper.Unmarshal(conf); err != nil {
		return nil, fmt.Errorf("parse config file(%s) error: %w", cfgFile, err)
	}
	if n := len(conf.Map.Center); n != 0 && n != 2 {
		return nil, fmt.Errorf("map.center needs [lng, lat], got %v", conf.Map.Center)
	}
	return conf, nil
}

func setDefaults() {
	viper.SetDefault("app.version", "v 0.1.0")
	viper.SetDefault("app.title", "simplemap")
	viper.SetDefault("app.mode", ModeRender)
	viper.SetDefault("map.zoom", 2)
	viper.SetDefault("map.width", 800)
	viper.SetDefault("map.height", 600)
	viper.SetDefault("map.projection", "EPSG:3857")
	viper.SetDefault("tm.name", "synthetic")
	viper.SetDefault("tm.kind", KindSynthetic)
	viper.SetDefault("tm.schema", source.SchemaXYZ)
	viper.SetDefault("task.workers", source.DefaultWorkers)
	viper.SetDefault("task.cacheSize", tile.DefaultCacheSize)
	viper.SetDefault("task.timeout", "30s")
	viper.SetDefault("output.directory", "output")
	viper.SetDefault("output.outputTerminal", true)
}
