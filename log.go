package main

import (
	"io"
	"os"
	"path/filepath"

	nested "github.com/antonfisher/nested-logrus-formatter"
	"github.com/shiena/ansicolor"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// initLog 初始化日志
func initLog(conf *Conf, level string) {
	log.SetFormatter(&nested.Formatter{
		HideKeys:        true,
		ShowFullLevel:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})

	outs := make([]io.Writer, 0, 2)
	if conf.Output.LogDir != "" {
		outs = append(outs, &lumberjack.Logger{
			Filename:   filepath.Join(conf.Output.LogDir, "simplemap.log"),
			MaxSize:    10,
			MaxBackups: 5,
			MaxAge:     30,
			LocalTime:  true,
		})
	}
	if conf.Output.OutputTerminal || len(outs) == 0 {
		outs = append(outs, os.Stdout)
	}
	// then wrap the log output with it
	log.SetOutput(ansicolor.NewAnsiColorWriter(io.MultiWriter(outs...)))

	lvl, err := log.ParseLevel(level)
	if err != nil {
		log.SetLevel(log.InfoLevel)
		log.Warnf("unknown log level %q, using info", level)
		return
	}
	log.SetLevel(lvl)
}
