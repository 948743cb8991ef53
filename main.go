package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"simplemap/internal/viewer"
)

// flag
var (
	hf       bool
	cf       string
	logLevel string
)

func init() {
	flag.BoolVar(&hf, "h", false, "this help")
	flag.StringVar(&cf, "c", "conf.toml", "set config `file`")
	flag.StringVar(&logLevel, "l", "info", "set log `level`")
	flag.Usage = usage
}

func usage() {
	fmt.Fprintf(os.Stderr, `simplemap version: simplemap/v0.1.0
Usage: simplemap [-h] [-c filename] [-l level]
`)
	flag.PrintDefaults()
}

func main() {
	flag.Parse()
	if hf {
		flag.Usage()
		return
	}

	if cf == "" {
		cf = "conf.toml"
	}
	conf, err := initConf(cf)
	if err != nil {
		log.Fatal(err)
	}
	initLog(conf, logLevel)

	start := time.Now()
	if err := run(conf); err != nil {
		log.Fatal(err)
	}
	log.Infof("%.3fs finished...", time.Since(start).Seconds())
}

func run(conf *Conf) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	m, closer, err := newSimpleMap(conf)
	if err != nil {
		return err
	}
	defer closer()

	switch conf.App.Mode {
	case ModeWindow:
		return viewer.Run(ctx, m, viewer.Options{Title: conf.App.Title, Timeout: conf.Task.Timeout})
	case ModeRender:
		task, err := NewRenderTask(m, conf)
		if err != nil {
			return err
		}
		return task.Run(ctx)
	}
	return fmt.Errorf("unknown app mode %q", conf.App.Mode)
}
