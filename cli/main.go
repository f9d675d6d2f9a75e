// Package provides the cli util s3sync-compress.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/gosuri/uilive"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/HuyNguyen260398/s3-sync-compress/api"
	"github.com/HuyNguyen260398/s3-sync-compress/pipeline"
	"github.com/HuyNguyen260398/s3-sync-compress/status"
	"github.com/HuyNguyen260398/s3-sync-compress/storage"
)

var cli argsParsed
var log = logrus.New()
var live *uilive.Writer

type syncStatus int

const (
	syncStatusUnknown syncStatus = iota - 1
	syncStatusOk
	syncStatusFailed
	syncStatusAborted
	syncStatusConfError
)

func setupLogging(cli *argsParsed) {
	if cli.ShowProgress && cli.Command != cmdAPIServer {
		live = uilive.New()
		live.Start()
		log.SetOutput(live.Bypass())
		log.SetFormatter(&logrus.TextFormatter{ForceColors: true})
	}
	if cli.Debug {
		log.SetLevel(logrus.DebugLevel)
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	pipeline.Log = log
	storage.Log = log
	status.Log = log
	api.Log = log
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warnf("Failed to load .env: %s", err)
	}

	var err error
	cli, err = GetCliArgs(os.Args[1:])
	if err != nil {
		log.Errorf("cli args parsing failed with error: %s", err)
		log.Exit(int(syncStatusConfError))
	}
	setupLogging(&cli)

	ctx, cancel := context.WithCancelCause(context.Background())
	sysStopChan := make(chan os.Signal, 1)
	signal.Notify(sysStopChan, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		recSignal := <-sysStopChan
		log.Warnf("Receive signal: %s, terminating", recSignal.String())
		cancel(errAborted)
	}()

	st := syncStatusUnknown
	switch cli.Command {
	case cmdAPIServer:
		st = serveAPI(ctx)
	case cmdWatch:
		st = watchTrigger(ctx, cli.TriggerFile, cli.Watch.Interval, runOnce)
	default:
		st = runOnce(ctx)
	}

	if live != nil {
		live.Stop()
	}
	log.Exit(int(st))
}

func serveAPI(ctx context.Context) syncStatus {
	router := api.NewRouter(api.Config{
		TriggerFile:  cli.TriggerFile,
		StatusFile:   cli.StatusFile,
		AllowOrigins: cli.APIServer.AllowOrigins,
	})
	if err := api.ListenAndServe(ctx, cli.APIServer.Addr, router); err != nil {
		log.Errorf("API server failed: %s", err)
		return syncStatusFailed
	}
	return syncStatusOk
}

// runOnce performs a single pipeline run with a fresh status record.
func runOnce(ctx context.Context) syncStatus {
	syncGroup := pipeline.NewGroup(status.NewFileReporter(cli.StatusFile))
	syncGroup.WithContext(ctx)

	if err := setupStorages(ctx, &syncGroup, &cli); err != nil {
		log.Errorf("Failed to setup storage, error: %s", err)
		syncGroup.Fail(err)
		return syncStatusConfError
	}
	setupPipeline(&syncGroup, &cli)

	liveCtx, stopLive := context.WithCancel(ctx)
	if cli.ShowProgress {
		go printLiveStats(liveCtx, &syncGroup)
	}

	log.Info("Starting sync")
	final, err := syncGroup.Run()
	stopLive()

	st := exitStatus(ctx, err)
	printFinalStats(&syncGroup, final, st)
	return st
}
