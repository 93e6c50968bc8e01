package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	fx3stream "github.com/fx3dev/fx3stream"
	"github.com/fx3dev/fx3stream/internal/config"
	"github.com/fx3dev/fx3stream/internal/converters"
	"github.com/fx3dev/fx3stream/internal/filemanager"
	"github.com/fx3dev/fx3stream/internal/logging"
	"github.com/fx3dev/fx3stream/internal/promexport"
	"github.com/fx3dev/fx3stream/internal/usb"
)

func main() {
	var (
		configPath = flag.String("config", "fx3stream.yaml", "path to the persisted configuration")
		savePath   = flag.String("save-path", ".", "directory captured frames are written to")
		prefix     = flag.String("prefix", "capture", "output file name prefix")
		metricsAddr = flag.String("metrics-addr", ":9477", "address to serve Prometheus metrics on (empty disables)")
		verbose    = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	doc, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	endpoint := usb.New(logger)

	converter, err := converters.ForFormat(doc.MainSettings.VideoFormat, converters.ContainerPNG)
	if err != nil {
		logger.WithError(err).Warn("unrecognized video format in config; falling back to raw passthrough")
		converter = nil
	}

	fm := filemanager.New(filemanager.Config{
		BasePath:        *savePath,
		Prefix:          *prefix,
		AutoNaming:      true,
		AppendTimestamp: true,
		CreateSubfolder: true,
		MaxFileSize:     fx3stream.DefaultMaxFileSize,
		MaxFileDuration: fx3stream.DefaultAutoSplitTime,
		SaveMetadata:    true,
		Converter:       converter,
		Params: converters.Params{
			Width:  int(doc.MainSettings.VideoWidth),
			Height: int(doc.MainSettings.VideoHeight),
		},
		Format: doc.DeviceConfig.CaptureType,
		Logger: logger,
	})
	if err := fm.Start(); err != nil {
		log.Fatalf("start file manager: %v", err)
	}

	coordinator, err := fx3stream.New(fx3stream.Config{
		Endpoint: endpoint,
		Sink:     fm,
		Logger:   logger,
	})
	if err != nil {
		log.Fatalf("build coordinator: %v", err)
	}

	if *metricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(promexport.NewCollector(coordinator.Metrics()))
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: *metricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.WithError(err).Warn("metrics server stopped")
			}
		}()
		defer srv.Close()
		logger.Info(fmt.Sprintf("metrics listening on %s", *metricsAddr))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := coordinator.OnDeviceArrival(ctx); err != nil {
		log.Fatalf("open device: %v", err)
	}
	if err := coordinator.LoadCommands(doc.MainSettings.CommandDir); err != nil {
		log.Fatalf("load commands: %v", err)
	}
	if err := coordinator.StartTransfer(ctx, fx3stream.StartParams{
		Width:  doc.DeviceConfig.ImageWidth,
		Height: doc.DeviceConfig.ImageHeight,
		Format: doc.DeviceConfig.CaptureType,
	}); err != nil {
		log.Fatalf("start transfer: %v", err)
	}

	logger.Info("capture started", "save_path", *savePath)
	fmt.Printf("Capturing to %s, press Ctrl+C to stop...\n", *savePath)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("received shutdown signal")

	coordinator.PrepareForShutdown()

	stopDone := make(chan struct{})
	go func() {
		_ = fm.StopSaving()
		close(stopDone)
	}()
	select {
	case <-stopDone:
	case <-time.After(2 * time.Second):
		logger.Warn("file manager stop timed out, exiting anyway")
	}

	os.Exit(0)
}
