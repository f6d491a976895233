package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/fleetsight/fleetsight/internal/agent/client"
	"github.com/fleetsight/fleetsight/internal/agent/collector"
	"github.com/fleetsight/fleetsight/internal/agent/spool"
	"github.com/fleetsight/fleetsight/internal/capture"
	"github.com/fleetsight/fleetsight/internal/inventory"
)

var AppVersion string

func main() {
	InitConfig()

	slog.Info("FleetSight Agent", "version", AppVersion)

	hostname, _ := os.Hostname()
	serial := config.Device.SerialNumber
	if serial == "" {
		serial = hostname
	}
	platform := config.Device.Platform
	if platform == "" {
		platform = runtime.GOOS
	}

	sp, err := spool.Open(config.Collection.SpoolPath)
	if err != nil {
		slog.Error("Failed to open session spool", "path", config.Collection.SpoolPath, "error", err)
		os.Exit(1)
	}
	defer sp.Close()

	var policy json.RawMessage
	if config.Collection.PolicyFile != "" {
		policy, err = os.ReadFile(config.Collection.PolicyFile)
		if err != nil {
			slog.Error("Failed to read policy file", "path", config.Collection.PolicyFile, "error", err)
			os.Exit(1)
		}
	}

	cl := client.New(config.Server.Url, config.Server.ApiKey, serial)

	enrollCtx, enrollCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := cl.Enroll(enrollCtx, hostname, platform); err != nil {
		enrollCancel()
		slog.Error("Failed to enroll device", "serial_number", serial, "error", err)
		os.Exit(1)
	}
	enrollCancel()
	slog.Info("Device enrolled", "serial_number", serial, "server", config.Server.Url)

	scanner := inventory.NewScanner(config.Inventory.Roots)
	source := capture.NewExecSource(config.Capture.Method, config.Capture.Command, config.Capture.Args...)
	coll := collector.New(scanner, source, sp, cl, policy)

	interval := config.Collection.Interval
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		errChan <- coll.Run(ctx, interval)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		switch {
		case errors.Is(err, client.ErrDeviceArchived):
			slog.Info("Device archived on server, stopping collection")
		case err != nil && !errors.Is(err, context.Canceled):
			slog.Error("Collector error", "error", err)
			os.Exit(1)
		}
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig)
		cancel()
		<-errChan
	}

	slog.Info("Shutdown complete")
}
