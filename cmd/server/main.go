package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/thrustbench/thrustbench/internal/analysis"
	"github.com/thrustbench/thrustbench/internal/api"
	"github.com/thrustbench/thrustbench/internal/config"
	"github.com/thrustbench/thrustbench/internal/ingest"
	"github.com/thrustbench/thrustbench/internal/record"
	"github.com/thrustbench/thrustbench/internal/session"
	"github.com/thrustbench/thrustbench/internal/store"
	"github.com/thrustbench/thrustbench/internal/telemetry"
	"github.com/thrustbench/thrustbench/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	uiDir := flag.String("ui-dir", "", "serve the dashboard static files from this directory; leave empty to disable")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("thrustbench-server starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	slog.Info("config loaded",
		"http_port", cfg.Server.HTTPPort,
		"database", cfg.Server.DatabasePath,
		"mqtt_broker", cfg.MQTT.Broker,
		"sample_rate", cfg.Analysis.ExpectedSampleRate,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := store.Open(cfg.Server.DatabasePath)
	if err != nil {
		slog.Error("failed to open store", "err", err)
		os.Exit(1)
	}

	// Single-consumer ingest channel: both the stand websocket link and the
	// MQTT bridge feed it; the session machine drains it in arrival order.
	readings := make(chan telemetry.Reading, 1024)

	hub := ws.New(readings)
	defer hub.Close()

	// The stand computes calibration on-device and reports the result back;
	// persist it so GET /api/v1/calibration survives restarts.
	hub.OnCalibration(func(offset int64, scale float64) {
		if err := st.SaveCalibration(offset, scale); err != nil {
			slog.Error("failed to persist calibration", "err", err)
		}
	})

	// Commands prefer the direct stand link and fall back to the MQTT
	// bridge when the stand is broker-attached.
	sink := commandSink{primary: hub}

	if cfg.MQTT.Broker != "" {
		bridge, err := ingest.Connect(cfg.MQTT, readings)
		if err != nil {
			slog.Error("failed to connect MQTT bridge", "err", err)
			os.Exit(1)
		}
		defer bridge.Close()
		sink.fallback = bridge
	}

	records := record.NewService(st, analysisParams(cfg.Analysis))
	machine := session.New(sink, records, hub)
	go machine.Run(ctx, readings)

	// Hot-reload analysis parameters on config edits.
	go func() {
		err := config.Watch(ctx, *configPath, func(c *config.Config) {
			records.SetParams(analysisParams(c.Analysis))
		})
		if err != nil {
			slog.Warn("config watch disabled", "err", err)
		}
	}()

	httpMux := http.NewServeMux()
	httpMux.Handle("/api/", api.New(machine, records, st, hub))
	httpMux.HandleFunc("/ws/stand", hub.ServeStand)
	httpMux.HandleFunc("/ws/dashboard", hub.ServeDashboard)
	httpMux.Handle("/metrics", promhttp.Handler())

	// Optional: serve the pre-built dashboard from a local directory.
	if *uiDir != "" {
		fs := http.FileServer(http.Dir(*uiDir))
		httpMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			// SPA fallback: if the requested file doesn't exist, serve index.html.
			path := *uiDir + r.URL.Path
			if _, err := os.Stat(path); os.IsNotExist(err) {
				http.ServeFile(w, r, *uiDir+"/index.html")
				return
			}
			fs.ServeHTTP(w, r)
		})
		slog.Info("serving dashboard static files", "dir", *uiDir)
	}

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: httpMux,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("thrustbench-server shutting down")
	httpSrv.Shutdown(context.Background()) //nolint:errcheck
}

// analysisParams maps the config section onto pipeline parameters.
func analysisParams(c config.AnalysisConfig) analysis.Params {
	return analysis.Params{
		BurnThreshold:      c.BurnThreshold,
		SmoothingWindow:    c.SmoothingWindow,
		SmoothingOrder:     c.SmoothingOrder,
		BaselineDuration:   c.BaselineDuration,
		ExpectedSampleRate: c.ExpectedSampleRate,
		MinTestDuration:    c.MinTestDuration,
	}
}

// commandSink routes stand commands: the direct websocket link first, then
// the MQTT bridge if configured.
type commandSink struct {
	primary  *ws.Hub
	fallback session.CommandSink
}

func (s commandSink) SendCommand(cmd telemetry.Command) error {
	err := s.primary.SendCommand(cmd)
	if err != nil && s.fallback != nil {
		return s.fallback.SendCommand(cmd)
	}
	return err
}
