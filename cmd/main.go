package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Vovarama1992/go-utils/logger"
	"github.com/Vovarama1992/voicememo/internal/config"
	"github.com/Vovarama1992/voicememo/internal/delivery"
	ws "github.com/Vovarama1992/voicememo/internal/delivery/ws"
	"github.com/Vovarama1992/voicememo/internal/domain"
	"github.com/Vovarama1992/voicememo/internal/infra"
	"github.com/Vovarama1992/voicememo/internal/ports"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config (default: $VOICEMEMO_CONFIG or ./voicememo.yaml)")
	flag.Parse()

	// CONFIG
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// LOGGER
	zcore, err := newZap(cfg.Log.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "init logger:", err)
		os.Exit(1)
	}
	defer zcore.Sync()
	zl := logger.NewZapLogger(zcore.Sugar())

	// METRICS
	metrics := infra.NewPromMetrics()

	// WS HUB
	hub := ws.NewHub(zl)
	presenter := ws.NewPresenter(hub, zl)

	// CAPTURE
	var capture ports.CaptureFacility
	switch cfg.Capture.Mode {
	case "ffmpeg":
		capture = infra.NewFFmpegCapture(infra.FFmpegConfig{
			Path:        cfg.Capture.FFmpegPath,
			InputFormat: cfg.Capture.InputFormat,
			InputDevice: cfg.Capture.InputDevice,
		}, zl)
	default:
		capture = ws.NewBrowserCapture(hub, zl)
	}

	// UPLOAD
	uploader := infra.NewUploadClient(infra.UploadClientConfig{
		Endpoint:  cfg.Upload.Endpoint,
		Method:    cfg.Upload.Method,
		UserAgent: cfg.Upload.UserAgent,
	}, zl)

	// SERVICE
	recorder := domain.NewRecorderService(capture, uploader, presenter, metrics, zl, domain.RecorderConfig{
		MIMEType:        cfg.Capture.MIMEType,
		TickInterval:    cfg.Session.TickInterval,
		IdleTimeout:     cfg.Session.IdleTimeout,
		CleanupInterval: cfg.Session.CleanupInterval,
	})

	// ROUTER
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Accept"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
	}))
	r.Use(delivery.MetricsMiddleware(metrics))

	delivery.RegisterRoutes(r, delivery.NewSessionHandler(recorder, zl))

	r.Get("/ws", ws.WSHandler(hub, recorder, zl))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.Server.Port),
		Handler: r,
	}

	go func() {
		zl.Log(logger.LogEntry{
			Level:   "info",
			Message: "server started",
			Fields: map[string]any{
				"port":     cfg.Server.Port,
				"capture":  cfg.Capture.Mode,
				"endpoint": cfg.Upload.Endpoint,
			},
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Log(logger.LogEntry{
				Level:   "error",
				Message: "server crashed",
				Error:   err,
			})
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	zl.Log(logger.LogEntry{Level: "info", Message: "shutting down"})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zl.Log(logger.LogEntry{
			Level:   "error",
			Message: "http shutdown",
			Error:   err,
		})
	}
	recorder.Shutdown()
}

func newZap(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = lvl
	return zcfg.Build()
}
