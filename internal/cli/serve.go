// internal/cli/serve.go
package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"geofence-gateway/internal/alerting"
	"geofence-gateway/internal/anomaly"
	"geofence-gateway/internal/api"
	"geofence-gateway/internal/config"
	"geofence-gateway/internal/connectivity"
	"geofence-gateway/internal/data"
	"geofence-gateway/internal/ingest"
	"geofence-gateway/internal/logging"
	"geofence-gateway/internal/storage"
	"geofence-gateway/internal/websocket"
)

func init() {
	RootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway and optional MQTT subscriber",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	})
}

func serve(cfg *config.Config) error {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	if cfg.Source != "" {
		logger.Info("Loaded configuration", zap.String("file", cfg.Source))
	} else {
		logger.Info("No config file found, running on defaults and environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Storage ---
	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	var tracker connectivity.Tracker = connectivity.NewMemoryTracker(nil)
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			DialTimeout:  cfg.Redis.OpTimeout,
			ReadTimeout:  cfg.Redis.OpTimeout,
			WriteTimeout: cfg.Redis.OpTimeout,
			PoolTimeout:  cfg.Redis.OpTimeout,
			MaxRetries:   -1,
		})
		defer rdb.Close()
		pingCtx, cancelPing := context.WithTimeout(ctx, cfg.Redis.OpTimeout)
		err := rdb.Ping(pingCtx).Err()
		cancelPing()
		if err != nil {
			logger.Warn("Redis unreachable, heartbeats stay local until it recovers",
				zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		tracker = connectivity.NewRedisTracker(rdb, logger, nil, cfg.Redis.OpTimeout)
	}

	// --- Notification ---
	var sender alerting.Sender
	if ts := alerting.NewTelegramSender(cfg.Notify.BaseURL, cfg.Notify.BotToken, cfg.Notify.ChatID, cfg.Notify.SendTimeout); ts != nil {
		sender = ts
	} else {
		logger.Info("Notification gateway not configured, breach notifications disabled")
	}
	dispatcher := alerting.NewDispatcher(sender, alerting.Policy{
		Cooldown:    cfg.Notify.Cooldown,
		SendTimeout: cfg.Notify.SendTimeout,
	}, logger)
	if cfg.Radar.AutoLedger && !dispatcher.Enabled() {
		logger.Warn("radar.auto_ledger has no effect while notifications are disabled")
	}

	// --- Live path ---
	hub := websocket.NewHub(logger)
	go hub.Run(ctx)

	severity := data.Severity(cfg.Radar.DefaultSeverity)
	pipeline := ingest.NewPipeline(ingest.Deps{
		Store:    storage.NewLiveStore(),
		Tracker:  tracker,
		Detector: anomaly.NewDetector(cfg.Radar.ThresholdCM),
		Notifier: dispatcher,
		Hub:      hub,
		Ledger:   store,
	}, ingest.Options{
		HeartbeatTimeout: cfg.Radar.HeartbeatTimeout,
		DefaultDeviceID:  cfg.Radar.DefaultDeviceID,
		AutoLedger:       cfg.Radar.AutoLedger,
		AutoSeverity:     severity,
	}, logger)

	parser := data.NewParser(data.Defaults{DeviceID: cfg.Radar.DefaultDeviceID, Severity: severity})

	var sub *ingest.Subscriber
	if cfg.MQTT.Broker != "" {
		if sub, err = ingest.NewSubscriber(cfg.MQTT, pipeline, parser, logger); err != nil {
			return err
		}
		defer func() {
			if sub != nil {
				sub.Stop()
			}
		}()
		if err := sub.Start(); err != nil {
			return err
		}
	}

	// --- HTTP ---
	handler := api.NewAPIHandler(pipeline, store, hub, parser, logger)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: api.SetupRouter(handler, logger),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server",
			zap.Int("port", cfg.Server.Port),
			zap.Float64("threshold_cm", cfg.Radar.ThresholdCM),
			zap.Bool("notifications", dispatcher.Enabled()),
			zap.Bool("auto_ledger", cfg.Radar.AutoLedger),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	// --- Graceful Shutdown ---
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", zap.Error(err))
	}
	if sub != nil {
		sub.Stop()
		sub = nil
	}
	if err := dispatcher.Wait(shutdownCtx); err != nil {
		logger.Warn("Abandoned in-flight notifications", zap.Error(err))
	}
	if err := pipeline.Wait(shutdownCtx); err != nil {
		logger.Warn("Abandoned in-flight ledger writes", zap.Error(err))
	}
	logger.Info("Gateway stopped")
	return nil
}
