package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"frigate-wa-bridge/internal/auth"
	"frigate-wa-bridge/internal/camera"
	"frigate-wa-bridge/internal/config"
	"frigate-wa-bridge/internal/eventbus"
	"frigate-wa-bridge/internal/hub"
	"frigate-wa-bridge/internal/logging"
	"frigate-wa-bridge/internal/metrics"
	"frigate-wa-bridge/internal/middleware"
	"frigate-wa-bridge/internal/notify"
	"frigate-wa-bridge/internal/script"
	"frigate-wa-bridge/internal/server"
	"frigate-wa-bridge/internal/session"
	"frigate-wa-bridge/internal/state"
	"frigate-wa-bridge/internal/whatsapp"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge (default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	logger, logCloser, err := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
		Debug:  cfg.Debug,
	})
	if err != nil {
		return err
	}
	defer logCloser.Close()
	log := logging.Component(logger, "main")

	gin.SetMode(cfg.GinMode)
	m := metrics.New()

	wsHub := hub.New()
	broadcaster := notify.New(wsHub, m, logging.Component(logger, "notifier"))
	store := state.New(broadcaster, logging.Component(logger, "state"))
	broadcaster.SetGuard(store.InMutation)

	driverOpts := whatsapp.Options{
		DefaultSessionID:  cfg.SessionID,
		Retries:           cfg.MaxRetries,
		RetryDelay:        cfg.RetryDelay,
		GroupPollInterval: cfg.GroupPollInterval,
		QRRefreshInterval: cfg.QRRefreshInterval,
		ForwardTarget:     cfg.ForwardTarget,
	}
	if cfg.Debug {
		driverOpts.QRWriter = os.Stdout
	}
	waLog := logging.Component(logger, "whatsapp")
	driver := whatsapp.NewDriver(
		store,
		session.NewManager(nil, cfg.SessionsDir),
		whatsapp.NewMeowFactory(waLog),
		driverOpts,
		waLog,
	)
	defer driver.Close()

	cameras := camera.NewService(store, logging.Component(logger, "camera"))
	relay := camera.NewRelay(store, driver, m, logging.Component(logger, "relay"))
	relay.Attach(broadcaster)
	defer relay.Close()

	scripts := script.NewManager(cfg.ScriptPath, cfg.ScriptArgs, store, logging.Component(logger, "script"))
	defer func() {
		if err := scripts.Stop(5 * time.Second); err != nil && !errors.Is(err, script.ErrNotRunning) {
			log.WithError(err).Warn("stop script")
		}
	}()

	busLog := logging.Component(logger, "mqtt")
	router := eventbus.NewRouter(cfg.MQTT.TopicRoot, store, m, busLog)
	bus := eventbus.NewClient(eventbus.Options{
		Host:      cfg.MQTT.Host,
		Username:  cfg.MQTT.Username,
		Password:  cfg.MQTT.Password,
		ClientID:  cfg.MQTT.ClientID,
		TopicRoot: cfg.MQTT.TopicRoot,
	}, router, store, busLog)
	if err := bus.Start(); err != nil {
		if !errors.Is(err, eventbus.ErrNoHost) {
			return err
		}
		log.Warn("MQTT_HOST not set; event bus disabled")
	}
	defer bus.Stop()

	if driver.HasSessionData(cfg.SessionID) {
		go func() {
			if err := driver.Initialize(ctx, cfg.SessionID); err != nil {
				log.WithError(err).Error("restore whatsapp session")
			}
		}()
	}

	limiter := middleware.NewRateLimiter(120, time.Minute)
	defer limiter.Close()

	tokenCfg := auth.DefaultTokenConfig(cfg.DashboardSecret)
	tokenCfg.Expiry = cfg.TokenExpiry

	handler := server.NewRouter(server.Deps{
		Context:          ctx,
		Store:            store,
		Hub:              wsHub,
		Lifecycle:        driver,
		Cameras:          cameras,
		Scripts:          scripts,
		Metrics:          m,
		Gatherer:         prometheus.DefaultGatherer,
		TokenConfig:      tokenCfg,
		RateLimiter:      limiter,
		WSURL:            cfg.WSURL,
		DefaultSessionID: cfg.SessionID,
		LogFile:          cfg.LogFile,
		Version:          version,
		Log:              logging.Component(logger, "http"),
	})
	return server.Run(ctx, cfg, handler, log)
}
