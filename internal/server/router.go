package server

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"frigate-wa-bridge/internal/auth"
	"frigate-wa-bridge/internal/camera"
	"frigate-wa-bridge/internal/handler"
	"frigate-wa-bridge/internal/hub"
	"frigate-wa-bridge/internal/metrics"
	"frigate-wa-bridge/internal/middleware"
	"frigate-wa-bridge/internal/state"
)

type Deps struct {
	Context     context.Context
	Store       *state.Store
	Hub         *hub.Hub
	Lifecycle   handler.Lifecycle
	Cameras     *camera.Service
	Scripts     handler.ScriptRunner
	Metrics     *metrics.Metrics
	Gatherer    prometheus.Gatherer
	TokenConfig auth.TokenConfig
	// RateLimiter guards /api. It is closed when Context is done.
	RateLimiter *middleware.RateLimiter

	WSURL            string
	DefaultSessionID string
	LogFile          string
	LogFs            afero.Fs
	Version          string
	Log              *logrus.Entry
}

func NewRouter(deps Deps) *gin.Engine {
	if deps.Log == nil {
		deps.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	systemHandler := &handler.SystemHandler{Version: deps.Version}
	r.GET("/health", systemHandler.Health)
	r.GET("/version", systemHandler.VersionInfo)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))

	limiter := deps.RateLimiter
	if limiter == nil {
		limiter = middleware.NewRateLimiter(120, time.Minute)
	}
	if deps.Context != nil {
		context.AfterFunc(deps.Context, limiter.Close)
	}
	api := r.Group("/api")
	api.Use(middleware.RateLimitMiddleware(limiter))
	api.Use(middleware.RequireAuth(deps.TokenConfig))

	waHandler := &handler.WhatsAppHandler{Lifecycle: deps.Lifecycle, Store: deps.Store, Log: deps.Log}
	api.GET("/qr", waHandler.QR)
	api.GET("/qr.png", waHandler.QRImage)
	api.GET("/wa/status", waHandler.Status)
	api.GET("/wa/subscription-status", waHandler.SubscriptionStatus)
	api.GET("/wa/groups", waHandler.Groups)
	api.POST("/wa/unlink", waHandler.Unlink)

	cameraHandler := &handler.CameraHandler{Cameras: deps.Cameras, Log: deps.Log}
	api.GET("/cameras", cameraHandler.List)
	api.GET("/camera-group-mappings", cameraHandler.Mappings)
	api.POST("/assign-camera", cameraHandler.Assign)

	scriptHandler := &handler.ScriptHandler{Scripts: deps.Scripts, Log: deps.Log}
	api.POST("/script/start", scriptHandler.Start)
	api.POST("/script/stop", scriptHandler.Stop)
	api.GET("/script/status", scriptHandler.Status)

	logsHandler := &handler.LogsHandler{Fs: deps.LogFs, File: deps.LogFile, Log: deps.Log}
	api.GET("/logs", logsHandler.Tail)

	stateHandler := &handler.StateHandler{Store: deps.Store, Lifecycle: deps.Lifecycle, Log: deps.Log}
	api.GET("/state", stateHandler.Snapshot)
	api.POST("/reset", stateHandler.Reset)

	wsHandler := &handler.WebSocketHandler{
		Hub:              deps.Hub,
		Store:            deps.Store,
		Lifecycle:        deps.Lifecycle,
		Cameras:          deps.Cameras,
		Metrics:          deps.Metrics,
		TokenConfig:      deps.TokenConfig,
		WSURL:            deps.WSURL,
		DefaultSessionID: deps.DefaultSessionID,
		Log:              deps.Log.WithField("component", "websocket"),
		Context:          deps.Context,
	}
	r.GET("/ws", wsHandler.Serve)

	return r
}
