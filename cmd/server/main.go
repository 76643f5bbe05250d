package main

import (
	"flag"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/SafeSpaceHQ/safeline/cmd/bootstrap"
	"github.com/SafeSpaceHQ/safeline/pkg/config"
	"github.com/SafeSpaceHQ/safeline/pkg/logger"
	"github.com/SafeSpaceHQ/safeline/pkg/matchmaking"
	"github.com/SafeSpaceHQ/safeline/pkg/metrics"
	"github.com/SafeSpaceHQ/safeline/pkg/registry"
	"github.com/SafeSpaceHQ/safeline/pkg/transport"
)

func main() {
	addr := flag.String("port", "", "Port to listen on")
	mode := flag.String("mode", "", "running environment (development, test, production)")
	flag.Parse()
	if *mode != "" {
		os.Setenv("MODE", *mode)
	}

	if err := config.Load(); err != nil {
		panic("config load failed: " + err.Error())
	}
	if err := logger.Init(&config.GlobalConfig.Log, config.GlobalConfig.Mode); err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := bootstrap.PrintBannerFromFile("banner.txt", config.GlobalConfig.ServerName); err != nil {
		logger.Warn("banner print failed", zap.Error(err))
	}
	bootstrap.LogConfigInfo()

	if *addr == "" {
		*addr = config.GlobalConfig.Addr
	}
	if !strings.HasPrefix(*addr, ":") {
		*addr = ":" + *addr
	}

	reg := registry.New(config.GlobalConfig.SessionTTL)
	hub := transport.NewHub()
	engine := matchmaking.NewEngine(reg, hub)
	hub.SetHandler(engine)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	// Avoid 307 redirects that break CORS preflights from the frontend.
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false

	iceServers := transport.ICEServersFromURLs(config.GlobalConfig.StunServers)
	r.GET("/ws", transport.ServeWS(hub, iceServers))
	r.GET("/health", healthHandler)
	r.GET("/api/stats", statsHandler(engine, hub))
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	httpServer := &http.Server{
		Addr:           *addr,
		Handler:        r,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	logger.Info("Starting HTTP server", zap.String("addr", *addr))
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("HTTP server run failed", zap.Error(err))
	}
}
