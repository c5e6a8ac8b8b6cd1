package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/nothsaaaa/js-chat-server/internal/config"
	"github.com/nothsaaaa/js-chat-server/internal/otelutil"
	"github.com/nothsaaaa/js-chat-server/internal/server"
	"github.com/nothsaaaa/js-chat-server/internal/store"
)

// Server bundles the protocol engine with its HTTP surface.
type Server struct {
	cfg    *config.Config
	logger *slog.Logger
	chat   *server.ChatServer
	router *gin.Engine
}

func NewServer(cfg *config.Config, logger *slog.Logger, chat *server.ChatServer) *Server {
	s := &Server{cfg: cfg, logger: logger, chat: chat}
	s.router = gin.New()
	s.router.Use(gin.Recovery(), s.cidMiddleware(), s.otelMiddleware())
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "js-chat-server"})
	})

	s.router.GET("/server-info", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"serverName":          s.cfg.Server.Name,
			"totalMaxConnections": s.cfg.Limits.TotalMaxConnections,
			"currentOnline":       s.chat.Registry().Len(),
			"voiceParticipants":   s.chat.Relay().ParticipantCount(),
		})
	})

	s.router.GET("/ws", s.chat.HandleWebSocket)
}

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := otelutil.Init(); err != nil {
		logger.Info("tracing disabled", "reason", err)
	}
	defer otelutil.Flush()

	cfg, err := config.Load(logger, "settings")
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		logger.Error("failed to open message store", "path", cfg.Store.Path, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	bans, err := store.LoadNameList(cfg.Store.BansPath)
	if err != nil {
		logger.Error("failed to load ban list", "path", cfg.Store.BansPath, "error", err)
		os.Exit(1)
	}
	admins, err := store.LoadNameList(cfg.Store.AdminsPath)
	if err != nil {
		logger.Error("failed to load admin list", "path", cfg.Store.AdminsPath, "error", err)
		os.Exit(1)
	}

	chat := server.New(cfg, logger, st, bans, admins)
	srv := NewServer(cfg, logger, chat)

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.router,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Error("server forced to shut down", "error", err)
		}
	}()

	logger.Info("starting server", "addr", cfg.Server.Addr, "auth", cfg.Auth.Enabled, "webrtc", cfg.WebRTC.Enabled)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
