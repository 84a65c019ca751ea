package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/wechatpad/internal/config"
	"github.com/wechatpad/internal/db"
	"github.com/wechatpad/internal/handler"
	"github.com/wechatpad/internal/router"
	"github.com/wechatpad/internal/service"
)

func main() {
	// .env 不存在时忽略
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	level := slog.LevelInfo
	if strings.EqualFold(cfg.LogLevel, "debug") {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	gin.SetMode(cfg.GinMode)

	provider := db.NewProvider(db.Options{
		Dir:    cfg.DataDir,
		Debug:  level == slog.LevelDebug,
		Logger: logger,
	}, cfg.DefaultNamespace)
	defer provider.Close()

	// 启动时初始化默认命名空间，存储不可用时直接退出
	if _, err := provider.Acquire(context.Background()); err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}

	registry, err := db.OpenRegistry(cfg.DataDir, false)
	if err != nil {
		log.Fatalf("failed to open account registry: %v", err)
	}
	defer registry.Close()
	if cfg.AdminUserName != "" && cfg.AdminPassword != "" {
		if err := registry.EnsureAccount(context.Background(), cfg.AdminUserName, cfg.AdminPassword); err != nil {
			log.Fatalf("failed to seed account: %v", err)
		}
	}

	api := handler.NewAPI(provider, handler.Options{
		Accounts: service.NewAccountService(registry, provider, logger),
		Images: service.ImageOptions{
			MaxBytes:  cfg.ImageMaxBytes,
			MaxWidth:  cfg.ImageMaxWidth,
			MaxHeight: cfg.ImageMaxHeight,
			Quality:   cfg.ImageQuality,
		},
		QuotaLimit:      cfg.StorageQuotaBytes,
		PersistenceMode: cfg.PersistenceMode,
		Logger:          logger,
	})

	r := router.SetupRouter(api, router.Options{
		SessionSecret: cfg.SessionSecret,
		Logger:        logger,
	})

	server := &http.Server{
		Addr:        cfg.ListenAddr,
		Handler:     router.WithCORS(r, cfg.AllowedOrigins),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("server starting", "addr", cfg.ListenAddr, "data_dir", cfg.DataDir)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("failed to run server: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	// 写入仍在编辑中的内容
	api.Close()
	logger.Info("server stopped")
}
