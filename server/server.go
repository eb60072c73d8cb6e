package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"musicbox/config"
	"musicbox/core/auth"
	"musicbox/core/library"
	"musicbox/core/naming"
	"musicbox/core/session"
	"musicbox/db"
	"musicbox/logger"
	"musicbox/repository"
	"musicbox/storage"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

// NewRouter wires every route of the site onto h.
func NewRouter(h *APIHandler) http.Handler {
	router := mux.NewRouter()
	router.Use(h.SessionMiddleware, h.CSRFMiddleware)

	// 页面
	router.HandleFunc("/", h.IndexHandler).Methods(http.MethodGet)
	router.HandleFunc("/auth/login", h.RequireCSRF(h.LoginHandler)).Methods(http.MethodGet, http.MethodPost)
	router.HandleFunc("/auth/register", h.RequireCSRF(h.RegisterHandler)).Methods(http.MethodGet, http.MethodPost)
	router.HandleFunc("/auth/logout", h.RequireLogin(h.LogoutHandler)).Methods(http.MethodGet)

	// 曲目操作，上传在解析表单后自行校验CSRF
	router.HandleFunc("/upload", h.RequireLogin(h.UploadHandler)).Methods(http.MethodPost)
	router.HandleFunc("/delete/{id:[0-9]+}", h.RequireLogin(h.RequireCSRF(h.DeleteHandler))).Methods(http.MethodPost)
	router.HandleFunc("/music/{filename}", h.StreamHandler).Methods(http.MethodGet, http.MethodHead)

	// API Endpoints
	router.HandleFunc("/api/music", h.MusicListHandler).Methods(http.MethodGet)
	router.HandleFunc("/healthz", h.HealthHandler).Methods(http.MethodGet)

	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLog{}),
		handlers.PrintRecoveryStack(true),
	)
	return recovery(handlers.LoggingHandler(accessLog{}, router))
}

// Start connects the database, redis and the upload directory, then serves
// HTTP until SIGINT or SIGTERM.
func Start(cfg *config.Config) error {
	gdb, err := db.Open(cfg)
	if err != nil {
		return err
	}
	defer db.Close(gdb)
	if err := db.Migrate(gdb); err != nil {
		return err
	}
	logger.Info("Successfully connected to database", logger.String("driver", cfg.DBDriver))

	redisClient, err := session.Connect(context.Background(),
		net.JoinHostPort(cfg.RedisHost, cfg.RedisPort), cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer redisClient.Close()
	logger.Info("Successfully connected to Redis")

	disk, err := storage.NewOsDisk(cfg.UploadDir)
	if err != nil {
		return err
	}

	if cfg.SecretKey == config.DefaultSecretKey {
		logger.Warn("SECRET_KEY is not set, sessions are signed with the development key")
	}

	lib := library.NewService(repository.NewTrackRepository(gdb), disk, naming.NewPolicy(cfg.AllowedExtensions))
	h, err := NewAPIHandler(
		repository.NewUserRepository(gdb),
		lib,
		auth.NewSigner(cfg.SecretKey, cfg.SessionTTL),
		session.NewStore(redisClient, cfg.SessionTTL),
		cfg,
	)
	if err != nil {
		return err
	}

	// 设置服务器超时
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           NewRouter(h),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      10 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	// 创建一个通道来接收操作系统信号
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Server starting",
			logger.String("addr", server.Addr),
			logger.String("uploadDir", disk.Root()),
			logger.Int64("maxContentLength", cfg.MaxContentLength))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// 等待中断信号
	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-stop:
	}
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 优雅关闭服务器
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}
