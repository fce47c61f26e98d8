package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"execbox/internal/controller"
	"execbox/internal/sandbox/provision"
	"execbox/internal/service"
	"execbox/pkg/utils/logger"
)

const defaultConfigPath = "configs/executor_service.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		return
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return
	}
	defer func() {
		_ = logger.Sync()
	}()

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	instances, err := provision.Provision(rootCtx, appCfg.Provision)
	if err != nil {
		logger.Error(context.Background(), "provisioning failed", zap.Error(err))
		return
	}

	if appCfg.Archive.Enabled {
		archiver, err := service.NewArtifactArchiver(appCfg.Archive.Dir)
		if err != nil {
			logger.Error(context.Background(), "init archiver failed", zap.Error(err))
			return
		}
		for _, inst := range instances {
			inst.Supervisor.SetArtifactCollector(archiver)
		}
	}

	store := service.NewResultStore(appCfg.Store.Capacity, appCfg.Store.TTL)
	store.StartJanitor(rootCtx)

	poolInstances := make([]*service.Instance, 0, len(instances))
	for _, inst := range instances {
		poolInstances = append(poolInstances, &service.Instance{
			ID:         inst.ID,
			Supervisor: inst.Supervisor,
		})
	}
	execSvc, err := service.NewExecutorService(rootCtx, poolInstances, store, service.Options{
		QueueDepth:        appCfg.Queue.Depth,
		MaxSourceBytes:    appCfg.Queue.MaxSourceBytes,
		DeduplicateSource: appCfg.Queue.DeduplicateSource,
	})
	if err != nil {
		logger.Error(context.Background(), "init executor service failed", zap.Error(err))
		return
	}

	httpServer := buildHTTPServer(appCfg.Server, execSvc)
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		logger.Error(context.Background(), "init http listener failed", zap.Error(err))
		return
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "executor http server started", zap.String("addr", appCfg.Server.Addr))
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "http server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(context.Background(), "shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error(context.Background(), "http server shutdown failed", zap.Error(err))
	}
	execSvc.Shutdown()
	cancelRoot()
}

func buildHTTPServer(cfg ServerConfig, execSvc *service.ExecutorService) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger())

	execController := controller.NewExecuteController(execSvc)
	streamController := controller.NewStreamController(execSvc)

	router.GET("/healthz", execController.Healthz)
	router.GET("/readyz", execController.Readyz)

	api := router.Group("/api/v1")
	api.POST("/executions", execController.Execute)
	api.GET("/executions/:id", execController.GetResult)
	api.GET("/executions/:id/stream", streamController.Stream)

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		logger.Info(
			c.Request.Context(),
			"request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
