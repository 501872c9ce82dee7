package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/joseph-ayodele/docparse/internal/admission"
	"github.com/joseph-ayodele/docparse/internal/app"
	"github.com/joseph-ayodele/docparse/internal/common"
	"github.com/joseph-ayodele/docparse/internal/export"
	"github.com/joseph-ayodele/docparse/internal/metrics"
	"github.com/joseph-ayodele/docparse/internal/server"
)

const serviceName = "docparse"

func main() {
	configPath := flag.String("config", os.Getenv("DOCPARSE_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger := common.NewLogger(cfg.Log)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	limiter := admission.NewLimiter(cfg.Admission.MaxConcurrent, cfg.Admission.QueueWait)
	m := metrics.New(func() float64 { return float64(limiter.InFlight()) })
	stack := app.Build(cfg, logger, m)

	rateLimiter := admission.NewRateLimiter(cfg.Admission.RatePerMinute, cfg.Admission.Burst)
	go sweepRateLimiter(ctx, rateLimiter, logger)

	// gRPC health
	reporter := server.NewHealthReporter(stack.Client, serviceName, logger)
	grpcServer := server.NewGRPCServer(reporter)
	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Error("failed to listen on address", "addr", cfg.Server.GRPCAddr, "error", err)
		os.Exit(1)
	}
	go reporter.Run(ctx, cfg.Server.HealthInterval)
	go func() {
		logger.Info("grpc health listening", "addr", cfg.Server.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC serve error", "error", err)
			stop()
		}
	}()

	// HTTP
	gin.SetMode(gin.ReleaseMode)
	router := server.NewRouter(server.Options{
		Service:     "Document Parser",
		Extractor:   stack.Processor,
		Models:      stack.Client,
		Exporter:    export.NewService(logger),
		Metrics:     m,
		Limiter:     limiter,
		RateLimiter: rateLimiter,
		Config:      cfg.Server,
		Logger:      logger,
	})
	httpServer := server.NewHTTPServer(cfg.Server.HTTPAddr, router, cfg.Admission.QueueWait, cfg.Backend.Timeout)
	go func() {
		logger.Info("docparse listening",
			"addr", cfg.Server.HTTPAddr,
			"backend", stack.Client.BaseURL(),
			"model", stack.Client.Model(),
			"max_concurrent", limiter.Capacity(),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http serve error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down", "timeout", cfg.Server.ShutdownTimeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	reporter.Shutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
	grpcServer.GracefulStop()
	logger.Info("stopped")
}

func sweepRateLimiter(ctx context.Context, rl *admission.RateLimiter, logger *slog.Logger) {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := rl.Sweep(); n > 0 {
				logger.Debug("admission.rate_limiter.swept", "clients", n)
			}
		}
	}
}
