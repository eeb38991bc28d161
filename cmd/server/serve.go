package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"

	"github.com/dasmlab/tmengine/pkg/config"
	"github.com/dasmlab/tmengine/pkg/memory"
	"github.com/dasmlab/tmengine/pkg/server"
	"github.com/dasmlab/tmengine/pkg/service"
)

const (
	jobCleanupInterval = 10 * time.Minute
	jobMaxAge          = time.Hour
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gRPC and HTTP servers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}
	cmd.Flags().Int("port", 50051, "gRPC server port")
	cmd.Flags().Int("http-port", 8080, "HTTP server port for the JSON API, job status and metrics")
	bindFlags(v, cmd.Flags(), map[string]string{
		"port":      "server.grpc_port",
		"http-port": "server.http_port",
	})
	return cmd
}

func serve(cfg *config.Config) error {
	logger := cfg.NewLogger()
	logger.WithFields(logrus.Fields{
		"grpc_port":       cfg.Server.GRPCPort,
		"http_port":       cfg.Server.HTTPPort,
		"store":           cfg.Store.Path,
		"mt_engine":       cfg.Fallback.Engine,
		"mt_url":          cfg.Fallback.URL,
		"reuse_threshold": memory.ReuseThreshold,
		"log_level":       logger.GetLevel().String(),
	}).Info("Starting tmengine server")

	engine, closeStore, err := buildEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	jobQueue := service.NewJobQueue(logger)
	jobQueue.SetProcessor(service.NewJobProcessor(engine, cfg.Import.Workers, logger))

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", cfg.Server.GRPCPort, err)
	}

	s := grpc.NewServer(
		grpc.UnaryInterceptor(service.UnaryInterceptor(logger)),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             15 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle:     5 * time.Minute,
			MaxConnectionAge:      30 * time.Minute,
			MaxConnectionAgeGrace: 5 * time.Second,
			Time:                  30 * time.Second,
			Timeout:               10 * time.Second,
		}),
	)

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(s, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(service.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	service.RegisterTranslationMemoryServer(s, service.NewTranslationService(engine, jobQueue, logger))
	reflection.Register(s)

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()
	go func() {
		ticker := time.NewTicker(jobCleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				jobQueue.CleanupOldJobs(jobMaxAge)
			case <-bgCtx.Done():
				return
			}
		}
	}()

	httpServer := server.NewHTTPServer(engine, jobQueue, logger, cfg.Server.HTTPPort)

	errChan := make(chan error, 2)
	go func() {
		logger.WithFields(logrus.Fields{
			"port": cfg.Server.GRPCPort,
		}).Info("gRPC server listening")
		if err := s.Serve(lis); err != nil {
			errChan <- fmt.Errorf("failed to serve gRPC: %w", err)
		}
	}()
	go func() {
		if err := httpServer.Start(); err != nil {
			errChan <- fmt.Errorf("failed to serve HTTP: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var serveErr error
	select {
	case serveErr = <-errChan:
		logger.WithError(serveErr).Error("Server error, shutting down")
	case sig := <-sigChan:
		logger.WithFields(logrus.Fields{
			"signal": sig.String(),
		}).Info("Received signal, shutting down gracefully...")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.WithError(err).Warn("HTTP server shutdown failed")
	}

	stopped := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
		logger.Info("Server stopped gracefully")
	case <-ctx.Done():
		logger.Warn("Graceful shutdown timeout, forcing stop...")
		s.Stop()
	}
	return serveErr
}
