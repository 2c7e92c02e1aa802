package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/joseph-ayodele/labscan/internal/classify"
	"github.com/joseph-ayodele/labscan/internal/common"
	"github.com/joseph-ayodele/labscan/internal/core"
	"github.com/joseph-ayodele/labscan/internal/core/async"
	"github.com/joseph-ayodele/labscan/internal/core/ocr"
	"github.com/joseph-ayodele/labscan/internal/export"
	"github.com/joseph-ayodele/labscan/internal/ingest"
	repo "github.com/joseph-ayodele/labscan/internal/repository"
	svc "github.com/joseph-ayodele/labscan/internal/server"
)

func main() {
	// message and attributes only; the log collector stamps time and level
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return a
		},
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}
	addr := cfg.Server.GRPCAddr
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repo.Open(ctx, repo.ConfigFrom(cfg.Database), logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.HealthCheck(ctx, 5*time.Second); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	if err := db.Migrate(ctx); err != nil {
		logger.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	jobsRepo := repo.NewExtractJobRepository(db, logger)
	recordsRepo := repo.NewLabRecordRepository(db, logger)

	extractor, err := ocr.NewExtractor(ocr.ConfigFrom(cfg.OCR), logger)
	if err != nil {
		logger.Error("failed to set up OCR", "error", err)
		os.Exit(1)
	}

	var clf core.Classifier
	if cfg.Classifier.URL != "" {
		c, err := classify.NewHTTPClient(classify.Config{URL: cfg.Classifier.URL, Timeout: cfg.Classifier.Timeout}, logger)
		if err != nil {
			logger.Error("invalid classifier configuration", "error", err)
			os.Exit(1)
		}
		clf = c
	} else {
		logger.Warn("CLASSIFIER_URL not set, records will be stored without predictions")
	}

	processor := core.NewProcessor(logger, extractor, jobsRepo, recordsRepo, clf)
	queue := async.NewProcessorQueue(processor, logger,
		async.WithWorkers(cfg.Queue.Workers),
		async.WithQueueSize(cfg.Queue.Size),
		async.WithProcessTimeout(cfg.Queue.ProcessTimeout),
	)
	ingestor := ingest.NewFSIngestor(jobsRepo, queue, logger)

	if len(cfg.Watch.Dirs) > 0 {
		events, errs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
			Roots:       cfg.Watch.Dirs,
			InitialScan: true,
			Debounce:    cfg.Watch.Debounce,
			Logger:      logger,
		})
		if err != nil {
			logger.Error("failed to start watcher", "dirs", cfg.Watch.Dirs, "error", err)
			os.Exit(1)
		}
		go ingest.Pump(ctx, events, ingestor, logger)
		go func() {
			for err := range errs {
				logger.Error("watcher error", "error", err)
			}
		}()
		logger.Info("watching drop folders", "dirs", cfg.Watch.Dirs)
	}

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Error("failed to listen on address", "addr", addr, "error", err)
		os.Exit(1)
	}
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(svc.UnaryLogging(logger)))

	exporter := export.NewService(recordsRepo, logger)
	svc.Register(grpcServer, svc.NewExtractionService(processor, ingestor, jobsRepo, recordsRepo, exporter, logger))

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(svc.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	// for grpcurl
	reflection.Register(grpcServer)

	logger.Info("labscand listening", "addr", addr, "workers", cfg.Queue.Workers)
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC serve error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	healthServer.Shutdown()
	grpcServer.GracefulStop()

	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Queue.ProcessTimeout)
	defer cancel()
	queue.Shutdown(drainCtx)
	logger.Info("stopped")
}
