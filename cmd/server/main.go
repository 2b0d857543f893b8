package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/Brownie44l1/plasty-api/internal/config"
	"github.com/Brownie44l1/plasty-api/internal/engine"
	"github.com/Brownie44l1/plasty-api/internal/estimate"
	"github.com/Brownie44l1/plasty-api/internal/handlers"
	"github.com/Brownie44l1/plasty-api/internal/logging"
	"github.com/Brownie44l1/plasty-api/internal/metrics"
	"github.com/Brownie44l1/plasty-api/internal/model"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := config.LoadDotenv(); err != nil {
		os.Stderr.WriteString("invalid configuration: " + err.Error() + "\n")
		os.Exit(2)
	}

	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		os.Stderr.WriteString("invalid configuration: " + err.Error() + "\n")
		os.Exit(2)
	}

	log, err := logging.New(cfg.LogLevel, cfg.Development)
	if err != nil {
		os.Stderr.WriteString("failed to build logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Loading model", zap.String("model", cfg.ModelPath), zap.String("labels", cfg.LabelsPath))

	interp, err := engine.Open(cfg.ModelPath, engine.Options{
		NumThreads:  cfg.NumThreads,
		ONNXLibPath: cfg.ONNXLibPath,
	})
	if err != nil {
		log.Fatal("Failed to load model", zap.Error(err))
	}
	defer engine.Shutdown()

	labels, err := model.LoadLabels(cfg.LabelsPath)
	if err != nil {
		interp.Close()
		log.Fatal("Failed to load labels", zap.Error(err))
	}

	var estOpts []estimate.Option
	if cfg.EstimateSeed != nil {
		estOpts = append(estOpts, estimate.WithSeed(*cfg.EstimateSeed))
	}

	modelServer, err := model.NewServer(interp, labels, estimate.New(estOpts...))
	if err != nil {
		interp.Close()
		log.Fatal("Failed to initialize model server", zap.Error(err))
	}
	defer modelServer.Close()

	log.Info("Model loaded",
		zap.Int("classes", modelServer.NumClasses()),
		zap.Int64s("input_shape", interp.Input().Shape),
		zap.Int64s("output_shape", interp.Output().Shape),
		zap.Stringer("layout", modelServer.Geometry().Layout),
	)

	if !cfg.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	m := metrics.New()
	handler := handlers.NewHandler(modelServer, m, log, handlers.WithMaxPixels(cfg.MaxPixels))
	router := handlers.NewRouter(handler, m, log, handlers.RouterOptions{MaxBodyBytes: cfg.MaxBodyBytes})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting PlastyAI API", zap.String("addr", srv.Addr))
		log.Info("Endpoints",
			zap.Strings("routes", []string{"GET /", "GET /health", "POST /classify", "GET /metrics"}))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Received shutdown signal")
	case err := <-errCh:
		log.Error("Server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Error during shutdown", zap.Error(err))
	}
}
