package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cli "github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Brownie44l1/veggie-api/internal/config"
	"github.com/Brownie44l1/veggie-api/internal/handlers"
	"github.com/Brownie44l1/veggie-api/internal/metrics"
	"github.com/Brownie44l1/veggie-api/internal/model"
	"github.com/Brownie44l1/veggie-api/internal/predict"
	"github.com/Brownie44l1/veggie-api/internal/vocab"
)

func main() {
	defaults := config.Default()

	app := &cli.App{
		Name:    "veggie-api",
		Usage:   "classify vegetable photos over HTTP",
		Version: config.Version,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Value:   defaults.Port,
				EnvVars: []string{"PORT"},
			},
			&cli.StringFlag{
				Name:    "model",
				Value:   defaults.ModelPath,
				EnvVars: []string{"MODEL_PATH"},
			},
			&cli.StringFlag{
				Name:    "onnxruntime-lib",
				Value:   defaults.RuntimeLibPath,
				Usage:   "path to the ONNX Runtime shared library",
				EnvVars: []string{"ONNXRUNTIME_SHARED_LIBRARY_PATH"},
			},
			&cli.IntFlag{
				Name:  "intra-op-threads",
				Value: defaults.IntraOpThreads,
				Usage: "ONNX Runtime intra-op threads (0 = runtime default)",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   defaults.LogLevel,
				EnvVars: []string{"LOG_LEVEL"},
			},
		},
		Action: run,
	}

	app.RunAndExitOnError()
}

func run(cctx *cli.Context) error {
	cfg := config.Config{
		Port:           cctx.Int("port"),
		ModelPath:      cctx.String("model"),
		RuntimeLibPath: cctx.String("onnxruntime-lib"),
		IntraOpThreads: cctx.Int("intra-op-threads"),
		LogLevel:       cctx.String("log-level"),
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	var classifier *model.Classifier
	models := model.NewOnce(func() (model.Model, error) {
		c, err := model.Load(model.Options{
			ModelPath:      cfg.ModelPath,
			RuntimeLibPath: cfg.RuntimeLibPath,
			IntraOpThreads: cfg.IntraOpThreads,
			ImageSize:      config.ImageSize,
			Channels:       config.Channels,
			NumClasses:     vocab.Size,
		}, logger)
		if err != nil {
			return nil, err
		}
		classifier = c
		return c, nil
	})

	// A model that cannot load is fatal; nothing is served without it.
	if _, err := models.Load(); err != nil {
		return fmt.Errorf("failed to initialize model: %w", err)
	}
	metrics.ModelLoaded.Set(1)
	defer func() {
		if err := classifier.Close(); err != nil {
			logger.Warn("failed to close model session", zap.Error(err))
		}
		if err := model.ShutdownRuntime(); err != nil {
			logger.Warn("failed to shut down onnx runtime", zap.Error(err))
		}
	}()

	handler := handlers.NewHandler(predict.New(models, logger), logger)
	e := handlers.NewRouter(handler, logger)
	e.Server.ReadTimeout = 30 * time.Second
	e.Server.WriteTimeout = 60 * time.Second

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("addr", cfg.Addr()),
			zap.Strings("classes", vocab.Labels()),
		)
		errCh <- e.Start(cfg.Addr())
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	var cfg zap.Config
	if lvl == zapcore.DebugLevel {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
