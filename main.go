package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mswebapp/config"
	qhttp "mswebapp/http"
	"mswebapp/logger"
	"mswebapp/ml"
	"mswebapp/monitoring"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "mswebapp",
	Short:         "Serve predictions from a trained two-feature model",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), configPath)
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML config file")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, path string) error {
	server, log, err := setup(ctx, path)
	if err != nil {
		return err
	}
	defer log.Sync()

	// 4. Start HTTP server
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// 5. Handle graceful shutdown
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
		return err
	}
	log.Info("exiting")
	return nil
}

// setup builds everything run serves; it does not listen.
func setup(ctx context.Context, path string) (*qhttp.Server, *zap.Logger, error) {
	// 1. Load config
	cfg, err := config.Load(config.Resolve(path))
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(logger.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
		Debug:      cfg.Http.Debug,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}

	// 2. Load model
	model, err := ml.LoadModel(cfg.ML.ModelType, cfg.ML.ModelPath)
	if err != nil {
		log.Error("failed to load model", zap.Error(err))
		return nil, nil, err
	}
	if n := model.NumFeatures(); n != len(qhttp.FeatureNames) {
		err := fmt.Errorf("model %s expects %d features, form provides %d (%v)",
			cfg.ML.ModelPath, n, len(qhttp.FeatureNames), qhttp.FeatureNames)
		log.Error("failed to load model", zap.Error(err))
		return nil, nil, err
	}
	qhttp.SetModel(model, cfg.ML.ModelType)
	log.Info("model loaded", zap.String("type", cfg.ML.ModelType), zap.String("path", cfg.ML.ModelPath))

	// 3. Templates
	pages, err := qhttp.LoadTemplates(cfg.Templates.Dir, log)
	if err != nil {
		return nil, nil, fmt.Errorf("load templates: %w", err)
	}
	if cfg.Http.Debug && cfg.Templates.Dir != "" {
		if err := pages.Watch(ctx); err != nil {
			log.Warn("template hot reload disabled", zap.Error(err))
		} else {
			log.Info("watching templates", zap.String("dir", cfg.Templates.Dir))
		}
	}

	server := qhttp.NewServer(qhttp.ServerConfig{
		Port:           cfg.Http.Port,
		Timeout:        cfg.Http.Timeout,
		AllowedOrigins: cfg.Http.AllowedOrigins,
		Logger:         log,
		Metrics:        monitoring.NewMetrics(),
		Templates:      pages,
	})
	return server, log, nil
}
