package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/randevubu/randevubu-server/internal/app"
	"github.com/randevubu/randevubu-server/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd builds the randevubu command tree.
func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "randevubu",
		Short:         "Appointment booking API with a cache-aside layer",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration directory or file")

	load := func() (*app.Config, *zap.Logger, error) {
		return prepare(configPath)
	}

	root.AddCommand(newServeCmd(load))
	root.AddCommand(newCacheCmd(load))
	root.AddCommand(newUserCmd(load))
	return root
}

type configLoader func() (*app.Config, *zap.Logger, error)

// prepare loads configuration, fills runtime defaults and configures logging.
func prepare(configPath string) (*app.Config, *zap.Logger, error) {
	cfg, err := loadApplicationConfig(configPath)
	if err != nil {
		return nil, nil, err
	}

	generated, err := app.ApplyRuntimeDefaults(cfg)
	if err != nil {
		return nil, nil, err
	}

	if err := app.ConfigureLogging(cfg.Server); err != nil {
		return nil, nil, fmt.Errorf("configure logging: %w", err)
	}

	log := logger.WithModule("bootstrap")
	for key := range generated {
		log.Warn("generated runtime secret; tokens will not survive a restart", zap.String("key", key))
	}
	return cfg, log, nil
}

func loadApplicationConfig(path string) (*app.Config, error) {
	switch {
	case strings.TrimSpace(path) == "":
		return app.LoadConfig()
	default:
		info, err := os.Stat(path)
		if err == nil {
			if info.IsDir() {
				return app.LoadConfig(path)
			}
			return app.LoadConfig(filepath.Dir(path))
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config path %q does not exist", path)
		}
		return nil, fmt.Errorf("stat config path: %w", err)
	}
}
