package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/policyrag/internal/appctx"
	"github.com/xxxsen/policyrag/internal/config"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:          "policyrag",
		Short:        "policy document question answering backend",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json")

	load := func(ctx context.Context) (*appctx.App, error) {
		if configPath == "" {
			return nil, fmt.Errorf("--config is required")
		}
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		logger.Init(
			cfg.LogConfig.File,
			cfg.LogConfig.Level,
			int(cfg.LogConfig.FileCount),
			int(cfg.LogConfig.FileSize),
			int(cfg.LogConfig.KeepDays),
			cfg.LogConfig.Console,
		)
		logutil.GetLogger(ctx).Info("config loaded", zap.String("config", configPath))
		return appctx.New(ctx, cfg)
	}

	rootCmd.AddCommand(newRunCmd(load), newWorkerCmd(load), newIngestCmd(load))

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

type loader func(ctx context.Context) (*appctx.App, error)
