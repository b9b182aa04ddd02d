package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/example/go-wavegen/internal/config"
	"github.com/example/go-wavegen/internal/runtime/ops"
	"github.com/example/go-wavegen/internal/wavenet"
	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	activeCfg config.Config
)

func NewRootCmd() *cobra.Command {
	defaults := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "wavegen",
		Short: "Sample-by-sample neural audio synthesis",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load(config.LoadOptions{
				Cmd:        cmd,
				ConfigFile: cfgFile,
				Defaults:   defaults,
			})
			if err != nil {
				return err
			}
			activeCfg = loaded
			setupLogger(loaded.LogLevel)
			ops.SetConvWorkers(loaded.Runtime.ConvWorkers)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Optional config file (yaml|toml|json)")
	config.RegisterFlags(cmd.PersistentFlags(), defaults)

	cmd.AddCommand(newGenerateCmd())
	cmd.AddCommand(newExportCmd())
	cmd.AddCommand(newBenchCmd())

	return cmd
}

// setupLogger configures the process-wide slog default logger.
func setupLogger(levelStr string) {
	lvl, err := parseLogLevel(levelStr)
	if err != nil {
		lvl = slog.LevelInfo
	}
	h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(h))
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

func modelOptions(cfg config.Config) (wavenet.Options, error) {
	if err := cfg.Model.Validate(); err != nil {
		return wavenet.Options{}, err
	}

	return wavenet.Options{
		Classes:          cfg.Model.Classes,
		ResidualChannels: cfg.Model.ResidualChannels,
		SkipChannels:     cfg.Model.SkipChannels,
		HiddenChannels:   cfg.Model.HiddenChannels,
		Blocks:           cfg.Model.Blocks,
		MaxDilation:      cfg.Model.MaxDilation,
		UseSkip:          cfg.Model.UseSkip,
		CondChannels:     cfg.Model.CondChannels,
		PerBlockCond:     cfg.Model.PerBlockCond,
		DirectCond:       cfg.Model.DirectCond,
		CondSoftsign:     cfg.Model.CondSoftsign,
		UpsampleWindow:   cfg.Model.UpsampleWindow,
		UpsampleKernel:   cfg.Model.UpsampleKernel,
		Gain:             float32(cfg.Model.Gain),
		ResDropout:       float32(cfg.Model.ResDropout),
		HeadDropout:      float32(cfg.Model.HeadDropout),
		Softsign:         cfg.Model.Softsign,
		ContinuousInput:  cfg.Model.ContinuousInput,
	}, nil
}

func loadModel(cfg config.Config) (*wavenet.Model, error) {
	opts, err := modelOptions(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Paths.CheckpointPath == "" {
		return nil, fmt.Errorf("checkpoint path not configured")
	}

	return wavenet.Load(cfg.Paths.CheckpointPath, opts)
}

func samplerFor(name string) (wavenet.Sampler, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "categorical":
		return wavenet.CategoricalSampler{}, nil
	case "greedy":
		return wavenet.GreedySampler{}, nil
	default:
		return nil, fmt.Errorf("unknown sampler %q (want categorical or greedy)", name)
	}
}
