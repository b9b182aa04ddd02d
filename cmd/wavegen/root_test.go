package main

import (
	"log/slog"
	"testing"

	"github.com/example/go-wavegen/internal/config"
)

func TestNewRootCmd_HasExpectedSubcommands(t *testing.T) {
	root := NewRootCmd()

	want := []string{"generate", "export", "bench"}
	for _, name := range want {
		found := false

		for _, sub := range root.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}

		if !found {
			t.Errorf("expected subcommand %q not found in root", name)
		}
	}
}

func TestNewRootCmd_HasPersistentConfigFlag(t *testing.T) {
	root := NewRootCmd()
	if root.PersistentFlags().Lookup("config") == nil {
		t.Error("expected --config persistent flag to be registered")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"info", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"WARN", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"  Error  ", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		got, err := parseLogLevel(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseLogLevel(%q): expected error", tt.input)
			}
			continue
		}

		if err != nil {
			t.Errorf("parseLogLevel(%q) unexpected error: %v", tt.input, err)
			continue
		}

		if got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v; want %v", tt.input, got, tt.want)
		}
	}
}

func TestSamplerFor(t *testing.T) {
	for _, name := range []string{"", "categorical", "greedy", "GREEDY", " categorical "} {
		if _, err := samplerFor(name); err != nil {
			t.Errorf("samplerFor(%q) unexpected error: %v", name, err)
		}
	}

	if _, err := samplerFor("beam"); err == nil {
		t.Error("samplerFor(\"beam\"): expected error")
	}
}

func TestModelOptions(t *testing.T) {
	cfg := config.DefaultConfig()

	opts, err := modelOptions(cfg)
	if err != nil {
		t.Fatalf("modelOptions error: %v", err)
	}

	if opts.Classes != cfg.Model.Classes {
		t.Errorf("Classes = %d; want %d", opts.Classes, cfg.Model.Classes)
	}

	if opts.MaxDilation != cfg.Model.MaxDilation {
		t.Errorf("MaxDilation = %d; want %d", opts.MaxDilation, cfg.Model.MaxDilation)
	}

	cfg.Model.DirectCond = true
	cfg.Model.CondSoftsign = true
	cfg.Model.ContinuousInput = true
	cfg.Model.CondChannels = 2 * cfg.Model.ResidualChannels
	cfg.Model.ResDropout = 0.2
	cfg.Model.HeadDropout = 0.4

	opts, err = modelOptions(cfg)
	if err != nil {
		t.Fatalf("modelOptions error: %v", err)
	}

	if !opts.DirectCond || !opts.CondSoftsign || !opts.ContinuousInput {
		t.Errorf("conditioning/input flags not carried: %+v", opts)
	}

	if opts.ResDropout != 0.2 || opts.HeadDropout != 0.4 {
		t.Errorf("dropout = %f/%f; want 0.2/0.4", opts.ResDropout, opts.HeadDropout)
	}

	cfg.Model.MaxDilation = 0
	if _, err := modelOptions(cfg); err == nil {
		t.Error("expected validation error for max dilation 0")
	}
}

func TestLoadModel_MissingCheckpointPath(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Paths.CheckpointPath = ""

	if _, err := loadModel(cfg); err == nil {
		t.Fatal("expected error for empty checkpoint path")
	}
}

func TestOutputPath(t *testing.T) {
	tests := []struct {
		base  string
		index int
		batch int
		want  string
	}{
		{"out.wav", 0, 1, "out.wav"},
		{"out.wav", 0, 3, "out-0.wav"},
		{"out.wav", 2, 3, "out-2.wav"},
		{"dir/run.wav", 1, 2, "dir/run-1.wav"},
		{"noext", 1, 2, "noext-1"},
	}

	for _, tt := range tests {
		if got := outputPath(tt.base, tt.index, tt.batch); got != tt.want {
			t.Errorf("outputPath(%q, %d, %d) = %q; want %q", tt.base, tt.index, tt.batch, got, tt.want)
		}
	}
}
