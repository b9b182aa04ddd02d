// Package testutil provides shared fixture helpers for tests that need a
// loadable checkpoint on disk.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/example/go-wavegen/internal/safetensors"
	"github.com/example/go-wavegen/internal/wavenet"
)

// TinyModelOptions returns an architecture small enough for fast tests while
// still exercising dilation cycling, skip connections and conditioning.
func TinyModelOptions() wavenet.Options {
	return wavenet.Options{
		Classes:          16,
		ResidualChannels: 4,
		SkipChannels:     6,
		HiddenChannels:   8,
		Blocks:           5,
		MaxDilation:      4,
		UseSkip:          true,
		CondChannels:     3,
		UpsampleWindow:   4,
		Gain:             0.9,
	}
}

// WriteTempCheckpoint writes a random but loadable checkpoint for the given
// architecture into the test's temp dir and returns its path.
func WriteTempCheckpoint(tb testing.TB, opts wavenet.Options, seed int64) string {
	tb.Helper()

	tensors, err := wavenet.RandomCheckpoint(opts, seed)
	if err != nil {
		tb.Fatalf("building random checkpoint: %v", err)
	}

	path := filepath.Join(tb.TempDir(), "model.safetensors")
	if err := safetensors.WriteFile(path, tensors); err != nil {
		tb.Fatalf("writing checkpoint: %v", err)
	}

	return path
}

// LoadTempModel builds a model from a fresh random checkpoint.
func LoadTempModel(tb testing.TB, opts wavenet.Options, seed int64) *wavenet.Model {
	tb.Helper()

	m, err := wavenet.Load(WriteTempCheckpoint(tb, opts, seed), opts)
	if err != nil {
		tb.Fatalf("loading model: %v", err)
	}

	return m
}
