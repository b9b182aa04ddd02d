package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/example/go-wavegen/internal/audio"
	"github.com/example/go-wavegen/internal/runtime/tensor"
	"github.com/example/go-wavegen/internal/safetensors"
	"github.com/example/go-wavegen/internal/wavenet"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func newGenerateCmd() *cobra.Command {
	var noProgress bool

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Run one synthesis session and write WAV output",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := activeCfg

			model, err := loadModel(cfg)
			if err != nil {
				return err
			}

			sampler, err := samplerFor(cfg.Generate.Sampler)
			if err != nil {
				return err
			}

			opts := wavenet.GenerateOptions{
				Sampler:          sampler,
				Seed:             cfg.Generate.Seed,
				RandSampleChance: cfg.Generate.RandSampleChance,
			}

			batch := cfg.Generate.BatchSize

			if cfg.Paths.FeaturesPath != "" {
				feats, err := loadFeatures(cfg.Paths.FeaturesPath)
				if err != nil {
					return err
				}
				opts.Features = feats
				batch = feats.Shape()[0]
			} else {
				opts.BatchSize = cfg.Generate.BatchSize
				opts.Length = cfg.Generate.Length
			}

			if cfg.Paths.TeacherAudioPath != "" {
				teacher, err := loadTeacherAudio(cfg.Paths.TeacherAudioPath, cfg.Generate.SampleRate, model.Classes(), batch)
				if err != nil {
					return err
				}
				opts.TeacherAudio = teacher
			}

			if !noProgress {
				bar := progressbar.NewOptions(-1,
					progressbar.OptionSetDescription("Generating"),
					progressbar.OptionSetWidth(40),
					progressbar.OptionShowCount(),
					progressbar.OptionShowIts(),
				)
				opts.Progress = func(step, total int64) {
					bar.ChangeMax64(total)
					_ = bar.Set64(step)
				}
			}

			result, err := model.Generate(cmd.Context(), opts)
			if err != nil {
				return err
			}

			if !noProgress {
				fmt.Fprintln(os.Stderr)
			}

			slog.Info("generation finished",
				"batch", len(result.Audio),
				"samples", len(result.Audio[0]),
				"elapsed", result.Elapsed)

			return writeOutputs(cfg.Paths.OutputPath, result, cfg.Generate.SampleRate, cfg.Generate.FadeOutMs, cfg.Generate.Normalize)
		},
	}

	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable the progress bar")

	return cmd
}

// loadFeatures reads conditioning features from a safetensors file,
// normalizing [C, F] to a batch of one.
func loadFeatures(path string) (*tensor.Tensor, error) {
	st, err := safetensors.LoadFeatures(path)
	if err != nil {
		return nil, err
	}

	return tensor.New(st.Data, st.Shape)
}

// loadTeacherAudio quantizes a ground-truth WAV into per-batch step inputs.
// Every batch element consumes the same teacher sequence.
func loadTeacherAudio(path string, sampleRate int, classes, batch int64) ([][]int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading teacher audio: %w", err)
	}

	samples, err := audio.DecodeWAV(data, sampleRate)
	if err != nil {
		return nil, err
	}

	encoded := audio.MuLawEncode(samples, classes)

	out := make([][]int64, batch)
	for i := range out {
		out[i] = encoded
	}

	return out, nil
}

func writeOutputs(base string, result *wavenet.Result, sampleRate int, fadeOutMs float64, normalize bool) error {
	for bi, samples := range result.Audio {
		var hooks []audio.Hook
		if normalize {
			hooks = append(hooks, audio.PeakNormalize)
		}
		if fadeOutMs > 0 {
			hooks = append(hooks, func(s []float32) []float32 {
				return audio.FadeOut(s, sampleRate, fadeOutMs)
			})
		}
		samples = audio.ApplyHooks(samples, hooks...)

		data, err := audio.EncodeWAV(samples, sampleRate)
		if err != nil {
			return err
		}

		path := outputPath(base, bi, len(result.Audio))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}

		slog.Info("wrote output", "path", path, "samples", len(samples))
	}

	return nil
}

// outputPath suffixes the batch index when more than one element was
// generated: out.wav -> out-1.wav.
func outputPath(base string, index, batch int) string {
	if batch == 1 {
		return base
	}

	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	return fmt.Sprintf("%s-%d%s", stem, index, ext)
}
