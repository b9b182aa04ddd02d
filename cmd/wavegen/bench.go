package main

import (
	"fmt"
	"math/rand"
	"os"
	"text/tabwriter"
	"time"

	"github.com/example/go-wavegen/internal/safetensors"
	"github.com/example/go-wavegen/internal/wavenet"
	"github.com/spf13/cobra"
)

func newBenchCmd() *cobra.Command {
	var (
		length     int64
		runs       int
		randomInit bool
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark batch scoring and streaming generation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if runs < 1 {
				return fmt.Errorf("--runs must be at least 1")
			}
			if length < 2 {
				return fmt.Errorf("--length must be at least 2")
			}

			model, err := benchModel(randomInit)
			if err != nil {
				return err
			}

			classes := model.Classes()
			rng := rand.New(rand.NewSource(1))

			seq := make([][]int64, 1)
			seq[0] = make([]int64, length)
			for i := range seq[0] {
				seq[0][i] = rng.Int63n(classes)
			}

			var batchTotal time.Duration
			for range runs {
				start := time.Now()
				if _, err := model.Forward(seq, nil, false, nil); err != nil {
					return err
				}
				batchTotal += time.Since(start)
			}

			var streamTotal time.Duration
			for range runs {
				result, err := model.Generate(cmd.Context(), wavenet.GenerateOptions{
					BatchSize: 1,
					Length:    length,
					Sampler:   wavenet.GreedySampler{},
				})
				if err != nil {
					return err
				}
				streamTotal += result.Elapsed
			}

			batchMean := batchTotal / time.Duration(runs)
			streamMean := streamTotal / time.Duration(runs)

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "mode\tsamples\tmean\tsamples/s\n")
			fmt.Fprintf(w, "batch\t%d\t%s\t%.0f\n", length, batchMean, float64(length)/batchMean.Seconds())
			fmt.Fprintf(w, "stream\t%d\t%s\t%.0f\n", length, streamMean, float64(length)/streamMean.Seconds())

			return w.Flush()
		},
	}

	cmd.Flags().Int64Var(&length, "length", 4000, "Sequence length in samples")
	cmd.Flags().IntVar(&runs, "runs", 3, "Timed repetitions per mode")
	cmd.Flags().BoolVar(&randomInit, "random", false, "Use random weights instead of the configured checkpoint")

	return cmd
}

// benchModel loads the configured checkpoint, or builds a random one in
// memory when --random is set or no checkpoint is configured.
func benchModel(randomInit bool) (*wavenet.Model, error) {
	cfg := activeCfg

	if !randomInit && cfg.Paths.CheckpointPath != "" {
		if _, err := os.Stat(cfg.Paths.CheckpointPath); err == nil {
			return loadModel(cfg)
		}
	}

	opts, err := modelOptions(cfg)
	if err != nil {
		return nil, err
	}
	// Unconditional keeps the bench focused on the stack itself.
	opts.CondChannels = 0

	tensors, err := wavenet.RandomCheckpoint(opts, 1)
	if err != nil {
		return nil, err
	}

	data, err := safetensors.EncodeTensors(tensors)
	if err != nil {
		return nil, err
	}

	store, err := safetensors.OpenStoreFromBytes(data)
	if err != nil {
		return nil, err
	}

	return wavenet.NewModel(opts, wavenet.NewVarBuilder(store))
}
