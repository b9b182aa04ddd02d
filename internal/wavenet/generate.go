package wavenet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/example/go-wavegen/internal/audio"
	"github.com/example/go-wavegen/internal/runtime/tensor"
)

// GenerateOptions configure one autoregressive session. Exactly one target
// length source must be supplied: conditioning features (length is derived as
// frames times the upsample window) or an explicit BatchSize/Length pair for
// unconditional generation.
type GenerateOptions struct {
	// Features is frame-rate conditioning [B, CondChannels, F]. Nil for
	// unconditional generation.
	Features *tensor.Tensor
	// BatchSize and Length define the output shape when Features is nil.
	BatchSize int64
	Length    int64
	// TeacherAudio supplies ground-truth class indices consumed as step
	// inputs while unexhausted. One slice per batch element; may be shorter
	// than the target length.
	TeacherAudio [][]int64
	// RandSampleChance substitutes the step input with a uniformly random
	// class at this probability, drawn fresh per step.
	RandSampleChance float64
	// Sampler picks the next class from logits. Defaults to
	// CategoricalSampler.
	Sampler Sampler
	// Seed feeds the session rng. Sessions with equal seeds, inputs and a
	// deterministic sampler reproduce byte-identical buffers.
	Seed int64
	// Progress, when set, is called once per completed timestep.
	Progress func(step, total int64)
}

// Result holds one finished session. Classes and Logits keep the raw
// buffers: index 0 is the fixed start symbol, index t+1 holds the sample and
// logits produced at step t.
type Result struct {
	// Audio is the mu-law decoded output, exactly the target length per
	// batch element.
	Audio [][]float32
	// Classes is the quantized output buffer, target length + 1 per batch
	// element.
	Classes [][]int64
	// Logits is [B, classes, length+1]; the start-symbol column is zero.
	Logits *tensor.Tensor
	// Elapsed is wall time spent inside the step loop.
	Elapsed time.Duration
}

// Generate runs the sample-by-sample decoding loop. The recurrence is
// strictly sequential across time, so one session holds the model's streaming
// caches exclusively; concurrent calls serialize. Cancellation is honored
// only between timesteps, leaving cache state consistent.
func (m *Model) Generate(ctx context.Context, opts GenerateOptions) (*Result, error) {
	sampler := opts.Sampler
	if sampler == nil {
		sampler = CategoricalSampler{}
	}

	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()

	m.ResetState()

	cond, batch, length, err := m.sessionConditioning(opts)
	if err != nil {
		return nil, err
	}

	if len(opts.TeacherAudio) > 0 && int64(len(opts.TeacherAudio)) != batch {
		return nil, fmt.Errorf("wavenet: teacher audio batch %d, session batch %d", len(opts.TeacherAudio), batch)
	}

	classes := m.opts.Classes
	startSymbol := audio.MuLawEncodeSample(0, classes)

	// Buffers carry length+1 entries: the start symbol at index 0, one
	// generated entry per step after it.
	outClasses := make([][]int64, batch)
	for bi := range outClasses {
		outClasses[bi] = make([]int64, length+1)
		outClasses[bi][0] = startSymbol
	}

	logitsBuf, err := tensor.Zeros([]int64{batch, classes, length + 1})
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	stepInput := make([]int64, batch)
	steps := length - 1

	slog.Debug("generation session start",
		"batch", batch, "length", length, "conditional", opts.Features != nil)

	start := time.Now()

	for t := int64(0); t < steps; t++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("wavenet: generation canceled at step %d: %w", t, err)
		}

		for bi := range stepInput {
			teacher := opts.TeacherAudio
			if len(teacher) > 0 && t < int64(len(teacher[bi])) {
				stepInput[bi] = teacher[bi][t]
			} else {
				stepInput[bi] = outClasses[bi][t]
			}

			if opts.RandSampleChance > 0 && rng.Float64() < opts.RandSampleChance {
				stepInput[bi] = rng.Int63n(classes)
			}
		}

		logits, err := m.inferStep(stepInput, cond, t)
		if err != nil {
			return nil, fmt.Errorf("wavenet: step %d: %w", t, err)
		}

		picked, err := sampler.Sample(logits, rng)
		if err != nil {
			return nil, fmt.Errorf("wavenet: step %d: %w", t, err)
		}

		src := logits.RawData()
		dst := logitsBuf.RawData()

		for bi := range batch {
			outClasses[bi][t+1] = picked[bi]

			for ci := range classes {
				dst[((bi*classes)+ci)*(length+1)+t+1] = src[bi*classes+ci]
			}
		}

		if opts.Progress != nil {
			opts.Progress(t+1, steps)
		}
	}

	elapsed := time.Since(start)

	out := make([][]float32, batch)
	for bi := range out {
		out[bi] = make([]float32, length)
		for i := range out[bi] {
			out[bi][i] = audio.MuLawDecodeSample(outClasses[bi][i], classes)
		}
	}

	slog.Debug("generation session done", "steps", steps, "elapsed", elapsed)

	return &Result{Audio: out, Classes: outClasses, Logits: logitsBuf, Elapsed: elapsed}, nil
}

// sessionConditioning resolves the single source of truth for the session
// shape: conditioning features when present, the explicit BatchSize/Length
// pair otherwise.
func (m *Model) sessionConditioning(opts GenerateOptions) (*Conditioning, int64, int64, error) {
	if opts.Features != nil {
		if opts.Length > 0 {
			return nil, 0, 0, errors.New("wavenet: supply conditioning features or an explicit length, not both")
		}

		cond, err := m.PrepareConditioning(opts.Features)
		if err != nil {
			return nil, 0, 0, err
		}

		batch := opts.Features.Shape()[0]

		return cond, batch, cond.Length(), nil
	}

	if opts.BatchSize <= 0 || opts.Length <= 0 {
		return nil, 0, 0, errors.New("wavenet: unconditional generation requires positive batch size and length")
	}

	if opts.Length < 2 {
		return nil, 0, 0, fmt.Errorf("wavenet: target length must be at least 2, got %d", opts.Length)
	}

	cond, err := m.ZeroConditioning(opts.BatchSize, opts.Length)
	if err != nil {
		return nil, 0, 0, err
	}

	return cond, opts.BatchSize, opts.Length, nil
}
