package wavenet

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/example/go-wavegen/internal/runtime/ops"
)

func streamTolerance(t *testing.T, kernel string) float64 {
	t.Helper()

	tol, err := ops.KernelTolerance(kernel)
	if err != nil {
		t.Fatalf("tolerance %q: %v", kernel, err)
	}

	return tol.Abs
}

func TestCausalConvBatchStreamEquivalence(t *testing.T) {
	tests := []struct {
		name     string
		in, out  int64
		kernel   int64
		dilation int64
		softsign bool
	}{
		{"k2_d1", 3, 4, 2, 1, false},
		{"k2_d4", 3, 4, 2, 4, false},
		{"k2_d8_softsign", 2, 2, 2, 8, true},
		{"k1", 5, 3, 1, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rng := rand.New(rand.NewSource(7))
			conv := randConv(t, rng, tt.out, tt.in, tt.kernel, CausalConvSpec{
				Dilation: tt.dilation,
				Causal:   true,
				Softsign: tt.softsign,
			})

			const batch, length = 2, 24
			input := randTensor(t, rng, batch, tt.in, length)

			want, err := conv.Forward(input)
			if err != nil {
				t.Fatalf("forward: %v", err)
			}

			got := streamOverSequence(t, input, conv.ForwardStep)

			if !approxEqual(got.Data(), want.Data(), streamTolerance(t, "conv1d_stream")) {
				t.Fatalf("stream output diverges from batch output")
			}
		})
	}
}

func TestCausalConvStreamFromColdCacheMatchesZeroHistory(t *testing.T) {
	// The lazily initialized cache stands in for the causal left padding:
	// the very first step must see zero history.
	rng := rand.New(rand.NewSource(3))
	conv := randConv(t, rng, 2, 2, 2, CausalConvSpec{Dilation: 4, Causal: true})

	frame := randTensor(t, rng, 1, 2, 1)

	got, err := conv.ForwardStep(frame)
	if err != nil {
		t.Fatalf("step: %v", err)
	}

	want, err := conv.Forward(frame)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}

	if !approxEqual(got.Data(), want.Data(), 0) {
		t.Fatalf("first step = %v, batch over one frame = %v", got.Data(), want.Data())
	}
}

func TestCausalConvResetState(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	conv := randConv(t, rng, 2, 2, 2, CausalConvSpec{Dilation: 2, Causal: true})

	input := randTensor(t, rng, 1, 2, 6)

	first := streamOverSequence(t, input, conv.ForwardStep)

	conv.ResetState()

	second := streamOverSequence(t, input, conv.ForwardStep)

	if !approxEqual(first.Data(), second.Data(), 0) {
		t.Fatal("reset session does not reproduce the first session")
	}
}

func TestCausalConvStepReducesTrailingWindow(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	conv := randConv(t, rng, 3, 2, 1, CausalConvSpec{})

	seq := randTensor(t, rng, 1, 2, 5)

	last, err := seq.Narrow(2, 4, 1)
	if err != nil {
		t.Fatalf("narrow: %v", err)
	}

	fromSeq, err := conv.ForwardStep(seq)
	if err != nil {
		t.Fatalf("step over window: %v", err)
	}

	fromLast, err := conv.ForwardStep(last)
	if err != nil {
		t.Fatalf("step over frame: %v", err)
	}

	if !approxEqual(fromSeq.Data(), fromLast.Data(), 0) {
		t.Fatal("step over a window must reduce to its last frame")
	}
}

func TestCausalConvStreamingUnsupported(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	conv := randConv(t, rng, 2, 2, 2, CausalConvSpec{Dilation: 1}) // non-causal k=2

	_, err := conv.ForwardStep(randTensor(t, rng, 1, 2, 1))
	if !errors.Is(err, ErrStreamingUnsupported) {
		t.Fatalf("expected ErrStreamingUnsupported, got %v", err)
	}
}

func TestCausalConvBatchChangeMidSession(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	conv := randConv(t, rng, 2, 2, 2, CausalConvSpec{Dilation: 1, Causal: true})

	if _, err := conv.ForwardStep(randTensor(t, rng, 1, 2, 1)); err != nil {
		t.Fatalf("step: %v", err)
	}

	if _, err := conv.ForwardStep(randTensor(t, rng, 2, 2, 1)); err == nil {
		t.Fatal("expected error when batch size changes mid-session")
	}
}

func TestNewCausalConvValidation(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	if _, err := NewCausalConv(nil, nil, CausalConvSpec{}); err == nil {
		t.Fatal("expected error for nil weight")
	}

	if _, err := NewCausalConv(randTensor(t, rng, 2, 2, 3), nil, CausalConvSpec{}); err == nil {
		t.Fatal("expected error for kernel size 3")
	}

	w := randTensor(t, rng, 2, 2, 2)
	badBias := randTensor(t, rng, 3)

	if _, err := NewCausalConv(w, badBias, CausalConvSpec{}); err == nil {
		t.Fatal("expected error for bias length mismatch")
	}
}

func TestCausalConvForwardPreservesLength(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	conv := randConv(t, rng, 1, 1, 2, CausalConvSpec{Dilation: 8, Causal: true})

	input := randTensor(t, rng, 1, 1, 10)

	out, err := conv.Forward(input)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}

	if got := out.Shape()[2]; got != 10 {
		t.Fatalf("causal forward length = %d, want 10", got)
	}
}
