package wavenet

import (
	"math"
	"math/rand"
	"testing"

	"github.com/example/go-wavegen/internal/runtime/tensor"
)

func mustTensor(t *testing.T, data []float32, shape []int64) *tensor.Tensor {
	t.Helper()

	tt, err := tensor.New(data, shape)
	if err != nil {
		t.Fatalf("tensor.New(%v): %v", shape, err)
	}

	return tt
}

// randTensor builds a deterministic pseudo-random tensor in [-0.5, 0.5).
func randTensor(t *testing.T, rng *rand.Rand, shape ...int64) *tensor.Tensor {
	t.Helper()

	n := int64(1)
	for _, d := range shape {
		n *= d
	}

	data := make([]float32, n)
	for i := range data {
		data[i] = rng.Float32() - 0.5
	}

	return mustTensor(t, data, shape)
}

func randConv(t *testing.T, rng *rand.Rand, out, in, k int64, spec CausalConvSpec) *CausalConv {
	t.Helper()

	conv, err := NewCausalConv(randTensor(t, rng, out, in, k), randTensor(t, rng, out), spec)
	if err != nil {
		t.Fatalf("NewCausalConv: %v", err)
	}

	return conv
}

func approxEqual(got, want []float32, tol float64) bool {
	if len(got) != len(want) {
		return false
	}

	for i := range got {
		if math.Abs(float64(got[i]-want[i])) > tol {
			return false
		}
	}

	return true
}

// streamOverSequence runs fn once per timestep of x [B, C, T] and concatenates
// the [B, C', 1] results along time.
func streamOverSequence(t *testing.T, x *tensor.Tensor, fn func(frame *tensor.Tensor) (*tensor.Tensor, error)) *tensor.Tensor {
	t.Helper()

	length := x.Shape()[2]
	frames := make([]*tensor.Tensor, 0, length)

	for i := range length {
		frame, err := x.Narrow(2, i, 1)
		if err != nil {
			t.Fatalf("narrow step %d: %v", i, err)
		}

		out, err := fn(frame)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}

		frames = append(frames, out)
	}

	out, err := tensor.Concat(frames, 2)
	if err != nil {
		t.Fatalf("concat stream outputs: %v", err)
	}

	return out
}
