package wavenet_test

import (
	"testing"

	"github.com/example/go-wavegen/internal/runtime/tensor"
)

func mustTensorExt(tb testing.TB, data []float32, shape []int64) *tensor.Tensor {
	tb.Helper()

	out, err := tensor.New(data, shape)
	if err != nil {
		tb.Fatalf("building tensor %v: %v", shape, err)
	}

	return out
}
