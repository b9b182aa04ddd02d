package wavenet

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/example/go-wavegen/internal/runtime/tensor"
)

func tanhf(x float32) float32 { return float32(math.Tanh(float64(x))) }

func sigmoidf(x float32) float32 {
	return float32(1.0 / (1.0 + math.Exp(-float64(x))))
}

// softsignInPlace applies x/(1+|x|) element-wise.
func softsignInPlace(t *tensor.Tensor) {
	data := t.RawData()
	for i, v := range data {
		if v < 0 {
			data[i] = v / (1 - v)
		} else {
			data[i] = v / (1 + v)
		}
	}
}

func reluInPlace(t *tensor.Tensor) {
	data := t.RawData()
	for i, v := range data {
		if v < 0 {
			data[i] = 0
		}
	}
}

func scaleInPlace(t *tensor.Tensor, gain float32) {
	data := t.RawData()
	for i := range data {
		data[i] *= gain
	}
}

func addSameShape(a, b *tensor.Tensor) (*tensor.Tensor, error) {
	aShape := a.Shape()
	bShape := b.Shape()

	if len(aShape) != len(bShape) {
		return nil, fmt.Errorf("wavenet: add shape mismatch %v vs %v", aShape, bShape)
	}

	for i := range aShape {
		if aShape[i] != bShape[i] {
			return nil, fmt.Errorf("wavenet: add shape mismatch %v vs %v", aShape, bShape)
		}
	}

	out := a.Clone()
	tensor.Axpy(out.RawData(), 1, b.RawData())

	return out, nil
}

// applyDropout returns an inverted-dropout copy of x: elements survive with
// probability 1-p and are scaled by 1/(1-p). Training-time only.
func applyDropout(x *tensor.Tensor, p float32, rng *rand.Rand) *tensor.Tensor {
	if p <= 0 || rng == nil {
		return x
	}

	out := x.Clone()
	data := out.RawData()
	scale := 1 / (1 - p)

	for i := range data {
		if rng.Float32() < p {
			data[i] = 0
		} else {
			data[i] *= scale
		}
	}

	return out
}
