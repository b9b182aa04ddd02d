package wavenet

import (
	"fmt"
	"math/rand"

	"github.com/example/go-wavegen/internal/runtime/tensor"
)

// Sampler turns a logits frame [B, classes, 1] into one class index per batch
// element. Implementations must not retain the logits tensor.
type Sampler interface {
	Sample(logits *tensor.Tensor, rng *rand.Rand) ([]int64, error)
}

// CategoricalSampler draws from the softmax distribution over classes via
// inverse-CDF lookup. One uniform draw is consumed per batch element, so a
// fixed seed reproduces the same sequence for a fixed batch size.
type CategoricalSampler struct{}

func (CategoricalSampler) Sample(logits *tensor.Tensor, rng *rand.Rand) ([]int64, error) {
	shape := logits.Shape()
	if len(shape) != 3 || shape[2] != 1 {
		return nil, fmt.Errorf("wavenet: sampler expects [B, classes, 1], got %v", shape)
	}

	probs, err := tensor.Softmax(logits, 1)
	if err != nil {
		return nil, err
	}

	b, classes := shape[0], shape[1]
	data := probs.RawData()
	out := make([]int64, b)

	for bi := range b {
		row := data[bi*classes : (bi+1)*classes]
		u := rng.Float64()

		cdf := 0.0
		picked := classes - 1

		for ci, p := range row {
			cdf += float64(p)
			if u < cdf {
				picked = int64(ci)
				break
			}
		}

		out[bi] = picked
	}

	return out, nil
}

// GreedySampler always picks the arg-max class. It ignores the rng.
type GreedySampler struct{}

func (GreedySampler) Sample(logits *tensor.Tensor, _ *rand.Rand) ([]int64, error) {
	shape := logits.Shape()
	if len(shape) != 3 || shape[2] != 1 {
		return nil, fmt.Errorf("wavenet: sampler expects [B, classes, 1], got %v", shape)
	}

	b, classes := shape[0], shape[1]
	data := logits.RawData()
	out := make([]int64, b)

	for bi := range b {
		row := data[bi*classes : (bi+1)*classes]

		best := int64(0)
		bestVal := row[0]

		for ci := int64(1); ci < classes; ci++ {
			if row[ci] > bestVal {
				best = ci
				bestVal = row[ci]
			}
		}

		out[bi] = best
	}

	return out, nil
}
