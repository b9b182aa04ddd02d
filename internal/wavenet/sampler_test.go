package wavenet

import (
	"math/rand"
	"testing"
)

func TestGreedySampler(t *testing.T) {
	logits := mustTensor(t, []float32{
		0.1, 5, 0.2, // batch 0 -> class 1
		3, 0, -1, // batch 1 -> class 0
	}, []int64{2, 3, 1})

	got, err := GreedySampler{}.Sample(logits, nil)
	if err != nil {
		t.Fatalf("sample: %v", err)
	}

	if got[0] != 1 || got[1] != 0 {
		t.Fatalf("greedy picks = %v, want [1 0]", got)
	}
}

func TestCategoricalSamplerPeaked(t *testing.T) {
	// One class dominates by a huge margin; every draw must pick it.
	logits := mustTensor(t, []float32{-100, 50, -100, -100}, []int64{1, 4, 1})
	rng := rand.New(rand.NewSource(41))

	for range 50 {
		got, err := CategoricalSampler{}.Sample(logits, rng)
		if err != nil {
			t.Fatalf("sample: %v", err)
		}

		if got[0] != 1 {
			t.Fatalf("peaked sample = %d, want 1", got[0])
		}
	}
}

func TestCategoricalSamplerSeeded(t *testing.T) {
	logits := mustTensor(t, []float32{0, 0.5, 1, 0.2}, []int64{1, 4, 1})

	run := func() []int64 {
		rng := rand.New(rand.NewSource(43))
		out := make([]int64, 0, 20)

		for range 20 {
			got, err := CategoricalSampler{}.Sample(logits, rng)
			if err != nil {
				t.Fatalf("sample: %v", err)
			}

			out = append(out, got[0])
		}

		return out
	}

	a, b := run(), run()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("seeded draws diverge at %d: %d vs %d", i, a[i], b[i])
		}
	}
}

func TestSamplerShapeErrors(t *testing.T) {
	bad := mustTensor(t, []float32{1, 2, 3, 4}, []int64{1, 2, 2})

	if _, err := (CategoricalSampler{}).Sample(bad, rand.New(rand.NewSource(1))); err == nil {
		t.Fatal("expected shape error from categorical sampler")
	}

	if _, err := (GreedySampler{}).Sample(bad, nil); err == nil {
		t.Fatal("expected shape error from greedy sampler")
	}
}
