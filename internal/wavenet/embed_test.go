package wavenet

import (
	"math"
	"testing"
)

func TestQuantizedInputForward(t *testing.T) {
	// 3 classes, 2 channels.
	weight := mustTensor(t, []float32{
		0, 1, // class 0
		2, 3, // class 1
		4, 5, // class 2
	}, []int64{3, 2})

	embed, err := NewQuantizedInput(weight, false)
	if err != nil {
		t.Fatalf("NewQuantizedInput: %v", err)
	}

	out, err := embed.Forward([][]int64{{2, 0}, {1, 1}})
	if err != nil {
		t.Fatalf("forward: %v", err)
	}

	// [B, channels, T] layout.
	want := []float32{
		4, 0, // batch 0, channel 0 over time
		5, 1, // batch 0, channel 1
		2, 2,
		3, 3,
	}

	if !approxEqual(out.Data(), want, 0) {
		t.Fatalf("embedded = %v, want %v", out.Data(), want)
	}
}

func TestQuantizedInputSoftsign(t *testing.T) {
	weight := mustTensor(t, []float32{2, -2}, []int64{1, 2})

	embed, err := NewQuantizedInput(weight, true)
	if err != nil {
		t.Fatalf("NewQuantizedInput: %v", err)
	}

	out, err := embed.ForwardStep([]int64{0})
	if err != nil {
		t.Fatalf("step: %v", err)
	}

	want := []float32{2.0 / 3.0, -2.0 / 3.0}
	got := out.Data()

	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > 1e-6 {
			t.Fatalf("softsign embed = %v, want %v", got, want)
		}
	}
}

func TestQuantizedInputRangeCheck(t *testing.T) {
	weight := mustTensor(t, []float32{1, 2}, []int64{2, 1})

	embed, err := NewQuantizedInput(weight, false)
	if err != nil {
		t.Fatalf("NewQuantizedInput: %v", err)
	}

	if _, err := embed.Forward([][]int64{{2}}); err == nil {
		t.Fatal("expected out-of-range class error")
	}

	if _, err := embed.Forward([][]int64{{-1}}); err == nil {
		t.Fatal("expected negative class error")
	}

	if _, err := embed.Forward([][]int64{{0, 1}, {0}}); err == nil {
		t.Fatal("expected ragged row error")
	}
}

func TestQuantizedInputValidation(t *testing.T) {
	if _, err := NewQuantizedInput(nil, false); err == nil {
		t.Fatal("expected error for nil weight")
	}

	bad := mustTensor(t, []float32{1, 2}, []int64{1, 2, 1})
	if _, err := NewQuantizedInput(bad, false); err == nil {
		t.Fatal("expected rank error")
	}
}
