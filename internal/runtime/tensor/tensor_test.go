package tensor

import (
	"math"
	"strings"
	"testing"
)

func mustNew(t *testing.T, data []float32, shape []int64) *Tensor {
	t.Helper()

	tt, err := New(data, shape)
	if err != nil {
		t.Fatalf("New(%v, %v): %v", data, shape, err)
	}

	return tt
}

func almostEqual(got, want []float32, tol float64) bool {
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

func TestNewValidatesShape(t *testing.T) {
	if _, err := New([]float32{1, 2, 3}, []int64{2, 2}); err == nil {
		t.Fatal("expected shape/data mismatch error")
	}

	if _, err := New(nil, []int64{0}); err != nil {
		t.Fatalf("empty tensor should be allowed: %v", err)
	}

	if _, err := New([]float32{1}, []int64{-1}); err == nil {
		t.Fatal("expected negative dimension error")
	}
}

func TestElemCountOverflow(t *testing.T) {
	if _, err := elemCount([]int64{math.MaxInt64 / 2, 4}); err == nil || !strings.Contains(err.Error(), "overflow") {
		t.Fatalf("expected overflow error, got %v", err)
	}

	n, err := elemCount([]int64{3, 0, 5})
	if err != nil {
		t.Fatalf("zero dimension: %v", err)
	}

	if n != 0 {
		t.Fatalf("elem count = %d, want 0", n)
	}
}

func TestNewCopiesData(t *testing.T) {
	src := []float32{1, 2}

	tt := mustNew(t, src, []int64{2})
	src[0] = 99

	if tt.RawData()[0] != 1 {
		t.Fatal("New must copy the input slice")
	}
}

func TestReshape(t *testing.T) {
	tt := mustNew(t, []float32{1, 2, 3, 4, 5, 6}, []int64{2, 3})

	r, err := tt.Reshape([]int64{3, 2})
	if err != nil {
		t.Fatalf("reshape: %v", err)
	}

	if r.Dim(0) != 3 || r.Dim(1) != 2 {
		t.Fatalf("reshaped dims = %v", r.Shape())
	}

	if _, err := tt.Reshape([]int64{4, 2}); err == nil {
		t.Fatal("expected element count mismatch error")
	}
}

func TestNarrow(t *testing.T) {
	// [2, 3] rows: (1,2,3), (4,5,6)
	tt := mustNew(t, []float32{1, 2, 3, 4, 5, 6}, []int64{2, 3})

	mid, err := tt.Narrow(1, 1, 2)
	if err != nil {
		t.Fatalf("narrow: %v", err)
	}

	if !almostEqual(mid.Data(), []float32{2, 3, 5, 6}, 0) {
		t.Fatalf("narrow dim1 = %v", mid.Data())
	}

	row, err := tt.Narrow(0, 1, 1)
	if err != nil {
		t.Fatalf("narrow: %v", err)
	}

	if !almostEqual(row.Data(), []float32{4, 5, 6}, 0) {
		t.Fatalf("narrow dim0 = %v", row.Data())
	}

	if _, err := tt.Narrow(1, 2, 2); err == nil {
		t.Fatal("expected out-of-bounds error")
	}
}

func TestTranspose(t *testing.T) {
	// [2, 3] -> [3, 2]
	tt := mustNew(t, []float32{1, 2, 3, 4, 5, 6}, []int64{2, 3})

	out, err := tt.Transpose(0, 1)
	if err != nil {
		t.Fatalf("transpose: %v", err)
	}

	if out.Dim(0) != 3 || out.Dim(1) != 2 {
		t.Fatalf("transpose shape = %v", out.Shape())
	}

	if !almostEqual(out.Data(), []float32{1, 4, 2, 5, 3, 6}, 0) {
		t.Fatalf("transpose = %v", out.Data())
	}

	// Same-dim transpose clones.
	same, err := tt.Transpose(1, 1)
	if err != nil {
		t.Fatalf("transpose: %v", err)
	}
	if !almostEqual(same.Data(), tt.Data(), 0) {
		t.Fatalf("same-dim transpose = %v", same.Data())
	}

	if _, err := tt.Transpose(0, 5); err == nil {
		t.Fatal("expected dim out-of-range error")
	}
}

func TestConcat(t *testing.T) {
	a := mustNew(t, []float32{1, 2}, []int64{1, 2})
	b := mustNew(t, []float32{3, 4, 5, 6}, []int64{1, 4})

	out, err := Concat([]*Tensor{a, b}, 1)
	if err != nil {
		t.Fatalf("concat: %v", err)
	}

	if !almostEqual(out.Data(), []float32{1, 2, 3, 4, 5, 6}, 0) {
		t.Fatalf("concat = %v", out.Data())
	}

	c := mustNew(t, []float32{9, 9}, []int64{2, 1})
	if _, err := Concat([]*Tensor{a, c}, 1); err == nil {
		t.Fatal("expected shape mismatch error")
	}
}

func TestSoftmax(t *testing.T) {
	tt := mustNew(t, []float32{0, 0, 0, 1000, 1000, 1000}, []int64{2, 3})

	out, err := Softmax(tt, 1)
	if err != nil {
		t.Fatalf("softmax: %v", err)
	}

	third := float32(1.0 / 3.0)
	want := []float32{third, third, third, third, third, third}

	if !almostEqual(out.Data(), want, 1e-6) {
		t.Fatalf("softmax = %v, want %v", out.Data(), want)
	}
}

func TestSoftmaxMiddleDim(t *testing.T) {
	// [1, 2, 2]: softmax over dim 1 normalizes column pairs.
	tt := mustNew(t, []float32{1, 3, 1, 3}, []int64{1, 2, 2})

	out, err := Softmax(tt, 1)
	if err != nil {
		t.Fatalf("softmax: %v", err)
	}

	data := out.Data()
	for col := range 2 {
		sum := data[col] + data[2+col]
		if math.Abs(float64(sum-1)) > 1e-6 {
			t.Fatalf("column %d sums to %f", col, sum)
		}
	}
}

func TestSoftmaxErrors(t *testing.T) {
	tt := mustNew(t, []float32{1, 2}, []int64{2})

	_, err := Softmax(tt, 3)
	if err == nil || !strings.Contains(err.Error(), "dim") {
		t.Fatalf("expected dim error, got %v", err)
	}
}

func TestDotProductOrderStable(t *testing.T) {
	a := []float32{0.1, 0.2, 0.3, 0.4}
	b := []float32{4, 3, 2, 1}

	first := DotProduct(a, b)
	for range 100 {
		if DotProduct(a, b) != first {
			t.Fatal("dot product must be deterministic")
		}
	}
}

func TestAxpy(t *testing.T) {
	dst := []float32{1, 2, 3}
	Axpy(dst, 2, []float32{1, 1, 1})

	if !almostEqual(dst, []float32{3, 4, 5}, 0) {
		t.Fatalf("axpy = %v", dst)
	}

	Axpy(dst, 0, []float32{9, 9, 9})
	if !almostEqual(dst, []float32{3, 4, 5}, 0) {
		t.Fatalf("axpy alpha=0 modified dst: %v", dst)
	}
}

func TestCloneIndependence(t *testing.T) {
	a := mustNew(t, []float32{1, 2}, []int64{2})
	b := a.Clone()
	b.RawData()[0] = 7

	if a.RawData()[0] != 1 {
		t.Fatal("clone shares storage with original")
	}
}

func TestBroadcastAdd(t *testing.T) {
	a := mustNew(t, []float32{1, 2, 3, 4, 5, 6}, []int64{2, 3})
	b := mustNew(t, []float32{10, 20, 30}, []int64{3})

	out, err := BroadcastAdd(a, b)
	if err != nil {
		t.Fatalf("broadcast add: %v", err)
	}

	want := []float32{11, 22, 33, 14, 25, 36}
	if !almostEqual(out.Data(), want, 0) {
		t.Fatalf("broadcast add = %v, want %v", out.Data(), want)
	}
}
