package wavenet

import "testing"

func TestHistoryCacheFIFO(t *testing.T) {
	cache, err := NewHistoryCache(3, 1, 1)
	if err != nil {
		t.Fatalf("NewHistoryCache: %v", err)
	}

	// First `dilation` pops return the zero padding frames.
	wantEvicted := []float32{0, 0, 0, 1, 2, 3, 4}

	for i, want := range wantEvicted {
		old, err := cache.PushPopOldest([]float32{float32(i + 1)})
		if err != nil {
			t.Fatalf("push %d: %v", i, err)
		}

		if old[0] != want {
			t.Fatalf("push %d evicted %f, want %f", i, old[0], want)
		}

		if cache.Len() != 3 {
			t.Fatalf("after push %d, Len() = %d, want 3", i, cache.Len())
		}
	}
}

func TestHistoryCacheMultiChannel(t *testing.T) {
	// batch 2, channels 2 -> frame size 4.
	cache, err := NewHistoryCache(2, 2, 2)
	if err != nil {
		t.Fatalf("NewHistoryCache: %v", err)
	}

	if cache.FrameSize() != 4 {
		t.Fatalf("FrameSize() = %d, want 4", cache.FrameSize())
	}

	a := []float32{1, 2, 3, 4}
	b := []float32{5, 6, 7, 8}

	if _, err := cache.PushPopOldest(a); err != nil {
		t.Fatalf("push a: %v", err)
	}
	if _, err := cache.PushPopOldest(b); err != nil {
		t.Fatalf("push b: %v", err)
	}

	old, err := cache.PushPopOldest([]float32{0, 0, 0, 0})
	if err != nil {
		t.Fatalf("push: %v", err)
	}

	if !approxEqual(old, a, 0) {
		t.Fatalf("evicted %v, want %v", old, a)
	}
}

func TestHistoryCacheEvictedBufferReused(t *testing.T) {
	cache, err := NewHistoryCache(1, 1, 1)
	if err != nil {
		t.Fatalf("NewHistoryCache: %v", err)
	}

	first, err := cache.PushPopOldest([]float32{1})
	if err != nil {
		t.Fatalf("push: %v", err)
	}

	firstVal := first[0]

	second, err := cache.PushPopOldest([]float32{2})
	if err != nil {
		t.Fatalf("push: %v", err)
	}

	if firstVal != 0 || second[0] != 1 {
		t.Fatalf("eviction order wrong: %f then %f", firstVal, second[0])
	}

	// The returned slice is only valid until the next call.
	if &first[0] != &second[0] {
		t.Fatal("evicted buffer should be reused between calls")
	}
}

func TestHistoryCacheValidation(t *testing.T) {
	if _, err := NewHistoryCache(0, 1, 1); err == nil {
		t.Fatal("expected error for zero dilation")
	}

	if _, err := NewHistoryCache(1, 0, 1); err == nil {
		t.Fatal("expected error for zero batch")
	}

	cache, err := NewHistoryCache(2, 1, 3)
	if err != nil {
		t.Fatalf("NewHistoryCache: %v", err)
	}

	if _, err := cache.PushPopOldest([]float32{1}); err == nil {
		t.Fatal("expected error for wrong frame size")
	}
}
