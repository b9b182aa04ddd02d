package audio

import (
	"math"
	"testing"
)

func TestMuLawEncodeSample(t *testing.T) {
	t.Run("silence maps to midpoint class", func(t *testing.T) {
		if got := MuLawEncodeSample(0, 256); got != 128 {
			t.Errorf("encode(0) = %d, want 128", got)
		}
	})

	t.Run("extremes map to boundary classes", func(t *testing.T) {
		if got := MuLawEncodeSample(-1, 256); got != 0 {
			t.Errorf("encode(-1) = %d, want 0", got)
		}
		if got := MuLawEncodeSample(1, 256); got != 255 {
			t.Errorf("encode(1) = %d, want 255", got)
		}
	})

	t.Run("clamps out-of-range input", func(t *testing.T) {
		if got := MuLawEncodeSample(2.5, 256); got != 255 {
			t.Errorf("encode(2.5) = %d, want 255", got)
		}
		if got := MuLawEncodeSample(-3, 256); got != 0 {
			t.Errorf("encode(-3) = %d, want 0", got)
		}
	})

	t.Run("monotonic in amplitude", func(t *testing.T) {
		prev := int64(-1)
		for x := float32(-1); x <= 1; x += 0.01 {
			q := MuLawEncodeSample(x, 256)
			if q < prev {
				t.Fatalf("encode not monotonic at %f: %d after %d", x, q, prev)
			}
			prev = q
		}
	})
}

func TestMuLawRoundTrip(t *testing.T) {
	// q -> decode -> encode must return q exactly: decode picks a value
	// inside class q's quantization cell.
	for _, classes := range []int64{16, 256} {
		for q := int64(0); q < classes; q++ {
			got := MuLawEncodeSample(MuLawDecodeSample(q, classes), classes)
			if got != q {
				t.Fatalf("classes=%d: encode(decode(%d)) = %d", classes, q, got)
			}
		}
	}
}

func TestMuLawDecodeSample(t *testing.T) {
	t.Run("stays within unit range", func(t *testing.T) {
		for q := int64(0); q < 256; q++ {
			v := float64(MuLawDecodeSample(q, 256))
			if v < -1 || v > 1 {
				t.Fatalf("decode(%d) = %f out of [-1, 1]", q, v)
			}
		}
	})

	t.Run("companding expands fine near zero", func(t *testing.T) {
		// Neighboring classes around the midpoint decode to values much
		// closer together than classes at the extremes.
		center := math.Abs(float64(MuLawDecodeSample(129, 256) - MuLawDecodeSample(128, 256)))
		edge := math.Abs(float64(MuLawDecodeSample(255, 256) - MuLawDecodeSample(254, 256)))

		if center >= edge {
			t.Errorf("center step %f not finer than edge step %f", center, edge)
		}
	})
}

func TestMuLawBuffers(t *testing.T) {
	samples := []float32{-1, -0.5, 0, 0.5, 1}

	encoded := MuLawEncode(samples, 256)
	if len(encoded) != len(samples) {
		t.Fatalf("encoded %d values, want %d", len(encoded), len(samples))
	}

	decoded := MuLawDecode(encoded, 256)
	for i := range samples {
		if math.Abs(float64(decoded[i]-samples[i])) > 0.02 {
			t.Errorf("round trip [%d]: %f -> %f", i, samples[i], decoded[i])
		}
	}
}
