package audio

import (
	"errors"
	"math"
	"testing"
)

func TestDecodeWAV(t *testing.T) {
	t.Run("round trips encoder output", func(t *testing.T) {
		samples := []float32{0, 0.25, -0.5, 0.75, -1}

		data, err := EncodeWAV(samples, DefaultSampleRate)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}

		decoded, err := DecodeWAV(data, DefaultSampleRate)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}

		if len(decoded) != len(samples) {
			t.Fatalf("got %d samples, want %d", len(decoded), len(samples))
		}

		// 16-bit quantization error only.
		for i := range samples {
			if math.Abs(float64(decoded[i]-samples[i])) > 1e-3 {
				t.Errorf("sample %d: %f -> %f", i, samples[i], decoded[i])
			}
		}
	})

	t.Run("rejects wrong sample rate", func(t *testing.T) {
		data, err := EncodeWAV(make([]float32, 10), 22050)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}

		_, err = DecodeWAV(data, DefaultSampleRate)
		if !errors.Is(err, ErrFormatMismatch) {
			t.Errorf("expected ErrFormatMismatch, got %v", err)
		}
	})

	t.Run("rejects invalid WAV data", func(t *testing.T) {
		if _, err := DecodeWAV([]byte("not a wav file"), DefaultSampleRate); err == nil {
			t.Fatal("expected error for invalid WAV")
		}
	})

	t.Run("rejects empty input", func(t *testing.T) {
		if _, err := DecodeWAV(nil, DefaultSampleRate); err == nil {
			t.Fatal("expected error for nil input")
		}
	})
}
