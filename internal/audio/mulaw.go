// Package audio provides mu-law companding over the model's quantized
// alphabet and WAV encoding of generated float PCM.
package audio

import "math"

// MuLawEncodeSample compands one sample in [-1, 1] to a class index in
// [0, classes). classes is the quantization depth, typically 256. Silence
// (0.0) maps to the midpoint class.
func MuLawEncodeSample(x float32, classes int64) int64 {
	mu := float64(classes - 1)

	v := float64(x)
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}

	magnitude := math.Log1p(mu*math.Abs(v)) / math.Log1p(mu)
	signal := math.Copysign(magnitude, v)

	q := int64((signal+1)/2*mu + 0.5)
	if q > classes-1 {
		q = classes - 1
	}

	return q
}

// MuLawDecodeSample expands a class index back to a float sample in [-1, 1].
func MuLawDecodeSample(class int64, classes int64) float32 {
	mu := float64(classes - 1)

	signal := 2*(float64(class)/mu) - 1
	magnitude := (math.Pow(1+mu, math.Abs(signal)) - 1) / mu

	return float32(math.Copysign(magnitude, signal))
}

// MuLawEncode compands a whole buffer.
func MuLawEncode(samples []float32, classes int64) []int64 {
	out := make([]int64, len(samples))
	for i, s := range samples {
		out[i] = MuLawEncodeSample(s, classes)
	}

	return out
}

// MuLawDecode expands a whole buffer.
func MuLawDecode(indices []int64, classes int64) []float32 {
	out := make([]float32, len(indices))
	for i, c := range indices {
		out[i] = MuLawDecodeSample(c, classes)
	}

	return out
}
