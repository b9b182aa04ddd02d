package audio

// Hook is a sample post-processing stage applied before encoding.
type Hook func(samples []float32) []float32

// ApplyHooks runs hooks in order over the samples.
func ApplyHooks(samples []float32, hooks ...Hook) []float32 {
	out := samples
	for _, hook := range hooks {
		out = hook(out)
	}

	return out
}

// PeakNormalize scales samples in place so the peak amplitude reaches 1.0.
// Silent buffers pass through unchanged.
func PeakNormalize(samples []float32) []float32 {
	var peak float32
	for _, s := range samples {
		if s > peak {
			peak = s
		} else if -s > peak {
			peak = -s
		}
	}

	if peak == 0 {
		return samples
	}

	scale := 1 / peak
	for i := range samples {
		samples[i] *= scale
	}

	return samples
}

// FadeIn applies a linear fade-in ramp over the given duration in
// milliseconds.
func FadeIn(samples []float32, sampleRate int, ms float64) []float32 {
	n := rampLen(len(samples), sampleRate, ms)
	for i := range n {
		samples[i] *= float32(i) / float32(n)
	}

	return samples
}

// FadeOut applies a linear fade-out ramp over the given duration in
// milliseconds.
func FadeOut(samples []float32, sampleRate int, ms float64) []float32 {
	n := rampLen(len(samples), sampleRate, ms)
	for i := range n {
		samples[len(samples)-1-i] *= float32(i) / float32(n)
	}

	return samples
}

func rampLen(total, sampleRate int, ms float64) int {
	n := int(float64(sampleRate) * ms / 1000)
	if n > total {
		n = total
	}
	if n < 0 {
		n = 0
	}

	return n
}
