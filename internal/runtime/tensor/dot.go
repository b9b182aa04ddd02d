package tensor

// DotProduct computes the dot product of two equal-length float32 slices.
// The scalar loop keeps summation order identical between the batch and
// streaming convolution paths, which the engine relies on for exact parity.
func DotProduct(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}

	return sum
}

// Axpy computes dst += alpha * src element-wise.
// If src and dst lengths differ, the shorter length is used.
func Axpy(dst []float32, alpha float32, src []float32) {
	n := min(len(dst), len(src))
	if n == 0 || alpha == 0 {
		return
	}

	dst = dst[:n]
	src = src[:n]
	for i := range dst {
		dst[i] += alpha * src[i]
	}
}
