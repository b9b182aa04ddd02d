package wavenet

import (
	"fmt"

	"github.com/example/go-wavegen/internal/runtime/ops"
	"github.com/example/go-wavegen/internal/runtime/tensor"
)

// Upsampler expands frame-rate conditioning features [B, C, F] to sample-rate
// frames [B, C, F*window].
type Upsampler interface {
	Upsample(features *tensor.Tensor) (*tensor.Tensor, error)
	Window() int64
}

// RepeatUpsampler repeats every feature frame window times. It carries no
// weights and is always bit-exact between runs.
type RepeatUpsampler struct {
	window int64
}

func NewRepeatUpsampler(window int64) (*RepeatUpsampler, error) {
	if window <= 0 {
		return nil, fmt.Errorf("wavenet: upsample window must be positive, got %d", window)
	}

	return &RepeatUpsampler{window: window}, nil
}

func (u *RepeatUpsampler) Window() int64 { return u.window }

func (u *RepeatUpsampler) Upsample(features *tensor.Tensor) (*tensor.Tensor, error) {
	shape := features.Shape()
	if len(shape) != 3 {
		return nil, fmt.Errorf("wavenet: upsample expects [B, C, F], got %v", shape)
	}

	b, c, f := shape[0], shape[1], shape[2]

	out, err := tensor.Zeros([]int64{b, c, f * u.window})
	if err != nil {
		return nil, err
	}

	src := features.RawData()
	dst := out.RawData()

	for row := range b * c {
		for i := range f {
			v := src[row*f+i]
			base := row*f*u.window + i*u.window
			for k := range u.window {
				dst[base+k] = v
			}
		}
	}

	return out, nil
}

// ConvUpsampler expands features with a learned transposed convolution of
// stride window. The trailing kernel-minus-stride frames are trimmed so the
// output is exactly window samples per input frame.
type ConvUpsampler struct {
	weight *tensor.Tensor // [C, C, kernel]
	bias   *tensor.Tensor
	window int64
}

func NewConvUpsampler(weight, bias *tensor.Tensor, window int64) (*ConvUpsampler, error) {
	if window <= 0 {
		return nil, fmt.Errorf("wavenet: upsample window must be positive, got %d", window)
	}

	shape := weight.Shape()
	if len(shape) != 3 {
		return nil, fmt.Errorf("wavenet: upsample weight expects [in, out, kernel], got %v", shape)
	}

	if shape[2] < window {
		return nil, fmt.Errorf("wavenet: upsample kernel %d shorter than window %d", shape[2], window)
	}

	return &ConvUpsampler{weight: weight, bias: bias, window: window}, nil
}

func (u *ConvUpsampler) Window() int64          { return u.window }
func (u *ConvUpsampler) Weight() *tensor.Tensor { return u.weight }
func (u *ConvUpsampler) Bias() *tensor.Tensor   { return u.bias }

func (u *ConvUpsampler) Upsample(features *tensor.Tensor) (*tensor.Tensor, error) {
	shape := features.Shape()
	if len(shape) != 3 {
		return nil, fmt.Errorf("wavenet: upsample expects [B, C, F], got %v", shape)
	}

	trim := u.weight.Shape()[2] - u.window

	out, err := ops.ConvTranspose1DRightTrim(features, u.weight, u.bias, u.window, 0, 0, 1, 1, trim)
	if err != nil {
		return nil, fmt.Errorf("wavenet: upsample: %w", err)
	}

	return out, nil
}
