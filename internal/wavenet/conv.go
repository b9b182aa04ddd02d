package wavenet

import (
	"errors"
	"fmt"

	"github.com/example/go-wavegen/internal/runtime/ops"
	"github.com/example/go-wavegen/internal/runtime/tensor"
)

// ErrStreamingUnsupported marks a ForwardStep call on a layer whose
// kernel/causality combination has no single-step evaluation.
var ErrStreamingUnsupported = errors.New("wavenet: streaming step requires kernel size 1, or kernel size 2 with a causal layer")

// CausalConv is a 1-D convolution with kernel size 1 or 2, arbitrary
// dilation and an optional softsign post-activation. It supports two
// evaluation modes: Forward over a full sequence and ForwardStep over one
// frame at a time, the latter backed by a HistoryCache so that each step
// costs O(1) amortized work instead of re-reading the kernel span.
//
// Weights are immutable after construction; the only mutable state is the
// streaming cache, reset between sessions via ResetState.
type CausalConv struct {
	weight *tensor.Tensor // [out, in, k]
	bias   *tensor.Tensor // [out] or nil

	inChannels  int64
	outChannels int64
	kernelSize  int64
	dilation    int64
	causal      bool
	softsign    bool

	cache *HistoryCache
}

// CausalConvSpec carries the construction-time options for one layer.
type CausalConvSpec struct {
	Dilation int64
	Causal   bool
	Softsign bool
}

// NewCausalConv builds a layer from a weight tensor [out, in, k] and an
// optional bias [out]. Kernel sizes other than 1 and 2 are rejected.
func NewCausalConv(weight, bias *tensor.Tensor, spec CausalConvSpec) (*CausalConv, error) {
	if weight == nil {
		return nil, errors.New("wavenet: conv weight must not be nil")
	}

	wShape := weight.Shape()
	if len(wShape) != 3 {
		return nil, fmt.Errorf("wavenet: conv weight must be rank 3 [out, in, k], got %v", wShape)
	}

	k := wShape[2]
	if k != 1 && k != 2 {
		return nil, fmt.Errorf("wavenet: conv kernel size must be 1 or 2, got %d", k)
	}

	dilation := spec.Dilation
	if dilation <= 0 {
		dilation = 1
	}

	if bias != nil {
		bShape := bias.Shape()
		if len(bShape) != 1 || bShape[0] != wShape[0] {
			return nil, fmt.Errorf("wavenet: conv bias shape %v does not match out channels %d", bShape, wShape[0])
		}
	}

	return &CausalConv{
		weight:      weight,
		bias:        bias,
		inChannels:  wShape[1],
		outChannels: wShape[0],
		kernelSize:  k,
		dilation:    dilation,
		causal:      spec.Causal,
		softsign:    spec.Softsign,
	}, nil
}

func (c *CausalConv) InChannels() int64  { return c.inChannels }
func (c *CausalConv) OutChannels() int64 { return c.outChannels }
func (c *CausalConv) Dilation() int64    { return c.dilation }
func (c *CausalConv) KernelSize() int64  { return c.kernelSize }

// Weight exposes the weight tensor for export. Callers must not modify it.
func (c *CausalConv) Weight() *tensor.Tensor { return c.weight }

// Bias exposes the bias tensor for export, nil when the layer has none.
func (c *CausalConv) Bias() *tensor.Tensor { return c.bias }

// Forward evaluates the layer over a full sequence [B, in, T]. Causal layers
// left-pad with (k-1)*dilation zeros so output t sees only inputs <= t.
func (c *CausalConv) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	var out *tensor.Tensor
	var err error

	if c.causal {
		leftPad := (c.kernelSize - 1) * c.dilation
		out, err = ops.Conv1DLeftPad(x, c.weight, c.bias, 1, leftPad, c.dilation, 1)
	} else {
		out, err = ops.Conv1D(x, c.weight, c.bias, 1, 0, c.dilation, 1)
	}

	if err != nil {
		return nil, err
	}

	if c.softsign {
		softsignInPlace(out)
	}

	return out, nil
}

// ForwardStep evaluates one timestep. The input is a frame [B, in, 1]; a
// longer sequence is reduced to its last frame. Kernel size 1 is stateless.
// Kernel size 2 requires a causal layer: the frame from `dilation` steps ago
// is fetched from the HistoryCache, the 2-tap window [old, cur] is convolved,
// and the current frame is pushed into the cache.
//
// Running ForwardStep once per timestep in order reproduces Forward over the
// same sequence.
func (c *CausalConv) ForwardStep(x *tensor.Tensor) (*tensor.Tensor, error) {
	shape := x.Shape()
	if len(shape) != 3 {
		return nil, fmt.Errorf("wavenet: conv step expects [B, C, T] input, got %v", shape)
	}

	if shape[2] > 1 {
		var err error

		x, err = x.Narrow(2, shape[2]-1, 1)
		if err != nil {
			return nil, err
		}
	}

	if c.kernelSize == 1 {
		out, err := ops.Conv1D(x, c.weight, c.bias, 1, 0, 1, 1)
		if err != nil {
			return nil, err
		}

		if c.softsign {
			softsignInPlace(out)
		}

		return out, nil
	}

	if !c.causal {
		return nil, ErrStreamingUnsupported
	}

	batch := shape[0]
	if c.cache == nil {
		cache, err := NewHistoryCache(c.dilation, batch, c.inChannels)
		if err != nil {
			return nil, err
		}

		c.cache = cache
	}

	cur := x.RawData()
	if len(cur) != c.cache.FrameSize() {
		return nil, fmt.Errorf("wavenet: conv step batch changed mid-session (frame %d, cache %d)", len(cur), c.cache.FrameSize())
	}

	old, err := c.cache.PushPopOldest(cur)
	if err != nil {
		return nil, err
	}

	// Interleave [old, cur] into a [B, in, 2] window. With dilation folded
	// away by the cache lookup, the kernel applies as two adjacent taps.
	window, err := tensor.Zeros([]int64{batch, c.inChannels, 2})
	if err != nil {
		return nil, err
	}

	wData := window.RawData()
	for i := range old {
		wData[2*i] = old[i]
		wData[2*i+1] = cur[i]
	}

	out, err := ops.Conv1D(window, c.weight, c.bias, 1, 0, 1, 1)
	if err != nil {
		return nil, err
	}

	if c.softsign {
		softsignInPlace(out)
	}

	return out, nil
}

// ResetState discards the streaming cache. Call between generation sessions;
// the next ForwardStep re-initializes the cache with zero frames.
func (c *CausalConv) ResetState() { c.cache = nil }
