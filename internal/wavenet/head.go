package wavenet

import (
	"fmt"
	"math/rand"

	"github.com/example/go-wavegen/internal/runtime/tensor"
)

// OutputHead maps the stack output to per-class logits through two 1x1
// convolutions with ReLU in front of each. Dropout applies only in training.
type OutputHead struct {
	proj    *CausalConv // stack channels -> hidden
	out     *CausalConv // hidden -> classes
	dropout float32
}

func NewOutputHead(proj, out *CausalConv, dropout float32) (*OutputHead, error) {
	if proj == nil || out == nil {
		return nil, fmt.Errorf("wavenet: output head requires both projections")
	}

	if proj.KernelSize() != 1 || out.KernelSize() != 1 {
		return nil, fmt.Errorf("wavenet: output head projections must have kernel size 1")
	}

	if proj.OutChannels() != out.InChannels() {
		return nil, fmt.Errorf("wavenet: output head channel mismatch: proj out %d, out in %d", proj.OutChannels(), out.InChannels())
	}

	return &OutputHead{proj: proj, out: out, dropout: dropout}, nil
}

// Classes reports the logit dimension.
func (h *OutputHead) Classes() int64 { return h.out.OutChannels() }

func (h *OutputHead) Proj() *CausalConv { return h.proj }
func (h *OutputHead) Out() *CausalConv  { return h.out }

// Forward maps skip activations [B, S, T] to logits [B, classes, T].
func (h *OutputHead) Forward(x *tensor.Tensor, training bool, rng *rand.Rand) (*tensor.Tensor, error) {
	if training {
		x = applyDropout(x, h.dropout, rng)
	} else {
		x = x.Clone()
	}

	reluInPlace(x)

	hidden, err := h.proj.Forward(x)
	if err != nil {
		return nil, fmt.Errorf("wavenet: head projection: %w", err)
	}

	if training {
		hidden = applyDropout(hidden, h.dropout, rng)
	}

	reluInPlace(hidden)

	logits, err := h.out.Forward(hidden)
	if err != nil {
		return nil, fmt.Errorf("wavenet: head output: %w", err)
	}

	return logits, nil
}

// ForwardStep maps one skip frame [B, S, 1] to logits [B, classes, 1]. Both
// projections are 1x1 so the step path is a plain forward pass.
func (h *OutputHead) ForwardStep(x *tensor.Tensor) (*tensor.Tensor, error) {
	x = x.Clone()
	reluInPlace(x)

	hidden, err := h.proj.ForwardStep(x)
	if err != nil {
		return nil, fmt.Errorf("wavenet: head projection step: %w", err)
	}

	reluInPlace(hidden)

	logits, err := h.out.ForwardStep(hidden)
	if err != nil {
		return nil, fmt.Errorf("wavenet: head output step: %w", err)
	}

	return logits, nil
}
