package wavenet

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/example/go-wavegen/internal/runtime/tensor"
)

// Conditioning is a prepared per-sample control signal. The backing tensor is
// [B, gateChannels, T] when every block shares the same conditioning, or
// [B, blocks*gateChannels, T] with one gateChannels slab per block.
type Conditioning struct {
	data         *tensor.Tensor
	perBlock     bool
	gateChannels int64
	length       int64
}

// Length reports the number of per-sample conditioning frames.
func (c *Conditioning) Length() int64 {
	if c == nil {
		return 0
	}

	return c.length
}

// IsZero reports whether every conditioning value is zero.
func (c *Conditioning) IsZero() bool {
	if c == nil {
		return true
	}

	for _, v := range c.data.RawData() {
		if v != 0 {
			return false
		}
	}

	return true
}

// addBatch adds the conditioning slab for one block onto gate pre-activations
// [B, gateChannels, T] across the whole sequence.
func (c *Conditioning) addBatch(preAct *tensor.Tensor, block int) error {
	shape := preAct.Shape()
	b, ch, t := shape[0], shape[1], shape[2]

	if ch != c.gateChannels {
		return fmt.Errorf("wavenet: conditioning gate channels %d, pre-activation has %d", c.gateChannels, ch)
	}

	if t > c.length {
		return fmt.Errorf("wavenet: conditioning length %d shorter than sequence %d", c.length, t)
	}

	base := int64(0)
	if c.perBlock {
		base = int64(block) * c.gateChannels
	}

	condShape := c.data.Shape()
	condCh := condShape[1]
	cond := c.data.RawData()
	dst := preAct.RawData()

	for bi := range b {
		for j := range ch {
			src := cond[((bi*condCh)+base+j)*c.length : ((bi*condCh)+base+j)*c.length+t]
			row := dst[((bi*ch)+j)*t : ((bi*ch)+j+1)*t]
			tensor.Axpy(row, 1, src)
		}
	}

	return nil
}

// addStep adds the conditioning vector for one block at timestep t onto a
// single pre-activation frame [B, gateChannels, 1], allocation-free.
func (c *Conditioning) addStep(preAct *tensor.Tensor, block int, t int64) error {
	shape := preAct.Shape()
	b, ch := shape[0], shape[1]

	if ch != c.gateChannels {
		return fmt.Errorf("wavenet: conditioning gate channels %d, pre-activation has %d", c.gateChannels, ch)
	}

	if t < 0 || t >= c.length {
		return fmt.Errorf("wavenet: conditioning step %d out of range [0,%d)", t, c.length)
	}

	base := int64(0)
	if c.perBlock {
		base = int64(block) * c.gateChannels
	}

	condCh := c.data.Shape()[1]
	cond := c.data.RawData()
	dst := preAct.RawData()

	for bi := range b {
		for j := range ch {
			dst[bi*ch+j] += cond[((bi*condCh)+base+j)*c.length+t]
		}
	}

	return nil
}

// Block is one residual unit: a dilated causal gate convolution, an optional
// residual projection (absent on the last block) and an optional skip
// projection.
type Block struct {
	dilated *CausalConv // kernel 2, causal, out = 2*residual channels
	res     *CausalConv // kernel 1, nil when unused or last block
	skip    *CausalConv // kernel 1, nil when skip connections are off
}

// Stack is the ordered residual block sequence. It owns no weights beyond its
// blocks; streaming state lives in each block's dilated layer cache.
type Stack struct {
	blocks           []*Block
	residualChannels int64
	gain             float32
	useSkip          bool
	skipChannels     int64
	dropout          float32
}

// StackSpec carries the construction-time stack options.
type StackSpec struct {
	ResidualChannels int64
	SkipChannels     int64
	UseSkip          bool
	Gain             float32
	Dropout          float32
}

func NewStack(blocks []*Block, spec StackSpec) (*Stack, error) {
	if len(blocks) == 0 {
		return nil, errors.New("wavenet: stack requires at least one block")
	}

	gain := spec.Gain
	if gain == 0 {
		gain = 1
	}

	for i, blk := range blocks {
		if blk == nil || blk.dilated == nil {
			return nil, fmt.Errorf("wavenet: stack block %d has no dilated layer", i)
		}

		if blk.dilated.OutChannels() != 2*spec.ResidualChannels {
			return nil, fmt.Errorf("wavenet: stack block %d gate width %d, want %d", i, blk.dilated.OutChannels(), 2*spec.ResidualChannels)
		}

		if spec.UseSkip && blk.skip == nil {
			return nil, fmt.Errorf("wavenet: stack block %d missing skip projection", i)
		}
	}

	return &Stack{
		blocks:           blocks,
		residualChannels: spec.ResidualChannels,
		gain:             gain,
		useSkip:          spec.UseSkip,
		skipChannels:     spec.SkipChannels,
		dropout:          spec.Dropout,
	}, nil
}

func (s *Stack) NumBlocks() int { return len(s.blocks) }

// BlockDilation reports the dilation of block i.
func (s *Stack) BlockDilation(i int) int64 { return s.blocks[i].dilated.Dilation() }

// gatedUnit splits pre-activations [B, 2R, T] into a tanh half and a sigmoid
// half along channels and multiplies them element-wise into [B, R, T].
func gatedUnit(preAct *tensor.Tensor, residualChannels int64) (*tensor.Tensor, error) {
	shape := preAct.Shape()
	b, ch, t := shape[0], shape[1], shape[2]

	if ch != 2*residualChannels {
		return nil, fmt.Errorf("wavenet: gated unit expects %d channels, got %d", 2*residualChannels, ch)
	}

	out, err := tensor.Zeros([]int64{b, residualChannels, t})
	if err != nil {
		return nil, err
	}

	src := preAct.RawData()
	dst := out.RawData()

	for bi := range b {
		tBase := (bi * ch) * t
		sBase := (bi*ch + residualChannels) * t
		oBase := bi * residualChannels * t

		for i := range residualChannels * t {
			dst[oBase+i] = tanhf(src[tBase+i]) * sigmoidf(src[sBase+i])
		}
	}

	return out, nil
}

// Forward runs the stack over a full sequence x [B, R, T]. cond may be nil.
// Dropout applies only when training and a source of randomness is supplied.
// The returned tensor is the skip sum [B, S, T] when skip connections are in
// use, otherwise the final residual stream [B, R, T].
func (s *Stack) Forward(x *tensor.Tensor, cond *Conditioning, training bool, rng *rand.Rand) (*tensor.Tensor, error) {
	var skipSum *tensor.Tensor

	for i, blk := range s.blocks {
		if training {
			x = applyDropout(x, s.dropout, rng)
		}

		preAct, err := blk.dilated.Forward(x)
		if err != nil {
			return nil, fmt.Errorf("wavenet: block %d dilated conv: %w", i, err)
		}

		if cond != nil {
			if err := cond.addBatch(preAct, i); err != nil {
				return nil, fmt.Errorf("wavenet: block %d: %w", i, err)
			}
		}

		acts, err := gatedUnit(preAct, s.residualChannels)
		if err != nil {
			return nil, fmt.Errorf("wavenet: block %d: %w", i, err)
		}

		if s.useSkip {
			skipOut, err := blk.skip.Forward(acts)
			if err != nil {
				return nil, fmt.Errorf("wavenet: block %d skip conv: %w", i, err)
			}

			if skipSum == nil {
				skipSum = skipOut
			} else {
				tensor.Axpy(skipSum.RawData(), 1, skipOut.RawData())
			}
		}

		if blk.res != nil {
			acts, err = blk.res.Forward(acts)
			if err != nil {
				return nil, fmt.Errorf("wavenet: block %d residual conv: %w", i, err)
			}
		}

		x, err = addSameShape(x, acts)
		if err != nil {
			return nil, fmt.Errorf("wavenet: block %d: %w", i, err)
		}

		scaleInPlace(x, s.gain)
	}

	if s.useSkip {
		return skipSum, nil
	}

	return x, nil
}

// InferStep runs one streaming timestep through every block. x is the
// embedded input frame [B, R, 1] and t is the session timestep used to index
// the conditioning. The per-block algebra is identical to Forward; only the
// dilated convolutions consult their caches, and no dropout applies.
func (s *Stack) InferStep(x *tensor.Tensor, cond *Conditioning, t int64) (*tensor.Tensor, error) {
	var skipSum *tensor.Tensor

	for i, blk := range s.blocks {
		preAct, err := blk.dilated.ForwardStep(x)
		if err != nil {
			return nil, fmt.Errorf("wavenet: block %d dilated step: %w", i, err)
		}

		if cond != nil {
			if err := cond.addStep(preAct, i, t); err != nil {
				return nil, fmt.Errorf("wavenet: block %d: %w", i, err)
			}
		}

		acts, err := gatedUnit(preAct, s.residualChannels)
		if err != nil {
			return nil, fmt.Errorf("wavenet: block %d: %w", i, err)
		}

		if s.useSkip {
			skipOut, err := blk.skip.ForwardStep(acts)
			if err != nil {
				return nil, fmt.Errorf("wavenet: block %d skip step: %w", i, err)
			}

			if skipSum == nil {
				skipSum = skipOut
			} else {
				tensor.Axpy(skipSum.RawData(), 1, skipOut.RawData())
			}
		}

		if blk.res != nil {
			acts, err = blk.res.ForwardStep(acts)
			if err != nil {
				return nil, fmt.Errorf("wavenet: block %d residual step: %w", i, err)
			}
		}

		x, err = addSameShape(x, acts)
		if err != nil {
			return nil, fmt.Errorf("wavenet: block %d: %w", i, err)
		}

		scaleInPlace(x, s.gain)
	}

	if s.useSkip {
		return skipSum, nil
	}

	return x, nil
}

// ResetState clears every block's streaming cache.
func (s *Stack) ResetState() {
	for _, blk := range s.blocks {
		blk.dilated.ResetState()
	}
}

// shiftOneStep enforces strict causality on batch logits [B, C, T]: the last
// timestep is discarded (it has seen the entire input) and a zero frame is
// prepended, so output index t depends only on inputs < t.
func shiftOneStep(x *tensor.Tensor) (*tensor.Tensor, error) {
	shape := x.Shape()
	if len(shape) != 3 {
		return nil, fmt.Errorf("wavenet: causal shift expects [B, C, T], got %v", shape)
	}

	b, c, t := shape[0], shape[1], shape[2]

	out, err := tensor.Zeros([]int64{b, c, t})
	if err != nil {
		return nil, err
	}

	src := x.RawData()
	dst := out.RawData()

	for row := range b * c {
		copy(dst[row*t+1:(row+1)*t], src[row*t:row*t+t-1])
	}

	return out, nil
}
