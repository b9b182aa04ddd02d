package wavenet

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"github.com/example/go-wavegen/internal/audio"
	"github.com/example/go-wavegen/internal/runtime/tensor"
)

// Options describe a model architecture. The checkpoint must match; Load
// verifies every tensor shape against these values.
type Options struct {
	// Classes is the quantization depth, typically 256 for 8-bit mu-law.
	Classes int64
	// ResidualChannels is the width of the residual stream.
	ResidualChannels int64
	// SkipChannels is the width of the skip sum. Ignored when UseSkip is
	// false.
	SkipChannels int64
	// HiddenChannels is the width between the two head projections.
	HiddenChannels int64
	// Blocks is the number of residual blocks.
	Blocks int
	// MaxDilation caps the dilation cycle.
	MaxDilation int64
	// UseSkip selects skip-sum output over the final residual stream.
	UseSkip bool
	// CondChannels is the feature dimension of the conditioning input, or 0
	// for an unconditional model.
	CondChannels int64
	// PerBlockCond gives each block its own conditioning slab instead of a
	// shared one.
	PerBlockCond bool
	// DirectCond adds the upsampled conditioning straight onto the gate
	// pre-activations instead of routing it through the 1x1 projection.
	// CondChannels must then equal the conditioning slab width.
	DirectCond bool
	// CondSoftsign applies a softsign after the conditioning projection.
	CondSoftsign bool
	// UpsampleWindow is the samples-per-frame ratio of the conditioning.
	UpsampleWindow int64
	// UpsampleKernel selects a learned transposed-convolution upsampler when
	// larger than zero; zero selects plain repetition.
	UpsampleKernel int64
	// Gain rescales the residual stream after every block. Zero means 1.
	Gain float32
	// ResDropout is the training-time dropout probability inside the
	// residual stack.
	ResDropout float32
	// HeadDropout is the training-time dropout probability in the output
	// head.
	HeadDropout float32
	// Softsign applies a softsign to the embedded input.
	Softsign bool
	// ContinuousInput selects the 1x1 input convolution over the embedding
	// table. The checkpoint must carry input.conv weights; streaming steps
	// mu-law expand the previous class before the layer.
	ContinuousInput bool
}

func (o *Options) validate() error {
	if o.Classes < 2 {
		return fmt.Errorf("wavenet: classes must be at least 2, got %d", o.Classes)
	}

	if o.ResidualChannels <= 0 {
		return fmt.Errorf("wavenet: residual channels must be positive, got %d", o.ResidualChannels)
	}

	if o.Blocks <= 0 {
		return fmt.Errorf("wavenet: block count must be positive, got %d", o.Blocks)
	}

	if o.MaxDilation <= 0 {
		return fmt.Errorf("wavenet: max dilation must be positive, got %d", o.MaxDilation)
	}

	if o.CondChannels > 0 && o.UpsampleWindow <= 0 {
		return fmt.Errorf("wavenet: conditional model requires a positive upsample window, got %d", o.UpsampleWindow)
	}

	if o.CondChannels > 0 && o.DirectCond {
		want := o.gateChannels()
		if o.PerBlockCond {
			want *= int64(o.Blocks)
		}

		if o.CondChannels != want {
			return fmt.Errorf("wavenet: direct conditioning requires %d channels, got %d", want, o.CondChannels)
		}
	}

	return nil
}

// gateChannels is the dilated-conv output width: tanh half plus sigmoid half.
func (o *Options) gateChannels() int64 { return 2 * o.ResidualChannels }

// loopFactor is the dilation cycle length: doubling dilations restart from 1
// once they would exceed MaxDilation.
func (o *Options) loopFactor() int {
	n := 0
	for d := int64(1); d <= o.MaxDilation; d *= 2 {
		n++
	}

	return n
}

// DilationForBlock reports the dilation of block i under the cycling schedule.
func (o *Options) DilationForBlock(i int) int64 {
	return int64(1) << (i % o.loopFactor())
}

// ReceptiveField reports how many past samples influence one output sample.
func (o *Options) ReceptiveField() int64 {
	total := int64(1)
	for i := range o.Blocks {
		total += o.DilationForBlock(i)
	}

	return total
}

// Model is a complete sample-level autoregressive network: embedding input
// layer, residual stack, output head and optional conditioning path. A Model
// is safe for concurrent batch scoring; streaming sessions serialize through
// an internal mutex because layer caches are singular.
type Model struct {
	opts Options

	embed     *QuantizedInput
	inputConv *CausalConv // 1x1 continuous-input alternative, nil unless present in the checkpoint
	condProj  *CausalConv // 1x1, cond channels -> gate channels, nil when unconditional
	upsampler Upsampler
	stack     *Stack
	head      *OutputHead

	sessionMu sync.Mutex
}

// NewModel assembles a model from a tensor source. Checkpoint layout:
//
//	input.embed.weight        [classes, R]       (one-hot input)
//	input.conv.weight/bias    [R, in, 1]         (continuous input)
//	cond.proj.weight/bias     [(blocks*)2R, Cc, 1]
//	upsample.weight/bias      [Cc, Cc, kernel]
//	blocks.{i}.dilated.weight [2R, R, 2]
//	blocks.{i}.res.weight     [R, R, 1]   (all but the last block)
//	blocks.{i}.skip.weight    [S, R, 1]
//	head.proj.weight          [H, S, 1]
//	head.out.weight           [classes, H, 1]
func NewModel(opts Options, vb *VarBuilder) (*Model, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	if vb == nil {
		return nil, errors.New("wavenet: nil tensor source")
	}

	m := &Model{opts: opts}

	if !opts.ContinuousInput {
		embedW, err := vb.Tensor("input.embed.weight", opts.Classes, opts.ResidualChannels)
		if err != nil {
			return nil, err
		}

		m.embed, err = NewQuantizedInput(embedW, opts.Softsign)
		if err != nil {
			return nil, err
		}
	}

	if opts.ContinuousInput || vb.Has("input.conv.weight") {
		icw, err := vb.Tensor("input.conv.weight")
		if err != nil {
			return nil, err
		}

		icb, _, err := vb.TensorMaybe("input.conv.bias", opts.ResidualChannels)
		if err != nil {
			return nil, err
		}

		m.inputConv, err = NewCausalConv(icw, icb, CausalConvSpec{Dilation: 1, Softsign: opts.Softsign})
		if err != nil {
			return nil, err
		}
	}

	if opts.CondChannels > 0 {
		if err := m.buildConditioning(vb); err != nil {
			return nil, err
		}
	}

	if err := m.buildStack(vb); err != nil {
		return nil, err
	}

	if err := m.buildHead(vb); err != nil {
		return nil, err
	}

	return m, nil
}

// Load opens a safetensors checkpoint and assembles the model.
func Load(path string, opts Options) (*Model, error) {
	vb, err := OpenVarBuilder(path)
	if err != nil {
		return nil, err
	}

	return NewModel(opts, vb)
}

func (m *Model) buildConditioning(vb *VarBuilder) error {
	opts := m.opts

	if !opts.DirectCond {
		gateCh := opts.gateChannels()
		if opts.PerBlockCond {
			gateCh *= int64(opts.Blocks)
		}

		projW, err := vb.Tensor("cond.proj.weight", gateCh, opts.CondChannels, 1)
		if err != nil {
			return err
		}

		projB, _, err := vb.TensorMaybe("cond.proj.bias", gateCh)
		if err != nil {
			return err
		}

		m.condProj, err = NewCausalConv(projW, projB, CausalConvSpec{Dilation: 1, Softsign: opts.CondSoftsign})
		if err != nil {
			return err
		}
	}

	if opts.UpsampleKernel > 0 {
		upW, err := vb.Tensor("upsample.weight", opts.CondChannels, opts.CondChannels, opts.UpsampleKernel)
		if err != nil {
			return err
		}

		upB, _, err := vb.TensorMaybe("upsample.bias", opts.CondChannels)
		if err != nil {
			return err
		}

		m.upsampler, err = NewConvUpsampler(upW, upB, opts.UpsampleWindow)
		return err
	}

	up, err := NewRepeatUpsampler(opts.UpsampleWindow)
	m.upsampler = up

	return err
}

func (m *Model) buildStack(vb *VarBuilder) error {
	opts := m.opts
	blocks := make([]*Block, opts.Blocks)

	for i := range opts.Blocks {
		bvb := vb.Path("blocks", fmt.Sprint(i))
		dilation := opts.DilationForBlock(i)

		dw, err := bvb.Tensor("dilated.weight", opts.gateChannels(), opts.ResidualChannels, 2)
		if err != nil {
			return err
		}

		db, _, err := bvb.TensorMaybe("dilated.bias", opts.gateChannels())
		if err != nil {
			return err
		}

		blk := &Block{}

		blk.dilated, err = NewCausalConv(dw, db, CausalConvSpec{Dilation: dilation, Causal: true})
		if err != nil {
			return fmt.Errorf("wavenet: block %d: %w", i, err)
		}

		if i < opts.Blocks-1 {
			rw, err := bvb.Tensor("res.weight", opts.ResidualChannels, opts.ResidualChannels, 1)
			if err != nil {
				return err
			}

			rb, _, err := bvb.TensorMaybe("res.bias", opts.ResidualChannels)
			if err != nil {
				return err
			}

			blk.res, err = NewCausalConv(rw, rb, CausalConvSpec{Dilation: 1})
			if err != nil {
				return fmt.Errorf("wavenet: block %d: %w", i, err)
			}
		}

		if opts.UseSkip {
			sw, err := bvb.Tensor("skip.weight", opts.SkipChannels, opts.ResidualChannels, 1)
			if err != nil {
				return err
			}

			sb, _, err := bvb.TensorMaybe("skip.bias", opts.SkipChannels)
			if err != nil {
				return err
			}

			blk.skip, err = NewCausalConv(sw, sb, CausalConvSpec{Dilation: 1})
			if err != nil {
				return fmt.Errorf("wavenet: block %d: %w", i, err)
			}
		}

		blocks[i] = blk
	}

	var err error
	m.stack, err = NewStack(blocks, StackSpec{
		ResidualChannels: opts.ResidualChannels,
		SkipChannels:     opts.SkipChannels,
		UseSkip:          opts.UseSkip,
		Gain:             opts.Gain,
		Dropout:          opts.ResDropout,
	})

	return err
}

func (m *Model) buildHead(vb *VarBuilder) error {
	opts := m.opts

	stackOut := opts.ResidualChannels
	if opts.UseSkip {
		stackOut = opts.SkipChannels
	}

	pw, err := vb.Tensor("head.proj.weight", opts.HiddenChannels, stackOut, 1)
	if err != nil {
		return err
	}

	pb, _, err := vb.TensorMaybe("head.proj.bias", opts.HiddenChannels)
	if err != nil {
		return err
	}

	proj, err := NewCausalConv(pw, pb, CausalConvSpec{Dilation: 1})
	if err != nil {
		return err
	}

	ow, err := vb.Tensor("head.out.weight", opts.Classes, opts.HiddenChannels, 1)
	if err != nil {
		return err
	}

	ob, _, err := vb.TensorMaybe("head.out.bias", opts.Classes)
	if err != nil {
		return err
	}

	out, err := NewCausalConv(ow, ob, CausalConvSpec{Dilation: 1})
	if err != nil {
		return err
	}

	m.head, err = NewOutputHead(proj, out, opts.HeadDropout)
	return err
}

func (m *Model) Options() Options       { return m.opts }
func (m *Model) Classes() int64         { return m.opts.Classes }
func (m *Model) Stack() *Stack          { return m.stack }
func (m *Model) Head() *OutputHead      { return m.head }
func (m *Model) Embed() *QuantizedInput { return m.embed }
func (m *Model) CondProj() *CausalConv  { return m.condProj }
func (m *Model) Upsampler() Upsampler   { return m.upsampler }

// PrepareConditioning upsamples frame-rate features [B, Cc, F] to sample rate
// and projects them to gate pre-activation space once, up front, so the
// per-step path only performs adds. Under direct conditioning the upsampled
// features are the slab itself and no projection applies.
func (m *Model) PrepareConditioning(features *tensor.Tensor) (*Conditioning, error) {
	if m.opts.CondChannels == 0 {
		return nil, errors.New("wavenet: model is unconditional")
	}

	shape := features.Shape()
	if len(shape) != 3 {
		return nil, fmt.Errorf("wavenet: conditioning expects [B, C, F], got %v", shape)
	}

	if shape[1] != m.opts.CondChannels {
		return nil, fmt.Errorf("wavenet: conditioning channels %d, model expects %d", shape[1], m.opts.CondChannels)
	}

	upsampled, err := m.upsampler.Upsample(features)
	if err != nil {
		return nil, err
	}

	projected := upsampled
	if m.condProj != nil {
		projected, err = m.condProj.Forward(upsampled)
		if err != nil {
			return nil, fmt.Errorf("wavenet: conditioning projection: %w", err)
		}
	}

	return &Conditioning{
		data:         projected,
		perBlock:     m.opts.PerBlockCond,
		gateChannels: m.opts.gateChannels(),
		length:       projected.Shape()[2],
	}, nil
}

// ZeroConditioning builds an all-zero conditioning of the given length for
// unconditional generation with a conditional checkpoint.
func (m *Model) ZeroConditioning(batch, length int64) (*Conditioning, error) {
	gateCh := m.opts.gateChannels()

	condCh := gateCh
	if m.opts.PerBlockCond {
		condCh *= int64(m.opts.Blocks)
	}

	data, err := tensor.Zeros([]int64{batch, condCh, length})
	if err != nil {
		return nil, err
	}

	return &Conditioning{
		data:         data,
		perBlock:     m.opts.PerBlockCond,
		gateChannels: gateCh,
		length:       length,
	}, nil
}

// Forward scores a full quantized sequence in one pass and returns logits
// [B, classes, T] shifted one step so position t depends only on inputs
// before t. cond may be nil. Dropout applies only when training is set and an
// rng is supplied.
func (m *Model) Forward(classes [][]int64, cond *Conditioning, training bool, rng *rand.Rand) (*tensor.Tensor, error) {
	if m.embed == nil {
		return nil, errors.New("wavenet: checkpoint has no quantized input layer")
	}

	x, err := m.embed.Forward(classes)
	if err != nil {
		return nil, err
	}

	stackOut, err := m.stack.Forward(x, cond, training, rng)
	if err != nil {
		return nil, err
	}

	logits, err := m.head.Forward(stackOut, training, rng)
	if err != nil {
		return nil, err
	}

	return shiftOneStep(logits)
}

// ForwardContinuous scores a continuous-valued input [B, C, T] through the
// 1x1 input convolution instead of the embedding table. The checkpoint must
// carry input.conv weights.
func (m *Model) ForwardContinuous(x *tensor.Tensor, cond *Conditioning, training bool, rng *rand.Rand) (*tensor.Tensor, error) {
	if m.inputConv == nil {
		return nil, errors.New("wavenet: checkpoint has no continuous input layer")
	}

	embedded, err := m.inputConv.Forward(x)
	if err != nil {
		return nil, err
	}

	stackOut, err := m.stack.Forward(embedded, cond, training, rng)
	if err != nil {
		return nil, err
	}

	logits, err := m.head.Forward(stackOut, training, rng)
	if err != nil {
		return nil, err
	}

	return shiftOneStep(logits)
}

// inferStep advances the streaming state by one frame. Callers hold
// sessionMu via Generate.
func (m *Model) inferStep(classes []int64, cond *Conditioning, t int64) (*tensor.Tensor, error) {
	x, err := m.stepInput(classes)
	if err != nil {
		return nil, err
	}

	stackOut, err := m.stack.InferStep(x, cond, t)
	if err != nil {
		return nil, err
	}

	return m.head.ForwardStep(stackOut)
}

// stepInput builds the residual-channel frame for one timestep. One-hot
// models look the classes up in the embedding table; continuous models mu-law
// expand them and run the 1x1 input convolution.
func (m *Model) stepInput(classes []int64) (*tensor.Tensor, error) {
	if m.embed != nil {
		return m.embed.ForwardStep(classes)
	}

	if m.inputConv.InChannels() != 1 {
		return nil, fmt.Errorf("wavenet: continuous input layer expects 1 channel for streaming, got %d", m.inputConv.InChannels())
	}

	frame, err := tensor.Zeros([]int64{int64(len(classes)), 1, 1})
	if err != nil {
		return nil, err
	}

	data := frame.RawData()
	for b, cls := range classes {
		data[b] = audio.MuLawDecodeSample(cls, m.opts.Classes)
	}

	return m.inputConv.ForwardStep(frame)
}

// ResetState drops all streaming caches. The next step starts from silence.
func (m *Model) ResetState() {
	m.stack.ResetState()
}
