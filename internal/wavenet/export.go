package wavenet

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/example/go-wavegen/internal/runtime/tensor"
	"github.com/example/go-wavegen/internal/safetensors"
)

// Export flattens the model into the weight map consumed by downstream
// accelerated runtimes: per-block dilated/residual/skip weights and biases,
// the two head convolutions, the input embedding and the dilation cap.
// Tensors are copied; mutating the result leaves the model untouched.
func (m *Model) Export() []safetensors.Tensor {
	var out []safetensors.Tensor

	add := func(name string, t *tensor.Tensor) {
		if t == nil {
			return
		}

		data := make([]float32, len(t.RawData()))
		copy(data, t.RawData())
		out = append(out, safetensors.Tensor{Name: name, Shape: append([]int64(nil), t.Shape()...), Data: data})
	}

	// Downstream runtimes expect a previous-sample embedding slot even
	// though this architecture only embeds the current sample.
	prev := make([]float32, m.opts.Classes*m.opts.ResidualChannels)
	out = append(out, safetensors.Tensor{
		Name:  "embedding_prev",
		Shape: []int64{m.opts.Classes, m.opts.ResidualChannels},
		Data:  prev,
	})

	if m.embed != nil {
		add("embedding_curr", m.embed.Weight())
	}
	add("conv_out_weight", m.head.Proj().Weight())
	add("conv_end_weight", m.head.Out().Weight())

	for i, blk := range m.stack.blocks {
		add(fmt.Sprintf("dilate.%d.weight", i), blk.dilated.Weight())
		add(fmt.Sprintf("dilate.%d.bias", i), blk.dilated.Bias())

		if blk.res != nil {
			add(fmt.Sprintf("res.%d.weight", i), blk.res.Weight())
			add(fmt.Sprintf("res.%d.bias", i), blk.res.Bias())
		}

		if blk.skip != nil {
			add(fmt.Sprintf("skip.%d.weight", i), blk.skip.Weight())
			add(fmt.Sprintf("skip.%d.bias", i), blk.skip.Bias())
		}
	}

	out = append(out, safetensors.Tensor{
		Name:  "max_dilation",
		Shape: []int64{1},
		Data:  []float32{float32(m.opts.MaxDilation)},
	})

	return out
}

// ExportFile writes the downstream weight map as a safetensors file.
func (m *Model) ExportFile(path string) error {
	return safetensors.WriteFile(path, m.Export())
}

// RandomCheckpoint builds a complete, loadable checkpoint with
// Glorot-uniform weights and zero biases. Used by the bench command and as a
// test fixture; the resulting model is untrained noise.
func RandomCheckpoint(opts Options, seed int64) ([]safetensors.Tensor, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(seed))
	var out []safetensors.Tensor

	addRand := func(name string, shape ...int64) {
		n := int64(1)
		for _, d := range shape {
			n *= d
		}

		fanIn := shape[len(shape)-1]
		if len(shape) >= 2 {
			fanIn = n / shape[0]
		}

		limit := float32(math.Sqrt(6 / float64(fanIn+shape[0])))
		data := make([]float32, n)
		for i := range data {
			data[i] = (rng.Float32()*2 - 1) * limit
		}

		out = append(out, safetensors.Tensor{Name: name, Shape: append([]int64(nil), shape...), Data: data})
	}

	addZero := func(name string, shape ...int64) {
		n := int64(1)
		for _, d := range shape {
			n *= d
		}

		out = append(out, safetensors.Tensor{Name: name, Shape: append([]int64(nil), shape...), Data: make([]float32, n)})
	}

	if opts.ContinuousInput {
		addRand("input.conv.weight", opts.ResidualChannels, 1, 1)
		addZero("input.conv.bias", opts.ResidualChannels)
	} else {
		addRand("input.embed.weight", opts.Classes, opts.ResidualChannels)
	}

	if opts.CondChannels > 0 {
		if !opts.DirectCond {
			gateCh := opts.gateChannels()
			if opts.PerBlockCond {
				gateCh *= int64(opts.Blocks)
			}

			addRand("cond.proj.weight", gateCh, opts.CondChannels, 1)
			addZero("cond.proj.bias", gateCh)
		}

		if opts.UpsampleKernel > 0 {
			addRand("upsample.weight", opts.CondChannels, opts.CondChannels, opts.UpsampleKernel)
			addZero("upsample.bias", opts.CondChannels)
		}
	}

	for i := range opts.Blocks {
		prefix := fmt.Sprintf("blocks.%d", i)

		addRand(prefix+".dilated.weight", opts.gateChannels(), opts.ResidualChannels, 2)
		addZero(prefix+".dilated.bias", opts.gateChannels())

		if i < opts.Blocks-1 {
			addRand(prefix+".res.weight", opts.ResidualChannels, opts.ResidualChannels, 1)
			addZero(prefix+".res.bias", opts.ResidualChannels)
		}

		if opts.UseSkip {
			addRand(prefix+".skip.weight", opts.SkipChannels, opts.ResidualChannels, 1)
			addZero(prefix+".skip.bias", opts.SkipChannels)
		}
	}

	stackOut := opts.ResidualChannels
	if opts.UseSkip {
		stackOut = opts.SkipChannels
	}

	addRand("head.proj.weight", opts.HiddenChannels, stackOut, 1)
	addZero("head.proj.bias", opts.HiddenChannels)
	addRand("head.out.weight", opts.Classes, opts.HiddenChannels, 1)
	addZero("head.out.bias", opts.Classes)

	return out, nil
}
