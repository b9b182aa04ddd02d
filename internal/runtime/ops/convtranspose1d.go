package ops

import (
	"errors"
	"fmt"

	"github.com/example/go-wavegen/internal/runtime/tensor"
)

// ConvTranspose1D performs a deterministic CPU ConvTranspose1d. It is used by
// the learned conditioning upsampler, which runs once per generation session,
// so only the groups=1 path gets the transposed-input fast treatment.
// input: [batch, in_channels, length]
// kernel: [in_channels, out_channels/groups, kernel_size]
func ConvTranspose1D(input, kernel, bias *tensor.Tensor, stride, padding, outputPadding, dilation, groups int64) (*tensor.Tensor, error) {
	p, out, biasData, err := prepareConvTranspose1D(input, kernel, bias, stride, padding, outputPadding, dilation, groups)
	if err != nil {
		return nil, err
	}

	if groups == 1 {
		convTranspose1DGroups1(input.RawData(), kernel.RawData(), biasData,
			p.batch, p.inChannels, p.inLength, p.outChannels, p.kernelSize, p.outLength,
			stride, padding, dilation, out.RawData())

		return out, nil
	}

	convTranspose1DGrouped(input.RawData(), kernel.RawData(), biasData, out.RawData(), p,
		stride, padding, dilation, groups)

	return out, nil
}

// ConvTranspose1DRightTrim runs ConvTranspose1D and drops the trailing trim
// positions from the time axis. With trim = kernelSize - stride this yields
// exactly inLength*stride output frames, the layout the conditioning
// upsampler needs.
func ConvTranspose1DRightTrim(input, kernel, bias *tensor.Tensor, stride, padding, outputPadding, dilation, groups, trim int64) (*tensor.Tensor, error) {
	out, err := ConvTranspose1D(input, kernel, bias, stride, padding, outputPadding, dilation, groups)
	if err != nil {
		return nil, err
	}

	if trim <= 0 {
		return out, nil
	}

	outLen := out.Shape()[2]
	if trim >= outLen {
		return nil, fmt.Errorf("ops: convtranspose1d trim %d >= output length %d", trim, outLen)
	}

	return out.Narrow(2, 0, outLen-trim)
}

type convTr1DParams struct {
	batch       int64
	inChannels  int64
	inLength    int64
	outChannels int64
	kernelSize  int64
	outLength   int64
	outPerGroup int64
	inPerGroup  int64
}

func prepareConvTranspose1D(
	input, kernel, bias *tensor.Tensor,
	stride, padding, outputPadding, dilation, groups int64,
) (convTr1DParams, *tensor.Tensor, []float32, error) {
	if input == nil || kernel == nil {
		return convTr1DParams{}, nil, nil, errors.New("ops: convtranspose1d requires non-nil input/kernel")
	}

	if stride <= 0 || dilation <= 0 || groups <= 0 {
		return convTr1DParams{}, nil, nil, errors.New("ops: convtranspose1d stride/dilation/groups must be > 0")
	}

	inShape := input.Shape()
	kShape := kernel.Shape()

	if len(inShape) != 3 || len(kShape) != 3 {
		return convTr1DParams{}, nil, nil, fmt.Errorf("ops: convtranspose1d expects input/kernel rank 3, got %v and %v", inShape, kShape)
	}

	p := convTr1DParams{
		batch:      inShape[0],
		inChannels: inShape[1],
		inLength:   inShape[2],
		kernelSize: kShape[2],
	}

	if kShape[0] != p.inChannels {
		return convTr1DParams{}, nil, nil, fmt.Errorf("ops: convtranspose1d kernel in_channels %d does not match input %d", kShape[0], p.inChannels)
	}

	if p.inChannels%groups != 0 {
		return convTr1DParams{}, nil, nil, fmt.Errorf("ops: convtranspose1d in_channels %d not divisible by groups %d", p.inChannels, groups)
	}

	p.outPerGroup = kShape[1]
	p.inPerGroup = p.inChannels / groups
	p.outChannels = p.outPerGroup * groups

	if bias != nil {
		bShape := bias.Shape()
		if len(bShape) != 1 || bShape[0] != p.outChannels {
			return convTr1DParams{}, nil, nil, fmt.Errorf("ops: convtranspose1d bias shape %v does not match out_channels %d", bShape, p.outChannels)
		}
	}

	p.outLength = (p.inLength-1)*stride - 2*padding + dilation*(p.kernelSize-1) + outputPadding + 1
	if p.outLength <= 0 {
		return convTr1DParams{}, nil, nil, fmt.Errorf("ops: convtranspose1d produced non-positive output length %d", p.outLength)
	}

	out, err := tensor.Zeros([]int64{p.batch, p.outChannels, p.outLength})
	if err != nil {
		return convTr1DParams{}, nil, nil, err
	}

	var biasData []float32
	if bias != nil {
		biasData = bias.RawData()
	}

	return p, out, biasData, nil
}

// convTranspose1DGroups1 transposes the input to [inLen, inCh] and the kernel
// to [kSize, outCh, inCh] so that the inner accumulation is a contiguous dot
// product per (kx, oc, ix) triple.
func convTranspose1DGroups1(
	inputData, kernelData, biasData []float32,
	batch, inCh, inLen, outCh, kSize, outLen,
	stride, padding, dilation int64,
	outData []float32,
) {
	inChI := int(inCh)
	inLenI := int(inLen)
	outChI := int(outCh)
	outLenI := int(outLen)
	kSizeI := int(kSize)

	kernelT := getScratch(kSizeI * outChI * inChI)
	defer putScratch(kernelT)

	for ic := range inChI {
		for oc := range outChI {
			for kx := range kSizeI {
				kernelT[(kx*outChI+oc)*inChI+ic] = kernelData[(ic*outChI+oc)*kSizeI+kx]
			}
		}
	}

	inputT := getScratch(inLenI * inChI)
	defer putScratch(inputT)

	for b := range batch {
		bI := int(b)

		if b > 0 {
			for i := range inputT {
				inputT[i] = 0
			}
		}

		for ic := range inChI {
			base := (bI*inChI + ic) * inLenI

			src := inputData[base : base+inLenI]
			for ix, v := range src {
				inputT[ix*inChI+ic] = v
			}
		}

		outBase := bI * outChI * outLenI
		outBatch := outData[outBase : outBase+outChI*outLenI]
		parallelFor(outChI, getConvWorkers(), func(ocLo, ocHi int) {
			for oc := ocLo; oc < ocHi; oc++ {
				outRow := outBatch[oc*outLenI : (oc+1)*outLenI]
				for kx := range kSizeI {
					kOff := (kx*outChI + oc) * inChI
					kernelTRow := kernelT[kOff : kOff+inChI]

					for ix := range inLenI {
						outPos := int64(ix)*stride - padding + int64(kx)*dilation
						if outPos < 0 || outPos >= outLen {
							continue
						}

						inputRow := inputT[ix*inChI : (ix+1)*inChI]
						outRow[outPos] += tensor.DotProduct(kernelTRow, inputRow)
					}
				}

				if biasData != nil {
					bv := biasData[oc]
					for i := range outRow {
						outRow[i] += bv
					}
				}
			}
		})
	}
}

func convTranspose1DGrouped(
	inputData, kernelData, biasData, outData []float32,
	p convTr1DParams,
	stride, padding, dilation, groups int64,
) {
	for b := range p.batch {
		for g := range groups {
			for icg := range p.inPerGroup {
				ic := g*p.inPerGroup + icg
				inBase := (b*p.inChannels + ic) * p.inLength

				for ocg := range p.outPerGroup {
					oc := g*p.outPerGroup + ocg
					kBase := (ic*p.outPerGroup + ocg) * p.kernelSize
					outBase := (b*p.outChannels + oc) * p.outLength

					for ix := range p.inLength {
						inVal := inputData[inBase+ix]
						if inVal == 0 {
							continue
						}

						for kx := range p.kernelSize {
							outPos := ix*stride - padding + kx*dilation
							if outPos >= 0 && outPos < p.outLength {
								outData[outBase+outPos] += inVal * kernelData[kBase+kx]
							}
						}
					}
				}
			}
		}

		if biasData != nil {
			for oc := range p.outChannels {
				outRow := outData[(b*p.outChannels+oc)*p.outLength : (b*p.outChannels+oc+1)*p.outLength]

				bv := biasData[oc]
				for i := range outRow {
					outRow[i] += bv
				}
			}
		}
	}
}
