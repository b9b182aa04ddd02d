package wavenet

import (
	"errors"
	"fmt"

	"github.com/example/go-wavegen/internal/runtime/tensor"
)

// QuantizedInput maps quantized sample class indices (mu-law codes) to
// residual-channel feature frames through a learned embedding table, with an
// optional softsign activation.
type QuantizedInput struct {
	weight   *tensor.Tensor // [classes, channels]
	classes  int64
	channels int64
	softsign bool
}

func NewQuantizedInput(weight *tensor.Tensor, softsign bool) (*QuantizedInput, error) {
	if weight == nil {
		return nil, errors.New("wavenet: input embedding weight must not be nil")
	}

	shape := weight.Shape()
	if len(shape) != 2 {
		return nil, fmt.Errorf("wavenet: input embedding must be rank 2 [classes, channels], got %v", shape)
	}

	return &QuantizedInput{
		weight:   weight,
		classes:  shape[0],
		channels: shape[1],
		softsign: softsign,
	}, nil
}

func (q *QuantizedInput) Classes() int64 { return q.classes }

// Weight exposes the embedding table for export. Callers must not modify it.
func (q *QuantizedInput) Weight() *tensor.Tensor { return q.weight }

// Forward embeds a [B][T] index matrix into [B, channels, T].
func (q *QuantizedInput) Forward(classes [][]int64) (*tensor.Tensor, error) {
	if len(classes) == 0 {
		return nil, errors.New("wavenet: input embedding requires at least one batch row")
	}

	batch := int64(len(classes))
	length := int64(len(classes[0]))

	out, err := tensor.Zeros([]int64{batch, q.channels, length})
	if err != nil {
		return nil, err
	}

	w := q.weight.RawData()
	data := out.RawData()

	for b, row := range classes {
		if int64(len(row)) != length {
			return nil, fmt.Errorf("wavenet: input row %d length %d, want %d", b, len(row), length)
		}

		for t, cls := range row {
			if cls < 0 || cls >= q.classes {
				return nil, fmt.Errorf("wavenet: input class %d out of range [0,%d)", cls, q.classes)
			}

			emb := w[cls*q.channels : (cls+1)*q.channels]
			base := int64(b) * q.channels * length
			for ch := range q.channels {
				v := emb[ch]
				if q.softsign {
					if v < 0 {
						v = v / (1 - v)
					} else {
						v = v / (1 + v)
					}
				}

				data[base+ch*length+int64(t)] = v
			}
		}
	}

	return out, nil
}

// ForwardStep embeds one class index per batch element into [B, channels, 1].
func (q *QuantizedInput) ForwardStep(classes []int64) (*tensor.Tensor, error) {
	rows := make([][]int64, len(classes))
	for b, cls := range classes {
		rows[b] = []int64{cls}
	}

	return q.Forward(rows)
}
