package safetensors

import (
	"fmt"
)

// LoadFirstTensor reads a safetensors file and returns its first tensor by
// sorted name. Used for loose single-tensor payloads such as conditioning
// feature dumps.
func LoadFirstTensor(path string) (*Tensor, error) {
	store, err := OpenStore(path)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	names := store.Names()
	if len(names) == 0 {
		return nil, fmt.Errorf("safetensors: no tensors found")
	}

	return store.Tensor(names[0])
}

// LoadFeatures loads a conditioning feature tensor and normalizes its shape
// to [batch, channels, frames]. A 2D [channels, frames] tensor is promoted to
// batch size 1.
func LoadFeatures(path string) (*Tensor, error) {
	t, err := LoadFirstTensor(path)
	if err != nil {
		return nil, err
	}

	switch len(t.Shape) {
	case 2:
		t.Shape = []int64{1, t.Shape[0], t.Shape[1]}
		return t, nil
	case 3:
		return t, nil
	default:
		return nil, fmt.Errorf("safetensors: features have %dD shape %v, expected 2D or 3D", len(t.Shape), t.Shape)
	}
}
