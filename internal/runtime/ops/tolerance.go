package ops

import "fmt"

// Tolerance defines acceptable numeric drift versus reference outputs.
type Tolerance struct {
	Abs float64
	Rel float64
}

// KernelTolerances defines per-kernel parity targets. The stream entries
// bound drift between batch and single-step evaluation of the same weights.
var KernelTolerances = map[string]Tolerance{
	"conv1d":          {Abs: 2e-4, Rel: 2e-4},
	"convtranspose1d": {Abs: 2e-4, Rel: 2e-4},
	"softmax":         {Abs: 1e-4, Rel: 1e-4},
	"conv1d_stream":   {Abs: 1e-5, Rel: 1e-5},
	"stack_stream":    {Abs: 1e-5, Rel: 1e-5},
}

func KernelTolerance(name string) (Tolerance, error) {
	t, ok := KernelTolerances[name]
	if !ok {
		return Tolerance{}, fmt.Errorf("ops: no tolerance configured for kernel %q", name)
	}

	return t, nil
}
