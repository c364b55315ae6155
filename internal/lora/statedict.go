package lora

import (
	"fmt"
	"sort"

	"github.com/born-ml/lora/internal/nn"
	"github.com/born-ml/lora/internal/tensor"
)

// ExtractTensors snapshots the trainable tensors of a set of adapters into a
// flat state dict. For every adapter at path p the result holds
// "p.lora_A" and "p.lora_B"; when the underlying layer carries a bias, the
// bias rides along as "p.bias" so a checkpoint stays loadable on its own.
// Frozen base weights are never included.
//
// The returned tensors are deep copies; mutating them does not touch the
// adapters.
func ExtractTensors[B tensor.Backend](adapters map[string]Adapter[B]) map[string]*tensor.RawTensor {
	out := make(map[string]*tensor.RawTensor, 2*len(adapters))
	for path, adapter := range adapters {
		delta := adapter.Delta()
		out[path+".lora_A"] = delta.A().Tensor().Raw().Clone()
		out[path+".lora_B"] = delta.B().Tensor().Raw().Clone()
		if bias := adapterBias(adapter); bias != nil {
			out[path+".bias"] = bias.Tensor().Raw().Clone()
		}
	}
	return out
}

// adapterBias returns the bias parameter of the adapter's base layer, or nil
// when the layer has none. Embedding layers never carry a bias.
func adapterBias[B tensor.Backend](adapter Adapter[B]) *nn.Parameter[B] {
	switch a := adapter.(type) {
	case *LinearAdapter[B]:
		return a.Base().Bias()
	case *Conv1DAdapter[B]:
		return a.Base().Bias()
	case *Conv2DAdapter[B]:
		return a.Base().Bias()
	default:
		return nil
	}
}

// InjectTensors loads a previously extracted state dict back into a set of
// adapters built over the same architecture. Adapters are processed in
// sorted path order and injection fails fast on the first missing key or
// shape mismatch; adapters already updated keep their new values, there is
// no rollback.
func InjectTensors[B tensor.Backend](adapters map[string]Adapter[B], stateDict map[string]*tensor.RawTensor) error {
	paths := make([]string, 0, len(adapters))
	for path := range adapters {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		delta := adapters[path].Delta()
		if err := injectParameter(stateDict, path+".lora_A", delta.A()); err != nil {
			return err
		}
		if err := injectParameter(stateDict, path+".lora_B", delta.B()); err != nil {
			return err
		}
		if bias := adapterBias(adapters[path]); bias != nil {
			if raw, ok := stateDict[path+".bias"]; ok {
				if err := copyInto(path+".bias", bias, raw); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func injectParameter[B tensor.Backend](stateDict map[string]*tensor.RawTensor, key string, param *nn.Parameter[B]) error {
	raw, ok := stateDict[key]
	if !ok {
		return fmt.Errorf("%w: %q", ErrMissingKey, key)
	}
	return copyInto(key, param, raw)
}

// copyInto overwrites the parameter's storage with the raw tensor's bytes.
func copyInto[B tensor.Backend](key string, param *nn.Parameter[B], raw *tensor.RawTensor) error {
	dst := param.Tensor().Raw()
	if !dst.Shape().Equal(raw.Shape()) {
		return fmt.Errorf("%w: %q has shape %v, want %v", ErrShapeMismatch, key, raw.Shape(), dst.Shape())
	}
	if dst.DType() != raw.DType() {
		return fmt.Errorf("%w: %q has dtype %v, want %v", ErrShapeMismatch, key, raw.DType(), dst.DType())
	}
	copy(dst.Data(), raw.Data())
	return nil
}
