package cpu

import (
	"fmt"

	"github.com/born-ml/lora/internal/tensor"
)

// Embedding performs an embedding lookup.
//
// Weight shape:  [V, D]
// Indices shape: arbitrary, int32
// Output shape:  indices shape + [D]
func (cpu *CPUBackend) Embedding(weight, indices *tensor.RawTensor) *tensor.RawTensor {
	weightShape := weight.Shape()
	if len(weightShape) != 2 {
		panic(fmt.Sprintf("embedding: weight must be 2D [V,D], got %dD", len(weightShape)))
	}
	if indices.DType() != tensor.Int32 {
		panic(fmt.Sprintf("embedding: indices must be int32, got %s", indices.DType()))
	}
	if weight.DType() != tensor.Float32 {
		panic(fmt.Sprintf("embedding: unsupported weight dtype %s", weight.DType()))
	}

	v, d := weightShape[0], weightShape[1]
	outShape := append(indices.Shape().Clone(), d)

	output, err := tensor.NewRaw(outShape, weight.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("embedding: failed to create output tensor: %v", err))
	}

	w := weight.AsFloat32()
	idx := indices.AsInt32()
	out := output.AsFloat32()

	for i, id := range idx {
		if id < 0 || int(id) >= v {
			panic(fmt.Sprintf("embedding: index %d out of range [0, %d)", id, v))
		}
		copy(out[i*d:(i+1)*d], w[int(id)*d:(int(id)+1)*d])
	}

	return output
}
