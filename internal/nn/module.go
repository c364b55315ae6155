// Package nn implements the base neural network layers that the low-rank
// adaptation wrappers freeze and extend: Linear, Conv1D, Conv2D, Embedding.
//
// Design follows the Born ML framework's nn package: layers are generic over
// the compute backend, expose Parameters for training, and serialize through
// StateDict/LoadStateDict maps of raw tensors.
package nn

import (
	"github.com/born-ml/lora/internal/tensor"
)

// Module is the base interface for float-input layers.
//
// Every module must implement:
//   - Forward: Compute output from input
//   - Parameters: Return all trainable parameters
//
// Embedding is not a Module: its forward pass consumes int32 indices.
type Module[B tensor.Backend] interface {
	// Forward computes the output of the module given an input tensor.
	Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B]

	// Parameters returns all trainable parameters of this module.
	Parameters() []*Parameter[B]
}
