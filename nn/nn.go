// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides the public API for the neural network layers the
// adaptation system wraps: Linear, Conv1D, Conv2D and Embedding, plus the
// Parameter type their weights live in.
package nn

import (
	"github.com/born-ml/lora/internal/nn"
	"github.com/born-ml/lora/tensor"
)

// Module is the interface implemented by layers mapping one float32 tensor
// to another.
type Module[B tensor.Backend] = nn.Module[B]

// Parameter is a named tensor with an optional gradient slot.
type Parameter[B tensor.Backend] = nn.Parameter[B]

// NewParameter creates a named parameter wrapping the given tensor.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[float32, B]) *Parameter[B] {
	return nn.NewParameter(name, t)
}

// ConvConfig holds the geometry options shared by Conv1D and Conv2D.
type ConvConfig = nn.ConvConfig

// DefaultConvConfig returns stride 1, no padding, dilation 1, one group.
func DefaultConvConfig() ConvConfig {
	return nn.DefaultConvConfig()
}

// Linear is a fully connected layer: y = x @ W^T + b.
type Linear[B tensor.Backend] = nn.Linear[B]

// NewLinear creates a linear layer with Xavier-initialized weights and a
// zero bias.
func NewLinear[B tensor.Backend](inFeatures, outFeatures int, backend B) *Linear[B] {
	return nn.NewLinear(inFeatures, outFeatures, backend)
}

// NewLinearWithWeight creates a linear layer over existing weight and bias
// tensors; bias may be nil.
func NewLinearWithWeight[B tensor.Backend](weight, bias *tensor.Tensor[float32, B], backend B) *Linear[B] {
	return nn.NewLinearWithWeight(weight, bias, backend)
}

// Conv1D is a 1D convolution layer over [N, C, L] inputs.
type Conv1D[B tensor.Backend] = nn.Conv1D[B]

// NewConv1D creates a 1D convolution layer.
func NewConv1D[B tensor.Backend](inChannels, outChannels, kernelSize int, config ConvConfig, useBias bool, backend B) *Conv1D[B] {
	return nn.NewConv1D(inChannels, outChannels, kernelSize, config, useBias, backend)
}

// Conv2D is a 2D convolution layer over [N, C, H, W] inputs.
type Conv2D[B tensor.Backend] = nn.Conv2D[B]

// NewConv2D creates a 2D convolution layer.
func NewConv2D[B tensor.Backend](inChannels, outChannels, kernelH, kernelW int, config ConvConfig, useBias bool, backend B) *Conv2D[B] {
	return nn.NewConv2D(inChannels, outChannels, kernelH, kernelW, config, useBias, backend)
}

// Embedding is a lookup table from int32 indices to dense vectors.
type Embedding[B tensor.Backend] = nn.Embedding[B]

// NewEmbedding creates an embedding table with N(0, 1) initialization.
func NewEmbedding[B tensor.Backend](numEmbeddings, embeddingDim int, backend B) *Embedding[B] {
	return nn.NewEmbedding(numEmbeddings, embeddingDim, backend)
}

// NewEmbeddingWithWeight creates an embedding table over an existing weight.
func NewEmbeddingWithWeight[B tensor.Backend](weight *tensor.Tensor[float32, B]) *Embedding[B] {
	return nn.NewEmbeddingWithWeight(weight)
}
