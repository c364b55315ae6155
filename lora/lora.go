// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package lora provides the public API for low-rank adaptation of Linear,
// Conv1D, Conv2D and Embedding layers.
//
// A layer adapter wraps a frozen base layer with a trainable low-rank delta
// and supports merging the delta into the base weight for inference speed
// and unmerging it to resume training:
//
//	backend := cpu.New()
//	base := nn.NewLinear(64, 32, backend)
//	adapter, err := lora.NewLinearAdapter("proj", base, lora.Config{Rank: 4, Alpha: 8}, backend)
//	out, err := adapter.Forward(x, lora.ModeEval)
package lora

import (
	"github.com/born-ml/lora/internal/lora"
	"github.com/born-ml/lora/nn"
	"github.com/born-ml/lora/tensor"
)

// Errors returned by adapters, the builder and extraction/injection.
var (
	ErrShapeMismatch        = lora.ErrShapeMismatch
	ErrAlreadyMerged        = lora.ErrAlreadyMerged
	ErrNotMerged            = lora.ErrNotMerged
	ErrMergeIncompatible    = lora.ErrMergeIncompatible
	ErrUnsupportedLayerKind = lora.ErrUnsupportedLayerKind
	ErrMissingKey           = lora.ErrMissingKey
	ErrInvalidConfig        = lora.ErrInvalidConfig
)

// Mode selects training or evaluation behavior for a forward pass.
type Mode = lora.Mode

// Forward modes.
const (
	ModeEval  Mode = lora.ModeEval
	ModeTrain Mode = lora.ModeTrain
)

// Config holds the low-rank adaptation hyperparameters of one adapter.
type Config = lora.Config

// Kind identifies which layer type an adapter wraps.
type Kind = lora.Kind

// Adapter kinds.
const (
	KindLinear    Kind = lora.KindLinear
	KindConv1D    Kind = lora.KindConv1D
	KindConv2D    Kind = lora.KindConv2D
	KindEmbedding Kind = lora.KindEmbedding
)

// Adapter is the interface shared by all four layer adapters.
type Adapter[B tensor.Backend] = lora.Adapter[B]

// LowRankDelta is the trainable A/B factor pair shared by the adapters.
type LowRankDelta[B tensor.Backend] = lora.LowRankDelta[B]

// NewLowRankDelta creates a delta with Kaiming-uniform A and zero B, so a
// fresh adapter leaves its layer's behavior unchanged.
func NewLowRankDelta[B tensor.Backend](inDim, outDim int, config Config, backend B) (*LowRankDelta[B], error) {
	return lora.NewLowRankDelta(inDim, outDim, config, backend)
}

// LinearAdapter adapts an nn.Linear layer.
type LinearAdapter[B tensor.Backend] = lora.LinearAdapter[B]

// NewLinearAdapter wraps a linear layer with a low-rank delta.
func NewLinearAdapter[B tensor.Backend](path string, base *nn.Linear[B], config Config, backend B) (*LinearAdapter[B], error) {
	return lora.NewLinearAdapter(path, base, config, backend)
}

// Conv1DAdapter adapts an nn.Conv1D layer.
type Conv1DAdapter[B tensor.Backend] = lora.Conv1DAdapter[B]

// NewConv1DAdapter wraps a 1D convolution layer with a low-rank delta.
func NewConv1DAdapter[B tensor.Backend](path string, base *nn.Conv1D[B], config Config, backend B) (*Conv1DAdapter[B], error) {
	return lora.NewConv1DAdapter(path, base, config, backend)
}

// Conv2DAdapter adapts an nn.Conv2D layer.
type Conv2DAdapter[B tensor.Backend] = lora.Conv2DAdapter[B]

// NewConv2DAdapter wraps a 2D convolution layer with a low-rank delta.
func NewConv2DAdapter[B tensor.Backend](path string, base *nn.Conv2D[B], config Config, backend B) (*Conv2DAdapter[B], error) {
	return lora.NewConv2DAdapter(path, base, config, backend)
}

// EmbeddingAdapter adapts an nn.Embedding layer.
type EmbeddingAdapter[B tensor.Backend] = lora.EmbeddingAdapter[B]

// NewEmbeddingAdapter wraps an embedding table with a low-rank delta.
func NewEmbeddingAdapter[B tensor.Backend](path string, base *nn.Embedding[B], config Config, backend B) (*EmbeddingAdapter[B], error) {
	return lora.NewEmbeddingAdapter(path, base, config, backend)
}

// Selection configures which layers Build converts and with what
// hyperparameters.
type Selection = lora.Selection

// Build converts the selected layers into adapters, applying overrides with
// precedence exact name > kind > global default.
func Build[B tensor.Backend](layers map[string]any, sel Selection, backend B) (map[string]Adapter[B], error) {
	return lora.Build(layers, sel, backend)
}

// ExtractTensors snapshots the trainable tensors of the adapters under the
// "<path>.lora_A" / "<path>.lora_B" naming scheme.
func ExtractTensors[B tensor.Backend](adapters map[string]Adapter[B]) map[string]*tensor.RawTensor {
	return lora.ExtractTensors(adapters)
}

// InjectTensors loads an extracted state dict back into the adapters,
// failing fast on the first missing key or shape mismatch.
func InjectTensors[B tensor.Backend](adapters map[string]Adapter[B], stateDict map[string]*tensor.RawTensor) error {
	return lora.InjectTensors(adapters, stateDict)
}
