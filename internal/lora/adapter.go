// Package lora implements low-rank adaptation of frozen base layers.
//
// Each adapter wraps exactly one frozen layer (Linear, Conv1D, Conv2D or
// Embedding) plus one LowRankDelta, and tracks whether the delta is currently
// folded into the base weight. Forward passes are equivalent in both states;
// merging only changes the evaluation strategy.
//
// Concurrency: the frozen weight is mutated in place only by Merge/Unmerge.
// Callers must not invoke a forward pass concurrently with a merge toggle on
// the same adapter; no internal locking is provided.
package lora

import (
	"github.com/born-ml/lora/internal/nn"
	"github.com/born-ml/lora/internal/tensor"
)

// Kind identifies the wrapped layer's type. The set is closed: the four
// kinds below are the only ones with adapter implementations.
type Kind int

// Adapter kinds.
const (
	KindLinear Kind = iota
	KindConv1D
	KindConv2D
	KindEmbedding
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindLinear:
		return "linear"
	case KindConv1D:
		return "conv1d"
	case KindConv2D:
		return "conv2d"
	case KindEmbedding:
		return "embedding"
	default:
		return "unknown"
	}
}

// Adapter is the capability interface shared by all four adapter kinds.
//
// Forward is intentionally not part of this interface: Linear and the Conv
// kinds consume float32 tensors while Embedding consumes int32 indices, so
// forward passes are declared on the concrete types.
type Adapter[B tensor.Backend] interface {
	// Kind returns the wrapped layer's kind.
	Kind() Kind

	// Path returns the structural path name of the wrapped layer.
	Path() string

	// Merged reports whether the delta is currently folded into the
	// base weight.
	Merged() bool

	// Merge folds scale·(B·A) into the frozen weight in place.
	// Fails with ErrAlreadyMerged if already merged, or
	// ErrMergeIncompatible if the delta carries nonzero dropout.
	Merge() error

	// Unmerge subtracts the delta from the weight, exactly inverting a
	// prior Merge. Fails with ErrNotMerged if not merged.
	Unmerge() error

	// Delta returns the adapter's low-rank delta.
	Delta() *LowRankDelta[B]

	// Parameters returns the adapter's trainable parameters (the two
	// low-rank factors; the base weight is frozen).
	Parameters() []*nn.Parameter[B]
}

// mergeState tracks the merge flag shared by all adapter kinds, enforcing
// at-most-one active fold.
type mergeState struct {
	merged bool
}

// Merged reports the current state.
func (m *mergeState) Merged() bool {
	return m.merged
}

// beginMerge validates the Unmerged -> Merged transition.
func (m *mergeState) beginMerge() error {
	if m.merged {
		return ErrAlreadyMerged
	}
	return nil
}

// beginUnmerge validates the Merged -> Unmerged transition.
func (m *mergeState) beginUnmerge() error {
	if !m.merged {
		return ErrNotMerged
	}
	return nil
}
