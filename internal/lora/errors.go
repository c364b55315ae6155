package lora

import "errors"

// Typed failures of the adaptation core. All are returned to the immediate
// caller; nothing here is retried or swallowed.
var (
	// ErrShapeMismatch reports incompatible tensor dimensions.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrAlreadyMerged reports a merge on an adapter whose delta is
	// already folded into the base weight.
	ErrAlreadyMerged = errors.New("adapter already merged")

	// ErrNotMerged reports an unmerge on an adapter that was never merged.
	ErrNotMerged = errors.New("adapter not merged")

	// ErrMergeIncompatible reports a merge attempted with nonzero dropout.
	// Folding a stochastic delta into fixed weights is not well-defined.
	ErrMergeIncompatible = errors.New("merge incompatible with nonzero dropout")

	// ErrUnsupportedLayerKind reports a layer type with no adapter
	// implementation.
	ErrUnsupportedLayerKind = errors.New("unsupported layer kind")

	// ErrMissingKey reports a reference to an absent tensor during
	// injection.
	ErrMissingKey = errors.New("missing tensor key")

	// ErrInvalidConfig reports an out-of-range rank, alpha or dropout.
	ErrInvalidConfig = errors.New("invalid adaptation config")
)
