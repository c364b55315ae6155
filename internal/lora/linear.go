package lora

import (
	"fmt"

	"github.com/born-ml/lora/internal/nn"
	"github.com/born-ml/lora/internal/tensor"
)

// LinearAdapter wraps a frozen Linear layer with a low-rank delta.
//
// The base weight [out, in] is frozen; the trainable parameters are the
// delta factors A [rank, in] and B [out, rank].
type LinearAdapter[B tensor.Backend] struct {
	mergeState
	path  string
	base  *nn.Linear[B]
	delta *LowRankDelta[B]
}

// NewLinearAdapter wraps base with a fresh delta configured by config.
func NewLinearAdapter[B tensor.Backend](path string, base *nn.Linear[B], config Config, backend B) (*LinearAdapter[B], error) {
	delta, err := NewLowRankDelta(base.InFeatures(), base.OutFeatures(), config, backend)
	if err != nil {
		return nil, fmt.Errorf("linear adapter %q: %w", path, err)
	}
	return &LinearAdapter[B]{
		path:  path,
		base:  base,
		delta: delta,
	}, nil
}

// Kind returns KindLinear.
func (a *LinearAdapter[B]) Kind() Kind {
	return KindLinear
}

// Path returns the wrapped layer's structural path name.
func (a *LinearAdapter[B]) Path() string {
	return a.path
}

// Base returns the wrapped frozen layer.
func (a *LinearAdapter[B]) Base() *nn.Linear[B] {
	return a.base
}

// Delta returns the low-rank delta.
func (a *LinearAdapter[B]) Delta() *LowRankDelta[B] {
	return a.delta
}

// Parameters returns the trainable delta factors.
func (a *LinearAdapter[B]) Parameters() []*nn.Parameter[B] {
	return a.delta.Parameters()
}

// Forward computes the adapted layer output.
//
// When merged, the base forward already includes the delta; when unmerged,
// the low-rank path is added on top of the frozen forward.
func (a *LinearAdapter[B]) Forward(input *tensor.Tensor[float32, B], mode Mode) (*tensor.Tensor[float32, B], error) {
	shape := input.Shape()
	if len(shape) != 2 {
		return nil, fmt.Errorf("linear adapter %q: %w: expected 2D input, got shape %v",
			a.path, ErrShapeMismatch, shape)
	}
	if shape[1] != a.base.InFeatures() {
		return nil, fmt.Errorf("linear adapter %q: %w: input features %d != expected %d",
			a.path, ErrShapeMismatch, shape[1], a.base.InFeatures())
	}

	out := a.base.Forward(input)
	if a.merged {
		return out, nil
	}

	delta, err := a.delta.ComputeDelta(input, mode)
	if err != nil {
		return nil, fmt.Errorf("linear adapter %q: %w", a.path, err)
	}
	return out.Add(delta), nil
}

// Merge folds scale·(B·A) into the frozen weight in place.
func (a *LinearAdapter[B]) Merge() error {
	if err := a.delta.Mergeable(); err != nil {
		return fmt.Errorf("linear adapter %q: %w", a.path, err)
	}
	if err := a.beginMerge(); err != nil {
		return fmt.Errorf("linear adapter %q: %w", a.path, err)
	}

	if err := addInPlace(a.base.Weight().Tensor(), a.delta.WeightDelta()); err != nil {
		return fmt.Errorf("linear adapter %q: %w", a.path, err)
	}
	a.merged = true
	return nil
}

// Unmerge subtracts the delta from the weight, restoring the pre-merge
// values up to floating-point rounding.
func (a *LinearAdapter[B]) Unmerge() error {
	if err := a.beginUnmerge(); err != nil {
		return fmt.Errorf("linear adapter %q: %w", a.path, err)
	}

	if err := subInPlace(a.base.Weight().Tensor(), a.delta.WeightDelta()); err != nil {
		return fmt.Errorf("linear adapter %q: %w", a.path, err)
	}
	a.merged = false
	return nil
}
