package lora

import (
	"fmt"

	"github.com/born-ml/lora/internal/nn"
	"github.com/born-ml/lora/internal/tensor"
)

// Conv2DAdapter wraps a frozen Conv2D layer with a low-rank delta.
//
// Factor A has shape [rank, inC/groups · kh · kw] and factor B [outC, rank];
// scale·(B·A) reshapes exactly to the base kernel [outC, inC/groups, kh, kw].
// The convolution geometry is taken from the base layer unchanged.
type Conv2DAdapter[B tensor.Backend] struct {
	mergeState
	path  string
	base  *nn.Conv2D[B]
	delta *LowRankDelta[B]
}

// NewConv2DAdapter wraps base with a fresh delta configured by config.
func NewConv2DAdapter[B tensor.Backend](path string, base *nn.Conv2D[B], config Config, backend B) (*Conv2DAdapter[B], error) {
	kernel := base.KernelSize()
	inDim := (base.InChannels() / base.Config().Groups) * kernel[0] * kernel[1]
	delta, err := NewLowRankDelta(inDim, base.OutChannels(), config, backend)
	if err != nil {
		return nil, fmt.Errorf("conv2d adapter %q: %w", path, err)
	}
	return &Conv2DAdapter[B]{
		path:  path,
		base:  base,
		delta: delta,
	}, nil
}

// Kind returns KindConv2D.
func (a *Conv2DAdapter[B]) Kind() Kind {
	return KindConv2D
}

// Path returns the wrapped layer's structural path name.
func (a *Conv2DAdapter[B]) Path() string {
	return a.path
}

// Base returns the wrapped frozen layer.
func (a *Conv2DAdapter[B]) Base() *nn.Conv2D[B] {
	return a.base
}

// Delta returns the low-rank delta.
func (a *Conv2DAdapter[B]) Delta() *LowRankDelta[B] {
	return a.delta
}

// Parameters returns the trainable delta factors.
func (a *Conv2DAdapter[B]) Parameters() []*nn.Parameter[B] {
	return a.delta.Parameters()
}

// kernelDelta returns scale·(B·A) reshaped to the base kernel layout.
func (a *Conv2DAdapter[B]) kernelDelta() *tensor.Tensor[float32, B] {
	shape := a.base.Weight().Tensor().Shape()
	return a.delta.WeightDelta().Reshape(shape...)
}

// Forward computes the adapted layer output.
func (a *Conv2DAdapter[B]) Forward(input *tensor.Tensor[float32, B], mode Mode) (*tensor.Tensor[float32, B], error) {
	inputShape := input.Shape()
	if len(inputShape) != 4 {
		return nil, fmt.Errorf("conv2d adapter %q: %w: expected 4D input [N,C,H,W], got shape %v",
			a.path, ErrShapeMismatch, inputShape)
	}
	if inputShape[1] != a.base.InChannels() {
		return nil, fmt.Errorf("conv2d adapter %q: %w: input channels %d != expected %d",
			a.path, ErrShapeMismatch, inputShape[1], a.base.InChannels())
	}

	out := a.base.Forward(input)
	if a.merged {
		return out, nil
	}

	x := a.delta.DropoutInput(input, mode)
	deltaOut := a.base.Convolve(x, a.kernelDelta())
	return out.Add(deltaOut), nil
}

// Merge folds the delta kernel into the frozen weight in place.
func (a *Conv2DAdapter[B]) Merge() error {
	if err := a.delta.Mergeable(); err != nil {
		return fmt.Errorf("conv2d adapter %q: %w", a.path, err)
	}
	if err := a.beginMerge(); err != nil {
		return fmt.Errorf("conv2d adapter %q: %w", a.path, err)
	}

	if err := addInPlace(a.base.Weight().Tensor(), a.kernelDelta()); err != nil {
		return fmt.Errorf("conv2d adapter %q: %w", a.path, err)
	}
	a.merged = true
	return nil
}

// Unmerge subtracts the delta kernel from the weight.
func (a *Conv2DAdapter[B]) Unmerge() error {
	if err := a.beginUnmerge(); err != nil {
		return fmt.Errorf("conv2d adapter %q: %w", a.path, err)
	}

	if err := subInPlace(a.base.Weight().Tensor(), a.kernelDelta()); err != nil {
		return fmt.Errorf("conv2d adapter %q: %w", a.path, err)
	}
	a.merged = false
	return nil
}
