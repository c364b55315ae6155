package lora

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/lora/internal/nn"
	"github.com/born-ml/lora/internal/tensor"
)

// Config holds the hyperparameters of one low-rank delta.
type Config struct {
	// Rank is the inner dimension of the two factors (r).
	Rank int
	// Alpha is the scaling hyperparameter; the effective multiplier
	// applied to the delta is Alpha/Rank, which normalizes delta
	// magnitude across ranks for a fixed Alpha.
	Alpha float64
	// Dropout is the probability of zeroing an input element during
	// training-mode forward passes. Must be 0 for the delta to be
	// mergeable.
	Dropout float64
}

// Scale returns the effective delta multiplier Alpha/Rank.
func (c Config) Scale() float64 {
	return c.Alpha / float64(c.Rank)
}

// Validate checks the config ranges.
func (c Config) Validate() error {
	if c.Rank < 1 {
		return fmt.Errorf("%w: rank %d (must be >= 1)", ErrInvalidConfig, c.Rank)
	}
	if c.Alpha <= 0 {
		return fmt.Errorf("%w: alpha %v (must be > 0)", ErrInvalidConfig, c.Alpha)
	}
	if c.Dropout < 0 || c.Dropout >= 1 {
		return fmt.Errorf("%w: dropout %v (must be in [0, 1))", ErrInvalidConfig, c.Dropout)
	}
	return nil
}

// LowRankDelta holds the two trainable low-rank factors of one adapter.
//
// Factor A has shape [rank, inDim] and is initialized Kaiming-uniform;
// factor B has shape [outDim, rank] and is initialized to zero, so the
// delta starts as a no-op. Their product scale·(B·A) has the shape of the
// wrapped layer's two-dimensional weight view.
type LowRankDelta[B tensor.Backend] struct {
	config  Config
	inDim   int
	outDim  int
	a       *nn.Parameter[B] // [rank, inDim]
	b       *nn.Parameter[B] // [outDim, rank]
	backend B
}

// NewLowRankDelta creates a delta with freshly initialized factors.
func NewLowRankDelta[B tensor.Backend](inDim, outDim int, config Config, backend B) (*LowRankDelta[B], error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if inDim <= 0 || outDim <= 0 {
		return nil, fmt.Errorf("%w: dimensions in=%d, out=%d (must be > 0)", ErrInvalidConfig, inDim, outDim)
	}

	a := nn.KaimingUniform(inDim, tensor.Shape{config.Rank, inDim}, backend)
	b := nn.Zeros(tensor.Shape{outDim, config.Rank}, backend)

	return &LowRankDelta[B]{
		config:  config,
		inDim:   inDim,
		outDim:  outDim,
		a:       nn.NewParameter("lora_A", a),
		b:       nn.NewParameter("lora_B", b),
		backend: backend,
	}, nil
}

// Config returns the delta's hyperparameters.
func (d *LowRankDelta[B]) Config() Config {
	return d.config
}

// InDim returns the input dimension of factor A.
func (d *LowRankDelta[B]) InDim() int {
	return d.inDim
}

// OutDim returns the output dimension of factor B.
func (d *LowRankDelta[B]) OutDim() int {
	return d.outDim
}

// A returns the trainable down-projection factor [rank, inDim].
func (d *LowRankDelta[B]) A() *nn.Parameter[B] {
	return d.a
}

// B returns the trainable up-projection factor [outDim, rank].
func (d *LowRankDelta[B]) B() *nn.Parameter[B] {
	return d.b
}

// Parameters returns the trainable factors.
func (d *LowRankDelta[B]) Parameters() []*nn.Parameter[B] {
	return []*nn.Parameter[B]{d.a, d.b}
}

// ComputeDelta applies the low-rank path to a 2D input:
//
//	scale · (dropout(x) · Aᵀ) · Bᵀ
//
// Input shape [batch, inDim], output shape [batch, outDim]. Returns
// ErrShapeMismatch if the input's trailing dimension differs from A's
// input dimension. Dropout is applied only in ModeTrain.
func (d *LowRankDelta[B]) ComputeDelta(input *tensor.Tensor[float32, B], mode Mode) (*tensor.Tensor[float32, B], error) {
	shape := input.Shape()
	if len(shape) != 2 {
		return nil, fmt.Errorf("%w: expected 2D input, got shape %v", ErrShapeMismatch, shape)
	}
	if shape[1] != d.inDim {
		return nil, fmt.Errorf("%w: input trailing dimension %d != factor A input dimension %d",
			ErrShapeMismatch, shape[1], d.inDim)
	}

	x := d.DropoutInput(input, mode)

	// [batch, in] @ [in, rank] -> [batch, rank]
	h := x.MatMul(d.a.Tensor().T())
	// [batch, rank] @ [rank, out] -> [batch, out]
	out := h.MatMul(d.b.Tensor().T())

	return out.MulScalar(float32(d.config.Scale())), nil
}

// DropoutInput applies inverted dropout to the input in ModeTrain; in
// ModeEval (or with dropout 0) the input is returned unchanged.
func (d *LowRankDelta[B]) DropoutInput(input *tensor.Tensor[float32, B], mode Mode) *tensor.Tensor[float32, B] {
	if mode != ModeTrain || d.config.Dropout == 0 {
		return input
	}

	p := d.config.Dropout
	keep := float32(1.0 / (1.0 - p))
	mask := tensor.Zeros[float32](input.Shape(), d.backend)
	maskData := mask.Data()
	for i := range maskData {
		//nolint:gosec // math/rand for dropout masks (not security-critical)
		if rand.Float64() >= p {
			maskData[i] = keep
		}
	}
	return input.Mul(mask)
}

// WeightDelta returns scale·(B·A), shape [outDim, inDim]. Used only for
// merging; callers reshape or transpose it into the wrapped layer's weight
// layout.
func (d *LowRankDelta[B]) WeightDelta() *tensor.Tensor[float32, B] {
	ba := d.b.Tensor().MatMul(d.a.Tensor())
	return ba.MulScalar(float32(d.config.Scale()))
}

// Mergeable returns ErrMergeIncompatible if the delta carries nonzero
// dropout.
func (d *LowRankDelta[B]) Mergeable() error {
	if d.config.Dropout != 0 {
		return fmt.Errorf("%w: dropout %v", ErrMergeIncompatible, d.config.Dropout)
	}
	return nil
}

// addInPlace adds src into dst element-wise, mutating dst's storage.
func addInPlace[B tensor.Backend](dst, src *tensor.Tensor[float32, B]) error {
	if !dst.Shape().Equal(src.Shape()) {
		return fmt.Errorf("%w: cannot fold %v into %v", ErrShapeMismatch, src.Shape(), dst.Shape())
	}
	dstData := dst.Data()
	srcData := src.Data()
	for i := range dstData {
		dstData[i] += srcData[i]
	}
	return nil
}

// subInPlace subtracts src from dst element-wise, mutating dst's storage.
func subInPlace[B tensor.Backend](dst, src *tensor.Tensor[float32, B]) error {
	if !dst.Shape().Equal(src.Shape()) {
		return fmt.Errorf("%w: cannot unfold %v from %v", ErrShapeMismatch, src.Shape(), dst.Shape())
	}
	dstData := dst.Data()
	srcData := src.Data()
	for i := range dstData {
		dstData[i] -= srcData[i]
	}
	return nil
}
