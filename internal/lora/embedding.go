package lora

import (
	"fmt"

	"github.com/born-ml/lora/internal/nn"
	"github.com/born-ml/lora/internal/tensor"
)

// EmbeddingAdapter wraps a frozen Embedding layer with a low-rank delta.
//
// Embedding is a lookup, not a matrix multiply on the input, so the delta
// takes a different algebraic form than the other kinds: factor A has shape
// [rank, numEmbed] and factor B [embedDim, rank]. The unmerged forward
// gathers rows of Aᵀ for the requested indices and projects them through Bᵀ,
// adding the result to the base lookup. The mergeable weight delta is
// scale·(B·A)ᵀ, shape [numEmbed, embedDim].
type EmbeddingAdapter[B tensor.Backend] struct {
	mergeState
	path    string
	base    *nn.Embedding[B]
	delta   *LowRankDelta[B]
	backend B
}

// NewEmbeddingAdapter wraps base with a fresh delta configured by config.
func NewEmbeddingAdapter[B tensor.Backend](path string, base *nn.Embedding[B], config Config, backend B) (*EmbeddingAdapter[B], error) {
	delta, err := NewLowRankDelta(base.NumEmbed, base.EmbedDim, config, backend)
	if err != nil {
		return nil, fmt.Errorf("embedding adapter %q: %w", path, err)
	}
	return &EmbeddingAdapter[B]{
		path:    path,
		base:    base,
		delta:   delta,
		backend: backend,
	}, nil
}

// Kind returns KindEmbedding.
func (a *EmbeddingAdapter[B]) Kind() Kind {
	return KindEmbedding
}

// Path returns the wrapped layer's structural path name.
func (a *EmbeddingAdapter[B]) Path() string {
	return a.path
}

// Base returns the wrapped frozen layer.
func (a *EmbeddingAdapter[B]) Base() *nn.Embedding[B] {
	return a.base
}

// Delta returns the low-rank delta.
func (a *EmbeddingAdapter[B]) Delta() *LowRankDelta[B] {
	return a.delta
}

// Parameters returns the trainable delta factors.
func (a *EmbeddingAdapter[B]) Parameters() []*nn.Parameter[B] {
	return a.delta.Parameters()
}

// weightDelta returns scale·(B·A)ᵀ in the embedding weight layout
// [numEmbed, embedDim].
func (a *EmbeddingAdapter[B]) weightDelta() *tensor.Tensor[float32, B] {
	return a.delta.WeightDelta().T()
}

// Forward computes the adapted lookup.
//
// The delta is added to the output embeddings: rows of Aᵀ are gathered by
// the same indices as the base lookup, projected through Bᵀ and scaled.
// Dropout applies to the gathered A-embeddings in ModeTrain.
func (a *EmbeddingAdapter[B]) Forward(indices *tensor.Tensor[int32, B], mode Mode) (*tensor.Tensor[float32, B], error) {
	out := a.base.Forward(indices)
	if a.merged {
		return out, nil
	}

	cfg := a.delta.Config()

	// Aᵀ is [numEmbed, rank]; gathering by indices yields [..., rank].
	aT := a.delta.A().Tensor().T()
	gathered := aT.Embedding(indices)
	gathered = a.delta.DropoutInput(gathered.Reshape(gathered.NumElements()/cfg.Rank, cfg.Rank), mode)

	// [n, rank] @ [rank, embedDim] -> [n, embedDim]
	deltaFlat := gathered.MatMul(a.delta.B().Tensor().T()).MulScalar(float32(cfg.Scale()))

	outShape := out.Shape()
	return out.Add(deltaFlat.Reshape(outShape...)), nil
}

// Merge folds the delta into the frozen embedding weight in place.
func (a *EmbeddingAdapter[B]) Merge() error {
	if err := a.delta.Mergeable(); err != nil {
		return fmt.Errorf("embedding adapter %q: %w", a.path, err)
	}
	if err := a.beginMerge(); err != nil {
		return fmt.Errorf("embedding adapter %q: %w", a.path, err)
	}

	if err := addInPlace(a.base.Weight.Tensor(), a.weightDelta()); err != nil {
		return fmt.Errorf("embedding adapter %q: %w", a.path, err)
	}
	a.merged = true
	return nil
}

// Unmerge subtracts the delta from the embedding weight.
func (a *EmbeddingAdapter[B]) Unmerge() error {
	if err := a.beginUnmerge(); err != nil {
		return fmt.Errorf("embedding adapter %q: %w", a.path, err)
	}

	if err := subInPlace(a.base.Weight.Tensor(), a.weightDelta()); err != nil {
		return fmt.Errorf("embedding adapter %q: %w", a.path, err)
	}
	a.merged = false
	return nil
}
