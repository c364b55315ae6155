package lora

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/lora/internal/backend/cpu"
	"github.com/born-ml/lora/internal/nn"
	"github.com/born-ml/lora/internal/tensor"
)

func newTestEmbeddingAdapter(t *testing.T, backend *cpu.CPUBackend) *EmbeddingAdapter[*cpu.CPUBackend] {
	t.Helper()

	base := nn.NewEmbedding(10, 4, backend)
	fillSeq(base.Weight.Tensor(), 0.01)

	adapter, err := NewEmbeddingAdapter("model.embed_tokens", base, Config{Rank: 2, Alpha: 4}, backend)
	require.NoError(t, err)

	fillSeq(adapter.Delta().A().Tensor(), 0.02)
	fillSeq(adapter.Delta().B().Tensor(), 0.05)
	return adapter
}

func TestEmbeddingAdapter_DeltaShapes(t *testing.T) {
	backend := cpu.New()
	adapter := newTestEmbeddingAdapter(t, backend)

	// A [rank, numEmbed], B [embedDim, rank]
	assert.Equal(t, tensor.Shape{2, 10}, adapter.Delta().A().Tensor().Shape())
	assert.Equal(t, tensor.Shape{4, 2}, adapter.Delta().B().Tensor().Shape())
	assert.Equal(t, KindEmbedding, adapter.Kind())
}

func TestEmbeddingAdapter_MergedForwardEqualsUnmerged(t *testing.T) {
	backend := cpu.New()
	adapter := newTestEmbeddingAdapter(t, backend)

	indices, err := tensor.FromSlice([]int32{0, 3, 9, 3}, tensor.Shape{4}, backend)
	require.NoError(t, err)

	unmerged, err := adapter.Forward(indices, ModeEval)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{4, 4}, unmerged.Shape())

	require.NoError(t, adapter.Merge())
	merged, err := adapter.Forward(indices, ModeEval)
	require.NoError(t, err)

	for i, v := range merged.Data() {
		assert.InDelta(t, unmerged.Data()[i], v, 1e-4)
	}
}

func TestEmbeddingAdapter_DeltaMatchesWeightForm(t *testing.T) {
	backend := cpu.New()
	adapter := newTestEmbeddingAdapter(t, backend)

	indices, err := tensor.FromSlice([]int32{5}, tensor.Shape{1}, backend)
	require.NoError(t, err)

	baseRow := adapter.Base().Forward(indices)
	out, err := adapter.Forward(indices, ModeEval)
	require.NoError(t, err)

	// The gathered delta for index i equals row i of scale*(B*A)^T.
	wd := adapter.weightDelta()
	for j := 0; j < 4; j++ {
		want := baseRow.At(0, j) + wd.At(5, j)
		assert.InDelta(t, want, out.At(0, j), 1e-5)
	}
}

func TestEmbeddingAdapter_MergeUnmergeRoundTrip(t *testing.T) {
	backend := cpu.New()
	adapter := newTestEmbeddingAdapter(t, backend)

	original := adapter.Base().Weight.Tensor().Clone()

	require.NoError(t, adapter.Merge())
	require.NoError(t, adapter.Unmerge())

	restored := adapter.Base().Weight.Tensor().Data()
	for i, v := range original.Data() {
		assert.InDelta(t, v, restored[i], 1e-5)
	}
}

func TestEmbeddingAdapter_MergeWithDropoutFails(t *testing.T) {
	backend := cpu.New()

	base := nn.NewEmbedding(10, 4, backend)
	adapter, err := NewEmbeddingAdapter("embed", base, Config{Rank: 2, Alpha: 4, Dropout: 0.3}, backend)
	require.NoError(t, err)

	assert.ErrorIs(t, adapter.Merge(), ErrMergeIncompatible)
}
