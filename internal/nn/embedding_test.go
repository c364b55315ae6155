package nn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/lora/internal/backend/cpu"
	"github.com/born-ml/lora/internal/tensor"
)

func TestEmbeddingForward(t *testing.T) {
	backend := cpu.New()

	weight, err := tensor.FromSlice([]float32{
		10, 11,
		20, 21,
		30, 31,
	}, tensor.Shape{3, 2}, backend)
	require.NoError(t, err)

	emb := NewEmbeddingWithWeight(weight)
	assert.Equal(t, 3, emb.NumEmbed)
	assert.Equal(t, 2, emb.EmbedDim)

	indices, err := tensor.FromSlice([]int32{2, 0, 2}, tensor.Shape{3}, backend)
	require.NoError(t, err)

	out := emb.Forward(indices)
	assert.Equal(t, tensor.Shape{3, 2}, out.Shape())
	assert.InDeltaSlice(t, []float32{30, 31, 10, 11, 30, 31}, out.Data(), 1e-5)
}

func TestEmbeddingForwardBatched(t *testing.T) {
	backend := cpu.New()

	emb := NewEmbedding(5, 4, backend)
	indices, err := tensor.FromSlice([]int32{0, 1, 2, 3, 4, 0}, tensor.Shape{2, 3}, backend)
	require.NoError(t, err)

	out := emb.Forward(indices)
	assert.Equal(t, tensor.Shape{2, 3, 4}, out.Shape())
}

func TestEmbeddingOutOfRangePanics(t *testing.T) {
	backend := cpu.New()

	emb := NewEmbedding(3, 2, backend)
	indices, err := tensor.FromSlice([]int32{3}, tensor.Shape{1}, backend)
	require.NoError(t, err)

	assert.Panics(t, func() { emb.Forward(indices) })
}

func TestEmbeddingWithWeightRejectsNon2D(t *testing.T) {
	backend := cpu.New()

	weight, err := tensor.FromSlice(make([]float32, 8), tensor.Shape{2, 2, 2}, backend)
	require.NoError(t, err)

	assert.Panics(t, func() { NewEmbeddingWithWeight(weight) })
}
