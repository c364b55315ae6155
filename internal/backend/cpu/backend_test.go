package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/lora/internal/tensor"
)

func rawFrom(t *testing.T, shape tensor.Shape, values []float32) *tensor.RawTensor {
	t.Helper()
	raw, err := tensor.NewRaw(shape, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	copy(raw.AsFloat32(), values)
	return raw
}

func TestBackendMetadata(t *testing.T) {
	backend := New()
	assert.Equal(t, "CPU", backend.Name())
	assert.Equal(t, tensor.CPU, backend.Device())
}

func TestAdd(t *testing.T) {
	backend := New()

	a := rawFrom(t, tensor.Shape{2, 2}, []float32{1, 2, 3, 4})
	b := rawFrom(t, tensor.Shape{2, 2}, []float32{10, 20, 30, 40})

	got := backend.Add(a, b)
	assert.Equal(t, []float32{11, 22, 33, 44}, got.AsFloat32())
}

func TestAddBroadcast(t *testing.T) {
	backend := New()

	a := rawFrom(t, tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6})
	b := rawFrom(t, tensor.Shape{3}, []float32{10, 20, 30})

	got := backend.Add(a, b)
	assert.Equal(t, tensor.Shape{2, 3}, got.Shape())
	assert.Equal(t, []float32{11, 22, 33, 14, 25, 36}, got.AsFloat32())
}

func TestSubMul(t *testing.T) {
	backend := New()

	a := rawFrom(t, tensor.Shape{3}, []float32{5, 7, 9})
	b := rawFrom(t, tensor.Shape{3}, []float32{1, 2, 3})

	assert.Equal(t, []float32{4, 5, 6}, backend.Sub(a, b).AsFloat32())
	assert.Equal(t, []float32{5, 14, 27}, backend.Mul(a, b).AsFloat32())
}

func TestMulScalar(t *testing.T) {
	backend := New()

	a := rawFrom(t, tensor.Shape{3}, []float32{1, -2, 3})
	got := backend.MulScalar(a, float32(2.5))
	assert.Equal(t, []float32{2.5, -5, 7.5}, got.AsFloat32())
}

func TestMatMul(t *testing.T) {
	backend := New()

	// [2,3] @ [3,2] -> [2,2]
	a := rawFrom(t, tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6})
	b := rawFrom(t, tensor.Shape{3, 2}, []float32{7, 8, 9, 10, 11, 12})

	got := backend.MatMul(a, b)
	assert.Equal(t, tensor.Shape{2, 2}, got.Shape())
	assert.InDeltaSlice(t, []float32{58, 64, 139, 154}, got.AsFloat32(), 1e-5)
}

func TestTranspose2D(t *testing.T) {
	backend := New()

	a := rawFrom(t, tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6})
	got := backend.Transpose(a)

	assert.Equal(t, tensor.Shape{3, 2}, got.Shape())
	assert.Equal(t, []float32{1, 4, 2, 5, 3, 6}, got.AsFloat32())
}

func TestReshapeSharesData(t *testing.T) {
	backend := New()

	a := rawFrom(t, tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6})
	got := backend.Reshape(a, tensor.Shape{3, 2})

	assert.Equal(t, tensor.Shape{3, 2}, got.Shape())
	got.AsFloat32()[0] = 42
	assert.Equal(t, float32(42), a.AsFloat32()[0])
}

func TestConv1D(t *testing.T) {
	backend := New()

	// Single channel, kernel [1,1,2] = [1, 1]: sliding sum of pairs.
	input := rawFrom(t, tensor.Shape{1, 1, 4}, []float32{1, 2, 3, 4})
	kernel := rawFrom(t, tensor.Shape{1, 1, 2}, []float32{1, 1})

	got := backend.Conv1D(input, kernel, 1, 0, 1, 1)
	assert.Equal(t, tensor.Shape{1, 1, 3}, got.Shape())
	assert.InDeltaSlice(t, []float32{3, 5, 7}, got.AsFloat32(), 1e-6)
}

func TestConv1DStridePadding(t *testing.T) {
	backend := New()

	input := rawFrom(t, tensor.Shape{1, 1, 4}, []float32{1, 2, 3, 4})
	kernel := rawFrom(t, tensor.Shape{1, 1, 2}, []float32{1, 1})

	// L=4, pad=1, k=2, stride=2 -> Lout = (4+2-1-1)/2+1 = 3
	got := backend.Conv1D(input, kernel, 2, 1, 1, 1)
	assert.Equal(t, tensor.Shape{1, 1, 3}, got.Shape())
	assert.InDeltaSlice(t, []float32{1, 5, 4}, got.AsFloat32(), 1e-6)
}

func TestConv1DGroups(t *testing.T) {
	backend := New()

	// Two groups, each its own 1x1 kernel: scales channel 0 by 2, channel 1 by 3.
	input := rawFrom(t, tensor.Shape{1, 2, 3}, []float32{1, 2, 3, 4, 5, 6})
	kernel := rawFrom(t, tensor.Shape{2, 1, 1}, []float32{2, 3})

	got := backend.Conv1D(input, kernel, 1, 0, 1, 2)
	assert.Equal(t, tensor.Shape{1, 2, 3}, got.Shape())
	assert.InDeltaSlice(t, []float32{2, 4, 6, 12, 15, 18}, got.AsFloat32(), 1e-6)
}

func TestConv2D(t *testing.T) {
	backend := New()

	// 2x2 all-ones kernel sums each window.
	input := rawFrom(t, tensor.Shape{1, 1, 3, 3}, []float32{
		1, 2, 3,
		4, 5, 6,
		7, 8, 9,
	})
	kernel := rawFrom(t, tensor.Shape{1, 1, 2, 2}, []float32{1, 1, 1, 1})

	got := backend.Conv2D(input, kernel, 1, 0, 1, 1)
	assert.Equal(t, tensor.Shape{1, 1, 2, 2}, got.Shape())
	assert.InDeltaSlice(t, []float32{12, 16, 24, 28}, got.AsFloat32(), 1e-6)
}

func TestEmbedding(t *testing.T) {
	backend := New()

	weight := rawFrom(t, tensor.Shape{3, 2}, []float32{
		1, 2,
		3, 4,
		5, 6,
	})
	indices, err := tensor.NewRaw(tensor.Shape{2}, tensor.Int32, tensor.CPU)
	require.NoError(t, err)
	copy(indices.AsInt32(), []int32{2, 0})

	got := backend.Embedding(weight, indices)
	assert.Equal(t, tensor.Shape{2, 2}, got.Shape())
	assert.Equal(t, []float32{5, 6, 1, 2}, got.AsFloat32())
}

func TestEmbeddingOutOfRangePanics(t *testing.T) {
	backend := New()

	weight := rawFrom(t, tensor.Shape{3, 2}, make([]float32, 6))
	indices, err := tensor.NewRaw(tensor.Shape{1}, tensor.Int32, tensor.CPU)
	require.NoError(t, err)
	indices.AsInt32()[0] = 5

	assert.Panics(t, func() { backend.Embedding(weight, indices) })
}
