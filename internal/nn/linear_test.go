package nn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/lora/internal/backend/cpu"
	"github.com/born-ml/lora/internal/tensor"
)

func TestLinearForward(t *testing.T) {
	backend := cpu.New()

	// W [2,3] = [[1,2,3],[4,5,6]], b = [0.5, -0.5]
	weight, err := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3}, backend)
	require.NoError(t, err)
	bias, err := tensor.FromSlice([]float32{0.5, -0.5}, tensor.Shape{2}, backend)
	require.NoError(t, err)

	layer := NewLinearWithWeight(weight, bias, backend)
	assert.Equal(t, 3, layer.InFeatures())
	assert.Equal(t, 2, layer.OutFeatures())

	x, err := tensor.FromSlice([]float32{1, 1, 1}, tensor.Shape{1, 3}, backend)
	require.NoError(t, err)

	// y = x @ W^T + b = [6, 15] + [0.5, -0.5]
	y := layer.Forward(x)
	assert.Equal(t, tensor.Shape{1, 2}, y.Shape())
	assert.InDeltaSlice(t, []float32{6.5, 14.5}, y.Data(), 1e-5)
}

func TestLinearForwardNoBias(t *testing.T) {
	backend := cpu.New()

	weight, err := tensor.FromSlice([]float32{2, 0, 0, 2}, tensor.Shape{2, 2}, backend)
	require.NoError(t, err)

	layer := NewLinearWithWeight(weight, nil, backend)
	assert.Nil(t, layer.Bias())

	x, err := tensor.FromSlice([]float32{3, 4}, tensor.Shape{1, 2}, backend)
	require.NoError(t, err)

	y := layer.Forward(x)
	assert.InDeltaSlice(t, []float32{6, 8}, y.Data(), 1e-5)
}

func TestLinearParameters(t *testing.T) {
	backend := cpu.New()

	layer := NewLinear(4, 2, backend)
	params := layer.Parameters()
	require.Len(t, params, 2)
	assert.Equal(t, "weight", params[0].Name())
	assert.Equal(t, "bias", params[1].Name())
}

func TestLinearForwardBadShapePanics(t *testing.T) {
	backend := cpu.New()
	layer := NewLinear(4, 2, backend)

	x, err := tensor.FromSlice([]float32{1, 2, 3}, tensor.Shape{1, 3}, backend)
	require.NoError(t, err)

	assert.Panics(t, func() { layer.Forward(x) })
}

func TestLinearStateDictRoundTrip(t *testing.T) {
	backend := cpu.New()

	src := NewLinear(3, 2, backend)
	for i, v := range []float32{1, 2, 3, 4, 5, 6} {
		src.Weight().Tensor().Data()[i] = v
	}

	dst := NewLinear(3, 2, backend)
	require.NoError(t, dst.LoadStateDict(src.StateDict()))

	assert.Equal(t, src.Weight().Tensor().Data(), dst.Weight().Tensor().Data())
	assert.Equal(t, src.Bias().Tensor().Data(), dst.Bias().Tensor().Data())
}
