package lora

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/lora/internal/backend/cpu"
	"github.com/born-ml/lora/internal/tensor"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"valid", Config{Rank: 4, Alpha: 8}, true},
		{"valid with dropout", Config{Rank: 4, Alpha: 8, Dropout: 0.1}, true},
		{"zero rank", Config{Rank: 0, Alpha: 8}, false},
		{"negative rank", Config{Rank: -1, Alpha: 8}, false},
		{"zero alpha", Config{Rank: 4, Alpha: 0}, false},
		{"dropout one", Config{Rank: 4, Alpha: 8, Dropout: 1.0}, false},
		{"negative dropout", Config{Rank: 4, Alpha: 8, Dropout: -0.1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			}
		})
	}
}

func TestConfigScale(t *testing.T) {
	assert.InDelta(t, 2.0, Config{Rank: 4, Alpha: 8}.Scale(), 1e-12)
	assert.InDelta(t, 0.5, Config{Rank: 16, Alpha: 8}.Scale(), 1e-12)
}

func TestNewLowRankDelta_InitialNoOp(t *testing.T) {
	backend := cpu.New()

	delta, err := NewLowRankDelta(8, 4, Config{Rank: 2, Alpha: 4}, backend)
	require.NoError(t, err)

	assert.Equal(t, tensor.Shape{2, 8}, delta.A().Tensor().Shape())
	assert.Equal(t, tensor.Shape{4, 2}, delta.B().Tensor().Shape())

	// B starts at zero, so the delta contributes nothing.
	for _, v := range delta.B().Tensor().Data() {
		assert.Zero(t, v)
	}

	x, err := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6, 7, 8}, tensor.Shape{1, 8}, backend)
	require.NoError(t, err)

	out, err := delta.ComputeDelta(x, ModeEval)
	require.NoError(t, err)
	for _, v := range out.Data() {
		assert.Zero(t, v)
	}
}

func TestNewLowRankDelta_InvalidDims(t *testing.T) {
	backend := cpu.New()

	_, err := NewLowRankDelta(0, 4, Config{Rank: 2, Alpha: 4}, backend)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewLowRankDelta(4, -1, Config{Rank: 2, Alpha: 4}, backend)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestComputeDelta_KnownValues(t *testing.T) {
	backend := cpu.New()

	// rank 2, alpha 4 -> scale 2
	delta, err := NewLowRankDelta(2, 2, Config{Rank: 2, Alpha: 4}, backend)
	require.NoError(t, err)

	copy(delta.A().Tensor().Data(), []float32{1, 0, 0, 1}) // identity [2, 2]
	copy(delta.B().Tensor().Data(), []float32{1, 2, 3, 4}) // [[1,2],[3,4]]

	x, err := tensor.FromSlice([]float32{1, 1}, tensor.Shape{1, 2}, backend)
	require.NoError(t, err)

	// 2.0 * B*A*x = [[2,4],[6,8]] @ [1,1] = [6, 14]
	out, err := delta.ComputeDelta(x, ModeEval)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 2}, out.Shape())
	assert.InDelta(t, 6.0, out.Data()[0], 1e-5)
	assert.InDelta(t, 14.0, out.Data()[1], 1e-5)

	// WeightDelta agrees with the matrix form.
	wd := delta.WeightDelta()
	assert.Equal(t, tensor.Shape{2, 2}, wd.Shape())
	assert.InDelta(t, 2.0, wd.Data()[0], 1e-5)
	assert.InDelta(t, 4.0, wd.Data()[1], 1e-5)
	assert.InDelta(t, 6.0, wd.Data()[2], 1e-5)
	assert.InDelta(t, 8.0, wd.Data()[3], 1e-5)
}

func TestComputeDelta_ShapeMismatch(t *testing.T) {
	backend := cpu.New()

	delta, err := NewLowRankDelta(4, 2, Config{Rank: 2, Alpha: 4}, backend)
	require.NoError(t, err)

	x, err := tensor.FromSlice([]float32{1, 2, 3}, tensor.Shape{1, 3}, backend)
	require.NoError(t, err)

	_, err = delta.ComputeDelta(x, ModeEval)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestDropoutInput(t *testing.T) {
	backend := cpu.New()

	delta, err := NewLowRankDelta(4, 2, Config{Rank: 2, Alpha: 4, Dropout: 0.5}, backend)
	require.NoError(t, err)

	x, err := tensor.FromSlice([]float32{1, 1, 1, 1}, tensor.Shape{1, 4}, backend)
	require.NoError(t, err)

	// Eval mode passes the input through untouched.
	assert.Same(t, x, delta.DropoutInput(x, ModeEval))

	// Train mode zeroes or rescales each element by 1/(1-p).
	dropped := delta.DropoutInput(x, ModeTrain)
	for _, v := range dropped.Data() {
		if v != 0 {
			assert.InDelta(t, 2.0, v, 1e-6)
		}
	}
}

func TestMergeable(t *testing.T) {
	backend := cpu.New()

	clean, err := NewLowRankDelta(4, 2, Config{Rank: 2, Alpha: 4}, backend)
	require.NoError(t, err)
	assert.NoError(t, clean.Mergeable())

	dropout, err := NewLowRankDelta(4, 2, Config{Rank: 2, Alpha: 4, Dropout: 0.1}, backend)
	require.NoError(t, err)
	assert.True(t, errors.Is(dropout.Mergeable(), ErrMergeIncompatible))
}
