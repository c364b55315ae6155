package lora

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/lora/internal/backend/cpu"
	"github.com/born-ml/lora/internal/nn"
	"github.com/born-ml/lora/internal/tensor"
)

// fillSeq writes a small deterministic ramp into a tensor so merged and
// unmerged paths have nonzero values to disagree on.
func fillSeq[B tensor.Backend](t *tensor.Tensor[float32, B], step float32) {
	data := t.Data()
	for i := range data {
		data[i] = step * float32(i+1)
	}
}

func newTestLinearAdapter(t *testing.T, backend *cpu.CPUBackend) *LinearAdapter[*cpu.CPUBackend] {
	t.Helper()

	base := nn.NewLinear(4, 3, backend)
	fillSeq(base.Weight().Tensor(), 0.1)
	fillSeq(base.Bias().Tensor(), 0.01)

	adapter, err := NewLinearAdapter("encoder.proj", base, Config{Rank: 2, Alpha: 4}, backend)
	require.NoError(t, err)

	fillSeq(adapter.Delta().A().Tensor(), 0.05)
	fillSeq(adapter.Delta().B().Tensor(), 0.03)
	return adapter
}

func TestLinearAdapter_Metadata(t *testing.T) {
	backend := cpu.New()
	adapter := newTestLinearAdapter(t, backend)

	assert.Equal(t, KindLinear, adapter.Kind())
	assert.Equal(t, "encoder.proj", adapter.Path())
	assert.False(t, adapter.Merged())
	assert.Len(t, adapter.Parameters(), 2)
}

func TestLinearAdapter_FreshAdapterIsNoOp(t *testing.T) {
	backend := cpu.New()

	base := nn.NewLinear(4, 3, backend)
	fillSeq(base.Weight().Tensor(), 0.1)

	adapter, err := NewLinearAdapter("proj", base, Config{Rank: 2, Alpha: 4}, backend)
	require.NoError(t, err)

	x, err := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{1, 4}, backend)
	require.NoError(t, err)

	want := base.Forward(x)
	got, err := adapter.Forward(x, ModeEval)
	require.NoError(t, err)

	for i, v := range got.Data() {
		assert.InDelta(t, want.Data()[i], v, 1e-6)
	}
}

func TestLinearAdapter_MergedForwardEqualsUnmerged(t *testing.T) {
	backend := cpu.New()
	adapter := newTestLinearAdapter(t, backend)

	x, err := tensor.FromSlice([]float32{1, -2, 3, 0.5, -1, 0, 2, 4}, tensor.Shape{2, 4}, backend)
	require.NoError(t, err)

	unmerged, err := adapter.Forward(x, ModeEval)
	require.NoError(t, err)

	require.NoError(t, adapter.Merge())
	assert.True(t, adapter.Merged())

	merged, err := adapter.Forward(x, ModeEval)
	require.NoError(t, err)

	for i, v := range merged.Data() {
		assert.InDelta(t, unmerged.Data()[i], v, 1e-4)
	}
}

func TestLinearAdapter_MergeUnmergeRoundTrip(t *testing.T) {
	backend := cpu.New()
	adapter := newTestLinearAdapter(t, backend)

	original := adapter.Base().Weight().Tensor().Clone()

	require.NoError(t, adapter.Merge())
	require.NoError(t, adapter.Unmerge())
	assert.False(t, adapter.Merged())

	restored := adapter.Base().Weight().Tensor().Data()
	for i, v := range original.Data() {
		assert.InDelta(t, v, restored[i], 1e-5)
	}
}

func TestLinearAdapter_StateMachineMisuse(t *testing.T) {
	backend := cpu.New()
	adapter := newTestLinearAdapter(t, backend)

	assert.ErrorIs(t, adapter.Unmerge(), ErrNotMerged)

	require.NoError(t, adapter.Merge())
	assert.ErrorIs(t, adapter.Merge(), ErrAlreadyMerged)

	require.NoError(t, adapter.Unmerge())
	assert.ErrorIs(t, adapter.Unmerge(), ErrNotMerged)
}

func TestLinearAdapter_MergeWithDropoutFails(t *testing.T) {
	backend := cpu.New()

	base := nn.NewLinear(4, 3, backend)
	adapter, err := NewLinearAdapter("proj", base, Config{Rank: 2, Alpha: 4, Dropout: 0.2}, backend)
	require.NoError(t, err)

	assert.ErrorIs(t, adapter.Merge(), ErrMergeIncompatible)
	assert.False(t, adapter.Merged())
}

func TestLinearAdapter_ForwardShapeMismatch(t *testing.T) {
	backend := cpu.New()
	adapter := newTestLinearAdapter(t, backend)

	bad, err := tensor.FromSlice([]float32{1, 2, 3}, tensor.Shape{1, 3}, backend)
	require.NoError(t, err)

	_, err = adapter.Forward(bad, ModeEval)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}
