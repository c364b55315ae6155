package lora

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/lora/internal/backend/cpu"
	"github.com/born-ml/lora/internal/nn"
	"github.com/born-ml/lora/internal/tensor"
)

func newTestConv1DAdapter(t *testing.T, backend *cpu.CPUBackend, config nn.ConvConfig) *Conv1DAdapter[*cpu.CPUBackend] {
	t.Helper()

	base := nn.NewConv1D(4, 3, 3, config, true, backend)
	fillSeq(base.Weight().Tensor(), 0.02)
	fillSeq(base.Bias().Tensor(), 0.01)

	adapter, err := NewConv1DAdapter("block.conv", base, Config{Rank: 2, Alpha: 4}, backend)
	require.NoError(t, err)

	fillSeq(adapter.Delta().A().Tensor(), 0.03)
	fillSeq(adapter.Delta().B().Tensor(), 0.02)
	return adapter
}

func TestConv1DAdapter_DeltaShapes(t *testing.T) {
	backend := cpu.New()
	adapter := newTestConv1DAdapter(t, backend, nn.DefaultConvConfig())

	// A [rank, inC/groups * k], B [outC, rank]
	assert.Equal(t, tensor.Shape{2, 12}, adapter.Delta().A().Tensor().Shape())
	assert.Equal(t, tensor.Shape{3, 2}, adapter.Delta().B().Tensor().Shape())
	assert.Equal(t, KindConv1D, adapter.Kind())
}

func TestConv1DAdapter_MergedForwardEqualsUnmerged(t *testing.T) {
	backend := cpu.New()

	configs := map[string]nn.ConvConfig{
		"default": nn.DefaultConvConfig(),
		"strided": {Stride: 2, Padding: 1, Dilation: 1, Groups: 1},
	}

	for name, cfg := range configs {
		t.Run(name, func(t *testing.T) {
			adapter := newTestConv1DAdapter(t, backend, cfg)

			x := tensor.Uniform[float32](tensor.Shape{2, 4, 6}, -1, 1, backend)

			unmerged, err := adapter.Forward(x, ModeEval)
			require.NoError(t, err)

			require.NoError(t, adapter.Merge())
			merged, err := adapter.Forward(x, ModeEval)
			require.NoError(t, err)

			require.Equal(t, unmerged.Shape(), merged.Shape())
			for i, v := range merged.Data() {
				assert.InDelta(t, unmerged.Data()[i], v, 1e-4)
			}
		})
	}
}

func TestConv1DAdapter_MergeUnmergeRoundTrip(t *testing.T) {
	backend := cpu.New()
	adapter := newTestConv1DAdapter(t, backend, nn.DefaultConvConfig())

	original := adapter.Base().Weight().Tensor().Clone()

	require.NoError(t, adapter.Merge())
	require.NoError(t, adapter.Unmerge())

	restored := adapter.Base().Weight().Tensor().Data()
	for i, v := range original.Data() {
		assert.InDelta(t, v, restored[i], 1e-5)
	}
}

func TestConv1DAdapter_ForwardShapeMismatch(t *testing.T) {
	backend := cpu.New()
	adapter := newTestConv1DAdapter(t, backend, nn.DefaultConvConfig())

	// Wrong dimensionality.
	bad2d := tensor.Uniform[float32](tensor.Shape{4, 6}, -1, 1, backend)
	_, err := adapter.Forward(bad2d, ModeEval)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	// Wrong channel count.
	badChannels := tensor.Uniform[float32](tensor.Shape{1, 5, 6}, -1, 1, backend)
	_, err = adapter.Forward(badChannels, ModeEval)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func newTestConv2DAdapter(t *testing.T, backend *cpu.CPUBackend) *Conv2DAdapter[*cpu.CPUBackend] {
	t.Helper()

	base := nn.NewConv2D(2, 3, 2, 2, nn.DefaultConvConfig(), true, backend)
	fillSeq(base.Weight().Tensor(), 0.02)
	fillSeq(base.Bias().Tensor(), 0.01)

	adapter, err := NewConv2DAdapter("vision.conv", base, Config{Rank: 2, Alpha: 2}, backend)
	require.NoError(t, err)

	fillSeq(adapter.Delta().A().Tensor(), 0.03)
	fillSeq(adapter.Delta().B().Tensor(), 0.02)
	return adapter
}

func TestConv2DAdapter_DeltaShapes(t *testing.T) {
	backend := cpu.New()
	adapter := newTestConv2DAdapter(t, backend)

	// A [rank, inC/groups * kh * kw], B [outC, rank]
	assert.Equal(t, tensor.Shape{2, 8}, adapter.Delta().A().Tensor().Shape())
	assert.Equal(t, tensor.Shape{3, 2}, adapter.Delta().B().Tensor().Shape())
	assert.Equal(t, KindConv2D, adapter.Kind())
}

func TestConv2DAdapter_MergedForwardEqualsUnmerged(t *testing.T) {
	backend := cpu.New()
	adapter := newTestConv2DAdapter(t, backend)

	x := tensor.Uniform[float32](tensor.Shape{1, 2, 4, 4}, -1, 1, backend)

	unmerged, err := adapter.Forward(x, ModeEval)
	require.NoError(t, err)

	require.NoError(t, adapter.Merge())
	merged, err := adapter.Forward(x, ModeEval)
	require.NoError(t, err)

	require.Equal(t, unmerged.Shape(), merged.Shape())
	for i, v := range merged.Data() {
		assert.InDelta(t, unmerged.Data()[i], v, 1e-4)
	}
}

func TestConv2DAdapter_StateMachineMisuse(t *testing.T) {
	backend := cpu.New()
	adapter := newTestConv2DAdapter(t, backend)

	assert.ErrorIs(t, adapter.Unmerge(), ErrNotMerged)
	require.NoError(t, adapter.Merge())
	assert.ErrorIs(t, adapter.Merge(), ErrAlreadyMerged)
}

func TestConv2DAdapter_ForwardShapeMismatch(t *testing.T) {
	backend := cpu.New()
	adapter := newTestConv2DAdapter(t, backend)

	bad := tensor.Uniform[float32](tensor.Shape{1, 2, 4}, -1, 1, backend)
	_, err := adapter.Forward(bad, ModeEval)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}
