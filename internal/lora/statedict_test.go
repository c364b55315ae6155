package lora

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/lora/internal/backend/cpu"
	"github.com/born-ml/lora/internal/nn"
	"github.com/born-ml/lora/internal/tensor"
)

func buildTestAdapters(t *testing.T, backend *cpu.CPUBackend) map[string]Adapter[*cpu.CPUBackend] {
	t.Helper()

	adapters, err := Build(map[string]any{
		"proj":  nn.NewLinear(4, 3, backend),
		"embed": nn.NewEmbedding(10, 4, backend),
	}, Selection{Default: Config{Rank: 2, Alpha: 4}}, backend)
	require.NoError(t, err)

	for _, adapter := range adapters {
		fillSeq(adapter.Delta().A().Tensor(), 0.02)
		fillSeq(adapter.Delta().B().Tensor(), 0.01)
	}
	return adapters
}

func TestExtractTensors_Naming(t *testing.T) {
	backend := cpu.New()
	adapters := buildTestAdapters(t, backend)

	extracted := ExtractTensors(adapters)

	assert.Contains(t, extracted, "proj.lora_A")
	assert.Contains(t, extracted, "proj.lora_B")
	assert.Contains(t, extracted, "embed.lora_A")
	assert.Contains(t, extracted, "embed.lora_B")

	// Linear layers carry their bias along; embeddings have none.
	assert.Contains(t, extracted, "proj.bias")
	assert.NotContains(t, extracted, "embed.bias")

	// The frozen weights never appear.
	assert.NotContains(t, extracted, "proj.weight")
	assert.NotContains(t, extracted, "embed.weight")

	assert.Equal(t, tensor.Shape{2, 4}, extracted["proj.lora_A"].Shape())
	assert.Equal(t, tensor.Shape{3, 2}, extracted["proj.lora_B"].Shape())
}

func TestExtractTensors_ReturnsCopies(t *testing.T) {
	backend := cpu.New()
	adapters := buildTestAdapters(t, backend)

	extracted := ExtractTensors(adapters)
	extracted["proj.lora_A"].AsFloat32()[0] = 999

	assert.NotEqual(t, float32(999), adapters["proj"].Delta().A().Tensor().Data()[0])
}

func TestInjectTensors_RoundTrip(t *testing.T) {
	backend := cpu.New()
	adapters := buildTestAdapters(t, backend)

	extracted := ExtractTensors(adapters)

	// Wipe the factors, then restore them from the snapshot.
	for _, adapter := range adapters {
		for _, p := range adapter.Parameters() {
			data := p.Tensor().Data()
			for i := range data {
				data[i] = 0
			}
		}
	}

	require.NoError(t, InjectTensors(adapters, extracted))

	for path, adapter := range adapters {
		aData := adapter.Delta().A().Tensor().Data()
		for i, want := range extracted[path+".lora_A"].AsFloat32() {
			assert.Equal(t, want, aData[i])
		}
		bData := adapter.Delta().B().Tensor().Data()
		for i, want := range extracted[path+".lora_B"].AsFloat32() {
			assert.Equal(t, want, bData[i])
		}
	}
}

func TestInjectTensors_MissingKey(t *testing.T) {
	backend := cpu.New()
	adapters := buildTestAdapters(t, backend)

	extracted := ExtractTensors(adapters)
	delete(extracted, "proj.lora_B")

	assert.ErrorIs(t, InjectTensors(adapters, extracted), ErrMissingKey)
}

func TestInjectTensors_ShapeMismatch(t *testing.T) {
	backend := cpu.New()
	adapters := buildTestAdapters(t, backend)

	extracted := ExtractTensors(adapters)
	wrong, err := tensor.NewRaw(tensor.Shape{3, 3}, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	extracted["proj.lora_A"] = wrong

	assert.ErrorIs(t, InjectTensors(adapters, extracted), ErrShapeMismatch)
}

func TestInjectTensors_NoRollback(t *testing.T) {
	backend := cpu.New()
	adapters := buildTestAdapters(t, backend)

	extracted := ExtractTensors(adapters)
	// "embed" sorts before "proj"; breaking proj leaves embed injected.
	delete(extracted, "proj.lora_A")

	for _, adapter := range adapters {
		for _, p := range adapter.Parameters() {
			data := p.Tensor().Data()
			for i := range data {
				data[i] = 0
			}
		}
	}

	err := InjectTensors(adapters, extracted)
	require.ErrorIs(t, err, ErrMissingKey)

	// The earlier adapter kept its injected values.
	assert.Equal(t, extracted["embed.lora_A"].AsFloat32()[0], adapters["embed"].Delta().A().Tensor().Data()[0])
}
