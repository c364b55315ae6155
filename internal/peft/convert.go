package peft

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/born-ml/lora/internal/serialization"
	"github.com/born-ml/lora/internal/tensor"
)

// Dummy embedding dimensions used when a converted file must carry an
// embedding adapter the source never trained. Sized for TinyLlama.
const (
	dummyVocabSize  = 32000
	dummyHiddenSize = 2048
	defaultRank     = 4
)

const (
	loraASuffix = ".lora_A.weight"
	loraBSuffix = ".lora_B.weight"
)

// pair is one adapted layer recovered from the external file.
type pair struct {
	base string
	a    *tensor.RawTensor
	b    *tensor.RawTensor
}

// Convert converts a PEFT SafeTensors file into this framework's convention,
// emitting every pair under the single given prefix.
func Convert(peftPath, outputPath, prefix string, device tensor.Device) error {
	return convertFile(peftPath, outputPath, device, 0, func(string) string { return prefix }, false, "")
}

// ConvertDir converts a PEFT adapter directory. The directory must contain
// adapter_model.safetensors or adapter.safetensors; adapter_config.json is
// read for the rank when present.
func ConvertDir(peftDir, outputPath, prefix string, device tensor.Device) error {
	weightsPath, cfg, err := resolveDir(peftDir)
	if err != nil {
		return err
	}
	rank := 0
	if cfg != nil {
		rank = cfg.R
	}
	return convertFile(weightsPath, outputPath, device, rank, func(string) string { return prefix }, false, "")
}

// ConvertTyped converts a PEFT SafeTensors file, classifying each layer into
// an architectural role with the default table and prefixing its keys
// accordingly. When addDummyEmbeddings is set and no embedding adapter was
// present, zero-valued embedding factors are inserted so loaders that
// require the embedding group still find one.
func ConvertTyped(peftPath, outputPath, tag string, device tensor.Device, addDummyEmbeddings bool) error {
	return ConvertTypedWithTable(peftPath, outputPath, tag, device, addDummyEmbeddings, DefaultTable())
}

// ConvertTypedWithTable is ConvertTyped with a caller-supplied
// classification table.
func ConvertTypedWithTable(peftPath, outputPath, tag string, device tensor.Device, addDummyEmbeddings bool, table Table) error {
	prefixFor := func(base string) string {
		return table.Classify(base).Prefix(tag)
	}
	return convertFile(peftPath, outputPath, device, 0, prefixFor, addDummyEmbeddings, tag)
}

// ConvertDirTyped converts a PEFT adapter directory with role
// classification, reading the rank from adapter_config.json when present.
func ConvertDirTyped(peftDir, outputPath, tag string, device tensor.Device, addDummyEmbeddings bool) error {
	return ConvertDirTypedWithTable(peftDir, outputPath, tag, device, addDummyEmbeddings, DefaultTable())
}

// ConvertDirTypedWithTable is ConvertDirTyped with a caller-supplied
// classification table.
func ConvertDirTypedWithTable(peftDir, outputPath, tag string, device tensor.Device, addDummyEmbeddings bool, table Table) error {
	weightsPath, cfg, err := resolveDir(peftDir)
	if err != nil {
		return err
	}
	rank := 0
	if cfg != nil {
		rank = cfg.R
	}
	prefixFor := func(base string) string {
		return table.Classify(base).Prefix(tag)
	}
	return convertFile(weightsPath, outputPath, device, rank, prefixFor, addDummyEmbeddings, tag)
}

// resolveDir locates the weights file inside a PEFT adapter directory and
// loads its config when one exists. A present but malformed config is an
// error; an absent config is not.
func resolveDir(peftDir string) (string, *Config, error) {
	weightsPath := ""
	for _, name := range []string{"adapter_model.safetensors", "adapter.safetensors"} {
		candidate := filepath.Join(peftDir, name)
		if _, err := os.Stat(candidate); err == nil {
			weightsPath = candidate
			break
		}
	}
	if weightsPath == "" {
		return "", nil, fmt.Errorf("%w: no adapter weights in %s (tried adapter_model.safetensors and adapter.safetensors)",
			ErrInvalidAdapterFile, peftDir)
	}

	configPath := filepath.Join(peftDir, "adapter_config.json")
	if _, err := os.Stat(configPath); err != nil {
		return weightsPath, nil, nil
	}
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return "", nil, err
	}
	return weightsPath, cfg, nil
}

func convertFile(peftPath, outputPath string, device tensor.Device, rank int, prefixFor func(string) string, addDummyEmbeddings bool, tag string) error {
	tensors, _, err := serialization.ReadAll(peftPath, device)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAdapterFile, err)
	}

	pairs := pairKeys(tensors)
	out := make(map[string]*tensor.RawTensor, 2*len(pairs))

	for _, p := range pairs {
		a, b, err := reorient(p, rank)
		if err != nil {
			return err
		}
		prefix := prefixFor(p.base)
		out[prefix+"."+p.base+".lora_A"] = a
		out[prefix+"."+p.base+".lora_B"] = b
	}

	if addDummyEmbeddings {
		if err := insertDummyEmbeddings(out, tag, rank, device); err != nil {
			return err
		}
	}

	return serialization.WriteAll(outputPath, out, nil)
}

// pairKeys recovers (base path, A, B) triples from the flat key space,
// sorted by base path. A factor without its counterpart is skipped.
func pairKeys(tensors map[string]*tensor.RawTensor) []pair {
	var pairs []pair
	for name, a := range tensors {
		if !strings.Contains(name, loraASuffix) {
			continue
		}
		base := strings.Replace(name, loraASuffix, "", 1)
		b, ok := tensors[base+loraBSuffix]
		if !ok {
			continue
		}
		pairs = append(pairs, pair{base: base, a: a, b: b})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].base < pairs[j].base })
	return pairs
}

// reorient brings a factor pair into this framework's orientation:
// A [rank, inDim] and B [outDim, rank]. PEFT linear factors already match;
// a transposed 2D factor is detected by its rank dimension and flipped.
// Conv factors (3 or 4 dimensions) pass through unchanged.
func reorient(p pair, rank int) (*tensor.RawTensor, *tensor.RawTensor, error) {
	for _, raw := range []*tensor.RawTensor{p.a, p.b} {
		if n := len(raw.Shape()); n < 2 || n > 4 {
			return nil, nil, fmt.Errorf("%w: %s has %d dimensions", ErrUnknownLayerShape, p.base, n)
		}
	}
	if len(p.a.Shape()) != 2 || len(p.b.Shape()) != 2 {
		return p.a, p.b, nil
	}

	if rank <= 0 {
		// Without a config, the rank is the small dimension shared by
		// both factors.
		rank = minDim(p.a.Shape())
		if br := minDim(p.b.Shape()); br < rank {
			rank = br
		}
	}

	a, b := p.a, p.b
	if a.Shape()[0] != rank && a.Shape()[1] == rank {
		var err error
		if a, err = transpose2D(a); err != nil {
			return nil, nil, fmt.Errorf("%s: %w", p.base, err)
		}
	}
	if b.Shape()[1] != rank && b.Shape()[0] == rank {
		var err error
		if b, err = transpose2D(b); err != nil {
			return nil, nil, fmt.Errorf("%s: %w", p.base, err)
		}
	}
	return a, b, nil
}

func minDim(shape tensor.Shape) int {
	min := shape[0]
	for _, dim := range shape[1:] {
		if dim < min {
			min = dim
		}
	}
	return min
}

// transpose2D returns a transposed copy of a 2D raw tensor.
func transpose2D(raw *tensor.RawTensor) (*tensor.RawTensor, error) {
	shape := raw.Shape()
	rows, cols := shape[0], shape[1]

	out, err := tensor.NewRaw(tensor.Shape{cols, rows}, raw.DType(), raw.Device())
	if err != nil {
		return nil, err
	}

	switch raw.DType() {
	case tensor.Float32:
		src, dst := raw.AsFloat32(), out.AsFloat32()
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				dst[j*rows+i] = src[i*cols+j]
			}
		}
	case tensor.Float64:
		src, dst := raw.AsFloat64(), out.AsFloat64()
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				dst[j*rows+i] = src[i*cols+j]
			}
		}
	default:
		return nil, fmt.Errorf("%w: cannot transpose dtype %v", ErrUnknownLayerShape, raw.DType())
	}
	return out, nil
}

// insertDummyEmbeddings adds zero-valued embedding factors when the
// converted set has no tensor under the embedding prefix.
func insertDummyEmbeddings(out map[string]*tensor.RawTensor, tag string, rank int, device tensor.Device) error {
	embeddingPrefix := RoleEmbedding.Prefix(tag) + "."
	for key := range out {
		if strings.HasPrefix(key, embeddingPrefix) {
			return nil
		}
	}

	if rank <= 0 {
		rank = defaultRank
	}

	// Zero factors keep the adapter a no-op until real weights arrive.
	dummyA, err := tensor.NewRaw(tensor.Shape{rank, dummyVocabSize}, tensor.Float32, device)
	if err != nil {
		return err
	}
	dummyB, err := tensor.NewRaw(tensor.Shape{dummyHiddenSize, rank}, tensor.Float32, device)
	if err != nil {
		return err
	}

	out[embeddingPrefix+"embed_tokens.lora_A"] = dummyA
	out[embeddingPrefix+"embed_tokens.lora_B"] = dummyB
	return nil
}
