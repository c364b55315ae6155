package lora

import (
	"fmt"
	"sort"

	"github.com/born-ml/lora/internal/nn"
	"github.com/born-ml/lora/internal/tensor"
)

// Selection configures which layers the builder converts and with what
// hyperparameters.
//
// Override precedence, highest first: exact path name, layer kind, the
// global default.
type Selection struct {
	// Default is the global config applied when no override matches.
	Default Config

	// KindOverrides configures all layers of a given kind.
	KindOverrides map[Kind]Config

	// NameOverrides configures individual layers by exact path name.
	NameOverrides map[string]Config

	// Include restricts conversion to the listed path names. When empty,
	// every layer of a supported kind is converted (optionally narrowed
	// by Kinds).
	Include []string

	// Kinds narrows kind-based selection when Include is empty. Nil
	// means all four supported kinds.
	Kinds []Kind
}

// configFor resolves the effective config for one layer.
func (s Selection) configFor(path string, kind Kind) Config {
	if cfg, ok := s.NameOverrides[path]; ok {
		return cfg
	}
	if cfg, ok := s.KindOverrides[kind]; ok {
		return cfg
	}
	return s.Default
}

// kindSelected reports whether kind-based selection covers k.
func (s Selection) kindSelected(k Kind) bool {
	if len(s.Kinds) == 0 {
		return true
	}
	for _, want := range s.Kinds {
		if want == k {
			return true
		}
	}
	return false
}

// Build converts the selected original layers into adapters.
//
// layers maps structural path names to original layer values; supported
// kinds are *nn.Linear[B], *nn.Conv1D[B], *nn.Conv2D[B] and *nn.Embedding[B].
// Layers not selected are skipped. A layer explicitly requested via
// Selection.Include whose type has no adapter implementation fails with
// ErrUnsupportedLayerKind; with kind-based selection, unsupported layers are
// skipped silently (they were never requested).
func Build[B tensor.Backend](layers map[string]any, sel Selection, backend B) (map[string]Adapter[B], error) {
	adapters := make(map[string]Adapter[B])

	if len(sel.Include) > 0 {
		// Deterministic order keeps error reporting stable.
		include := append([]string(nil), sel.Include...)
		sort.Strings(include)

		for _, path := range include {
			layer, ok := layers[path]
			if !ok {
				return adapters, fmt.Errorf("%w: layer %q not found", ErrMissingKey, path)
			}
			adapter, err := buildOne(path, layer, sel, backend)
			if err != nil {
				return adapters, err
			}
			adapters[path] = adapter
		}
		return adapters, nil
	}

	paths := make([]string, 0, len(layers))
	for path := range layers {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		kind, ok := kindOf[B](layers[path])
		if !ok || !sel.kindSelected(kind) {
			continue
		}
		adapter, err := buildOne(path, layers[path], sel, backend)
		if err != nil {
			return adapters, err
		}
		adapters[path] = adapter
	}
	return adapters, nil
}

// kindOf classifies a layer value, reporting false for unsupported types.
func kindOf[B tensor.Backend](layer any) (Kind, bool) {
	switch layer.(type) {
	case *nn.Linear[B]:
		return KindLinear, true
	case *nn.Conv1D[B]:
		return KindConv1D, true
	case *nn.Conv2D[B]:
		return KindConv2D, true
	case *nn.Embedding[B]:
		return KindEmbedding, true
	default:
		return 0, false
	}
}

// buildOne constructs the adapter for a single layer.
func buildOne[B tensor.Backend](path string, layer any, sel Selection, backend B) (Adapter[B], error) {
	switch l := layer.(type) {
	case *nn.Linear[B]:
		return NewLinearAdapter(path, l, sel.configFor(path, KindLinear), backend)
	case *nn.Conv1D[B]:
		return NewConv1DAdapter(path, l, sel.configFor(path, KindConv1D), backend)
	case *nn.Conv2D[B]:
		return NewConv2DAdapter(path, l, sel.configFor(path, KindConv2D), backend)
	case *nn.Embedding[B]:
		return NewEmbeddingAdapter(path, l, sel.configFor(path, KindEmbedding), backend)
	default:
		return nil, fmt.Errorf("%w: layer %q has type %T", ErrUnsupportedLayerKind, path, layer)
	}
}
