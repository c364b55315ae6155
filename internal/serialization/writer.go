package serialization

import (
	"encoding/binary"
	"fmt"
	"os"
	"sort"

	json "github.com/goccy/go-json"

	"github.com/born-ml/lora/internal/tensor"
)

// Writer writes tensors to a SafeTensors file.
type Writer struct {
	file   *os.File
	closed bool
}

// NewWriter creates a SafeTensors file writer, truncating any existing file.
func NewWriter(path string) (*Writer, error) {
	//nolint:gosec // G304: path is caller-supplied by design
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}
	return &Writer{file: file}, nil
}

// WriteAll writes a state dict to a SafeTensors file in one call.
func WriteAll(path string, tensors map[string]*tensor.RawTensor, metadata map[string]string) error {
	w, err := NewWriter(path)
	if err != nil {
		return err
	}
	defer func() {
		_ = w.Close()
	}()
	return w.WriteStateDict(tensors, metadata)
}

// WriteStateDict writes the tensors and optional metadata.
//
// Tensors are laid out in alphabetical order by name, as the format
// requires.
func (w *Writer) WriteStateDict(stateDict map[string]*tensor.RawTensor, metadata map[string]string) error {
	if w.closed {
		return fmt.Errorf("writer is closed")
	}

	names := make([]string, 0, len(stateDict))
	for name := range stateDict {
		names = append(names, name)
	}
	sort.Strings(names)

	hdr := make(map[string]interface{}, len(names)+1)
	if len(metadata) > 0 {
		hdr["__metadata__"] = metadata
	}

	var offset int64
	for _, name := range names {
		raw := stateDict[name]
		size := int64(raw.ByteSize())

		shape := raw.Shape()
		shapeInt64 := make([]int64, len(shape))
		for i, dim := range shape {
			shapeInt64[i] = int64(dim)
		}

		hdr[name] = TensorInfo{
			DType:       dtypeToSafeTensors(raw.DType()),
			Shape:       shapeInt64,
			DataOffsets: [2]int64{offset, offset + size},
		}
		offset += size
	}

	headerJSON, err := json.Marshal(hdr)
	if err != nil {
		return fmt.Errorf("marshal header: %w", err)
	}

	if err := binary.Write(w.file, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return fmt.Errorf("write header size: %w", err)
	}
	if _, err := w.file.Write(headerJSON); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, name := range names {
		if _, err := w.file.Write(stateDict[name].Data()); err != nil {
			return fmt.Errorf("write tensor %s: %w", name, err)
		}
	}
	return nil
}

// Close closes the writer and the underlying file.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.file.Close()
}

// dtypeToSafeTensors maps a DataType to its SafeTensors dtype string.
func dtypeToSafeTensors(dt tensor.DataType) string {
	switch dt {
	case tensor.Float64:
		return "F64"
	case tensor.Int32:
		return "I32"
	case tensor.Int64:
		return "I64"
	case tensor.Uint8:
		return "U8"
	case tensor.Bool:
		return "BOOL"
	default:
		return "F32"
	}
}
