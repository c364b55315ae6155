package serialization

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/d4l3k/go-bfloat16"
	json "github.com/goccy/go-json"
	"github.com/x448/float16"

	"github.com/born-ml/lora/internal/tensor"
)

// maxHeaderSize caps the JSON header; anything larger is a corrupt or
// hostile file.
const maxHeaderSize = 100 * 1024 * 1024

// TensorInfo describes one tensor entry in the SafeTensors header.
type TensorInfo struct {
	DType       string   `json:"dtype"`
	Shape       []int64  `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"` // [start, end) into the data section
}

// header is the parsed JSON header, metadata split out from tensor entries.
type header struct {
	Metadata map[string]string
	Tensors  map[string]TensorInfo
}

func (h *header) UnmarshalJSON(data []byte) error {
	var rawMap map[string]json.RawMessage
	if err := json.Unmarshal(data, &rawMap); err != nil {
		return err
	}

	if metadataRaw, ok := rawMap["__metadata__"]; ok {
		if err := json.Unmarshal(metadataRaw, &h.Metadata); err != nil {
			return fmt.Errorf("unmarshal metadata: %w", err)
		}
	}

	h.Tensors = make(map[string]TensorInfo, len(rawMap))
	for key, value := range rawMap {
		if key == "__metadata__" {
			continue
		}
		var info TensorInfo
		if err := json.Unmarshal(value, &info); err != nil {
			return fmt.Errorf("unmarshal tensor %s: %w", key, err)
		}
		h.Tensors[key] = info
	}
	return nil
}

// Reader reads tensors from a SafeTensors file.
type Reader struct {
	file       *os.File
	header     header
	dataOffset int64
	dataSize   int64
}

// Open opens a SafeTensors file and parses its header.
func Open(path string) (*Reader, error) {
	//nolint:gosec // G304: path is caller-supplied by design
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	r, err := newReader(file)
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	return r, nil
}

func newReader(file *os.File) (*Reader, error) {
	var headerSize uint64
	if err := binary.Read(file, binary.LittleEndian, &headerSize); err != nil {
		return nil, fmt.Errorf("%w: read header size: %v", ErrInvalidHeader, err)
	}
	if headerSize > maxHeaderSize {
		return nil, fmt.Errorf("%w: header size %d too large", ErrInvalidHeader, headerSize)
	}

	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(file, headerBytes); err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrInvalidHeader, err)
	}

	var hdr header
	if err := json.Unmarshal(headerBytes, &hdr); err != nil {
		return nil, fmt.Errorf("%w: parse header JSON: %v", ErrInvalidHeader, err)
	}

	stat, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	dataOffset := int64(8 + headerSize) //nolint:gosec // G115: bounded by maxHeaderSize

	r := &Reader{
		file:       file,
		header:     hdr,
		dataOffset: dataOffset,
		dataSize:   stat.Size() - dataOffset,
	}
	if err := r.validateOffsets(); err != nil {
		return nil, err
	}
	return r, nil
}

// validateOffsets checks every tensor entry against the data section bounds
// and its declared shape.
func (r *Reader) validateOffsets() error {
	for name, info := range r.header.Tensors {
		start, end := info.DataOffsets[0], info.DataOffsets[1]
		if start < 0 || end < start || end > r.dataSize {
			return fmt.Errorf("%w: tensor %s offsets [%d, %d] outside data section of %d bytes",
				ErrInvalidOffsets, name, start, end, r.dataSize)
		}
		elemSize, err := dtypeByteSize(info.DType)
		if err != nil {
			return fmt.Errorf("tensor %s: %w", name, err)
		}
		numel := int64(1)
		for _, dim := range info.Shape {
			if dim < 0 {
				return fmt.Errorf("%w: tensor %s has negative dimension %d", ErrInvalidOffsets, name, dim)
			}
			numel *= dim
		}
		if want := numel * elemSize; end-start != want {
			return fmt.Errorf("%w: tensor %s spans %d bytes, shape %v needs %d",
				ErrInvalidOffsets, name, end-start, info.Shape, want)
		}
	}
	return nil
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	if r.file == nil {
		return nil
	}
	return r.file.Close()
}

// Metadata returns the "__metadata__" map, nil when absent.
func (r *Reader) Metadata() map[string]string {
	return r.header.Metadata
}

// TensorNames returns all tensor names in the file, sorted.
func (r *Reader) TensorNames() []string {
	names := make([]string, 0, len(r.header.Tensors))
	for name := range r.header.Tensors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TensorInfo returns header information for a named tensor.
func (r *Reader) TensorInfo(name string) (TensorInfo, error) {
	info, ok := r.header.Tensors[name]
	if !ok {
		return TensorInfo{}, fmt.Errorf("%w: %s", ErrTensorNotFound, name)
	}
	return info, nil
}

// readTensorData reads the raw byte span of a named tensor.
func (r *Reader) readTensorData(name string) ([]byte, error) {
	info, err := r.TensorInfo(name)
	if err != nil {
		return nil, err
	}

	start := r.dataOffset + info.DataOffsets[0]
	size := info.DataOffsets[1] - info.DataOffsets[0]

	if _, err := r.file.Seek(start, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek to tensor %s: %w", name, err)
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(r.file, data); err != nil {
		return nil, fmt.Errorf("read tensor %s: %w", name, err)
	}
	return data, nil
}

// LoadTensor loads a named tensor onto the given device. F16 and BF16
// payloads are decoded to Float32; all other dtypes load verbatim.
func (r *Reader) LoadTensor(name string, device tensor.Device) (*tensor.RawTensor, error) {
	info, err := r.TensorInfo(name)
	if err != nil {
		return nil, err
	}

	data, err := r.readTensorData(name)
	if err != nil {
		return nil, err
	}

	shape := make(tensor.Shape, len(info.Shape))
	for i, dim := range info.Shape {
		shape[i] = int(dim)
	}
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("tensor %s: %w", name, err)
	}

	switch info.DType {
	case "F16":
		return rawFromFloat32(decodeF16(data), shape, device)
	case "BF16":
		return rawFromFloat32(bfloat16.DecodeFloat32(data), shape, device)
	}

	dtype, err := dtypeFromSafeTensors(info.DType)
	if err != nil {
		return nil, fmt.Errorf("tensor %s: %w", name, err)
	}
	raw, err := tensor.NewRaw(shape, dtype, device)
	if err != nil {
		return nil, fmt.Errorf("tensor %s: %w", name, err)
	}
	copy(raw.Data(), data)
	return raw, nil
}

// LoadAll loads every tensor in the file, keyed by name.
func (r *Reader) LoadAll(device tensor.Device) (map[string]*tensor.RawTensor, error) {
	out := make(map[string]*tensor.RawTensor, len(r.header.Tensors))
	for _, name := range r.TensorNames() {
		raw, err := r.LoadTensor(name, device)
		if err != nil {
			return nil, err
		}
		out[name] = raw
	}
	return out, nil
}

// ReadAll opens a SafeTensors file and loads every tensor onto the device.
func ReadAll(path string, device tensor.Device) (map[string]*tensor.RawTensor, map[string]string, error) {
	r, err := Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		_ = r.Close()
	}()

	tensors, err := r.LoadAll(device)
	if err != nil {
		return nil, nil, err
	}
	return tensors, r.Metadata(), nil
}

func decodeF16(data []byte) []float32 {
	out := make([]float32, len(data)/2)
	for i := range out {
		bits := binary.LittleEndian.Uint16(data[2*i:])
		out[i] = float16.Frombits(bits).Float32()
	}
	return out
}

func rawFromFloat32(values []float32, shape tensor.Shape, device tensor.Device) (*tensor.RawTensor, error) {
	raw, err := tensor.NewRaw(shape, tensor.Float32, device)
	if err != nil {
		return nil, err
	}
	copy(raw.AsFloat32(), values)
	return raw, nil
}

// dtypeFromSafeTensors maps a SafeTensors dtype string to a DataType.
// F16 and BF16 are handled by conversion before this point.
func dtypeFromSafeTensors(dtype string) (tensor.DataType, error) {
	switch dtype {
	case "F32":
		return tensor.Float32, nil
	case "F64":
		return tensor.Float64, nil
	case "I32":
		return tensor.Int32, nil
	case "I64":
		return tensor.Int64, nil
	case "U8":
		return tensor.Uint8, nil
	case "BOOL":
		return tensor.Bool, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedDType, dtype)
	}
}

// dtypeByteSize returns the per-element byte size for a SafeTensors dtype.
func dtypeByteSize(dtype string) (int64, error) {
	switch dtype {
	case "F16", "BF16":
		return 2, nil
	default:
		dt, err := dtypeFromSafeTensors(dtype)
		if err != nil {
			return 0, err
		}
		return int64(dt.Size()), nil
	}
}
