package serialization

import "errors"

// Sentinel errors returned by the SafeTensors reader and writer.
var (
	// ErrInvalidHeader indicates a malformed or oversized file header.
	ErrInvalidHeader = errors.New("serialization: invalid safetensors header")

	// ErrTensorNotFound indicates a lookup for a tensor name absent from
	// the file.
	ErrTensorNotFound = errors.New("serialization: tensor not found")

	// ErrInvalidOffsets indicates tensor data offsets that are negative,
	// reversed, inconsistent with the declared shape, or out of file bounds.
	ErrInvalidOffsets = errors.New("serialization: invalid data offsets")

	// ErrUnsupportedDType indicates a dtype string with no corresponding
	// in-memory representation.
	ErrUnsupportedDType = errors.New("serialization: unsupported dtype")
)
