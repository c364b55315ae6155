package peft

import "errors"

// Sentinel errors returned by the converter.
var (
	// ErrInvalidAdapterFile indicates an absent or malformed adapter config
	// or weight file.
	ErrInvalidAdapterFile = errors.New("peft: invalid adapter file")

	// ErrUnknownLayerShape indicates a tensor whose number of dimensions
	// matches no known layer-kind convention.
	ErrUnknownLayerShape = errors.New("peft: unknown layer shape")
)
