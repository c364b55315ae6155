// Package serialization implements reading and writing of the SafeTensors
// tensor container format.
//
// SafeTensors layout:
//
//	[8 bytes: header_size (uint64 LE)]
//	[header_size bytes: JSON header]
//	[tensor data: raw bytes]
//
// The JSON header maps tensor names to dtype, shape and byte offsets into
// the data section, with an optional "__metadata__" entry of free-form
// string pairs. Tensors are stored in alphabetical order by name.
//
// F16 and BF16 tensors are decoded to Float32 on load; all other dtypes map
// directly onto tensor.DataType.
package serialization
