package tensor

import (
	"math/rand"
)

// Zeros creates a tensor filled with zeros.
//
// Example:
//
//	backend := cpu.New()
//	t := tensor.Zeros[float32](Shape{3, 4}, backend)
func Zeros[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	var dummy T
	dtype := inferDataType(dummy)

	raw, err := NewRaw(shape, dtype, b.Device())
	if err != nil {
		panic(err) // Shape validation should prevent this
	}

	// Data is already zero-initialized by make()
	return New[T, B](raw, b)
}

// Ones creates a tensor filled with ones.
func Ones[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	t := Zeros[T, B](shape, b)
	data := t.Data()

	var dummy T
	var one any
	switch any(dummy).(type) {
	case float32:
		one = float32(1)
	case float64:
		one = float64(1)
	case int32:
		one = int32(1)
	case int64:
		one = int64(1)
	case uint8:
		one = uint8(1)
	case bool:
		one = true
	}

	for i := range data {
		data[i] = one.(T)
	}
	return t
}

// Full creates a tensor filled with a specific value.
func Full[T DType, B Backend](shape Shape, value T, b B) *Tensor[T, B] {
	t := Zeros[T, B](shape, b)
	data := t.Data()
	for i := range data {
		data[i] = value
	}
	return t
}

// Randn creates a tensor with random values from a normal distribution (mean=0, std=1).
// Note: Uses math/rand (not crypto/rand) - appropriate for ML/statistical purposes.
func Randn[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	t := Zeros[T, B](shape, b)
	data := t.Data()

	var dummy T
	switch any(dummy).(type) {
	case float32:
		f := any(data).([]float32)
		for i := range f {
			f[i] = float32(rand.NormFloat64()) //nolint:gosec // weight init, not security-critical
		}
	case float64:
		f := any(data).([]float64)
		for i := range f {
			f[i] = rand.NormFloat64() //nolint:gosec // weight init, not security-critical
		}
	default:
		panic("Randn only supports float types")
	}
	return t
}

// Uniform creates a float tensor with random values in [low, high).
func Uniform[T DType, B Backend](shape Shape, low, high float64, b B) *Tensor[T, B] {
	t := Zeros[T, B](shape, b)
	data := t.Data()

	var dummy T
	switch any(dummy).(type) {
	case float32:
		f := any(data).([]float32)
		for i := range f {
			f[i] = float32(low + rand.Float64()*(high-low)) //nolint:gosec // weight init
		}
	case float64:
		f := any(data).([]float64)
		for i := range f {
			f[i] = low + rand.Float64()*(high-low) //nolint:gosec // weight init
		}
	default:
		panic("Uniform only supports float types")
	}
	return t
}

// BroadcastShapes computes the broadcast result shape of two shapes using
// NumPy semantics. Returns the output shape and whether broadcasting is
// actually needed.
func BroadcastShapes(a, b Shape) (Shape, bool, error) {
	if a.Equal(b) {
		return a.Clone(), false, nil
	}

	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	out := make(Shape, n)
	for i := 0; i < n; i++ {
		da, db := 1, 1
		if i >= n-len(a) {
			da = a[i-(n-len(a))]
		}
		if i >= n-len(b) {
			db = b[i-(n-len(b))]
		}
		switch {
		case da == db:
			out[i] = da
		case da == 1:
			out[i] = db
		case db == 1:
			out[i] = da
		default:
			return nil, false, &BroadcastError{A: a, B: b}
		}
	}
	return out, true, nil
}

// BroadcastError reports incompatible shapes.
type BroadcastError struct {
	A, B Shape
}

// Error implements the error interface.
func (e *BroadcastError) Error() string {
	return "shapes " + e.A.String() + " and " + e.B.String() + " are not broadcastable"
}
