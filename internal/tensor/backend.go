package tensor

// Backend defines the narrow compute interface the adaptation layers use.
// Backends handle the actual computation for tensor operations.
//
// Implementations:
//   - CPU: Pure Go with gonum BLAS for matrix multiplication
//   - GPU backends are intentionally out of this module's scope; the host
//     framework owns device placement.
type Backend interface {
	// Element-wise binary operations (with NumPy-style broadcasting)
	Add(a, b *RawTensor) *RawTensor
	Sub(a, b *RawTensor) *RawTensor
	Mul(a, b *RawTensor) *RawTensor

	// Scalar operations
	MulScalar(x *RawTensor, scalar any) *RawTensor

	// Matrix operations
	// For 2D tensors: (M, K) @ (K, N) -> (M, N)
	MatMul(a, b *RawTensor) *RawTensor

	// Convolutional operations
	// Conv1D: input [N, Cin, L], kernel [Cout, Cin/groups, K] -> [N, Cout, Lout]
	// Conv2D: input [N, Cin, H, W], kernel [Cout, Cin/groups, Kh, Kw] -> [N, Cout, Hout, Wout]
	Conv1D(input, kernel *RawTensor, stride, padding, dilation, groups int) *RawTensor
	Conv2D(input, kernel *RawTensor, stride, padding, dilation, groups int) *RawTensor

	// Shape operations
	Reshape(t *RawTensor, newShape Shape) *RawTensor
	Transpose(t *RawTensor, axes ...int) *RawTensor

	// Indexing operations
	// Embedding: weight [V, D], indices [...] int32 -> [..., D]
	Embedding(weight, indices *RawTensor) *RawTensor

	// Metadata
	Name() string
	Device() Device
}
