// Package tensor provides the minimal host-framework surface the LoRA
// adaptation layers are built against: raw tensors, a generic type-safe
// Tensor, and the narrow Backend compute interface.
//
// The design follows the Born ML framework's tensor package. Only the
// operations the low-rank adaptation algebra needs are part of Backend;
// anything else (autodiff, device transfer, kernels) belongs to the host
// framework and is out of scope here.
package tensor
