package cpu

import (
	"fmt"

	"github.com/born-ml/lora/internal/tensor"
)

// Conv1D performs 1D convolution.
//
// Input shape:  [N, C_in, L]
// Kernel shape: [C_out, C_in/groups, K]
// Output shape: [N, C_out, L_out]
//
//	L_out = (L + 2*padding - dilation*(K-1) - 1) / stride + 1
func (cpu *CPUBackend) Conv1D(input, kernel *tensor.RawTensor, stride, padding, dilation, groups int) *tensor.RawTensor {
	inputShape := input.Shape()
	kernelShape := kernel.Shape()

	if len(inputShape) != 3 {
		panic(fmt.Sprintf("conv1d: input must be 3D [N,C,L], got %dD", len(inputShape)))
	}
	if len(kernelShape) != 3 {
		panic(fmt.Sprintf("conv1d: kernel must be 3D [C_out,C_in/groups,K], got %dD", len(kernelShape)))
	}
	validateConvArgs("conv1d", stride, padding, dilation, groups)

	n, cIn, l := inputShape[0], inputShape[1], inputShape[2]
	cOut, cInK, k := kernelShape[0], kernelShape[1], kernelShape[2]

	if cIn%groups != 0 || cOut%groups != 0 {
		panic(fmt.Sprintf("conv1d: channels (in=%d, out=%d) not divisible by groups %d", cIn, cOut, groups))
	}
	if cInK != cIn/groups {
		panic(fmt.Sprintf("conv1d: kernel channels %d != input channels %d / groups %d", cInK, cIn, groups))
	}

	lOut := (l+2*padding-dilation*(k-1)-1)/stride + 1
	if lOut <= 0 {
		panic(fmt.Sprintf("conv1d: invalid output length %d (check stride/padding/dilation)", lOut))
	}

	output, err := tensor.NewRaw(tensor.Shape{n, cOut, lOut}, input.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("conv1d: failed to create output tensor: %v", err))
	}

	if input.DType() != tensor.Float32 {
		panic(fmt.Sprintf("conv1d: unsupported dtype %s", input.DType()))
	}

	in := input.AsFloat32()
	w := kernel.AsFloat32()
	out := output.AsFloat32()

	cInPerGroup := cIn / groups
	cOutPerGroup := cOut / groups

	// Direct convolution. Grouped and dilated kernels make im2col awkward;
	// the kernels here are small low-rank projections, so direct loops are fine.
	for b := 0; b < n; b++ {
		for oc := 0; oc < cOut; oc++ {
			g := oc / cOutPerGroup
			for ol := 0; ol < lOut; ol++ {
				var sum float32
				for ic := 0; ic < cInPerGroup; ic++ {
					inC := g*cInPerGroup + ic
					for kk := 0; kk < k; kk++ {
						il := ol*stride - padding + kk*dilation
						if il < 0 || il >= l {
							continue
						}
						sum += in[(b*cIn+inC)*l+il] * w[(oc*cInPerGroup+ic)*k+kk]
					}
				}
				out[(b*cOut+oc)*lOut+ol] = sum
			}
		}
	}

	return output
}

// Conv2D performs 2D convolution.
//
// Input shape:  [N, C_in, H, W]
// Kernel shape: [C_out, C_in/groups, K_h, K_w]
// Output shape: [N, C_out, H_out, W_out]
//
//	H_out = (H + 2*padding - dilation*(K_h-1) - 1) / stride + 1
//	W_out = (W + 2*padding - dilation*(K_w-1) - 1) / stride + 1
func (cpu *CPUBackend) Conv2D(input, kernel *tensor.RawTensor, stride, padding, dilation, groups int) *tensor.RawTensor {
	inputShape := input.Shape()
	kernelShape := kernel.Shape()

	if len(inputShape) != 4 {
		panic(fmt.Sprintf("conv2d: input must be 4D [N,C,H,W], got %dD", len(inputShape)))
	}
	if len(kernelShape) != 4 {
		panic(fmt.Sprintf("conv2d: kernel must be 4D [C_out,C_in/groups,K_h,K_w], got %dD", len(kernelShape)))
	}
	validateConvArgs("conv2d", stride, padding, dilation, groups)

	n, cIn, h, w := inputShape[0], inputShape[1], inputShape[2], inputShape[3]
	cOut, cInK, kh, kw := kernelShape[0], kernelShape[1], kernelShape[2], kernelShape[3]

	if cIn%groups != 0 || cOut%groups != 0 {
		panic(fmt.Sprintf("conv2d: channels (in=%d, out=%d) not divisible by groups %d", cIn, cOut, groups))
	}
	if cInK != cIn/groups {
		panic(fmt.Sprintf("conv2d: kernel channels %d != input channels %d / groups %d", cInK, cIn, groups))
	}

	hOut := (h+2*padding-dilation*(kh-1)-1)/stride + 1
	wOut := (w+2*padding-dilation*(kw-1)-1)/stride + 1
	if hOut <= 0 || wOut <= 0 {
		panic(fmt.Sprintf("conv2d: invalid output dimensions h=%d, w=%d (check stride/padding/dilation)", hOut, wOut))
	}

	output, err := tensor.NewRaw(tensor.Shape{n, cOut, hOut, wOut}, input.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("conv2d: failed to create output tensor: %v", err))
	}

	if input.DType() != tensor.Float32 {
		panic(fmt.Sprintf("conv2d: unsupported dtype %s", input.DType()))
	}

	in := input.AsFloat32()
	wt := kernel.AsFloat32()
	out := output.AsFloat32()

	cInPerGroup := cIn / groups
	cOutPerGroup := cOut / groups

	for b := 0; b < n; b++ {
		for oc := 0; oc < cOut; oc++ {
			g := oc / cOutPerGroup
			for oh := 0; oh < hOut; oh++ {
				for ow := 0; ow < wOut; ow++ {
					var sum float32
					for ic := 0; ic < cInPerGroup; ic++ {
						inC := g*cInPerGroup + ic
						for ki := 0; ki < kh; ki++ {
							ih := oh*stride - padding + ki*dilation
							if ih < 0 || ih >= h {
								continue
							}
							for kj := 0; kj < kw; kj++ {
								iw := ow*stride - padding + kj*dilation
								if iw < 0 || iw >= w {
									continue
								}
								sum += in[((b*cIn+inC)*h+ih)*w+iw] * wt[((oc*cInPerGroup+ic)*kh+ki)*kw+kj]
							}
						}
					}
					out[((b*cOut+oc)*hOut+oh)*wOut+ow] = sum
				}
			}
		}
	}

	return output
}

func validateConvArgs(name string, stride, padding, dilation, groups int) {
	if stride <= 0 {
		panic(fmt.Sprintf("%s: invalid stride %d", name, stride))
	}
	if padding < 0 {
		panic(fmt.Sprintf("%s: invalid padding %d", name, padding))
	}
	if dilation <= 0 {
		panic(fmt.Sprintf("%s: invalid dilation %d", name, dilation))
	}
	if groups <= 0 {
		panic(fmt.Sprintf("%s: invalid groups %d", name, groups))
	}
}
