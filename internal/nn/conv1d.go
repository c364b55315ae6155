package nn

import (
	"fmt"

	"github.com/born-ml/lora/internal/tensor"
)

// ConvConfig describes the geometry of a convolution.
type ConvConfig struct {
	Stride   int
	Padding  int
	Dilation int
	Groups   int
}

// DefaultConvConfig returns stride 1, padding 0, dilation 1, groups 1.
func DefaultConvConfig() ConvConfig {
	return ConvConfig{Stride: 1, Padding: 0, Dilation: 1, Groups: 1}
}

func (c ConvConfig) validate(name string) {
	if c.Stride <= 0 {
		panic(fmt.Sprintf("%s: invalid stride %d", name, c.Stride))
	}
	if c.Padding < 0 {
		panic(fmt.Sprintf("%s: invalid padding %d", name, c.Padding))
	}
	if c.Dilation <= 0 {
		panic(fmt.Sprintf("%s: invalid dilation %d", name, c.Dilation))
	}
	if c.Groups <= 0 {
		panic(fmt.Sprintf("%s: invalid groups %d", name, c.Groups))
	}
}

// Conv1D is a 1D convolutional layer.
//
// Input shape:  [batch, in_channels, length]
// Weight shape: [out_channels, in_channels/groups, kernel_size]
// Bias shape:   [out_channels]
// Output shape: [batch, out_channels, out_length]
type Conv1D[B tensor.Backend] struct {
	inChannels  int
	outChannels int
	kernelSize  int
	config      ConvConfig

	weight *Parameter[B]
	bias   *Parameter[B] // [out_channels] or nil

	backend B
}

// NewConv1D creates a new 1D convolutional layer with Xavier initialization.
func NewConv1D[B tensor.Backend](
	inChannels, outChannels, kernelSize int,
	config ConvConfig,
	useBias bool,
	backend B,
) *Conv1D[B] {
	if inChannels <= 0 || outChannels <= 0 {
		panic(fmt.Sprintf("conv1d: invalid channels in=%d, out=%d", inChannels, outChannels))
	}
	if kernelSize <= 0 {
		panic(fmt.Sprintf("conv1d: invalid kernel size %d", kernelSize))
	}
	config.validate("conv1d")
	if inChannels%config.Groups != 0 || outChannels%config.Groups != 0 {
		panic(fmt.Sprintf("conv1d: channels (in=%d, out=%d) not divisible by groups %d",
			inChannels, outChannels, config.Groups))
	}

	weightShape := tensor.Shape{outChannels, inChannels / config.Groups, kernelSize}
	fanIn := (inChannels / config.Groups) * kernelSize
	fanOut := (outChannels / config.Groups) * kernelSize
	weightParam := NewParameter("conv1d.weight", Xavier(fanIn, fanOut, weightShape, backend))

	var biasParam *Parameter[B]
	if useBias {
		biasParam = NewParameter("conv1d.bias", Zeros(tensor.Shape{outChannels}, backend))
	}

	return &Conv1D[B]{
		inChannels:  inChannels,
		outChannels: outChannels,
		kernelSize:  kernelSize,
		config:      config,
		weight:      weightParam,
		bias:        biasParam,
		backend:     backend,
	}
}

// Forward performs the forward pass.
//
// Input: [batch, in_channels, length]
// Output: [batch, out_channels, out_length].
func (c *Conv1D[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	inputShape := input.Shape()
	if len(inputShape) != 3 {
		panic(fmt.Sprintf("conv1d: expected 3D input [N,C,L], got %dD", len(inputShape)))
	}
	if inputShape[1] != c.inChannels {
		panic(fmt.Sprintf("conv1d: input channels %d != expected %d", inputShape[1], c.inChannels))
	}

	output := c.Convolve(input, c.weight.Tensor())

	if c.bias != nil {
		biasReshaped := c.bias.Tensor().Reshape(1, c.outChannels, 1)
		output = output.Add(biasReshaped)
	}

	return output
}

// Convolve runs the layer's convolution geometry with an alternate kernel of
// the same shape, without adding the bias. The adaptation layer uses this to
// route the low-rank delta kernel through the exact same geometry as the
// frozen weight.
func (c *Conv1D[B]) Convolve(input, kernel *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	outputRaw := c.backend.Conv1D(
		input.Raw(),
		kernel.Raw(),
		c.config.Stride,
		c.config.Padding,
		c.config.Dilation,
		c.config.Groups,
	)
	return tensor.New[float32, B](outputRaw, c.backend)
}

// Parameters returns all trainable parameters.
func (c *Conv1D[B]) Parameters() []*Parameter[B] {
	if c.bias != nil {
		return []*Parameter[B]{c.weight, c.bias}
	}
	return []*Parameter[B]{c.weight}
}

// Weight returns the weight parameter.
func (c *Conv1D[B]) Weight() *Parameter[B] {
	return c.weight
}

// Bias returns the bias parameter (nil if the layer has no bias).
func (c *Conv1D[B]) Bias() *Parameter[B] {
	return c.bias
}

// InChannels returns the number of input channels.
func (c *Conv1D[B]) InChannels() int {
	return c.inChannels
}

// OutChannels returns the number of output channels.
func (c *Conv1D[B]) OutChannels() int {
	return c.outChannels
}

// KernelSize returns the kernel size.
func (c *Conv1D[B]) KernelSize() int {
	return c.kernelSize
}

// Config returns the convolution geometry.
func (c *Conv1D[B]) Config() ConvConfig {
	return c.config
}

// String returns a string representation of the layer.
func (c *Conv1D[B]) String() string {
	return fmt.Sprintf("Conv1D(in_channels=%d, out_channels=%d, kernel_size=%d, stride=%d, padding=%d, dilation=%d, groups=%d, bias=%v)",
		c.inChannels, c.outChannels, c.kernelSize,
		c.config.Stride, c.config.Padding, c.config.Dilation, c.config.Groups, c.bias != nil)
}
