package nn

import (
	"fmt"

	"github.com/born-ml/lora/internal/tensor"
)

// Conv2D is a 2D convolutional layer.
//
// Input shape:  [batch, in_channels, height, width]
// Weight shape: [out_channels, in_channels/groups, kernel_h, kernel_w]
// Bias shape:   [out_channels]
// Output shape: [batch, out_channels, out_h, out_w]
type Conv2D[B tensor.Backend] struct {
	inChannels  int
	outChannels int
	kernelSize  [2]int
	config      ConvConfig

	weight *Parameter[B]
	bias   *Parameter[B] // [out_channels] or nil

	backend B
}

// NewConv2D creates a new 2D convolutional layer with Xavier initialization.
func NewConv2D[B tensor.Backend](
	inChannels, outChannels int,
	kernelH, kernelW int,
	config ConvConfig,
	useBias bool,
	backend B,
) *Conv2D[B] {
	if inChannels <= 0 || outChannels <= 0 {
		panic(fmt.Sprintf("conv2d: invalid channels in=%d, out=%d", inChannels, outChannels))
	}
	if kernelH <= 0 || kernelW <= 0 {
		panic(fmt.Sprintf("conv2d: invalid kernel size h=%d, w=%d", kernelH, kernelW))
	}
	config.validate("conv2d")
	if inChannels%config.Groups != 0 || outChannels%config.Groups != 0 {
		panic(fmt.Sprintf("conv2d: channels (in=%d, out=%d) not divisible by groups %d",
			inChannels, outChannels, config.Groups))
	}

	weightShape := tensor.Shape{outChannels, inChannels / config.Groups, kernelH, kernelW}
	fanIn := (inChannels / config.Groups) * kernelH * kernelW
	fanOut := (outChannels / config.Groups) * kernelH * kernelW
	weightParam := NewParameter("conv2d.weight", Xavier(fanIn, fanOut, weightShape, backend))

	var biasParam *Parameter[B]
	if useBias {
		biasParam = NewParameter("conv2d.bias", Zeros(tensor.Shape{outChannels}, backend))
	}

	return &Conv2D[B]{
		inChannels:  inChannels,
		outChannels: outChannels,
		kernelSize:  [2]int{kernelH, kernelW},
		config:      config,
		weight:      weightParam,
		bias:        biasParam,
		backend:     backend,
	}
}

// Forward performs the forward pass.
//
// Input: [batch, in_channels, height, width]
// Output: [batch, out_channels, out_h, out_w].
func (c *Conv2D[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	inputShape := input.Shape()
	if len(inputShape) != 4 {
		panic(fmt.Sprintf("conv2d: expected 4D input [N,C,H,W], got %dD", len(inputShape)))
	}
	if inputShape[1] != c.inChannels {
		panic(fmt.Sprintf("conv2d: input channels %d != expected %d", inputShape[1], c.inChannels))
	}

	output := c.Convolve(input, c.weight.Tensor())

	if c.bias != nil {
		biasReshaped := c.bias.Tensor().Reshape(1, c.outChannels, 1, 1)
		output = output.Add(biasReshaped)
	}

	return output
}

// Convolve runs the layer's convolution geometry with an alternate kernel of
// the same shape, without adding the bias. The adaptation layer uses this to
// route the low-rank delta kernel through the exact same geometry as the
// frozen weight.
func (c *Conv2D[B]) Convolve(input, kernel *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	outputRaw := c.backend.Conv2D(
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
func (c *Conv2D[B]) Parameters() []*Parameter[B] {
	if c.bias != nil {
		return []*Parameter[B]{c.weight, c.bias}
	}
	return []*Parameter[B]{c.weight}
}

// Weight returns the weight parameter.
func (c *Conv2D[B]) Weight() *Parameter[B] {
	return c.weight
}

// Bias returns the bias parameter (nil if the layer has no bias).
func (c *Conv2D[B]) Bias() *Parameter[B] {
	return c.bias
}

// InChannels returns the number of input channels.
func (c *Conv2D[B]) InChannels() int {
	return c.inChannels
}

// OutChannels returns the number of output channels.
func (c *Conv2D[B]) OutChannels() int {
	return c.outChannels
}

// KernelSize returns the kernel size [height, width].
func (c *Conv2D[B]) KernelSize() [2]int {
	return c.kernelSize
}

// Config returns the convolution geometry.
func (c *Conv2D[B]) Config() ConvConfig {
	return c.config
}

// String returns a string representation of the layer.
func (c *Conv2D[B]) String() string {
	return fmt.Sprintf("Conv2D(in_channels=%d, out_channels=%d, kernel_size=(%d, %d), stride=%d, padding=%d, dilation=%d, groups=%d, bias=%v)",
		c.inChannels, c.outChannels,
		c.kernelSize[0], c.kernelSize[1],
		c.config.Stride, c.config.Padding, c.config.Dilation, c.config.Groups, c.bias != nil)
}
