// Package transform implements the per-block pixel operations. Every
// function here is pure: the input buffer is never modified.
package transform

import (
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/aliskhannn/image-distributor/internal/model"
	"github.com/aliskhannn/image-distributor/internal/pixel"
)

// BlurSigma is the fixed Gaussian sigma used by the blur operation. It
// matches a 9x9 kernel with automatically derived sigma.
const BlurSigma = 1.7

// Hysteresis thresholds for edge detection.
const (
	EdgeLow  = 100
	EdgeHigh = 200
)

// Apply runs op over buf and returns a new buffer. Unknown operations are
// an identity pass-through and return an unchanged copy.
func Apply(buf pixel.Buffer, op model.Operation) pixel.Buffer {
	if buf.Height == 0 || buf.Width == 0 {
		return pixel.Buffer{Width: buf.Width, Height: buf.Height, Channels: OutputChannels(op, buf.Channels)}
	}

	switch op {
	case model.EdgeDetection:
		return canny(buf, EdgeLow, EdgeHigh)
	case model.ColorInversion:
		return viaNRGBA(buf, imaging.Invert)
	case model.Blur:
		return viaNRGBA(buf, func(img image.Image) *image.NRGBA { return imaging.Blur(img, BlurSigma) })
	case model.Erosion:
		return morph(buf, minOf)
	case model.Dilation:
		return morph(buf, maxOf)
	default:
		return buf.Clone()
	}
}

// Halo returns how many rows beyond its own a block needs so that the
// operation gives the same result on a block as on the whole image.
func Halo(op model.Operation) int {
	switch op {
	case model.Blur:
		return blurRadius()
	case model.Erosion, model.Dilation:
		return 1
	case model.EdgeDetection:
		// sobel + non-max suppression; hysteresis is still block-local
		return 2
	default:
		return 0
	}
}

// OutputChannels returns the channel count op produces for an input with c channels.
func OutputChannels(op model.Operation, c int) int {
	if op == model.EdgeDetection {
		return 1
	}
	return c
}

func blurRadius() int {
	return int(math.Ceil(BlurSigma * 3.0))
}

// viaNRGBA runs an imaging filter and converts the result back to the
// channel layout of buf.
func viaNRGBA(buf pixel.Buffer, fn func(image.Image) *image.NRGBA) pixel.Buffer {
	return pixel.FromImage(fn(buf.NRGBA()), buf.Channels)
}
