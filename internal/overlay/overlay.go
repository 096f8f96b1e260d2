// Package overlay renders debug images of a partitioned source image: each
// row band is tinted and labelled with the rank that processes it, and band
// boundaries are drawn as lines.
package overlay

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"

	"github.com/aliskhannn/image-distributor/internal/pixel"
)

// BoundaryColor is the colour of the lines between bands.
var BoundaryColor = color.NRGBA{R: 255, A: 255}

var tints = []color.NRGBA{
	{R: 0, G: 120, B: 255, A: 48},
	{R: 0, G: 200, B: 80, A: 48},
	{R: 255, G: 180, B: 0, A: 48},
	{R: 200, G: 0, B: 200, A: 48},
}

// Render draws the partition of src into blocks.
func Render(src pixel.Buffer, blocks []pixel.Block) image.Image {
	dc := gg.NewContextForImage(src.Image())
	w := float64(dc.Width())

	for _, b := range blocks {
		rows := b.Rows()
		if rows == 0 {
			continue
		}

		dc.SetColor(tints[b.Index%len(tints)])
		dc.DrawRectangle(0, float64(b.Offset), w, float64(rows))
		dc.Fill()

		// the default face is 13px high
		dc.SetColor(color.White)
		dc.DrawString(fmt.Sprintf("rank %d", b.Index), 4, float64(b.Offset)+13)
	}

	dc.SetColor(BoundaryColor)
	dc.SetLineWidth(2)
	for _, b := range blocks[min(1, len(blocks)):] {
		if b.Offset == 0 || b.Offset >= dc.Height() {
			continue
		}
		dc.DrawLine(0, float64(b.Offset), w, float64(b.Offset))
		dc.Stroke()
	}

	return dc.Image()
}

// PNG renders the overlay and encodes it as PNG.
func PNG(src pixel.Buffer, blocks []pixel.Block) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := imaging.Encode(buf, Render(src, blocks), imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode overlay: %w", err)
	}

	return buf.Bytes(), nil
}
