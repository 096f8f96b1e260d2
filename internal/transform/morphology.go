package transform

import "github.com/aliskhannn/image-distributor/internal/pixel"

func minOf(a, b uint8) uint8 { return min(a, b) }
func maxOf(a, b uint8) uint8 { return max(a, b) }

// morph applies one iteration of a 3x3 rectangular structuring element,
// channel by channel. Neighbours outside the buffer do not contribute.
func morph(buf pixel.Buffer, pick func(a, b uint8) uint8) pixel.Buffer {
	out := pixel.New(buf.Width, buf.Height, buf.Channels)
	w, h, c := buf.Width, buf.Height, buf.Channels
	stride := buf.Stride()

	for y := 0; y < h; y++ {
		y0, y1 := max(y-1, 0), min(y+1, h-1)
		for x := 0; x < w; x++ {
			x0, x1 := max(x-1, 0), min(x+1, w-1)
			for ch := 0; ch < c; ch++ {
				v := buf.Pix[y*stride+x*c+ch]
				for ny := y0; ny <= y1; ny++ {
					row := ny * stride
					for nx := x0; nx <= x1; nx++ {
						v = pick(v, buf.Pix[row+nx*c+ch])
					}
				}
				out.Pix[y*stride+x*c+ch] = v
			}
		}
	}

	return out
}
