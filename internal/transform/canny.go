package transform

import (
	"github.com/disintegration/imaging"

	"github.com/aliskhannn/image-distributor/internal/pixel"
)

// tan(22.5°) and tan(67.5°) scaled by 2^15, as integer direction cut-offs.
const (
	tan22 = 13573
	tan67 = 79109
)

// canny is a two-threshold gradient edge detector producing a single-channel
// map of 0 and 255. Gradients come from a 3x3 Sobel operator on the
// luminance with replicated borders and are measured with the L1 norm.
func canny(buf pixel.Buffer, low, high int) pixel.Buffer {
	gray := pixel.FromImage(imaging.Grayscale(buf.NRGBA()), 1)
	w, h := gray.Width, gray.Height

	at := func(x, y int) int {
		x = min(max(x, 0), w-1)
		y = min(max(y, 0), h-1)
		return int(gray.Pix[y*w+x])
	}

	gx := make([]int, w*h)
	gy := make([]int, w*h)
	mag := make([]int, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx := at(x+1, y-1) + 2*at(x+1, y) + at(x+1, y+1) -
				at(x-1, y-1) - 2*at(x-1, y) - at(x-1, y+1)
			dy := at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1) -
				at(x-1, y-1) - 2*at(x, y-1) - at(x+1, y-1)
			i := y*w + x
			gx[i], gy[i] = dx, dy
			mag[i] = abs(dx) + abs(dy)
		}
	}

	magAt := func(x, y int) int {
		if x < 0 || y < 0 || x >= w || y >= h {
			return 0
		}
		return mag[y*w+x]
	}

	// Non-maximum suppression, then seed strong pixels.
	const (
		none = iota
		weak
		strong
	)
	class := make([]uint8, w*h)
	stack := make([]int, 0, w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			m := mag[i]
			if m <= low {
				continue
			}

			ax, ay := abs(gx[i]), abs(gy[i])
			tg22 := ax * tan22
			var isMax bool
			switch {
			case ay<<15 < tg22: // horizontal gradient
				isMax = m > magAt(x-1, y) && m >= magAt(x+1, y)
			case ay<<15 > ax*tan67: // vertical gradient
				isMax = m > magAt(x, y-1) && m >= magAt(x, y+1)
			default:
				s := -1
				if (gx[i] < 0) != (gy[i] < 0) {
					s = 1
				}
				isMax = m > magAt(x-s, y-1) && m > magAt(x+s, y+1)
			}
			if !isMax {
				continue
			}

			if m > high {
				class[i] = strong
				stack = append(stack, i)
			} else {
				class[i] = weak
			}
		}
	}

	// Hysteresis: promote weak pixels 8-connected to strong ones.
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := i%w, i/w
		for ny := max(y-1, 0); ny <= min(y+1, h-1); ny++ {
			for nx := max(x-1, 0); nx <= min(x+1, w-1); nx++ {
				j := ny*w + nx
				if class[j] == weak {
					class[j] = strong
					stack = append(stack, j)
				}
			}
		}
	}

	out := pixel.New(w, h, 1)
	for i, c := range class {
		if c == strong {
			out.Pix[i] = 0xff
		}
	}

	return out
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
