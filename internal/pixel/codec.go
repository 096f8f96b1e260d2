package pixel

import (
	"bytes"
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"
)

// Decode reads an encoded image and converts it to a 3-channel RGB buffer.
// Alpha is dropped.
func Decode(r io.Reader) (Buffer, error) {
	img, err := imaging.Decode(r)
	if err != nil {
		return Buffer{}, fmt.Errorf("failed to decode image: %w", err)
	}

	return FromImage(img, 3), nil
}

// DecodeBytes is Decode over an in-memory object.
func DecodeBytes(data []byte) (Buffer, error) {
	return Decode(bytes.NewReader(data))
}

// Encode writes buf in the format implied by filename, falling back to PNG
// for unknown extensions.
func Encode(w io.Writer, buf Buffer, filename string) error {
	format, err := imaging.FormatFromFilename(filename)
	if err != nil {
		format = imaging.PNG
	}

	if err := imaging.Encode(w, buf.Image(), format); err != nil {
		return fmt.Errorf("failed to encode image: %w", err)
	}

	return nil
}

// EncodeBytes is Encode into a fresh byte slice.
func EncodeBytes(buf Buffer, filename string) ([]byte, error) {
	var out bytes.Buffer
	if err := Encode(&out, buf, filename); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// FromImage converts any image into a buffer with the given channel count
// (1 = luminance from the red sample of a grayscale image, 3 = RGB, 4 = RGBA).
func FromImage(img image.Image, channels int) Buffer {
	src := imaging.Clone(img)
	w, h := src.Rect.Dx(), src.Rect.Dy()
	buf := New(w, h, channels)

	for i, j := 0, 0; i < len(src.Pix); i += 4 {
		copy(buf.Pix[j:j+channels], src.Pix[i:i+channels])
		j += channels
	}

	return buf
}

// Image converts the buffer to an image. Single-channel buffers become
// *image.Gray, everything else *image.NRGBA with opaque alpha for RGB.
func (b Buffer) Image() image.Image {
	if b.Channels == 1 {
		g := image.NewGray(image.Rect(0, 0, b.Width, b.Height))
		copy(g.Pix, b.Pix)
		return g
	}

	return b.NRGBA()
}

// NRGBA expands the buffer into an NRGBA image. Gray buffers are replicated
// across the colour samples.
func (b Buffer) NRGBA() *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, b.Width, b.Height))
	c := b.Channels

	for i, j := 0, 0; j < len(b.Pix); i += 4 {
		d := dst.Pix[i : i+4 : i+4]
		switch c {
		case 1:
			d[0], d[1], d[2], d[3] = b.Pix[j], b.Pix[j], b.Pix[j], 0xff
		case 3:
			d[0], d[1], d[2], d[3] = b.Pix[j], b.Pix[j+1], b.Pix[j+2], 0xff
		default:
			copy(d, b.Pix[j:j+4])
		}
		j += c
	}

	return dst
}
