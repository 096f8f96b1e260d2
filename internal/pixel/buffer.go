// Package pixel holds the raw image buffers exchanged between the
// coordinator and the worker group, and the row partitioning rules.
package pixel

import (
	"bytes"
	"fmt"
)

// Buffer is a row-major pixel grid of Height rows, Width columns and
// Channels interleaved 8-bit samples per pixel.
type Buffer struct {
	Width    int
	Height   int
	Channels int
	Pix      []uint8
}

// New allocates a zeroed buffer.
func New(width, height, channels int) Buffer {
	return Buffer{
		Width:    width,
		Height:   height,
		Channels: channels,
		Pix:      make([]uint8, width*height*channels),
	}
}

// Stride returns the number of bytes in one row.
func (b Buffer) Stride() int { return b.Width * b.Channels }

// Rows returns a buffer sharing the pixel memory of rows [from, to).
func (b Buffer) Rows(from, to int) Buffer {
	s := b.Stride()
	return Buffer{
		Width:    b.Width,
		Height:   to - from,
		Channels: b.Channels,
		Pix:      b.Pix[from*s : to*s : to*s],
	}
}

// Clone returns a deep copy of the buffer.
func (b Buffer) Clone() Buffer {
	c := b
	c.Pix = append([]uint8(nil), b.Pix...)
	return c
}

// Equal reports whether both buffers have the same shape and samples.
func (b Buffer) Equal(o Buffer) bool {
	return b.Width == o.Width && b.Height == o.Height && b.Channels == o.Channels &&
		bytes.Equal(b.Pix, o.Pix)
}

// Validate checks that the pixel slice matches the declared shape.
func (b Buffer) Validate() error {
	if b.Width < 0 || b.Height < 0 || b.Channels <= 0 {
		return fmt.Errorf("invalid buffer shape %dx%dx%d", b.Width, b.Height, b.Channels)
	}
	if len(b.Pix) != b.Width*b.Height*b.Channels {
		return fmt.Errorf("buffer has %d bytes, want %d", len(b.Pix), b.Width*b.Height*b.Channels)
	}

	return nil
}

func (b Buffer) String() string {
	return fmt.Sprintf("%dx%dx%d", b.Height, b.Width, b.Channels)
}
