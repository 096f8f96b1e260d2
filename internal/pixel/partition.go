package pixel

import (
	"errors"
	"fmt"
)

// ErrShapeMismatch is returned when blocks cannot be stacked along the row axis.
var ErrShapeMismatch = errors.New("block shape mismatch")

// Block is one row band of a partitioned buffer. Buf holds the core rows
// plus up to Top context rows above and Bottom context rows below.
type Block struct {
	Index  int // position in the partition, equal to the receiving rank
	Offset int // first core row in the source buffer
	Top    int
	Bottom int
	Buf    Buffer
}

// Rows returns the number of core rows.
func (b Block) Rows() int { return b.Buf.Height - b.Top - b.Bottom }

// Core returns the block without its context rows.
func (b Block) Core() Buffer {
	return b.Buf.Rows(b.Top, b.Buf.Height-b.Bottom)
}

// BlockRows returns the number of rows block i receives when h rows are
// split into n blocks: the first h mod n blocks get one extra row.
func BlockRows(h, n, i int) int {
	rows := h / n
	if i < h%n {
		rows++
	}
	return rows
}

// Partition splits buf into exactly n contiguous row blocks ordered by row
// offset. Each block carries up to halo rows of context on each side,
// clipped at the image edges. Block buffers share memory with buf.
func Partition(buf Buffer, n, halo int) ([]Block, error) {
	if n <= 0 {
		return nil, fmt.Errorf("partition into %d blocks", n)
	}
	if halo < 0 {
		halo = 0
	}

	blocks := make([]Block, n)
	offset := 0
	for i := range blocks {
		rows := BlockRows(buf.Height, n, i)
		from := max(offset-halo, 0)
		to := min(offset+rows+halo, buf.Height)

		blocks[i] = Block{
			Index:  i,
			Offset: offset,
			Top:    offset - from,
			Bottom: to - (offset + rows),
			Buf:    buf.Rows(from, to),
		}
		offset += rows
	}

	return blocks, nil
}

// Concat stacks the core rows of blocks in slice order. All blocks must
// share width and channel count.
func Concat(blocks []Block) (Buffer, error) {
	if len(blocks) == 0 {
		return Buffer{}, fmt.Errorf("%w: no blocks", ErrShapeMismatch)
	}

	first := blocks[0].Buf
	height := 0
	for i, b := range blocks {
		if b.Buf.Width != first.Width || b.Buf.Channels != first.Channels {
			return Buffer{}, fmt.Errorf("%w: block %d is %dx%d, block 0 is %dx%d",
				ErrShapeMismatch, i, b.Buf.Width, b.Buf.Channels, first.Width, first.Channels)
		}
		if b.Rows() < 0 {
			return Buffer{}, fmt.Errorf("%w: block %d has negative core", ErrShapeMismatch, i)
		}
		height += b.Rows()
	}

	out := Buffer{
		Width:    first.Width,
		Height:   height,
		Channels: first.Channels,
		Pix:      make([]uint8, 0, first.Width*height*first.Channels),
	}
	for _, b := range blocks {
		out.Pix = append(out.Pix, b.Core().Pix...)
	}

	return out, nil
}
