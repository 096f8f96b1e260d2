package cluster

import (
	"context"

	"github.com/aliskhannn/image-distributor/internal/model"
	"github.com/aliskhannn/image-distributor/internal/pixel"
)

// envelope is one message between the root and a worker. A broadcast
// carries op (nil op means shutdown), a scatter or gather carries block.
type envelope struct {
	round uint64
	op    *model.Operation
	block *pixel.Block
}

func (e envelope) isBroadcast() bool { return e.block == nil }

// link is the pair of FIFO mailboxes between the root and one worker rank.
// down holds one round worth of traffic (broadcast + scatter).
type link struct {
	rank int
	down chan envelope
	up   chan envelope

	// lost is owned by the root: the worker missed a deadline and its
	// blocks are computed by the root from then on.
	lost bool
}

func newLink(rank int) *link {
	return &link{
		rank: rank,
		down: make(chan envelope, 2),
		up:   make(chan envelope, 1),
	}
}

// sendDown delivers e, waiting for room until ctx is done. A mailbox with
// room wins over an expired ctx.
func (l *link) sendDown(ctx context.Context, e envelope) error {
	if l.tryDown(e) {
		return nil
	}

	select {
	case l.down <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// tryDown delivers e only if the mailbox has room.
func (l *link) tryDown(e envelope) bool {
	select {
	case l.down <- e:
		return true
	default:
		return false
	}
}

// replaceDown delivers e to a rank that is not reading, dropping whatever
// the mailbox still holds to make room. Only the root may call it. It
// returns the number of envelopes dropped.
func (l *link) replaceDown(e envelope) int {
	n := 0
	for !l.tryDown(e) {
		select {
		case <-l.down:
			n++
		default:
		}
	}
	return n
}

func (l *link) recvDown(ctx context.Context) (envelope, error) {
	select {
	case e := <-l.down:
		return e, nil
	case <-ctx.Done():
		return envelope{}, ctx.Err()
	}
}

func (l *link) sendUp(ctx context.Context, e envelope) error {
	select {
	case l.up <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// recvUp waits for the reply of the given round, discarding replies left
// over from rounds the root already gave up on. A reply already waiting in
// the mailbox is taken even when ctx has expired.
func (l *link) recvUp(ctx context.Context, round uint64) (pixel.Block, error) {
	for {
		select {
		case e := <-l.up:
			if e.round != round || e.block == nil {
				continue
			}
			return *e.block, nil
		default:
		}

		select {
		case e := <-l.up:
			if e.round != round || e.block == nil {
				continue
			}
			return *e.block, nil
		case <-ctx.Done():
			return pixel.Block{}, ctx.Err()
		}
	}
}
