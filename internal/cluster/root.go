package cluster

import (
	"context"
	"errors"
	"fmt"

	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/image-distributor/internal/model"
	"github.com/aliskhannn/image-distributor/internal/pixel"
	"github.com/aliskhannn/image-distributor/internal/transform"
)

// Root is the rank 0 endpoint of a group. It takes part in every round by
// computing block 0 itself. A Root is driven by a single goroutine.
type Root struct {
	opts    Options
	links   []*link
	round   uint64
	stopped bool
}

// Round is one broadcast, scatter and gather cycle.
type Round struct {
	root   *Root
	seq    uint64
	op     model.Operation
	parent context.Context
	ctx    context.Context
	cancel context.CancelFunc

	blocks  []pixel.Block
	results []*pixel.Block
}

// Lost returns the ranks whose blocks are computed by the root.
func (r *Root) Lost() []int {
	var ranks []int
	for _, l := range r.links {
		if l.lost {
			ranks = append(ranks, l.rank)
		}
	}
	return ranks
}

// Begin starts a round by broadcasting op to every worker.
func (r *Root) Begin(ctx context.Context, op model.Operation) (*Round, error) {
	if r.stopped {
		return nil, ErrStopped
	}

	r.round++
	rd := &Round{root: r, seq: r.round, op: op, parent: ctx}
	if r.opts.RoundTimeout > 0 {
		rd.ctx, rd.cancel = context.WithTimeout(ctx, r.opts.RoundTimeout)
	} else {
		rd.ctx, rd.cancel = context.WithCancel(ctx)
	}

	for _, l := range r.links {
		if l.lost {
			continue
		}
		if err := l.sendDown(rd.ctx, envelope{round: rd.seq, op: &op}); err != nil {
			if err := rd.fault(l, "broadcast", err); err != nil {
				rd.Close()
				return nil, err
			}
		}
	}

	return rd, nil
}

// Scatter hands blocks[i] to rank i and computes block 0 in place.
// len(blocks) must equal the group size.
func (rd *Round) Scatter(blocks []pixel.Block) error {
	if len(blocks) != rd.root.opts.Size {
		return fmt.Errorf("scatter of %d blocks to %d participants", len(blocks), rd.root.opts.Size)
	}

	rd.blocks = blocks
	rd.results = make([]*pixel.Block, len(blocks))

	for _, l := range rd.root.links {
		if l.lost {
			continue
		}
		b := blocks[l.rank]
		if err := l.sendDown(rd.ctx, envelope{round: rd.seq, block: &b}); err != nil {
			if err := rd.fault(l, "scatter", err); err != nil {
				return err
			}
		}
	}

	own := rd.root.opts.Compute(0, blocks[0], rd.op)
	rd.results[0] = &own

	return nil
}

// Gather collects the transformed blocks in rank order. Blocks of ranks
// lost during the round are computed by the root when the degraded policy
// allows it.
func (rd *Round) Gather() ([]pixel.Block, error) {
	if rd.results == nil {
		return nil, errors.New("gather before scatter")
	}

	for _, l := range rd.root.links {
		if l.lost {
			continue
		}
		b, err := l.recvUp(rd.ctx, rd.seq)
		if err != nil {
			if err := rd.fault(l, "gather", err); err != nil {
				return nil, err
			}
			continue
		}
		if b.Index != l.rank {
			return nil, fmt.Errorf("rank %d returned block %d", l.rank, b.Index)
		}
		rd.results[l.rank] = &b
	}

	out := make([]pixel.Block, len(rd.results))
	for i, res := range rd.results {
		if res == nil {
			zlog.Logger.Warn().Int("rank", i).Uint64("round", rd.seq).Msg("computing block of lost rank on root")
			b := rd.root.opts.Compute(0, rd.blocks[i], rd.op)
			res = &b
		}
		out[i] = *res
	}

	return out, nil
}

// Close releases the round deadline.
func (rd *Round) Close() {
	rd.cancel()
}

// fault handles a link that missed the round deadline. It returns nil when
// the round can go on without that rank.
func (rd *Round) fault(l *link, phase string, err error) error {
	if rd.parent.Err() != nil {
		return rd.parent.Err()
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	if rd.root.opts.Degraded == DegradedFail {
		return fmt.Errorf("%w: rank %d in %s", ErrRoundTimeout, l.rank, phase)
	}

	zlog.Logger.Warn().
		Int("rank", l.rank).
		Str("phase", phase).
		Uint64("round", rd.seq).
		Msg("rank missed round deadline, reassigning its blocks to root")
	l.lost = true

	return nil
}

// Dispatch runs a complete round over buf: the image is split into one
// block per participant with the context rows op needs, and the blocks
// come back concatenated in rank order.
func (r *Root) Dispatch(ctx context.Context, op model.Operation, buf pixel.Buffer) (pixel.Buffer, error) {
	blocks, err := pixel.Partition(buf, r.opts.Size, transform.Halo(op))
	if err != nil {
		return pixel.Buffer{}, err
	}

	rd, err := r.Begin(ctx, op)
	if err != nil {
		return pixel.Buffer{}, err
	}
	defer rd.Close()

	if err := rd.Scatter(blocks); err != nil {
		return pixel.Buffer{}, err
	}

	out, err := rd.Gather()
	if err != nil {
		return pixel.Buffer{}, err
	}

	return pixel.Concat(out)
}

// Shutdown broadcasts the null operation to every worker. It happens once;
// later calls return ErrStopped.
func (r *Root) Shutdown(ctx context.Context) error {
	if r.stopped {
		return ErrStopped
	}
	r.stopped = true
	r.round++

	if r.opts.RoundTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.RoundTimeout)
		defer cancel()
	}

	var errs []error
	for _, l := range r.links {
		e := envelope{round: r.round}
		if l.lost {
			if n := l.replaceDown(e); n > 0 {
				zlog.Logger.Warn().
					Int("rank", l.rank).
					Int("discarded", n).
					Msg("discarded stale rounds queued for lost rank")
			}
			continue
		}
		if err := l.sendDown(ctx, e); err != nil {
			errs = append(errs, fmt.Errorf("rank %d: %w", l.rank, err))
		}
	}

	zlog.Logger.Info().Int("participants", r.opts.Size).Msg("broadcast shutdown")
	r.opts.OnShutdown(0)

	return errors.Join(errs...)
}

// Size returns the number of participants including the root.
func (r *Root) Size() int { return r.opts.Size }
