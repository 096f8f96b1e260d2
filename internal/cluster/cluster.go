// Package cluster runs dispatch rounds: a root participant broadcasts an
// operation to a fixed worker group, scatters one row block per rank and
// gathers the transformed blocks back in rank order.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aliskhannn/image-distributor/internal/model"
	"github.com/aliskhannn/image-distributor/internal/pixel"
	"github.com/aliskhannn/image-distributor/internal/transform"
)

var (
	// ErrRoundTimeout is returned when a round misses its deadline and the
	// degraded policy is to fail it.
	ErrRoundTimeout = errors.New("dispatch round timed out")

	// ErrStopped is returned by a root that already broadcast shutdown.
	ErrStopped = errors.New("worker group stopped")
)

// Participant is a member of the worker group. Rank 0 is the root.
type Participant interface {
	Rank() int
	Run(ctx context.Context) error
}

// Degraded selects what happens when some ranks miss the round deadline.
type Degraded int

const (
	// DegradedFail drops the round.
	DegradedFail Degraded = iota
	// DegradedReassign lets the root compute the missing blocks.
	DegradedReassign
)

// ParseDegraded parses "fail" or "reassign".
func ParseDegraded(s string) (Degraded, error) {
	switch strings.ToLower(s) {
	case "", "fail":
		return DegradedFail, nil
	case "reassign":
		return DegradedReassign, nil
	default:
		return 0, fmt.Errorf("unknown degraded policy %q", s)
	}
}

func (d Degraded) String() string {
	if d == DegradedReassign {
		return "reassign"
	}
	return "fail"
}

// ComputeFunc transforms one block on behalf of rank.
type ComputeFunc func(rank int, b pixel.Block, op model.Operation) pixel.Block

// Compute applies op to the block including its context rows and returns
// the core rows only.
func Compute(_ int, b pixel.Block, op model.Operation) pixel.Block {
	out := transform.Apply(b.Buf, op)
	return pixel.Block{
		Index:  b.Index,
		Offset: b.Offset,
		Buf:    out.Rows(b.Top, out.Height-b.Bottom),
	}
}

// Options configures a worker group.
type Options struct {
	Size         int           // number of participants including the root
	RoundTimeout time.Duration // zero waits forever
	Degraded     Degraded

	Compute    ComputeFunc    // defaults to Compute
	OnShutdown func(rank int) // called once per participant reaching shutdown
}

// Group is a root plus Size-1 workers connected by links.
type Group struct {
	root    *Root
	workers []*Worker

	eg     *errgroup.Group
	cancel context.CancelFunc
}

// New wires a group. Workers run after Start.
func New(opts Options) (*Group, error) {
	if opts.Size < 1 {
		return nil, fmt.Errorf("worker group size must be positive, got %d", opts.Size)
	}
	if opts.Compute == nil {
		opts.Compute = Compute
	}
	if opts.OnShutdown == nil {
		opts.OnShutdown = func(int) {}
	}

	links := make([]*link, 0, opts.Size-1)
	workers := make([]*Worker, 0, opts.Size-1)
	for rank := 1; rank < opts.Size; rank++ {
		l := newLink(rank)
		links = append(links, l)
		workers = append(workers, &Worker{
			rank:       rank,
			link:       l,
			compute:    opts.Compute,
			onShutdown: opts.OnShutdown,
		})
	}

	return &Group{
		root:    &Root{opts: opts, links: links},
		workers: workers,
	}, nil
}

// Root returns the rank 0 endpoint.
func (g *Group) Root() *Root { return g.root }

// Workers returns the participants with rank 1..Size-1.
func (g *Group) Workers() []*Worker { return g.workers }

// Size returns the number of participants.
func (g *Group) Size() int { return g.root.opts.Size }

// Start runs every worker in its own goroutine.
func (g *Group) Start(ctx context.Context) {
	ctx, g.cancel = context.WithCancel(ctx)
	g.eg, ctx = errgroup.WithContext(ctx)

	for _, w := range g.workers {
		w := w
		g.eg.Go(func() error {
			return w.Run(ctx)
		})
	}
}

// Wait blocks until every worker returned. Cancellation is not an error.
func (g *Group) Wait() error {
	if g.eg == nil {
		return nil
	}

	err := g.eg.Wait()
	g.cancel()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close cancels workers that are still running and waits for them.
func (g *Group) Close() error {
	if g.cancel != nil {
		g.cancel()
	}
	return g.Wait()
}
