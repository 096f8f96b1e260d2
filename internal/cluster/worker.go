package cluster

import (
	"context"

	"github.com/wb-go/wbf/zlog"
)

// Worker is a non-root participant. It receives the round's operation and
// block from the root, transforms the block and sends it back.
type Worker struct {
	rank       int
	link       *link
	compute    ComputeFunc
	onShutdown func(rank int)
}

// Rank returns the worker's rank, 1..Size-1.
func (w *Worker) Rank() int { return w.rank }

// Run serves rounds until the shutdown broadcast arrives or ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	var current envelope

	for {
		e, err := w.link.recvDown(ctx)
		if err != nil {
			return err
		}

		if e.isBroadcast() {
			if e.op == nil {
				zlog.Logger.Info().Int("rank", w.rank).Msg("worker received shutdown")
				w.onShutdown(w.rank)
				return nil
			}
			current = e
			continue
		}

		// A block from a round whose broadcast never reached us.
		if current.op == nil || e.round != current.round {
			zlog.Logger.Warn().
				Int("rank", w.rank).
				Uint64("round", e.round).
				Msg("discarding block without matching broadcast")
			continue
		}

		out := w.compute(w.rank, *e.block, *current.op)
		if err := w.link.sendUp(ctx, envelope{round: e.round, block: &out}); err != nil {
			return err
		}
	}
}
