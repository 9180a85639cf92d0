package worker

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Execute runs every fn concurrently, one per worker thread, until all
// return or ctx is cancelled, propagating the first error and cancelling
// the rest (spec §6: "exit code 0 on success, non-zero if any worker
// panics"). Grounded on the corpus's errgroup idiom for fanning out a
// goroutine per unit of concurrent work (e.g. roachtest's per-node
// errgroup.Group) applied here to per-worker-thread step loops instead of
// per-node SSH sessions.
func Execute(ctx context.Context, fns ...func(ctx context.Context) error) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, fn := range fns {
		fn := fn
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("worker: panic in worker thread: %v", r)
				}
			}()
			return fn(ctx)
		})
	}
	return g.Wait()
}
