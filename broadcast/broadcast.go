// Package broadcast implements the progress-broadcast channel (spec
// §4.4): a per-worker, per-channel sequence of change-batches delivered
// FIFO and at-most-once to every peer, including the local worker itself.
// Two modes are offered: Eager, which forwards every published batch
// immediately, and the default Demand-driven, which coalesces batches
// locally until explicitly flushed.
package broadcast

import (
	"fmt"
	"sync"
	"time"

	"github.com/joeycumines/timely/progress"
	"github.com/joeycumines/timely/telemetry"
)

// Mode selects a Channel's publication policy.
type Mode int

const (
	// DemandDriven accumulates published batches per dataflow until
	// Flush is called (directly, or via the auto-flush timer), coalescing
	// compatible deltas in the meantime. The default (spec §4.4).
	DemandDriven Mode = iota
	// Eager forwards every published batch to every peer immediately,
	// minimizing latency at the risk of high traffic.
	Eager
)

// Envelope is the unit that crosses the wire: a dataflow-tagged,
// never-split change-batch (spec §4.4's atomicity and demultiplexing
// requirements).
type Envelope[T any] struct {
	Dataflow int
	Changes  *progress.ChangeBatch[progress.Pointstamp[T]]
}

// Peer is the minimal send-side contract a Channel needs of a remote
// worker's transport endpoint — named independently of the transport
// package so broadcast does not need to import its framing/dialing
// concerns, matching the narrow-interface precedent set by input.Tracker.
type Peer[T any] interface {
	Send(env Envelope[T]) error
}

// Channel is one progress-broadcast channel, fanning a worker's own
// published batches out to every Peer and, synchronously, to the local
// onLocal callback (spec §4.4: "to all workers including self").
type Channel[T comparable] struct {
	mu      sync.Mutex
	mode    Mode
	peers   []Peer[T]
	onLocal func(dataflow int, changes *progress.ChangeBatch[progress.Pointstamp[T]])
	pending map[int]*progress.ChangeBatch[progress.Pointstamp[T]]
	monitor *trafficMonitor
	flush   *autoFlush
	logger  telemetry.Logger
}

// New constructs a Channel in the given mode, fanning published batches
// out to peers and synchronously to onLocal.
func New[T comparable](mode Mode, onLocal func(dataflow int, changes *progress.ChangeBatch[progress.Pointstamp[T]]), peers []Peer[T], opts ...Option[T]) *Channel[T] {
	c := &Channel[T]{
		mode:    mode,
		peers:   peers,
		onLocal: onLocal,
		pending: make(map[int]*progress.ChangeBatch[progress.Pointstamp[T]]),
		monitor: newTrafficMonitor(),
		logger:  telemetry.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Option configures a Channel.
type Option[T comparable] func(*Channel[T])

// WithLogger attaches a Logger to a Channel.
func WithLogger[T comparable](l telemetry.Logger) Option[T] {
	return func(c *Channel[T]) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithAutoFlush starts a background timer that calls Flush whenever
// pending Demand-driven data has sat unflushed for interval, mirroring the
// teacher's microbatch.Batcher first-job-starts-the-timer idiom. Has no
// effect in Eager mode. The returned Channel's Close must be called to
// stop the timer.
func WithAutoFlush[T comparable](interval time.Duration) Option[T] {
	return func(c *Channel[T]) {
		if interval > 0 {
			c.flush = newAutoFlush(interval, c.Flush)
		}
	}
}

// WithTrafficThreshold configures the Eager-mode traffic monitor: a
// warning is logged whenever the channel's eager publish rate exceeds
// limit events within window (spec §4.4: "risking catastrophic traffic").
func WithTrafficThreshold[T comparable](window time.Duration, limit int) Option[T] {
	return func(c *Channel[T]) {
		c.monitor = newTrafficMonitorWithLimit(window, limit)
	}
}

// Publish delivers changes for dataflow to the local worker synchronously,
// then forwards it to every peer per the channel's Mode. An empty batch is
// a no-op.
func (c *Channel[T]) Publish(dataflow int, changes *progress.ChangeBatch[progress.Pointstamp[T]]) error {
	if changes == nil || changes.IsEmpty() {
		return nil
	}
	c.onLocal(dataflow, changes)

	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.mode {
	case Eager:
		return c.sendLocked(dataflow, changes)
	default:
		batch := c.pending[dataflow]
		if batch == nil {
			batch = progress.NewChangeBatch[progress.Pointstamp[T]]()
			c.pending[dataflow] = batch
		}
		for _, e := range changes.Entries() {
			batch.Update(e.Timestamp, e.Delta)
		}
		if c.flush != nil {
			c.flush.noteActivity()
		}
		return nil
	}
}

// Flush forwards every dataflow's coalesced pending batch to every peer
// and clears it. A no-op in Eager mode, where Publish already forwarded
// immediately. Safe to call from the channel's owning worker at the end of
// every step, or from the auto-flush timer.
func (c *Channel[T]) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for dataflow, batch := range c.pending {
		if batch.IsEmpty() {
			delete(c.pending, dataflow)
			continue
		}
		if err := c.sendLocked(dataflow, batch); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(c.pending, dataflow)
	}
	return firstErr
}

// sendLocked fans env out to every peer, under c.mu.
func (c *Channel[T]) sendLocked(dataflow int, changes *progress.ChangeBatch[progress.Pointstamp[T]]) error {
	if c.mode == Eager {
		if warn, rate := c.monitor.observe(); warn {
			if c.logger != nil {
				c.logger.Warning().Int("rate", rate).Log("broadcast: eager publish rate exceeds configured threshold")
			}
		}
	}
	env := Envelope[T]{Dataflow: dataflow, Changes: changes}
	var firstErr error
	for _, p := range c.peers {
		if err := p.Send(env); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("broadcast: peer send failed: %w", err)
		}
	}
	return firstErr
}

// Close stops the auto-flush timer, if one was configured.
func (c *Channel[T]) Close() {
	if c.flush != nil {
		c.flush.stop()
	}
}
