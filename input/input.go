// Package input implements the worker's bridge from outside data into a
// dataflow (spec §4.9): Send, AdvanceTo, Close, all expressed in terms of a
// single standard capability so that input frontier advancement
// participates in ordinary progress tracking.
package input

import (
	"sync"

	"github.com/joeycumines/timely/capability"
	"github.com/joeycumines/timely/progress"
	"github.com/joeycumines/timely/reachability"
	"github.com/joeycumines/timely/telemetry"
	"github.com/joeycumines/timely/timelyerr"
)

// Tracker is the subset of *reachability.Tracker[S, T] that Input needs,
// named independently so Input is not generic over the dataflow's
// path-summary type S.
type Tracker[T comparable] interface {
	Update(changes *progress.ChangeBatch[progress.Pointstamp[T]]) []reachability.LocationChange[T]
}

// Input is a worker-owned external data source bound to one dataflow's
// Source location. It is not safe for concurrent use from multiple
// goroutines beyond what Send/AdvanceTo/Close's own mutex serializes.
type Input[T capability.Moment[T]] struct {
	mu       sync.Mutex
	location progress.Location
	tracker  Tracker[T]
	pool     *capability.Pool[T]
	held     capability.Capability[T]
	sent     int64
	closed   bool
	logger   telemetry.Logger
}

// New creates an Input bound to location (a Source port, conventionally
// dedicated to this Input alone), issuing an initial capability at
// epoch and registering it with tracker.
func New[T capability.Moment[T]](location progress.Location, tracker Tracker[T], epoch T, opts ...Option) *Input[T] {
	in := &Input[T]{
		location: location,
		tracker:  tracker,
		pool:     capability.NewPool[T](location),
		logger:   telemetry.Default(),
	}
	for _, o := range opts {
		o(&options{logger: &in.logger})
	}
	in.held = in.pool.Issue(epoch)
	in.publish()
	return in
}

// Option configures an Input.
type Option func(*options)

type options struct {
	logger *telemetry.Logger
}

// WithLogger attaches a Logger to an Input.
func WithLogger(l telemetry.Logger) Option {
	return func(o *options) {
		if l != nil {
			*o.logger = l
		}
	}
}

// Send queues a datum at the Input's currently held epoch. Progress
// tracking does not depend on the datum's value or delivery mechanism
// (that is the transport's concern); Send only records that a message was
// produced at the current epoch.
func (in *Input[T]) Send() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return &timelyerr.CapabilityMisuseError{
			Location:  toErrLocation(in.location),
			Attempted: "send after close",
		}
	}
	in.sent++
	changes := progress.NewChangeBatch[progress.Pointstamp[T]]()
	changes.Update(progress.Pointstamp[T]{Location: in.location, Timestamp: in.held.Timestamp()}, 1)
	in.tracker.Update(changes)
	return nil
}

// AdvanceTo downgrades the held capability to t, which must dominate the
// current epoch (spec §4.5's downgrade failure mode). Multi-worker inputs
// must call AdvanceTo with the same sequence of t values on every worker.
func (in *Input[T]) AdvanceTo(t T) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return &timelyerr.CapabilityMisuseError{
			Location:  toErrLocation(in.location),
			Attempted: "advance_to after close",
		}
	}
	next, err := in.held.DowngradeTo(t)
	if err != nil {
		return err
	}
	in.held = next
	in.publish()
	if in.logger != nil {
		in.logger.Debug().Log("input: advanced")
	}
	return nil
}

// Close drops the held capability; no further Send or AdvanceTo calls are
// permitted.
func (in *Input[T]) Close() {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return
	}
	in.held.Drop()
	in.closed = true
	in.publish()
}

// publish drains the capability pool and forwards the resulting
// ChangeBatch to the tracker, under the caller's held lock.
func (in *Input[T]) publish() {
	drained := in.pool.Drain()
	if drained.IsEmpty() {
		return
	}
	changes := progress.NewChangeBatch[progress.Pointstamp[T]]()
	for _, e := range drained.Entries() {
		changes.Update(progress.Pointstamp[T]{Location: in.location, Timestamp: e.Timestamp}, e.Delta)
	}
	in.tracker.Update(changes)
}

func toErrLocation(l progress.Location) timelyerr.Location {
	return timelyerr.Location{Operator: l.Operator, Port: l.Port, Output: l.Kind == progress.Source}
}
