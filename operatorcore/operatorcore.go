// Package operatorcore defines the minimal contract the worker imposes on
// every operator implementation — declare-summary, schedule-once,
// finalize (spec §4.5) — plus the shared bookkeeping types (Inbox,
// Accumulator) a concrete operator (in this module, feedback) uses to build
// its single reported ChangeBatch without duplicating the failure-mode
// checks spec §7 requires of every invocation. Package input publishes
// through its own capability pool, and package subgraph does not implement
// Operator.
package operatorcore

import (
	"fmt"

	"github.com/joeycumines/timely/capability"
	"github.com/joeycumines/timely/progress"
	"github.com/joeycumines/timely/reachability"
	"github.com/joeycumines/timely/timelyerr"
)

// Operator is the capability set every scheduled unit of work implements:
// declare its internal summary once at graph construction, perform one
// bounded unit of work per invocation, and release resources once when its
// hosting dataflow is torn down.
type Operator[S any, T capability.Moment[T]] interface {
	// Summary declares the operator's internal input->output path
	// summaries, consumed once by the reachability Builder at graph
	// construction (spec §4.3).
	Summary() reachability.OperatorSummary[S]

	// Schedule performs one bounded unit of work, given the newly
	// delivered input batches since the last invocation. It returns a
	// Report describing every count change it is responsible for, and
	// whether it must be rescheduled even absent new input (spec §4.5's
	// Liveness clause: an operator with unfinished work must re-activate
	// itself; one with none must not).
	Schedule(inbox *Inbox[T]) (Report[T], error)

	// Finalize releases any held capabilities and other per-operator
	// state. Called exactly once, when the hosting dataflow is torn down.
	Finalize()
}

// Inbox holds the newly delivered message counts for one operator
// invocation, keyed by target port index.
type Inbox[T comparable] struct {
	deliveries map[int]*progress.ChangeBatch[T]
}

// NewInbox returns an empty, ready-to-use Inbox.
func NewInbox[T comparable]() *Inbox[T] {
	return &Inbox[T]{deliveries: make(map[int]*progress.ChangeBatch[T])}
}

// Deliver records count newly-arrived messages at timestamp t on the given
// target port. Called by the worker while draining transport input before
// invoking the operator (spec §4.7 step 1).
func (in *Inbox[T]) Deliver(port int, t T, count int64) {
	batch := in.deliveries[port]
	if batch == nil {
		batch = progress.NewChangeBatch[T]()
		in.deliveries[port] = batch
	}
	batch.Update(t, count)
}

// At returns the delivered-message batch for port, or an empty batch if
// nothing arrived there this invocation.
func (in *Inbox[T]) At(port int) *progress.ChangeBatch[T] {
	batch := in.deliveries[port]
	if batch == nil {
		return progress.NewChangeBatch[T]()
	}
	return batch
}

// Report is the exactly-one change-batch an operator invocation returns
// (spec §4.5's Reporting clause), plus whether it wants to be scheduled
// again even without new input.
type Report[T comparable] struct {
	Changes    *progress.ChangeBatch[progress.Pointstamp[T]]
	Reschedule bool
}

// Accumulator builds an operator invocation's Report, performing the
// failure-mode checks spec §7 assigns to CapabilityMisuse and Panic as
// changes are recorded, so every concrete operator gets them uniformly.
type Accumulator[T capability.Moment[T]] struct {
	operator int
	changes  *progress.ChangeBatch[progress.Pointstamp[T]]
}

// NewAccumulator returns an empty Accumulator for the given operator
// index, used to tag locations in the reported Pointstamps.
func NewAccumulator[T capability.Moment[T]](operator int) *Accumulator[T] {
	return &Accumulator[T]{operator: operator, changes: progress.NewChangeBatch[progress.Pointstamp[T]]()}
}

// Consume records that count messages at timestamp t were consumed from
// the given target port, decrementing its implied count. Fails with a
// PanicError (an unexpected invariant break, spec §7) if count exceeds
// what inbox actually delivered there.
func (a *Accumulator[T]) Consume(inbox *Inbox[T], port int, t T, count int64) error {
	delivered := inbox.At(port).Get(t)
	if count > delivered {
		return &timelyerr.PanicError{
			Location: timelyerr.Location{Operator: a.operator, Port: port, Output: false},
			Value:    fmt.Sprintf("consumed %d at timestamp %v exceeds %d delivered", count, t, delivered),
		}
	}
	loc := progress.Location{Operator: a.operator, Port: port, Kind: progress.Target}
	a.changes.Update(progress.Pointstamp[T]{Location: loc, Timestamp: t}, -count)
	return nil
}

// Send records that count messages are being produced at timestamp t on
// the given source port, requiring a capability held in pool to dominate
// t (spec §4.5's send failure mode; the non-consuming variant per
// SPEC_FULL.md's Open Question decision, so pool itself is untouched).
func (a *Accumulator[T]) Send(pool *capability.Pool[T], port int, t T, count int64) error {
	if !pool.Dominated(t) {
		return &timelyerr.CapabilityMisuseError{
			Location:  timelyerr.Location{Operator: a.operator, Port: port, Output: true},
			Attempted: fmt.Sprintf("send at %v with no dominating capability held", t),
		}
	}
	loc := progress.Location{Operator: a.operator, Port: port, Kind: progress.Source}
	a.changes.Update(progress.Pointstamp[T]{Location: loc, Timestamp: t}, count)
	return nil
}

// MergeCapabilityChanges folds a capability pool's drained ChangeBatch
// (itself already keyed by timestamp on a single source port) into the
// accumulator's report, at that port's location.
func (a *Accumulator[T]) MergeCapabilityChanges(port int, drained *progress.ChangeBatch[T]) {
	loc := progress.Location{Operator: a.operator, Port: port, Kind: progress.Source}
	for _, e := range drained.Entries() {
		a.changes.Update(progress.Pointstamp[T]{Location: loc, Timestamp: e.Timestamp}, e.Delta)
	}
}

// Report finalizes the accumulator into a Report, marked reschedule if the
// operator has unfinished work to resume next invocation.
func (a *Accumulator[T]) Report(reschedule bool) Report[T] {
	return Report[T]{Changes: a.changes, Reschedule: reschedule}
}
