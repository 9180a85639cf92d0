// Package worker implements the scheduler that ties the rest of this
// module together (spec §4.7): a step loop driven by an activations
// queue, invoking exactly one operator per activation and feeding its
// reported change-batch back into the hosting reachability engine.
//
// A single Worker is generic over one dataflow timestamp/path-summary
// pair (S, T); a process that mixes dataflows of different timestamp
// types runs one Worker per type rather than type-erasing across them
// (see DESIGN.md — a deliberate, documented scoping decision, since spec
// §4.7 never requires heterogeneous dataflows to share one scheduler
// instance, only that each worker own "a set of dataflows").
package worker

import (
	"sync"
	"time"

	"github.com/joeycumines/timely/config"
	"github.com/joeycumines/timely/operatorcore"
	"github.com/joeycumines/timely/order"
	"github.com/joeycumines/timely/reachability"
	"github.com/joeycumines/timely/telemetry"
	"github.com/joeycumines/timely/timelyerr"
)

// Address names one operator within one of a worker's dataflows.
type Address struct {
	Dataflow int
	Operator int
}

// activations is the worker-local FIFO queue of operator addresses
// awaiting invocation. Insertion order is preserved and duplicate
// addresses are coalesced (an already-queued address is not re-queued),
// mirroring the teacher's eventloop.ChunkedIngress's dedup-free but
// order-preserving drain, simplified here to a slice-backed queue since a
// single worker goroutine owns it exclusively between lock sections.
type activations struct {
	queued map[Address]bool
	order  []Address
}

func newActivations() *activations {
	return &activations{queued: make(map[Address]bool)}
}

func (a *activations) push(addr Address) {
	if a.queued[addr] {
		return
	}
	a.queued[addr] = true
	a.order = append(a.order, addr)
}

func (a *activations) pop() (Address, bool) {
	if len(a.order) == 0 {
		return Address{}, false
	}
	addr := a.order[0]
	a.order = a.order[1:]
	delete(a.queued, addr)
	return addr, true
}

func (a *activations) empty() bool {
	return len(a.order) == 0
}

// dataflowHost is one dataflow's operator table, reachability engine, and
// per-operator pending inboxes.
type dataflowHost[S order.Summary[S, T], T reachability.Moment[T]] struct {
	operators []operatorcore.Operator[S, T]
	tracker   *reachability.Tracker[S, T]
	inboxes   map[int]*operatorcore.Inbox[T]
	failed    error
}

// Worker owns a set of same-typed dataflows, an activations queue, and the
// shared Config every hosted operator can read (spec §4.7).
type Worker[S order.Summary[S, T], T reachability.Moment[T]] struct {
	mu         sync.Mutex
	dataflows  []*dataflowHost[S, T]
	queue      *activations
	wake       chan struct{}
	cfg        *config.Config
	logger     telemetry.Logger
	onChanges  func(dataflow int, changes []reachability.LocationChange[T])
}

// New constructs an empty Worker sharing cfg with its hosted operators.
func New[S order.Summary[S, T], T reachability.Moment[T]](cfg *config.Config, opts ...Option[S, T]) *Worker[S, T] {
	w := &Worker[S, T]{
		queue:  newActivations(),
		wake:   make(chan struct{}, 1),
		cfg:    cfg,
		logger: telemetry.Default(),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Option configures a Worker.
type Option[S order.Summary[S, T], T reachability.Moment[T]] func(*Worker[S, T])

// WithLogger attaches a Logger to a Worker.
func WithLogger[S order.Summary[S, T], T reachability.Moment[T]](l telemetry.Logger) Option[S, T] {
	return func(w *Worker[S, T]) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithChangeObserver registers a callback invoked with every reachability
// update a scheduled operator produces, feeding the broadcast layer (spec
// §4.7 step 3: "feed the change-batch ... into the broadcast layer").
func WithChangeObserver[S order.Summary[S, T], T reachability.Moment[T]](fn func(dataflow int, changes []reachability.LocationChange[T])) Option[S, T] {
	return func(w *Worker[S, T]) {
		w.onChanges = fn
	}
}

// AddDataflow registers a compiled dataflow's operator table and tracker,
// returning its dense index for use in Address and Deliver.
func (w *Worker[S, T]) AddDataflow(operators []operatorcore.Operator[S, T], tracker *reachability.Tracker[S, T]) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	idx := len(w.dataflows)
	w.dataflows = append(w.dataflows, &dataflowHost[S, T]{
		operators: operators,
		tracker:   tracker,
		inboxes:   make(map[int]*operatorcore.Inbox[T]),
	})
	return idx
}

// Failed returns the error that aborted dataflow's last invocation, if
// any (spec §7: every listed error kind is fatal to its containing
// dataflow, not to the worker).
func (w *Worker[S, T]) Failed(dataflow int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dataflows[dataflow].failed
}

// Deliver records a newly-arrived batch at (dataflow, operator, port) —
// spec §4.7 step 1's "drain inbound transport ... stash ... enqueue the
// recipient operator's address into activations" — and activates the
// receiving operator.
func (w *Worker[S, T]) Deliver(dataflow, operator, port int, t T, count int64) {
	w.mu.Lock()
	host := w.dataflows[dataflow]
	inbox := host.inboxes[operator]
	if inbox == nil {
		inbox = operatorcore.NewInbox[T]()
		host.inboxes[operator] = inbox
	}
	inbox.Deliver(port, t, count)
	w.queue.push(Address{Dataflow: dataflow, Operator: operator})
	w.mu.Unlock()
	w.unpark()
}

// Activate enqueues addr for invocation without delivering any new input,
// e.g. for an operator re-activating itself (spec §4.7's Liveness clause).
func (w *Worker[S, T]) Activate(addr Address) {
	w.mu.Lock()
	w.queue.push(addr)
	w.mu.Unlock()
	w.unpark()
}

func (w *Worker[S, T]) unpark() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Step performs spec §4.7's step loop body once: pop one activation,
// invoke its operator exactly once, feed the result into the hosting
// reachability engine and the broadcast observer. Reports whether an
// activation was actually processed.
func (w *Worker[S, T]) Step() bool {
	w.mu.Lock()
	addr, ok := w.queue.pop()
	w.mu.Unlock()
	if !ok {
		return false
	}
	w.invoke(addr)
	return true
}

// StepOrPark performs Step once; if there was nothing to do, it parks for
// up to timeout (or indefinitely if timeout < 0) waiting to be unparked by
// Deliver/Activate, then retries Step exactly once more. A timeout of 0
// never parks. Reports whether an activation was processed.
func (w *Worker[S, T]) StepOrPark(timeout time.Duration) bool {
	if w.Step() {
		return true
	}
	if timeout == 0 {
		return false
	}
	if timeout < 0 {
		<-w.wake
		return w.Step()
	}
	select {
	case <-w.wake:
		return w.Step()
	case <-time.After(timeout):
		return false
	}
}

// Idle reports whether the activations queue is currently empty.
func (w *Worker[S, T]) Idle() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.queue.empty()
}

func (w *Worker[S, T]) invoke(addr Address) {
	w.mu.Lock()
	host := w.dataflows[addr.Dataflow]
	if host.failed != nil {
		w.mu.Unlock()
		return
	}
	op := host.operators[addr.Operator]
	inbox := host.inboxes[addr.Operator]
	if inbox == nil {
		inbox = operatorcore.NewInbox[T]()
	}
	host.inboxes[addr.Operator] = operatorcore.NewInbox[T]()
	w.mu.Unlock()

	report, err := w.schedule(addr, op, inbox)
	if err != nil {
		if !timelyerr.IsFatal(err) {
			// Not one of the documented dataflow-fatal kinds (spec §7): a
			// single dataflow's containment can't account for it, so it
			// propagates past this invocation rather than being silently
			// absorbed, same as an unconverted panic would.
			if w.logger != nil {
				w.logger.Err().Err(err).Int("dataflow", addr.Dataflow).Int("operator", addr.Operator).Log("worker: operator invocation failed with an unrecognized error kind, propagating")
			}
			panic(err)
		}
		w.mu.Lock()
		host.failed = err
		w.mu.Unlock()
		if w.logger != nil {
			w.logger.Err().Err(err).Int("dataflow", addr.Dataflow).Int("operator", addr.Operator).Log("worker: operator invocation failed, dataflow aborted")
		}
		w.DropDataflow(addr.Dataflow)
		return
	}

	changes := host.tracker.Update(report.Changes)
	if w.onChanges != nil && len(changes) > 0 {
		w.onChanges(addr.Dataflow, changes)
	}

	if report.Reschedule {
		w.Activate(addr)
	}
}

// schedule invokes op.Schedule, converting any recovered panic into a
// *timelyerr.PanicError scoped to addr's operator, so one bad operator
// invocation cannot unwind past Step (spec §7's Panic policy), mirroring
// the teacher's eventloop.safeExecute per-task recover().
func (w *Worker[S, T]) schedule(addr Address, op operatorcore.Operator[S, T], inbox *operatorcore.Inbox[T]) (report operatorcore.Report[T], err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &timelyerr.PanicError{
				Location: timelyerr.Location{Operator: addr.Operator},
				Value:    r,
			}
		}
	}()
	return op.Schedule(inbox)
}

// DropDataflow finalizes every operator in dataflow, releasing their held
// capabilities (spec §5's cancellation clause). Safe to call more than
// once.
func (w *Worker[S, T]) DropDataflow(dataflow int) {
	w.mu.Lock()
	host := w.dataflows[dataflow]
	w.mu.Unlock()
	for _, op := range host.operators {
		op.Finalize()
	}
}

// Config returns the shared Config every hosted operator may read.
func (w *Worker[S, T]) Config() *config.Config {
	return w.cfg
}
