// Package feedback implements the operator inserted at the head of a
// dataflow cycle (spec §4.10): a single input, a single output, and one
// declared summary s that the reachability engine uses to certify the
// cycle advances (spec §3 invariant c).
package feedback

import (
	"fmt"

	"github.com/joeycumines/timely/capability"
	"github.com/joeycumines/timely/operatorcore"
	"github.com/joeycumines/timely/order"
	"github.com/joeycumines/timely/progress"
	"github.com/joeycumines/timely/reachability"
	"github.com/joeycumines/timely/telemetry"
	"github.com/joeycumines/timely/timelyerr"
)

// Feedback is the operator that closes a loop edge, forwarding every
// consumed message to its single output advanced by its declared summary.
type Feedback[S order.Summary[S, T], T capability.Moment[T]] struct {
	operator int
	summary  S
	pool     *capability.Pool[T]
	logger   telemetry.Logger
}

// New constructs a Feedback operator at operatorIndex (its dense index in
// the hosting dataflow's operator table), advancing every forwarded
// message by summary.
func New[S order.Summary[S, T], T capability.Moment[T]](operatorIndex int, summary S, opts ...Option) *Feedback[S, T] {
	outLoc := progress.Location{Operator: operatorIndex, Port: 0, Kind: progress.Source}
	f := &Feedback[S, T]{
		operator: operatorIndex,
		summary:  summary,
		pool:     capability.NewPool[T](outLoc),
		logger:   telemetry.Default(),
	}
	for _, o := range opts {
		o(&options{logger: &f.logger})
	}
	return f
}

// Option configures a Feedback operator.
type Option func(*options)

type options struct {
	logger *telemetry.Logger
}

// WithLogger attaches a Logger to a Feedback operator.
func WithLogger(l telemetry.Logger) Option {
	return func(o *options) {
		if l != nil {
			*o.logger = l
		}
	}
}

// Summary declares the operator's sole internal path: its one input maps
// to its one output via summary.
func (f *Feedback[S, T]) Summary() reachability.OperatorSummary[S] {
	return reachability.OperatorSummary[S]{
		Inputs:  1,
		Outputs: 1,
		Internal: [][]*progress.Antichain[S]{
			{progress.NewAntichain[S](f.summary)},
		},
	}
}

// Schedule consumes every message newly delivered on the single input and
// re-sends it on the single output, advanced by the declared summary.
// Every consumed message implicitly grants the capability needed to send
// its advanced counterpart (spec §3: "capabilities come into existence
// when messages are consumed").
func (f *Feedback[S, T]) Schedule(inbox *operatorcore.Inbox[T]) (operatorcore.Report[T], error) {
	acc := operatorcore.NewAccumulator[T](f.operator)
	for _, e := range inbox.At(0).Entries() {
		if e.Delta <= 0 {
			continue
		}
		advanced, ok := f.summary.ResultsIn(e.Timestamp)
		if !ok {
			return operatorcore.Report[T]{}, &timelyerr.PanicError{
				Location: timelyerr.Location{Operator: f.operator},
				Value:    fmt.Sprintf("feedback summary rejected timestamp %v", e.Timestamp),
			}
		}
		if err := acc.Consume(inbox, 0, e.Timestamp, e.Delta); err != nil {
			return operatorcore.Report[T]{}, err
		}
		held := f.pool.Issue(advanced)
		if err := acc.Send(f.pool, 0, advanced, e.Delta); err != nil {
			return operatorcore.Report[T]{}, err
		}
		held.Drop()
	}
	acc.MergeCapabilityChanges(0, f.pool.Drain())
	return acc.Report(false), nil
}

// Finalize releases no additional resources: Feedback holds no capability
// across invocations.
func (f *Feedback[S, T]) Finalize() {}
