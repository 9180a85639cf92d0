// Package capability implements the per-operator capability pool: the
// reference-counted (location, timestamp) handles that grant the right to
// emit messages at or after a held timestamp (spec §3, §4.5, §4.6).
package capability

import (
	"fmt"

	"github.com/joeycumines/timely/progress"
	"github.com/joeycumines/timely/telemetry"
	"github.com/joeycumines/timely/timelyerr"
)

// Moment is the constraint a timestamp type must satisfy to back a Pool:
// comparable (to key the ref-count map) and partially ordered.
type Moment[T any] interface {
	comparable
	LessEqual(other T) bool
}

// Pool is the per-(operator, output port) capability accounting structure.
// It is not safe for concurrent use; operators are scheduled one at a time
// per spec §4.7.
type Pool[T Moment[T]] struct {
	location progress.Location
	counts   map[T]int64
	pending  *progress.ChangeBatch[T]
	logger   telemetry.Logger
}

// NewPool constructs an empty Pool bound to the given output port location.
func NewPool[T Moment[T]](location progress.Location, opts ...Option) *Pool[T] {
	p := &Pool[T]{
		location: location,
		counts:   make(map[T]int64),
		pending:  progress.NewChangeBatch[T](),
		logger:   telemetry.Default(),
	}
	for _, o := range opts {
		o(&options{logger: &p.logger})
	}
	return p
}

// Option configures a Pool.
type Option func(*options)

type options struct {
	logger *telemetry.Logger
}

// WithLogger attaches a Logger to a Pool.
func WithLogger(l telemetry.Logger) Option {
	return func(o *options) {
		if l != nil {
			*o.logger = l
		}
	}
}

// Location returns the output port this pool backs.
func (p *Pool[T]) Location() progress.Location {
	return p.location
}

// Issue mints a brand-new capability at t, incrementing the pool's count.
// Used at graph construction for initial capabilities, and whenever a
// consumed message's timestamp becomes a capability on the matching source
// port (spec §3's "capabilities come into existence" clause).
func (p *Pool[T]) Issue(t T) Capability[T] {
	p.adjust(t, 1)
	return Capability[T]{pool: p, time: t}
}

// Dominated reports whether t is dominated by some currently held
// capability (count > 0), i.e. whether a send at t would be legal (spec
// §4.5's send failure mode: "producing a message at a timestamp not
// dominated by any held capability").
func (p *Pool[T]) Dominated(t T) bool {
	for held, count := range p.counts {
		if count > 0 && held.LessEqual(t) {
			return true
		}
	}
	return false
}

// Drain returns the accumulated ChangeBatch of count changes since the
// last Drain, and resets the pending batch. Called once per operator
// invocation as part of its Reporting step (spec §4.5).
func (p *Pool[T]) Drain() *progress.ChangeBatch[T] {
	out := p.pending
	p.pending = progress.NewChangeBatch[T]()
	return out
}

func (p *Pool[T]) adjust(t T, delta int64) {
	next := p.counts[t] + delta
	if next <= 0 {
		delete(p.counts, t)
	} else {
		p.counts[t] = next
	}
	p.pending.Update(t, delta)
	if p.logger != nil {
		p.logger.Trace().Int64("delta", delta).Log("capability: pool count adjusted")
	}
}

// Capability is a (location, timestamp) handle with an implicit reference
// held in its backing Pool. The zero value is not usable; capabilities are
// only produced by Pool.Issue, Capability.Clone, or Capability.DowngradeTo.
type Capability[T Moment[T]] struct {
	pool *Pool[T]
	time T
}

// Timestamp returns the timestamp this capability is held at. Reading it
// neither consumes nor mutates the capability (resolves an open question
// left by the source material in favor of repeatable, side-effect-free
// inspection).
func (c Capability[T]) Timestamp() T {
	return c.time
}

// Location returns the output port this capability is bound to.
func (c Capability[T]) Location() progress.Location {
	return c.pool.location
}

// Clone increments the pool's count at the same timestamp and returns an
// independent capability handle for it.
func (c Capability[T]) Clone() Capability[T] {
	c.pool.adjust(c.time, 1)
	return Capability[T]{pool: c.pool, time: c.time}
}

// DowngradeTo decrements the count at the receiver's timestamp and
// increments it at t, returning the new capability. t must dominate (be
// greater-equal to) the receiver's timestamp, or this is a
// CapabilityMisuseError and the receiver's count is left untouched (spec
// §4.5, §8 E6).
func (c Capability[T]) DowngradeTo(t T) (Capability[T], error) {
	if !c.time.LessEqual(t) {
		return Capability[T]{}, &timelyerr.CapabilityMisuseError{
			Location:  toErrLocation(c.pool.location),
			Attempted: fmt.Sprintf("downgrade from %v to %v", c.time, t),
		}
	}
	c.pool.adjust(c.time, -1)
	c.pool.adjust(t, 1)
	return Capability[T]{pool: c.pool, time: t}, nil
}

// Drop releases the capability, decrementing the pool's count at its
// timestamp. Using the capability again afterward is a caller bug, not
// something this type can detect by value alone.
func (c Capability[T]) Drop() {
	c.pool.adjust(c.time, -1)
}

func toErrLocation(l progress.Location) timelyerr.Location {
	return timelyerr.Location{Operator: l.Operator, Port: l.Port, Output: l.Kind == progress.Source}
}
