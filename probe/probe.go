// Package probe implements read-only frontier observers (spec §4.8). A
// Probe holds only a weak reference to its hosting Tracker, mirroring the
// teacher's eventloop registry's weak.Pointer-based promise bookkeeping,
// so that observing a dataflow's progress never keeps a torn-down dataflow
// alive.
package probe

import (
	"weak"

	"github.com/joeycumines/timely/order"
	"github.com/joeycumines/timely/progress"
	"github.com/joeycumines/timely/reachability"
)

// Probe is a read-only handle on the implication at one Source or Target
// location of a dataflow.
type Probe[S order.Summary[S, T], T reachability.Moment[T]] struct {
	ref      weak.Pointer[reachability.Tracker[S, T]]
	location progress.Location
}

// New returns a Probe observing loc within tr, holding only a weak
// reference to tr.
func New[S order.Summary[S, T], T reachability.Moment[T]](tr *reachability.Tracker[S, T], loc progress.Location) *Probe[S, T] {
	return &Probe[S, T]{ref: weak.Make(tr), location: loc}
}

// Frontier returns the current implication antichain at the probed
// location, or an empty antichain if the hosting dataflow has since been
// torn down and collected — indistinguishable, by design, from a location
// that has genuinely drained to completion (spec §4.8).
func (p *Probe[S, T]) Frontier() *progress.Antichain[T] {
	tr := p.ref.Value()
	if tr == nil {
		return progress.NewAntichain[T]()
	}
	return tr.Frontier(p.location)
}

// LessThan reports whether the probed frontier has not yet reached t: some
// frontier element is strictly less than t. Operators use this to decide
// whether it is still safe to wait for more input at t, e.g.
// "for probe.LessThan(round) { worker.Step() }".
func (p *Probe[S, T]) LessThan(t T) bool {
	frontier := p.Frontier()
	for _, e := range frontier.Elements() {
		if e.LessEqual(t) && !t.LessEqual(e) {
			return true
		}
	}
	return false
}

// Location returns the location this probe observes.
func (p *Probe[S, T]) Location() progress.Location {
	return p.location
}
