package reachability

import (
	"github.com/joeycumines/timely/order"
	"github.com/joeycumines/timely/progress"
	"github.com/joeycumines/timely/telemetry"
)

// Tracker is the compiled, running reachability engine for one dataflow
// (or subgraph). It is not safe for concurrent use; callers (the worker's
// scheduler) serialize access per spec §4.7.
type Tracker[S order.Summary[S, T], T Moment[T]] struct {
	operators []OperatorSummary[S]
	compiled  map[progress.Location]map[progress.Location]*progress.Antichain[S]
	counts    map[progress.Location]*progress.ChangeBatch[T]
	logger    telemetry.Logger
}

// LocationChange is one entry of Update's return value: the net count
// changes applied at a single location as a result of propagating an
// input batch forward along the compiled summaries.
type LocationChange[T comparable] struct {
	Location progress.Location
	Changes  *progress.ChangeBatch[T]
}

// Update applies changes — a batch of (Pointstamp, delta) entries — to the
// tracker's per-location counts, propagating every entry forward along
// every compiled path summary from its location (spec §4.3). It returns,
// for every location whose counts actually changed, the net ChangeBatch
// of deltas applied there (including the zero-hop delta at the update's
// own location).
func (tr *Tracker[S, T]) Update(changes *progress.ChangeBatch[progress.Pointstamp[T]]) []LocationChange[T] {
	touched := make(map[progress.Location]*progress.ChangeBatch[T])

	emit := func(loc progress.Location, t T, delta int64) {
		cb := touched[loc]
		if cb == nil {
			cb = progress.NewChangeBatch[T]()
			touched[loc] = cb
		}
		cb.Update(t, delta)

		tc := tr.counts[loc]
		if tc == nil {
			tc = progress.NewChangeBatch[T]()
			tr.counts[loc] = tc
		}
		tc.Update(t, delta)
	}

	for _, entry := range changes.Entries() {
		loc := entry.Timestamp.Location
		t := entry.Timestamp.Timestamp
		delta := entry.Delta

		emit(loc, t, delta)

		for to, chain := range tr.compiled[loc] {
			for _, s := range chain.Elements() {
				if t2, ok := s.ResultsIn(t); ok {
					emit(to, t2, delta)
				}
			}
		}
	}

	out := make([]LocationChange[T], 0, len(touched))
	for loc, cb := range touched {
		if !cb.IsEmpty() {
			out = append(out, LocationChange[T]{Location: loc, Changes: cb})
		}
	}
	if tr.logger != nil && len(out) > 0 {
		tr.logger.Debug().Int("locations", len(out)).Log("reachability: update propagated")
	}
	return out
}

// Counts returns a snapshot of the raw per-timestamp counts accumulated at
// loc (spec §4.3's source_counts/target_counts, unified over both port
// kinds since the accounting is identical).
func (tr *Tracker[S, T]) Counts(loc progress.Location) []progress.Entry[T] {
	cb := tr.counts[loc]
	if cb == nil {
		return nil
	}
	return cb.Entries()
}

// SourceCounts returns Counts for an output port, after validating loc
// names one.
func (tr *Tracker[S, T]) SourceCounts(loc progress.Location) []progress.Entry[T] {
	if loc.Kind != progress.Source {
		return nil
	}
	return tr.Counts(loc)
}

// TargetCounts returns Counts for an input port, after validating loc
// names one.
func (tr *Tracker[S, T]) TargetCounts(loc progress.Location) []progress.Entry[T] {
	if loc.Kind != progress.Target {
		return nil
	}
	return tr.Counts(loc)
}

// IsPortActive reports whether loc currently has any timestamp with a
// strictly positive count — i.e. whether a future message or capability
// can still arrive there (spec §4.5's scheduling precondition).
func (tr *Tracker[S, T]) IsPortActive(loc progress.Location) bool {
	cb := tr.counts[loc]
	if cb == nil {
		return false
	}
	for _, e := range cb.Entries() {
		if e.Delta > 0 {
			return true
		}
	}
	return false
}

// Frontier computes the minimal antichain of timestamps with a strictly
// positive count at loc: the implication of that location, as observed by
// probes and by operators deciding whether a notification has fired.
func (tr *Tracker[S, T]) Frontier(loc progress.Location) *progress.Antichain[T] {
	frontier := progress.NewAntichain[T]()
	cb := tr.counts[loc]
	if cb == nil {
		return frontier
	}
	for _, e := range cb.Entries() {
		if e.Delta > 0 {
			frontier.Insert(e.Timestamp)
		}
	}
	return frontier
}

// Operators exposes the compiled operator table, read-only, for callers
// (the subgraph and worker packages) that need to re-derive per-operator
// port counts (e.g. Inputs/Outputs) without keeping a second copy.
func (tr *Tracker[S, T]) Operators() []OperatorSummary[S] {
	return tr.operators
}

// PathSummaries returns the compiled minimal antichain of path summaries
// from one location to another, or an empty antichain if Compile found no
// path. Used by package subgraph to project its internal reachability
// onto its external (inside-of-input -> inside-of-output) operator
// summary.
func (tr *Tracker[S, T]) PathSummaries(from, to progress.Location) *progress.Antichain[S] {
	if m, ok := tr.compiled[from]; ok {
		if chain, ok := m[to]; ok {
			return chain
		}
	}
	return progress.NewAntichain[S]()
}
