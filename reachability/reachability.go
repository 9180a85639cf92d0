// Package reachability implements the compiled path-summary engine at the
// heart of the progress protocol (spec §4.3). Given a dataflow's declared
// per-operator internal summaries and its edge list, Compile produces a
// Tracker that propagates pointstamp deltas forward along the compiled
// summaries, maintaining the accumulated count — and hence the implied
// frontier — at every location.
package reachability

import (
	"github.com/joeycumines/timely/order"
	"github.com/joeycumines/timely/progress"
	"github.com/joeycumines/timely/telemetry"
	"github.com/joeycumines/timely/timelyerr"
)

// Moment is the constraint reachability needs of a timestamp type: it must
// be comparable (to key per-timestamp counts) and partially ordered.
type Moment[T any] interface {
	comparable
	LessEqual(other T) bool
}

// OperatorSummary is an operator's declared internal reachability: for
// every (input, output) pair, the minimal antichain of path summaries a
// message can take crossing the operator. A nil or empty antichain at
// [i][o] means "no path from i to o" — the primary enabler of selective,
// non-blocking scheduling (spec §3).
type OperatorSummary[S any] struct {
	Inputs  int
	Outputs int
	// Internal[i][o] is the antichain of summaries from input i to output
	// o. May be left nil for entries with no path.
	Internal [][]*progress.Antichain[S]
}

func (op OperatorSummary[S]) pathsFrom(input, output int) *progress.Antichain[S] {
	if op.Internal == nil || input >= len(op.Internal) || op.Internal[input] == nil || output >= len(op.Internal[input]) {
		return nil
	}
	return op.Internal[input][output]
}

// Builder accumulates operators and edges prior to Compile. S is the
// concrete path-summary type and T the timestamp type being tracked.
type Builder[S order.Summary[S, T], T Moment[T]] struct {
	identity  S
	operators []OperatorSummary[S]
	edges     []progress.Edge
	logger    telemetry.Logger
}

// NewBuilder constructs an empty Builder. identity is the summary applied
// along a plain edge (spec §4.3: "edges without path-summaries participate
// as identity").
func NewBuilder[S order.Summary[S, T], T Moment[T]](identity S, opts ...Option) *Builder[S, T] {
	b := &Builder[S, T]{identity: identity, logger: telemetry.Default()}
	for _, o := range opts {
		o(&builderOptions{logger: &b.logger})
	}
	return b
}

// Option configures a Builder.
type Option func(*builderOptions)

type builderOptions struct {
	logger *telemetry.Logger
}

// WithLogger attaches a Logger to a Builder (and the Tracker it compiles).
func WithLogger(l telemetry.Logger) Option {
	return func(o *builderOptions) {
		if l != nil {
			*o.logger = l
		}
	}
}

// AddOperator declares an operator and returns its dense, zero-based index.
func (b *Builder[S, T]) AddOperator(op OperatorSummary[S]) int {
	idx := len(b.operators)
	b.operators = append(b.operators, op)
	return idx
}

// Connect declares an edge from an output port to an input port.
func (b *Builder[S, T]) Connect(from, to progress.Location) {
	b.edges = append(b.edges, progress.Edge{From: from, To: to})
}

// locations returns every Source/Target location implied by the declared
// operators.
func (b *Builder[S, T]) locations() []progress.Location {
	var out []progress.Location
	for i, op := range b.operators {
		for p := 0; p < op.Inputs; p++ {
			out = append(out, progress.Location{Operator: i, Port: p, Kind: progress.Target})
		}
		for p := 0; p < op.Outputs; p++ {
			out = append(out, progress.Location{Operator: i, Port: p, Kind: progress.Source})
		}
	}
	return out
}

// directSteps returns, for every location, the single-hop (location,
// summary) pairs reachable from it: edges (via the builder's identity
// summary) and per-operator internal summaries (Target -> Source).
func (b *Builder[S, T]) directSteps() map[progress.Location][]step[S] {
	adjacency := make(map[progress.Location][]step[S])
	for _, e := range b.edges {
		adjacency[e.From] = append(adjacency[e.From], step[S]{to: e.To, summary: b.identity})
	}
	for opIdx, op := range b.operators {
		for i := 0; i < op.Inputs; i++ {
			from := progress.Location{Operator: opIdx, Port: i, Kind: progress.Target}
			for o := 0; o < op.Outputs; o++ {
				chain := op.pathsFrom(i, o)
				if chain == nil {
					continue
				}
				to := progress.Location{Operator: opIdx, Port: o, Kind: progress.Source}
				for _, s := range chain.Elements() {
					adjacency[from] = append(adjacency[from], step[S]{to: to, summary: s})
				}
			}
		}
	}
	return adjacency
}

type step[S any] struct {
	to      progress.Location
	summary S
}

// Compile computes the minimal antichain of path summaries between every
// ordered pair of locations by fixed-point iteration over the declared
// direct steps, then rejects the graph if any cycle carries no
// strictly-advancing summary (spec §3 invariant c, §4.3).
func (b *Builder[S, T]) Compile() (*Tracker[S, T], error) {
	adjacency := b.directSteps()
	locs := b.locations()

	compiled := make(map[progress.Location]map[progress.Location]*progress.Antichain[S], len(locs))
	for _, l := range locs {
		compiled[l] = make(map[progress.Location]*progress.Antichain[S])
	}

	insert := func(from, to progress.Location, s S) bool {
		m := compiled[from]
		if m == nil {
			m = make(map[progress.Location]*progress.Antichain[S])
			compiled[from] = m
		}
		chain := m[to]
		if chain == nil {
			chain = progress.NewAntichain[S]()
			m[to] = chain
		}
		return chain.Insert(s)
	}

	for from, steps := range adjacency {
		for _, st := range steps {
			insert(from, st.to, st.summary)
		}
	}

	// Fixed-point relaxation: repeatedly extend every known path by one more
	// direct step, until nothing changes. Termination relies on spec §3
	// invariant (c): every cycle carries a strictly-advancing summary, so
	// repeated composition around a cycle eventually produces a summary
	// dominated by (and therefore rejected in favor of) one already present.
	const maxRounds = 10_000
	round := 0
	for {
		round++
		changed := false
		for from, m := range compiled {
			type pair struct {
				mid   progress.Location
				chain *progress.Antichain[S]
			}
			snapshot := make([]pair, 0, len(m))
			for mid, chain := range m {
				snapshot = append(snapshot, pair{mid, chain})
			}
			for _, p := range snapshot {
				for _, s1 := range p.chain.Elements() {
					for _, st := range adjacency[p.mid] {
						composed, ok := s1.FollowedBy(st.summary)
						if !ok {
							continue
						}
						if insert(from, st.to, composed) {
							changed = true
						}
					}
				}
			}
		}
		if !changed {
			break
		}
		if round >= maxRounds {
			return nil, &timelyerr.PanicError{Value: "reachability: fixed point did not converge within bound"}
		}
	}

	// Cycle check: any location with a non-advancing summary back to itself
	// names a cycle that can circulate a message's timestamp forever.
	for loc, m := range compiled {
		chain, ok := m[loc]
		if !ok {
			continue
		}
		for _, s := range chain.Elements() {
			if !s.Advances() {
				if b.logger != nil {
					b.logger.Err().Log("reachability: non-advancing cycle detected")
				}
				return nil, &timelyerr.NonAdvancingCycleError{
					Cycle: []timelyerr.Location{toErrLocation(loc)},
				}
			}
		}
	}

	tr := &Tracker[S, T]{
		operators: b.operators,
		compiled:  compiled,
		counts:    make(map[progress.Location]*progress.ChangeBatch[T]),
		logger:    b.logger,
	}
	if tr.logger != nil {
		tr.logger.Info().Int("locations", len(locs)).Log("reachability: compiled")
	}
	return tr, nil
}

func toErrLocation(l progress.Location) timelyerr.Location {
	return timelyerr.Location{Operator: l.Operator, Port: l.Port, Output: l.Kind == progress.Source}
}
