// Package subgraph implements nested scopes (spec §4.6): an operator that
// owns its own operator table, its own reachability engine, and performs
// two-way timestamp translation between its outer timestamp type and the
// Product-refined inner timestamp type used by everything inside it.
package subgraph

import (
	"github.com/joeycumines/timely/order"
	"github.com/joeycumines/timely/progress"
	"github.com/joeycumines/timely/reachability"
	"github.com/joeycumines/timely/telemetry"
)

// Subgraph is a nested scope whose internal timestamp type is
// order.Product[Outer] and whose internal path-summary type is
// order.ProductSummary[OuterS, Outer] — the refinement spec §4.1
// describes for one level of loop/iteration nesting. Deeper nesting
// composes by using one Subgraph's Product timestamp as another Subgraph's
// Outer.
type Subgraph[OuterS order.Summary[OuterS, Outer], Outer reachability.Moment[Outer]] struct {
	builder         *reachability.Builder[order.ProductSummary[OuterS, Outer], order.Product[Outer]]
	tracker         *reachability.Tracker[order.ProductSummary[OuterS, Outer], order.Product[Outer]]
	inputLocations  []progress.Location // inside-of-input Source locations (one synthetic ingress operator per external input)
	outputLocations []progress.Location // inside-of-output Target locations (one synthetic egress operator per external output)
	lastProjected   []*progress.Antichain[Outer]
	logger          telemetry.Logger
}

// New constructs an empty Subgraph. outerIdentity is the identity summary
// of the outer timestamp type (the summary a plain edge carries at the
// outer scope), needed to build this subgraph's own internal identity
// summary (order.ProductSummary{Outer: outerIdentity, Inner: order.Identity}).
func New[OuterS order.Summary[OuterS, Outer], Outer reachability.Moment[Outer]](outerIdentity OuterS, opts ...reachability.Option) *Subgraph[OuterS, Outer] {
	identity := order.ProductSummary[OuterS, Outer]{Outer: outerIdentity, Inner: order.Identity}
	return &Subgraph[OuterS, Outer]{
		builder: reachability.NewBuilder[order.ProductSummary[OuterS, Outer], order.Product[Outer]](identity, opts...),
		logger:  telemetry.Default(),
	}
}

// AddOperator declares an internal operator's reachability and returns its
// dense index, for use in Connect and in locations passed to AddInputPort
// /AddOutputPort wiring.
func (sg *Subgraph[OuterS, Outer]) AddOperator(op reachability.OperatorSummary[order.ProductSummary[OuterS, Outer]]) int {
	return sg.builder.AddOperator(op)
}

// Connect declares an internal edge between two internal locations,
// including edges to/from the synthetic ingress/egress locations returned
// by AddInputPort/AddOutputPort.
func (sg *Subgraph[OuterS, Outer]) Connect(from, to progress.Location) {
	sg.builder.Connect(from, to)
}

// AddInputPort declares a new external input port, backed internally by a
// synthetic zero-input, one-output "ingress" operator. Internal operators
// that consume this port's translated messages Connect from the returned
// location.
func (sg *Subgraph[OuterS, Outer]) AddInputPort() (port int, location progress.Location) {
	opIdx := sg.builder.AddOperator(reachability.OperatorSummary[order.ProductSummary[OuterS, Outer]]{Outputs: 1})
	location = progress.Location{Operator: opIdx, Port: 0, Kind: progress.Source}
	port = len(sg.inputLocations)
	sg.inputLocations = append(sg.inputLocations, location)
	return port, location
}

// AddOutputPort declares a new external output port, backed internally by
// a synthetic one-input, zero-output "egress" operator. Internal operators
// that produce this port's messages Connect their own source to the
// returned location.
func (sg *Subgraph[OuterS, Outer]) AddOutputPort() (port int, location progress.Location) {
	opIdx := sg.builder.AddOperator(reachability.OperatorSummary[order.ProductSummary[OuterS, Outer]]{Inputs: 1})
	location = progress.Location{Operator: opIdx, Port: 0, Kind: progress.Target}
	port = len(sg.outputLocations)
	sg.outputLocations = append(sg.outputLocations, location)
	return port, location
}

// Compile compiles the internal reachability engine. Must be called after
// every AddOperator/AddInputPort/AddOutputPort/Connect call and before any
// other method.
func (sg *Subgraph[OuterS, Outer]) Compile() error {
	tr, err := sg.builder.Compile()
	if err != nil {
		return err
	}
	sg.tracker = tr
	sg.lastProjected = make([]*progress.Antichain[Outer], len(sg.outputLocations))
	if sg.logger != nil {
		sg.logger.Info().Int("inputs", len(sg.inputLocations)).Int("outputs", len(sg.outputLocations)).Log("subgraph: compiled")
	}
	return nil
}

// ApplyExternalInput translates an external progress update at t, on the
// given input port, into the inner Product timestamp (refines(o) +
// inner_zero, spec §4.6) and applies it at that port's inside-of-input
// location.
func (sg *Subgraph[OuterS, Outer]) ApplyExternalInput(port int, t Outer, delta int64) []reachability.LocationChange[order.Product[Outer]] {
	inner := order.ToInner(t)
	changes := progress.NewChangeBatch[progress.Pointstamp[order.Product[Outer]]]()
	changes.Update(progress.Pointstamp[order.Product[Outer]]{Location: sg.inputLocations[port], Timestamp: inner}, delta)
	return sg.tracker.Update(changes)
}

// ApplyInternalChanges feeds an internally-produced ChangeBatch (e.g. from
// an internal operator's Report) into the subgraph's own reachability
// engine.
func (sg *Subgraph[OuterS, Outer]) ApplyInternalChanges(changes *progress.ChangeBatch[progress.Pointstamp[order.Product[Outer]]]) []reachability.LocationChange[order.Product[Outer]] {
	return sg.tracker.Update(changes)
}

// ProjectedFrontier computes the external frontier implied by the internal
// implication at the given output port's inside-of-output location: every
// internal timestamp projected via order.Summarize, re-minimized into an
// Antichain[Outer] (spec §4.6).
func (sg *Subgraph[OuterS, Outer]) ProjectedFrontier(port int) *progress.Antichain[Outer] {
	internal := sg.tracker.Frontier(sg.outputLocations[port])
	projected := progress.NewAntichain[Outer]()
	for _, e := range internal.Elements() {
		projected.Insert(order.Summarize(e))
	}
	return projected
}

// ExternalChange is one entry of PollExternalChanges: an output port whose
// projected frontier has moved since the last poll.
type ExternalChange[Outer any] struct {
	Port     int
	Frontier *progress.Antichain[Outer]
}

// PollExternalChanges recomputes every output port's projected frontier
// and reports only the ports whose projection actually changed since the
// previous call — the subgraph "emits external progress batches to the
// parent only when the projected frontier changes" (spec §4.6).
func (sg *Subgraph[OuterS, Outer]) PollExternalChanges() []ExternalChange[Outer] {
	var out []ExternalChange[Outer]
	for port := range sg.outputLocations {
		projected := sg.ProjectedFrontier(port)
		prev := sg.lastProjected[port]
		if prev == nil || !frontierEqual(prev, projected) {
			sg.lastProjected[port] = projected
			out = append(out, ExternalChange[Outer]{Port: port, Frontier: projected})
		}
	}
	return out
}

// ExternalSummary computes this subgraph's own reachability.OperatorSummary
// in terms of the outer summary type OuterS: the projection of every
// compiled inside-to-outside path summary, for every (input, output) pair
// (spec §4.6: "its internal_summary is the projection of its compiled
// inside-to-outside summaries"). The result is suitable to AddOperator
// into the parent scope's own Builder, so the subgraph participates as a
// single opaque operator there (spec §8 property 5, subgraph opacity).
func (sg *Subgraph[OuterS, Outer]) ExternalSummary() reachability.OperatorSummary[OuterS] {
	internal := make([][]*progress.Antichain[OuterS], len(sg.inputLocations))
	for i, inLoc := range sg.inputLocations {
		internal[i] = make([]*progress.Antichain[OuterS], len(sg.outputLocations))
		for o, outLoc := range sg.outputLocations {
			chain := progress.NewAntichain[OuterS]()
			for _, s := range sg.tracker.PathSummaries(inLoc, outLoc).Elements() {
				chain.Insert(s.Outer)
			}
			internal[i][o] = chain
		}
	}
	return reachability.OperatorSummary[OuterS]{
		Inputs:   len(sg.inputLocations),
		Outputs:  len(sg.outputLocations),
		Internal: internal,
	}
}

func frontierEqual[E order.Timestamp[E]](a, b *progress.Antichain[E]) bool {
	return a.LessEqual(b) && b.LessEqual(a)
}
