package reachability

import (
	"testing"

	"github.com/joeycumines/timely/order"
	"github.com/joeycumines/timely/progress"
	"github.com/joeycumines/timely/timelyerr"
)

// simple single-hop dataflow: one operator with one input and one output,
// internal summary NatSummary{Delta:1} (an operator that always advances
// the timestamp by 1, e.g. a per-round increment), feeding back into its
// own input — a classic timely loop body.
func buildLoop(t *testing.T) *Tracker[order.NatSummary, order.Nat] {
	t.Helper()
	b := NewBuilder[order.NatSummary, order.Nat](order.Identity)
	op := b.AddOperator(OperatorSummary[order.NatSummary]{
		Inputs:  1,
		Outputs: 1,
		Internal: [][]*progress.Antichain[order.NatSummary]{
			{progress.NewAntichain[order.NatSummary](order.NatSummary{Delta: 1})},
		},
	})
	in := progress.Location{Operator: op, Port: 0, Kind: progress.Target}
	out := progress.Location{Operator: op, Port: 0, Kind: progress.Source}
	b.Connect(out, in) // feedback edge, closing the cycle

	tr, err := b.Compile()
	if err != nil {
		t.Fatalf(`unexpected compile error: %v`, err)
	}
	return tr
}

func TestCompileAdvancingCycleSucceeds(t *testing.T) {
	buildLoop(t)
}

func TestCompileNonAdvancingCycleRejected(t *testing.T) {
	b := NewBuilder[order.NatSummary, order.Nat](order.Identity)
	op := b.AddOperator(OperatorSummary[order.NatSummary]{
		Inputs:  1,
		Outputs: 1,
		Internal: [][]*progress.Antichain[order.NatSummary]{
			// identity summary: the operator does not advance the timestamp.
			{progress.NewAntichain[order.NatSummary](order.Identity)},
		},
	})
	in := progress.Location{Operator: op, Port: 0, Kind: progress.Target}
	out := progress.Location{Operator: op, Port: 0, Kind: progress.Source}
	b.Connect(out, in)

	_, err := b.Compile()
	if err == nil {
		t.Fatal(`expected a non-advancing cycle to be rejected`)
	}
	var cycleErr *timelyerr.NonAdvancingCycleError
	if !asNonAdvancing(err, &cycleErr) {
		t.Fatalf(`expected *timelyerr.NonAdvancingCycleError, got %T: %v`, err, err)
	}
}

func asNonAdvancing(err error, target **timelyerr.NonAdvancingCycleError) bool {
	if e, ok := err.(*timelyerr.NonAdvancingCycleError); ok {
		*target = e
		return true
	}
	return false
}

func TestUpdatePropagatesThroughPipeline(t *testing.T) {
	// two chained operators, A -> B, each advancing by 1.
	b := NewBuilder[order.NatSummary, order.Nat](order.Identity)
	opA := b.AddOperator(OperatorSummary[order.NatSummary]{
		Inputs:  1,
		Outputs: 1,
		Internal: [][]*progress.Antichain[order.NatSummary]{
			{progress.NewAntichain[order.NatSummary](order.NatSummary{Delta: 1})},
		},
	})
	opB := b.AddOperator(OperatorSummary[order.NatSummary]{
		Inputs:  1,
		Outputs: 1,
		Internal: [][]*progress.Antichain[order.NatSummary]{
			{progress.NewAntichain[order.NatSummary](order.NatSummary{Delta: 1})},
		},
	})
	aIn := progress.Location{Operator: opA, Port: 0, Kind: progress.Target}
	aOut := progress.Location{Operator: opA, Port: 0, Kind: progress.Source}
	bIn := progress.Location{Operator: opB, Port: 0, Kind: progress.Target}
	bOut := progress.Location{Operator: opB, Port: 0, Kind: progress.Source}
	b.Connect(aOut, bIn)

	tr, err := b.Compile()
	if err != nil {
		t.Fatalf(`unexpected compile error: %v`, err)
	}

	changes := progress.NewChangeBatch[progress.Pointstamp[order.Nat]]()
	changes.Update(progress.Pointstamp[order.Nat]{Location: aIn, Timestamp: 0}, 1)
	out := tr.Update(changes)
	if len(out) == 0 {
		t.Fatal(`expected at least one touched location`)
	}

	if !tr.IsPortActive(aIn) {
		t.Fatal(`expected aIn to be active after a +1 update`)
	}
	if !tr.IsPortActive(bOut) {
		t.Fatal(`expected the update to have propagated all the way to bOut`)
	}
	frontier := tr.Frontier(bOut)
	if frontier.IsEmpty() || !frontier.Dominates(2) {
		t.Fatalf(`expected bOut's frontier to dominate 2 (0 + 1 + 1), got %v`, frontier.Elements())
	}
	_ = bIn

	// retract the original update: everything downstream should clear.
	retract := progress.NewChangeBatch[progress.Pointstamp[order.Nat]]()
	retract.Update(progress.Pointstamp[order.Nat]{Location: aIn, Timestamp: 0}, -1)
	tr.Update(retract)
	if tr.IsPortActive(aIn) || tr.IsPortActive(bOut) {
		t.Fatal(`expected retraction to clear all propagated counts`)
	}
}

func TestOperatorWithNoInternalPathBlocksPropagation(t *testing.T) {
	// an operator declaring Internal as entirely absent: a barrier, whose
	// output is never implied by its input (spec §3's "selective" property).
	b := NewBuilder[order.NatSummary, order.Nat](order.Identity)
	op := b.AddOperator(OperatorSummary[order.NatSummary]{Inputs: 1, Outputs: 1})
	in := progress.Location{Operator: op, Port: 0, Kind: progress.Target}
	out := progress.Location{Operator: op, Port: 0, Kind: progress.Source}

	tr, err := b.Compile()
	if err != nil {
		t.Fatalf(`unexpected compile error: %v`, err)
	}

	changes := progress.NewChangeBatch[progress.Pointstamp[order.Nat]]()
	changes.Update(progress.Pointstamp[order.Nat]{Location: in, Timestamp: 0}, 1)
	tr.Update(changes)

	if tr.IsPortActive(out) {
		t.Fatal(`expected no propagation across an operator with no declared internal path`)
	}
}
