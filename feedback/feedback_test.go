package feedback

import (
	"testing"

	"github.com/joeycumines/timely/operatorcore"
	"github.com/joeycumines/timely/order"
	"github.com/joeycumines/timely/progress"
)

func locTarget(operator, port int) progress.Location {
	return progress.Location{Operator: operator, Port: port, Kind: progress.Target}
}

func locSource(operator, port int) progress.Location {
	return progress.Location{Operator: operator, Port: port, Kind: progress.Source}
}

func pointstamp(loc progress.Location, t order.Nat) progress.Pointstamp[order.Nat] {
	return progress.Pointstamp[order.Nat]{Location: loc, Timestamp: t}
}

var _ operatorcore.Operator[order.NatSummary, order.Nat] = (*Feedback[order.NatSummary, order.Nat])(nil)

func TestFeedbackAdvancesConsumedMessages(t *testing.T) {
	f := New[order.NatSummary, order.Nat](0, order.NatSummary{Delta: 1})

	inbox := operatorcore.NewInbox[order.Nat]()
	inbox.Deliver(0, 3, 1)

	report, err := f.Schedule(inbox)
	if err != nil {
		t.Fatalf(`unexpected error: %v`, err)
	}

	consumedLoc := locTarget(0, 0)
	sourceLoc := locSource(0, 0)
	if got := report.Changes.Get(pointstamp(consumedLoc, 3)); got != -1 {
		t.Fatalf(`expected -1 consumed at t=3, got %d`, got)
	}
	if got := report.Changes.Get(pointstamp(sourceLoc, 4)); got != 1 {
		t.Fatalf(`expected +1 produced at t=4 (3 advanced by 1), got %d`, got)
	}
}

func TestFeedbackSummaryDeclaresSingleInputOutputPath(t *testing.T) {
	f := New[order.NatSummary, order.Nat](0, order.NatSummary{Delta: 2})
	summary := f.Summary()
	if summary.Inputs != 1 || summary.Outputs != 1 {
		t.Fatalf(`expected 1 input and 1 output, got %d/%d`, summary.Inputs, summary.Outputs)
	}
	chain := summary.Internal[0][0]
	if chain.IsEmpty() {
		t.Fatal(`expected a declared path from input 0 to output 0`)
	}
	elems := chain.Elements()
	if len(elems) != 1 || elems[0].Delta != 2 {
		t.Fatalf(`expected the declared summary {Delta:2}, got %v`, elems)
	}
}
