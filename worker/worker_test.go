package worker

import (
	"errors"
	"testing"
	"time"

	"github.com/joeycumines/timely/feedback"
	"github.com/joeycumines/timely/operatorcore"
	"github.com/joeycumines/timely/order"
	"github.com/joeycumines/timely/progress"
	"github.com/joeycumines/timely/reachability"
	"github.com/joeycumines/timely/timelyerr"
)

// panicOperator's Schedule always panics, standing in for an operator bug
// a literal Go panic rather than a returned error.
type panicOperator struct{}

func (panicOperator) Summary() reachability.OperatorSummary[order.NatSummary] {
	return reachability.OperatorSummary[order.NatSummary]{Inputs: 1, Outputs: 0}
}

func (panicOperator) Schedule(*operatorcore.Inbox[order.Nat]) (operatorcore.Report[order.Nat], error) {
	panic(`boom`)
}

func (panicOperator) Finalize() {}

// plainErrOperator's Schedule returns a plain error outside every kind
// timelyerr.IsFatal recognizes.
type plainErrOperator struct{}

func (plainErrOperator) Summary() reachability.OperatorSummary[order.NatSummary] {
	return reachability.OperatorSummary[order.NatSummary]{Inputs: 1, Outputs: 0}
}

func (plainErrOperator) Schedule(*operatorcore.Inbox[order.Nat]) (operatorcore.Report[order.Nat], error) {
	return operatorcore.Report[order.Nat]{}, errors.New(`boom`)
}

func (plainErrOperator) Finalize() {}

// buildFeedbackDataflow compiles a single-operator dataflow wrapping one
// feedback.Feedback operator, whose output loops back to its own input one
// step ahead, advanced by 1 each trip.
func buildFeedbackDataflow(t *testing.T) ([]operatorcore.Operator[order.NatSummary, order.Nat], *reachability.Tracker[order.NatSummary, order.Nat]) {
	t.Helper()
	b := reachability.NewBuilder[order.NatSummary, order.Nat](order.Identity)
	f := feedback.New[order.NatSummary, order.Nat](0, order.NatSummary{Delta: 1})
	opIdx := b.AddOperator(f.Summary())
	if opIdx != 0 {
		t.Fatalf(`expected operator index 0, got %d`, opIdx)
	}
	b.Connect(
		progress.Location{Operator: 0, Port: 0, Kind: progress.Source},
		progress.Location{Operator: 0, Port: 0, Kind: progress.Target},
	)
	tr, err := b.Compile()
	if err != nil {
		t.Fatalf(`unexpected compile error: %v`, err)
	}
	return []operatorcore.Operator[order.NatSummary, order.Nat]{f}, tr
}

func TestStepReturnsFalseWhenIdle(t *testing.T) {
	operators, tr := buildFeedbackDataflow(t)
	w := New[order.NatSummary, order.Nat](nil)
	w.AddDataflow(operators, tr)

	if w.Step() {
		t.Fatal(`expected Step to return false with no activations queued`)
	}
	if !w.Idle() {
		t.Fatal(`expected worker to report idle`)
	}
}

func TestDeliverActivatesAndStepInvokesOperator(t *testing.T) {
	operators, tr := buildFeedbackDataflow(t)
	var observed []reachability.LocationChange[order.Nat]
	w := New[order.NatSummary, order.Nat](nil, WithChangeObserver[order.NatSummary, order.Nat](
		func(dataflow int, changes []reachability.LocationChange[order.Nat]) {
			observed = append(observed, changes...)
		},
	))
	dfIdx := w.AddDataflow(operators, tr)

	w.Deliver(dfIdx, 0, 0, 3, 1)
	if w.Idle() {
		t.Fatal(`expected a pending activation after Deliver`)
	}
	if !w.Step() {
		t.Fatal(`expected Step to process the activation`)
	}
	if !w.Idle() {
		t.Fatal(`expected no further activations after a single Step`)
	}
	if len(observed) == 0 {
		t.Fatal(`expected the change observer to be invoked with at least one location change`)
	}
}

func TestStepOrParkTimesOutWhenNothingToDo(t *testing.T) {
	operators, tr := buildFeedbackDataflow(t)
	w := New[order.NatSummary, order.Nat](nil)
	w.AddDataflow(operators, tr)

	start := time.Now()
	if w.StepOrPark(20 * time.Millisecond) {
		t.Fatal(`expected StepOrPark to time out with nothing queued`)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatal(`expected StepOrPark to have actually waited out the timeout`)
	}
}

func TestStepOrParkWakesOnDeliver(t *testing.T) {
	operators, tr := buildFeedbackDataflow(t)
	w := New[order.NatSummary, order.Nat](nil)
	dfIdx := w.AddDataflow(operators, tr)

	done := make(chan bool, 1)
	go func() {
		done <- w.StepOrPark(time.Second)
	}()
	time.Sleep(10 * time.Millisecond)
	w.Deliver(dfIdx, 0, 0, 1, 1)

	select {
	case ok := <-done:
		if !ok {
			t.Fatal(`expected StepOrPark to report an activation was processed`)
		}
	case <-time.After(time.Second):
		t.Fatal(`timed out waiting for StepOrPark to wake`)
	}
}

func TestDropDataflowFinalizesOperators(t *testing.T) {
	operators, tr := buildFeedbackDataflow(t)
	w := New[order.NatSummary, order.Nat](nil)
	dfIdx := w.AddDataflow(operators, tr)
	w.DropDataflow(dfIdx)
	if w.Failed(dfIdx) != nil {
		t.Fatal(`expected DropDataflow alone not to mark the dataflow failed`)
	}
}

// buildSingleOperatorDataflow compiles a trivial one-operator dataflow
// around whatever operator is given, with no connected edges — enough to
// deliver directly to operator 0 and invoke it.
func buildSingleOperatorDataflow(t *testing.T, op operatorcore.Operator[order.NatSummary, order.Nat]) ([]operatorcore.Operator[order.NatSummary, order.Nat], *reachability.Tracker[order.NatSummary, order.Nat]) {
	t.Helper()
	b := reachability.NewBuilder[order.NatSummary, order.Nat](order.Identity)
	opIdx := b.AddOperator(op.Summary())
	if opIdx != 0 {
		t.Fatalf(`expected operator index 0, got %d`, opIdx)
	}
	tr, err := b.Compile()
	if err != nil {
		t.Fatalf(`unexpected compile error: %v`, err)
	}
	return []operatorcore.Operator[order.NatSummary, order.Nat]{op}, tr
}

func TestInvokeContainsPanicToItsOwnDataflow(t *testing.T) {
	panicking, panicTr := buildSingleOperatorDataflow(t, panicOperator{})
	healthy, healthyTr := buildFeedbackDataflow(t)
	w := New[order.NatSummary, order.Nat](nil)
	panicDf := w.AddDataflow(panicking, panicTr)
	healthyDf := w.AddDataflow(healthy, healthyTr)

	w.Deliver(panicDf, 0, 0, 1, 1)
	if !w.Step() {
		t.Fatal(`expected Step to process the panicking operator's activation`)
	}

	err := w.Failed(panicDf)
	if err == nil {
		t.Fatal(`expected the panicking dataflow to be marked failed`)
	}
	var panicErr *timelyerr.PanicError
	if !errors.As(err, &panicErr) {
		t.Fatalf(`expected a *timelyerr.PanicError, got %T: %v`, err, err)
	}

	w.Deliver(healthyDf, 0, 0, 3, 1)
	if !w.Step() {
		t.Fatal(`expected the sibling dataflow to keep processing activations`)
	}
	if w.Failed(healthyDf) != nil {
		t.Fatal(`expected the sibling dataflow to be unaffected by the other's panic`)
	}
}

func TestInvokePropagatesUnrecognizedErrorKinds(t *testing.T) {
	operators, tr := buildSingleOperatorDataflow(t, plainErrOperator{})
	w := New[order.NatSummary, order.Nat](nil)
	dfIdx := w.AddDataflow(operators, tr)
	w.Deliver(dfIdx, 0, 0, 1, 1)

	defer func() {
		if r := recover(); r == nil {
			t.Fatal(`expected Step to panic on an error kind timelyerr.IsFatal doesn't recognize`)
		}
	}()
	w.Step()
}
