package transport

import "testing"

func identityCloner() Cloner[int] {
	return CloneFunc[int](func(v int) int { return v })
}

func TestInProcessTransportFanOutAndReceive(t *testing.T) {
	tr := NewInProcessTransport[int](3, identityCloner())

	sendersFrom0, recv0, err := tr.Allocate(0, 7)
	if err != nil {
		t.Fatalf(`unexpected error: %v`, err)
	}
	sendersFrom1, recv1, err := tr.Allocate(1, 7)
	if err != nil {
		t.Fatalf(`unexpected error: %v`, err)
	}
	if len(sendersFrom0) != 3 || len(sendersFrom1) != 3 {
		t.Fatalf(`expected 3 senders per worker, got %d and %d`, len(sendersFrom0), len(sendersFrom1))
	}

	v := 42
	if err := sendersFrom0[1].Send(&v); err != nil {
		t.Fatalf(`unexpected send error: %v`, err)
	}

	got, ok := recv1.Recv()
	if !ok {
		t.Fatal(`expected a message for worker 1`)
	}
	if *got != 42 {
		t.Fatalf(`expected 42, got %d`, *got)
	}
	if _, ok := recv0.Recv(); ok {
		t.Fatal(`expected worker 0's receiver to have nothing queued`)
	}
}

func TestInProcessTransportClonesSentValues(t *testing.T) {
	calls := 0
	cloner := CloneFunc[int](func(v int) int {
		calls++
		return v
	})
	tr := NewInProcessTransport[int](2, cloner)
	senders, _, err := tr.Allocate(0, 1)
	if err != nil {
		t.Fatalf(`unexpected error: %v`, err)
	}
	v := 5
	if err := senders[1].Send(&v); err != nil {
		t.Fatalf(`unexpected error: %v`, err)
	}
	if calls != 1 {
		t.Fatalf(`expected the cloner to run once, ran %d times`, calls)
	}
}

func TestInProcessTransportSendNilIsNoOp(t *testing.T) {
	tr := NewInProcessTransport[int](2, identityCloner())
	senders, recv, err := tr.Allocate(0, 1)
	if err != nil {
		t.Fatalf(`unexpected error: %v`, err)
	}
	if err := senders[0].Send(nil); err != nil {
		t.Fatalf(`unexpected error: %v`, err)
	}
	if _, ok := recv.Recv(); ok {
		t.Fatal(`expected nothing queued after a nil send`)
	}
}

func TestInProcessTransportAllocateRejectsOutOfRangeWorker(t *testing.T) {
	tr := NewInProcessTransport[int](2, identityCloner())
	if _, _, err := tr.Allocate(5, 0); err == nil {
		t.Fatal(`expected an error for an out-of-range worker index`)
	}
}
