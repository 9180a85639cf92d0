package transport

import (
	"encoding/binary"
	"fmt"
	"testing"
	"time"
)

// wireInt is a minimal Bytesable[wireInt] message used only by this
// package's tests, standing in for hand-written codecs such as cmd/timely's
// wireEnvelope for progress.Pointstamp payloads.
type wireInt int64

func (w *wireInt) MarshalBytes() ([]byte, error) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(*w))
	return b[:], nil
}

func (w *wireInt) UnmarshalBytes(b []byte) error {
	if len(b) != 8 {
		return fmt.Errorf(`wireInt: expected 8 bytes, got %d`, len(b))
	}
	*w = wireInt(binary.BigEndian.Uint64(b))
	return nil
}

func TestTCPTransportDeliversAcrossProcesses(t *testing.T) {
	hosts := []string{"127.0.0.1:0", "127.0.0.1:0"}

	tr0, err := NewTCPTransport[wireInt, *wireInt](2, 0, hosts, "127.0.0.1:0", identityWireCloner())
	if err != nil {
		t.Fatalf(`unexpected error constructing process 0's transport: %v`, err)
	}
	defer tr0.Close()
	tr1, err := NewTCPTransport[wireInt, *wireInt](2, 1, hosts, "127.0.0.1:0", identityWireCloner())
	if err != nil {
		t.Fatalf(`unexpected error constructing process 1's transport: %v`, err)
	}
	defer tr1.Close()

	// Point each transport's "remote process" host entry at the other's
	// actual listener address, since both bound to an ephemeral port.
	hosts[0] = tr0.listener.Addr().String()
	hosts[1] = tr1.listener.Addr().String()

	// Global worker indices: process 0 hosts workers 0-1, process 1 hosts
	// workers 2-3.
	_, recvOnProcess1Worker0, err := tr1.Allocate(2, 9)
	if err != nil {
		t.Fatalf(`unexpected error allocating on process 1: %v`, err)
	}
	sendersFromProcess0, _, err := tr0.Allocate(0, 9)
	if err != nil {
		t.Fatalf(`unexpected error allocating on process 0: %v`, err)
	}

	v := wireInt(77)
	if err := sendersFromProcess0[2].Send(&v); err != nil {
		t.Fatalf(`unexpected send error: %v`, err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got, ok := recvOnProcess1Worker0.Recv(); ok {
			if *got != 77 {
				t.Fatalf(`expected 77, got %d`, *got)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(`timed out waiting for message to cross processes`)
}

func identityWireCloner() Cloner[wireInt] {
	return CloneFunc[wireInt](func(v wireInt) wireInt { return v })
}
