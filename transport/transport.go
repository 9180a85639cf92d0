// Package transport implements the external collaborator spec §6 names
// but treats as out of core scope beyond its contract: a typed,
// worker-unique-channel-id FIFO allocator, offered in an in-process
// variant (for single-process multi-worker runs) and a TCP variant (for
// multi-process runs driven by a hostfile). Both satisfy the same
// Transport contract so the worker and broadcast layers never depend on
// which is in use.
package transport

// Sender is the send side of one allocated channel, directed at one peer
// worker. Send(nil) is a pause hint (spec §6: "permits the channel to
// return buffers"); both implementations in this package treat it as a
// no-op, since neither holds buffers that benefit from early release.
type Sender[T any] interface {
	Send(v *T) error
}

// Receiver is the receive side of one allocated channel. Recv is a
// non-blocking poll: ok is false when nothing is currently available,
// never when the channel is merely slow (spec §6).
type Receiver[T any] interface {
	Recv() (v *T, ok bool)
}

// Transport allocates typed FIFO channels keyed by a worker-unique channel
// id (spec §6). Allocate returns one Sender per peer worker (indexed by
// peer worker index, including self) and the single Receiver draining
// messages peers sent to the calling worker on this channel.
type Transport[T any] interface {
	Allocate(workerIndex, channelID int) ([]Sender[T], Receiver[T], error)
}

// Cloner isolates a message crossing an in-process channel so concurrent
// mutation by sender and receiver cannot race, mirroring the teacher's
// inprocgrpc.Cloner contract (there guarding proto.Message values shared
// across goroutines in the same address space; here guarding arbitrary T).
type Cloner[T any] interface {
	Clone(T) T
}

// CloneFunc adapts a plain function into a Cloner.
type CloneFunc[T any] func(T) T

func (f CloneFunc[T]) Clone(v T) T { return f(v) }
