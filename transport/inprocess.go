package transport

import "sync"

// InProcessTransport is the intra-process Transport implementation: all
// workers share one instance, and channel allocation fans messages out
// through per-(channel, target worker) queues. Grounded on the teacher's
// inprocgrpc package, which drives client and server ends of a gRPC
// channel through shared memory rather than a socket and uses a Cloner to
// isolate messages crossing that shared memory; this type plays the same
// role for typed progress/data channels instead of gRPC streams.
type InProcessTransport[T any] struct {
	workers int
	cloner  Cloner[T]

	mu       sync.Mutex
	channels map[int][]*queue[T] // channelID -> one queue per target worker
}

// NewInProcessTransport constructs a transport shared by workers many
// workers in a single process. cloner isolates every message handed to
// Sender.Send so sender and receiver never observe the same value
// concurrently; pass CloneFunc[T](func(v T) T { return v }) for value
// types that are already safe to share.
func NewInProcessTransport[T any](workers int, cloner Cloner[T]) *InProcessTransport[T] {
	if workers <= 0 {
		panic(`transport: workers must be positive`)
	}
	if cloner == nil {
		panic(`transport: nil cloner`)
	}
	return &InProcessTransport[T]{
		workers:  workers,
		cloner:   cloner,
		channels: make(map[int][]*queue[T]),
	}
}

// Allocate returns, for channelID, one Sender per worker index (0..workers)
// and the Receiver draining messages sent to workerIndex on that channel.
// The first call for a given channelID across all workers lazily creates
// its backing queues; subsequent calls (from other worker indices) reuse
// them.
func (tr *InProcessTransport[T]) Allocate(workerIndex, channelID int) ([]Sender[T], Receiver[T], error) {
	if workerIndex < 0 || workerIndex >= tr.workers {
		return nil, nil, &rangeError{what: "workerIndex", value: workerIndex}
	}
	tr.mu.Lock()
	qs, ok := tr.channels[channelID]
	if !ok {
		qs = make([]*queue[T], tr.workers)
		for i := range qs {
			qs[i] = newQueue[T]()
		}
		tr.channels[channelID] = qs
	}
	tr.mu.Unlock()

	senders := make([]Sender[T], tr.workers)
	for i, q := range qs {
		senders[i] = &inProcSender[T]{q: q, cloner: tr.cloner}
	}
	return senders, &inProcReceiver[T]{q: qs[workerIndex]}, nil
}

// deliver pushes v directly onto the queue for (channelID, localWorkerIndex),
// lazily allocating that channel's queues if no worker has called Allocate
// for it yet. Used by TCPTransport to hand off a message decoded off the
// wire to the correct local worker's queue, bypassing the Sender/Cloner path
// since the value has already been freshly unmarshaled and is not shared
// with anything else.
func (tr *InProcessTransport[T]) deliver(channelID, localWorkerIndex int, v *T) {
	tr.mu.Lock()
	qs, ok := tr.channels[channelID]
	if !ok {
		qs = make([]*queue[T], tr.workers)
		for i := range qs {
			qs[i] = newQueue[T]()
		}
		tr.channels[channelID] = qs
	}
	q := qs[localWorkerIndex]
	tr.mu.Unlock()
	q.push(v)
}

type inProcSender[T any] struct {
	q      *queue[T]
	cloner Cloner[T]
}

func (s *inProcSender[T]) Send(v *T) error {
	if v == nil {
		return nil
	}
	cloned := s.cloner.Clone(*v)
	s.q.push(&cloned)
	return nil
}

type inProcReceiver[T any] struct {
	q *queue[T]
}

func (r *inProcReceiver[T]) Recv() (*T, bool) {
	return r.q.pop()
}

// Notify exposes the underlying queue's wake channel, for a worker's
// step_or_park to block on new arrivals without polling.
func (r *inProcReceiver[T]) Notify() <-chan struct{} {
	return r.q.Notify()
}

type rangeError struct {
	what  string
	value int
}

func (e *rangeError) Error() string {
	return "transport: " + e.what + " out of range"
}

var (
	_ Transport[int] = (*InProcessTransport[int])(nil)
	_ Sender[int]    = (*inProcSender[int])(nil)
	_ Receiver[int]  = (*inProcReceiver[int])(nil)
)
