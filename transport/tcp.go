package transport

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/joeycumines/timely/telemetry"
	"github.com/joeycumines/timely/timelyerr"
)

// ContextDialer dials addr, honoring ctx. Named and shaped identically to
// the teacher's grpc-proxy/proxy.ContextDialer, since TCPTransport dials
// peer processes the same way the teacher's proxy dials upstreams.
type ContextDialer func(ctx context.Context, addr string) (net.Conn, error)

var defaultDialer net.Dialer

// DialTCP is a ContextDialer over a plain TCP connection.
func DialTCP(ctx context.Context, addr string) (net.Conn, error) {
	if ctx == nil {
		panic(`transport: DialTCP called with nil context`)
	}
	return defaultDialer.DialContext(ctx, "tcp", addr)
}

var _ ContextDialer = DialTCP

// DialWithCancel wraps dialer so a dial in progress is aborted as soon as
// ctx is done, even if the per-call context passed to the returned dialer
// is not itself cancelled.
func DialWithCancel(ctx context.Context, dialer ContextDialer) ContextDialer {
	if ctx == nil {
		panic(`transport: DialWithCancel called with nil context`)
	}
	if dialer == nil {
		panic(`transport: DialWithCancel called with nil dialer`)
	}
	return func(ctx2 context.Context, addr string) (net.Conn, error) {
		if ctx2.Err() != nil {
			return nil, ctx2.Err()
		}
		if ctx.Err() != nil {
			return nil, context.Canceled
		}
		ctx2, cancel := context.WithCancel(ctx2)
		defer cancel()
		defer context.AfterFunc(ctx, cancel)()
		return dialer(ctx2, addr)
	}
}

// DialWithTimeout wraps dialer with a fixed per-dial timeout.
func DialWithTimeout(timeout time.Duration, dialer ContextDialer) ContextDialer {
	return func(ctx context.Context, addr string) (net.Conn, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return dialer(ctx, addr)
	}
}

// TCPTransport is the multi-process Transport implementation (spec §6):
// workers local to this process are wired through an embedded
// InProcessTransport, and workers in a remote process share one persistent
// framed TCP connection per remote process, dialed via a ContextDialer in
// the style above. Global worker indices are partitioned uniformly across
// processes: workerIndex = processIndex*workersPerProcess + local index,
// matching config.Config's Workers/Processes/ProcessIndex fields.
type TCPTransport[T any, PT Bytesable[T]] struct {
	workersPerProcess int
	processIndex      int
	hosts             []string // host:port per process, len == process count
	local             *InProcessTransport[T]
	dial              ContextDialer
	logger            telemetry.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    map[int]*tcpConn[T, PT] // remote process index -> connection
}

// NewTCPTransport constructs a transport for one process among len(hosts)
// peers, listening on listenAddr and dialing peers as needed. cloner
// guards locally-routed messages the same way InProcessTransport does.
func NewTCPTransport[T any, PT Bytesable[T]](workersPerProcess, processIndex int, hosts []string, listenAddr string, cloner Cloner[T], opts ...TCPOption[T, PT]) (*TCPTransport[T, PT], error) {
	if workersPerProcess <= 0 {
		panic(`transport: workersPerProcess must be positive`)
	}
	if processIndex < 0 || processIndex >= len(hosts) {
		panic(`transport: processIndex out of range of hosts`)
	}
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, &timelyerr.TransportFailureError{Cause: err}
	}
	tr := &TCPTransport[T, PT]{
		workersPerProcess: workersPerProcess,
		processIndex:      processIndex,
		hosts:             hosts,
		local:             NewInProcessTransport[T](workersPerProcess, cloner),
		dial:              DialWithTimeout(5*time.Second, DialTCP),
		logger:            telemetry.Default(),
		listener:          ln,
		conns:             make(map[int]*tcpConn[T, PT]),
	}
	for _, o := range opts {
		o(tr)
	}
	go tr.acceptLoop()
	return tr, nil
}

// TCPOption configures a TCPTransport.
type TCPOption[T any, PT Bytesable[T]] func(*TCPTransport[T, PT])

// WithDialer overrides the default 5s-timeout TCP dialer.
func WithDialer[T any, PT Bytesable[T]](dial ContextDialer) TCPOption[T, PT] {
	return func(tr *TCPTransport[T, PT]) {
		if dial != nil {
			tr.dial = dial
		}
	}
}

// WithTCPLogger attaches a Logger to a TCPTransport.
func WithTCPLogger[T any, PT Bytesable[T]](l telemetry.Logger) TCPOption[T, PT] {
	return func(tr *TCPTransport[T, PT]) {
		if l != nil {
			tr.logger = l
		}
	}
}

func (tr *TCPTransport[T, PT]) processOf(globalWorker int) int {
	return globalWorker / tr.workersPerProcess
}

func (tr *TCPTransport[T, PT]) localIndexOf(globalWorker int) int {
	return globalWorker % tr.workersPerProcess
}

// Allocate mirrors InProcessTransport.Allocate, but the returned Sender
// for any worker hosted in a remote process writes across that process's
// persistent TCP connection instead of an in-process queue.
func (tr *TCPTransport[T, PT]) Allocate(workerIndex, channelID int) ([]Sender[T], Receiver[T], error) {
	localIdx := tr.localIndexOf(workerIndex)
	if tr.processOf(workerIndex) != tr.processIndex {
		return nil, nil, &rangeError{what: "workerIndex (not local to this process)", value: workerIndex}
	}
	localSenders, receiver, err := tr.local.Allocate(localIdx, channelID)
	if err != nil {
		return nil, nil, err
	}
	totalWorkers := len(tr.hosts) * tr.workersPerProcess
	senders := make([]Sender[T], totalWorkers)
	for g := 0; g < totalWorkers; g++ {
		if tr.processOf(g) == tr.processIndex {
			senders[g] = localSenders[tr.localIndexOf(g)]
			continue
		}
		conn, cerr := tr.connectionTo(tr.processOf(g))
		if cerr != nil {
			return nil, nil, cerr
		}
		senders[g] = &tcpSender[T, PT]{conn: conn, channelID: channelID, targetLocal: tr.localIndexOf(g)}
	}
	return senders, receiver, nil
}

// connectionTo returns the persistent connection to the given remote
// process, dialing it on first use.
func (tr *TCPTransport[T, PT]) connectionTo(processIndex int) (*tcpConn[T, PT], error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if c, ok := tr.conns[processIndex]; ok {
		return c, nil
	}
	nc, err := tr.dial(context.Background(), tr.hosts[processIndex])
	if err != nil {
		return nil, &timelyerr.TransportFailureError{Channel: uint64(processIndex), Cause: err}
	}
	c := newTCPConn[T, PT](nc, tr.local, tr.logger)
	tr.conns[processIndex] = c
	go c.readLoop()
	return c, nil
}

func (tr *TCPTransport[T, PT]) acceptLoop() {
	for {
		nc, err := tr.listener.Accept()
		if err != nil {
			return
		}
		c := newTCPConn[T, PT](nc, tr.local, tr.logger)
		go c.readLoop()
	}
}

// Close stops accepting new peer connections. Already-established
// connections are left running.
func (tr *TCPTransport[T, PT]) Close() error {
	return tr.listener.Close()
}
