package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/joeycumines/timely/broadcast"
	"github.com/joeycumines/timely/feedback"
	"github.com/joeycumines/timely/order"
	"github.com/joeycumines/timely/probe"
	"github.com/joeycumines/timely/progress"
	"github.com/joeycumines/timely/reachability"
	"github.com/joeycumines/timely/telemetry"
	"github.com/joeycumines/timely/worker"

	"github.com/joeycumines/timely/config"
	"github.com/joeycumines/timely/input"
	"github.com/joeycumines/timely/operatorcore"
	"github.com/joeycumines/timely/transport"
)

// broadcastChannelID is the transport channel every worker's progress
// broadcast uses; the demo hosts exactly one dataflow kind per worker, so
// one channel id suffices.
const broadcastChannelID = 0

// stepParkTimeout bounds how long a worker parks between activations while
// waiting for its frontier to drain, so a stalled peer still lets Execute's
// ctx cancellation be observed promptly.
const stepParkTimeout = 50 * time.Millisecond

// runWorkers builds and drives cfg.Workers independent single-operator
// dataflows (one per worker thread), wiring each to the progress-broadcast
// layer over whichever transport the process topology calls for, and runs
// them all to completion (spec §6).
func runWorkers(ctx context.Context, cfg *config.Config, logger telemetry.Logger) error {
	if cfg.Processes > 1 {
		return runDistributed(ctx, cfg, logger)
	}
	return runLocal(ctx, cfg, logger)
}

// runLocal drives every worker thread's broadcast traffic over a single
// shared InProcessTransport, with no TCP connections at all.
func runLocal(ctx context.Context, cfg *config.Config, logger telemetry.Logger) error {
	identity := transport.CloneFunc[broadcast.Envelope[order.Nat]](func(v broadcast.Envelope[order.Nat]) broadcast.Envelope[order.Nat] { return v })
	local := transport.NewInProcessTransport[broadcast.Envelope[order.Nat]](cfg.Workers, identity)

	fns := make([]func(context.Context) error, cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		i := i
		fns[i] = func(ctx context.Context) error {
			senders, receiver, err := local.Allocate(i, broadcastChannelID)
			if err != nil {
				return fmt.Errorf("timely: worker %d: failed to allocate broadcast channel: %w", i, err)
			}
			peers := make([]broadcast.Peer[order.Nat], 0, len(senders)-1)
			for j, s := range senders {
				if j == i {
					continue
				}
				peers = append(peers, localPeer{sender: s})
			}
			notifier, _ := receiver.(interface{ Notify() <-chan struct{} })
			recv := func() (broadcast.Envelope[order.Nat], bool) {
				v, ok := receiver.Recv()
				if !ok {
					return broadcast.Envelope[order.Nat]{}, false
				}
				return *v, true
			}
			return runOneWorker(ctx, i, cfg, logger, peers, recv, notifier)
		}
	}
	return worker.Execute(ctx, fns...)
}

// runDistributed drives every local worker thread's broadcast traffic over
// a TCPTransport, which also routes same-process peers through its
// embedded InProcessTransport.
func runDistributed(ctx context.Context, cfg *config.Config, logger telemetry.Logger) error {
	cloner := transport.CloneFunc[wireEnvelope](func(v wireEnvelope) wireEnvelope { return v })
	tr, err := transport.NewTCPTransport[wireEnvelope, *wireEnvelope](cfg.Workers, cfg.ProcessIndex, cfg.Hosts, cfg.Hosts[cfg.ProcessIndex], cloner,
		transport.WithTCPLogger[wireEnvelope, *wireEnvelope](logger),
		transport.WithDialer[wireEnvelope, *wireEnvelope](dialWithRetry),
	)
	if err != nil {
		return fmt.Errorf("timely: failed to start transport: %w", err)
	}
	defer tr.Close()

	fns := make([]func(context.Context) error, cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		i := i
		global := cfg.ProcessIndex*cfg.Workers + i
		fns[i] = func(ctx context.Context) error {
			senders, receiver, err := tr.Allocate(global, broadcastChannelID)
			if err != nil {
				return fmt.Errorf("timely: worker %d: failed to allocate broadcast channel: %w", global, err)
			}
			peers := make([]broadcast.Peer[order.Nat], 0, len(senders)-1)
			for j, s := range senders {
				if j == global {
					continue
				}
				peers = append(peers, remotePeer{sender: s})
			}
			notifier, _ := receiver.(interface{ Notify() <-chan struct{} })
			recv := func() (broadcast.Envelope[order.Nat], bool) {
				w, ok := receiver.Recv()
				if !ok {
					return broadcast.Envelope[order.Nat]{}, false
				}
				return w.toEnvelope(), true
			}
			return runOneWorker(ctx, global, cfg, logger, peers, recv, notifier)
		}
	}
	return worker.Execute(ctx, fns...)
}

// dialWithRetry tolerates peer processes in a cooperating run that have not
// yet bound their listener, since a hostfile-launched cluster starts every
// process at roughly, not exactly, the same time.
func dialWithRetry(ctx context.Context, addr string) (net.Conn, error) {
	const attempts = 20
	var lastErr error
	for i := 0; i < attempts; i++ {
		conn, err := transport.DialTCP(ctx, addr)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	return nil, lastErr
}

// localPeer adapts an in-process transport.Sender into a broadcast.Peer.
type localPeer struct {
	sender transport.Sender[broadcast.Envelope[order.Nat]]
}

func (p localPeer) Send(env broadcast.Envelope[order.Nat]) error {
	return p.sender.Send(&env)
}

// remotePeer adapts a wireEnvelope-typed transport.Sender (local or TCP)
// into a broadcast.Peer, converting at the transport boundary.
type remotePeer struct {
	sender transport.Sender[wireEnvelope]
}

func (p remotePeer) Send(env broadcast.Envelope[order.Nat]) error {
	w := toWireEnvelope(env.Dataflow, env.Changes)
	return p.sender.Send(&w)
}

// runOneWorker builds a single Input -> Feedback demo dataflow, drives its
// progress through one round, and forwards every resulting change-batch to
// peers over the broadcast channel built from peers/recv/notifier.
//
// The dataflow is deliberately minimal (spec §8 E2's style, with a single
// looped Feedback operator standing in for any single-step pipeline): one
// message flows from a virtual input location, through the feedback
// operator's single input/output, and the worker runs until that
// operator's target frontier has drained.
func runOneWorker(
	ctx context.Context,
	index int,
	cfg *config.Config,
	logger telemetry.Logger,
	peers []broadcast.Peer[order.Nat],
	recv func() (broadcast.Envelope[order.Nat], bool),
	notifier interface{ Notify() <-chan struct{} },
) error {
	builder := reachability.NewBuilder[order.NatSummary, order.Nat](order.Identity, reachability.WithLogger(logger))
	fb := feedback.New[order.NatSummary, order.Nat](0, order.NatSummary{Delta: 1}, feedback.WithLogger(logger))
	builder.AddOperator(fb.Summary())

	inputLoc := progress.Location{Operator: -1, Port: 0, Kind: progress.Source}
	targetLoc := progress.Location{Operator: 0, Port: 0, Kind: progress.Target}
	builder.Connect(inputLoc, targetLoc)

	tr, err := builder.Compile()
	if err != nil {
		return fmt.Errorf("timely: worker %d: failed to compile dataflow: %w", index, err)
	}

	var channel *broadcast.Channel[order.Nat]
	onChanges := func(dataflow int, changes []reachability.LocationChange[order.Nat]) {
		batch := toPointstampBatch(changes)
		if err := channel.Publish(dataflow, batch); err != nil && logger != nil {
			logger.Err().Err(err).Int("worker", index).Log("timely: failed to publish progress")
		}
	}

	w := worker.New[order.NatSummary, order.Nat](cfg,
		worker.WithLogger[order.NatSummary, order.Nat](logger),
		worker.WithChangeObserver[order.NatSummary, order.Nat](onChanges),
	)
	dataflow := w.AddDataflow([]operatorcore.Operator[order.NatSummary, order.Nat]{fb}, tr)

	channel = broadcast.New[order.Nat](broadcast.DemandDriven, func(int, *progress.ChangeBatch[progress.Pointstamp[order.Nat]]) {}, peers, broadcast.WithLogger[order.Nat](logger))
	defer channel.Close()

	stop := make(chan struct{})
	defer close(stop)
	go drainPeerTraffic(index, logger, recv, notifier, stop)

	in := input.New[order.Nat](inputLoc, tr, order.MinNat, input.WithLogger(logger))
	if err := in.Send(); err != nil {
		return fmt.Errorf("timely: worker %d: input send failed: %w", index, err)
	}
	in.Close()
	w.Deliver(dataflow, 0, 0, order.MinNat, 1)

	pr := probe.New[order.NatSummary, order.Nat](tr, targetLoc)
	for pr.LessThan(order.Nat(1)) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.StepOrPark(stepParkTimeout)
	}
	if err := channel.Flush(); err != nil && logger != nil {
		logger.Err().Err(err).Int("worker", index).Log("timely: failed to flush final progress")
	}

	if err := w.Failed(dataflow); err != nil {
		return fmt.Errorf("timely: worker %d: dataflow aborted: %w", index, err)
	}
	if logger != nil {
		logger.Info().Int("worker", index).Log("timely: worker drained its dataflow")
	}
	return nil
}

// toPointstampBatch flattens a Tracker.Update result back into the single
// ChangeBatch[Pointstamp[T]] shape broadcast.Channel.Publish expects.
func toPointstampBatch(changes []reachability.LocationChange[order.Nat]) *progress.ChangeBatch[progress.Pointstamp[order.Nat]] {
	batch := progress.NewChangeBatch[progress.Pointstamp[order.Nat]]()
	for _, lc := range changes {
		for _, e := range lc.Changes.Entries() {
			batch.Update(progress.Pointstamp[order.Nat]{Location: lc.Location, Timestamp: e.Timestamp}, e.Delta)
		}
	}
	return batch
}

// drainPeerTraffic logs every envelope peers publish to this worker. The
// demo's dataflows are entirely independent per worker (no shared tracker
// across workers), so received progress is observed, not merged.
func drainPeerTraffic(index int, logger telemetry.Logger, recv func() (broadcast.Envelope[order.Nat], bool), notifier interface{ Notify() <-chan struct{} }, stop <-chan struct{}) {
	for {
		for {
			env, ok := recv()
			if !ok {
				break
			}
			if logger != nil {
				logger.Debug().Int("worker", index).Int("dataflow", env.Dataflow).Log("timely: received peer progress")
			}
		}
		var wake <-chan struct{}
		if notifier != nil {
			wake = notifier.Notify()
		} else {
			wake = time.After(stepParkTimeout)
		}
		select {
		case <-stop:
			return
		case <-wake:
		}
	}
}
