package main

import (
	"encoding/binary"
	"fmt"

	"github.com/joeycumines/timely/broadcast"
	"github.com/joeycumines/timely/order"
	"github.com/joeycumines/timely/progress"
)

// wireEnvelope is this driver's concrete transport.Bytesable codec for
// broadcast.Envelope[order.Nat] — the one timestamp type this demo uses.
// transport.TCPTransport needs a fixed wire representation per
// instantiation, so the conversion lives here at the transport boundary
// rather than inside the broadcast package, which stays generic over T.
type wireEnvelope struct {
	dataflow int32
	entries  []wireEntry
}

type wireEntry struct {
	operator  int32
	port      int32
	source    bool
	timestamp uint64
	delta     int64
}

const wireEntrySize = 4 + 4 + 1 + 8 + 8 // operator, port, source flag, timestamp, delta

func toWireEnvelope(dataflow int, changes *progress.ChangeBatch[progress.Pointstamp[order.Nat]]) wireEnvelope {
	w := wireEnvelope{dataflow: int32(dataflow)}
	for _, e := range changes.Entries() {
		w.entries = append(w.entries, wireEntry{
			operator:  int32(e.Timestamp.Location.Operator),
			port:      int32(e.Timestamp.Location.Port),
			source:    e.Timestamp.Location.Kind == progress.Source,
			timestamp: uint64(e.Timestamp.Timestamp),
			delta:     e.Delta,
		})
	}
	return w
}

func (w wireEnvelope) toEnvelope() broadcast.Envelope[order.Nat] {
	changes := progress.NewChangeBatch[progress.Pointstamp[order.Nat]]()
	for _, e := range w.entries {
		kind := progress.Target
		if e.source {
			kind = progress.Source
		}
		loc := progress.Location{Operator: int(e.operator), Port: int(e.port), Kind: kind}
		changes.Update(progress.Pointstamp[order.Nat]{Location: loc, Timestamp: order.Nat(e.timestamp)}, e.delta)
	}
	return broadcast.Envelope[order.Nat]{Dataflow: int(w.dataflow), Changes: changes}
}

// MarshalBytes encodes a 4-byte dataflow id, a 4-byte entry count, then
// each entry as a fixed wireEntrySize record.
func (w *wireEnvelope) MarshalBytes() ([]byte, error) {
	buf := make([]byte, 8+len(w.entries)*wireEntrySize)
	binary.BigEndian.PutUint32(buf[0:4], uint32(w.dataflow))
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(w.entries)))
	off := 8
	for _, e := range w.entries {
		binary.BigEndian.PutUint32(buf[off:off+4], uint32(e.operator))
		binary.BigEndian.PutUint32(buf[off+4:off+8], uint32(e.port))
		if e.source {
			buf[off+8] = 1
		}
		binary.BigEndian.PutUint64(buf[off+9:off+17], e.timestamp)
		binary.BigEndian.PutUint64(buf[off+17:off+25], uint64(e.delta))
		off += wireEntrySize
	}
	return buf, nil
}

func (w *wireEnvelope) UnmarshalBytes(b []byte) error {
	if len(b) < 8 {
		return fmt.Errorf("wireEnvelope: short header: %d bytes", len(b))
	}
	w.dataflow = int32(binary.BigEndian.Uint32(b[0:4]))
	count := int(binary.BigEndian.Uint32(b[4:8]))
	want := 8 + count*wireEntrySize
	if len(b) != want {
		return fmt.Errorf("wireEnvelope: expected %d bytes for %d entries, got %d", want, count, len(b))
	}
	w.entries = make([]wireEntry, count)
	off := 8
	for i := range w.entries {
		w.entries[i] = wireEntry{
			operator:  int32(binary.BigEndian.Uint32(b[off : off+4])),
			port:      int32(binary.BigEndian.Uint32(b[off+4 : off+8])),
			source:    b[off+8] != 0,
			timestamp: binary.BigEndian.Uint64(b[off+9 : off+17]),
			delta:     int64(binary.BigEndian.Uint64(b[off+17 : off+25])),
		}
		off += wireEntrySize
	}
	return nil
}
