package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/joeycumines/timely/telemetry"
)

// tcpConn is one persistent, framed connection to a peer process. All
// channels destined for that process multiplex over it: every frame carries
// a small envelope ahead of the marshaled payload identifying which channel
// and which local worker index (within the remote process) it is for.
type tcpConn[T any, PT Bytesable[T]] struct {
	nc     net.Conn
	local  *InProcessTransport[T]
	logger telemetry.Logger

	wmu sync.Mutex
}

func newTCPConn[T any, PT Bytesable[T]](nc net.Conn, local *InProcessTransport[T], logger telemetry.Logger) *tcpConn[T, PT] {
	return &tcpConn[T, PT]{nc: nc, local: local, logger: logger}
}

// envelopeHeader is the fixed-size prefix written ahead of every marshaled
// payload: the channel id and the target's local worker index, each a
// big-endian uint64.
const envelopeHeaderSize = 16

func encodeEnvelopeHeader(channelID, targetLocal int) []byte {
	var hdr [envelopeHeaderSize]byte
	binary.BigEndian.PutUint64(hdr[:8], uint64(channelID))
	binary.BigEndian.PutUint64(hdr[8:], uint64(targetLocal))
	return hdr[:]
}

func decodeEnvelopeHeader(b []byte) (channelID, targetLocal int) {
	return int(binary.BigEndian.Uint64(b[:8])), int(binary.BigEndian.Uint64(b[8:]))
}

// readLoop decodes frames off the wire until the connection closes, handing
// each decoded value to the local transport for the channel and worker index
// named in its envelope.
func (c *tcpConn[T, PT]) readLoop() {
	for {
		frame, err := readFrame(c.nc)
		if err != nil {
			if c.logger != nil && !errors.Is(err, io.EOF) {
				c.logger.Err().Err(err).Log("transport: tcp connection read failed, closing")
			}
			_ = c.nc.Close()
			return
		}
		if len(frame) < envelopeHeaderSize {
			if c.logger != nil {
				c.logger.Err().Log("transport: short frame, dropping connection")
			}
			_ = c.nc.Close()
			return
		}
		channelID, targetLocal := decodeEnvelopeHeader(frame[:envelopeHeaderSize])
		var v T
		pt := PT(&v)
		if err := pt.UnmarshalBytes(frame[envelopeHeaderSize:]); err != nil {
			if c.logger != nil {
				c.logger.Err().Err(err).Log("transport: failed to unmarshal payload, dropping message")
			}
			continue
		}
		c.local.deliver(channelID, targetLocal, &v)
	}
}

// send writes one frame: the envelope header followed by the marshaled
// payload. Guarded by wmu since multiple tcpSenders share one tcpConn.
func (c *tcpConn[T, PT]) send(channelID, targetLocal int, v *T) error {
	pt := PT(v)
	payload, err := pt.MarshalBytes()
	if err != nil {
		return fmt.Errorf("transport: marshal payload: %w", err)
	}
	frame := make([]byte, 0, envelopeHeaderSize+len(payload))
	frame = append(frame, encodeEnvelopeHeader(channelID, targetLocal)...)
	frame = append(frame, payload...)
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return writeFrame(c.nc, frame)
}

// tcpSender is the Sender for one (channel, remote worker) pair, writing
// through the shared tcpConn to that worker's process.
type tcpSender[T any, PT Bytesable[T]] struct {
	conn        *tcpConn[T, PT]
	channelID   int
	targetLocal int
}

func (s *tcpSender[T, PT]) Send(v *T) error {
	if v == nil {
		return nil
	}
	return s.conn.send(s.channelID, s.targetLocal, v)
}
