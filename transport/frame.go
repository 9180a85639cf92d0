package transport

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Bytesable is the serialization contract messages crossing the TCP
// transport implement (spec §6): PT (conventionally *T) marshals itself to
// bytes and unmarshals in place from bytes.
type Bytesable[T any] interface {
	*T
	MarshalBytes() ([]byte, error)
	UnmarshalBytes([]byte) error
}

// frameAlignment is the word boundary spec §6 requires inter-process
// frames to be padded to, so a receiver holding the whole stream in memory
// could read any frame's payload without an unaligned-access penalty.
const frameAlignment = 8

// writeFrame writes a length-prefixed, 8-byte-aligned frame: a uint64
// big-endian payload length, the payload itself, then zero padding out to
// the next 8-byte boundary.
func writeFrame(w io.Writer, payload []byte) error {
	var header [8]byte
	binary.BigEndian.PutUint64(header[:], uint64(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("transport: write frame header: %w", err)
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("transport: write frame payload: %w", err)
		}
	}
	if pad := paddingFor(len(payload)); pad > 0 {
		if _, err := w.Write(make([]byte, pad)); err != nil {
			return fmt.Errorf("transport: write frame padding: %w", err)
		}
	}
	return nil
}

// readFrame reads back one frame written by writeFrame.
func readFrame(r io.Reader) ([]byte, error) {
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("transport: read frame header: %w", err)
	}
	n := binary.BigEndian.Uint64(header[:])
	payload := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, fmt.Errorf("transport: read frame payload: %w", err)
		}
	}
	if pad := paddingFor(int(n)); pad > 0 {
		if _, err := io.ReadFull(r, make([]byte, pad)); err != nil {
			return nil, fmt.Errorf("transport: read frame padding: %w", err)
		}
	}
	return payload, nil
}

func paddingFor(n int) int {
	if rem := n % frameAlignment; rem != 0 {
		return frameAlignment - rem
	}
	return 0
}
