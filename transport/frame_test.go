package transport

import (
	"bytes"
	"testing"
)

func TestWriteFrameReadFrameRoundTrip(t *testing.T) {
	cases := [][]byte{
		nil,
		[]byte("x"),
		[]byte("exactly8"),
		bytes.Repeat([]byte("y"), 17),
	}
	for _, payload := range cases {
		var buf bytes.Buffer
		if err := writeFrame(&buf, payload); err != nil {
			t.Fatalf(`unexpected write error: %v`, err)
		}
		if buf.Len()%frameAlignment != 0 {
			t.Fatalf(`expected frame length %d to be a multiple of %d`, buf.Len(), frameAlignment)
		}
		got, err := readFrame(&buf)
		if err != nil {
			t.Fatalf(`unexpected read error: %v`, err)
		}
		if !bytes.Equal(got, payload) {
			t.Fatalf(`expected %q, got %q`, payload, got)
		}
	}
}

func TestWriteFrameMultipleFramesSequentially(t *testing.T) {
	var buf bytes.Buffer
	if err := writeFrame(&buf, []byte("first")); err != nil {
		t.Fatalf(`unexpected error: %v`, err)
	}
	if err := writeFrame(&buf, []byte("second-payload")); err != nil {
		t.Fatalf(`unexpected error: %v`, err)
	}
	first, err := readFrame(&buf)
	if err != nil {
		t.Fatalf(`unexpected error: %v`, err)
	}
	if string(first) != "first" {
		t.Fatalf(`expected "first", got %q`, first)
	}
	second, err := readFrame(&buf)
	if err != nil {
		t.Fatalf(`unexpected error: %v`, err)
	}
	if string(second) != "second-payload" {
		t.Fatalf(`expected "second-payload", got %q`, second)
	}
}
