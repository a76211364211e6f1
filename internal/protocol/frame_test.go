package protocol_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/mhesketh/srag-ml/internal/protocol"
)

func TestWriteThenReadFrame_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte(`{"id":1,"method":"ping"}`)
	if err := protocol.WriteFrame(&buf, payload); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	got, err := protocol.ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("got %q, want %q", got, payload)
	}
}

func TestReadFrame_EmptyReaderIsEOF(t *testing.T) {
	_, err := protocol.ReadFrame(&bytes.Buffer{})
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestReadFrame_ShortPayloadIsEOF(t *testing.T) {
	var buf bytes.Buffer
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], 100)
	buf.Write(lenBuf[:])
	buf.WriteString("short")

	_, err := protocol.ReadFrame(&buf)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF for short payload, got %v", err)
	}
}

func TestReadFrame_OversizedFrameRejected(t *testing.T) {
	var buf bytes.Buffer
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], protocol.MaxFrameSize+1)
	buf.Write(lenBuf[:])

	_, err := protocol.ReadFrame(&buf)
	if !errors.Is(err, protocol.ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestReadFrame_ExactlyMaxSizeAccepted(t *testing.T) {
	var buf bytes.Buffer
	payload := make([]byte, protocol.MaxFrameSize)
	if err := protocol.WriteFrame(&buf, payload); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	got, err := protocol.ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if len(got) != protocol.MaxFrameSize {
		t.Fatalf("got length %d, want %d", len(got), protocol.MaxFrameSize)
	}
}
