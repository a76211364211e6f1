// Package protocol implements the length-prefixed frame codec and the
// shared request/response wire types used by the dispatcher and server.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxFrameSize is the hard cap on a single frame's payload length, in
// bytes. A frame declaring a larger length closes the connection without
// a reply.
const MaxFrameSize = 10 * 1024 * 1024

// ErrFrameTooLarge is returned by ReadFrame when the declared length
// exceeds MaxFrameSize. The caller must close the connection without
// replying.
var ErrFrameTooLarge = errors.New("protocol: frame exceeds maximum size")

// ReadFrame reads one length-prefixed frame from r: a 4-byte big-endian
// length followed by that many bytes of payload. A failure to read even
// the first byte of the length prefix is reported as io.EOF, matching a
// clean peer disconnect. A short read once a length has been declared is
// also reported as io.EOF.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.EOF
		}
		return nil, err
	}

	length := binary.BigEndian.Uint32(lenBuf[:])
	if length > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, err
	}
	return payload, nil
}

// WriteFrame writes payload as one length-prefixed frame: a 4-byte
// big-endian length followed by the bytes, in a single Write call.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("protocol: refusing to write %d-byte frame: %w", len(payload), ErrFrameTooLarge)
	}
	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(payload)))
	copy(buf[4:], payload)
	_, err := w.Write(buf)
	return err
}
