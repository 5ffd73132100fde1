package stream

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// LengthPrefixSize is the size of the frame length prefix, in bytes. The
// upstream wire format uses an 8-byte little-endian prefix.
const LengthPrefixSize = 8

// DefaultMaxFrameSize bounds a single frame (16 MiB is generous for a
// single JPEG capture).
const DefaultMaxFrameSize = 16 << 20

var (
	// ErrFrameEmpty indicates a zero-length frame.
	ErrFrameEmpty = errors.New("frame is empty")

	// ErrFrameTooLarge indicates the frame exceeds the configured maximum.
	ErrFrameTooLarge = errors.New("frame too large")
)

// readFrame reads one length-prefixed frame from r. Partial reads are
// accumulated by io.ReadFull before the caller ever sees the payload, so a
// subscriber never observes a torn frame.
func readFrame(r io.Reader, maxFrameSize uint64) ([]byte, error) {
	var lengthBuf [LengthPrefixSize]byte
	if _, err := io.ReadFull(r, lengthBuf[:]); err != nil {
		return nil, err
	}

	length := binary.LittleEndian.Uint64(lengthBuf[:])
	if length == 0 {
		return nil, ErrFrameEmpty
	}
	if length > maxFrameSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, length, maxFrameSize)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// writeFrame writes one length-prefixed frame to w. Used only by tests to
// fake an upstream device.
func writeFrame(w io.Writer, payload []byte) error {
	var lengthBuf [LengthPrefixSize]byte
	binary.LittleEndian.PutUint64(lengthBuf[:], uint64(len(payload)))
	if _, err := w.Write(lengthBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// mjpegPart wraps a JPEG payload in a multipart/x-mixed-replace part.
func mjpegPart(jpeg []byte) []byte {
	header := "--frame\r\nContent-Type:image/jpeg\r\n\r\n"
	out := make([]byte, 0, len(header)+len(jpeg)+2)
	out = append(out, header...)
	out = append(out, jpeg...)
	out = append(out, '\r', '\n')
	return out
}
