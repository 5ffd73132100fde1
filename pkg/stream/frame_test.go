package stream

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, []byte("hello jpeg")))

	got, err := readFrame(&buf, DefaultMaxFrameSize)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello jpeg"), got)
}

func TestReadFrameRejectsOversized(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, make([]byte, 100)))

	_, err := readFrame(&buf, 10)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestReadFrameRejectsEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, nil))

	_, err := readFrame(&buf, DefaultMaxFrameSize)
	assert.ErrorIs(t, err, ErrFrameEmpty)
}

func TestMJPEGPartShape(t *testing.T) {
	part := mjpegPart([]byte("jpegdata"))
	assert.True(t, bytes.HasPrefix(part, []byte("--frame\r\nContent-Type:image/jpeg\r\n\r\n")))
	assert.True(t, bytes.HasSuffix(part, []byte("jpegdata\r\n")))
}
