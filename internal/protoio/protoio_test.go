package protoio

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadFrames(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewWriter(buf)

	_, err := w.WriteFrame([]byte("hello"))
	require.NoError(t, err)
	_, err = w.WriteFrame(nil)
	require.NoError(t, err)

	// Big-endian length prefix followed by the payload.
	assert.Equal(t, []byte{0, 0, 0, 5, 'h', 'e', 'l', 'l', 'o', 0, 0, 0, 0}, buf.Bytes())

	r := NewReader(buf, 1024)

	frame, err := r.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), frame)

	frame, err = r.ReadFrame()
	require.NoError(t, err)
	assert.Empty(t, frame)

	_, err = r.ReadFrame()
	assert.Equal(t, io.EOF, err)
}

func TestReader_Truncated(t *testing.T) {
	tests := map[string][]byte{
		"partial header": {0, 0},
		"partial body":   {0, 0, 0, 4, 'a', 'b'},
	}

	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NewReader(bytes.NewReader(data), 1024).ReadFrame()
			assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
		})
	}
}

func TestReader_FrameTooLarge(t *testing.T) {
	data := []byte{0, 0, 1, 0}

	_, err := NewReader(bytes.NewReader(data), 255).ReadFrame()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFrameTooLarge))
}
