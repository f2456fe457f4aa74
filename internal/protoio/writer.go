package protoio

import (
	"io"
	"math"
)

// Writer writes length-prefixed frames to a stream.
type Writer struct {
	headerBuf [headerSize]byte
	target    io.Writer
}

func NewWriter(target io.Writer) *Writer {
	return &Writer{
		target: target,
	}
}

// WriteFrame writes the header and the data. Header and data are written
// with one call so that a frame is never split across two writes on a
// socket by this package.
func (w *Writer) WriteFrame(data []byte) (int, error) {
	if uint64(len(data)) > math.MaxUint32 {
		return 0, ErrFrameTooLarge
	}

	if err := encodeHeader(&frameHeader{dataSize: uint32(len(data))}, w.headerBuf[:]); err != nil {
		return 0, err
	}

	buf := make([]byte, 0, headerSize+len(data))
	buf = append(buf, w.headerBuf[:]...)
	buf = append(buf, data...)

	return w.target.Write(buf)
}
