package protoio

import (
	"fmt"
	"io"
)

// Reader reads length-prefixed frames from a stream.
type Reader struct {
	headerBuf [headerSize]byte
	source    io.Reader
	maxSize   int
}

func NewReader(source io.Reader, maxSize int) *Reader {
	return &Reader{
		source:  source,
		maxSize: maxSize,
	}
}

// ReadFrame reads the next frame. It returns io.EOF only if the stream ended
// cleanly before the first header byte; a stream cut in the middle of a
// frame yields io.ErrUnexpectedEOF.
func (r *Reader) ReadFrame() ([]byte, error) {
	var header frameHeader

	if _, err := io.ReadFull(r.source, r.headerBuf[:]); err != nil {
		return nil, err
	}

	if err := decodeHeader(&header, r.headerBuf[:]); err != nil {
		return nil, fmt.Errorf("failed to decode header: %w", err)
	}

	if r.maxSize > 0 && int64(header.dataSize) > int64(r.maxSize) {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, header.dataSize, r.maxSize)
	}

	buf := make([]byte, header.dataSize)

	if _, err := io.ReadFull(r.source, buf); err != nil {
		if err == io.EOF {
			return nil, io.ErrUnexpectedEOF
		}

		return nil, err
	}

	return buf, nil
}
