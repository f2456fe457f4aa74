package protoio

import (
	"encoding/binary"
	"errors"
)

const headerSize = 4

var (
	ErrFrameTooLarge     = errors.New("frame too large")
	errInvalidHeaderSize = errors.New("invalid header size")
)

type frameHeader struct {
	dataSize uint32
}

func encodeHeader(h *frameHeader, b []byte) error {
	if len(b) < headerSize {
		return errInvalidHeaderSize
	}

	binary.BigEndian.PutUint32(b[0:4], h.dataSize)

	return nil
}

func decodeHeader(h *frameHeader, b []byte) error {
	if len(b) < headerSize {
		return errInvalidHeaderSize
	}

	h.dataSize = binary.BigEndian.Uint32(b[0:4])

	return nil
}
