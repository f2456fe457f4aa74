package wire

import (
	"errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/maxpoletaev/treenet/internal/protoio"
	"github.com/maxpoletaev/treenet/topology"
)

// MaxFrameSize is the largest accepted message. A sibling list of a few
// dozen addresses fits easily.
const MaxFrameSize = 64 << 10

var (
	ErrMalformed      = errors.New("malformed message")
	ErrUnknownType    = errors.New("unknown message type")
	ErrFrameTooLarge  = protoio.ErrFrameTooLarge
	errMissingSender  = fmt.Errorf("%w: missing sender", ErrMalformed)
	errMissingType    = fmt.Errorf("%w: missing type", ErrMalformed)
	errPortOutOfRange = fmt.Errorf("%w: port out of range", ErrMalformed)
)

const (
	fieldID       protowire.Number = 1
	fieldType     protowire.Number = 2
	fieldSender   protowire.Number = 3
	fieldAddr     protowire.Number = 4
	fieldAddrList protowire.Number = 5
)

const (
	addrFieldHost protowire.Number = 1
	addrFieldPort protowire.Number = 2
	listFieldAddr protowire.Number = 1
)

// Marshal encodes the message as a tagged record.
func Marshal(msg *Message) []byte {
	var b []byte

	if msg.ID != "" {
		b = protowire.AppendTag(b, fieldID, protowire.BytesType)
		b = protowire.AppendString(b, msg.ID)
	}

	b = protowire.AppendTag(b, fieldType, protowire.BytesType)
	b = protowire.AppendString(b, string(msg.Type))

	b = protowire.AppendTag(b, fieldSender, protowire.BytesType)
	b = protowire.AppendBytes(b, appendAddr(nil, msg.Sender))

	switch msg.Payload.Kind {
	case PayloadAddr:
		b = protowire.AppendTag(b, fieldAddr, protowire.BytesType)
		b = protowire.AppendBytes(b, appendAddr(nil, msg.Payload.Addr))
	case PayloadAddrList:
		var list []byte

		for _, addr := range msg.Payload.List {
			list = protowire.AppendTag(list, listFieldAddr, protowire.BytesType)
			list = protowire.AppendBytes(list, appendAddr(nil, addr))
		}

		b = protowire.AppendTag(b, fieldAddrList, protowire.BytesType)
		b = protowire.AppendBytes(b, list)
	}

	return b
}

func appendAddr(b []byte, addr topology.Addr) []byte {
	b = protowire.AppendTag(b, addrFieldHost, protowire.BytesType)
	b = protowire.AppendString(b, addr.Host)
	b = protowire.AppendTag(b, addrFieldPort, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(addr.Port))

	return b
}

// Unmarshal decodes a tagged record into msg. Unknown fields are skipped.
// The type and the sender are required.
func Unmarshal(b []byte, msg *Message) error {
	var hasType, hasSender bool

	*msg = Message{}

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}

		b = b[n:]

		switch {
		case num == fieldID && typ == protowire.BytesType:
			var v string
			v, n = protowire.ConsumeString(b)
			msg.ID = v
		case num == fieldType && typ == protowire.BytesType:
			var v string
			v, n = protowire.ConsumeString(b)
			msg.Type = Type(v)
			hasType = true
		case num == fieldSender && typ == protowire.BytesType:
			n, msg.Sender = consumeAddrField(b)
			hasSender = true
		case num == fieldAddr && typ == protowire.BytesType:
			n, msg.Payload.Addr = consumeAddrField(b)
			msg.Payload.Kind = PayloadAddr
			msg.Payload.List = nil
		case num == fieldAddrList && typ == protowire.BytesType:
			var v []byte
			if v, n = protowire.ConsumeBytes(b); n >= 0 {
				list, err := unmarshalAddrList(v)
				if err != nil {
					return err
				}

				msg.Payload = Payload{Kind: PayloadAddrList, List: list}
			}
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}

		if n < 0 {
			return fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
		}

		b = b[n:]
	}

	if !hasType || msg.Type == "" {
		return errMissingType
	}

	if !hasSender || msg.Sender.IsZero() {
		return errMissingSender
	}

	if msg.Payload.Kind == PayloadAddr && msg.Payload.Addr.IsZero() {
		return fmt.Errorf("%w: empty address payload", ErrMalformed)
	}

	return nil
}

// consumeAddrField returns the number of bytes consumed, negative on error.
// A port outside of the uint16 range is reported as a parse error.
func consumeAddrField(b []byte) (int, topology.Addr) {
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return n, topology.Addr{}
	}

	addr, err := unmarshalAddr(v)
	if err != nil {
		return -1, topology.Addr{}
	}

	return n, addr
}

func unmarshalAddr(b []byte) (topology.Addr, error) {
	var addr topology.Addr

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return addr, protowire.ParseError(n)
		}

		b = b[n:]

		switch {
		case num == addrFieldHost && typ == protowire.BytesType:
			addr.Host, n = protowire.ConsumeString(b)
		case num == addrFieldPort && typ == protowire.VarintType:
			var port uint64
			if port, n = protowire.ConsumeVarint(b); n >= 0 && port > 0xFFFF {
				return addr, errPortOutOfRange
			}

			addr.Port = uint16(port)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}

		if n < 0 {
			return addr, protowire.ParseError(n)
		}

		b = b[n:]
	}

	return addr, nil
}

func unmarshalAddrList(b []byte) ([]topology.Addr, error) {
	list := make([]topology.Addr, 0)

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}

		b = b[n:]

		if num == listFieldAddr && typ == protowire.BytesType {
			var addr topology.Addr

			if n, addr = consumeAddrField(b); n >= 0 {
				if addr.IsZero() {
					return nil, fmt.Errorf("%w: empty address in list", ErrMalformed)
				}

				list = append(list, addr)
			}
		} else {
			n = protowire.ConsumeFieldValue(num, typ, b)
		}

		if n < 0 {
			return nil, fmt.Errorf("%w: address list", ErrMalformed)
		}

		b = b[n:]
	}

	return list, nil
}

// Write encodes the message and writes it as a single frame.
func Write(w io.Writer, msg *Message) error {
	data := Marshal(msg)
	if len(data) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(data))
	}

	if _, err := protoio.NewWriter(w).WriteFrame(data); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}

	return nil
}

// Read reads one frame and decodes it. If the peer closed the connection
// without sending anything, io.EOF is returned as is.
func Read(r io.Reader) (*Message, error) {
	frame, err := protoio.NewReader(r, MaxFrameSize).ReadFrame()
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}

		return nil, fmt.Errorf("failed to read frame: %w", err)
	}

	msg := &Message{}
	if err := Unmarshal(frame, msg); err != nil {
		return nil, err
	}

	return msg, nil
}
