// Package wire defines the messages exchanged by overlay nodes and their
// binary encoding. Every message travels on its own TCP connection as a
// single frame: a 4-byte big-endian length followed by a protobuf-style
// tagged record.
package wire

import (
	"github.com/google/uuid"

	"github.com/maxpoletaev/treenet/topology"
)

// Type is the message type. Unrecognized types still decode successfully so
// that the receiver can log and drop them.
type Type string

const (
	TypeConnect        Type = "connect"
	TypeConnectConfirm Type = "connect_confirm"
	TypeAddBrother     Type = "add_brother"
	TypeCrashReport    Type = "crash_report"
)

// Known returns true for the types the protocol defines.
func (t Type) Known() bool {
	switch t {
	case TypeConnect, TypeConnectConfirm, TypeAddBrother, TypeCrashReport:
		return true
	default:
		return false
	}
}

type PayloadKind uint8

const (
	PayloadNone PayloadKind = iota
	PayloadAddr
	PayloadAddrList
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadNone:
		return "none"
	case PayloadAddr:
		return "addr"
	case PayloadAddrList:
		return "addr_list"
	default:
		return ""
	}
}

// Payload is a tagged union of nothing, a single address or a list of
// addresses. An empty list is distinct from no payload.
type Payload struct {
	Kind PayloadKind
	Addr topology.Addr
	List []topology.Addr
}

func NoPayload() Payload {
	return Payload{Kind: PayloadNone}
}

func AddrPayload(addr topology.Addr) Payload {
	return Payload{Kind: PayloadAddr, Addr: addr}
}

func AddrListPayload(list []topology.Addr) Payload {
	return Payload{Kind: PayloadAddrList, List: list}
}

// Message is the protocol envelope. ID is assigned when the message is
// created and is kept intact when a message is forwarded, which allows
// following one join request across several hops in the logs.
type Message struct {
	ID      string
	Type    Type
	Sender  topology.Addr
	Payload Payload
}

// New creates a message with a fresh random ID.
func New(t Type, sender topology.Addr, payload Payload) *Message {
	return &Message{
		ID:      uuid.NewString(),
		Type:    t,
		Sender:  sender,
		Payload: payload,
	}
}
