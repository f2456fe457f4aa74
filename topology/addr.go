package topology

import (
	"fmt"
	"net"
	"strconv"
)

// Addr identifies a node in the overlay. Two addresses are equal when both
// host and port match, so Addr can be used as a map key.
type Addr struct {
	Host string
	Port uint16
}

// ParseAddr parses a "host:port" string.
func ParseAddr(s string) (Addr, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Addr{}, fmt.Errorf("invalid address %q: %w", s, err)
	}

	if host == "" {
		return Addr{}, fmt.Errorf("invalid address %q: empty host", s)
	}

	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Addr{}, fmt.Errorf("invalid port in %q: %w", s, err)
	}

	return Addr{Host: host, Port: uint16(port)}, nil
}

func (a Addr) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(int(a.Port)))
}

// IsZero reports whether the address is unset.
func (a Addr) IsZero() bool {
	return a == Addr{}
}
