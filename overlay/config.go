package overlay

import (
	"errors"
	"fmt"
	"time"

	kitlog "github.com/go-kit/log"

	"github.com/maxpoletaev/treenet/topology"
)

// DefaultMaster is the well-known address every node joins through.
var DefaultMaster = topology.Addr{Host: "localhost", Port: 7777}

type Config struct {
	Self             topology.Addr
	Master           topology.Addr
	Fanout           int
	Logger           kitlog.Logger
	Sender           Sender
	Observer         Observer
	DialTimeout      time.Duration
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration
	ProbeInterval    time.Duration
	ProbeTimeout     time.Duration
	AdmissionTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Master:           DefaultMaster,
		Fanout:           5,
		Logger:           kitlog.NewNopLogger(),
		DialTimeout:      2 * time.Second,
		WriteTimeout:     5 * time.Second,
		ReadTimeout:      5 * time.Second,
		ProbeInterval:    10 * time.Second,
		ProbeTimeout:     2 * time.Second,
		AdmissionTimeout: 30 * time.Second,
	}
}

func (c Config) Validate() error {
	if c.Self.IsZero() || c.Self.Port == 0 {
		return errors.New("self address is not set")
	}

	if c.Master.IsZero() || c.Master.Port == 0 {
		return errors.New("master address is not set")
	}

	if c.Fanout < 1 {
		return fmt.Errorf("fanout must be positive, got %d", c.Fanout)
	}

	if c.ProbeInterval <= 0 {
		return fmt.Errorf("probe interval must be positive, got %s", c.ProbeInterval)
	}

	if c.ProbeTimeout <= 0 {
		return fmt.Errorf("probe timeout must be positive, got %s", c.ProbeTimeout)
	}

	return nil
}
