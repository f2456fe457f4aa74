package main

import (
	"time"

	"github.com/jessevdk/go-flags"
)

type options struct {
	Host          string `long:"host" description:"host name advertised to other nodes" env:"HOST" default:"localhost"`
	Master        string `long:"master" description:"address of the master node" env:"MASTER" default:"localhost:7777"`
	Fanout        int    `long:"fanout" description:"max number of children per node" env:"FANOUT" default:"5"`
	ProbeInterval int    `long:"probe-interval" description:"parent liveness probe interval (ms)" env:"PROBE_INTERVAL" default:"10000"`
	ProbeTimeout  int    `long:"probe-timeout" description:"parent liveness probe timeout (ms)" env:"PROBE_TIMEOUT" default:"2000"`
	AdminAddr     string `long:"admin-addr" description:"address to bind the grpc health server" env:"ADMIN_ADDR"`
	MetricsAddr   string `long:"metrics-addr" description:"address to bind the prometheus metrics server" env:"METRICS_ADDR"`
	Verbose       bool   `long:"verbose" description:"verbose mode" env:"VERBOSE"`

	Args struct {
		Port uint16 `positional-arg-name:"PORT" description:"port to listen on"`
	} `positional-args:"yes" required:"yes"`
}

func (o *options) probeInterval() time.Duration {
	return time.Duration(o.ProbeInterval) * time.Millisecond
}

func (o *options) probeTimeout() time.Duration {
	return time.Duration(o.ProbeTimeout) * time.Millisecond
}

func parseOptions(args []string) (*options, error) {
	opts := &options{}

	p := flags.NewParser(opts, flags.Default)
	p.EnvNamespace = "TREENET"

	if _, err := p.ParseArgs(args); err != nil {
		return nil, err
	}

	return opts, nil
}
