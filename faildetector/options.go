package faildetector

import "time"

type Option func(*Detector)

func WithProbeInterval(t time.Duration) Option {
	return func(d *Detector) {
		d.probeInterval = t
	}
}

func WithProbeTimeout(t time.Duration) Option {
	return func(d *Detector) {
		d.probeTimeout = t
	}
}

// WithProbeFunc replaces the TCP probe, mostly useful in tests.
func WithProbeFunc(f ProbeFunc) Option {
	return func(d *Detector) {
		d.probe = f
	}
}
