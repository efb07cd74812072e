// Package topology provides the diameter/RTT oracle consulted once per
// flow at connection setup to seed base_rtt.
package topology

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

// Oracle resolves the round-trip propagation plus per-hop serialization
// delay between two hosts, used to seed a new flow's base_rtt before any
// real ACK has been observed.
type Oracle interface {
	TwoPointRTT(ctx context.Context, src, dst string) (time.Duration, error)
}

// Prober is the underlying measurement a Dedup Oracle wraps: a single,
// possibly expensive, round-trip probe between two hosts.
type Prober interface {
	Probe(ctx context.Context, src, dst string) (time.Duration, error)
}

// DedupOracle wraps a Prober with a singleflight.Group so that several
// flows setting up concurrently to the same (src, dst) pair share one
// in-flight probe instead of issuing N redundant ones.
type DedupOracle struct {
	prober Prober
	group  singleflight.Group
}

func NewDedupOracle(p Prober) *DedupOracle {
	return &DedupOracle{prober: p}
}

func (o *DedupOracle) TwoPointRTT(ctx context.Context, src, dst string) (time.Duration, error) {
	key := src + "->" + dst
	v, err, _ := o.group.Do(key, func() (interface{}, error) {
		return o.prober.Probe(ctx, src, dst)
	})
	if err != nil {
		return 0, err
	}
	return v.(time.Duration), nil
}

// DiameterOracle is a static fallback Oracle that always returns a
// configured worst-case network diameter, for deployments where no live
// two-point probe is available and the topology's known worst-case
// diameter seeds base_rtt instead.
type DiameterOracle struct {
	Diameter time.Duration
}

func (o DiameterOracle) TwoPointRTT(ctx context.Context, src, dst string) (time.Duration, error) {
	return o.Diameter, nil
}
