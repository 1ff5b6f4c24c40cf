// Package speedtest ranks seed peers by TCP connect latency.
package speedtest

import (
	"cmp"
	"context"
	"fmt"
	"net"
	"net/netip"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"hl_bootstrap/internal/dataType"
)

const (
	// GossipPort is the port hl-node peers accept gossip connections on.
	GossipPort = 4001
	// MaxInFlight bounds the number of concurrent probes.
	MaxInFlight = 64
)

// Dialer is satisfied by *net.Dialer.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Measurement is the outcome of one probe. Latency is only meaningful when
// Err is nil.
type Measurement struct {
	Peer    dataType.SeedPeer
	Latency time.Duration
	Err     error
}

func (m Measurement) OK() bool {
	return m.Err == nil
}

// Result holds the ranked peers and every measurement, in candidate order.
type Result struct {
	Ranked       []dataType.RankedPeer
	Measurements []Measurement
}

// Failures counts the probes that produced no latency.
func (r Result) Failures() int {
	n := 0
	for _, m := range r.Measurements {
		if !m.OK() {
			n++
		}
	}
	return n
}

type Config struct {
	Port        uint16
	MaxInFlight int64
	Dialer      Dialer
	Logger      *zap.Logger
}

type Prober struct {
	port   uint16
	limit  int64
	dialer Dialer
	logger *zap.Logger

	// measure is replaced in tests.
	measure func(ctx context.Context, peer dataType.SeedPeer) (time.Duration, error)
}

func New(cfg Config) *Prober {
	if cfg.Port == 0 {
		cfg.Port = GossipPort
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = MaxInFlight
	}
	if cfg.Dialer == nil {
		cfg.Dialer = &net.Dialer{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	p := &Prober{
		port:   cfg.Port,
		limit:  cfg.MaxInFlight,
		dialer: cfg.Dialer,
		logger: cfg.Logger.Named("speedtest"),
	}
	p.measure = p.dial
	return p
}

// Rank probes every candidate and returns the fastest want peers in
// ascending latency order; ties keep candidate order. It returns only after
// every started probe has finished. Fewer successes than want is not an
// error, and neither is zero successes. The only error is ctx ending before
// all probes could be admitted.
func (p *Prober) Rank(ctx context.Context, candidates []dataType.SeedPeer, want int, timeout time.Duration) (Result, error) {
	measurements := make([]Measurement, len(candidates))
	sem := semaphore.NewWeighted(p.limit)

	var (
		wg       sync.WaitGroup
		admitErr error
	)
	for i, peer := range candidates {
		measurements[i].Peer = peer
		if err := sem.Acquire(ctx, 1); err != nil {
			admitErr = err
			for j := i; j < len(candidates); j++ {
				measurements[j] = Measurement{Peer: candidates[j], Err: err}
			}
			break
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			measurements[i] = p.probe(ctx, peer, timeout)
		}()
	}
	wg.Wait()

	result := Result{Measurements: measurements}
	for _, m := range measurements {
		if m.OK() {
			result.Ranked = append(result.Ranked, dataType.RankedPeer{Peer: m.Peer, Latency: m.Latency})
			p.logger.Debug("measured seed peer", zap.Stringer("peer", m.Peer), zap.Duration("latency", m.Latency))
		} else {
			p.logger.Debug("seed peer probe failed", zap.Stringer("peer", m.Peer), zap.Error(m.Err))
		}
	}
	slices.SortStableFunc(result.Ranked, func(a, b dataType.RankedPeer) int {
		return cmp.Compare(a.Latency, b.Latency)
	})
	result.Ranked = result.Ranked[:min(max(want, 0), len(result.Ranked))]

	p.logger.Info("ranked seed peers",
		zap.Int("candidates", len(candidates)),
		zap.Int("failed", result.Failures()),
		zap.Int("selected", len(result.Ranked)),
		zap.Duration("timeout", timeout),
	)
	if admitErr != nil {
		return result, fmt.Errorf("probing seed peers: %w", admitErr)
	}
	return result, nil
}

func (p *Prober) probe(ctx context.Context, peer dataType.SeedPeer, timeout time.Duration) Measurement {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	latency, err := p.measure(ctx, peer)
	if err == nil && timeout > 0 && latency > timeout {
		err = fmt.Errorf("connect took %s, over the %s limit", latency, timeout)
	}
	if err != nil {
		return Measurement{Peer: peer, Err: err}
	}
	return Measurement{Peer: peer, Latency: latency}
}

func (p *Prober) dial(ctx context.Context, peer dataType.SeedPeer) (time.Duration, error) {
	addr := netip.AddrPortFrom(peer.IP, p.port).String()

	start := time.Now()
	conn, err := p.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return 0, err
	}
	elapsed := time.Since(start)
	_ = conn.Close()
	return elapsed, nil
}
