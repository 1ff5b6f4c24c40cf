package speedtest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hl_bootstrap/internal/dataType"
)

func candidates(n int) []dataType.SeedPeer {
	peers := make([]dataType.SeedPeer, n)
	for i := range peers {
		peers[i] = dataType.SeedPeer{
			IP:    netip.AddrFrom4([4]byte{10, 0, byte(i / 256), byte(i % 256)}),
			Label: fmt.Sprintf("peer-%d", i),
		}
	}
	return peers
}

// fixedLatency answers each probe from a table keyed by address.
func fixedLatency(table map[netip.Addr]time.Duration) func(context.Context, dataType.SeedPeer) (time.Duration, error) {
	return func(_ context.Context, peer dataType.SeedPeer) (time.Duration, error) {
		latency, ok := table[peer.IP]
		if !ok {
			return 0, errors.New("connection refused")
		}
		return latency, nil
	}
}

func latencies(ranked []dataType.RankedPeer) []time.Duration {
	out := make([]time.Duration, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, r.Latency)
	}
	return out
}

func TestRankOrdersAndTruncates(t *testing.T) {
	peers := candidates(12)
	ms := []int{5, 3, 9, 1, 7, 2, 8, 4, 6, 10, 11, 12}
	table := make(map[netip.Addr]time.Duration)
	for i, v := range ms {
		table[peers[i].IP] = time.Duration(v) * time.Millisecond
	}

	p := New(Config{})
	p.measure = fixedLatency(table)

	result, err := p.Rank(context.Background(), peers, 5, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{
		1 * time.Millisecond,
		2 * time.Millisecond,
		3 * time.Millisecond,
		4 * time.Millisecond,
		5 * time.Millisecond,
	}, latencies(result.Ranked))
	assert.Equal(t, peers[3], result.Ranked[0].Peer)
	assert.Len(t, result.Measurements, 12)
	assert.Zero(t, result.Failures())
}

func TestRankWantExceedsSuccesses(t *testing.T) {
	peers := candidates(4)
	p := New(Config{})
	p.measure = fixedLatency(map[netip.Addr]time.Duration{
		peers[0].IP: 30 * time.Millisecond,
		peers[2].IP: 10 * time.Millisecond,
	})

	result, err := p.Rank(context.Background(), peers, 10, time.Second)
	require.NoError(t, err)
	require.Len(t, result.Ranked, 2)
	assert.Equal(t, peers[2], result.Ranked[0].Peer)
	assert.Equal(t, peers[0], result.Ranked[1].Peer)
	assert.Equal(t, 2, result.Failures())
}

func TestRankNoSuccesses(t *testing.T) {
	p := New(Config{})
	p.measure = fixedLatency(nil)

	result, err := p.Rank(context.Background(), candidates(3), 5, time.Second)
	require.NoError(t, err)
	assert.Empty(t, result.Ranked)
	assert.Len(t, result.Measurements, 3)
	for _, m := range result.Measurements {
		assert.False(t, m.OK())
	}
}

func TestRankSlowProbeCountsAsFailure(t *testing.T) {
	peers := candidates(2)
	p := New(Config{})
	p.measure = fixedLatency(map[netip.Addr]time.Duration{
		peers[0].IP: 120 * time.Millisecond,
		peers[1].IP: 40 * time.Millisecond,
	})

	result, err := p.Rank(context.Background(), peers, 5, 80*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, result.Ranked, 1)
	assert.Equal(t, peers[1], result.Ranked[0].Peer)
	assert.Error(t, result.Measurements[0].Err)
}

func TestRankStableTies(t *testing.T) {
	peers := candidates(6)
	table := make(map[netip.Addr]time.Duration)
	for _, peer := range peers {
		table[peer.IP] = 7 * time.Millisecond
	}
	p := New(Config{})
	p.measure = fixedLatency(table)

	result, err := p.Rank(context.Background(), peers, 6, time.Second)
	require.NoError(t, err)
	for i, ranked := range result.Ranked {
		assert.Equal(t, peers[i], ranked.Peer)
	}
}

func TestRankZeroWant(t *testing.T) {
	peers := candidates(3)
	p := New(Config{})
	p.measure = fixedLatency(map[netip.Addr]time.Duration{peers[0].IP: time.Millisecond})

	result, err := p.Rank(context.Background(), peers, 0, time.Second)
	require.NoError(t, err)
	assert.Empty(t, result.Ranked)
}

func TestRankBoundsConcurrency(t *testing.T) {
	var inFlight, peak, calls atomic.Int64

	p := New(Config{})
	p.measure = func(ctx context.Context, peer dataType.SeedPeer) (time.Duration, error) {
		calls.Add(1)
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return time.Millisecond, nil
	}

	result, err := p.Rank(context.Background(), candidates(200), 5, time.Second)
	require.NoError(t, err)
	assert.Len(t, result.Ranked, 5)
	assert.EqualValues(t, 200, calls.Load())
	assert.LessOrEqual(t, peak.Load(), int64(MaxInFlight))
	assert.Zero(t, inFlight.Load())
}

func TestRankCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New(Config{MaxInFlight: 1})
	p.measure = fixedLatency(nil)

	result, err := p.Rank(ctx, candidates(3), 3, time.Second)
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, result.Measurements, 3)
	assert.Empty(t, result.Ranked)
}

func TestRankDialsRealListener(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	p := New(Config{Port: uint16(port)})

	open := dataType.SeedPeer{IP: netip.MustParseAddr("127.0.0.1"), Label: "open"}
	closed := dataType.SeedPeer{IP: netip.MustParseAddr("127.0.0.2"), Label: "closed"}

	result, err := p.Rank(context.Background(), []dataType.SeedPeer{closed, open}, 5, 2*time.Second)
	require.NoError(t, err)
	require.Len(t, result.Ranked, 1)
	assert.Equal(t, open, result.Ranked[0].Peer)
	assert.Greater(t, result.Ranked[0].Latency, time.Duration(0))
	assert.Error(t, result.Measurements[0].Err)
}
