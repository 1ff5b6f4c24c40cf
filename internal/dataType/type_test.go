package dataType

import (
	"errors"
	"fmt"
	"io/fs"
	"net/netip"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChain(t *testing.T) {
	tests := []struct {
		input   string
		want    Chain
		wantErr bool
	}{
		{"mainnet", Mainnet, false},
		{"Mainnet", Mainnet, false},
		{"MAINNET", Mainnet, false},
		{" testnet ", Testnet, false},
		{"TestNet", Testnet, false},
		{"devnet", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseChain(tt.input)
		if tt.wantErr {
			assert.Error(t, err, "ParseChain(%q)", tt.input)
			continue
		}
		require.NoError(t, err, "ParseChain(%q)", tt.input)
		assert.Equal(t, tt.want, got, "ParseChain(%q)", tt.input)
	}
}

func TestChainTextEncoding(t *testing.T) {
	data, err := json.Marshal(VisorConfig{Chain: Testnet})
	require.NoError(t, err)
	assert.JSONEq(t, `{"chain":"Testnet"}`, string(data))

	var cfg VisorConfig
	require.NoError(t, json.Unmarshal([]byte(`{"chain":"mainnet"}`), &cfg))
	assert.Equal(t, Mainnet, cfg.Chain)

	_, err = json.Marshal(VisorConfig{})
	assert.Error(t, err, "zero chain must not encode")
}

func TestGossipConfigRoundTripKeepsUnknownFields(t *testing.T) {
	input := `{
		"root_node_ips": [{"Ip": "1.2.3.4"}],
		"try_new_peers": false,
		"chain": "Mainnet",
		"reserved_peer_ips": ["5.6.7.8"],
		"nested": {"a": [1, 2, {"b": null}], "c": "d"}
	}`

	var cfg GossipConfig
	require.NoError(t, json.Unmarshal([]byte(input), &cfg))
	assert.Equal(t, Mainnet, cfg.Chain)
	assert.False(t, cfg.TryNewPeers)
	require.Len(t, cfg.RootNodeIPs, 1)
	assert.Equal(t, netip.MustParseAddr("1.2.3.4"), cfg.RootNodeIPs[0].IP)
	assert.Nil(t, cfg.NGossipPeers)
	assert.Len(t, cfg.Unknown, 2)

	out, err := json.Marshal(cfg)
	require.NoError(t, err)
	assert.JSONEq(t, input, string(out))
}

func TestGossipConfigRequiresChain(t *testing.T) {
	var cfg GossipConfig
	err := json.Unmarshal([]byte(`{"root_node_ips": []}`), &cfg)
	assert.Error(t, err)
}

func TestGossipConfigRejectsIPv6(t *testing.T) {
	var cfg GossipConfig
	err := json.Unmarshal([]byte(`{"root_node_ips": [{"Ip": "::1"}], "chain": "Testnet"}`), &cfg)
	assert.Error(t, err)
}

func TestNewGossipConfigEncoding(t *testing.T) {
	out, err := json.Marshal(NewGossipConfig(Testnet))
	require.NoError(t, err)
	assert.JSONEq(t, `{"root_node_ips":[],"try_new_peers":true,"chain":"Testnet"}`, string(out))
}

func TestSetPeersGossipPeerCount(t *testing.T) {
	peers := func(n int) []SeedPeer {
		out := make([]SeedPeer, n)
		for i := range out {
			out[i] = SeedPeer{IP: netip.AddrFrom4([4]byte{10, 0, byte(i / 256), byte(i % 256)})}
		}
		return out
	}

	tests := []struct {
		count int
		want  *uint16
	}{
		{0, nil},
		{1, nil},
		{8, nil},
		{9, ptr(uint16(9))},
		{100, ptr(uint16(100))},
		{150, ptr(uint16(100))},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.count), func(t *testing.T) {
			cfg := NewGossipConfig(Mainnet)
			cfg.SetPeers(peers(tt.count))
			assert.Len(t, cfg.RootNodeIPs, tt.count)
			assert.Equal(t, tt.want, cfg.NGossipPeers)
		})
	}
}

func TestSetPeersEncodesGossipPeerCount(t *testing.T) {
	cfg := NewGossipConfig(Mainnet)
	cfg.SetPeers([]SeedPeer{{IP: netip.MustParseAddr("1.1.1.1")}})
	cfg.NGossipPeers = ptr(uint16(12))

	out, err := json.Marshal(cfg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"root_node_ips":[{"Ip":"1.1.1.1"}],"try_new_peers":true,"chain":"Mainnet","n_gossip_peers":12}`, string(out))
}

func TestIgnoreSet(t *testing.T) {
	set, err := NewIgnoreSet([]string{"1.2.3.4", "10.0.0.0/8", " "})
	require.NoError(t, err)
	assert.Equal(t, 2, set.Len())
	assert.Equal(t, []string{"1.2.3.4/32", "10.0.0.0/8"}, set.Entries())

	assert.True(t, set.Contains(netip.MustParseAddr("1.2.3.4")))
	assert.False(t, set.Contains(netip.MustParseAddr("1.2.3.5")))
	assert.True(t, set.Contains(netip.MustParseAddr("10.200.1.1")))
	assert.False(t, set.Contains(netip.MustParseAddr("11.0.0.1")))

	var empty *IgnoreSet
	assert.False(t, empty.Contains(netip.MustParseAddr("1.2.3.4")))

	_, err = NewIgnoreSet([]string{"not-an-ip"})
	assert.Error(t, err)
	_, err = NewIgnoreSet([]string{"2001:db8::1"})
	assert.Error(t, err)
}

func TestKindOf(t *testing.T) {
	err := NewError(SourceError, "fetch seed peers", errors.New("boom"))
	wrapped := fmt.Errorf("prepare: %w", err)

	assert.Equal(t, SourceError, KindOf(wrapped))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	assert.Contains(t, err.Error(), "source error: fetch seed peers: boom")

	notFound := NewError(IOError, "read", fs.ErrNotExist)
	assert.ErrorIs(t, notFound, fs.ErrNotExist)
}

func ptr[T any](v T) *T {
	return &v
}
