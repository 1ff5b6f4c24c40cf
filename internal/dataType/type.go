package dataType

import (
	"fmt"
	"net/netip"
	"strings"
	"time"
)

// Chain selects the peer source and the hl-visor distribution endpoint.
// The zero value means "not configured".
type Chain int

const (
	Mainnet Chain = iota + 1
	Testnet
)

// Chains lists every supported chain.
var Chains = []Chain{Mainnet, Testnet}

// ParseChain parses a chain name case-insensitively.
func ParseChain(s string) (Chain, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mainnet":
		return Mainnet, nil
	case "testnet":
		return Testnet, nil
	default:
		return 0, fmt.Errorf("unsupported chain '%s'", s)
	}
}

func (c Chain) String() string {
	switch c {
	case Mainnet:
		return "Mainnet"
	case Testnet:
		return "Testnet"
	default:
		return fmt.Sprintf("Chain(%d)", int(c))
	}
}

// Valid reports whether c is one of the supported chains.
func (c Chain) Valid() bool {
	switch c {
	case Mainnet, Testnet:
		return true
	default:
		return false
	}
}

func (c Chain) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("cannot encode unsupported chain %d", int(c))
	}
	return []byte(c.String()), nil
}

func (c *Chain) UnmarshalText(text []byte) error {
	parsed, err := ParseChain(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// SeedPeer is a bootstrap candidate offered by a seed source.
type SeedPeer struct {
	IP    netip.Addr
	Label string
}

func (p SeedPeer) String() string {
	if p.Label == "" {
		return p.IP.String()
	}
	return p.Label + "/" + p.IP.String()
}

// RankedPeer is a seed peer with its measured connect latency.
type RankedPeer struct {
	Peer    SeedPeer
	Latency time.Duration
}
