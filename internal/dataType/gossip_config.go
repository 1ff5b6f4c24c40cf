package dataType

import (
	"fmt"
	"net/netip"

	json "github.com/goccy/go-json"
)

const (
	keyRootNodeIPs  = "root_node_ips"
	keyTryNewPeers  = "try_new_peers"
	keyChain        = "chain"
	keyNGossipPeers = "n_gossip_peers"
)

// NodeIP is one entry of root_node_ips.
type NodeIP struct {
	IP netip.Addr `json:"Ip"`
}

func (n *NodeIP) UnmarshalJSON(data []byte) error {
	var raw struct {
		IP string `json:"Ip"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	ip, err := netip.ParseAddr(raw.IP)
	if err != nil {
		return fmt.Errorf("invalid node ip %q: %w", raw.IP, err)
	}
	if !ip.Is4() {
		return fmt.Errorf("node ip %q is not IPv4", raw.IP)
	}
	n.IP = ip
	return nil
}

// GossipConfig is the override_gossip_config.json document read by hl-node.
// Fields this program does not model are kept in Unknown and written back
// unchanged.
type GossipConfig struct {
	RootNodeIPs  []NodeIP
	TryNewPeers  bool
	Chain        Chain
	NGossipPeers *uint16
	Unknown      map[string]json.RawMessage
}

// NewGossipConfig returns the configuration generated for a fresh run.
func NewGossipConfig(chain Chain) *GossipConfig {
	return &GossipConfig{
		RootNodeIPs: []NodeIP{},
		TryNewPeers: true,
		Chain:       chain,
	}
}

func (c *GossipConfig) UnmarshalJSON(data []byte) error {
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	var out GossipConfig
	if raw, ok := fields[keyRootNodeIPs]; ok {
		if err := json.Unmarshal(raw, &out.RootNodeIPs); err != nil {
			return fmt.Errorf("parsing %s: %w", keyRootNodeIPs, err)
		}
		delete(fields, keyRootNodeIPs)
	}
	if raw, ok := fields[keyTryNewPeers]; ok {
		if err := json.Unmarshal(raw, &out.TryNewPeers); err != nil {
			return fmt.Errorf("parsing %s: %w", keyTryNewPeers, err)
		}
		delete(fields, keyTryNewPeers)
	}
	raw, ok := fields[keyChain]
	if !ok {
		return fmt.Errorf("missing field %s", keyChain)
	}
	if err := json.Unmarshal(raw, &out.Chain); err != nil {
		return fmt.Errorf("parsing %s: %w", keyChain, err)
	}
	delete(fields, keyChain)
	if raw, ok := fields[keyNGossipPeers]; ok {
		var n *uint16
		if err := json.Unmarshal(raw, &n); err != nil {
			return fmt.Errorf("parsing %s: %w", keyNGossipPeers, err)
		}
		out.NGossipPeers = n
		delete(fields, keyNGossipPeers)
	}
	if len(fields) > 0 {
		out.Unknown = fields
	}

	*c = out
	return nil
}

func (c GossipConfig) MarshalJSON() ([]byte, error) {
	fields := make(map[string]any, len(c.Unknown)+4)
	for k, v := range c.Unknown {
		fields[k] = v
	}

	rootNodeIPs := c.RootNodeIPs
	if rootNodeIPs == nil {
		rootNodeIPs = []NodeIP{}
	}
	fields[keyRootNodeIPs] = rootNodeIPs
	fields[keyTryNewPeers] = c.TryNewPeers
	fields[keyChain] = c.Chain
	if c.NGossipPeers != nil {
		fields[keyNGossipPeers] = *c.NGossipPeers
	} else {
		delete(fields, keyNGossipPeers)
	}
	return json.Marshal(fields)
}

// SetPeers replaces the root peers and applies the gossip peer count rule:
// hl-node accepts n_gossip_peers in [1, 100] and uses its own default of 8,
// so the field is only set when more than 8 peers are configured.
func (c *GossipConfig) SetPeers(peers []SeedPeer) {
	c.RootNodeIPs = make([]NodeIP, 0, len(peers))
	for _, peer := range peers {
		c.RootNodeIPs = append(c.RootNodeIPs, NodeIP{IP: peer.IP})
	}

	c.NGossipPeers = nil
	if k := len(c.RootNodeIPs); k > 8 {
		n := uint16(min(k, 100))
		c.NGossipPeers = &n
	}
}

// VisorConfig is the visor.json document consumed by hl-visor.
type VisorConfig struct {
	Chain Chain `json:"chain"`
}
