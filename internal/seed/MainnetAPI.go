package seed

import (
	"bytes"
	"context"
	"net/http"
	"net/netip"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"hl_bootstrap/internal/dataType"
)

var gossipRootIPsRequest = []byte(`{"type":"gossipRootIps"}`)

// MainnetAPI asks the Hyperliquid info API for the gossip root IPs.
type MainnetAPI struct {
	client *http.Client
	url    string
	logger *zap.Logger
}

func (s *MainnetAPI) Name() string { return "mainnet-api" }

func (s *MainnetAPI) Fetch(ctx context.Context, ignored *dataType.IgnoreSet) ([]dataType.SeedPeer, error) {
	const op = "fetch mainnet seed peers"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(gossipRootIPsRequest))
	if err != nil {
		return nil, dataType.NewError(dataType.SourceError, op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := doRequest(s.client, req, op)
	if err != nil {
		return nil, err
	}

	var ips []string
	if err := json.Unmarshal(body, &ips); err != nil {
		return nil, dataType.NewError(dataType.SourceError, "parse mainnet seed peers", err)
	}
	if len(ips) == 0 {
		return nil, dataType.Errorf(dataType.SourceError, op, "no seed peers were given from Hyperliquid API")
	}

	peers := make([]dataType.SeedPeer, 0, len(ips))
	for _, raw := range ips {
		ip, err := netip.ParseAddr(raw)
		if err != nil || !ip.Is4() {
			return nil, dataType.Errorf(dataType.SourceError, "parse mainnet seed peers", "invalid IPv4 address %q", raw)
		}
		peers = append(peers, dataType.SeedPeer{IP: ip})
	}

	out := filterIgnored(peers, ignored, s.logger)
	s.logger.Debug("fetched mainnet seed peers",
		zap.Int("received", len(peers)),
		zap.Int("kept", len(out)),
		zap.String("url", s.url),
	)
	return out, nil
}

var _ Source = (*MainnetAPI)(nil)
