package seed

import (
	"context"
	"net/http"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"hl_bootstrap/internal/dataType"
)

// Testnet reads the root node list out of a published gossip config.
type Testnet struct {
	client *http.Client
	url    string
	logger *zap.Logger
}

func (s *Testnet) Name() string { return "testnet" }

func (s *Testnet) Fetch(ctx context.Context, ignored *dataType.IgnoreSet) ([]dataType.SeedPeer, error) {
	const op = "fetch testnet seed peers"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, dataType.NewError(dataType.SourceError, op, err)
	}
	body, err := doRequest(s.client, req, op)
	if err != nil {
		return nil, err
	}

	var published dataType.GossipConfig
	if err := json.Unmarshal(body, &published); err != nil {
		return nil, dataType.NewError(dataType.SourceError, "parse testnet gossip config", err)
	}

	peers := make([]dataType.SeedPeer, 0, len(published.RootNodeIPs))
	for _, node := range published.RootNodeIPs {
		peers = append(peers, dataType.SeedPeer{IP: node.IP})
	}

	out := filterIgnored(peers, ignored, s.logger)
	s.logger.Debug("fetched testnet seed peers",
		zap.Int("received", len(peers)),
		zap.Int("kept", len(out)),
		zap.String("url", s.url),
	)
	return out, nil
}

var _ Source = (*Testnet)(nil)
