// Package seed fetches candidate bootstrap peers from out-of-band sources.
// Each (chain, method) pair is its own Source; none falls back to another.
package seed

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"hl_bootstrap/internal/dataType"
)

const (
	MainnetAPIURL     = "https://api.hyperliquid.xyz/info"
	TestnetPeersURL   = "https://hyperliquid-testnet.imperator.co/peers.json"
	DocumentHeader    = "operator_name"
	maxResponseLength = 4 << 20
)

// Method selects how mainnet seeds are obtained.
type Method string

const (
	MethodAPI      Method = "api"
	MethodDocument Method = "document"
)

// Source returns candidate peers, minus those in the ignore set.
type Source interface {
	Fetch(ctx context.Context, ignored *dataType.IgnoreSet) ([]dataType.SeedPeer, error)
	Name() string
}

// Options carries the endpoints and collaborators of every source.
type Options struct {
	HTTPClient  *http.Client
	Logger      *zap.Logger
	MainnetURL  string
	TestnetURL  string
	DocumentURL string
}

func (o Options) withDefaults() Options {
	if o.HTTPClient == nil {
		o.HTTPClient = http.DefaultClient
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.MainnetURL == "" {
		o.MainnetURL = MainnetAPIURL
	}
	if o.TestnetURL == "" {
		o.TestnetURL = TestnetPeersURL
	}
	return o
}

// New returns the source for chain. Chains without a source get one that
// yields no peers.
func New(chain dataType.Chain, method Method, opts Options) (Source, error) {
	opts = opts.withDefaults()
	logger := opts.Logger.Named("seed")

	switch chain {
	case dataType.Mainnet:
		switch method {
		case MethodAPI, "":
			return &MainnetAPI{client: opts.HTTPClient, url: opts.MainnetURL, logger: logger}, nil
		case MethodDocument:
			if opts.DocumentURL == "" {
				return nil, dataType.Errorf(dataType.ConfigurationError, "select seed source", "document url is required for seed source %q", method)
			}
			return &MainnetDocument{client: opts.HTTPClient, url: opts.DocumentURL, header: DocumentHeader, logger: logger}, nil
		default:
			return nil, dataType.Errorf(dataType.ConfigurationError, "select seed source", "unknown seed source %q", method)
		}
	case dataType.Testnet:
		return &Testnet{client: opts.HTTPClient, url: opts.TestnetURL, logger: logger}, nil
	default:
		logger.Warn("no seed source for chain", zap.Stringer("chain", chain))
		return Unsupported{}, nil
	}
}

// Unsupported yields no peers and no error.
type Unsupported struct{}

func (Unsupported) Fetch(context.Context, *dataType.IgnoreSet) ([]dataType.SeedPeer, error) {
	return nil, nil
}

func (Unsupported) Name() string { return "unsupported" }

// filterIgnored drops ignored peers, logging each one.
func filterIgnored(peers []dataType.SeedPeer, ignored *dataType.IgnoreSet, logger *zap.Logger) []dataType.SeedPeer {
	out := make([]dataType.SeedPeer, 0, len(peers))
	for _, peer := range peers {
		if ignored.Contains(peer.IP) {
			logger.Debug("skipping ignored seed node", zap.Stringer("ip", peer.IP), zap.String("label", peer.Label))
			continue
		}
		out = append(out, peer)
	}
	return out
}

// doRequest performs req and returns the body of a 2xx response.
func doRequest(client *http.Client, req *http.Request, op string) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, dataType.NewError(dataType.SourceError, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, dataType.Errorf(dataType.SourceError, op, "%s %s returned status %d", req.Method, req.URL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseLength))
	if err != nil {
		return nil, dataType.NewError(dataType.SourceError, op, fmt.Errorf("reading response body: %w", err))
	}
	return body, nil
}
