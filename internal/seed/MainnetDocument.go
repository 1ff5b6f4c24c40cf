package seed

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/netip"
	"strings"

	"go.uber.org/zap"

	"hl_bootstrap/internal/dataType"
)

// MainnetDocument scrapes seed peers from a markdown document that lists
// them in a fenced block:
//
//	```
//	operator_name,root_ips
//	Hypurrscan,57.180.50.253
//	```
type MainnetDocument struct {
	client *http.Client
	url    string
	header string
	logger *zap.Logger
}

func (s *MainnetDocument) Name() string { return "mainnet-document" }

func (s *MainnetDocument) Fetch(ctx context.Context, ignored *dataType.IgnoreSet) ([]dataType.SeedPeer, error) {
	const op = "fetch mainnet seed document"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, dataType.NewError(dataType.SourceError, op, err)
	}
	body, err := doRequest(s.client, req, op)
	if err != nil {
		return nil, err
	}

	peers, err := ParseSeedDocument(body, s.header)
	if err != nil {
		return nil, dataType.NewError(dataType.SourceError, "parse mainnet seed document", err)
	}
	if len(peers) == 0 {
		return nil, dataType.Errorf(dataType.SourceError, op, "seed peer block in %s is empty", s.url)
	}

	out := filterIgnored(peers, ignored, s.logger)
	s.logger.Debug("scraped mainnet seed peers",
		zap.Int("received", len(peers)),
		zap.Int("kept", len(out)),
		zap.String("url", s.url),
	)
	return out, nil
}

// ParseSeedDocument finds the first fenced block whose first line starts
// with header and parses each following non-blank line as "label,ipv4".
// Any malformed line fails the whole document.
func ParseSeedDocument(doc []byte, header string) ([]dataType.SeedPeer, error) {
	scanner := bufio.NewScanner(bytes.NewReader(doc))
	lineNo := 0
	next := func() (string, bool) {
		if !scanner.Scan() {
			return "", false
		}
		lineNo++
		return strings.TrimSpace(scanner.Text()), true
	}

	for {
		line, ok := next()
		if !ok {
			break
		}
		if !isFence(line) {
			continue
		}

		first, ok := next()
		if !ok {
			break
		}
		if isFence(first) {
			// empty block
			continue
		}
		if !strings.HasPrefix(first, header) {
			if err := skipBlock(next); err != nil {
				return nil, err
			}
			continue
		}
		return parseSeedBlock(next, func() int { return lineNo })
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("no code block starting with %q found", header)
}

func parseSeedBlock(next func() (string, bool), lineNo func() int) ([]dataType.SeedPeer, error) {
	var peers []dataType.SeedPeer
	for {
		line, ok := next()
		if !ok {
			return nil, fmt.Errorf("seed peer block is not terminated")
		}
		if isFence(line) {
			return peers, nil
		}
		if line == "" {
			continue
		}

		label, rawIP, found := strings.Cut(line, ",")
		label = strings.TrimSpace(label)
		rawIP = strings.TrimSpace(rawIP)
		if !found || label == "" || rawIP == "" {
			return nil, fmt.Errorf("line %d: expected label,ip but got %q", lineNo(), line)
		}
		ip, err := netip.ParseAddr(rawIP)
		if err != nil || !ip.Is4() {
			return nil, fmt.Errorf("line %d: invalid IPv4 address %q", lineNo(), rawIP)
		}
		peers = append(peers, dataType.SeedPeer{IP: ip, Label: label})
	}
}

func skipBlock(next func() (string, bool)) error {
	for {
		line, ok := next()
		if !ok {
			return nil
		}
		if isFence(line) {
			return nil
		}
	}
}

func isFence(line string) bool {
	return strings.HasPrefix(line, "```")
}
