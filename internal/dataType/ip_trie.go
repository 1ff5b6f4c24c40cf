package dataType

import (
	"fmt"
	"net/netip"
	"strings"
)

// TrieNode is a binary trie over IPv4 prefix bits.
type TrieNode struct {
	children [2]*TrieNode
	isEnd    bool
}

// Insert adds prefix. Non-IPv4 prefixes are ignored.
func (node *TrieNode) Insert(prefix netip.Prefix) {
	if !prefix.Addr().Is4() {
		return
	}
	ip := prefix.Masked().Addr().As4()
	current := node
	for i := 0; i < prefix.Bits(); i++ {
		bit := (ip[i/8] >> (7 - uint(i%8))) & 1
		if current.children[bit] == nil {
			current.children[bit] = &TrieNode{}
		}
		current = current.children[bit]
	}
	current.isEnd = true
}

// Search reports whether addr falls inside any inserted prefix.
func (node *TrieNode) Search(addr netip.Addr) bool {
	if !addr.Is4() {
		return false
	}
	ip := addr.As4()
	current := node
	for i := 0; i < 32; i++ {
		if current.isEnd {
			return true
		}
		bit := (ip[i/8] >> (7 - uint(i%8))) & 1
		if current.children[bit] == nil {
			return false
		}
		current = current.children[bit]
	}
	return current.isEnd
}

// IgnoreSet holds the operator's ignored seed peers. Entries are single
// IPv4 addresses or IPv4 CIDR prefixes.
type IgnoreSet struct {
	trie    TrieNode
	entries []string
}

// NewIgnoreSet parses entries such as "1.2.3.4" or "10.0.0.0/8".
func NewIgnoreSet(entries []string) (*IgnoreSet, error) {
	set := &IgnoreSet{}
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			entry = entry + "/32"
		}
		prefix, err := netip.ParsePrefix(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid ignored peer %q: %w", entry, err)
		}
		if !prefix.Addr().Is4() {
			return nil, fmt.Errorf("ignored peer %q is not IPv4", entry)
		}
		set.trie.Insert(prefix)
		set.entries = append(set.entries, prefix.Masked().String())
	}
	return set, nil
}

// Contains reports whether ip is ignored. A nil set contains nothing.
func (s *IgnoreSet) Contains(ip netip.Addr) bool {
	if s == nil {
		return false
	}
	return s.trie.Search(ip)
}

func (s *IgnoreSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Entries returns the normalized prefixes, for logging.
func (s *IgnoreSet) Entries() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.entries...)
}
