// Package cidrset implements the insertion-ordered CIDR set used by
// CIDR-mode classification, the include/exclude filter layer's
// source/destination predicate, and the ROUTER auto-mode strategy's
// aggregated output.
package cidrset

import (
	"fmt"
	"net/netip"
	"strings"

	"golang.org/x/exp/slices"
)

// Entry is one (network, prefix-length) pair. The invariant
// network & ^mask(prefixLen) == 0 (host bits zero) is maintained by every
// constructor in this package.
type Entry struct {
	Network   netip.Addr
	PrefixLen int
}

// String renders the entry as "a.b.c.d/p" with no host bits.
func (e Entry) String() string {
	return fmt.Sprintf("%s/%d", e.Network, e.PrefixLen)
}

// Set is an insertion-ordered sequence of CIDR entries. Iteration order is
// insertion order; there is no coalescing and no overlap detection.
type Set struct {
	entries []Entry
}

// New returns an empty CIDR set.
func New() *Set {
	return &Set{}
}

// Append adds (network, prefixLen) to the set, masking off any host bits.
func (s *Set) Append(network netip.Addr, prefixLen int) error {
	if prefixLen < 0 || prefixLen > network.BitLen() {
		return fmt.Errorf("prefix length %d out of range for %s", prefixLen, network)
	}
	masked, err := mask(network, prefixLen)
	if err != nil {
		return err
	}
	s.entries = append(s.entries, Entry{Network: masked, PrefixLen: prefixLen})
	return nil
}

// Len returns the number of entries in the set.
func (s *Set) Len() int {
	return len(s.entries)
}

// Entries returns the entries in insertion order. The caller must not
// mutate the returned slice.
func (s *Set) Entries() []Entry {
	return s.entries
}

// Contains reports whether ip matches any entry, first match wins. Returns
// false for an empty set.
func (s *Set) Contains(ip netip.Addr) bool {
	for _, e := range s.entries {
		m, err := mask(ip, e.PrefixLen)
		if err != nil {
			continue
		}
		if m == e.Network {
			return true
		}
	}
	return false
}

// Parse builds a Set from a separator-delimited sequence of "a.b.c.d/p"
// tokens. An invalid token fails the whole parse.
func Parse(text, separator string) (*Set, error) {
	s := New()
	if strings.TrimSpace(text) == "" {
		return s, nil
	}
	for _, tok := range strings.Split(text, separator) {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		prefix, err := netip.ParsePrefix(tok)
		if err != nil {
			return nil, fmt.Errorf("invalid CIDR token %q: %w", tok, err)
		}
		if err := s.Append(prefix.Addr(), prefix.Bits()); err != nil {
			return nil, fmt.Errorf("invalid CIDR token %q: %w", tok, err)
		}
	}
	s.Dedup()
	return s, nil
}

// Dedup removes exact duplicate (network, prefixLen) entries in place,
// keeping the first occurrence of each and otherwise preserving
// insertion order. Parse calls it, so a list that repeats an entry yields
// that entry once.
func (s *Set) Dedup() {
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if slices.ContainsFunc(out, func(x Entry) bool { return x == e }) {
			continue
		}
		out = append(out, e)
	}
	s.entries = out
}

// mask returns addr with all bits beyond prefixLen cleared.
func mask(addr netip.Addr, prefixLen int) (netip.Addr, error) {
	p, err := addr.Prefix(prefixLen)
	if err != nil {
		return netip.Addr{}, err
	}
	return p.Masked().Addr(), nil
}

// AddrFromUint32 decodes a big-endian uint32 IPv4 key into a netip.Addr,
// used by the radix-tree aggregation pass which works with 32-bit keys.
func AddrFromUint32(v uint32) netip.Addr {
	return netip.AddrFrom4([4]byte{
		byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v),
	})
}

// AppendUint32 is a convenience wrapper over Append for IPv4 addresses
// represented as a 32-bit host-order integer, used by pkg/learner's
// aggregation pass.
func (s *Set) AppendUint32(network uint32, prefixLen int) error {
	return s.Append(AddrFromUint32(network), prefixLen)
}
