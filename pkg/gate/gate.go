// Package gate implements the include/exclude filter layer: one of three
// mutually exclusive predicates — a packet-ordinal list, a
// source/destination CIDR predicate, or a BPF predicate — each
// evaluated in either "include" or "exclude" polarity.
package gate

import (
	"net/netip"

	"github.com/netreplay/tcpprep/pkg/cidrset"
	"github.com/netreplay/tcpprep/pkg/packetlist"
)

// Polarity selects whether a predicate match lets a packet through or
// keeps it out.
type Polarity int

const (
	// Include lets a packet through iff the predicate matches.
	Include Polarity = iota
	// Exclude lets a packet through iff the predicate does not match.
	Exclude
)

// CIDRMatch selects which address(es) of a decoded IPv4 header a CIDR
// predicate is evaluated against.
type CIDRMatch int

const (
	// MatchSource evaluates the CIDR set against the source address.
	MatchSource CIDRMatch = iota
	// MatchDestination evaluates the CIDR set against the destination address.
	MatchDestination
	// MatchEither matches if either address is contained.
	MatchEither
)

// Spec is the sum type for the three predicate kinds a Filter can wrap.
type Spec interface {
	isSpec()
}

// PacketListSpec gates on 1-based packet ordinal.
type PacketListSpec struct {
	List *packetlist.List
}

func (PacketListSpec) isSpec() {}

// CIDRSpec gates on source/destination address membership.
type CIDRSpec struct {
	Set   *cidrset.Set
	Match CIDRMatch
}

func (CIDRSpec) isSpec() {}

// BPFSpec gates on a BPF predicate compiled and evaluated by the capture
// source before frames reach the core.
type BPFSpec struct {
	Expr string
}

func (BPFSpec) isSpec() {}

// Filter pairs one predicate Spec with its Polarity. A nil *Filter always
// passes every packet.
type Filter struct {
	Spec     Spec
	Polarity Polarity
}

// Input bundles everything a predicate might need to evaluate a packet,
// since the three predicate kinds consult different parts of the frame.
type Input struct {
	Ordinal  uint64
	HasIPv4  bool
	Src, Dst netip.Addr
	BPFMatch bool
}

// Passes reports whether the packet described by in passes the gate. A
// nil Filter always passes.
func (f *Filter) Passes(in Input) bool {
	if f == nil {
		return true
	}
	matched := f.matches(in)
	if f.Polarity == Exclude {
		return !matched
	}
	return matched
}

func (f *Filter) matches(in Input) bool {
	switch spec := f.Spec.(type) {
	case PacketListSpec:
		return spec.List.Contains(in.Ordinal)
	case CIDRSpec:
		if !in.HasIPv4 {
			return false
		}
		switch spec.Match {
		case MatchSource:
			return spec.Set.Contains(in.Src)
		case MatchDestination:
			return spec.Set.Contains(in.Dst)
		default:
			return spec.Set.Contains(in.Src) || spec.Set.Contains(in.Dst)
		}
	case BPFSpec:
		return in.BPFMatch
	default:
		return false
	}
}
