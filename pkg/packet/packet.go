// Package packet defines the packet record the classification engine
// consumes: a monotonically increasing 1-based ordinal, the captured
// length, the ethertype, and — when the ethertype is IPv4 — the decoded
// IPv4 header plus, for TCP/UDP, the destination port.
package packet

import "net/netip"

// EtherType identifies the layer-2 payload type from the Ethernet II header.
type EtherType uint16

// EtherTypeIPv4 is the only ethertype the core classifiers decode past;
// every other ethertype is treated as non-IP.
const EtherTypeIPv4 EtherType = 0x0800

// Protocol identifies the IPv4 payload protocol number.
type Protocol uint8

const (
	// ProtoTCP is IPv4 protocol number 6.
	ProtoTCP Protocol = 6
	// ProtoUDP is IPv4 protocol number 17.
	ProtoUDP Protocol = 17
)

// IPv4Header is the subset of the IPv4 header the core consults.
type IPv4Header struct {
	Src, Dst netip.Addr
	Protocol Protocol
}

// Record is one captured frame as delivered to the classifier.
type Record struct {
	// Ordinal is the packet's 1-based position in the capture.
	Ordinal uint64
	// CapturedLen is the number of bytes captured for this frame.
	CapturedLen int
	// EtherType is the Ethernet II payload type.
	EtherType EtherType

	// IPv4 is populated iff EtherType == EtherTypeIPv4.
	IPv4 *IPv4Header

	// HasL4Port is true iff IPv4 != nil and Protocol is TCP or UDP.
	HasL4Port bool
	// DstPort is the destination port, valid iff HasL4Port.
	DstPort uint16

	// Raw is the raw frame bytes. The BPF gate predicate is evaluated by
	// the capture source on the frame data itself; the core does not read Raw.
	Raw []byte
}

// IsIPv4 reports whether the frame carries a decoded IPv4 header.
func (r Record) IsIPv4() bool {
	return r.IPv4 != nil
}
