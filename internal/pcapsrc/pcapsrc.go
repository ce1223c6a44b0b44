// Package pcapsrc adapts an offline pcap file to pkg/engine.Source,
// decoding each frame's Ethernet, IPv4, and TCP/UDP headers, and
// evaluating an optional BPF predicate per frame for the gate layer to
// consult.
package pcapsrc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"golang.org/x/net/ipv4"

	"github.com/netreplay/tcpprep/internal/logging"
	"github.com/netreplay/tcpprep/pkg/packet"
)

// ethernetHeaderLen is the fixed dst MAC/src MAC/ethertype prefix of an
// Ethernet II frame; minIPv4FrameLen is the shortest frame that could
// possibly carry a complete IPv4 header behind it.
const ethernetHeaderLen = 14

var minIPv4FrameLen = ethernetHeaderLen + ipv4.HeaderLen

// Source reads one pcap file start to finish and decodes each frame into
// a pkg/packet.Record.
type Source struct {
	path    string
	bpfExpr string

	handle   *pcap.Handle
	gopktSrc *gopacket.PacketSource
	bpf      *pcap.BPF

	ordinal uint64
}

// Open opens path for offline reading and, if bpfExpr is non-empty,
// compiles it once against the file's link type.
func Open(ctx context.Context, path, bpfExpr string) (*Source, error) {
	handle, err := pcap.OpenOffline(path)
	if err != nil {
		return nil, fmt.Errorf("open pcap file %s: %w", path, err)
	}

	s := &Source{path: path, bpfExpr: bpfExpr, handle: handle}
	s.gopktSrc = gopacket.NewPacketSource(handle, handle.LinkType())
	s.gopktSrc.DecodeOptions = gopacket.DecodeOptions{Lazy: true, NoCopy: true}

	if bpfExpr != "" {
		bpf, err := handle.NewBPF(bpfExpr)
		if err != nil {
			handle.Close()
			return nil, fmt.Errorf("compile BPF expression %q: %w", bpfExpr, err)
		}
		s.bpf = bpf
	}

	logging.WithContext(ctx).Debug("opened pcap source", "path", path, "link_type", handle.LinkType().String())
	return s, nil
}

// Next decodes and returns the next frame. ok is false once the file is
// exhausted.
func (s *Source) Next() (rec packet.Record, bpfMatch bool, ok bool, err error) {
	gpkt, err := s.gopktSrc.NextPacket()
	if err != nil {
		if isEOF(err) {
			return packet.Record{}, false, false, nil
		}
		return packet.Record{}, false, false, fmt.Errorf("read frame: %w", err)
	}

	s.ordinal++
	data := gpkt.Data()

	bpfMatch = true
	if s.bpf != nil {
		bpfMatch = s.bpf.Matches(gpkt.Metadata().CaptureInfo, data)
	}

	rec = decode(s.ordinal, gpkt, len(data))
	return rec, bpfMatch, true, nil
}

// Close releases the pcap handle.
func (s *Source) Close() error {
	if s.handle != nil {
		s.handle.Close()
	}
	return nil
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, pcap.NextErrorNoMorePackets)
}

// decode extracts the fields the core needs from a decoded Ethernet II
// frame: dst MAC/src MAC/ethertype occupy the first 14 bytes; an IPv4
// header follows at a variable length given by the low 4 bits of its
// first byte (the IHL, in 32-bit words); for TCP/UDP payloads the
// destination port is the big-endian uint16 at L4 offset 2.
func decode(ordinal uint64, gpkt gopacket.Packet, capLen int) packet.Record {
	rec := packet.Record{Ordinal: ordinal, CapturedLen: capLen, Raw: gpkt.Data()}

	ethLayer := gpkt.Layer(layers.LayerTypeEthernet)
	if ethLayer == nil {
		return rec
	}
	ethHdr := ethLayer.(*layers.Ethernet)
	rec.EtherType = packet.EtherType(ethHdr.EthernetType)
	if rec.EtherType != packet.EtherTypeIPv4 || capLen < minIPv4FrameLen {
		return rec
	}

	ip4Layer := gpkt.Layer(layers.LayerTypeIPv4)
	if ip4Layer == nil {
		return rec
	}
	ip4 := ip4Layer.(*layers.IPv4)

	src, okSrc := netipFromIP(ip4.SrcIP)
	dst, okDst := netipFromIP(ip4.DstIP)
	if !okSrc || !okDst {
		return rec
	}
	rec.IPv4 = &packet.IPv4Header{Src: src, Dst: dst, Protocol: packet.Protocol(ip4.Protocol)}

	switch rec.IPv4.Protocol {
	case packet.ProtoTCP:
		if tcpLayer := gpkt.Layer(layers.LayerTypeTCP); tcpLayer != nil {
			rec.HasL4Port = true
			rec.DstPort = uint16(tcpLayer.(*layers.TCP).DstPort)
		}
	case packet.ProtoUDP:
		if udpLayer := gpkt.Layer(layers.LayerTypeUDP); udpLayer != nil {
			rec.HasL4Port = true
			rec.DstPort = uint16(udpLayer.(*layers.UDP).DstPort)
		}
	}
	return rec
}

// netipFromIP converts a net.IP (however gopacket's layers.IPv4 chose to
// represent it) into a 4-byte netip.Addr, failing for anything that
// isn't a valid IPv4 address.
func netipFromIP(ip net.IP) (netip.Addr, bool) {
	b := ip.To4()
	if b == nil {
		return netip.Addr{}, false
	}
	return netip.AddrFrom4([4]byte{b[0], b[1], b[2], b[3]}), true
}
