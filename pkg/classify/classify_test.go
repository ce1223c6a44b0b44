package classify

import (
	"net/netip"
	"testing"

	"github.com/netreplay/tcpprep/pkg/autoclass"
	"github.com/netreplay/tcpprep/pkg/cidrset"
	"github.com/netreplay/tcpprep/pkg/decision"
	"github.com/netreplay/tcpprep/pkg/packet"
	"github.com/netreplay/tcpprep/pkg/ports"
	"github.com/stretchr/testify/require"
)

func ipv4Record(ordinal uint64, src, dst string, proto packet.Protocol, dstPort uint16, hasPort bool) packet.Record {
	return packet.Record{
		Ordinal:   ordinal,
		EtherType: packet.EtherTypeIPv4,
		IPv4: &packet.IPv4Header{
			Src:      netip.MustParseAddr(src),
			Dst:      netip.MustParseAddr(dst),
			Protocol: proto,
		},
		HasL4Port: hasPort,
		DstPort:   dstPort,
	}
}

func nonIPRecord(ordinal uint64) packet.Record {
	return packet.Record{Ordinal: ordinal, EtherType: 0x0806} // ARP
}

// Scenario 1
func TestScenarioOneCIDRMode(t *testing.T) {
	set, err := cidrset.Parse("10.0.0.0/8", ",")
	require.NoError(t, err)
	c := NewCIDR(set, decision.Primary)

	got := []decision.Decision{
		c.Classify(ipv4Record(1, "10.1.2.3", "1.1.1.1", packet.ProtoTCP, 80, true)),
		c.Classify(ipv4Record(2, "192.168.1.1", "1.1.1.1", packet.ProtoTCP, 80, true)),
		c.Classify(ipv4Record(3, "10.5.5.5", "1.1.1.1", packet.ProtoTCP, 80, true)),
	}
	want := []decision.Decision{
		{Send: true, Side: decision.Secondary},
		{Send: true, Side: decision.Primary},
		{Send: true, Side: decision.Secondary},
	}
	require.Equal(t, want, got)
}

// Scenario 2
func TestScenarioTwoPortMode(t *testing.T) {
	tbl := ports.New()
	c := NewPort(tbl, decision.Primary)

	got := []decision.Decision{
		c.Classify(ipv4Record(1, "1.2.3.4", "5.6.7.8", packet.ProtoTCP, 80, true)),
		c.Classify(ipv4Record(2, "1.2.3.4", "5.6.7.8", packet.ProtoTCP, 40000, true)),
		c.Classify(ipv4Record(3, "1.2.3.4", "5.6.7.8", packet.ProtoUDP, 53, true)),
		c.Classify(nonIPRecord(4)),
	}
	want := []decision.Decision{
		{Send: true, Side: decision.Secondary},
		{Send: true, Side: decision.Primary},
		{Send: true, Side: decision.Secondary},
		{Send: true, Side: decision.Primary},
	}
	require.Equal(t, want, got)
}

// Scenario 3
func TestScenarioThreeRegexMode(t *testing.T) {
	c, err := NewRegex(`^192\.168\.`, decision.Primary)
	require.NoError(t, err)

	got := []decision.Decision{
		c.Classify(ipv4Record(1, "192.168.0.1", "1.1.1.1", packet.ProtoTCP, 80, true)),
		c.Classify(ipv4Record(2, "10.0.0.1", "1.1.1.1", packet.ProtoTCP, 80, true)),
	}
	want := []decision.Decision{
		{Send: true, Side: decision.Secondary},
		{Send: true, Side: decision.Primary},
	}
	require.Equal(t, want, got)
}

// Scenario 4 (auto/bridge), driven through the Classifier interface
func TestScenarioFourAutoBridge(t *testing.T) {
	ac, err := autoclass.New(autoclass.Bridge, 2.0, 1, 32)
	require.NoError(t, err)
	tbl := ports.New() // default range includes 80, not 9000
	c := NewAuto(ac, tbl, decision.Primary)

	aRec := func(o uint64) packet.Record { return ipv4Record(o, "10.0.0.1", "5.6.7.8", packet.ProtoTCP, 80, true) }
	bRecClient := func(o uint64) packet.Record { return ipv4Record(o, "10.0.0.2", "5.6.7.8", packet.ProtoTCP, 80, true) }
	bRecServer := func(o uint64) packet.Record {
		return ipv4Record(o, "10.0.0.2", "5.6.7.8", packet.ProtoTCP, 9000, true)
	}

	require.True(t, c.NeedsLearningPass())
	require.NoError(t, c.Observe(aRec(1)))
	require.NoError(t, c.Observe(aRec(2)))
	require.NoError(t, c.Observe(aRec(3)))
	require.NoError(t, c.Observe(bRecClient(4)))
	for i := uint64(5); i < 10; i++ {
		require.NoError(t, c.Observe(bRecServer(i)))
	}
	require.NoError(t, c.Finalize())

	require.Equal(t, decision.Decision{Send: true, Side: decision.Primary}, c.Classify(aRec(1)))
	require.Equal(t, decision.Decision{Send: true, Side: decision.Secondary}, c.Classify(bRecClient(4)))
	require.Equal(t, decision.Decision{Send: true, Side: decision.Secondary}, c.Classify(bRecServer(5)))
}
