package gate

import (
	"net/netip"
	"testing"

	"github.com/netreplay/tcpprep/pkg/cidrset"
	"github.com/netreplay/tcpprep/pkg/packetlist"
	"github.com/stretchr/testify/require"
)

func TestNilFilterAlwaysPasses(t *testing.T) {
	var f *Filter
	require.True(t, f.Passes(Input{Ordinal: 1}))
}

func TestScenarioFiveIncludeOrdinalRange(t *testing.T) {
	list, err := packetlist.Parse("2-3")
	require.NoError(t, err)
	f := &Filter{Spec: PacketListSpec{List: list}, Polarity: Include}

	want := map[uint64]bool{1: false, 2: true, 3: true, 4: false, 5: false}
	for ordinal, w := range want {
		require.Equal(t, w, f.Passes(Input{Ordinal: ordinal}))
	}
}

func TestExcludePolarityInverts(t *testing.T) {
	list, err := packetlist.Parse("2-3")
	require.NoError(t, err)
	f := &Filter{Spec: PacketListSpec{List: list}, Polarity: Exclude}

	require.True(t, f.Passes(Input{Ordinal: 1}))
	require.False(t, f.Passes(Input{Ordinal: 2}))
}

func TestCIDRMatchSourceDestinationEither(t *testing.T) {
	set, err := cidrset.Parse("10.0.0.0/8", ",")
	require.NoError(t, err)

	src := netip.MustParseAddr("10.1.1.1")
	dst := netip.MustParseAddr("192.168.1.1")
	in := Input{HasIPv4: true, Src: src, Dst: dst}

	fSrc := &Filter{Spec: CIDRSpec{Set: set, Match: MatchSource}, Polarity: Include}
	require.True(t, fSrc.Passes(in))

	fDst := &Filter{Spec: CIDRSpec{Set: set, Match: MatchDestination}, Polarity: Include}
	require.False(t, fDst.Passes(in))

	fEither := &Filter{Spec: CIDRSpec{Set: set, Match: MatchEither}, Polarity: Include}
	require.True(t, fEither.Passes(in))
}

func TestCIDRSpecNonIPv4NeverMatches(t *testing.T) {
	set, err := cidrset.Parse("10.0.0.0/8", ",")
	require.NoError(t, err)
	f := &Filter{Spec: CIDRSpec{Set: set, Match: MatchSource}, Polarity: Include}
	require.False(t, f.Passes(Input{HasIPv4: false}))
}

func TestBPFSpec(t *testing.T) {
	f := &Filter{Spec: BPFSpec{Expr: "tcp port 80"}, Polarity: Include}
	require.True(t, f.Passes(Input{BPFMatch: true}))
	require.False(t, f.Passes(Input{BPFMatch: false}))
}
