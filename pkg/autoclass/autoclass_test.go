package autoclass

import (
	"encoding/binary"
	"net/netip"
	"testing"

	"github.com/netreplay/tcpprep/pkg/decision"
	"github.com/stretchr/testify/require"
)

func ip4(s string) uint32 {
	a := netip.MustParseAddr(s).As4()
	return binary.BigEndian.Uint32(a[:])
}

func TestParseSubMode(t *testing.T) {
	for s, want := range map[string]SubMode{
		"bridge": Bridge, "router": Router, "client": Client, "server": Server,
		"BRIDGE": Bridge,
	} {
		got, err := ParseSubMode(s)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := ParseSubMode("nope")
	require.Error(t, err)
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(Bridge, 0, 0, 0)
	require.Error(t, err)
	_, err = New(Router, 2.0, 24, 8) // min > max
	require.Error(t, err)
}

func TestBridgeScenario(t *testing.T) {
	c, err := New(Bridge, 2.0, 1, 32)
	require.NoError(t, err)

	a := ip4("10.0.0.1")
	b := ip4("10.0.0.2")
	for i := 0; i < 3; i++ {
		require.NoError(t, c.Observe(a, true))
	}
	require.NoError(t, c.Observe(b, true))
	for i := 0; i < 5; i++ {
		require.NoError(t, c.Observe(b, false))
	}
	require.NoError(t, c.Finalize())

	require.Equal(t, decision.Primary, c.ClassifySource(a))
	require.Equal(t, decision.Secondary, c.ClassifySource(b))

	// unobserved address defaults to Primary under Bridge
	require.Equal(t, decision.Primary, c.ClassifySource(ip4("8.8.8.8")))
}

func TestClientAndServerSubModeDefaults(t *testing.T) {
	cc, err := New(Client, 2.0, 1, 32)
	require.NoError(t, err)
	require.NoError(t, cc.Finalize())
	require.Equal(t, decision.Primary, cc.ClassifySource(ip4("1.2.3.4")))

	cs, err := New(Server, 2.0, 1, 32)
	require.NoError(t, err)
	require.NoError(t, cs.Finalize())
	require.Equal(t, decision.Secondary, cs.ClassifySource(ip4("1.2.3.4")))
}

func TestRouterSubMode(t *testing.T) {
	c, err := New(Router, 2.0, 24, 32)
	require.NoError(t, err)

	for i := 1; i <= 7; i++ {
		ip := ip4("10.0.0." + string(rune('0'+i)))
		require.NoError(t, c.Observe(ip, false))
	}
	require.NoError(t, c.Finalize())

	require.Equal(t, decision.Secondary, c.ClassifySource(ip4("10.0.0.3")))
	require.Equal(t, decision.Primary, c.ClassifySource(ip4("192.168.1.1")))
}
