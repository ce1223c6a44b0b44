package cidrset

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAndContains(t *testing.T) {
	s, err := Parse("10.0.0.0/8,192.168.1.0/24", ",")
	require.NoError(t, err)
	require.Equal(t, 2, s.Len())

	require.True(t, s.Contains(netip.MustParseAddr("10.1.2.3")))
	require.True(t, s.Contains(netip.MustParseAddr("192.168.1.1")))
	require.False(t, s.Contains(netip.MustParseAddr("192.168.2.1")))
}

func TestParseInvalidTokenFailsWhole(t *testing.T) {
	_, err := Parse("10.0.0.0/8,not-a-cidr", ",")
	require.Error(t, err)
}

func TestEmptySetContainsNothing(t *testing.T) {
	s := New()
	require.False(t, s.Contains(netip.MustParseAddr("1.2.3.4")))
}

func TestPrefixZeroMatchesEverything(t *testing.T) {
	s := New()
	require.NoError(t, s.Append(netip.MustParseAddr("0.0.0.0"), 0))
	require.True(t, s.Contains(netip.MustParseAddr("8.8.8.8")))
	require.True(t, s.Contains(netip.MustParseAddr("255.255.255.255")))
}

func TestPrefixThirtyTwoMatchesExactlyOne(t *testing.T) {
	s := New()
	require.NoError(t, s.Append(netip.MustParseAddr("10.1.2.3"), 32))
	require.True(t, s.Contains(netip.MustParseAddr("10.1.2.3")))
	require.False(t, s.Contains(netip.MustParseAddr("10.1.2.4")))
}

func TestStringHasNoHostBits(t *testing.T) {
	s := New()
	require.NoError(t, s.Append(netip.MustParseAddr("10.1.2.3"), 8))
	require.Equal(t, "10.0.0.0/8", s.Entries()[0].String())
}

func TestFirstMatchWins(t *testing.T) {
	s := New()
	require.NoError(t, s.Append(netip.MustParseAddr("10.0.0.0"), 8))
	require.NoError(t, s.Append(netip.MustParseAddr("10.1.0.0"), 16))
	require.True(t, s.Contains(netip.MustParseAddr("10.1.2.3")))
	require.Equal(t, 2, s.Len())
}

func TestParseDedupsExactDuplicates(t *testing.T) {
	s, err := Parse("10.0.0.0/8,10.0.0.0/8,192.168.0.0/16", ",")
	require.NoError(t, err)
	require.Equal(t, 2, s.Len())
	require.Equal(t, "10.0.0.0/8", s.Entries()[0].String())
	require.Equal(t, "192.168.0.0/16", s.Entries()[1].String())
}

func TestDedupKeepsDistinctPrefixLensForSameNetwork(t *testing.T) {
	s := New()
	require.NoError(t, s.Append(netip.MustParseAddr("10.0.0.0"), 8))
	require.NoError(t, s.Append(netip.MustParseAddr("10.0.0.0"), 16))
	s.Dedup()
	require.Equal(t, 2, s.Len())
}

func TestAppendUint32(t *testing.T) {
	s := New()
	require.NoError(t, s.AppendUint32(0x0A000000, 24)) // 10.0.0.0/24
	require.True(t, s.Contains(netip.MustParseAddr("10.0.0.5")))
	require.False(t, s.Contains(netip.MustParseAddr("10.0.1.5")))
}
