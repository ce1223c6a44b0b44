package config

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/netreplay/tcpprep/pkg/autoclass"
	"github.com/netreplay/tcpprep/pkg/classify"
	"github.com/netreplay/tcpprep/pkg/decision"
	"github.com/netreplay/tcpprep/pkg/gate"
)

func baseRaw() Raw {
	return Raw{Port: true, Input: "in.pcap", Output: "out.cache"}
}

func TestPrintCommentShortCircuits(t *testing.T) {
	cfg, err := Validate(Raw{PrintCmt: "existing.cache"})
	require.NoError(t, err)
	require.Equal(t, "existing.cache", cfg.PrintCommentFile)
}

func TestExactlyOneModeRequired(t *testing.T) {
	_, err := Validate(Raw{Input: "in.pcap", Output: "out.cache"})
	require.Error(t, err)

	r := baseRaw()
	r.Auto = true // now both Port and Auto are set
	_, err = Validate(r)
	require.Error(t, err)
}

func TestInputOutputRequired(t *testing.T) {
	r := baseRaw()
	r.Input = ""
	_, err := Validate(r)
	require.Error(t, err)
}

func TestMaskFlagsRejectedOutsideAuto(t *testing.T) {
	r := baseRaw()
	r.MinMask = 8
	_, err := Validate(r)
	require.Error(t, err)
}

func TestAutoDefaults(t *testing.T) {
	r := Raw{Auto: true, Input: "in.pcap", Output: "out.cache"}
	cfg, err := Validate(r)
	require.NoError(t, err)
	require.Equal(t, classify.Auto, cfg.Mode)
	require.Equal(t, autoclass.Bridge, cfg.AutoSubMode)
	require.Equal(t, autoclass.DefaultRatio, cfg.Ratio)
	require.Equal(t, 1, cfg.MinMask)
	require.Equal(t, 32, cfg.MaxMask)
}

func TestAutoRejectsNegativeRatio(t *testing.T) {
	r := Raw{Auto: true, Input: "in.pcap", Output: "out.cache", Ratio: -1}
	_, err := Validate(r)
	require.Error(t, err)
}

func TestAutoRejectsInvertedMaskBounds(t *testing.T) {
	r := Raw{Auto: true, Input: "in.pcap", Output: "out.cache", MinMask: 24, MaxMask: 8}
	_, err := Validate(r)
	require.Error(t, err)
}

func TestAutoRejectsBadSubMode(t *testing.T) {
	r := Raw{Auto: true, AutoType: "nonsense", Input: "in.pcap", Output: "out.cache"}
	_, err := Validate(r)
	require.Error(t, err)
}

func TestCIDRModeValidatesList(t *testing.T) {
	r := Raw{CIDRList: "not-a-cidr", Input: "in.pcap", Output: "out.cache"}
	_, err := Validate(r)
	require.Error(t, err)

	r.CIDRList = "10.0.0.0/8,192.168.0.0/16"
	cfg, err := Validate(r)
	require.NoError(t, err)
	require.Equal(t, classify.CIDR, cfg.Mode)
	require.NotNil(t, cfg.CIDRSet)
	require.Equal(t, 2, cfg.CIDRSet.Len())
}

func TestNonIPSideParsing(t *testing.T) {
	r := baseRaw()
	r.NonIP = "server"
	cfg, err := Validate(r)
	require.NoError(t, err)
	require.Equal(t, decision.Secondary, cfg.NonIPSide)

	r.NonIP = "bogus"
	_, err = Validate(r)
	require.Error(t, err)
}

func TestIncludeExcludeMutuallyExclusive(t *testing.T) {
	r := baseRaw()
	r.Include = "P:1-10"
	r.Exclude = "P:1-10"
	_, err := Validate(r)
	require.Error(t, err)
}

func TestFilterSpecKinds(t *testing.T) {
	cases := []struct {
		spec      string
		wantMatch func(t *testing.T, f *gate.Filter)
	}{
		{"P:1-10,20", func(t *testing.T, f *gate.Filter) {
			_, ok := f.Spec.(gate.PacketListSpec)
			require.True(t, ok)
		}},
		{"S:10.0.0.0/8", func(t *testing.T, f *gate.Filter) {
			spec, ok := f.Spec.(gate.CIDRSpec)
			require.True(t, ok)
			require.Equal(t, gate.MatchSource, spec.Match)
		}},
		{"D:10.0.0.0/8", func(t *testing.T, f *gate.Filter) {
			spec, ok := f.Spec.(gate.CIDRSpec)
			require.True(t, ok)
			require.Equal(t, gate.MatchDestination, spec.Match)
		}},
		{"B:10.0.0.0/8", func(t *testing.T, f *gate.Filter) {
			spec, ok := f.Spec.(gate.CIDRSpec)
			require.True(t, ok)
			require.Equal(t, gate.MatchEither, spec.Match)
		}},
		{"F:tcp port 80", func(t *testing.T, f *gate.Filter) {
			spec, ok := f.Spec.(gate.BPFSpec)
			require.True(t, ok)
			require.Equal(t, "tcp port 80", spec.Expr)
		}},
	}

	for _, c := range cases {
		r := baseRaw()
		r.Include = c.spec
		cfg, err := Validate(r)
		require.NoError(t, err, c.spec)
		require.Equal(t, gate.Include, cfg.Filter.Polarity)
		c.wantMatch(t, cfg.Filter)
	}
}

func TestMalformedFilterSpecRejected(t *testing.T) {
	r := baseRaw()
	r.Include = "no-colon-here"
	_, err := Validate(r)
	require.Error(t, err)

	r2 := baseRaw()
	r2.Include = "Z:whatever"
	_, err = Validate(r2)
	require.Error(t, err)
}

func TestNoFilterMeansNilFilter(t *testing.T) {
	cfg, err := Validate(baseRaw())
	require.NoError(t, err)
	require.Nil(t, cfg.Filter)
}
