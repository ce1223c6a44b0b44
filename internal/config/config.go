// Package config turns parsed CLI flags into an immutable Config value.
// A Config, once validated, is passed by reference through the
// classification driver for the lifetime of one run; only the engine's
// learner and cache builder mutate after that point.
package config

import (
	"fmt"
	"strings"

	"github.com/netreplay/tcpprep/internal/apperr"
	"github.com/netreplay/tcpprep/pkg/autoclass"
	"github.com/netreplay/tcpprep/pkg/cidrset"
	"github.com/netreplay/tcpprep/pkg/classify"
	"github.com/netreplay/tcpprep/pkg/decision"
	"github.com/netreplay/tcpprep/pkg/gate"
	"github.com/netreplay/tcpprep/pkg/packetlist"
)

// Config is the validated, immutable result of one CLI invocation.
type Config struct {
	Mode        classify.Mode
	AutoSubMode autoclass.SubMode
	Ratio       float64
	MinMask     int
	MaxMask     int

	CIDRSet      *cidrset.Set
	RegexPattern string

	InputFile  string
	OutputFile string

	ServicesFile     string
	Comment          string
	PrintCommentFile string

	NonIPSide decision.Side

	Filter *gate.Filter

	LogFormat string
	StatsFile string
}

// Raw mirrors the CLI flag surface before validation. Callers
// (cmd/tcpprep) populate this from cobra/viper and call Validate.
type Raw struct {
	Auto      bool
	AutoType  string
	CIDRList  string
	Port      bool
	RegexPat  string
	Input     string
	Output    string
	Ratio     float64
	MinMask   int
	MaxMask   int
	NonIP     string
	Services  string
	Comment   string
	PrintCmt  string
	Include   string
	Exclude   string
	LogFormat string
	StatsFile string
}

// Validate turns Raw flags into a Config, or a configuration/parse error.
// PrintCmt short-circuits every other check: printing an existing cache's
// comment needs no mode, input, or output selection of its own.
func Validate(r Raw) (*Config, error) {
	if r.PrintCmt != "" {
		return &Config{PrintCommentFile: r.PrintCmt}, nil
	}

	modesSelected := 0
	if r.Auto {
		modesSelected++
	}
	if r.CIDRList != "" {
		modesSelected++
	}
	if r.Port {
		modesSelected++
	}
	if r.RegexPat != "" {
		modesSelected++
	}
	if modesSelected != 1 {
		return nil, fmt.Errorf("%w: exactly one of --auto, --cidr, --port, --regex must be given", apperr.ErrConfig)
	}

	if r.Input == "" || r.Output == "" {
		return nil, fmt.Errorf("%w: --input and --output are required", apperr.ErrConfig)
	}

	if !r.Auto && (r.MinMask != 0 || r.MaxMask != 0) {
		return nil, fmt.Errorf("%w: --min-mask/--max-mask are only valid with --auto", apperr.ErrConfig)
	}

	nonIPSide, err := parseNonIP(r.NonIP)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		RegexPattern:     r.RegexPat,
		InputFile:        r.Input,
		OutputFile:       r.Output,
		ServicesFile:     r.Services,
		Comment:          r.Comment,
		PrintCommentFile: r.PrintCmt,
		NonIPSide:        nonIPSide,
		LogFormat:        r.LogFormat,
		StatsFile:        r.StatsFile,
	}

	switch {
	case r.Auto:
		cfg.Mode = classify.Auto
		subMode, err := autoclass.ParseSubMode(orDefault(r.AutoType, "bridge"))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperr.ErrParse, err)
		}
		cfg.AutoSubMode = subMode

		ratio := r.Ratio
		if ratio == 0 {
			ratio = autoclass.DefaultRatio
		}
		if ratio < 0 {
			return nil, fmt.Errorf("%w: --ratio must not be negative", apperr.ErrConfig)
		}
		cfg.Ratio = ratio

		minMask, maxMask := r.MinMask, r.MaxMask
		if minMask == 0 {
			minMask = 1
		}
		if maxMask == 0 {
			maxMask = 32
		}
		if minMask > maxMask {
			return nil, fmt.Errorf("%w: min-mask > max-mask", apperr.ErrConfig)
		}
		cfg.MinMask, cfg.MaxMask = minMask, maxMask

	case r.CIDRList != "":
		cfg.Mode = classify.CIDR
		set, err := cidrset.Parse(r.CIDRList, ",")
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperr.ErrParse, err)
		}
		cfg.CIDRSet = set
	case r.Port:
		cfg.Mode = classify.Port
	case r.RegexPat != "":
		cfg.Mode = classify.Regex
	}

	filter, err := parseIncludeExclude(r.Include, r.Exclude)
	if err != nil {
		return nil, err
	}
	cfg.Filter = filter

	return cfg, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func parseNonIP(s string) (decision.Side, error) {
	switch strings.ToLower(orDefault(s, "client")) {
	case "client":
		return decision.Primary, nil
	case "server":
		return decision.Secondary, nil
	default:
		return 0, fmt.Errorf("%w: --non-ip must be \"client\" or \"server\", got %q", apperr.ErrConfig, s)
	}
}

func parseIncludeExclude(include, exclude string) (*gate.Filter, error) {
	if include != "" && exclude != "" {
		return nil, fmt.Errorf("%w: --include and --exclude are mutually exclusive", apperr.ErrConfig)
	}
	if include != "" {
		return parseFilterSpec(include, gate.Include)
	}
	if exclude != "" {
		return parseFilterSpec(exclude, gate.Exclude)
	}
	return nil, nil
}

// parseFilterSpec parses one "KIND:rest" filter spec:
// P:list-of-ranges, S:cidr,... (match source), D:cidr,... (match
// destination), B:cidr,... (match either), F:bpf-expression.
func parseFilterSpec(spec string, polarity gate.Polarity) (*gate.Filter, error) {
	idx := strings.IndexByte(spec, ':')
	if idx < 0 {
		return nil, fmt.Errorf("%w: malformed filter spec %q", apperr.ErrConfig, spec)
	}
	kind, rest := spec[:idx], spec[idx+1:]

	switch kind {
	case "P":
		list, err := packetlist.Parse(rest)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperr.ErrParse, err)
		}
		return &gate.Filter{Spec: gate.PacketListSpec{List: list}, Polarity: polarity}, nil
	case "S", "D", "B":
		set, err := cidrset.Parse(rest, ",")
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperr.ErrParse, err)
		}
		match := gate.MatchSource
		if kind == "D" {
			match = gate.MatchDestination
		} else if kind == "B" {
			match = gate.MatchEither
		}
		return &gate.Filter{Spec: gate.CIDRSpec{Set: set, Match: match}, Polarity: polarity}, nil
	case "F":
		return &gate.Filter{Spec: gate.BPFSpec{Expr: rest}, Polarity: polarity}, nil
	default:
		return nil, fmt.Errorf("%w: unrecognized filter spec kind %q", apperr.ErrConfig, kind)
	}
}
