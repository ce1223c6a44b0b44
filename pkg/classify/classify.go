// Package classify implements the classification driver: the decision
// procedure that assigns each packet to {primary, secondary, skip} under
// one interface across the four classification modes. The gate
// (pkg/gate) runs before any of this; a packet that fails it never
// reaches a Classifier.
package classify

import (
	"fmt"
	"regexp"

	"github.com/netreplay/tcpprep/pkg/autoclass"
	"github.com/netreplay/tcpprep/pkg/cidrset"
	"github.com/netreplay/tcpprep/pkg/decision"
	"github.com/netreplay/tcpprep/pkg/packet"
	"github.com/netreplay/tcpprep/pkg/ports"
)

// Mode is the top-level classification mode.
type Mode int

const (
	// Regex classifies by a pattern over the source address's dotted-quad text.
	Regex Mode = iota
	// CIDR classifies by source address CIDR membership.
	CIDR
	// Port classifies by destination port against the service-port table.
	Port
	// Auto learns roles from a first pass and labels on a second.
	Auto
)

func (m Mode) String() string {
	switch m {
	case Regex:
		return "regex"
	case CIDR:
		return "cidr"
	case Port:
		return "port"
	default:
		return "auto"
	}
}

// Classifier is the common interface all four modes implement, so the
// driver loop (pkg/engine) does not need a type switch per packet.
type Classifier interface {
	Mode() Mode
	// NeedsLearningPass reports whether pass 1 must run before Classify
	// can be called; true only for Auto.
	NeedsLearningPass() bool
	// Observe records pass-1 evidence. A no-op for every mode but Auto.
	Observe(rec packet.Record) error
	// Finalize ends pass 1 and prepares pass 2. A no-op for every mode
	// but Auto, where it must be called exactly once between passes.
	Finalize() error
	// Classify returns the decision for rec during the single pass (or
	// pass 2, for Auto).
	Classify(rec packet.Record) decision.Decision
}

// noopPassMixin implements the pass-1/Finalize no-ops shared by the three
// single-pass modes.
type noopPassMixin struct{}

func (noopPassMixin) NeedsLearningPass() bool       { return false }
func (noopPassMixin) Observe(_ packet.Record) error { return nil }
func (noopPassMixin) Finalize() error               { return nil }

// --- REGEX mode ---

type regexClassifier struct {
	noopPassMixin
	pattern   *regexp.Regexp
	nonIPSide decision.Side
}

// NewRegex compiles pattern and returns a REGEX-mode Classifier. Matching
// is evaluated against the source address's dotted-quad text only, never
// the destination.
func NewRegex(pattern string, nonIPSide decision.Side) (Classifier, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex %q: %w", pattern, err)
	}
	return &regexClassifier{pattern: re, nonIPSide: nonIPSide}, nil
}

func (c *regexClassifier) Mode() Mode { return Regex }

func (c *regexClassifier) Classify(rec packet.Record) decision.Decision {
	if !rec.IsIPv4() {
		return decision.Decision{Send: true, Side: c.nonIPSide}
	}
	if c.pattern.MatchString(rec.IPv4.Src.String()) {
		return decision.Decision{Send: true, Side: decision.Secondary}
	}
	return decision.Decision{Send: true, Side: decision.Primary}
}

// --- CIDR mode ---

type cidrClassifier struct {
	noopPassMixin
	set       *cidrset.Set
	nonIPSide decision.Side
}

// NewCIDR returns a CIDR-mode Classifier over set.
func NewCIDR(set *cidrset.Set, nonIPSide decision.Side) Classifier {
	return &cidrClassifier{set: set, nonIPSide: nonIPSide}
}

func (c *cidrClassifier) Mode() Mode { return CIDR }

func (c *cidrClassifier) Classify(rec packet.Record) decision.Decision {
	if !rec.IsIPv4() {
		return decision.Decision{Send: true, Side: c.nonIPSide}
	}
	if c.set.Contains(rec.IPv4.Src) {
		return decision.Decision{Send: true, Side: decision.Secondary}
	}
	return decision.Decision{Send: true, Side: decision.Primary}
}

// --- PORT mode ---

type portClassifier struct {
	noopPassMixin
	table     *ports.Table
	nonIPSide decision.Side
}

// NewPort returns a PORT-mode Classifier over table.
func NewPort(table *ports.Table, nonIPSide decision.Side) Classifier {
	return &portClassifier{table: table, nonIPSide: nonIPSide}
}

func (c *portClassifier) Mode() Mode { return Port }

func (c *portClassifier) Classify(rec packet.Record) decision.Decision {
	if !rec.IsIPv4() {
		return decision.Decision{Send: true, Side: c.nonIPSide}
	}
	if !rec.HasL4Port {
		return decision.Decision{Send: true, Side: c.nonIPSide}
	}
	if c.table.IsServerPort(l4Protocol(rec), rec.DstPort) {
		return decision.Decision{Send: true, Side: decision.Secondary}
	}
	return decision.Decision{Send: true, Side: decision.Primary}
}

func l4Protocol(rec packet.Record) ports.Protocol {
	if rec.IPv4.Protocol == packet.ProtoUDP {
		return ports.UDP
	}
	return ports.TCP
}

// --- AUTO mode ---

type autoDriver struct {
	classifier *autoclass.Classifier
	table      *ports.Table
	nonIPSide  decision.Side
}

// NewAuto returns an AUTO-mode Classifier. table supplies the service-port
// inversion pass 1 uses to decide client-vs-server evidence.
func NewAuto(classifier *autoclass.Classifier, table *ports.Table, nonIPSide decision.Side) Classifier {
	return &autoDriver{classifier: classifier, table: table, nonIPSide: nonIPSide}
}

func (c *autoDriver) Mode() Mode             { return Auto }
func (c *autoDriver) NeedsLearningPass() bool { return true }

func (c *autoDriver) Observe(rec packet.Record) error {
	if !rec.IsIPv4() || !rec.HasL4Port {
		return nil
	}
	asClient := c.table.IsServerPort(l4Protocol(rec), rec.DstPort)
	return c.classifier.Observe(srcToUint32(rec), asClient)
}

func (c *autoDriver) Finalize() error {
	return c.classifier.Finalize()
}

// LeafCount exposes the learner's leaf count for run statistics (see
// pkg/engine's optional leafCounter interface).
func (c *autoDriver) LeafCount() int {
	return c.classifier.LeafCount()
}

func (c *autoDriver) Classify(rec packet.Record) decision.Decision {
	if !rec.IsIPv4() {
		return decision.Decision{Send: true, Side: c.nonIPSide}
	}
	side := c.classifier.ClassifySource(srcToUint32(rec))
	return decision.Decision{Send: true, Side: side}
}

func srcToUint32(rec packet.Record) uint32 {
	a4 := rec.IPv4.Src.As4()
	return uint32(a4[0])<<24 | uint32(a4[1])<<16 | uint32(a4[2])<<8 | uint32(a4[3])
}
