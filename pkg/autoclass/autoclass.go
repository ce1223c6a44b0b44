// Package autoclass orchestrates AUTO mode's two-pass protocol: pass 1
// feeds evidence into a pkg/learner.Tree, Finalize selects one of two
// pass-2 strategies depending on the configured sub-mode, and pass 2
// classifies each packet's source address through whichever strategy was
// selected.
package autoclass

import (
	"fmt"
	"strings"

	"github.com/netreplay/tcpprep/pkg/cidrset"
	"github.com/netreplay/tcpprep/pkg/decision"
	"github.com/netreplay/tcpprep/pkg/learner"
)

// SubMode selects how pass 2 resolves an address's role.
type SubMode int

const (
	// Bridge uses the tree directly; UNKNOWN addresses default to Primary.
	Bridge SubMode = iota
	// Router aggregates the tree into a CIDR set and matches against it.
	Router
	// Client uses the tree directly; UNKNOWN addresses default to Primary.
	Client
	// Server uses the tree directly; UNKNOWN addresses default to Secondary.
	Server
)

// ParseSubMode parses the --auto-type flag value.
func ParseSubMode(s string) (SubMode, error) {
	switch strings.ToLower(s) {
	case "bridge":
		return Bridge, nil
	case "router":
		return Router, nil
	case "client":
		return Client, nil
	case "server":
		return Server, nil
	default:
		return 0, fmt.Errorf("unrecognized auto-type %q", s)
	}
}

func (m SubMode) String() string {
	switch m {
	case Router:
		return "router"
	case Client:
		return "client"
	case Server:
		return "server"
	default:
		return "bridge"
	}
}

// DefaultRatio is the conventional ratio used when --ratio is not set.
const DefaultRatio = 2.0

// Classifier drives AUTO mode's two passes.
type Classifier struct {
	subMode SubMode
	ratio   float64
	minMask int
	maxMask int

	tree     *learner.Tree
	strategy pass2Strategy
}

// New returns a Classifier ready for pass 1. ratio must be strictly
// positive; minMask/maxMask are only consulted for SubMode Router and
// must satisfy 0 < minMask <= maxMask <= 32.
func New(subMode SubMode, ratio float64, minMask, maxMask int) (*Classifier, error) {
	if ratio <= 0 {
		return nil, fmt.Errorf("auto mode: ratio must be strictly positive, got %v", ratio)
	}
	if subMode == Router {
		if !(0 < minMask && minMask <= maxMask && maxMask <= 32) {
			return nil, fmt.Errorf("auto mode: invalid mask bounds min=%d max=%d", minMask, maxMask)
		}
	}
	return &Classifier{
		subMode: subMode,
		ratio:   ratio,
		minMask: minMask,
		maxMask: maxMask,
		tree:    learner.New(),
	}, nil
}

// SubMode returns the configured sub-mode.
func (c *Classifier) SubMode() SubMode { return c.subMode }

// Observe records pass-1 evidence for one packet's source address.
// asClient should be true when the packet's destination port is a
// service port.
func (c *Classifier) Observe(srcIP uint32, asClient bool) error {
	return c.tree.Observe(srcIP, asClient)
}

// Finalize ends pass 1: it finalizes the learner's leaf roles and builds
// the pass-2 strategy for the configured sub-mode. It must be called
// exactly once, between pass 1 and pass 2.
func (c *Classifier) Finalize() error {
	if err := c.tree.Finalize(c.ratio); err != nil {
		return err
	}

	switch c.subMode {
	case Router:
		set, err := c.tree.Aggregate(c.minMask, c.maxMask)
		if err != nil {
			return err
		}
		c.strategy = cidrStrategy{set: set}
	case Client:
		c.strategy = treeStrategy{tree: c.tree, unknownDefault: decision.Primary}
	case Server:
		c.strategy = treeStrategy{tree: c.tree, unknownDefault: decision.Secondary}
	default: // Bridge
		c.strategy = treeStrategy{tree: c.tree, unknownDefault: decision.Primary}
	}
	return nil
}

// ClassifySource returns the pass-2 side for srcIP. Valid only after
// Finalize.
func (c *Classifier) ClassifySource(srcIP uint32) decision.Side {
	return c.strategy.classify(srcIP)
}

// LeafCount reports how many distinct source addresses pass 1 observed,
// for run statistics.
func (c *Classifier) LeafCount() int {
	return c.tree.LeafCount()
}

// pass2Strategy dispatches how AUTO mode's second pass resolves a source
// address, without a discriminated tagged union.
type pass2Strategy interface {
	classify(srcIP uint32) decision.Side
}

// treeStrategy serves BRIDGE/CLIENT/SERVER sub-modes directly from the
// learner tree.
type treeStrategy struct {
	tree           *learner.Tree
	unknownDefault decision.Side
}

func (s treeStrategy) classify(srcIP uint32) decision.Side {
	switch s.tree.Lookup(srcIP) {
	case learner.Client:
		return decision.Primary
	case learner.Server:
		return decision.Secondary
	default:
		return s.unknownDefault
	}
}

// cidrStrategy serves the ROUTER sub-mode from the aggregated CIDR set.
type cidrStrategy struct {
	set *cidrset.Set
}

func (s cidrStrategy) classify(srcIP uint32) decision.Side {
	if s.set.Contains(cidrset.AddrFromUint32(srcIP)) {
		return decision.Secondary
	}
	return decision.Primary
}
