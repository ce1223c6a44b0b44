// Package learner implements the auto-mode IP radix tree: a binary trie
// keyed by the 32 bits of an IPv4 source address (MSB first) that tallies
// client/server observations per address over pass 1 of AUTO mode, assigns
// a role to each observed address at Finalize, and either serves as a
// direct lookup (BRIDGE/CLIENT/SERVER sub-modes) or is collapsed into a
// CIDR set (ROUTER sub-mode) — see pkg/autoclass.
package learner

import (
	"fmt"
	"sync"

	"github.com/netreplay/tcpprep/pkg/cidrset"
)

// RoleType is the inferred role of an observed source address.
type RoleType int

const (
	// Unknown means zero total traffic, or traffic too balanced to call.
	Unknown RoleType = iota
	// Client means the address was classified as a client.
	Client
	// Server means the address was classified as a server.
	Server
)

func (r RoleType) String() string {
	switch r {
	case Client:
		return "CLIENT"
	case Server:
		return "SERVER"
	default:
		return "UNKNOWN"
	}
}

// node is one bit-level position in the trie. Internal nodes (depth < 32)
// hold only children; the node reached after consuming all 32 bits of an
// address is its leaf and carries the observation counters.
type node struct {
	children [2]*node

	isLeaf      bool
	ip          uint32
	clientCount uint64
	serverCount uint64
	typ         RoleType
	maskLen     int
}

// Tree is the learner's radix tree. The zero value is not usable; use New.
type Tree struct {
	mu        sync.Mutex
	root      *node
	finalized bool
}

// New returns an empty learner tree.
func New() *Tree {
	return &Tree{root: &node{}}
}

// Observe records one packet's evidence for srcIP: asClient increments
// client_count (srcIP's packet had a service destination port, so srcIP is
// acting as a client), otherwise server_count is incremented. Safe to call
// concurrently from multiple goroutines during pass 1: counter increments
// are commutative, so observation order never affects the finalized role.
func (t *Tree) Observe(srcIP uint32, asClient bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finalized {
		return fmt.Errorf("learner: cannot observe after Finalize")
	}

	cur := t.root
	for depth := 0; depth < 32; depth++ {
		bit := (srcIP >> (31 - depth)) & 1
		if cur.children[bit] == nil {
			cur.children[bit] = &node{}
		}
		cur = cur.children[bit]
	}
	cur.isLeaf = true
	cur.ip = srcIP
	cur.maskLen = 32
	if asClient {
		cur.clientCount++
	} else {
		cur.serverCount++
	}
	return nil
}

// Classify applies the client/server ratio test to one leaf's counters:
// an address is a SERVER if its server traffic outweighs its client
// traffic by at least ratio, a CLIENT if the reverse holds, and UNKNOWN
// if neither side dominates or no traffic was observed at all. ratio must
// be strictly positive.
func Classify(clientCount, serverCount uint64, ratio float64) RoleType {
	switch {
	case clientCount == 0 && serverCount == 0:
		return Unknown
	case clientCount == 0 && serverCount > 0:
		return Server
	case serverCount == 0 && clientCount > 0:
		return Client
	case float64(serverCount) >= ratio*float64(clientCount):
		return Server
	case float64(clientCount) >= ratio*float64(serverCount):
		return Client
	default:
		return Unknown
	}
}

// Finalize walks every leaf and assigns its RoleType via Classify. After
// Finalize, Observe is forbidden and Lookup/Aggregate become valid — the
// learner must be observed by pass 2 exactly in this finalized state.
func (t *Tree) Finalize(ratio float64) error {
	if ratio <= 0 {
		return fmt.Errorf("learner: ratio must be strictly positive, got %v", ratio)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	finalizeNode(t.root, ratio)
	t.finalized = true
	return nil
}

func finalizeNode(n *node, ratio float64) {
	if n == nil {
		return
	}
	if n.isLeaf {
		n.typ = Classify(n.clientCount, n.serverCount, ratio)
		return
	}
	for _, c := range n.children {
		finalizeNode(c, ratio)
	}
}

// Lookup returns the finalized role of ip, or Unknown if ip was never
// observed. Valid only after Finalize.
func (t *Tree) Lookup(ip uint32) RoleType {
	cur := t.root
	for depth := 0; depth < 32; depth++ {
		bit := (ip >> (31 - depth)) & 1
		cur = cur.children[bit]
		if cur == nil {
			return Unknown
		}
	}
	if !cur.isLeaf {
		return Unknown
	}
	return cur.typ
}

// roleSet summarizes which non-Unknown roles occur among the leaves below
// a node. Unknown leaves carry no evidence either way, so they are
// ignored entirely rather than blocking aggregation of the subtree
// they sit in.
type roleSet struct {
	hasClient bool
	hasServer bool
}

func (n *node) rolesBelow() roleSet {
	if n == nil {
		return roleSet{}
	}
	if n.isLeaf {
		switch n.typ {
		case Server:
			return roleSet{hasServer: true}
		case Client:
			return roleSet{hasClient: true}
		default:
			return roleSet{}
		}
	}
	var rs roleSet
	for _, c := range n.children {
		crs := c.rolesBelow()
		rs.hasClient = rs.hasClient || crs.hasClient
		rs.hasServer = rs.hasServer || crs.hasServer
	}
	return rs
}

// Aggregate collapses the tree into a CIDR set for the ROUTER sub-mode: a
// recursive walk emits one covering prefix per subtree whose leaves are
// uniformly SERVER (once its depth reaches minMask), falls back to
// per-host /32 entries once maxMask is reached without a uniform subtree,
// and otherwise recurses into children. Requires 0 < minMask <= maxMask
// <= 32. Valid only after Finalize.
func (t *Tree) Aggregate(minMask, maxMask int) (*cidrset.Set, error) {
	if !(0 < minMask && minMask <= maxMask && maxMask <= 32) {
		return nil, fmt.Errorf("learner: invalid mask bounds min=%d max=%d", minMask, maxMask)
	}
	out := cidrset.New()
	if err := aggregateNode(t.root, 0, 0, minMask, maxMask, out); err != nil {
		return nil, err
	}
	return out, nil
}

func aggregateNode(n *node, prefix uint32, depth, minMask, maxMask int, out *cidrset.Set) error {
	if n == nil {
		return nil
	}
	if n.isLeaf {
		if n.typ == Server {
			return out.AppendUint32(n.ip, 32)
		}
		return nil
	}

	rs := n.rolesBelow()
	if rs.hasServer && !rs.hasClient && depth >= minMask {
		return out.AppendUint32(prefix, depth)
	}
	if depth >= maxMask {
		return emitServerLeaves(n, out)
	}
	for bit, c := range n.children {
		if c == nil {
			continue
		}
		childPrefix := prefix | (uint32(bit) << uint(31-depth))
		if err := aggregateNode(c, childPrefix, depth+1, minMask, maxMask, out); err != nil {
			return err
		}
	}
	return nil
}

// emitServerLeaves walks past an exhausted max_mask depth down to the
// actual host leaves, emitting a /32 for every SERVER leaf found.
func emitServerLeaves(n *node, out *cidrset.Set) error {
	if n == nil {
		return nil
	}
	if n.isLeaf {
		if n.typ == Server {
			return out.AppendUint32(n.ip, 32)
		}
		return nil
	}
	for _, c := range n.children {
		if err := emitServerLeaves(c, out); err != nil {
			return err
		}
	}
	return nil
}

// LeafCount returns the number of distinct addresses observed, for run
// statistics (cmd/tcpprep --stats).
func (t *Tree) LeafCount() int {
	return countLeaves(t.root)
}

func countLeaves(n *node) int {
	if n == nil {
		return 0
	}
	if n.isLeaf {
		return 1
	}
	total := 0
	for _, c := range n.children {
		total += countLeaves(c)
	}
	return total
}
