// Package ports implements the service-port table: two 65536-bit vectors
// (one per transport protocol) marking which destination ports are
// conventionally served by long-running processes. It backs PORT-mode
// classification and the AUTO-mode learner's client/server inversion
// (see pkg/learner).
package ports

import (
	"fmt"
	"io"
	"os"

	"github.com/netreplay/tcpprep/pkg/servicesfile"
)

// Protocol identifies the transport protocol a port bitmap belongs to.
type Protocol int

const (
	// TCP selects the TCP bitmap.
	TCP Protocol = iota
	// UDP selects the UDP bitmap.
	UDP
)

func (p Protocol) String() string {
	if p == UDP {
		return "udp"
	}
	return "tcp"
}

const (
	// DefaultLowServerPort is the low bound of the default server-port
	// range (inclusive).
	DefaultLowServerPort = 0
	// DefaultHighServerPort is the high bound of the default server-port
	// range (inclusive), conventionally the end of the well-known range.
	DefaultHighServerPort = 1023

	numPorts = 1 << 16
	numWords = numPorts / 64
)

// Table holds the TCP and UDP service-port bitmaps.
type Table struct {
	tcp [numWords]uint64
	udp [numWords]uint64
}

// New returns a Table initialized to the default server-port range.
func New() *Table {
	t := &Table{}
	t.ResetAllToDefaultRange()
	return t
}

func (t *Table) bitmap(proto Protocol) *[numWords]uint64 {
	if proto == UDP {
		return &t.udp
	}
	return &t.tcp
}

// IsServerPort reports whether port is marked as a service port for proto.
func (t *Table) IsServerPort(proto Protocol, port uint16) bool {
	bm := t.bitmap(proto)
	word, bit := port/64, port%64
	return bm[word]&(uint64(1)<<bit) != 0
}

// Set marks or clears port as a service port for proto.
func (t *Table) Set(proto Protocol, port uint16, on bool) {
	bm := t.bitmap(proto)
	word, bit := port/64, port%64
	if on {
		bm[word] |= uint64(1) << bit
	} else {
		bm[word] &^= uint64(1) << bit
	}
}

// ResetAllToDefaultRange clears both bitmaps and sets the default
// [DefaultLowServerPort, DefaultHighServerPort] range on each.
func (t *Table) ResetAllToDefaultRange() {
	t.tcp = [numWords]uint64{}
	t.udp = [numWords]uint64{}
	for port := DefaultLowServerPort; port <= DefaultHighServerPort; port++ {
		t.Set(TCP, uint16(port), true)
		t.Set(UDP, uint16(port), true)
	}
}

// LoadFromServicesFile clears both bitmaps and repopulates them from an
// /etc/services-style file, via pkg/servicesfile. Lines that do not match
// the PORT/proto pattern are ignored silently.
func (t *Table) LoadFromServicesFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open services file %s: %w", path, err)
	}
	defer f.Close()
	return t.loadFromServices(f)
}

func (t *Table) loadFromServices(r io.Reader) error {
	tcpPorts, udpPorts, err := servicesfile.Parse(r)
	if err != nil {
		return err
	}
	t.tcp = [numWords]uint64{}
	t.udp = [numWords]uint64{}
	for _, p := range tcpPorts {
		t.Set(TCP, p, true)
	}
	for _, p := range udpPorts {
		t.Set(UDP, p, true)
	}
	return nil
}
