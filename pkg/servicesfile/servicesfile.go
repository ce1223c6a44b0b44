// Package servicesfile parses /etc/services-style text into the port
// lists used to populate pkg/ports.Table.
package servicesfile

import (
	"bufio"
	"io"
	"strconv"

	"regexp"
)

// lineValue is one (port, "tcp"|"udp") match extracted from a line.
type lineValue struct {
	Port  uint16
	Proto string
}

// pattern matches "PORT/tcp" or "PORT/udp" anywhere in a line. Lines that
// do not match are ignored silently.
var pattern = regexp.MustCompile(`([0-9]+)/(tcp|udp)`)

// Parse reads a services file and returns the set of ports found for each
// protocol, in the order they were encountered.
func Parse(r io.Reader) (tcpPorts, udpPorts []uint16, err error) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lv, ok := parseLine(sc.Text())
		if !ok {
			continue
		}
		if lv.Proto == "udp" {
			udpPorts = append(udpPorts, lv.Port)
		} else {
			tcpPorts = append(tcpPorts, lv.Port)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, nil, err
	}
	return tcpPorts, udpPorts, nil
}

func parseLine(line string) (lineValue, bool) {
	m := pattern.FindStringSubmatch(line)
	if m == nil {
		return lineValue{}, false
	}
	port, err := strconv.ParseUint(m[1], 10, 16)
	if err != nil {
		return lineValue{}, false
	}
	return lineValue{Port: uint16(port), Proto: m[2]}, true
}
