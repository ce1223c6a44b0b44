// Command tcpprep preprocesses a captured pcap file into a replay cache:
// for each frame it decides whether a replay tool should send it and, if
// so, to which side of the replay (primary or secondary), across one of
// four classification modes (auto, cidr, port, regex).
package main

import (
	"fmt"
	"os"

	"github.com/netreplay/tcpprep/cmd/tcpprep/cmd"
	"github.com/netreplay/tcpprep/internal/apperr"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "tcpprep:", err)
		os.Exit(apperr.ExitCode(err))
	}
}
