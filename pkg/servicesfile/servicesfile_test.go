package servicesfile

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	data := `# comment, ignored
ssh   22/tcp
ssh   22/udp
nothing here
http  8080/tcp   # a real server
domain 53/udp
`
	tcpPorts, udpPorts, err := Parse(strings.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, []uint16{22, 8080}, tcpPorts)
	require.Equal(t, []uint16{22, 53}, udpPorts)
}

func TestParseEmpty(t *testing.T) {
	tcpPorts, udpPorts, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	require.Empty(t, tcpPorts)
	require.Empty(t, udpPorts)
}
