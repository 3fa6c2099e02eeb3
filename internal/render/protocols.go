package render

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// DefaultProtocolsFile is the system protocol database.
const DefaultProtocolsFile = "/etc/protocols"

// chainProtos are the names iptables knows without a protocol database.
var chainProtos = map[uint16]string{
	1:   "icmp",
	6:   "tcp",
	17:  "udp",
	50:  "esp",
	51:  "ah",
	58:  "icmpv6",
	132: "sctp",
	135: "mh",
	136: "udplite",
}

// Protocols maps IP protocol numbers to names.
type Protocols struct {
	names map[uint16]string
}

// LoadProtocols parses a protocols(5) file. The first name listed for a
// number wins.
func LoadProtocols(path string) (*Protocols, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open protocols: %w", err)
	}
	defer f.Close()

	p := &Protocols{names: map[uint16]string{}}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line, _, _ := strings.Cut(scanner.Text(), "#")
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		num, err := strconv.ParseUint(fields[1], 10, 8)
		if err != nil {
			continue
		}
		if _, ok := p.names[uint16(num)]; !ok {
			p.names[uint16(num)] = fields[0]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read protocols: %w", err)
	}
	return p, nil
}

var systemProtocols = sync.OnceValue(func() *Protocols {
	p, err := LoadProtocols(DefaultProtocolsFile)
	if err != nil {
		return &Protocols{}
	}
	return p
})

// SystemProtocols returns the protocols of /etc/protocols, loaded once. An
// unreadable database leaves only the built-in names.
func SystemProtocols() *Protocols {
	return systemProtocols()
}

// Name returns the protocol name for num: from the database, then the
// built-in table, else the decimal number.
func (p *Protocols) Name(num uint16) string {
	if p != nil {
		if name, ok := p.names[num]; ok {
			return name
		}
	}
	if name, ok := chainProtos[num]; ok {
		return name
	}
	return strconv.Itoa(int(num))
}
