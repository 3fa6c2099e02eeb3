package xtables

import (
	"fmt"

	"github.com/denniswebb/fwkeeper/internal/netfilter"
)

const (
	logDefaultLevel = 4
	logPrefixLen    = 30
)

var logFlags = []struct {
	flag   uint8
	option string
}{
	{0x01, "--log-tcp-sequence"},
	{0x02, "--log-tcp-options"},
	{0x04, "--log-ip-options"},
	{0x08, "--log-uid"},
	{0x20, "--log-macdecode"},
}

// logTarget is struct ipt_log_info.
type logTarget struct{}

func (logTarget) Name() string    { return "LOG" }
func (logTarget) Revision() uint8 { return 0 }
func (logTarget) Size() int       { return 2 + logPrefixLen }

func (logTarget) Save(_ *netfilter.IPTIP, data []byte) {
	level, flags := data[0], data[1]
	if prefix := cString(data[2 : 2+logPrefixLen]); prefix != "" {
		fmt.Print(" --log-prefix")
		saveString(prefix)
	}
	if level != logDefaultLevel {
		fmt.Printf(" --log-level %d", level)
	}
	for _, f := range logFlags {
		if flags&f.flag != 0 {
			fmt.Print(" " + f.option)
		}
	}
}

var rejectWith = []string{
	"icmp-net-unreachable",
	"icmp-host-unreachable",
	"icmp-proto-unreachable",
	"icmp-port-unreachable",
	"icmp-echo-reply",
	"icmp-net-prohibited",
	"icmp-host-prohibited",
	"tcp-reset",
	"icmp-admin-prohibited",
}

// rejectTarget is struct ipt_reject_info.
type rejectTarget struct{}

func (rejectTarget) Name() string    { return "REJECT" }
func (rejectTarget) Revision() uint8 { return 0 }
func (rejectTarget) Size() int       { return 4 }

func (rejectTarget) Save(_ *netfilter.IPTIP, data []byte) {
	with := hostOrder.Uint32(data)
	if int(with) < len(rejectWith) {
		fmt.Print(" --reject-with " + rejectWith[with])
		return
	}
	fmt.Printf(" --reject-with %d", with)
}
