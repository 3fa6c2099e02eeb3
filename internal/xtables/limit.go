package xtables

import (
	"fmt"

	"github.com/denniswebb/fwkeeper/internal/netfilter"
)

const (
	limitScale        = 10000
	limitDefaultBurst = 5
)

var rates = []struct {
	name string
	mult uint32
}{
	{"day", limitScale * 24 * 60 * 60},
	{"hour", limitScale * 60 * 60},
	{"min", limitScale * 60},
	{"sec", limitScale},
}

// rate formats an average period in the coarsest unit that keeps it exact
// enough, as libxt_limit does.
func rate(period uint32) string {
	if period == 0 {
		return "inf"
	}
	i := 1
	for ; i < len(rates); i++ {
		if period > rates[i].mult || rates[i].mult/period < rates[i].mult%period {
			break
		}
	}
	return fmt.Sprintf("%d/%s", rates[i-1].mult/period, rates[i-1].name)
}

// limitMatch is struct xt_rateinfo. Only the user-supplied fields are read.
type limitMatch struct{}

func (limitMatch) Name() string    { return "limit" }
func (limitMatch) Revision() uint8 { return 0 }
func (limitMatch) Size() int       { return 8 }

func (limitMatch) Save(_ *netfilter.IPTIP, data []byte) {
	avg, burst := hostOrder.Uint32(data[0:]), hostOrder.Uint32(data[4:])
	fmt.Print(" --limit " + rate(avg))
	if burst != limitDefaultBurst {
		fmt.Printf(" --limit-burst %d", burst)
	}
}
