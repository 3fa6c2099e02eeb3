package render

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/denniswebb/fwkeeper/internal/clock"
	"github.com/denniswebb/fwkeeper/internal/netfilter"
)

// Walker renders whole tables read from the kernel.
type Walker struct {
	Kernel   netfilter.Kernel
	Loader   netfilter.ModuleLoader
	Renderer *Renderer
	Clock    clock.Clock
	// Tool is the program name written in the "# Generated by" header.
	Tool   string
	Logger *slog.Logger
}

// RenderTable reads the named table, retrying once after loading the kernel
// module, and renders it. The table is read fresh on every call.
func (w *Walker) RenderTable(ctx context.Context, name string) ([]byte, error) {
	table, err := netfilter.OpenWithRetry(ctx, w.Kernel, w.Loader, name, w.logger())
	if err != nil {
		return nil, err
	}
	return w.Render(table)
}

// Render produces the save block of table. Any rule that cannot be rendered
// fails the whole block.
func (w *Walker) Render(table *netfilter.Table) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# Generated by %s on %s", w.Tool, clock.Ctime(w.now()))
	fmt.Fprintf(&buf, "*%s\n", table.Name)

	for _, c := range table.Chains {
		if c.Builtin() {
			fmt.Fprintf(&buf, ":%s %s [%d:%d]\n", c.Name, c.Policy, c.Counters.Packets, c.Counters.Bytes)
		} else {
			fmt.Fprintf(&buf, ":%s - [0:0]\n", c.Name)
		}
	}

	rules := 0
	for _, c := range table.Chains {
		for i, rule := range c.Rules {
			line, err := w.Renderer.Rule(rule, c.Name, CountersLeading)
			if err != nil {
				return nil, fmt.Errorf("table %s chain %s rule %d: %w", table.Name, c.Name, i+1, err)
			}
			buf.WriteString(line)
			buf.WriteByte('\n')
			rules++
		}
	}

	buf.WriteString("COMMIT\n")
	fmt.Fprintf(&buf, "# Completed on %s", clock.Ctime(w.now()))

	w.logger().Debug("rendered table", slog.String("table", table.Name), slog.Int("chains", len(table.Chains)), slog.Int("rules", rules))
	return buf.Bytes(), nil
}

func (w *Walker) now() time.Time {
	if w.Clock == nil {
		return time.Now()
	}
	return w.Clock.Now()
}

func (w *Walker) logger() *slog.Logger {
	if w.Logger == nil {
		return slog.Default()
	}
	return w.Logger
}
