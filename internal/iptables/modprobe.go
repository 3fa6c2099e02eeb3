package iptables

import (
	"context"
	"log/slog"
)

// DefaultModprobe is the module loader binary used when none is configured.
const DefaultModprobe = "/sbin/modprobe"

// ModprobeLoader loads the ip_tables kernel module with modprobe.
type ModprobeLoader struct {
	Executor Executor
	Binary   string
	Logger   *slog.Logger
}

// Load runs modprobe ip_tables.
func (l *ModprobeLoader) Load(ctx context.Context) error {
	binary := l.Binary
	if binary == "" {
		binary = DefaultModprobe
	}
	if l.Logger != nil {
		l.Logger.Info("loading kernel module", slog.String("module", "ip_tables"), slog.String("modprobe", binary))
	}
	return l.Executor.Run(ctx, binary, "ip_tables")
}
