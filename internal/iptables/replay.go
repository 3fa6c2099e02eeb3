package iptables

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
)

// Replayer loads parsed tables into the kernel through the iptables binary.
type Replayer struct {
	executor Executor
	logger   *slog.Logger
}

// NewReplayer returns a Replayer running commands with executor.
func NewReplayer(executor Executor, logger *slog.Logger) *Replayer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Replayer{executor: executor, logger: logger}
}

// Replay declares the chains of table and appends its rules in order. User
// chains are created or flushed, built-in chains get their policy. Rules
// with saved counters are appended with -c.
func (r *Replayer) Replay(ctx context.Context, table *SavedTable) error {
	for _, chain := range table.Chains {
		if chain.Builtin() {
			if err := SetPolicy(ctx, r.executor, table.Name, chain.Name, chain.Policy, r.logger); err != nil {
				return err
			}
			continue
		}
		if err := EnsureChain(ctx, r.executor, table.Name, chain.Name, r.logger); err != nil {
			return err
		}
	}

	for i, rule := range table.Rules {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.executor.Run(ctx, ipv4Binary, appendArgs(table.Name, rule)...); err != nil {
			return fmt.Errorf("append rule %d to %s: %w", i+1, rule.Chain, err)
		}
	}

	r.logger.Info("replayed table",
		slog.String("table", table.Name),
		slog.Int("chains", len(table.Chains)),
		slog.Int("rules", len(table.Rules)),
	)
	return nil
}

func appendArgs(table string, rule SavedRule) []string {
	args := []string{"-w", waitSeconds, "-t", table, "-A", rule.Chain}
	args = append(args, rule.Args...)
	if rule.Counters != nil {
		args = append(args, "-c",
			strconv.FormatUint(rule.Counters.Packets, 10),
			strconv.FormatUint(rule.Counters.Bytes, 10))
	}
	return args
}
