package iptables

import (
	"context"
	"fmt"
	"log/slog"
)

const (
	ipv4Binary = "iptables"

	// waitSeconds is the xtables lock wait passed with -w.
	waitSeconds = "5"
)

// EnsureChain makes chain exist and be empty: an existing chain is flushed,
// a missing one created.
func EnsureChain(ctx context.Context, executor Executor, table string, chain string, logger *slog.Logger) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	exists, err := executor.ChainExists(ctx, table, chain)
	if err != nil {
		return fmt.Errorf("determine chain existence: %w", err)
	}

	if exists {
		logger.Info("flushing existing chain", slog.String("table", table), slog.String("chain", chain))
		if err := executor.Run(ctx, ipv4Binary, "-w", waitSeconds, "-t", table, "-F", chain); err != nil {
			return fmt.Errorf("flush chain %s: %w", chain, err)
		}
		return nil
	}

	logger.Info("creating chain", slog.String("table", table), slog.String("chain", chain))
	if err := executor.Run(ctx, ipv4Binary, "-w", waitSeconds, "-t", table, "-N", chain); err != nil {
		return fmt.Errorf("create chain %s: %w", chain, err)
	}
	return nil
}

// SetPolicy sets the policy of a built-in chain.
func SetPolicy(ctx context.Context, executor Executor, table string, chain string, policy string, logger *slog.Logger) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logger.Debug("setting chain policy", slog.String("table", table), slog.String("chain", chain), slog.String("policy", policy))
	if err := executor.Run(ctx, ipv4Binary, "-w", waitSeconds, "-t", table, "-P", chain, policy); err != nil {
		return fmt.Errorf("set policy of %s: %w", chain, err)
	}
	return nil
}
