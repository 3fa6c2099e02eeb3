package iptables

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	shlex "github.com/anmitsu/go-shlex"
)

// ErrSyntax reports a line that does not follow the iptables-save format.
var ErrSyntax = errors.New("save file syntax error")

// ParseSave parses iptables-save output into tables in file order. Rule
// lines may carry leading [packets:bytes] counters; arguments are split
// shell style, so quoted comments come back unquoted.
func ParseSave(r io.Reader) ([]*SavedTable, error) {
	var (
		tables  []*SavedTable
		current *SavedTable
		lineNo  int
	)

	fail := func(format string, args ...any) error {
		return fmt.Errorf("%w: line %d: %s", ErrSyntax, lineNo, fmt.Sprintf(format, args...))
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "" || strings.HasPrefix(line, "#"):
			continue

		// Table declaration: *filter
		case strings.HasPrefix(line, "*"):
			if current != nil {
				return nil, fail("table %s not committed before %s", current.Name, line)
			}
			name := strings.TrimPrefix(line, "*")
			if name == "" {
				return nil, fail("empty table name")
			}
			current = &SavedTable{Name: name}

		case line == "COMMIT":
			if current == nil {
				return nil, fail("COMMIT outside a table")
			}
			tables = append(tables, current)
			current = nil

		// Chain declaration: :INPUT ACCEPT [100:5000]
		case strings.HasPrefix(line, ":"):
			if current == nil {
				return nil, fail("chain declared outside a table")
			}
			chain, err := parseChainDeclaration(strings.TrimPrefix(line, ":"))
			if err != nil {
				return nil, fail("%v", err)
			}
			if _, dup := current.Chain(chain.Name); dup {
				return nil, fail("chain %s declared twice", chain.Name)
			}
			current.Chains = append(current.Chains, chain)

		default:
			if current == nil {
				return nil, fail("rule outside a table")
			}
			rule, err := parseRuleLine(line)
			if err != nil {
				return nil, fail("%v", err)
			}
			if _, ok := current.Chain(rule.Chain); !ok {
				return nil, fail("rule for undeclared chain %s", rule.Chain)
			}
			current.Rules = append(current.Rules, rule)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read save file: %w", err)
	}
	if current != nil {
		return nil, fmt.Errorf("%w: table %s has no COMMIT", ErrSyntax, current.Name)
	}
	return tables, nil
}

func parseChainDeclaration(s string) (SavedChain, error) {
	parts := strings.Fields(s)
	if len(parts) < 2 || len(parts) > 3 {
		return SavedChain{}, fmt.Errorf("malformed chain declaration %q", s)
	}
	chain := SavedChain{Name: parts[0], Policy: parts[1]}
	if len(parts) == 3 {
		counters, err := parseCounters(parts[2])
		if err != nil {
			return SavedChain{}, err
		}
		chain.Counters = counters
	}
	return chain, nil
}

func parseRuleLine(line string) (SavedRule, error) {
	var rule SavedRule
	if strings.HasPrefix(line, "[") {
		end := strings.IndexByte(line, ']')
		if end < 0 {
			return SavedRule{}, fmt.Errorf("unterminated counters in %q", line)
		}
		counters, err := parseCounters(line[:end+1])
		if err != nil {
			return SavedRule{}, err
		}
		rule.Counters = &counters
		line = strings.TrimSpace(line[end+1:])
	}

	args, err := shlex.Split(line, true)
	if err != nil {
		return SavedRule{}, fmt.Errorf("split rule: %w", err)
	}
	if len(args) < 2 || args[0] != "-A" {
		return SavedRule{}, fmt.Errorf("expected -A <chain>, got %q", line)
	}
	rule.Chain = args[1]
	rule.Args = args[2:]
	return rule, nil
}

func parseCounters(s string) (Counters, error) {
	inner, ok := strings.CutPrefix(s, "[")
	if ok {
		inner, ok = strings.CutSuffix(inner, "]")
	}
	packets, bytes, found := strings.Cut(inner, ":")
	if !ok || !found {
		return Counters{}, fmt.Errorf("malformed counters %q", s)
	}
	p, err := strconv.ParseUint(packets, 10, 64)
	if err != nil {
		return Counters{}, fmt.Errorf("packet counter %q: %w", packets, err)
	}
	b, err := strconv.ParseUint(bytes, 10, 64)
	if err != nil {
		return Counters{}, fmt.Errorf("byte counter %q: %w", bytes, err)
	}
	return Counters{Packets: p, Bytes: b}, nil
}
