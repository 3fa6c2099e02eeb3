package netfilter

import (
	"bufio"
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// DefaultTablesFile is the kernel listing of loaded ip_tables tables.
const DefaultTablesFile = "/proc/net/ip_tables_names"

// ListTables returns the table names in the kernel listing at path, one per
// line, in file order. A final line without a newline is malformed; it is
// logged and kept.
func ListTables(path string, logger *slog.Logger) ([]string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read table names: %w", err)
	}

	if len(data) > 0 && !bytes.HasSuffix(data, []byte("\n")) {
		logger.Warn("badly formed table name listing", slog.String("path", path), slog.String("last", lastLine(data)))
	}

	var names []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		name := strings.TrimSpace(scanner.Text())
		if name == "" {
			continue
		}
		if len(name) >= XT_TABLE_MAXNAMELEN {
			logger.Warn("skipping overlong table name", slog.String("table", name))
			continue
		}
		names = append(names, name)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan table names: %w", err)
	}
	return names, nil
}

func lastLine(data []byte) string {
	if i := bytes.LastIndexByte(data, '\n'); i >= 0 {
		data = data[i+1:]
	}
	return string(data)
}
