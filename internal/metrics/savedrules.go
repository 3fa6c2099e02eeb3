package metrics

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// CountSavedRules returns the number of rule lines in the save file at path.
// Lines may carry leading [packets:bytes] counters. A missing file counts zero.
func CountSavedRules(path string) (int, error) {
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return 0, nil
	}

	file, err := os.Open(cleanPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("open save file %s: %w", cleanPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	count := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "[") {
			if end := strings.IndexByte(line, ']'); end >= 0 {
				line = strings.TrimSpace(line[end+1:])
			}
		}
		if strings.HasPrefix(line, "-A ") {
			count++
		}
	}

	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("scan save file %s: %w", cleanPath, err)
	}

	return count, nil
}
