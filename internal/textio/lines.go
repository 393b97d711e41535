// Package textio loads and normalizes input texts for synthesis.
package textio

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Scanner buffer sizing: individual lines can be long when callers feed
// whole paragraphs, so grow the limit well past bufio's default.
const (
	initialScanBuffer = 64 * 1024
	maxScanBuffer     = 1024 * 1024
)

// ReadLines reads UTF-8 text from the reader and returns its lines with
// surrounding whitespace trimmed. Blank lines are dropped.
func ReadLines(reader io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, initialScanBuffer), maxScanBuffer)

	var lines []string

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		lines = append(lines, line)
	}

	err := scanner.Err()
	if err != nil {
		return nil, fmt.Errorf("failed to scan input: %w", err)
	}

	return lines, nil
}

// ReadLinesFile reads the non-blank trimmed lines of a text file.
func ReadLinesFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open text file: %w", err)
	}

	defer func() { _ = file.Close() }()

	lines, err := ReadLines(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return lines, nil
}
