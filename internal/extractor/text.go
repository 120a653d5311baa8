// Package extractor turns statement files into the ordered text lines the
// parser reads.
package extractor

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// maxLineSize bounds a single line; layout output rarely exceeds 300 columns.
const maxLineSize = 1 << 20

// ReadLines reads line-delimited text. Input that is not valid UTF-8 is
// decoded as Latin-1, the encoding older pdftotext builds default to.
func ReadLines(r io.Reader) ([]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read text: %w", err)
	}
	if !utf8.Valid(data) {
		data, err = charmap.ISO8859_1.NewDecoder().Bytes(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode Latin-1 text: %w", err)
		}
	}

	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		lines = append(lines, strings.TrimRight(sc.Text(), "\r"))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to split lines: %w", err)
	}
	return lines, nil
}

// Supported reports whether path has an extension ExtractLines handles.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".pdf":
		return true
	}
	return false
}

// ExtractLines returns the lines of a .txt or .pdf statement.
func ExtractLines(ctx context.Context, path string) ([]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return ReadLines(f)
	case ".pdf":
		return PDF{}.Lines(ctx, path)
	default:
		return nil, fmt.Errorf("unsupported file type %q (want .txt or .pdf)", filepath.Ext(path))
	}
}
