// Package detect identifies document formats and parses raw files into the
// structured shapes the routing pipeline consumes.
package detect

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// Format is a detected document format.
type Format string

const (
	FormatPDF     Format = "pdf"
	FormatJSON    Format = "json"
	FormatEmail   Format = "email"
	FormatUnknown Format = "unknown"
)

// sniffLimit bounds content-based detection reads.
const sniffLimit = 1000

// DetectFormat determines a file's format from its extension first, falling
// back to content sniffing when the extension is absent or misleading.
func DetectFormat(path string) Format {
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".pdf":
		return FormatPDF
	case ".json":
		if data, err := os.ReadFile(path); err == nil && json.Valid(data) {
			return FormatJSON
		}
	case ".eml", ".txt":
		if data, err := os.ReadFile(path); err == nil && looksLikeEmail(data) {
			return FormatEmail
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return FormatUnknown
	}
	head := data
	if len(head) > sniffLimit {
		head = head[:sniffLimit]
	}

	trimmed := bytes.TrimSpace(head)
	if len(trimmed) > 0 && trimmed[0] == '{' && json.Valid(bytes.TrimSpace(data)) {
		return FormatJSON
	}
	if looksLikeEmail(head) {
		return FormatEmail
	}
	if bytes.HasPrefix(data, []byte("%PDF-")) {
		return FormatPDF
	}
	return FormatUnknown
}

// looksLikeEmail applies the header heuristic: a From line plus either a
// Subject or a To line.
func looksLikeEmail(data []byte) bool {
	s := string(data)
	return strings.Contains(s, "From:") && (strings.Contains(s, "Subject:") || strings.Contains(s, "To:"))
}
