// Package extract pulls plain text out of uploaded health-record attachments
// so their contents can be indexed next to the record's own description.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// MaxFileSize is the largest attachment read, matching the upload limit.
const MaxFileSize = 10 << 20

// ErrUnsupported is returned for attachment types that carry no extractable
// text, such as scanned images.
var ErrUnsupported = errors.New("extract: unsupported file type")

// File reads the attachment at path and returns its text with surrounding
// whitespace trimmed. An attachment with no text yields "" and a nil error.
func File(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("extract: %w", err)
	}
	if info.Size() > MaxFileSize {
		return "", fmt.Errorf("extract: %s is %d bytes, limit is %d", filepath.Base(path), info.Size(), MaxFileSize)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("extract: read file: %w", err)
	}
	return Bytes(content, strings.ToLower(filepath.Ext(path)))
}

// Bytes extracts text from content based on ext, which includes the leading
// dot (".pdf").
func Bytes(content []byte, ext string) (string, error) {
	var (
		text string
		err  error
	)
	switch ext {
	case ".pdf":
		text, err = extractPDF(content)
	case ".txt", ".md", ".csv":
		text = extractPlain(content)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupported, ext)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// extractPlain returns content as a string, replacing invalid UTF-8.
func extractPlain(content []byte) string {
	if !utf8.Valid(content) {
		return strings.ToValidUTF8(string(content), "�")
	}
	return string(content)
}
