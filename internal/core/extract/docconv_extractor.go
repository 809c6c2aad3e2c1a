package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"code.sajari.com/docconv"

	"diploma-rag/internal/core"
)

var _ core.Extractor = (*DocconvExtractor)(nil)

var docconvMIMETypes = map[string]string{
	"pdf":  "application/pdf",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// DocconvExtractor extracts plain text locally: docconv for PDF/DOCX, raw
// bytes for CSV and plain text.
type DocconvExtractor struct {
	useReadability bool
}

func NewDocconvExtractor(useReadability bool) *DocconvExtractor {
	return &DocconvExtractor{useReadability: useReadability}
}

func (e *DocconvExtractor) Extract(ctx context.Context, data []byte, ext string) (string, error) {
	ext = strings.ToLower(ext)

	switch ext {
	case "csv", "txt":
		return Preprocess(string(data)), nil
	}

	mime, ok := docconvMIMETypes[ext]
	if !ok {
		return "", fmt.Errorf("extract: unsupported file type %q", ext)
	}

	res, err := docconv.Convert(bytes.NewReader(data), mime, e.useReadability)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", ext, err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return Preprocess(res.Body), nil
}

// Preprocess normalizes raw extracted content: blank lines dropped, each line
// trimmed, lines rejoined so downstream chunking sees clean boundaries.
func Preprocess(raw string) string {
	lines := strings.Split(raw, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		cleaned = append(cleaned, line)
	}
	return strings.Join(cleaned, "\n")
}
