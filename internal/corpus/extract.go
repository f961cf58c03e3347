package corpus

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"rsc.io/pdf"
)

var supportedExtensions = map[string]struct{}{
	".txt":  {},
	".md":   {},
	".csv":  {},
	".json": {},
	".pdf":  {},
}

func SupportedExtension(filename string) bool {
	_, ok := supportedExtensions[normalizeExtension(filename)]
	return ok
}

// FileType returns the stored type label for a filename, "txt" for
// "report.txt" and so on.
func FileType(filename string) string {
	return strings.TrimPrefix(normalizeExtension(filename), ".")
}

func normalizeExtension(filename string) string {
	return strings.ToLower(filepath.Ext(strings.TrimSpace(filename)))
}

// ExtractFile reads a stored upload and returns its plain text.
func ExtractFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return ExtractBytes(filepath.Base(path), data)
}

func ExtractBytes(filename string, data []byte) (string, error) {
	switch normalizeExtension(filename) {
	case ".txt", ".md", ".csv":
		return normalizeText(string(data)), nil
	case ".json":
		return extractJSON(data), nil
	case ".pdf":
		return extractPDF(data)
	default:
		return "", fmt.Errorf("unsupported file type %q", normalizeExtension(filename))
	}
}

func extractJSON(data []byte) string {
	if !json.Valid(data) {
		return normalizeText(string(data))
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		return normalizeText(string(data))
	}
	return normalizeText(pretty.String())
}

func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	var builder strings.Builder
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		for _, item := range page.Content().Text {
			piece := strings.TrimSpace(item.S)
			if piece == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteByte('\n')
			}
			builder.WriteString(piece)
		}
	}

	text := normalizeText(builder.String())
	if text == "" {
		return "", fmt.Errorf("pdf contains no extractable text")
	}
	return text, nil
}
