package corpus

import "strings"

const (
	defaultChunkSize    = 1000
	defaultChunkOverlap = 200
)

// Chunker splits extracted text into overlapping windows, preferring to
// cut at paragraph, line, and word boundaries in that order.
type Chunker struct {
	Size    int
	Overlap int
}

func NewChunker(size, overlap int) Chunker {
	if size <= 0 {
		size = defaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = defaultChunkOverlap
		if overlap >= size {
			overlap = size / 5
		}
	}
	return Chunker{Size: size, Overlap: overlap}
}

func (c Chunker) Split(text string) []string {
	normalized := normalizeText(text)
	runes := []rune(normalized)
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= c.Size {
		return []string{normalized}
	}

	chunks := make([]string, 0, len(runes)/c.Size+1)
	start := 0
	for start < len(runes) {
		end := start + c.Size
		if end >= len(runes) {
			if chunk := strings.TrimSpace(string(runes[start:])); chunk != "" {
				chunks = append(chunks, chunk)
			}
			break
		}

		cut, next := boundaryCut(runes, start, end, c.Overlap)
		if chunk := strings.TrimSpace(string(runes[start:cut])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if next <= start {
			next = cut
		}
		start = next
	}
	return chunks
}

// boundaryCut scans backward from end looking for a natural break in the
// second half of the window so overlap never swallows a whole chunk.
// A paragraph break resets without overlap; softer breaks keep it.
func boundaryCut(runes []rune, start, end, overlap int) (cut, next int) {
	floor := start + (end-start)/2

	for i := end - 1; i > floor; i-- {
		if runes[i] == '\n' && runes[i-1] == '\n' {
			return i - 1, i + 1
		}
	}
	for i := end - 1; i > floor; i-- {
		if runes[i] == '\n' {
			return i, i - overlap
		}
	}
	for i := end - 1; i > floor; i-- {
		if runes[i] == ' ' {
			return i, i - overlap
		}
	}
	return end, end - overlap
}

func normalizeText(raw string) string {
	normalized := strings.ReplaceAll(raw, "\r\n", "\n")
	normalized = strings.ToValidUTF8(normalized, "")

	lines := strings.Split(normalized, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
