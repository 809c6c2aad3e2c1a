package ingestion

import (
	"fmt"
	"strings"
)

// Chunk splits text into segments of at most size runes, with overlap runes
// carried over between neighbours so no meaning is lost at a boundary. Cuts
// prefer paragraph breaks, then line breaks, then sentence ends, then word
// gaps; a hard cut mid-word happens only when a window has no boundary at
// all. Empty input yields no chunks and no error.
func Chunk(text string, size, overlap int) ([]string, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap %d must be in [0, size), size %d", overlap, size)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	runes := []rune(text)
	if len(runes) <= size {
		return []string{text}, nil
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + size
		if end >= len(runes) {
			if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
				chunks = append(chunks, tail)
			}
			break
		}

		cut := boundaryCut(runes, start, end)
		if cut <= start {
			cut = end
		}
		piece := strings.TrimSpace(string(runes[start:cut]))
		if piece != "" {
			chunks = append(chunks, piece)
		}

		next := cut - overlap
		if next <= start {
			// Overlap would replay the whole window; move on without it.
			next = cut
		}
		start = next
	}

	return chunks, nil
}

// boundaryCut picks the cut position in (start, end] for the current window,
// trying boundary classes from coarsest to finest. A boundary is only taken
// from the second half of the window so chunks stay near their target size.
func boundaryCut(runes []rune, start, end int) int {
	window := string(runes[start:end])
	minCut := (end - start) / 2

	for _, sep := range []string{"\n\n", "\n", ". ", "! ", "? ", " "} {
		if idx := strings.LastIndex(window, sep); idx >= 0 {
			// Cut after the separator's first rune so sentence punctuation
			// stays with its chunk.
			cut := len([]rune(window[:idx])) + 1
			if sep == "\n\n" || sep == "\n" || sep == " " {
				cut = len([]rune(window[:idx]))
			}
			if cut >= minCut {
				return start + cut
			}
		}
	}
	// No usable boundary: hard character cut.
	return end
}
