// Package chunker splits normalized document text into overlapping fixed-size spans.
package chunker

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

// ErrInvalidParams is returned when overlap is not strictly between 0 and size.
var ErrInvalidParams = errors.New("chunker: require 0 < overlap < size")

var (
	trailingSpace = regexp.MustCompile(`[ \t]+\n`)
	blankRuns     = regexp.MustCompile(`\n{3,}`)
)

// Normalize unifies line terminators, strips trailing intra-line whitespace,
// collapses runs of blank lines to one and trims the outer text.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = trailingSpace.ReplaceAllString(text, "\n")
	text = blankRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// Split slides a window of size characters over text, advancing by size-overlap.
// Windows are trimmed and empty ones dropped. The final partial window is
// emitted once and iteration stops.
func Split(text string, size, overlap int) ([]string, error) {
	if overlap <= 0 || overlap >= size {
		return nil, fmt.Errorf("%w: size=%d overlap=%d", ErrInvalidParams, size, overlap)
	}

	runes := []rune(strings.TrimSpace(text))
	n := len(runes)
	if n == 0 {
		return nil, nil
	}

	var out []string
	for start := 0; start < n; {
		end := min(n, start+size)
		if part := strings.TrimSpace(string(runes[start:end])); part != "" {
			out = append(out, part)
		}
		if end == n {
			break
		}
		start = end - overlap
	}
	return out, nil
}

// Chunker turns documents into chunks with fixed parameters.
type Chunker struct {
	size    int
	overlap int
}

// New validates the parameters and returns a Chunker.
func New(size, overlap int) (*Chunker, error) {
	if overlap <= 0 || overlap >= size {
		return nil, fmt.Errorf("%w: size=%d overlap=%d", ErrInvalidParams, size, overlap)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Params reports the chunking configuration for the manifest.
func (c *Chunker) Params() domain.ChunkingParams {
	return domain.ChunkingParams{ChunkChars: c.size, Overlap: c.overlap}
}

// Chunks splits one document. ChunkIDs are 0-based within the document.
func (c *Chunker) Chunks(doc domain.Document) []domain.Chunk {
	parts, _ := Split(doc.Text, c.size, c.overlap) // params validated in New
	chunks := make([]domain.Chunk, len(parts))
	for i, p := range parts {
		chunks[i] = domain.Chunk{Text: p, SourcePath: doc.SourcePath, ChunkID: i}
	}
	return chunks
}
