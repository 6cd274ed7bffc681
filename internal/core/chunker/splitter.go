// Package chunker splits converted text into overlapping bounded-size
// segments, the unit of vector indexing.
package chunker

import (
	"strings"

	"github.com/unboundlabs/unbound/internal/models"
)

// DefaultSeparators is the preference order for split points: heading
// boundaries first, then paragraph breaks, then lines, then spaces, and a hard
// character cut as the last resort.
var DefaultSeparators = []string{"\n## ", "\n### ", "\n\n", "\n", " ", ""}

type Config struct {
	ChunkSize    int // max chunk length in runes
	ChunkOverlap int // runes shared between consecutive chunks
	Separators   []string
}

type Splitter struct {
	config Config
}

func NewWithConfig(config Config) *Splitter {
	if config.ChunkSize == 0 {
		config.ChunkSize = 1000
	}
	if config.ChunkOverlap == 0 {
		config.ChunkOverlap = 200
	}
	if len(config.Separators) == 0 {
		config.Separators = DefaultSeparators
	}
	return &Splitter{config: config}
}

// Split divides text into chunks of at most ChunkSize runes, preserving source
// order. Consecutive chunks share up to ChunkOverlap trailing/leading runes so
// no boundary is cut without context. Every chunk gets its own copy of the
// metadata map; text at or under the size limit comes back as a single chunk,
// verbatim. Empty input yields an empty sequence.
func (s *Splitter) Split(text string, metadata map[string]string) []models.Chunk {
	if text == "" {
		return []models.Chunk{}
	}

	var pieces []string
	if runeLen(text) <= s.config.ChunkSize {
		pieces = []string{text}
	} else {
		pieces = s.split(text, s.config.Separators)
	}

	chunks := make([]models.Chunk, 0, len(pieces))
	for _, p := range pieces {
		md := make(map[string]string, len(metadata))
		for k, v := range metadata {
			md[k] = v
		}
		chunks = append(chunks, models.Chunk{Text: p, Metadata: md})
	}
	return chunks
}

// split picks the first separator present in text, splits on it keeping the
// separator attached to the following piece, merges pieces back into bounded
// chunks, and recurses with the remaining separators on any piece still over
// the size limit. An empty separator means a hard rune cut.
func (s *Splitter) split(text string, separators []string) []string {
	sep := ""
	var rest []string
	for i, candidate := range separators {
		if candidate == "" {
			break
		}
		if strings.Contains(text, candidate) {
			sep = candidate
			rest = separators[i+1:]
			break
		}
	}

	if sep == "" {
		return s.hardCut(text)
	}

	var final []string
	var fitting []string
	for _, piece := range splitKeepSeparator(text, sep) {
		if runeLen(piece) <= s.config.ChunkSize {
			fitting = append(fitting, piece)
			continue
		}
		if len(fitting) > 0 {
			final = append(final, s.merge(fitting)...)
			fitting = nil
		}
		final = append(final, s.split(piece, rest)...)
	}
	if len(fitting) > 0 {
		final = append(final, s.merge(fitting)...)
	}
	return final
}

// merge greedily packs pieces into chunks up to ChunkSize, carrying a tail of
// pieces worth at most ChunkOverlap runes into the next chunk.
func (s *Splitter) merge(pieces []string) []string {
	var docs []string
	var current []string
	total := 0

	flush := func() {
		doc := strings.TrimSpace(strings.Join(current, ""))
		if doc != "" {
			docs = append(docs, doc)
		}
	}

	for _, piece := range pieces {
		l := runeLen(piece)
		if total+l > s.config.ChunkSize && total > 0 {
			flush()
			for len(current) > 0 && (total > s.config.ChunkOverlap || total+l > s.config.ChunkSize) {
				total -= runeLen(current[0])
				current = current[1:]
			}
		}
		current = append(current, piece)
		total += l
	}
	flush()
	return docs
}

// hardCut slices fixed-size rune windows stepping by size-overlap. Last
// resort when no separator fits.
func (s *Splitter) hardCut(text string) []string {
	runes := []rune(text)
	step := s.config.ChunkSize - s.config.ChunkOverlap
	if step <= 0 {
		step = s.config.ChunkSize
	}

	var out []string
	for i := 0; i < len(runes); i += step {
		end := i + s.config.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[i:end]))
		if end == len(runes) {
			break
		}
	}
	return out
}

func splitKeepSeparator(text, sep string) []string {
	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	for i, p := range parts {
		if i > 0 {
			p = sep + p
		}
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func runeLen(s string) int {
	return len([]rune(s))
}
