// Package chunker splits raw document text into bounded, overlapping segments
// using a recursive separator strategy.
package chunker

import (
	"unicode"

	"github.com/xxxsen/policyrag/internal/model"
	appErr "github.com/xxxsen/policyrag/internal/pkg/errors"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// DefaultSeparators goes from paragraph break down to the character level.
var DefaultSeparators = []string{"\n\n", "\n", ". ", "! ", "? ", " ", ""}

type Option func(*Chunker)

// WithSeparators replaces the separator list. The character level separator
// ("") is appended when missing so splitting always terminates.
func WithSeparators(separators ...string) Option {
	return func(c *Chunker) {
		c.separators = toRunes(separators)
	}
}

type Chunker struct {
	size       int
	overlap    int
	separators [][]rune
}

func New(chunkSize, chunkOverlap int, opts ...Option) (*Chunker, error) {
	if chunkSize <= 0 {
		return nil, appErr.Config("chunk_size must be positive, got %d", chunkSize)
	}
	if chunkOverlap < 0 {
		return nil, appErr.Config("chunk_overlap must not be negative, got %d", chunkOverlap)
	}
	if chunkOverlap >= chunkSize {
		return nil, appErr.Config("chunk_overlap (%d) must be smaller than chunk_size (%d)", chunkOverlap, chunkSize)
	}
	c := &Chunker{
		size:       chunkSize,
		overlap:    chunkOverlap,
		separators: toRunes(DefaultSeparators),
	}
	for _, opt := range opts {
		opt(c)
	}
	if n := len(c.separators); n == 0 || len(c.separators[n-1]) != 0 {
		c.separators = append(c.separators, nil)
	}
	return c, nil
}

func (c *Chunker) ChunkSize() int {
	return c.size
}

func (c *Chunker) ChunkOverlap() int {
	return c.overlap
}

// Split returns the chunks of text in document order. Empty or blank text
// yields no chunks.
func (c *Chunker) Split(text string) []model.Chunk {
	if text == "" {
		return nil
	}
	runes := []rune(text)
	spans := c.split(runes, span{start: 0, end: len(runes)}, 0)
	chunks := make([]model.Chunk, 0, len(spans))
	for _, sp := range spans {
		sp = trimSpan(runes, sp)
		if sp.empty() {
			continue
		}
		index := len(chunks)
		chunks = append(chunks, model.Chunk{
			ID:     model.ChunkID(index),
			Text:   string(runes[sp.start:sp.end]),
			Index:  index,
			Offset: sp.start,
		})
	}
	return chunks
}

type span struct {
	start int
	end   int
}

func (s span) len() int {
	return s.end - s.start
}

func (s span) empty() bool {
	return s.end <= s.start
}

func (c *Chunker) split(runes []rune, sp span, level int) []span {
	if sp.len() <= c.size {
		return []span{sp}
	}
	for level < len(c.separators)-1 && !contains(runes[sp.start:sp.end], c.separators[level]) {
		level++
	}
	sep := c.separators[level]
	if len(sep) == 0 {
		return c.window(sp)
	}
	return c.merge(runes, splitKeepSeparator(runes, sp, sep), level+1)
}

// merge greedily packs parts into spans of at most c.size runes. When a span
// is closed its trailing parts (up to c.overlap runes) open the next one.
func (c *Chunker) merge(runes []rune, parts []span, next int) []span {
	var out []span
	var buf []span
	bufLen := 0
	flush := func() {
		if len(buf) == 0 {
			return
		}
		out = append(out, span{start: buf[0].start, end: buf[len(buf)-1].end})
	}
	for _, p := range parts {
		partLen := p.len()
		if partLen > c.size {
			flush()
			buf, bufLen = nil, 0
			out = append(out, c.split(runes, p, next)...)
			continue
		}
		if len(buf) > 0 && bufLen+partLen > c.size {
			flush()
			for len(buf) > 0 && (bufLen > c.overlap || bufLen+partLen > c.size) {
				bufLen -= buf[0].len()
				buf = buf[1:]
			}
		}
		buf = append(buf, p)
		bufLen += partLen
	}
	flush()
	return out
}

// window is the character level fallback: fixed windows advancing by
// size-overlap, so consecutive windows share exactly c.overlap runes.
func (c *Chunker) window(sp span) []span {
	stride := c.size - c.overlap
	out := make([]span, 0, sp.len()/stride+1)
	for start := sp.start; start < sp.end; start += stride {
		end := min(start+c.size, sp.end)
		out = append(out, span{start: start, end: end})
		if end == sp.end {
			break
		}
	}
	return out
}

// splitKeepSeparator cuts sp after every occurrence of sep, so the parts
// stay contiguous and together cover sp exactly.
func splitKeepSeparator(runes []rune, sp span, sep []rune) []span {
	var parts []span
	start := sp.start
	for i := sp.start; i+len(sep) <= sp.end; {
		if hasPrefix(runes[i:sp.end], sep) {
			i += len(sep)
			parts = append(parts, span{start: start, end: i})
			start = i
			continue
		}
		i++
	}
	if start < sp.end {
		parts = append(parts, span{start: start, end: sp.end})
	}
	return parts
}

func trimSpan(runes []rune, sp span) span {
	for sp.start < sp.end && unicode.IsSpace(runes[sp.start]) {
		sp.start++
	}
	for sp.end > sp.start && unicode.IsSpace(runes[sp.end-1]) {
		sp.end--
	}
	return sp
}

func contains(text, sep []rune) bool {
	if len(sep) == 0 {
		return true
	}
	for i := 0; i+len(sep) <= len(text); i++ {
		if hasPrefix(text[i:], sep) {
			return true
		}
	}
	return false
}

func hasPrefix(text, prefix []rune) bool {
	if len(prefix) > len(text) {
		return false
	}
	for i, r := range prefix {
		if text[i] != r {
			return false
		}
	}
	return true
}

func toRunes(items []string) [][]rune {
	out := make([][]rune, 0, len(items))
	for _, item := range items {
		out = append(out, []rune(item))
	}
	return out
}
