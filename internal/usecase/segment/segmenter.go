// Package segment splits raw documents into retrieval units bounded by a
// model token budget, preferring sentence-aligned cuts. Segmentation is a
// pure function of its input.
package segment

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/kailas-cloud/fusegate/internal/domain"
)

const (
	// minAlignTokens is the smallest chunk worth aligning to a sentence end.
	minAlignTokens = 50
	// maxBacktrackTokens bounds the backward search for a sentence boundary,
	// so alignment cost never grows with document size.
	maxBacktrackTokens = 100
	// charsPerToken is the estimated ratio for the character-based fallback.
	charsPerToken = 4
)

// Chunk is one retrieval unit produced from a document.
type Chunk struct {
	Index  int
	Text   string
	Tokens int
}

// Tokenizer encodes text into a token sequence whose concatenation
// reconstructs the input. Encode is called once per document, not per chunk.
type Tokenizer interface {
	Encode(text string) ([]string, error)
}

// Segmenter splits documents under a token budget.
type Segmenter struct {
	tok Tokenizer
}

// New creates a segmenter. A nil tokenizer selects the built-in
// whitespace tokenizer.
func New(tok Tokenizer) *Segmenter {
	if tok == nil {
		tok = wordTokenizer{}
	}
	return &Segmenter{tok: tok}
}

// Segment splits text into chunks of at most cfg.MaxTokens tokens with
// cfg.OverlapTokens of overlap between consecutive chunks. Text is NFKC
// normalized and stripped of control/format characters before encoding.
// On tokenizer failure it falls back to character-based slicing at an
// estimated 4 characters per token with the same overlap proportion.
func (s *Segmenter) Segment(text string, cfg domain.SegmentConfig) ([]Chunk, error) {
	if cfg.MaxTokens <= 0 {
		return nil, fmt.Errorf("%w: segment.max_tokens must be positive, got %d",
			domain.ErrInvalidConfig, cfg.MaxTokens)
	}
	if cfg.OverlapTokens < 0 || cfg.OverlapTokens >= cfg.MaxTokens {
		return nil, fmt.Errorf("%w: segment.overlap_tokens (%d) must be in [0, max_tokens)",
			domain.ErrInvalidConfig, cfg.OverlapTokens)
	}

	cleaned := normalize(text)
	if strings.TrimSpace(cleaned) == "" {
		return nil, nil
	}

	tokens, err := s.tok.Encode(cleaned)
	if err != nil {
		return charChunks(cleaned, cfg), nil
	}

	return tokenChunks(tokens, cfg), nil
}

func tokenChunks(tokens []string, cfg domain.SegmentConfig) []Chunk {
	var chunks []Chunk
	pos := 0
	for pos < len(tokens) {
		end := pos + cfg.MaxTokens
		if end >= len(tokens) {
			end = len(tokens)
		} else {
			end = alignToSentence(tokens, pos, end, cfg.OverlapTokens)
		}

		chunks = append(chunks, Chunk{
			Index:  len(chunks),
			Text:   strings.TrimSpace(strings.Join(tokens[pos:end], "")),
			Tokens: end - pos,
		})
		if end == len(tokens) {
			break
		}
		pos = end - cfg.OverlapTokens
	}
	return chunks
}

// alignToSentence moves a mid-sentence cut back to the nearest sentence end,
// searching at most maxBacktrackTokens backward. The chunk never shrinks
// below minAlignTokens, nor below the overlap: a chunk shorter than the
// overlap would move the next cursor backward.
func alignToSentence(tokens []string, pos, end, overlap int) int {
	minLen := minAlignTokens
	if overlap >= minLen {
		minLen = overlap + 1
	}
	if end-pos <= minLen {
		return end
	}
	limit := end - maxBacktrackTokens
	if floor := pos + minLen; floor > limit {
		limit = floor
	}
	for i := end - 1; i >= limit; i-- {
		if endsSentence(tokens[i]) {
			return i + 1
		}
	}
	return end
}

func endsSentence(token string) bool {
	trimmed := strings.TrimRightFunc(token, unicode.IsSpace)
	if trimmed == "" {
		return false
	}
	switch trimmed[len(trimmed)-1] {
	case '.', '!', '?':
		return true
	}
	return strings.ContainsRune(token, '\n')
}

// charChunks is the fallback slicer: fixed-size rune windows at an estimated
// 4 characters per token, overlap scaled by the same ratio.
func charChunks(text string, cfg domain.SegmentConfig) []Chunk {
	runes := []rune(text)
	size := cfg.MaxTokens * charsPerToken
	overlap := cfg.OverlapTokens * charsPerToken

	var chunks []Chunk
	pos := 0
	for pos < len(runes) {
		end := pos + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, Chunk{
			Index:  len(chunks),
			Text:   strings.TrimSpace(string(runes[pos:end])),
			Tokens: (end - pos + charsPerToken - 1) / charsPerToken,
		})
		if end == len(runes) {
			break
		}
		pos = end - overlap
	}
	return chunks
}

// normalize applies NFKC and strips control and format characters, keeping
// whitespace.
func normalize(text string) string {
	normalized := norm.NFKC.String(text)
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return r
		}
		if unicode.Is(unicode.Cc, r) || unicode.Is(unicode.Cf, r) {
			return -1
		}
		return r
	}, normalized)
}

// wordTokenizer splits on whitespace, attaching trailing whitespace to each
// token so the concatenation of tokens reconstructs the input exactly.
type wordTokenizer struct{}

func (wordTokenizer) Encode(text string) ([]string, error) {
	var tokens []string
	start := 0
	inSpace := false
	for i, r := range text {
		isSpace := unicode.IsSpace(r)
		if inSpace && !isSpace {
			tokens = append(tokens, text[start:i])
			start = i
		}
		inSpace = isSpace
	}
	if start < len(text) {
		tokens = append(tokens, text[start:])
	}
	return tokens, nil
}
