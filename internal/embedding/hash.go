package embedding

import (
	"context"
	"strings"
	"unicode"

	"github.com/spaolacci/murmur3"
)

// HashEmbedder is a deterministic offline embedder. Each lowercase word is
// hashed into one of Dimension buckets with a hash-derived sign, so texts
// sharing vocabulary point in similar directions.
type HashEmbedder struct {
	dimension int
}

// NewHashEmbedder creates a hash embedder with the given dimension.
func NewHashEmbedder(dimension int) *HashEmbedder {
	if dimension <= 0 {
		dimension = 256
	}
	return &HashEmbedder{dimension: dimension}
}

// Dimension returns the embedding dimension.
func (h *HashEmbedder) Dimension() int { return h.dimension }

func (h *HashEmbedder) EmbedMany(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = h.vector(text)
	}
	return out, nil
}

func (h *HashEmbedder) EmbedOne(_ context.Context, text string) ([]float32, error) {
	return h.vector(text), nil
}

func (h *HashEmbedder) vector(text string) []float32 {
	v := make([]float32, h.dimension)
	for _, token := range Tokenize(text) {
		sum := murmur3.Sum64([]byte(token))
		idx := sum % uint64(h.dimension)
		if sum&(1<<63) != 0 {
			v[idx]--
		} else {
			v[idx]++
		}
	}
	return Normalize(v)
}

// Tokenize splits text into lowercase words, dropping a trailing plural "s"
// so "orders" and "order" share a bucket.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := fields[:0]
	for _, f := range fields {
		if len(f) > 3 && strings.HasSuffix(f, "s") && !strings.HasSuffix(f, "ss") {
			f = strings.TrimSuffix(f, "s")
		}
		tokens = append(tokens, f)
	}
	return tokens
}
