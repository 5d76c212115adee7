// Package embedding is the embedding pipeline (component C2): it turns
// text into a deterministic, unit-normalized fixed-width vector, cached by
// content hash, and resets itself when the configured model changes.
//
// No ML runtime is available in this environment (see SPEC_FULL.md §14.2),
// so Service produces its vectors with a feature-hashing scheme over
// character n-grams rather than a learned model. The Embed/EmbedEnriched
// contract is unaffected: swapping in a real model later only touches this
// file.
package embedding

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/text/unicode/norm"
)

// Vector is a unit-normalized embedding of the configured dimension.
type Vector []float32

// Decision is the minimal shape EmbedEnriched needs — just enough text to
// build the stored vector, without importing the decision package (which
// would create an import cycle back into embedding).
type Decision struct {
	Topic     string
	Decision  string
	Reasoning string
}

// Service is the process-wide embedding pipeline handle, modeled as a
// single engine handle. It is safe for concurrent use.
type Service struct {
	mu        sync.RWMutex
	modelName string
	dim       int
	cache     *lru.Cache[string, Vector]
	cacheSize int
}

// New constructs a Service for modelName producing vectors of width dim,
// with an LRU cache bounded to cacheSize entries.
func New(modelName string, dim int, cacheSize int) (*Service, error) {
	if cacheSize <= 0 {
		cacheSize = 2048
	}
	cache, err := lru.New[string, Vector](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Service{modelName: modelName, dim: dim, cache: cache, cacheSize: cacheSize}, nil
}

// Dim returns the configured vector width.
func (s *Service) Dim() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dim
}

// ModelName returns the configured model identifier.
func (s *Service) ModelName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modelName
}

// Reset flushes the content-hash cache and swaps in a new model identifier
// and/or dimension. Called when the config file's modelName changes.
func (s *Service) Reset(modelName string, dim int) error {
	cache, err := lru.New[string, Vector](s.cacheSize)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modelName = modelName
	s.dim = dim
	s.cache = cache
	return nil
}

// Embed produces a deterministic, unit-normalized vector for a query
// string. Used for query-time embedding.
func (s *Service) Embed(text string) Vector {
	s.mu.RLock()
	modelName, dim, cache := s.modelName, s.dim, s.cache
	s.mu.RUnlock()

	key := cacheKey(modelName, text)
	if v, ok := cache.Get(key); ok {
		return v
	}
	v := hashEmbed(text, dim)
	cache.Add(key, v)
	return v
}

// EmbedEnriched concatenates topic, decision text, and reasoning before
// embedding, producing the vector persisted alongside a saved decision.
func (s *Service) EmbedEnriched(d Decision) Vector {
	enriched := strings.Join([]string{d.Topic, d.Decision, d.Reasoning}, "\n")
	return s.Embed(enriched)
}

func cacheKey(modelName, text string) string {
	sum := sha256.Sum256([]byte(modelName + "\x00" + text))
	return string(sum[:])
}

// hashEmbed projects text into a dim-wide vector via character-trigram
// feature hashing, then L2-normalizes it. Deterministic and stable across
// runs and processes, so similarity comparisons are reproducible.
// Text is first NFC-normalized so visually identical strings with
// different Unicode compositions hash identically.
func hashEmbed(text string, dim int) Vector {
	if dim <= 0 {
		dim = 384
	}
	normalized := norm.NFC.String(strings.ToLower(strings.TrimSpace(text)))
	runes := []rune(normalized)

	vec := make([]float64, dim)
	const n = 3
	if len(runes) < n {
		addGram(vec, string(runes))
	} else {
		for i := 0; i+n <= len(runes); i++ {
			addGram(vec, string(runes[i:i+n]))
		}
	}

	out := make(Vector, dim)
	var norm2 float64
	for i, f := range vec {
		norm2 += f * f
		out[i] = float32(f)
	}
	if norm2 == 0 {
		return out
	}
	inv := float32(1 / math.Sqrt(norm2))
	for i := range out {
		out[i] *= inv
	}
	return out
}

func addGram(vec []float64, gram string) {
	if gram == "" {
		return
	}
	h := sha256.Sum256([]byte(gram))
	idx := binary.LittleEndian.Uint64(h[:8]) % uint64(len(vec))
	sign := 1.0
	if h[8]&1 == 1 {
		sign = -1.0
	}
	vec[idx] += sign
}
