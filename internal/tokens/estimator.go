// Package tokens estimates token counts with tiktoken. Estimates back two
// paths: output accounting for streams that end without usage, and the
// count_tokens endpoint. Models without a known tiktoken encoding fall back
// to cl100k_base, which is close enough for accounting purposes.
package tokens

import (
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// perMessageOverhead approximates the framing tokens each chat message costs
// beyond its text.
const perMessageOverhead = 4

// Estimator counts tokens, caching codecs per encoding.
type Estimator struct {
	mu     sync.RWMutex
	codecs map[tokenizer.Encoding]tokenizer.Codec
}

// NewEstimator creates an estimator.
func NewEstimator() *Estimator {
	return &Estimator{codecs: make(map[tokenizer.Encoding]tokenizer.Codec)}
}

// Count returns the token count of text for the given model. It never
// fails: when no codec can be loaded it falls back to a bytes/4 heuristic.
func (e *Estimator) Count(model, text string) int {
	if text == "" {
		return 0
	}
	codec, err := e.codec(model)
	if err != nil {
		return (len(text) + 3) / 4
	}
	n, err := codec.Count(text)
	if err != nil {
		return (len(text) + 3) / 4
	}
	return n
}

// CountMessages estimates the prompt cost of a conversation: each entry is
// one message's flattened text.
func (e *Estimator) CountMessages(model string, texts []string) int {
	total := 0
	for _, text := range texts {
		total += e.Count(model, text) + perMessageOverhead
	}
	return total
}

func (e *Estimator) codec(model string) (tokenizer.Codec, error) {
	if codec, err := tokenizer.ForModel(tokenizer.Model(strings.ToLower(model))); err == nil {
		return codec, nil
	}

	encoding := tokenizer.Cl100kBase
	if strings.HasPrefix(strings.ToLower(model), "gpt-4o") || strings.HasPrefix(strings.ToLower(model), "o1") {
		encoding = tokenizer.O200kBase
	}

	e.mu.RLock()
	cached, ok := e.codecs[encoding]
	e.mu.RUnlock()
	if ok {
		return cached, nil
	}

	codec, err := tokenizer.Get(encoding)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.codecs[encoding] = codec
	e.mu.Unlock()
	return codec, nil
}
