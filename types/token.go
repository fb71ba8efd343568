package types

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer counts tokens in text. Used for logging hand-off message sizes
// and for budget checks before a run starts.
type Tokenizer interface {
	CountTokens(text string) int
}

// TiktokenCounter counts tokens with a tiktoken encoding, falling back to a
// character estimate when the encoding cannot be initialized (tiktoken may
// download encoding data on first use).
type TiktokenCounter struct {
	encoding string
	enc      *tiktoken.Tiktoken
	once     sync.Once
	initErr  error
}

// modelEncodings maps model name prefixes to tiktoken encodings.
var modelEncodings = map[string]string{
	"gpt-4o":        "o200k_base",
	"gpt-4":         "cl100k_base",
	"gpt-3.5-turbo": "cl100k_base",
}

// NewTiktokenCounter creates a counter for the given model name.
func NewTiktokenCounter(model string) *TiktokenCounter {
	encoding := "cl100k_base"
	for prefix, enc := range modelEncodings {
		if len(model) >= len(prefix) && model[:len(prefix)] == prefix {
			encoding = enc
			break
		}
	}
	return &TiktokenCounter{encoding: encoding}
}

func (t *TiktokenCounter) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = err
			return
		}
		t.enc = enc
	})
	return t.initErr
}

// CountTokens counts tokens in text.
func (t *TiktokenCounter) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	if err := t.init(); err != nil {
		return EstimateTokens(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}

// EstimateTokens approximates the token count of text at ~4 characters per
// token. It never fails and needs no encoding data.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := (len(text) + 3) / 4
	if n < 1 {
		n = 1
	}
	return n
}

var _ Tokenizer = (*TiktokenCounter)(nil)
