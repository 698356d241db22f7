package orchestration

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates how many tokens a prompt costs.
type TokenCounter interface {
	Count(text string) int
}

// TiktokenCounter counts with the cl100k_base encoding. When the encoding
// cannot be loaded it falls back to the rune heuristic.
type TiktokenCounter struct {
	mu      sync.Mutex
	encoder *tiktoken.Tiktoken
}

var (
	defaultCounter     *TiktokenCounter
	defaultCounterOnce sync.Once
)

// DefaultTokenCounter returns the shared tiktoken counter
func DefaultTokenCounter() *TiktokenCounter {
	defaultCounterOnce.Do(func() {
		encoder, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			defaultCounter = &TiktokenCounter{}
			return
		}
		defaultCounter = &TiktokenCounter{encoder: encoder}
	})
	return defaultCounter
}

// Approximate reports whether counts come from the heuristic
func (c *TiktokenCounter) Approximate() bool {
	return c.encoder == nil
}

// Count returns the token count of text
func (c *TiktokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	if c.encoder == nil {
		return HeuristicCounter{}.Count(text)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.encoder.Encode(text, nil, nil))
}

// HeuristicCounter assumes about four characters per token
type HeuristicCounter struct{}

// Count returns the estimated token count of text
func (HeuristicCounter) Count(text string) int {
	runes := utf8.RuneCountInString(text)
	if runes == 0 {
		return 0
	}
	return (runes + 3) / 4
}
