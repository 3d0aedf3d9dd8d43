package model

import (
	"github.com/pkoukk/tiktoken-go"
)

// Counter counts tokens the way the billing side does.
type Counter interface {
	Count(text string) int
	CountAll(texts []string) int
}

// TokenCounter counts tokens locally with tiktoken. Used for prompt
// budgeting and as a fallback when an API response carries no usage block.
type TokenCounter struct {
	enc *tiktoken.Tiktoken
}

func NewTokenCounter() (*TokenCounter, error) {
	enc, err := tiktoken.EncodingForModel("gpt-3.5-turbo")
	if err != nil {
		return nil, err
	}
	return &TokenCounter{enc: enc}, nil
}

func (c *TokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

func (c *TokenCounter) CountAll(texts []string) int {
	total := 0
	for _, t := range texts {
		total += c.Count(t)
	}
	return total
}
