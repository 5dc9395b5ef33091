// Package tokenizer defines the contract for model tokenizers.
package tokenizer

import (
	"fmt"

	"github.com/KamdynS/promptline/prompt"
)

// Tokenizer converts between text and tokens of type T.
type Tokenizer[T comparable] interface {
	Encode(text string) ([]T, error)
	Decode(tokens []T) (string, error)
}

// CountLiteral returns the number of tokens in the text of l. Literals with
// non-text content cannot be counted.
func CountLiteral[T comparable](tok Tokenizer[T], l prompt.Literal) (int, error) {
	text, err := l.StripToText()
	if err != nil {
		return 0, fmt.Errorf("tokenizer: %w", err)
	}
	tokens, err := tok.Encode(text)
	if err != nil {
		return 0, err
	}
	return len(tokens), nil
}

// Truncate returns the longest prefix of text that fits within limit
// tokens.
func Truncate[T comparable](tok Tokenizer[T], text string, limit int) (string, error) {
	tokens, err := tok.Encode(text)
	if err != nil {
		return "", err
	}
	if len(tokens) <= limit {
		return text, nil
	}
	if limit <= 0 {
		return "", nil
	}
	return tok.Decode(tokens[:limit])
}
