// Package thesaurus answers synonym lookups for the development suggestion
// service.
package thesaurus

import (
	"context"
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/atinylittleshell/quill/pkg/wire"
	"go.uber.org/zap"
)

// DefaultLimit is how many synonyms a reply carries.
const DefaultLimit = 3

var ErrNoProvider = errors.New("no synonym provider available")

type Provider interface {
	Synonyms(ctx context.Context, word string) (wire.SuggestionResponse, error)
}

// Chain asks each provider in turn and returns the first non-empty answer. A
// provider error is logged and the next provider is tried.
type Chain struct {
	providers []Provider
	logger    *zap.Logger
}

func NewChain(logger *zap.Logger, providers ...Provider) *Chain {
	return &Chain{providers: providers, logger: logger}
}

func (c *Chain) Synonyms(ctx context.Context, word string) (wire.SuggestionResponse, error) {
	if len(c.providers) == 0 {
		return wire.SuggestionResponse{}, ErrNoProvider
	}

	var lastErr error
	for _, p := range c.providers {
		resp, err := p.Synonyms(ctx, word)
		if err != nil {
			c.logger.Warn("thesaurus provider failed", zap.String("word", word), zap.Error(err))
			lastErr = err
			continue
		}
		if len(resp.Synonyms) > 0 {
			return resp, nil
		}
	}
	if lastErr != nil {
		return wire.SuggestionResponse{}, lastErr
	}
	return wire.SuggestionResponse{Synonyms: []string{}}, nil
}

// matchCase gives each synonym the capitalization pattern of word.
func matchCase(word string, synonyms []string) []string {
	first, _ := utf8.DecodeRuneInString(word)
	upper := utf8.RuneCountInString(word) > 1 && strings.ToUpper(word) == word && strings.ToLower(word) != word

	out := make([]string, len(synonyms))
	for i, s := range synonyms {
		switch {
		case upper:
			out[i] = strings.ToUpper(s)
		case unicode.IsUpper(first):
			r, size := utf8.DecodeRuneInString(s)
			out[i] = string(unicode.ToUpper(r)) + s[size:]
		default:
			out[i] = s
		}
	}
	return out
}

func limit(items []string, n int) []string {
	if n <= 0 {
		n = DefaultLimit
	}
	if len(items) > n {
		return items[:n]
	}
	return items
}
