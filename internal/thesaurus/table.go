package thesaurus

import (
	"context"
	_ "embed"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/atinylittleshell/quill/pkg/wire"
	"github.com/sahilm/fuzzy"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

//go:embed thesaurus.yaml
var builtinTable []byte

// Entry is one headword of a thesaurus table.
type Entry struct {
	Word        string   `yaml:"word"`
	Synonyms    []string `yaml:"synonyms"`
	Explanation string   `yaml:"explanation"`
}

// Table looks words up in an in-memory thesaurus. A word that is not a
// headword is fuzzy-matched against the headwords, so a misspelling gets its
// likely correction offered first.
type Table struct {
	entries   map[string]Entry
	headwords []string
	limit     int
}

// NewBuiltinTable loads the thesaurus compiled into the binary.
func NewBuiltinTable(limit int) (*Table, error) {
	return ParseTable(builtinTable, limit)
}

func ParseTable(data []byte, limit int) (*Table, error) {
	var entries []Entry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse thesaurus: %w", err)
	}

	t := &Table{entries: make(map[string]Entry, len(entries)), limit: limit}
	for _, e := range entries {
		key := strings.ToLower(strings.TrimSpace(e.Word))
		if key == "" {
			continue
		}
		e.Synonyms = lo.Uniq(lo.Compact(lo.Map(e.Synonyms, func(s string, _ int) string {
			return strings.TrimSpace(s)
		})))
		t.entries[key] = e
	}
	t.headwords = lo.Keys(t.entries)
	slices.Sort(t.headwords)
	return t, nil
}

func (t *Table) Len() int {
	return len(t.entries)
}

func (t *Table) Synonyms(_ context.Context, word string) (wire.SuggestionResponse, error) {
	key := strings.ToLower(word)

	if e, ok := t.entries[key]; ok {
		return wire.SuggestionResponse{
			Synonyms:    matchCase(word, limit(e.Synonyms, t.limit)),
			Explanation: e.Explanation,
		}, nil
	}

	if e, ok := t.closest(key); ok {
		candidates := append([]string{e.Word}, e.Synonyms...)
		return wire.SuggestionResponse{
			Synonyms:    matchCase(word, limit(candidates, t.limit)),
			Explanation: fmt.Sprintf("did you mean %q? %s", e.Word, e.Explanation),
		}, nil
	}

	return wire.SuggestionResponse{Synonyms: []string{}}, nil
}

// closest returns the best fuzzy headword match that starts with the same
// letter and is at most two runes longer or shorter than key.
func (t *Table) closest(key string) (Entry, bool) {
	first, _ := utf8.DecodeRuneInString(key)
	n := utf8.RuneCountInString(key)

	for _, match := range fuzzy.Find(key, t.headwords) {
		candidate, _ := utf8.DecodeRuneInString(match.Str)
		diff := utf8.RuneCountInString(match.Str) - n
		if candidate != first || diff < -2 || diff > 2 {
			continue
		}
		return t.entries[match.Str], true
	}
	return Entry{}, false
}
