// Package moderation masks forbidden words in text message bodies before they are stored.
package moderation

import (
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
	"github.com/samber/lo"
)

// Moderator matches a dictionary against normalized text with an Aho-Corasick automaton.
// It is read-only once built and safe for concurrent use.
type Moderator struct {
	matcher      *goahocorasick.Machine
	censoredChar rune
}

type textMapping struct {
	normalized []rune
	origIdx    []int
	// token holds, for every normalized rune, the whitespace-separated token it came from.
	token []int
}

// alignsWithTokens reports whether the normalized span [start, end) begins and ends on token edges.
func (t textMapping) alignsWithTokens(start, end int) bool {
	if start > 0 && t.token[start-1] == t.token[start] {
		return false
	}
	if end < len(t.token) && t.token[end] == t.token[end-1] {
		return false
	}
	return true
}

// NewModerator builds the automaton from the normalized dictionary.
// Entries that normalize to nothing (pure punctuation, blanks) are skipped.
func NewModerator(censoredWords []string, censoredChar rune) (*Moderator, error) {
	patterns := lo.FilterMap(censoredWords, func(word string, _ int) ([]rune, bool) {
		normalized := normalizeRunes([]rune(word))
		return normalized, len(normalized) > 0
	})

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, err
	}
	return &Moderator{matcher: m, censoredChar: censoredChar}, nil
}

// Censor replaces every matched span of the original text with the censored
// character, keeping the rune count intact. It returns the dictionary words that matched.
// A span only counts when it covers whole tokens, so "scam" never fires inside "scampi".
// Whitespace inside a multi-token span is kept.
func (m *Moderator) Censor(original string) (string, []string) {
	mapping := normalize(original)
	if len(mapping.normalized) == 0 {
		return original, nil
	}

	spans := m.matcher.MultiPatternSearch(mapping.normalized, false)
	if len(spans) == 0 {
		return original, nil
	}

	runes := []rune(original)
	var words []string
	for _, span := range spans {
		start, end := span.Pos, span.Pos+len(span.Word)
		if start < 0 || end > len(mapping.origIdx) || !mapping.alignsWithTokens(start, end) {
			continue
		}
		for i := mapping.origIdx[start]; i <= mapping.origIdx[end-1]; i++ {
			if !unicode.IsSpace(runes[i]) {
				runes[i] = m.censoredChar
			}
		}
		words = append(words, string(span.Word))
	}
	return string(runes), words
}

// normalize strips noise and keeps, for every kept rune, its index in the input.
func normalize(input string) textMapping {
	runes := []rune(input)
	mapping := textMapping{
		normalized: make([]rune, 0, len(runes)),
		origIdx:    make([]int, 0, len(runes)),
		token:      make([]int, 0, len(runes)),
	}
	token := 0
	for i, r := range runes {
		if unicode.IsSpace(r) {
			token++
			continue
		}
		clean := simplifyRune(r)
		if isNoise(clean) {
			continue
		}
		mapping.normalized = append(mapping.normalized, unicode.ToLower(clean))
		mapping.origIdx = append(mapping.origIdx, i)
		mapping.token = append(mapping.token, token)
	}
	return mapping
}

func normalizeRunes(input []rune) []rune {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		clean := simplifyRune(r)
		if isNoise(clean) {
			continue
		}
		out = append(out, unicode.ToLower(clean))
	}
	return out
}

// simplifyRune folds common leet speak substitutions.
func simplifyRune(r rune) rune {
	switch r {
	case '4', '@':
		return 'a'
	case '3', '€':
		return 'e'
	case '1', '!', '|':
		return 'i'
	case '0':
		return 'o'
	case '5', '$':
		return 's'
	default:
		return r
	}
}

func isNoise(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r)
}
