// Package crossref finds candidate shard references inside free text
// and validates them against the fixed shard registry before they
// become part of a transaction. Extraction is a pure function of
// (content, source shard, registry); it has no persisted side effects.
package crossref

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"shardmem/internal/shard"
)

// Target is one registry entry the extractor can resolve references to.
type Target struct {
	ID   string // stable shard id, e.g. "shard_technical"
	Name string // display name, e.g. "Technique et Architecture"
}

// Recognized literal phrasings. Matching is case-insensitive and
// diacritics-normalized, so "voir" covers the localized variant of
// "see" and "connecte avec" the localized "connect with". Any other
// phrasing is ignored, not an error.
var phrasePrefixes = []string{
	"shard:",
	"see shard ",
	"voir shard ",
	"connect with shard ",
	"connecte avec shard ",
	"shard ",
}

// Extract returns the accepted cross-references for content authored
// into sourceShardID: at most shard.MaxCrossRefs ids, deduplicated, in
// first-seen order. Unknown shards and self-references are dropped
// silently; ExtractStrict surfaces them instead.
func Extract(content, sourceShardID string, targets []Target) []string {
	refs, _ := extract(content, sourceShardID, targets, false)
	return refs
}

// ExtractStrict behaves like Extract but fails on the first candidate
// that references an unknown shard or the source shard itself.
func ExtractStrict(content, sourceShardID string, targets []Target) ([]string, error) {
	return extract(content, sourceShardID, targets, true)
}

type candidate struct {
	id  string
	pos int
}

func extract(content, sourceShardID string, targets []Target, strict bool) ([]string, error) {
	text := Normalize(content)
	if text == "" {
		return nil, nil
	}

	// Earliest match position per target; targets without a match are
	// not candidates.
	var candidates []candidate
	for _, t := range targets {
		if pos, ok := earliestMatch(text, t); ok {
			candidates = append(candidates, candidate{id: t.ID, pos: pos})
		}
	}

	// Appearance order decides which candidates survive the cap.
	// Registry order breaks position ties deterministically.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].pos < candidates[j].pos
	})

	var accepted []string
	for _, c := range candidates {
		if c.id == sourceShardID {
			if strict {
				return nil, fmt.Errorf("%w: self-reference to %s", shard.ErrInvalidCrossRef, c.id)
			}
			continue
		}
		accepted = append(accepted, c.id)
		if len(accepted) == shard.MaxCrossRefs {
			break
		}
	}
	return accepted, nil
}

// earliestMatch returns the smallest index at which any recognized
// phrasing references the target, trying both the short id (registry id
// without the "shard_" prefix) and the display name.
func earliestMatch(text string, t Target) (int, bool) {
	aliases := []string{
		Normalize(strings.TrimPrefix(t.ID, "shard_")),
		Normalize(t.Name),
	}

	best := -1
	for _, alias := range aliases {
		if alias == "" {
			continue
		}
		for _, prefix := range phrasePrefixes {
			if pos := matchAt(text, prefix+alias); pos >= 0 && (best < 0 || pos < best) {
				best = pos
			}
		}
	}
	return best, best >= 0
}

// matchAt finds pattern as a token-bounded substring: the character
// after the match must not extend the referenced identifier, so
// "shard technical" does not fire on "shard technicality".
func matchAt(text, pattern string) int {
	from := 0
	for {
		idx := strings.Index(text[from:], pattern)
		if idx < 0 {
			return -1
		}
		abs := from + idx
		end := abs + len(pattern)
		if end >= len(text) || !isWordByte(text[end]) {
			return abs
		}
		from = abs + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9' || b == '_'
}

// Normalize lowercases and strips diacritics so "Leçon" and
// "lecon" compare equal.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	stripped, _, err := transform.String(transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
	), s)
	if err != nil {
		return s
	}
	return stripped
}
