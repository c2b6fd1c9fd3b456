package ui

import (
	"sort"
	"strings"
)

const (
	// DefaultMaxDistance is the default maximum edit distance to consider for fuzzy matching
	DefaultMaxDistance = 3
	// DefaultMaxSuggestions is the default maximum number of suggestions to return
	DefaultMaxSuggestions = 3
)

// FuzzyMatchOptions configures fuzzy matching behavior
type FuzzyMatchOptions struct {
	MaxDistance    int  // default 3
	MaxSuggestions int  // default 3
	CaseSensitive  bool
}

func (o *FuzzyMatchOptions) withDefaults() FuzzyMatchOptions {
	out := FuzzyMatchOptions{}
	if o != nil {
		out = *o
	}
	if out.MaxDistance <= 0 {
		out.MaxDistance = DefaultMaxDistance
	}
	if out.MaxSuggestions <= 0 {
		out.MaxSuggestions = DefaultMaxSuggestions
	}
	return out
}

// FindSimilar returns the candidates within edit distance of target, closest first.
// Ties keep alphabetical order. A candidate that starts with target always matches.
//
// Example:
//
//	FindSimilar("Coment", []string{"Post", "Comment", "Genre"}, nil)
//	// Returns: ["Comment"]
func FindSimilar(target string, candidates []string, opts *FuzzyMatchOptions) []string {
	o := opts.withDefaults()

	fold := func(s string) string {
		if o.CaseSensitive {
			return s
		}
		return strings.ToLower(s)
	}

	type match struct {
		value    string
		distance int
	}
	var matches []match
	want := fold(target)
	for _, candidate := range candidates {
		got := fold(candidate)
		dist := LevenshteinDistance(want, got)
		if want != "" && strings.HasPrefix(got, want) {
			dist = 0
		}
		if dist <= o.MaxDistance {
			matches = append(matches, match{value: candidate, distance: dist})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].distance != matches[j].distance {
			return matches[i].distance < matches[j].distance
		}
		return matches[i].value < matches[j].value
	})

	result := make([]string, 0, o.MaxSuggestions)
	for _, m := range matches {
		if len(result) == o.MaxSuggestions {
			break
		}
		result = append(result, m.value)
	}
	return result
}

// LevenshteinDistance counts the single-rune insertions, deletions and substitutions
// that turn a into b
func LevenshteinDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = minOf(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func minOf(first int, rest ...int) int {
	m := first
	for _, v := range rest {
		if v < m {
			m = v
		}
	}
	return m
}
