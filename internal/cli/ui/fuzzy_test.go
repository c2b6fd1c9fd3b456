package ui

import (
	"reflect"
	"testing"
)

func TestLevenshteinDistance(t *testing.T) {
	tests := []struct {
		s1       string
		s2       string
		expected int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"Post", "Post", 0},
		{"Post", "Pst", 1},
		{"Comment", "Coment", 1},
		{"Genre", "Genres", 1},
		{"kitten", "sitting", 3},
		{"Genre", "Genré", 1},
	}

	for _, tt := range tests {
		t.Run(tt.s1+"_"+tt.s2, func(t *testing.T) {
			result := LevenshteinDistance(tt.s1, tt.s2)
			if result != tt.expected {
				t.Errorf("LevenshteinDistance(%q, %q) = %d; want %d", tt.s1, tt.s2, result, tt.expected)
			}
		})
	}
}

func TestFindSimilar(t *testing.T) {
	resources := []string{"Comment", "Country", "Genre", "Post", "Tag", "User"}

	tests := []struct {
		name     string
		target   string
		opts     *FuzzyMatchOptions
		expected []string
	}{
		{
			name:     "typo",
			target:   "Coment",
			expected: []string{"Comment"},
		},
		{
			name:     "case insensitive",
			target:   "genre",
			expected: []string{"Genre"},
		},
		{
			name:   "case sensitive",
			target: "genres",
			opts: &FuzzyMatchOptions{
				MaxDistance:   1,
				CaseSensitive: true,
			},
			expected: []string{},
		},
		{
			name:   "prefix",
			target: "Comm",
			opts: &FuzzyMatchOptions{
				MaxDistance: 1,
			},
			expected: []string{"Comment"},
		},
		{
			name:     "ties are alphabetical",
			target:   "Pst",
			expected: []string{"Post", "Tag", "User"},
		},
		{
			name:     "no match too far",
			target:   "Planetarium",
			expected: []string{},
		},
		{
			name:   "max suggestions limit",
			target: "Tags",
			opts: &FuzzyMatchOptions{
				MaxDistance:    3,
				MaxSuggestions: 1,
			},
			expected: []string{"Tag"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FindSimilar(tt.target, resources, tt.opts)
			if !reflect.DeepEqual(result, tt.expected) {
				t.Errorf("FindSimilar(%q) = %v; want %v", tt.target, result, tt.expected)
			}
		})
	}
}
