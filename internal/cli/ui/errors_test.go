package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
)

func TestFormatError(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	tests := []struct {
		name     string
		opts     ErrorOptions
		contains []string
	}{
		{
			name: "basic error",
			opts: ErrorOptions{
				Level:   ErrorLevelError,
				Context: "record not found",
				Problem: "User with id 9 not found at author",
			},
			contains: []string{"❌", "RECORD NOT FOUND", "User with id 9 not found at author"},
		},
		{
			name: "warning with suggestions",
			opts: ErrorOptions{
				Level:       ErrorLevelWarning,
				Problem:     "No rules for Tag",
				Suggestions: []string{"Tags"},
			},
			contains: []string{"⚠️", "Did you mean: Tags?"},
		},
		{
			name: "help commands",
			opts: ErrorOptions{
				Level:        ErrorLevelError,
				Problem:      "broken",
				HelpCommands: []string{"Get help: nestwrite --help"},
			},
			contains: []string{"→ Get help: nestwrite --help"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output := FormatError(tt.opts)
			for _, exp := range tt.contains {
				if !strings.Contains(output, exp) {
					t.Errorf("FormatError output missing %q:\n%s", exp, output)
				}
			}
		})
	}
}

func TestResourceNotFoundError(t *testing.T) {
	output := ResourceNotFoundError("Coment", []string{"Comment", "Post"}, true)

	if !strings.Contains(output, "Cannot find resource 'Coment'.") {
		t.Errorf("missing problem:\n%s", output)
	}
	if !strings.Contains(output, "Did you mean: Comment?") {
		t.Errorf("missing suggestion:\n%s", output)
	}
}

func TestValidationError(t *testing.T) {
	output := ValidationError(map[string][]string{
		"title":         {"is required"},
		"comments.0.id": {"must be an integer", "does not exist"},
	}, true)

	if !strings.Contains(output, "2 invalid attribute(s).") {
		t.Errorf("missing count:\n%s", output)
	}
	first := strings.Index(output, "comments.0.id: must be an integer, does not exist")
	second := strings.Index(output, "title: is required")
	if first < 0 || second < 0 || first > second {
		t.Errorf("paths not listed in order:\n%s", output)
	}
}

func TestWriteHelpers(t *testing.T) {
	var buf bytes.Buffer
	WriteSuccess(&buf, "created Post 1", true)
	if buf.String() != "✓ created Post 1\n" {
		t.Errorf("unexpected success line: %q", buf.String())
	}

	buf.Reset()
	WriteError(&buf, ErrorOptions{Level: ErrorLevelError, Problem: "boom", NoColor: true})
	if !strings.Contains(buf.String(), "boom") {
		t.Errorf("WriteError did not write: %q", buf.String())
	}

	for _, output := range []string{
		InvalidDataError("bad", true),
		RecordNotFoundError("gone", true),
		WriteFailedError("rejected", true),
		ConfigError("broken", nil, true),
	} {
		if !strings.Contains(output, "❌") {
			t.Errorf("expected an error message, got %q", output)
		}
	}
}
