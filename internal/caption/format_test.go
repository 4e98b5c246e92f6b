package caption

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		cache    []string
		width    int
		expected string
	}{
		{
			name:     "pads short text",
			text:     "hello",
			width:    10,
			expected: "     hello",
		},
		{
			name:     "collapses whitespace",
			text:     "  hello \t  world\n",
			width:    12,
			expected: " hello world",
		},
		{
			name:     "keeps tail of long text",
			text:     "the quick brown fox",
			width:    9,
			expected: "brown fox",
		},
		{
			name:     "merges prior captions in order",
			text:     "three",
			cache:    []string{"one", "two"},
			width:    20,
			expected: "       one two three",
		},
		{
			name:     "merges only the two newest",
			text:     "d",
			cache:    []string{"a", "b", "c"},
			width:    10,
			expected: "     b c d",
		},
		{
			name:     "stops merging when line would overflow",
			text:     "world",
			cache:    []string{"a much longer caption", "hello"},
			width:    16,
			expected: "     hello world",
		},
		{
			name:     "no merge when text fills the width",
			text:     "abcdefghij",
			cache:    []string{"x"},
			width:    10,
			expected: "abcdefghij",
		},
		{
			name:     "empty text",
			text:     "   ",
			cache:    []string{"x"},
			width:    10,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Format(tt.text, tt.cache, tt.width)
			if got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestFormatWidthIsExact(t *testing.T) {
	inputs := []string{
		"hi",
		strings.Repeat("word ", 40),
		"naïve café über",
		"exactly",
	}

	for _, in := range inputs {
		line := Format(in, []string{"previous caption"}, 80)
		if n := utf8.RuneCountInString(line); n != 80 {
			t.Errorf("Expected width 80 for %q, got %d", in, n)
		}
	}
}

func TestFormatIsIdempotent(t *testing.T) {
	inputs := []string{
		"hello world",
		"  spaced   out   words  ",
		strings.Repeat("long caption text ", 10),
		"x",
	}

	for _, in := range inputs {
		once := Format(in, nil, 80)
		twice := Format(once, nil, 80)
		if once != twice {
			t.Errorf("Format not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}

func TestCache(t *testing.T) {
	var cache Cache
	cache.Add("one")
	cache.Add("   ")
	cache.Add("two")
	cache.Add("three")

	lines := cache.Lines()
	if len(lines) != CacheSize {
		t.Fatalf("Expected %d cached lines, got %d", CacheSize, len(lines))
	}
	if lines[0] != "two" || lines[1] != "three" {
		t.Errorf("Expected [two three], got %v", lines)
	}

	lines[0] = "mutated"
	if cache.Lines()[0] != "two" {
		t.Error("Lines must return a copy")
	}
}
