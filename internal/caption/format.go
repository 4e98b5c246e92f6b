package caption

import (
	"strings"
	"unicode/utf8"
)

// CacheSize is the number of prior final captions kept for merging
const CacheSize = 2

// Format renders text as a caption line exactly width runes wide. Short text
// is prefixed with up to CacheSize prior captions while the merged line still
// fits, long text keeps only its tail, and the result is left-padded with
// spaces. Empty text yields "".
func Format(text string, cache []string, width int) string {
	text = Normalize(text)
	if text == "" || width <= 0 {
		return ""
	}

	if utf8.RuneCountInString(text) < width {
		// Walk back from the newest caption
		start := len(cache) - CacheSize
		if start < 0 {
			start = 0
		}
		for i := len(cache) - 1; i >= start; i-- {
			prior := Normalize(cache[i])
			if prior == "" {
				continue
			}
			combined := prior + " " + text
			if utf8.RuneCountInString(combined) > width {
				break
			}
			text = combined
		}
	}

	runes := []rune(text)
	if len(runes) > width {
		return string(runes[len(runes)-width:])
	}
	return strings.Repeat(" ", width-len(runes)) + text
}

// Normalize trims text and collapses internal whitespace runs to one space
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Cache holds the most recent final captions, oldest first
type Cache struct {
	lines []string
}

// Add records a final caption, evicting the oldest beyond CacheSize
func (c *Cache) Add(text string) {
	text = Normalize(text)
	if text == "" {
		return
	}
	c.lines = append(c.lines, text)
	if len(c.lines) > CacheSize {
		c.lines = append(c.lines[:0], c.lines[len(c.lines)-CacheSize:]...)
	}
}

// Lines returns a copy of the cached captions, oldest first
func (c *Cache) Lines() []string {
	return append([]string(nil), c.lines...)
}

// Len returns the number of cached captions
func (c *Cache) Len() int { return len(c.lines) }
