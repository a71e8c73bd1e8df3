// Package interpolation keeps Project Zomboid rich-text markup intact
// across machine translation. Script texts embed tags like <RGB:1,0,0>
// and <LINE>, plus %1-style substitution markers, which providers tend
// to translate or mangle. Protect swaps them for opaque placeholders
// before the provider call and Restore puts them back afterwards.
package interpolation

import (
	"fmt"
	"regexp"
	"strings"
)

// Mapping stores the original markup and its safe replacement.
type Mapping struct {
	Original    string
	Placeholder string
	Index       int
}

// tagMatch stores a detected markup position.
type tagMatch struct {
	start, end int
	value      string
}

// patterns to detect protected markup in script texts.
var patterns = []*regexp.Regexp{
	regexp.MustCompile(`<[^<>]+>`), // <RGB:1,0,0>, <LINE>, <SIZE:medium>
	regexp.MustCompile(`%[0-9]+`),  // %1, %2
}

// Protect replaces markup with {{var_N}} placeholders. Returns the safe
// string and a mapping to restore the originals after translation.
func Protect(text string) (string, []Mapping) {
	var all []tagMatch
	for _, p := range patterns {
		for _, loc := range p.FindAllStringIndex(text, -1) {
			all = append(all, tagMatch{
				start: loc[0],
				end:   loc[1],
				value: text[loc[0]:loc[1]],
			})
		}
	}

	if len(all) == 0 {
		return text, nil
	}

	sortTagMatches(all)

	// Drop overlapping matches, keeping the first/longest.
	var filtered []tagMatch
	lastEnd := -1
	for _, m := range all {
		if m.start >= lastEnd {
			filtered = append(filtered, m)
			lastEnd = m.end
		}
	}

	mappings := make([]Mapping, len(filtered))
	result := text
	// Replace in reverse order to preserve indices.
	for i := len(filtered) - 1; i >= 0; i-- {
		m := filtered[i]
		placeholder := fmt.Sprintf("{{var_%d}}", i+1)
		mappings[i] = Mapping{
			Original:    m.value,
			Placeholder: placeholder,
			Index:       i + 1,
		}
		result = result[:m.start] + placeholder + result[m.end:]
	}

	return result, mappings
}

// Restore replaces {{var_N}} placeholders back with the original markup.
func Restore(translated string, mappings []Mapping) string {
	result := translated
	for _, m := range mappings {
		result = strings.Replace(result, m.Placeholder, m.Original, 1)
	}
	return result
}

// sortTagMatches sorts by start position, then by length (descending) for overlaps.
func sortTagMatches(matches []tagMatch) {
	for i := 1; i < len(matches); i++ {
		key := matches[i]
		j := i - 1
		for j >= 0 && (matches[j].start > key.start ||
			(matches[j].start == key.start && (matches[j].end-matches[j].start) < (key.end-key.start))) {
			matches[j+1] = matches[j]
			j--
		}
		matches[j+1] = key
	}
}
