// Package scriptfile implements reading and reconstruction of Project Zomboid
// translation script files.
//
// Format: line 1 carries the language identifier (e.g. "ItemName_EN = {"),
// subsequent lines are either `Key = "text"` assignments, comment lines
// containing "--", blank lines, or opaque script lines. A trailing ".."
// continues a statement onto the next line.
//
// Parsing a source file yields two things: a Template — the file skeleton
// with each translatable literal replaced by a named placeholder — and a
// TextMap from normalized key to the literal text. Rendering the template
// with a completed TextMap reproduces the file byte-for-byte except for the
// substituted literals and the line-1 language token, so the same template
// serves every target language.
package scriptfile

import (
	"errors"
	"fmt"
	"strings"
)

// LanguageKey is the reserved placeholder bound to the target language
// identifier on the first line of every file.
const LanguageKey Key = "language"

// ---------------------------------------------------------------------------
// Keys
// ---------------------------------------------------------------------------

// Key is a normalized translation key, unique within one file.
type Key string

// NormalizeKey converts a raw key token into its canonical form: surrounding
// whitespace is trimmed and every "." becomes "-" so that keys never collide
// with the brace-delimited placeholder syntax. The same normalization is
// applied to source files, target files, and render-time lookups, so keys
// always compare equal across files.
func NormalizeKey(raw string) Key {
	return Key(strings.ReplaceAll(strings.TrimSpace(raw), ".", "-"))
}

// ---------------------------------------------------------------------------
// TextMap
// ---------------------------------------------------------------------------

// TextMap is a key to literal-text mapping that remembers insertion order.
// Setting an existing key overwrites its value but keeps its original
// position (last write wins for the value, first write for the order).
type TextMap struct {
	keys   []Key
	values map[Key]string
}

// NewTextMap returns an empty TextMap.
func NewTextMap() *TextMap {
	return &TextMap{values: make(map[Key]string)}
}

// Set stores text under key.
func (m *TextMap) Set(key Key, text string) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = text
}

// Get returns the text for key and whether it is present.
func (m *TextMap) Get(key Key) (string, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Has reports whether key is present.
func (m *TextMap) Has(key Key) bool {
	_, ok := m.values[key]
	return ok
}

// Delete removes key if present.
func (m *TextMap) Delete(key Key) {
	if _, ok := m.values[key]; !ok {
		return
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// Len returns the number of entries.
func (m *TextMap) Len() int {
	return len(m.keys)
}

// Keys returns all keys in insertion order.
func (m *TextMap) Keys() []Key {
	out := make([]Key, len(m.keys))
	copy(out, m.keys)
	return out
}

// ---------------------------------------------------------------------------
// Template
// ---------------------------------------------------------------------------

// ErrMissingText reports a placeholder whose key has no entry in the render
// mapping. The merge layer guarantees full coverage before rendering, so
// hitting this is a bug upstream, not bad input.
var ErrMissingText = errors.New("missing placeholder text")

type fragmentKind int

const (
	fragVerbatim    fragmentKind = iota // escaped text reproduced as-is
	fragPlaceholder                     // named placeholder for a key
)

// fragment is one piece of a template: either escaped verbatim text or a
// placeholder referencing a key.
type fragment struct {
	kind fragmentKind
	text string // fragVerbatim: brace-escaped verbatim text
	key  Key    // fragPlaceholder
}

// Template is the reusable skeleton of a script file: an ordered fragment
// sequence of verbatim spans and named placeholders. Verbatim spans store
// literal braces doubled so that substitution can never misread file content
// as placeholder syntax.
type Template struct {
	frags []fragment
}

func escapeBraces(s string) string {
	s = strings.ReplaceAll(s, "{", "{{")
	return strings.ReplaceAll(s, "}", "}}")
}

func unescapeBraces(s string) string {
	s = strings.ReplaceAll(s, "{{", "{")
	return strings.ReplaceAll(s, "}}", "}")
}

// appendVerbatim adds file text to the template, escaping braces. Adjacent
// verbatim fragments are coalesced.
func (t *Template) appendVerbatim(s string) {
	if s == "" {
		return
	}
	esc := escapeBraces(s)
	if n := len(t.frags); n > 0 && t.frags[n-1].kind == fragVerbatim {
		t.frags[n-1].text += esc
		return
	}
	t.frags = append(t.frags, fragment{kind: fragVerbatim, text: esc})
}

// appendPlaceholder adds a named placeholder for key.
func (t *Template) appendPlaceholder(key Key) {
	t.frags = append(t.frags, fragment{kind: fragPlaceholder, key: key})
}

// Keys returns the distinct placeholder keys in first-occurrence order.
func (t *Template) Keys() []Key {
	seen := make(map[Key]bool)
	var keys []Key
	for _, f := range t.frags {
		if f.kind == fragPlaceholder && !seen[f.key] {
			seen[f.key] = true
			keys = append(keys, f.key)
		}
	}
	return keys
}

// Render substitutes texts into the template and returns the reconstructed
// file content. Every placeholder key must be present in texts; a missing
// key returns an error wrapping ErrMissingText.
func (t *Template) Render(texts *TextMap) (string, error) {
	var b strings.Builder
	for _, f := range t.frags {
		switch f.kind {
		case fragVerbatim:
			b.WriteString(unescapeBraces(f.text))
		case fragPlaceholder:
			v, ok := texts.Get(f.key)
			if !ok {
				return "", fmt.Errorf("%w: %q", ErrMissingText, f.key)
			}
			b.WriteString(v)
		}
	}
	return b.String(), nil
}

// String returns the template in its escaped textual form, with placeholders
// shown as {key}. Intended for debugging and tests.
func (t *Template) String() string {
	var b strings.Builder
	for _, f := range t.frags {
		switch f.kind {
		case fragVerbatim:
			b.WriteString(f.text)
		case fragPlaceholder:
			b.WriteString("{")
			b.WriteString(string(f.key))
			b.WriteString("}")
		}
	}
	return b.String()
}

// ---------------------------------------------------------------------------
// Line classifier
// ---------------------------------------------------------------------------

type lineKind int

const (
	lineAssignment   lineKind = iota // key = "text" with a well-formed literal
	lineSkip                         // comment / blank / structural, copied verbatim
	lineContinuation                 // any other line, copied verbatim
)

// assignment describes the literal span found on an assignment line.
type assignment struct {
	openQuote  int // index of the opening quote
	closeQuote int // index of the closing quote
	key        Key
	text       string
}

// classifier is the per-line state machine. The single bit of cross-line
// state is active: whether the previous line left a statement open via a
// trailing "..".
type classifier struct {
	active bool
}

// step classifies one line and advances the state machine. The assignment
// result is meaningful only when kind is lineAssignment; malformed is true
// when the line looked like an assignment but its literal is not closed by
// a second quote.
func (c *classifier) step(line string) (kind lineKind, a assignment, malformed bool) {
	trimmed := strings.TrimSpace(line)
	classified := false

	if strings.Contains(line, "=") && strings.Contains(line, `"`) {
		i1 := strings.Index(line, "=")
		i3 := strings.LastIndex(line, `"`)
		i2 := -1
		if rel := strings.Index(line[i1+1:], `"`); rel >= 0 {
			i2 = i1 + 1 + rel
		}
		if i2 < 0 || i2 == i3 {
			// Opening quote without a closing one. Demote to an opaque line.
			kind = lineSkip
			malformed = true
			c.active = false
		} else {
			kind = lineAssignment
			a = assignment{
				openQuote:  i2,
				closeQuote: i3,
				key:        NormalizeKey(line[:i1]),
				text:       line[i2+1 : i3],
			}
			c.active = true
		}
		classified = true
	}

	if !classified {
		if strings.Contains(line, "--") || trimmed == "" ||
			(strings.HasSuffix(trimmed, "..") && !c.active) {
			kind = lineSkip
			c.active = false
		} else {
			kind = lineContinuation
			c.active = true
		}
	}

	// A skip line, or any line not ending with the continuation marker,
	// closes the current statement.
	if kind == lineSkip || !strings.HasSuffix(trimmed, "..") {
		c.active = false
	}
	return kind, a, malformed
}

// ---------------------------------------------------------------------------
// Parsing
// ---------------------------------------------------------------------------

// Options controls parse behavior.
type Options struct {
	// OnWarn is called for each recoverable parse problem (malformed
	// literal). May be nil.
	OnWarn func(format string, args ...any)
}

func (o Options) warn(format string, args ...any) {
	if o.OnWarn != nil {
		o.OnWarn(format, args...)
	}
}

// Result holds the output of parsing one source script file.
type Result struct {
	// Template is the reconstruction skeleton.
	Template *Template
	// Texts maps each extracted key to its literal text, in file order.
	Texts *TextMap
	// Warnings counts recoverable parse problems.
	Warnings int
}

// splitLines splits content into lines that keep their own terminators, so
// that concatenating them reproduces content exactly.
func splitLines(content string) []string {
	lines := strings.SplitAfter(content, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return lines
}

// Parse decomposes source-language script content into a template and its
// key to literal-text mapping. sourceID is the language identifier embedded
// in the first line; each of its occurrences there becomes the reserved
// language placeholder. Duplicate keys overwrite earlier entries (last write
// wins). Malformed assignment lines never abort the parse: they are counted,
// reported through opts.OnWarn, and copied through verbatim.
func Parse(content, sourceID string, opts Options) *Result {
	res := &Result{Template: &Template{}, Texts: NewTextMap()}
	lines := splitLines(content)
	if len(lines) == 0 {
		return res
	}

	appendLanguageLine(res.Template, lines[0], sourceID)

	var c classifier
	for _, line := range lines[1:] {
		kind, a, malformed := c.step(line)
		if malformed {
			res.Warnings++
			opts.warn("missing one \" for: %s", strings.TrimRight(line, "\r\n"))
		}
		if kind == lineAssignment {
			res.Template.appendVerbatim(line[:a.openQuote+1])
			res.Template.appendPlaceholder(a.key)
			res.Template.appendVerbatim(line[a.closeQuote:])
			res.Texts.Set(a.key, a.text)
			continue
		}
		res.Template.appendVerbatim(line)
	}
	return res
}

// appendLanguageLine emits the first line of the file. It is never an
// assignment: every occurrence of sourceID becomes the language placeholder
// so the template renders for any target language.
func appendLanguageLine(t *Template, line, sourceID string) {
	if sourceID == "" {
		t.appendVerbatim(line)
		return
	}
	for {
		i := strings.Index(line, sourceID)
		if i < 0 {
			t.appendVerbatim(line)
			return
		}
		t.appendVerbatim(line[:i])
		t.appendPlaceholder(LanguageKey)
		line = line[i+len(sourceID):]
	}
}

// ParseTexts extracts the key to literal-text mapping from target-language
// script content, using the same line classifier as Parse but building no
// template. The first line (language identifier) is skipped. Target files
// are best-effort inputs: malformed lines contribute nothing and raise no
// warnings.
func ParseTexts(content string) *TextMap {
	texts := NewTextMap()
	lines := splitLines(content)
	if len(lines) == 0 {
		return texts
	}

	var c classifier
	for _, line := range lines[1:] {
		if kind, a, _ := c.step(line); kind == lineAssignment {
			texts.Set(a.key, a.text)
		}
	}
	return texts
}
