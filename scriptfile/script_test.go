package scriptfile

import (
	"errors"
	"strings"
	"testing"
)

func TestNormalizeKey(t *testing.T) {
	if got := NormalizeKey("  Key.Sub  "); got != "Key-Sub" {
		t.Errorf("NormalizeKey = %q, want %q", got, "Key-Sub")
	}
	if got := NormalizeKey("Plain"); got != "Plain" {
		t.Errorf("NormalizeKey = %q, want %q", got, "Plain")
	}
	if got := NormalizeKey("a.b.c"); got != "a-b-c" {
		t.Errorf("NormalizeKey = %q, want %q", got, "a-b-c")
	}
}

func TestParse_Extraction(t *testing.T) {
	src := "ItemName_EN = {\n    Key.Sub = \"Hello, {name}!\",\n}\n"
	res := Parse(src, "EN", Options{})

	text, ok := res.Texts.Get("Key-Sub")
	if !ok {
		t.Fatal("key Key-Sub not extracted")
	}
	if text != "Hello, {name}!" {
		t.Errorf("literal = %q, want %q", text, "Hello, {name}!")
	}
	if res.Warnings != 0 {
		t.Errorf("warnings = %d, want 0", res.Warnings)
	}
}

func TestParse_RoundTripIdentity(t *testing.T) {
	// No assignment lines: rendering reproduces the file byte-for-byte with
	// only the line-1 language token replaced.
	src := "Recorded_Media_EN = {\n-- structural comment\n\n    RWMBroadcast,\n}\n"
	res := Parse(src, "EN", Options{})

	texts := NewTextMap()
	texts.Set(LanguageKey, "EN")
	out, err := res.Template.Render(texts)
	if err != nil {
		t.Fatal(err)
	}
	if out != src {
		t.Errorf("round trip failed:\ngot:  %q\nwant: %q", out, src)
	}
}

func TestParse_RenderTargetLanguage(t *testing.T) {
	src := "UI_EN = {\n    UI_Yes = \"Yes\",\n}\n"
	res := Parse(src, "EN", Options{})

	texts := NewTextMap()
	texts.Set(LanguageKey, "RU")
	texts.Set("UI_Yes", "Да")
	out, err := res.Template.Render(texts)
	if err != nil {
		t.Fatal(err)
	}
	want := "UI_RU = {\n    UI_Yes = \"Да\",\n}\n"
	if out != want {
		t.Errorf("render:\ngot:  %q\nwant: %q", out, want)
	}
}

func TestParse_MalformedQuote(t *testing.T) {
	src := "Items_EN = {\n    Foo=\"bar\n    Ok = \"fine\",\n}\n"
	var warned []string
	res := Parse(src, "EN", Options{OnWarn: func(format string, args ...any) {
		warned = append(warned, format)
	}})

	if res.Warnings != 1 {
		t.Errorf("warnings = %d, want 1", res.Warnings)
	}
	if len(warned) != 1 {
		t.Errorf("OnWarn calls = %d, want 1", len(warned))
	}
	if res.Texts.Has("Foo") {
		t.Error("malformed line must not contribute a mapping entry")
	}
	if !res.Texts.Has("Ok") {
		t.Error("well-formed line after malformed one must still parse")
	}

	// The malformed line passes through unchanged.
	texts := NewTextMap()
	texts.Set(LanguageKey, "EN")
	texts.Set("Ok", "fine")
	out, err := res.Template.Render(texts)
	if err != nil {
		t.Fatal(err)
	}
	if out != src {
		t.Errorf("malformed line altered:\ngot:  %q\nwant: %q", out, src)
	}
}

func TestParse_QuoteOnlyBeforeEquals(t *testing.T) {
	// A quote before '=' with none after it cannot hold a literal.
	src := "Items_EN = {\n    \"Odd = thing\n}\n"
	res := Parse(src, "EN", Options{})
	if res.Warnings != 1 {
		t.Errorf("warnings = %d, want 1", res.Warnings)
	}
	if res.Texts.Len() != 0 {
		t.Errorf("extracted %d entries, want 0", res.Texts.Len())
	}
}

func TestParse_DuplicateKeyLastWins(t *testing.T) {
	src := "UI_EN = {\n    A = \"first\",\n    A = \"second\",\n}\n"
	res := Parse(src, "EN", Options{})

	text, _ := res.Texts.Get("A")
	if text != "second" {
		t.Errorf("duplicate key value = %q, want %q", text, "second")
	}
	if res.Texts.Len() != 1 {
		t.Errorf("entries = %d, want 1", res.Texts.Len())
	}

	// Both occurrences render the final value.
	texts := NewTextMap()
	texts.Set(LanguageKey, "EN")
	texts.Set("A", "x")
	out, err := res.Template.Render(texts)
	if err != nil {
		t.Fatal(err)
	}
	want := "UI_EN = {\n    A = \"x\",\n    A = \"x\",\n}\n"
	if out != want {
		t.Errorf("render:\ngot:  %q\nwant: %q", out, want)
	}
}

func TestParse_InnerQuotesSpanLiteral(t *testing.T) {
	// The literal spans from the first quote after '=' to the last quote on
	// the line, including any quotes in between.
	src := "UI_EN = {\n    Say = \"he said \"hi\" loudly\",\n}\n"
	res := Parse(src, "EN", Options{})
	text, _ := res.Texts.Get("Say")
	if text != `he said "hi" loudly` {
		t.Errorf("literal = %q", text)
	}
}

func TestParse_ContinuationNotMergedIntoLiteral(t *testing.T) {
	// A line following an "..'-terminated assignment is copied verbatim and
	// never merged into the literal.
	src := "UI_EN = {\n    Long = \"part one\" ..\n    \"part two\",\n}\n"
	res := Parse(src, "EN", Options{})

	text, _ := res.Texts.Get("Long")
	if text != "part one" {
		t.Errorf("literal = %q, want %q", text, "part one")
	}
	// "part two" belongs to no key; the continuation line renders verbatim.
	if res.Texts.Len() != 1 {
		t.Errorf("entries = %d, want 1", res.Texts.Len())
	}
}

func TestParse_DanglingContinuationMarkerIsSkip(t *testing.T) {
	// An "..'-terminated line with no open statement is structural.
	src := "UI_EN = {\n    something ..\n}\n"
	res := Parse(src, "EN", Options{})
	if res.Texts.Len() != 0 {
		t.Errorf("entries = %d, want 0", res.Texts.Len())
	}

	texts := NewTextMap()
	texts.Set(LanguageKey, "EN")
	out, err := res.Template.Render(texts)
	if err != nil {
		t.Fatal(err)
	}
	if out != src {
		t.Errorf("round trip failed:\ngot:  %q\nwant: %q", out, src)
	}
}

func TestParse_CommentLine(t *testing.T) {
	src := "UI_EN = {\n    -- A = \"not extracted\"  hmm\n}\n"
	// Assignment test wins over the comment marker when both apply.
	res := Parse(src, "EN", Options{})
	if !res.Texts.Has("-- A") {
		t.Error("assignment classification must take precedence over comment marker")
	}

	src2 := "UI_EN = {\n    -- plain comment\n}\n"
	res2 := Parse(src2, "EN", Options{})
	if res2.Texts.Len() != 0 {
		t.Errorf("entries = %d, want 0", res2.Texts.Len())
	}
}

func TestParse_BracesInOpaqueLines(t *testing.T) {
	src := "UI_EN = {\n    table = { nested = true },\n}\n"
	res := Parse(src, "EN", Options{})

	texts := NewTextMap()
	texts.Set(LanguageKey, "EN")
	out, err := res.Template.Render(texts)
	if err != nil {
		t.Fatal(err)
	}
	if out != src {
		t.Errorf("braces not preserved:\ngot:  %q\nwant: %q", out, src)
	}
	if !strings.Contains(res.Template.String(), "{{ nested = true }}") {
		t.Errorf("verbatim braces not escaped in template: %q", res.Template.String())
	}
}

func TestParse_FirstLineNeverAssignment(t *testing.T) {
	src := "Greeting_EN = \"EN\"\n"
	res := Parse(src, "EN", Options{})
	if res.Texts.Len() != 0 {
		t.Errorf("first line extracted %d entries, want 0", res.Texts.Len())
	}

	// Every occurrence of the source ID becomes the language placeholder.
	texts := NewTextMap()
	texts.Set(LanguageKey, "DE")
	out, err := res.Template.Render(texts)
	if err != nil {
		t.Fatal(err)
	}
	if out != "Greeting_DE = \"DE\"\n" {
		t.Errorf("language line = %q", out)
	}
}

func TestParse_CRLF(t *testing.T) {
	src := "UI_EN = {\r\n    A = \"x\",\r\n}\r\n"
	res := Parse(src, "EN", Options{})

	text, _ := res.Texts.Get("A")
	if text != "x" {
		t.Errorf("literal = %q, want %q", text, "x")
	}
	texts := NewTextMap()
	texts.Set(LanguageKey, "EN")
	texts.Set("A", "x")
	out, err := res.Template.Render(texts)
	if err != nil {
		t.Fatal(err)
	}
	if out != src {
		t.Errorf("CRLF round trip failed:\ngot:  %q\nwant: %q", out, src)
	}
}

func TestRender_MissingKeyFails(t *testing.T) {
	src := "UI_EN = {\n    A = \"x\",\n}\n"
	res := Parse(src, "EN", Options{})

	texts := NewTextMap()
	texts.Set(LanguageKey, "EN")
	_, err := res.Template.Render(texts)
	if err == nil {
		t.Fatal("expected error for missing placeholder key")
	}
	if !errors.Is(err, ErrMissingText) {
		t.Errorf("error = %v, want ErrMissingText", err)
	}
}

func TestParseTexts_SkipsFirstLine(t *testing.T) {
	content := "UI_RU = {\n    A = \"один\",\n    B = \"два\",\n}\n"
	texts := ParseTexts(content)
	if texts.Len() != 2 {
		t.Fatalf("entries = %d, want 2", texts.Len())
	}
	if v, _ := texts.Get("A"); v != "один" {
		t.Errorf("A = %q", v)
	}
}

func TestParseTexts_NormalizesKeys(t *testing.T) {
	content := "UI_RU = {\n    Key.Sub = \"значение\",\n}\n"
	texts := ParseTexts(content)
	if v, ok := texts.Get("Key-Sub"); !ok || v != "значение" {
		t.Errorf("Key-Sub = %q, %v", v, ok)
	}
}

func TestParseTexts_IgnoresMalformed(t *testing.T) {
	content := "UI_RU = {\n    Broken = \"oops\n}\n"
	texts := ParseTexts(content)
	if texts.Len() != 0 {
		t.Errorf("entries = %d, want 0", texts.Len())
	}
}

func TestTextMap_Order(t *testing.T) {
	m := NewTextMap()
	m.Set("b", "1")
	m.Set("a", "2")
	m.Set("b", "3") // overwrite keeps position

	keys := m.Keys()
	if len(keys) != 2 || keys[0] != "b" || keys[1] != "a" {
		t.Errorf("keys = %v, want [b a]", keys)
	}
	if v, _ := m.Get("b"); v != "3" {
		t.Errorf("b = %q, want 3", v)
	}
}

func TestTextMap_Delete(t *testing.T) {
	m := NewTextMap()
	m.Set("a", "1")
	m.Set("b", "2")
	m.Delete("a")
	if m.Has("a") {
		t.Error("a still present after Delete")
	}
	if keys := m.Keys(); len(keys) != 1 || keys[0] != "b" {
		t.Errorf("keys = %v, want [b]", keys)
	}
}

func TestTemplate_Keys(t *testing.T) {
	src := "UI_EN = {\n    A = \"x\",\n    B = \"y\",\n    A = \"z\",\n}\n"
	res := Parse(src, "EN", Options{})
	keys := res.Template.Keys()
	want := []Key{LanguageKey, "A", "B"}
	if len(keys) != len(want) {
		t.Fatalf("keys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] = %q, want %q", i, keys[i], want[i])
		}
	}
}

func TestParse_NoTrailingNewline(t *testing.T) {
	src := "UI_EN = {\n    A = \"x\",\n}"
	res := Parse(src, "EN", Options{})
	texts := NewTextMap()
	texts.Set(LanguageKey, "EN")
	texts.Set("A", "x")
	out, err := res.Template.Render(texts)
	if err != nil {
		t.Fatal(err)
	}
	if out != src {
		t.Errorf("round trip failed:\ngot:  %q\nwant: %q", out, src)
	}
}
