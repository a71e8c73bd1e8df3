package merge

import (
	"testing"

	"github.com/Poltergeist-ix/pz-translate-zx/scriptfile"
)

func textMap(pairs ...string) *scriptfile.TextMap {
	m := scriptfile.NewTextMap()
	for i := 0; i+1 < len(pairs); i += 2 {
		m.Set(scriptfile.Key(pairs[i]), pairs[i+1])
	}
	return m
}

func TestMerge_ReusesExisting(t *testing.T) {
	res := Merge("RU", Sources{
		Source:   textMap("A", "x"),
		Existing: textMap("A", "y"),
	})

	if v, _ := res.Texts.Get("A"); v != "y" {
		t.Errorf("A = %q, want existing %q", v, "y")
	}
	if len(res.Missing) != 0 {
		t.Errorf("missing = %v, want none", res.Missing)
	}
}

func TestMerge_PrunesStaleKeys(t *testing.T) {
	res := Merge("RU", Sources{
		Source:   textMap("A", "x"),
		Existing: textMap("A", "y", "B", "z"),
	})

	if res.Texts.Has("B") {
		t.Error("stale key B must be pruned")
	}
	keys := res.Texts.Keys()
	if len(keys) != 2 || keys[0] != scriptfile.LanguageKey || keys[1] != "A" {
		t.Errorf("keys = %v, want [language A]", keys)
	}
}

func TestMerge_OverlayWinsOverExisting(t *testing.T) {
	res := Merge("RU", Sources{
		Source:   textMap("A", "src-a", "C", "src-c"),
		Existing: textMap("A", "old"),
		Overlay:  textMap("A", "overlay", "C", "c"),
	})

	if v, _ := res.Texts.Get("A"); v != "overlay" {
		t.Errorf("A = %q, want %q", v, "overlay")
	}
	if v, _ := res.Texts.Get("C"); v != "c" {
		t.Errorf("C = %q, want %q", v, "c")
	}
	if len(res.Missing) != 0 {
		t.Errorf("missing = %v, want none", res.Missing)
	}
}

func TestMerge_LanguageKeyAlwaysSet(t *testing.T) {
	res := Merge("DE", Sources{Source: textMap()})
	if v, _ := res.Texts.Get(scriptfile.LanguageKey); v != "DE" {
		t.Errorf("language = %q, want DE", v)
	}

	// Even a stray "language" entry in the target cannot override it.
	res = Merge("DE", Sources{
		Source:   textMap("A", "x"),
		Existing: textMap("language", "RU", "A", "y"),
	})
	if v, _ := res.Texts.Get(scriptfile.LanguageKey); v != "DE" {
		t.Errorf("language = %q, want DE", v)
	}
}

func TestMerge_MissingInSourceOrder(t *testing.T) {
	res := Merge("RU", Sources{
		Source:   textMap("B", "b", "A", "a", "C", "c"),
		Existing: textMap("A", "have"),
	})

	if len(res.Missing) != 2 || res.Missing[0] != "B" || res.Missing[1] != "C" {
		t.Errorf("missing = %v, want [B C]", res.Missing)
	}

	texts := res.MissingTexts(textMap("B", "b", "A", "a", "C", "c"))
	if len(texts) != 2 || texts[0] != "b" || texts[1] != "c" {
		t.Errorf("missing texts = %v, want [b c]", texts)
	}
}

func TestFill(t *testing.T) {
	res := Merge("RU", Sources{Source: textMap("A", "a", "B", "b")})
	if len(res.Missing) != 2 {
		t.Fatalf("missing = %v", res.Missing)
	}

	if err := res.Fill([]string{"один"}); err == nil {
		t.Error("expected count mismatch error")
	}

	if err := res.Fill([]string{"один", "два"}); err != nil {
		t.Fatal(err)
	}
	if v, _ := res.Texts.Get("A"); v != "один" {
		t.Errorf("A = %q", v)
	}
	if v, _ := res.Texts.Get("B"); v != "два" {
		t.Errorf("B = %q", v)
	}
	if len(res.Missing) != 0 {
		t.Errorf("missing not cleared: %v", res.Missing)
	}
}
