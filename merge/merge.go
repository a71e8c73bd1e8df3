// Package merge combines translation text sources for one (file, language)
// pair into the mapping used to render the target file.
//
// Precedence, lowest to highest: the current target file's own text, then
// the optional import overlay. Keys still uncovered after layering are
// reported as missing so the caller can fetch them from the translation
// provider. The source key set is authoritative: keys present only in the
// target or overlay are dropped, which is how stale keys are pruned when the
// source file changes.
package merge

import (
	"fmt"

	"github.com/Poltergeist-ix/pz-translate-zx/scriptfile"
)

// Sources holds the layered inputs for one target file.
type Sources struct {
	// Source is the source-language mapping; its key set defines the result.
	Source *scriptfile.TextMap
	// Existing is the parsed current target file. May be nil.
	Existing *scriptfile.TextMap
	// Overlay is the parsed import overlay; it wins over Existing. May be nil.
	Overlay *scriptfile.TextMap
}

// Result is the merged mapping for one target file.
type Result struct {
	// Texts covers the reserved language key plus every source key that
	// already has text.
	Texts *scriptfile.TextMap
	// Missing lists source keys with no text yet, in source order.
	Missing []scriptfile.Key
}

// Merge layers the sources for the given target language. The reserved
// language key is always bound to langID, independent of the layers.
func Merge(langID string, src Sources) *Result {
	res := &Result{Texts: scriptfile.NewTextMap()}
	res.Texts.Set(scriptfile.LanguageKey, langID)

	if src.Source == nil {
		return res
	}
	for _, key := range src.Source.Keys() {
		if src.Overlay != nil {
			if text, ok := src.Overlay.Get(key); ok {
				res.Texts.Set(key, text)
				continue
			}
		}
		if src.Existing != nil {
			if text, ok := src.Existing.Get(key); ok {
				res.Texts.Set(key, text)
				continue
			}
		}
		res.Missing = append(res.Missing, key)
	}
	return res
}

// Fill assigns freshly translated texts to the missing keys, in order, and
// clears the missing list. The translation count must match exactly.
func (r *Result) Fill(translations []string) error {
	if len(translations) != len(r.Missing) {
		return fmt.Errorf("got %d translations for %d missing keys", len(translations), len(r.Missing))
	}
	for i, key := range r.Missing {
		r.Texts.Set(key, translations[i])
	}
	r.Missing = nil
	return nil
}

// MissingTexts returns the source text for each missing key, in the same
// order as Missing. This is the batch sent to the translation provider.
func (r *Result) MissingTexts(source *scriptfile.TextMap) []string {
	texts := make([]string, len(r.Missing))
	for i, key := range r.Missing {
		texts[i], _ = source.Get(key)
	}
	return texts
}
