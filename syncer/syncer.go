// Package syncer drives a full synchronization run: for every script
// file and target language it parses the source, merges existing and
// imported texts, machine-translates what is still missing, and writes
// the reconstructed target file in the language's charset.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Poltergeist-ix/pz-translate-zx/langinfo"
	"github.com/Poltergeist-ix/pz-translate-zx/lockfile"
	"github.com/Poltergeist-ix/pz-translate-zx/merge"
	"github.com/Poltergeist-ix/pz-translate-zx/scriptfile"
)

// Backend translates batches of texts into a target language selected
// with SetTarget. translate.Client implements it.
type Backend interface {
	SetTarget(code, name string)
	TranslateBatch(ctx context.Context, texts []string) ([]string, error)
}

// Options configures a sync run.
type Options struct {
	// Dir is the Translate directory holding one subdirectory per language.
	Dir string
	// Source is the source language ID (e.g. "EN").
	Source string
	// Languages are the target language IDs.
	Languages []string
	// Files are the script file names (without the _<LANG>.txt suffix).
	Files []string
	// Create lists language IDs whose directory is created when missing.
	Create map[string]bool
	// ImportDir is an optional overlay directory with the Dir layout;
	// its texts win over existing target texts.
	ImportDir string
	// Backend translates missing texts. Nil skips pairs that need
	// translation but still rewrites fully covered ones.
	Backend Backend
	// Lock enables incremental retranslation when RetranslateChanged is set.
	Lock *lockfile.LockFile
	// RetranslateChanged re-sends keys whose source text changed since
	// the last recorded run.
	RetranslateChanged bool
	// DryRun reports what would happen without writing anything.
	DryRun bool

	// OnLog emits informational messages.
	OnLog func(format string, args ...any)
	// OnWarn emits recoverable problems (also counted in Warnings).
	OnWarn func(format string, args ...any)
	// OnError emits per-unit failures that don't abort the run.
	OnError func(format string, args ...any)
	// OnProgress is called after each (file, language) unit.
	OnProgress func(file, lang string, done, total int)
}

func (o *Options) log(format string, args ...any) {
	if o.OnLog != nil {
		o.OnLog(format, args...)
	}
}

func (o *Options) errorf(format string, args ...any) {
	if o.OnError != nil {
		o.OnError(format, args...)
	} else if o.OnLog != nil {
		o.OnLog(format, args...)
	}
}

// Syncer runs the synchronization.
type Syncer struct {
	opts Options

	// Warnings counts parse and skip warnings accumulated during Run.
	Warnings int
}

// New builds a Syncer. Options are not validated here; Run resolves
// languages and reports problems as it goes.
func New(opts Options) *Syncer {
	return &Syncer{opts: opts}
}

func (s *Syncer) warn(format string, args ...any) {
	s.Warnings++
	if s.opts.OnWarn != nil {
		s.opts.OnWarn(format, args...)
	}
}

// Path returns the script file path for a language, following the
// Translate layout: <dir>/<LANG>/<File>_<LANG>.txt.
func Path(dir, langID, file string) string {
	return filepath.Join(dir, langID, file+"_"+langID+".txt")
}

// ResolveLanguages filters the configured targets down to languages
// whose directory exists, creating directories for the create set.
func (s *Syncer) ResolveLanguages() ([]langinfo.Language, error) {
	var langs []langinfo.Language
	for _, id := range s.opts.Languages {
		lang, ok := langinfo.Resolve(id)
		if !ok {
			return nil, fmt.Errorf("unknown language %q", id)
		}
		dir := filepath.Join(s.opts.Dir, lang.ID)
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			langs = append(langs, lang)
			continue
		}
		if s.opts.Create[lang.ID] {
			if !s.opts.DryRun {
				if err := os.MkdirAll(dir, 0755); err != nil {
					return nil, fmt.Errorf("creating %s: %w", dir, err)
				}
			}
			langs = append(langs, lang)
		}
	}
	return langs, nil
}

// Run synchronizes every configured file into every resolved language.
// It stops early only on context cancellation or a template invariant
// violation; provider and write failures are reported and skip the
// current (file, language) pair.
func (s *Syncer) Run(ctx context.Context) error {
	source, ok := langinfo.Resolve(s.opts.Source)
	if !ok {
		return fmt.Errorf("unknown source language %q", s.opts.Source)
	}

	langs, err := s.ResolveLanguages()
	if err != nil {
		return err
	}

	total := len(s.opts.Files) * len(langs)
	done := 0

	for _, file := range s.opts.Files {
		if err := ctx.Err(); err != nil {
			return err
		}

		src, err := s.parseSource(source, file)
		if err != nil {
			return err
		}

		for _, lang := range langs {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := s.syncUnit(ctx, source, lang, file, src); err != nil {
				return err
			}
			done++
			if s.opts.OnProgress != nil {
				s.opts.OnProgress(file, lang.ID, done, total)
			}
		}
	}
	return nil
}

// parseSource reads and parses the source-language file. A missing file
// yields nil, which deletes the corresponding targets.
func (s *Syncer) parseSource(source langinfo.Language, file string) (*scriptfile.Result, error) {
	path := Path(s.opts.Dir, source.ID, file)
	content, err := langinfo.ReadFile(path, source.Charset)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	res := scriptfile.Parse(content, source.ID, scriptfile.Options{
		OnWarn: func(format string, args ...any) {
			if s.opts.OnWarn != nil {
				s.opts.OnWarn(format, args...)
			}
		},
	})
	s.Warnings += res.Warnings
	return res, nil
}

// syncUnit handles one (file, language) pair.
func (s *Syncer) syncUnit(ctx context.Context, source, lang langinfo.Language, file string, src *scriptfile.Result) error {
	targetPath := Path(s.opts.Dir, lang.ID, file)

	// Source absent or empty: the target has nothing to mirror.
	if src == nil || src.Texts.Len() == 0 {
		if _, err := os.Stat(targetPath); err == nil {
			if s.opts.DryRun {
				s.opts.log("would delete %s", targetPath)
				return nil
			}
			if err := os.Remove(targetPath); err != nil {
				s.opts.errorf("deleting %s: %v", targetPath, err)
				return nil
			}
			s.opts.log("deleted %s", targetPath)
			if s.opts.Lock != nil {
				s.opts.Lock.RemoveTarget(lockfile.TargetKey(lang.ID, file))
			}
		}
		return nil
	}

	s.opts.log("checking %s, %s, %s", file, lang.ID, lang.Text)

	existing := s.readTexts(targetPath, lang.Charset)
	var overlay *scriptfile.TextMap
	if s.opts.ImportDir != "" {
		overlay = s.readTexts(Path(s.opts.ImportDir, lang.ID, file), lang.Charset)
	}

	target := lockfile.TargetKey(lang.ID, file)
	if s.opts.RetranslateChanged && s.opts.Lock != nil && existing != nil {
		for _, key := range s.opts.Lock.ChangedKeys(target, src.Texts) {
			existing.Delete(key)
		}
	}

	merged := merge.Merge(lang.ID, merge.Sources{
		Source:   src.Texts,
		Existing: existing,
		Overlay:  overlay,
	})

	if len(merged.Missing) > 0 {
		texts := merged.MissingTexts(src.Texts)
		s.opts.log("untranslated texts: %d", len(texts))

		if s.opts.DryRun || s.opts.Backend == nil {
			s.warn("skipping %s %s: %d texts need translation", lang.ID, file, len(texts))
			return nil
		}

		s.opts.Backend.SetTarget(lang.TrCode, lang.Text)
		translations, err := s.opts.Backend.TranslateBatch(ctx, texts)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			s.opts.errorf("translating %s %s: %v", lang.ID, file, err)
			return nil
		}
		if err := merged.Fill(translations); err != nil {
			s.opts.errorf("translating %s %s: %v", lang.ID, file, err)
			return nil
		}
	}

	if s.opts.DryRun {
		s.opts.log("would write %s", targetPath)
		return nil
	}

	rendered, err := src.Template.Render(merged.Texts)
	if err != nil {
		// A placeholder without a text is a template invariant
		// violation, not a per-unit problem.
		return fmt.Errorf("rendering %s %s: %w", lang.ID, file, err)
	}

	if err := langinfo.WriteFile(targetPath, rendered, lang.Charset); err != nil {
		s.opts.errorf("failed to write %s %s: %v", lang.ID, file, err)
		return nil
	}

	if s.opts.Lock != nil {
		s.opts.Lock.UpdateBatch(target, src.Texts)
		s.opts.Lock.Clean(target, src.Texts)
	}
	return nil
}

// readTexts parses target-language texts from a file, returning nil
// when the file doesn't exist or can't be read.
func (s *Syncer) readTexts(path, charset string) *scriptfile.TextMap {
	content, err := langinfo.ReadFile(path, charset)
	if err != nil {
		return nil
	}
	return scriptfile.ParseTexts(content)
}

// ---------------------------------------------------------------------------
// Repository maintenance: .gitattributes seeding and re-encoding
// ---------------------------------------------------------------------------

// CheckGitattributes writes a .gitattributes file into dir when none
// exists, declaring the per-language working-tree encodings so git
// stores every file as UTF-8. Returns true when the file was created.
func CheckGitattributes(dir string) (bool, error) {
	path := filepath.Join(dir, ".gitattributes")
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}

	var sb strings.Builder
	sb.WriteString("# Working-tree encodings for Project Zomboid translation files.\n")
	for _, id := range langinfo.IDs() {
		lang := langinfo.Registry[id]
		enc := langinfo.GitEncoding(lang.Charset)
		if enc == "" || strings.EqualFold(enc, "UTF-8") {
			continue
		}
		fmt.Fprintf(&sb, "%s/*.txt text working-tree-encoding=%s\n", id, enc)
	}

	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		return false, fmt.Errorf("writing %s: %w", path, err)
	}
	return true, nil
}

// Reencode rewrites existing target files, reading them with the
// charsets in read (language ID -> charset name) and writing them back
// with the registry charset. Used after fixing a wrong encoding.
func Reencode(dir string, read map[string]string, languages, files []string) error {
	for _, id := range languages {
		lang, ok := langinfo.Resolve(id)
		if !ok {
			return fmt.Errorf("unknown language %q", id)
		}
		readCharset := read[lang.ID]
		if readCharset == "" {
			readCharset = lang.Charset
		}
		for _, file := range files {
			path := Path(dir, lang.ID, file)
			content, err := langinfo.ReadFile(path, readCharset)
			if err != nil {
				if os.IsNotExist(err) {
					continue
				}
				return fmt.Errorf("reading %s: %w", path, err)
			}
			if err := langinfo.WriteFile(path, content, lang.Charset); err != nil {
				return fmt.Errorf("writing %s: %w", path, err)
			}
		}
	}
	return nil
}

// ReencodeInitial rewrites existing files assuming they already use the
// registry charsets. Run it when first adding the .gitattributes file
// so git renormalizes every translation in one commit.
func ReencodeInitial(dir string, languages, files []string) error {
	return Reencode(dir, nil, languages, files)
}
