// Package config — pz-translate.yaml configuration file support.
//
// When a pz-translate.yaml file exists in the project root, it is the
// sole source of truth for the sync run. Every field has a sensible
// default so a minimal file only needs the translate directory.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Poltergeist-ix/pz-translate-zx/langinfo"
)

// ---------------------------------------------------------------------------
// YAML schema
// ---------------------------------------------------------------------------

// File is the top-level pz-translate.yaml structure.
type File struct {
	// Dir is the Translate directory relative to the project root,
	// e.g. "media/lua/shared/Translate".
	Dir string `yaml:"dir"`
	// Source is the source language ID (default "EN").
	Source string `yaml:"source,omitempty"`
	// Files limits the run to these script files (without the _<LANG>.txt
	// suffix). Empty means the full canonical list.
	Files []string `yaml:"files,omitempty"`
	// Languages limits the run to these target language IDs.
	// Empty means every registry language with an existing directory.
	Languages []string `yaml:"languages,omitempty"`
	// Exclude removes language IDs from the run.
	Exclude []string `yaml:"exclude,omitempty"`
	// Create lists languages whose directory is created when missing.
	Create []string `yaml:"create,omitempty"`
	// ImportDir is an optional overlay directory with the same layout as
	// Dir; its texts take precedence over existing target texts.
	ImportDir string `yaml:"import_dir,omitempty"`
	// Gitattributes enables .gitattributes seeding for Dir (default true).
	Gitattributes *bool `yaml:"gitattributes,omitempty"`
	// Provider configures the translation backend.
	Provider Provider `yaml:"provider,omitempty"`
}

// Provider is the translation backend block.
type Provider struct {
	// ID selects the backend: "google", "custom-openai", "ollama".
	ID string `yaml:"id,omitempty"`
	// Model is the model name for LLM backends.
	Model string `yaml:"model,omitempty"`
	// BaseURL overrides the backend endpoint.
	BaseURL string `yaml:"base_url,omitempty"`
	// Proxy is an optional HTTP(S) proxy URL.
	Proxy string `yaml:"proxy,omitempty"`
	// Timeout is the per-request timeout (default 120s).
	Timeout time.Duration `yaml:"-"`
	// ChunkSize is the number of texts per LLM request (default 30).
	ChunkSize int `yaml:"chunk_size,omitempty"`
	// RequestDelay is the pause between requests.
	RequestDelay time.Duration `yaml:"-"`
	// MaxRetries is the retry count for rate-limited requests (default 3).
	MaxRetries int `yaml:"max_retries,omitempty"`
}

// UnmarshalYAML accepts Go duration strings ("90s", "2m") for the
// timeout and request_delay fields.
func (p *Provider) UnmarshalYAML(value *yaml.Node) error {
	var aux struct {
		ID           string `yaml:"id"`
		Model        string `yaml:"model"`
		BaseURL      string `yaml:"base_url"`
		Proxy        string `yaml:"proxy"`
		Timeout      string `yaml:"timeout"`
		ChunkSize    int    `yaml:"chunk_size"`
		RequestDelay string `yaml:"request_delay"`
		MaxRetries   int    `yaml:"max_retries"`
	}
	if err := value.Decode(&aux); err != nil {
		return err
	}
	p.ID = aux.ID
	p.Model = aux.Model
	p.BaseURL = aux.BaseURL
	p.Proxy = aux.Proxy
	p.ChunkSize = aux.ChunkSize
	p.MaxRetries = aux.MaxRetries
	if aux.Timeout != "" {
		d, err := time.ParseDuration(aux.Timeout)
		if err != nil {
			return fmt.Errorf("provider timeout: %w", err)
		}
		p.Timeout = d
	}
	if aux.RequestDelay != "" {
		d, err := time.ParseDuration(aux.RequestDelay)
		if err != nil {
			return fmt.Errorf("provider request_delay: %w", err)
		}
		p.RequestDelay = d
	}
	return nil
}

// FileName is the default config file name.
const FileName = "pz-translate.yaml"

// APIKeyEnv is the environment variable holding the provider API key.
// A .env file in the project root is loaded before reading it.
const APIKeyEnv = "PZTRANSLATE_API_KEY"

// DefaultFiles is the canonical list of Project Zomboid translation files.
var DefaultFiles = []string{
	"Challenge",
	"ContextMenu",
	"DynamicRadio",
	"EvolvedRecipeName",
	"Farming",
	"GameSound",
	"IG_UI",
	"ItemName",
	"Items",
	"MakeUp",
	"Moodles",
	"Moveables",
	"MultiStageBuild",
	"Recipes",
	"Recorded_Media",
	"Sandbox",
	"Stash",
	"SurvivalGuide",
	"Tooltip",
	"UI",
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads and validates pz-translate.yaml from the given directory.
// Returns nil if no config file exists. A .env file next to it is loaded
// into the process environment when present.
func Load(rootDir string) (*File, error) {
	godotenv.Load(filepath.Join(rootDir, ".env"))

	path := filepath.Join(rootDir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &f, nil
}

// Validate fills defaults and rejects unknown files and languages.
func (f *File) Validate() error {
	if f.Source == "" {
		f.Source = "EN"
	}
	src, ok := langinfo.Resolve(f.Source)
	if !ok {
		return fmt.Errorf("unknown source language %q", f.Source)
	}
	f.Source = src.ID

	for i, name := range f.Files {
		name = strings.TrimSpace(name)
		if !knownFile(name) {
			return fmt.Errorf("unknown translation file %q", name)
		}
		f.Files[i] = name
	}

	for _, list := range [][]string{f.Languages, f.Exclude, f.Create} {
		for i, id := range list {
			lang, ok := langinfo.Resolve(id)
			if !ok {
				return fmt.Errorf("unknown language %q", id)
			}
			list[i] = lang.ID
		}
	}

	return nil
}

func knownFile(name string) bool {
	for _, f := range DefaultFiles {
		if f == name {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Derived settings
// ---------------------------------------------------------------------------

// FileList returns the script files this run covers.
func (f *File) FileList() []string {
	if len(f.Files) == 0 {
		return DefaultFiles
	}
	return f.Files
}

// TargetLanguages returns the language IDs to translate into: the
// configured list (or the full registry) minus the source language and
// the exclude list.
func (f *File) TargetLanguages() []string {
	ids := f.Languages
	if len(ids) == 0 {
		ids = langinfo.IDs()
	}

	excluded := make(map[string]bool, len(f.Exclude)+1)
	excluded[f.Source] = true
	for _, id := range f.Exclude {
		excluded[id] = true
	}

	var out []string
	for _, id := range ids {
		if !excluded[id] {
			out = append(out, id)
		}
	}
	return out
}

// CreateSet returns the languages whose directories may be created.
func (f *File) CreateSet() map[string]bool {
	set := make(map[string]bool, len(f.Create))
	for _, id := range f.Create {
		set[id] = true
	}
	return set
}

// SeedGitattributes reports whether .gitattributes seeding is enabled.
func (f *File) SeedGitattributes() bool {
	return f.Gitattributes == nil || *f.Gitattributes
}

// APIKey returns the provider API key from the environment.
func (f *File) APIKey() string {
	return os.Getenv(APIKeyEnv)
}
