// pz-translate — Project Zomboid translation file synchronizer with
// machine translation support.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Poltergeist-ix/pz-translate-zx/config"
	"github.com/Poltergeist-ix/pz-translate-zx/i18n"
	"github.com/Poltergeist-ix/pz-translate-zx/langinfo"
	"github.com/Poltergeist-ix/pz-translate-zx/lockfile"
	"github.com/Poltergeist-ix/pz-translate-zx/scriptfile"
	"github.com/Poltergeist-ix/pz-translate-zx/syncer"
	"github.com/Poltergeist-ix/pz-translate-zx/translate"
)

// Version information (set via -ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// ANSI colors
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[0;31m"
	colorGreen  = "\033[0;32m"
	colorYellow = "\033[1;33m"
	colorBlue   = "\033[0;34m"
)

func logInfo(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorBlue+"[INFO]"+colorReset+" "+format+"\n", args...)
}

func logSuccess(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorGreen+"[OK]"+colorReset+" "+format+"\n", args...)
}

func logWarning(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorYellow+"[WARN]"+colorReset+" "+format+"\n", args...)
}

func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorRed+"[ERROR]"+colorReset+" "+format+"\n", args...)
}

// ---------------------------------------------------------------------------
// Global flag
// ---------------------------------------------------------------------------

var rootDir string

// ---------------------------------------------------------------------------
// Root command
// ---------------------------------------------------------------------------

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pz-translate",
		Short: "Project Zomboid translation file synchronizer",
		Long: `pz-translate — Project Zomboid translation file synchronizer.

Parses the source-language script files in a mod's Translate directory,
keeps every target language's files structurally identical to the source,
reuses existing translations and machine-translates only what is missing.

Commands:
  translate   Synchronize and translate all target languages
  status      Show per-language translation coverage
  languages   List the supported Project Zomboid languages
  reencode    Rewrite existing files in their registry charsets

Providers:
  google         Free Google translate endpoint (no key)
  custom-openai  Any OpenAI-compatible chat endpoint
  ollama         Ollama local server`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global persistent flag — inherited by all subcommands
	root.PersistentFlags().StringVar(&rootDir, "root", ".", "Project root directory")

	root.AddCommand(
		newTranslateCmd(),
		newStatusCmd(),
		newLanguagesCmd(),
		newReencodeCmd(),
		newVersionCmd(),
	)

	return root
}

func main() {
	i18n.Init("")
	if err := newRootCmd().Execute(); err != nil {
		logError("%v", err)
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// Configuration loading
// ---------------------------------------------------------------------------

// loadConfig reads pz-translate.yaml from the project root, falling back
// to defaults when no file exists. The default Translate directory is
// the standard mod layout when present, otherwise the root itself.
func loadConfig() (*config.File, error) {
	cfg, err := config.Load(rootDir)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		logInfo(i18n.T("No configuration file found, using defaults"))
		cfg = &config.File{}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	if cfg.Dir == "" {
		std := filepath.Join("media", "lua", "shared", "Translate")
		if info, err := os.Stat(filepath.Join(rootDir, std)); err == nil && info.IsDir() {
			cfg.Dir = std
		} else {
			cfg.Dir = "."
		}
	}
	return cfg, nil
}

func translateDir(cfg *config.File) string {
	if filepath.IsAbs(cfg.Dir) {
		return cfg.Dir
	}
	return filepath.Join(rootDir, cfg.Dir)
}

// ---------------------------------------------------------------------------
// translate (the sync run)
// ---------------------------------------------------------------------------

func newTranslateCmd() *cobra.Command {
	var (
		dir                string
		source             string
		files              []string
		langs              []string
		importDir          string
		providerID         string
		model              string
		apiKey             string
		baseURL            string
		proxy              string
		timeout            time.Duration
		chunkSize          int
		requestDelay       time.Duration
		maxRetries         int
		retranslateChanged bool
		dryRun             bool
	)

	cmd := &cobra.Command{
		Use:   "translate",
		Short: "Synchronize and translate all target languages",
		Long: `Synchronize every target language with the source-language files.

For each (file, language) pair the source file is parsed into a template,
existing target texts are reused, imported texts take precedence, and only
still-missing texts are sent to the provider in one ordered batch. Targets
whose source file disappeared are deleted.

Interrupting with Ctrl-C stops between units; files already written stay.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			// Flags override the config file.
			if dir != "" {
				cfg.Dir = dir
			}
			if source != "" {
				cfg.Source = source
			}
			if len(files) > 0 {
				cfg.Files = files
			}
			if len(langs) > 0 {
				cfg.Languages = langs
			}
			if importDir != "" {
				cfg.ImportDir = importDir
			}
			if providerID != "" {
				cfg.Provider.ID = providerID
			}
			if model != "" {
				cfg.Provider.Model = model
			}
			if baseURL != "" {
				cfg.Provider.BaseURL = baseURL
			}
			if proxy != "" {
				cfg.Provider.Proxy = proxy
			}
			if timeout > 0 {
				cfg.Provider.Timeout = timeout
			}
			if chunkSize > 0 {
				cfg.Provider.ChunkSize = chunkSize
			}
			if requestDelay > 0 {
				cfg.Provider.RequestDelay = requestDelay
			}
			if maxRetries > 0 {
				cfg.Provider.MaxRetries = maxRetries
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			return runTranslate(cfg, apiKey, retranslateChanged, dryRun)
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Translate directory (default from config or mod layout)")
	cmd.Flags().StringVar(&source, "source", "", "Source language ID (default EN)")
	cmd.Flags().StringSliceVar(&files, "files", nil, "Script files to sync (default: all)")
	cmd.Flags().StringSliceVar(&langs, "lang", nil, "Target language IDs (default: existing directories)")
	cmd.Flags().StringVar(&importDir, "import-dir", "", "Overlay directory whose texts win over existing ones")
	cmd.Flags().StringVar(&providerID, "provider", "", "Translation provider (google, custom-openai, ollama)")
	cmd.Flags().StringVar(&model, "model", "", "Model name for LLM providers")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "Provider API key (default: $"+config.APIKeyEnv+")")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Provider base URL override")
	cmd.Flags().StringVar(&proxy, "proxy", "", "HTTP/HTTPS proxy URL")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Per-request timeout")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "Texts per LLM request")
	cmd.Flags().DurationVar(&requestDelay, "request-delay", 0, "Pause between provider requests")
	cmd.Flags().IntVar(&maxRetries, "max-retries", 0, "Retries on rate limit")
	cmd.Flags().BoolVar(&retranslateChanged, "retranslate-changed", false, "Re-translate keys whose source text changed")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would happen without writing")

	_ = cmd.RegisterFlagCompletionFunc("provider", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{
			"google\tFree Google translate endpoint",
			"custom-openai\tOpenAI-compatible chat endpoint",
			"ollama\tOllama local server",
		}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = cmd.RegisterFlagCompletionFunc("lang", completeLanguages)
	_ = cmd.RegisterFlagCompletionFunc("files", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return config.DefaultFiles, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func completeLanguages(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	ids := langinfo.IDs()
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, fmt.Sprintf("%s\t%s", id, langinfo.Registry[id].Text))
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}

func runTranslate(cfg *config.File, apiKey string, retranslateChanged, dryRun bool) error {
	dir := translateDir(cfg)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return fmt.Errorf("invalid translation dir: %s", dir)
	}

	if cfg.SeedGitattributes() && !dryRun {
		created, err := syncer.CheckGitattributes(dir)
		if err != nil {
			return err
		}
		if created {
			targets := cfg.TargetLanguages()
			if err := syncer.ReencodeInitial(dir, targets, cfg.FileList()); err != nil {
				return err
			}
			logSuccess(i18n.T("Added .gitattributes file"))
		}
	}

	backend, err := buildBackend(cfg, apiKey)
	if err != nil {
		return err
	}

	lock, err := lockfile.Load(rootDir)
	if err != nil {
		return err
	}

	s := syncer.New(syncer.Options{
		Dir:                dir,
		Source:             cfg.Source,
		Languages:          cfg.TargetLanguages(),
		Files:              cfg.FileList(),
		Create:             cfg.CreateSet(),
		ImportDir:          cfg.ImportDir,
		Backend:            backend,
		Lock:               lock,
		RetranslateChanged: retranslateChanged,
		DryRun:             dryRun,
		OnLog:              logInfo,
		OnWarn: func(format string, args ...any) {
			logWarning(format, args...)
		},
		OnError: logError,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := s.Run(ctx)
	if ctx.Err() != nil {
		logWarning(i18n.T("Interrupted, stopping after the current file"))
	}

	if !dryRun {
		if err := lock.Save(); err != nil {
			logWarning("saving lock file: %v", err)
		}
	}

	logInfo(i18n.T("Translation warnings: %d"), s.Warnings)
	if runErr != nil && ctx.Err() == nil {
		return runErr
	}
	return nil
}

// buildBackend assembles the translate client from the provider block.
// A missing provider ID means sync-only mode without machine translation.
func buildBackend(cfg *config.File, apiKey string) (syncer.Backend, error) {
	id := cfg.Provider.ID
	if id == "" {
		return nil, nil
	}

	prov, ok := translate.DefaultProviders()[id]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q (valid: google, custom-openai, ollama)", id)
	}
	if cfg.Provider.BaseURL != "" {
		prov.BaseURL = cfg.Provider.BaseURL
	}
	if prov.BaseURL == "" {
		return nil, fmt.Errorf("provider %s needs --base-url", id)
	}
	prov.Model = cfg.Provider.Model
	prov.Proxy = cfg.Provider.Proxy
	if cfg.Provider.Timeout > 0 {
		prov.Timeout = cfg.Provider.Timeout
	}

	if apiKey == "" {
		apiKey = cfg.APIKey()
	}
	prov.APIKey = apiKey
	if id == translate.ProviderCustomOpenAI && apiKey == "" {
		logWarning("no API key set, use --api-key or $%s", config.APIKeyEnv)
	}

	src, _ := langinfo.Resolve(cfg.Source)
	return translate.New(prov, translate.Options{
		SourceCode:   src.TrCode,
		ChunkSize:    cfg.Provider.ChunkSize,
		RequestDelay: cfg.Provider.RequestDelay,
		MaxRetries:   cfg.Provider.MaxRetries,
		OnLog:        logInfo,
	}), nil
}

// ---------------------------------------------------------------------------
// status (read-only coverage statistics)
// ---------------------------------------------------------------------------

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show per-language translation coverage",
		Long: `Show how many source keys each language directory covers.

Reads the source-language files, then counts per language how many keys
already have a text in the corresponding target file. Does not modify
any files.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runStatus(cfg)
		},
	}

	return cmd
}

func runStatus(cfg *config.File) error {
	dir := translateDir(cfg)
	source, ok := langinfo.Resolve(cfg.Source)
	if !ok {
		return fmt.Errorf("unknown source language %q", cfg.Source)
	}

	// Parse all source files once.
	var (
		sources   []string
		texts     = map[string]*scriptfile.TextMap{}
		totalKeys int
	)
	for _, file := range cfg.FileList() {
		content, err := langinfo.ReadFile(syncer.Path(dir, source.ID, file), source.Charset)
		if err != nil {
			continue
		}
		res := scriptfile.Parse(content, source.ID, scriptfile.Options{})
		sources = append(sources, file)
		texts[file] = res.Texts
		totalKeys += res.Texts.Len()
	}
	if len(sources) == 0 {
		return fmt.Errorf("no source files found in %s/%s", dir, source.ID)
	}

	fmt.Fprintf(os.Stderr, "\n%sTranslation coverage%s (%d files, %d keys)\n", colorBlue, colorReset, len(sources), totalKeys)
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))

	for _, id := range cfg.TargetLanguages() {
		lang, _ := langinfo.Resolve(id)
		if _, err := os.Stat(filepath.Join(dir, lang.ID)); err != nil {
			continue
		}

		covered := 0
		for _, file := range sources {
			content, err := langinfo.ReadFile(syncer.Path(dir, lang.ID, file), lang.Charset)
			if err != nil {
				continue
			}
			target := scriptfile.ParseTexts(content)
			for _, key := range texts[file].Keys() {
				if target.Has(key) {
					covered++
				}
			}
		}

		pct := 0
		if totalKeys > 0 {
			pct = covered * 100 / totalKeys
		}
		color := colorRed
		switch {
		case pct == 100:
			color = colorGreen
		case pct >= 50:
			color = colorYellow
		}
		fmt.Fprintf(os.Stderr, "  %-5s %-24s %s%3d%%%s  (%d/%d)\n",
			lang.ID, lang.Text, color, pct, colorReset, covered, totalKeys)
	}

	fmt.Fprintln(os.Stderr)
	return nil
}

// ---------------------------------------------------------------------------
// languages (registry listing)
// ---------------------------------------------------------------------------

func newLanguagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "languages",
		Short: "List the supported Project Zomboid languages",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(os.Stderr, "\n%sLanguages%s\n", colorBlue, colorReset)
			fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))
			for _, id := range langinfo.IDs() {
				lang := langinfo.Registry[id]
				fmt.Fprintf(os.Stderr, "  %-5s %-28s %-12s %s\n", lang.ID, lang.Text, lang.Charset, lang.TrCode)
			}
			fmt.Fprintln(os.Stderr)
		},
	}
}

// ---------------------------------------------------------------------------
// reencode (charset maintenance)
// ---------------------------------------------------------------------------

func newReencodeCmd() *cobra.Command {
	var read []string

	cmd := &cobra.Command{
		Use:   "reencode",
		Short: "Rewrite existing files in their registry charsets",
		Long: `Rewrite every existing target file with its registry charset.

By default files are assumed to already use the correct charset; this
renormalizes them after adding .gitattributes. Use --read LANG=CHARSET
to convert files that were stored with a wrong encoding.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			readMap := map[string]string{}
			for _, pair := range read {
				id, charset, ok := strings.Cut(pair, "=")
				if !ok {
					return fmt.Errorf("invalid --read value %q, want LANG=CHARSET", pair)
				}
				lang, found := langinfo.Resolve(id)
				if !found {
					return fmt.Errorf("unknown language %q", id)
				}
				if _, err := langinfo.Encoding(charset); err != nil {
					return err
				}
				readMap[lang.ID] = charset
			}

			dir := translateDir(cfg)
			if err := syncer.Reencode(dir, readMap, cfg.TargetLanguages(), cfg.FileList()); err != nil {
				return err
			}
			logSuccess("reencoded files in %s", dir)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&read, "read", nil, "Read charset override per language (LANG=CHARSET)")
	_ = cmd.RegisterFlagCompletionFunc("read", completeLanguages)

	return cmd
}

// ---------------------------------------------------------------------------
// version (display version information)
// ---------------------------------------------------------------------------

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display version, commit hash, and build date.`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("pz-translate version %s\n", version)
			fmt.Printf("  commit:    %s\n", commit)
			fmt.Printf("  built:     %s\n", date)
		},
	}
}
