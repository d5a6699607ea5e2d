// xcloc: translate Apple String Catalogs (.xcstrings) with an OpenAI-compatible model.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/minios-linux/xcloc/config"
	"github.com/minios-linux/xcloc/langmeta"
	"github.com/minios-linux/xcloc/logging"
	"github.com/minios-linux/xcloc/report"
	"github.com/minios-linux/xcloc/telemetry"
	"github.com/minios-linux/xcloc/translate"
	"github.com/minios-linux/xcloc/workflow"
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

// ---------------------------------------------------------------------------
// Global state
// ---------------------------------------------------------------------------

type rootFlags struct {
	cfgFile    string
	verbose    bool
	quiet      bool
	reportPath string
	appContext string
}

// cli carries what PersistentPreRunE resolves for the subcommands.
type cli struct {
	v        *viper.Viper
	flags    rootFlags
	settings config.Settings
	logger   zerolog.Logger
	runID    string
	started  time.Time
	shutdown telemetry.Shutdown
}

// flagKeys maps persistent flags to the config keys they override.
var flagKeys = map[string]string{
	"model":              config.KeyModel,
	"base-url":           config.KeyBaseURL,
	"chunk-size":         config.KeyChunkSize,
	"max-concurrent":     config.KeyMaxConcurrent,
	"request-delay":      config.KeyRateLimitDelay,
	"temperature":        config.KeyTemperature,
	"placeholder-policy": config.KeyPlaceholderPolicy,
}

// ---------------------------------------------------------------------------
// Root command
// ---------------------------------------------------------------------------

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}

	root := &cobra.Command{
		Use:   "xcloc",
		Short: "Translate Apple String Catalogs with AI",
		Long: `xcloc: translate Apple String Catalogs (.xcstrings) with an OpenAI-compatible model.

Strings are sent in chunks, validated for iOS placeholders (%@, %lld, %d, ...)
and written back into the catalog. A timestamped backup is created next to
the catalog before every write.

Commands:
  languages      List languages present in a catalog
  keys           List all keys
  base-strings   List keys that need translating
  status         Show per-language translation progress
  translate      Translate without writing
  apply          Translate every key and write (overwrites)
  apply-missing  Translate only keys missing for a language and write
  translate-key  Translate one key into several languages and write

Configuration:
  OPENAI_API_KEY, OPENAI_MODEL, OPENAI_BASE_URL and TRANSLATION_* environment
  variables, or $HOME/.xcloc.yaml. Flags override both.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if c.shutdown == nil {
				return nil
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return c.shutdown(ctx)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.flags.cfgFile, "config", "", "config file (default is $HOME/.xcloc.yaml)")
	pf.BoolVarP(&c.flags.verbose, "verbose", "v", false, "Enable debug logging")
	pf.BoolVarP(&c.flags.quiet, "quiet", "q", false, "Only log errors")
	pf.StringVar(&c.flags.reportPath, "report", "", "Write a YAML run report to this file")
	pf.StringVar(&c.flags.appContext, "context", "", "Short description of the app, used in prompts")
	pf.String("model", "", "Chat model (OPENAI_MODEL)")
	pf.String("base-url", "", "OpenAI-compatible API base URL (OPENAI_BASE_URL)")
	pf.Int("chunk-size", 0, "Keys per request (TRANSLATION_CHUNK_SIZE)")
	pf.Int("max-concurrent", 0, "Maximum chunks in flight (TRANSLATION_MAX_CONCURRENT_CHUNKS)")
	pf.String("request-delay", "", "Seconds each request slot waits before calling the API (TRANSLATION_RATE_LIMIT_DELAY)")
	pf.Float64("temperature", 0, "Sampling temperature (TRANSLATION_TEMPERATURE)")
	pf.String("placeholder-policy", "", "warn or strict (TRANSLATION_PLACEHOLDER_POLICY)")
	bindFlags(c.v, pf)

	root.AddCommand(
		newLanguagesCmd(c),
		newKeysCmd(c),
		newBaseStringsCmd(c),
		newStatusCmd(c),
		newTranslateCmd(c),
		newApplyCmd(c),
		newApplyMissingCmd(c),
		newTranslateKeyCmd(c),
		newVersionCmd(),
	)

	return root
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) {
	for name, key := range flagKeys {
		_ = v.BindPFlag(key, fs.Lookup(name))
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, colorRed+"Error:"+colorReset+" %v\n", err)
		os.Exit(1)
	}
}

func (c *cli) setup(cmd *cobra.Command, args []string) error {
	settings, err := config.Load(c.v, c.flags.cfgFile)
	if err != nil {
		return err
	}
	c.settings = settings
	c.runID = uuid.NewString()
	c.started = time.Now()
	c.logger = logging.New(os.Stderr, logging.Options{
		Verbose: c.flags.verbose,
		Quiet:   c.flags.quiet,
		RunID:   c.runID,
	})
	if settings.ConfigFile != "" {
		c.logger.Debug().Str("file", settings.ConfigFile).Msg("using config file")
	}
	c.shutdown = telemetry.InitTracer("xcloc", version)
	return nil
}

// readService returns a Service for commands that never call the backend.
func (c *cli) readService() *workflow.Service {
	return workflow.New(nil, nil, c.logger)
}

// service wires the OpenAI backend, the translation pipeline and the
// filesystem store.
func (c *cli) service() (*workflow.Service, error) {
	s := c.settings
	if err := s.RequireAPIKey(); err != nil {
		return nil, err
	}

	backend := translate.Guard(
		translate.NewOpenAIBackend(translate.OpenAIConfig{
			APIKey:  s.APIKey,
			Model:   s.Model,
			BaseURL: s.BaseURL,
		}),
		translate.GuardOptions{
			Name:              "openai",
			BreakerFailures:   s.BreakerFailures,
			RequestsPerMinute: s.RequestsPerMinute,
			Logger:            c.logger,
		},
	)

	opts := pipelineOptions(s)
	opts.OnProgress = c.progress()
	opts.Logger = c.logger
	return workflow.New(translate.New(backend, opts), nil, c.logger), nil
}

// pipelineOptions maps settings onto translate.Options. A configured 0 for
// the request delay or the retry threshold switches that feature off rather
// than selecting the package default.
func pipelineOptions(s config.Settings) translate.Options {
	opts := translate.Options{
		ChunkSize:         s.ChunkSize,
		MaxConcurrent:     s.MaxConcurrent,
		RateLimitDelay:    s.RateLimitDelay,
		RetryThreshold:    s.RetryThreshold,
		Temperature:       float32(s.Temperature),
		RequestTimeout:    s.RequestTimeout,
		JobTimeout:        s.JobTimeout,
		PlaceholderPolicy: s.PlaceholderPolicy,
	}
	if opts.RateLimitDelay == 0 {
		opts.RateLimitDelay = -1
	}
	if opts.RetryThreshold == 0 {
		opts.RetryThreshold = -1
	}
	return opts
}

// progress returns a progress bar callback, or nil when stderr is not a
// terminal or logs would interleave with the bar.
func (c *cli) progress() func(lang string, done, total int) {
	if c.flags.verbose || c.flags.quiet || !isatty.IsTerminal(os.Stderr.Fd()) {
		return nil
	}
	var mu sync.Mutex
	bars := make(map[string]*progressbar.ProgressBar)
	return func(lang string, done, total int) {
		mu.Lock()
		defer mu.Unlock()

		bar, ok := bars[lang]
		if !ok {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowCount(),
				progressbar.OptionSetWidth(40),
				progressbar.OptionClearOnFinish(),
				progressbar.OptionSetDescription(fmt.Sprintf("[cyan]%s[reset] chunks", lang)),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "[green]=[reset]",
					SaucerHead:    "[green]>[reset]",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}))
			bars[lang] = bar
		}
		_ = bar.Set(done)
		if done >= total {
			_ = bar.Finish()
		}
	}
}

// writeReport saves the run report when --report was given.
func (c *cli) writeReport(operation, catalog string, langs ...report.Language) error {
	if c.flags.reportPath == "" {
		return nil
	}
	r := report.New(c.flags.reportPath, c.runID, operation, catalog, c.started)
	r.Model = c.settings.Model
	for _, l := range langs {
		r.Add(l)
	}
	if err := r.Save(time.Now()); err != nil {
		return err
	}
	translated, skipped := r.Totals()
	c.logger.Info().Str("path", r.Path()).Int("translated", translated).Int("skipped", skipped).Msg("report written")
	return nil
}

func summaryReport(sum *workflow.Summary) report.Language {
	return report.Language{
		Code:       sum.Language,
		Translated: len(sum.Translated),
		Skipped:    len(sum.Skipped),
		Written:    sum.Written,
		Backup:     sum.Backup,
		Reasons:    sum.Skipped,
	}
}

func keySummaryReport(sum *workflow.KeySummary) []report.Language {
	var langs []report.Language
	for _, lang := range sum.Languages {
		l := report.Language{Code: lang, Written: sum.Written, Backup: sum.Backup}
		if _, ok := sum.Translations[lang]; ok {
			l.Translated = 1
		} else {
			l.Skipped = 1
			l.Error = sum.Errors[lang]
		}
		langs = append(langs, l)
	}
	return langs
}

// ---------------------------------------------------------------------------
// version (display version information)
// ---------------------------------------------------------------------------

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display version, commit hash, and build date.`,
		// Version needs no configuration.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "xcloc version %s\n", version)
			fmt.Fprintf(out, "  commit:    %s\n", commit)
			fmt.Fprintf(out, "  built:     %s\n", date)
		},
	}

	return cmd
}

// ---------------------------------------------------------------------------
// Read-only commands
// ---------------------------------------------------------------------------

func newLanguagesCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "languages <catalog.xcstrings>",
		Short: "List languages present in a catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			langs, err := c.readService().Languages(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Supported languages: %s\n", strings.Join(langs, ", "))
			return nil
		},
	}
}

func newKeysCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "keys <catalog.xcstrings>",
		Short: "List all keys in document order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := c.readService().Keys(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Found %d keys:\n", len(keys))
			printLines(cmd.OutOrStdout(), keys)
			return nil
		},
	}
}

func newBaseStringsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "base-strings <catalog.xcstrings>",
		Short: "List keys that need translating",
		Long: `List the base language keys that translate, apply and apply-missing work on.
Entries marked "shouldTranslate": false are left out.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := c.readService().BaseStrings(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Base language keys (%d total):\n", len(keys))
			printLines(cmd.OutOrStdout(), keys)
			return nil
		},
	}
}

func newStatusCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "status <catalog.xcstrings>",
		Short: "Show per-language translation progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, total, langs, err := c.readService().Status(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			color := isTerminalWriter(out)

			fmt.Fprintf(out, "Source language: %s (%s)\n", src, langmeta.Name(src))
			fmt.Fprintf(out, "Total strings: %d\n\n", total)
			if len(langs) == 0 {
				fmt.Fprintln(out, "No translations yet.")
				return nil
			}
			fmt.Fprintf(out, "%-10s %-22s %-12s %-8s %-8s %s\n", "Lang", "Name", "Translated", "Review", "Missing", "Percent")
			fmt.Fprintln(out, strings.Repeat("─", 72))
			for _, l := range langs {
				meta := langmeta.Resolve(l.Code)
				name := meta.Name
				if meta.Flag != "" {
					name = meta.Flag + " " + name
				}
				fmt.Fprintf(out, "%-10s %-22s %-12d %-8d %-8d %s\n",
					l.Code, truncate(name, 22), l.Translated, l.NeedsReview, l.Missing, percentCell(l.Percent, color))
			}
			return nil
		},
	}
}

// ---------------------------------------------------------------------------
// Translating commands
// ---------------------------------------------------------------------------

func newTranslateCmd(c *cli) *cobra.Command {
	var lang string
	cmd := &cobra.Command{
		Use:   "translate <catalog.xcstrings> --lang <code>",
		Short: "Translate base strings without writing",
		Long: `Translate every base string into one language and print the results.
The catalog is not modified.

Example:
  xcloc translate Localizable.xcstrings --lang de`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.service()
			if err != nil {
				return err
			}
			sum, err := svc.TranslateOnly(cmd.Context(), args[0], lang, c.flags.appContext)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), sum.Format())
			return c.writeReport(string(sum.Mode), args[0], summaryReport(sum))
		},
	}
	cmd.Flags().StringVar(&lang, "lang", "", "Target language code, e.g. de, pt-BR, zh-Hans (required)")
	_ = cmd.MarkFlagRequired("lang")
	return cmd
}

func newApplyCmd(c *cli) *cobra.Command {
	var (
		lang  string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "apply <catalog.xcstrings> --lang <code>",
		Short: "Translate every base string and write the results",
		Long: `Translate every base string into one language and write the results,
overwriting existing values for that language.

If the language already exists in the catalog nothing is done unless --force
is given; use apply-missing to fill gaps instead.

Examples:
  xcloc apply Localizable.xcstrings --lang fr --context "a budgeting app"
  xcloc apply Localizable.xcstrings --lang fr --force`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.service()
			if err != nil {
				return err
			}
			sum, err := svc.ApplyAll(cmd.Context(), args[0], lang, c.flags.appContext, force)
			if sum != nil {
				fmt.Fprint(cmd.OutOrStdout(), sum.Format())
				if rerr := c.writeReport(string(sum.Mode), args[0], summaryReport(sum)); rerr != nil && err == nil {
					err = rerr
				}
			}
			return err
		},
	}
	cmd.Flags().StringVar(&lang, "lang", "", "Target language code (required)")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite a language that already exists")
	_ = cmd.MarkFlagRequired("lang")
	return cmd
}

func newApplyMissingCmd(c *cli) *cobra.Command {
	var lang string
	cmd := &cobra.Command{
		Use:   "apply-missing <catalog.xcstrings> --lang <code>",
		Short: "Translate only keys missing for a language and write",
		Long: `Translate the base strings that have no localization for the language and
write them. Existing values are never changed, so running it twice is a no-op.

Example:
  xcloc apply-missing Localizable.xcstrings --lang ja`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.service()
			if err != nil {
				return err
			}
			sum, err := svc.ApplyMissing(cmd.Context(), args[0], lang, c.flags.appContext)
			if sum != nil {
				fmt.Fprint(cmd.OutOrStdout(), sum.Format())
				if rerr := c.writeReport(string(sum.Mode), args[0], summaryReport(sum)); rerr != nil && err == nil {
					err = rerr
				}
			}
			return err
		},
	}
	cmd.Flags().StringVar(&lang, "lang", "", "Target language code (required)")
	_ = cmd.MarkFlagRequired("lang")
	return cmd
}

func newTranslateKeyCmd(c *cli) *cobra.Command {
	var key, langs string
	cmd := &cobra.Command{
		Use:   "translate-key <catalog.xcstrings> --key <key> --lang <codes>",
		Short: "Translate one key into several languages and write",
		Long: `Translate a single existing key into a comma-separated list of languages
and write the successful results.

Example:
  xcloc translate-key Localizable.xcstrings --key "Hello %@" --lang es,fr,de`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			codes, err := langmeta.ParseList(langs)
			if err != nil {
				return err
			}
			svc, err := c.service()
			if err != nil {
				return err
			}
			sum, err := svc.TranslateKey(cmd.Context(), args[0], key, codes, c.flags.appContext)
			if sum != nil {
				if err == nil {
					fmt.Fprint(cmd.OutOrStdout(), sum.Format())
				}
				if rerr := c.writeReport("translate-key", args[0], keySummaryReport(sum)...); rerr != nil && err == nil {
					err = rerr
				}
			}
			return err
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "Catalog key to translate (required)")
	cmd.Flags().StringVar(&langs, "lang", "", "Comma-separated target language codes (required)")
	_ = cmd.MarkFlagRequired("key")
	_ = cmd.MarkFlagRequired("lang")
	return cmd
}

// ---------------------------------------------------------------------------
// Output helpers
// ---------------------------------------------------------------------------

func printLines(w io.Writer, lines []string) {
	for _, l := range lines {
		fmt.Fprintln(w, l)
	}
}

func isTerminalWriter(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

// percentCell renders a percentage, colored red/yellow/green on terminals.
func percentCell(percent int, color bool) string {
	cell := fmt.Sprintf("%3d%%", percent)
	if !color {
		return cell
	}
	switch {
	case percent >= 100:
		return colorGreen + cell + colorReset
	case percent >= 50:
		return colorYellow + cell + colorReset
	case percent > 0:
		return colorBlue + cell + colorReset
	default:
		return colorRed + cell + colorReset
	}
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-1]) + "…"
}
