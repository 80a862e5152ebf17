package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/japaniel/lingomorph/pkg/anki"
	"github.com/japaniel/lingomorph/pkg/config"
	"github.com/japaniel/lingomorph/pkg/db"
	"github.com/japaniel/lingomorph/pkg/dictionary"
	"github.com/japaniel/lingomorph/pkg/fingerprint"
	"github.com/japaniel/lingomorph/pkg/ingest"
	"github.com/japaniel/lingomorph/pkg/llm"
	"github.com/japaniel/lingomorph/pkg/llm/factory"
	"github.com/japaniel/lingomorph/pkg/normalize"
	"github.com/japaniel/lingomorph/pkg/observe"
)

const usage = `Usage: lingomorph [global flags] <command> [flags]

Commands:
  init          write a default settings file
  sync          sync vocabulary from Anki
  adapt         adapt text (-text) or a web page (-url)
  ask           ask a follow-up question about a history entry
  add           add a word to the Anki deck
  fingerprint   regenerate (or -show) the vocabulary fingerprint
  lookup        show the stored record for a lemma
  history       list or -delete adaptation history
  decks         list Anki decks and check the note type
  dict          download the Japanese dictionary and fill definitions
  serve         run the HTTP API

Global flags:
`

// lemmaMemoSize bounds the AI normalization memo, in words.
const lemmaMemoSize = 20000

type app struct {
	configPath string
	dbPath     string
	dictPath   string

	store    *config.Store
	settings config.Settings
	out      io.Writer
	log      *slog.Logger
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	global := flag.NewFlagSet("lingomorph", flag.ContinueOnError)
	a := &app{out: out}
	global.StringVar(&a.configPath, "config", defaultConfigPath(), "Path to the YAML settings file")
	global.StringVar(&a.dbPath, "db", "lingomorph.db", "Path to SQLite database")
	global.StringVar(&a.dictPath, "dict", "jmdict-eng-common.json", "Path to the JMdict-Simplified JSON file (Japanese only)")
	global.Usage = func() {
		fmt.Fprint(global.Output(), usage)
		global.PrintDefaults()
	}
	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		global.Usage()
		return errors.New("missing command")
	}

	a.store = config.NewStore(a.configPath)
	cmd, rest := global.Arg(0), global.Args()[1:]
	if cmd == "init" {
		return a.cmdInit()
	}

	s, err := a.store.Load()
	if err != nil {
		return err
	}
	a.settings = s
	a.log = newLogger(s.LogLevel)
	slog.SetDefault(a.log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch cmd {
	case "sync":
		return a.cmdSync(ctx, rest)
	case "adapt":
		return a.cmdAdapt(ctx, rest)
	case "ask":
		return a.cmdAsk(ctx, rest)
	case "add":
		return a.cmdAdd(ctx, rest)
	case "fingerprint":
		return a.cmdFingerprint(ctx, rest)
	case "lookup":
		return a.cmdLookup(rest)
	case "history":
		return a.cmdHistory(rest)
	case "decks":
		return a.cmdDecks(ctx, rest)
	case "dict":
		return a.cmdDict(ctx, rest)
	case "serve":
		return a.cmdServe(ctx, rest)
	}
	global.Usage()
	return fmt.Errorf("unknown command %q", cmd)
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "lingomorph.yaml"
	}
	return filepath.Join(dir, "lingomorph", "settings.yaml")
}

func newLogger(level config.LogLevel) *slog.Logger {
	var l slog.Level
	switch level {
	case config.LogDebug:
		l = slog.LevelDebug
	case config.LogWarn:
		l = slog.LevelWarn
	case config.LogError:
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

func (a *app) openDB() (*sql.DB, error) {
	conn, err := db.Open(a.dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", a.dbPath, err)
	}
	return conn, nil
}

func (a *app) ankiClient() *anki.Client {
	return anki.NewClient(a.settings.AnkiConnectURL, anki.WithTimeout(a.settings.RequestTimeout))
}

// optionalCompleter returns the configured backend, or one that always fails
// when the settings name none, so optional AI steps fall back.
func (a *app) optionalCompleter(m *observe.Metrics) llm.Completer {
	c, err := factory.New(a.settings, m)
	if err != nil {
		a.log.Warn("completion backend unavailable, AI steps will fall back", "error", err)
		return llm.Unavailable(err)
	}
	return c
}

// glossary loads the JMdict file for Japanese learners. It returns nil when
// the target language is not Japanese or the file is missing.
func (a *app) glossary() *dictionary.Glossary {
	if !strings.EqualFold(strings.TrimSpace(a.settings.TargetLanguage), "japanese") {
		return nil
	}
	if _, err := os.Stat(a.dictPath); err != nil {
		a.log.Debug("dictionary not found, definitions will not be filled", "path", a.dictPath)
		return nil
	}
	g, err := dictionary.LoadGlossary(a.dictPath)
	if err != nil {
		a.log.Warn("failed to load dictionary", "path", a.dictPath, "error", err)
		return nil
	}
	a.log.Info("dictionary loaded", "spellings", g.Len())
	return g
}

// newSyncer wires the sync pipeline. Progress lines go to a.out when verbose.
func (a *app) newSyncer(conn *sql.DB, m *observe.Metrics, verbose bool) (*ingest.Syncer, error) {
	completer := a.optionalCompleter(m)
	memo, err := normalize.NewMemo(lemmaMemoSize)
	if err != nil {
		return nil, err
	}

	sy := ingest.NewSyncer(conn, a.ankiClient(), a.settings)
	sy.Normalizer = &normalize.BatchNormalizer{
		Completer: completer,
		Language:  a.settings.TargetLanguage,
		Memo:      memo,
		Logger:    a.log,
	}
	sy.Fingerprints = &fingerprint.Generator{DB: conn, Completer: completer, Logger: a.log}
	sy.SettingsStore = a.store
	if g := a.glossary(); g != nil {
		sy.Glossary = g
	}
	sy.Logger = a.log
	sy.Metrics = m
	if verbose {
		sy.OnProgress = func(e ingest.Event) {
			fmt.Fprintln(a.out, e.Message)
		}
	}
	return sy, nil
}

func (a *app) cmdInit() error {
	if _, err := os.Stat(a.configPath); err == nil {
		fmt.Fprintf(a.out, "Settings already exist at %s\n", a.configPath)
		return nil
	}
	if err := a.store.Save(config.Default()); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Wrote default settings to %s\n", a.configPath)
	return nil
}
