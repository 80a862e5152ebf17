package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/japaniel/lingomorph/pkg/adapt"
	"github.com/japaniel/lingomorph/pkg/api"
	"github.com/japaniel/lingomorph/pkg/article"
	"github.com/japaniel/lingomorph/pkg/db"
	"github.com/japaniel/lingomorph/pkg/dictionary"
	"github.com/japaniel/lingomorph/pkg/fingerprint"
	"github.com/japaniel/lingomorph/pkg/llm/factory"
	"github.com/japaniel/lingomorph/pkg/observe"
)

func (a *app) cmdSync(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sync", flag.ContinueOnError)
	quiet := fs.Bool("q", false, "Only print the summary")
	if err := fs.Parse(args); err != nil {
		return err
	}

	conn, err := a.openDB()
	if err != nil {
		return err
	}
	defer conn.Close()

	sy, err := a.newSyncer(conn, nil, !*quiet)
	if err != nil {
		return err
	}
	res, err := sy.Sync(ctx)
	if err != nil {
		return err
	}
	if res.Deck == "" {
		fmt.Fprintf(a.out, "No deck found for %s.\n", a.settings.TargetLanguage)
		return nil
	}
	fmt.Fprintf(a.out, "Sync complete: %d words from %q.\n", res.Total, res.Deck)
	for _, w := range res.Errors {
		fmt.Fprintf(a.out, "Warning: %s\n", w)
	}
	if res.Fingerprint != "" {
		fmt.Fprintf(a.out, "Fingerprint: %s\n", res.Fingerprint)
	}
	return nil
}

func (a *app) newAdapter(conn db.DBExecutor) (*adapt.Service, error) {
	completer, err := factory.New(a.settings, nil)
	if err != nil {
		return nil, err
	}
	return &adapt.Service{
		DB:        conn,
		Completer: completer,
		Settings:  a.settings,
		Anki:      a.ankiClient(),
		Logger:    a.log,
	}, nil
}

func (a *app) cmdAdapt(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("adapt", flag.ContinueOnError)
	text := fs.String("text", "", "Text to adapt")
	url := fs.String("url", "", "Web page to fetch and adapt")
	noSave := fs.Bool("no-save", false, "Do not append the result to history")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if (*text == "") == (*url == "") {
		return errors.New("adapt: provide exactly one of -text or -url")
	}

	conn, err := a.openDB()
	if err != nil {
		return err
	}
	defer conn.Close()

	svc, err := a.newAdapter(conn)
	if err != nil {
		return err
	}

	input := *text
	if *url != "" {
		fmt.Fprintf(a.out, "Fetching %s...\n", *url)
		var f article.Fetcher
		art, err := f.Fetch(ctx, *url)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Title: %s\n", art.Title)
		input = art.Text
	}

	res, err := svc.Adapt(ctx, input)
	if err != nil {
		return err
	}
	if !*noSave {
		if err := db.SaveAdaptation(conn, *res); err != nil {
			return err
		}
	}

	fmt.Fprintln(a.out, res.Adapted)
	fmt.Fprintln(a.out)
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TOKEN\tLEMMA\tSTATUS\tLEVEL\tDEFINITION")
	for _, w := range res.Words {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", w.Text, w.Lemma, w.Status, w.Level, w.Definition)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if !*noSave {
		fmt.Fprintf(a.out, "\nSaved as %s\n", res.ID)
	}
	return nil
}

func (a *app) cmdAsk(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("ask", flag.ContinueOnError)
	id := fs.String("id", "", "History entry id")
	question := fs.String("q", "", "Question")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" || strings.TrimSpace(*question) == "" {
		return errors.New("ask: -id and -q are required")
	}
	conn, err := a.openDB()
	if err != nil {
		return err
	}
	defer conn.Close()

	svc, err := a.newAdapter(conn)
	if err != nil {
		return err
	}
	reply, err := svc.Ask(ctx, *id, *question)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, reply.Content)
	return nil
}

func (a *app) cmdAdd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	lemma := fs.String("lemma", "", "Dictionary form to add")
	def := fs.String("def", "", "Definition for the back of the card")
	if err := fs.Parse(args); err != nil {
		return err
	}
	conn, err := a.openDB()
	if err != nil {
		return err
	}
	defer conn.Close()

	svc := &adapt.Service{DB: conn, Settings: a.settings, Anki: a.ankiClient(), Logger: a.log}
	added, err := svc.AddToVocabulary(ctx, *lemma, *def)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Added %q to deck %q (note %d).\n", strings.TrimSpace(*lemma), added.Deck, added.NoteID)
	return nil
}

func (a *app) cmdFingerprint(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("fingerprint", flag.ContinueOnError)
	show := fs.Bool("show", false, "Print the stored fingerprint without regenerating")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *show {
		fp := a.settings.Fingerprint
		if fp == "" {
			fp = fingerprint.NoDataFingerprint
		}
		fmt.Fprintln(a.out, fp)
		return nil
	}

	conn, err := a.openDB()
	if err != nil {
		return err
	}
	defer conn.Close()

	g := &fingerprint.Generator{DB: conn, Completer: a.optionalCompleter(nil), Logger: a.log}
	fp := g.Generate(ctx, a.settings)
	if err := a.store.SaveFingerprint(fp); err != nil {
		return err
	}
	a.log.Debug("fingerprint saved", "path", a.store.Path())
	fmt.Fprintln(a.out, fp)
	return nil
}

func (a *app) cmdLookup(args []string) error {
	fs := flag.NewFlagSet("lookup", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("lookup: expected one lemma")
	}
	conn, err := a.openDB()
	if err != nil {
		return err
	}
	defer conn.Close()

	lemma := strings.ToLower(strings.TrimSpace(fs.Arg(0)))
	rec, err := db.GetVocabByLemma(conn, lemma)
	if errors.Is(err, db.ErrNotFound) {
		return fmt.Errorf("%q is not in your vocabulary", lemma)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s (%s) [%s] note %d\n", rec.Lemma, rec.Word, rec.Status, rec.ID)
	if rec.Definition != "" {
		fmt.Fprintf(a.out, "  %s\n", rec.Definition)
	}
	return nil
}

func (a *app) cmdHistory(args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "Number of entries to list (0 for all)")
	del := fs.String("delete", "", "Delete the entry with this id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	conn, err := a.openDB()
	if err != nil {
		return err
	}
	defer conn.Close()

	if *del != "" {
		if err := db.DeleteAdaptation(conn, *del); err != nil {
			return fmt.Errorf("delete %s: %w", *del, err)
		}
		fmt.Fprintf(a.out, "Deleted %s\n", *del)
		return nil
	}

	items, err := db.ListAdaptations(conn, *limit)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Fprintln(a.out, "No adaptations yet.")
		return nil
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tWORDS\tCHAT\tTEXT")
	for _, it := range items {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", it.ID, it.CreatedAt.Format("2006-01-02 15:04"),
			len(it.Words), len(it.ChatHistory), preview(it.Adapted, 40))
	}
	return tw.Flush()
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func (a *app) cmdDecks(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("decks", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	c := a.ankiClient()
	v, err := c.Version(ctx)
	if err != nil {
		return fmt.Errorf("AnkiConnect at %s: %w", a.settings.AnkiConnectURL, err)
	}
	fmt.Fprintf(a.out, "AnkiConnect API v%d\n", v)
	decks, err := c.DeckNames(ctx)
	if err != nil {
		return err
	}
	for _, d := range decks {
		fmt.Fprintln(a.out, d)
	}

	models, err := c.ModelNames(ctx)
	if err != nil {
		return err
	}
	if !contains(models, a.settings.AnkiNoteType) {
		fmt.Fprintf(a.out, "Warning: note type %q not found\n", a.settings.AnkiNoteType)
		return nil
	}
	fields, err := c.ModelFieldNames(ctx, a.settings.AnkiNoteType)
	if err != nil {
		return err
	}
	for _, want := range []string{a.settings.AnkiFrontField, a.settings.AnkiBackField} {
		if !contains(fields, want) {
			fmt.Fprintf(a.out, "Warning: note type %q has no field %q (fields: %s)\n",
				a.settings.AnkiNoteType, want, strings.Join(fields, ", "))
		}
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func (a *app) cmdDict(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("dict", flag.ContinueOnError)
	fill := fs.Bool("fill", true, "Fill empty definitions in the vocabulary store")
	if err := fs.Parse(args); err != nil {
		return err
	}
	f := &dictionary.Fetcher{Logger: a.log}
	if err := f.Ensure(ctx, a.dictPath); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Dictionary ready at %s\n", a.dictPath)
	if !*fill {
		return nil
	}

	g, err := dictionary.LoadGlossary(a.dictPath)
	if err != nil {
		return err
	}
	conn, err := a.openDB()
	if err != nil {
		return err
	}
	defer conn.Close()
	n, err := g.FillDefinitions(conn, a.log)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Updated definitions for %d words.\n", n)
	return nil
}

func (a *app) cmdServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", "127.0.0.1:8787", "Listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	shutdown, err := observe.InitProvider()
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			a.log.Warn("metrics shutdown", "error", err)
		}
	}()
	m := observe.DefaultMetrics()

	conn, err := a.openDB()
	if err != nil {
		return err
	}
	defer conn.Close()

	sy, err := a.newSyncer(conn, m, false)
	if err != nil {
		return err
	}
	svc := &adapt.Service{
		DB:        conn,
		Completer: a.optionalCompleter(m),
		Settings:  a.settings,
		Anki:      a.ankiClient(),
		Logger:    a.log,
		Metrics:   m,
	}
	srv := &api.Server{
		DB:       conn,
		Syncer:   sy,
		Adapter:  svc,
		Articles: &article.Fetcher{},
		Settings: a.store,
		Metrics:  m,
		Logger:   a.log,
	}

	if a.settings.AutoSync {
		go func() {
			res, err := srv.Sync(ctx)
			if err != nil {
				a.log.Error("startup sync failed", "error", err)
				return
			}
			a.log.Info("startup sync done", "words", res.Total, "warnings", len(res.Errors))
		}()
	}

	fmt.Fprintf(a.out, "Serving on http://%s\n", *addr)
	if err := srv.Run(ctx, *addr); err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "Shut down.")
	return nil
}
