package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/malaya-ai/malaya/libs/query-engine/internal/index"
	"github.com/malaya-ai/malaya/libs/query-engine/internal/intent"
	"github.com/malaya-ai/malaya/libs/query-engine/internal/lexicon"
	"github.com/malaya-ai/malaya/libs/query-engine/pkg/engine"
)

// newNormalizeCmd creates the normalize subcommand.
func newNormalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "normalize <text>",
		Short: "Rewrite colloquial text into standard Malay",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine(cmd.Context(), engine.LexiconOnly())
			if err != nil {
				return err
			}
			defer e.Close()

			out, err := e.Analyze(cmd.Context(), engine.Turn{Text: joinArgs(args)})
			if err != nil {
				return err
			}
			if outputJSON {
				return printJSON(out.Normalization)
			}

			n := out.Normalization
			fmt.Println(n.StandardForm)
			if verbose {
				ui.Info("retrieval form: %s", n.RetrievalForm)
				for _, s := range n.Substitutions {
					ui.Step("pass %d: %q -> %q (%s)", s.Pass, s.Surface, s.Canonical, categoryLabel(s.Category))
				}
			}
			return nil
		},
	}
}

// newAnalyzeCmd creates the analyze subcommand.
func newAnalyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <text>",
		Short: "Detect dialects and discourse particles",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine(cmd.Context(), engine.LexiconOnly())
			if err != nil {
				return err
			}
			defer e.Close()

			out, err := e.Analyze(cmd.Context(), engine.Turn{Text: joinArgs(args)})
			if err != nil {
				return err
			}
			if outputJSON {
				return printJSON(map[string]interface{}{
					"dialects":      out.Dialects,
					"particles":     out.Particles,
					"dialect_hint":  out.Handoff.DialectHint,
					"particle_hint": out.Handoff.ParticleHint,
				})
			}

			if len(out.Dialects) == 0 {
				ui.Info("No dialect detected")
			}
			for _, d := range out.Dialects {
				ui.Success("%s (%d terms: %s)", d.Profile.DisplayName, d.Count, strings.Join(d.Terms, ", "))
			}
			for _, p := range out.Particles {
				pos := "medial"
				if p.Position.Final {
					pos = "final"
				}
				ui.Step("particle %q: %s, %s", p.Particle, p.Function, pos)
			}
			return nil
		},
	}
}

// newDecideCmd creates the decide subcommand.
func newDecideCmd() *cobra.Command {
	var history []string

	cmd := &cobra.Command{
		Use:   "decide <text>",
		Short: "Show whether a turn would trigger retrieval",
		Long: `Decide runs the intent gate over a turn. Prior turns can be given with
--history, oldest first, as "user:text" or "assistant:text".`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			turns, err := parseHistory(history)
			if err != nil {
				return err
			}
			e, err := openEngine(cmd.Context(), engine.LexiconOnly())
			if err != nil {
				return err
			}
			defer e.Close()

			out, err := e.Analyze(cmd.Context(), engine.Turn{Text: joinArgs(args), History: turns})
			if err != nil {
				return err
			}
			if outputJSON {
				return printJSON(out.Decision)
			}

			d := out.Decision
			if d.ShouldRetrieve {
				ui.Success("retrieve (%s, confidence %.2f)", d.Reason, d.Confidence)
			} else {
				ui.Info("skip retrieval (%s, confidence %.2f)", d.Reason, d.Confidence)
			}
			if len(d.Signals) > 0 {
				ui.Step("signals: %s", strings.Join(d.Signals, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&history, "history", nil, "prior turn as role:text (repeatable)")
	return cmd
}

// newQueryCmd creates the query subcommand.
func newQueryCmd() *cobra.Command {
	var topK int

	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Run the full pipeline and print the ranked context",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if topK > 0 {
				cfg.Retrieval.TopK = topK
			}
			e, err := openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			sp := ui.Spinner("Retrieving...")
			out, err := e.Understand(cmd.Context(), engine.Turn{Text: joinArgs(args)})
			sp.Stop()
			if err != nil {
				return err
			}
			if outputJSON {
				return printJSON(out)
			}

			ui.Info("normalized: %s", out.Handoff.NormalizedText)
			ui.Info("decision: %s (%.2f)", out.Decision.Reason, out.Decision.Confidence)
			if out.Retrieval == nil {
				ui.Warning("Retrieval skipped for this turn")
				return nil
			}
			if out.Handoff.Degraded {
				ui.Warning("All retrieval sources failed")
			}
			for _, o := range out.Retrieval.Outcomes {
				ui.Step("%s: %s, %d candidates, %s", o.Source, o.Outcome, o.Candidates, o.Latency)
			}
			for i, c := range out.Handoff.Context {
				title := c.Title
				if title == "" {
					title = c.DocID
				}
				fmt.Printf("%d. [%.3f] %s (%s, %s)\n", i+1, c.Score, title, strings.Join(c.Sources, "+"), c.Tier)
				if c.URL != "" {
					fmt.Printf("   %s\n", c.URL)
				}
				if verbose {
					fmt.Printf("   %s\n", c.Content)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "number of results (default from config)")
	return cmd
}

// newChatCmd creates the interactive chat subcommand.
func newChatCmd() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat interactively using the configured generator",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := openEngine(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			if watch {
				go func() {
					if err := e.Watch(ctx); err != nil {
						logger.Error().Err(err).Msg("Lexicon watcher stopped")
					}
				}()
			}

			var history []intent.Turn
			scanner := bufio.NewScanner(os.Stdin)
			for {
				fmt.Fprint(os.Stderr, "> ")
				if !scanner.Scan() {
					return scanner.Err()
				}
				text := strings.TrimSpace(scanner.Text())
				if text == "" {
					continue
				}

				reply, err := e.Respond(ctx, engine.Turn{Text: text, History: history})
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					ui.Error("%v", err)
					continue
				}
				if outputJSON {
					if err := printJSON(reply); err != nil {
						return err
					}
				} else {
					if reply.Degraded {
						ui.Warning("answering without retrieved context")
					}
					fmt.Println(reply.Text)
				}
				history = append(history,
					intent.Turn{Role: intent.RoleUser, Text: text},
					intent.Turn{Role: intent.RoleAssistant, Text: reply.Text},
				)
			}
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "reload the lexicon when its files change")
	return cmd
}

// newIndexCmd creates the index command group.
func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Manage the local lexical and vector indexes",
	}

	var seedPath string
	build := &cobra.Command{
		Use:   "build",
		Short: "Load documents into the local indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := seedPath
			if path == "" {
				path = cfg.Index.SeedPath
			}
			if path == "" {
				return errors.New("no documents: pass --docs or set index.seed_path")
			}
			docs, err := index.LoadSeed(path)
			if err != nil {
				return err
			}

			e, err := openEngine(cmd.Context(), engine.WithoutSeed())
			if err != nil {
				return err
			}
			defer e.Close()

			bar := ui.ProgressBar(int64(len(docs)), "Indexing")
			err = e.BuildIndex(cmd.Context(), docs, func(done, total int) {
				bar.Set(int64(done))
			})
			bar.Finish()
			if err != nil {
				return err
			}
			if outputJSON {
				return printJSON(map[string]interface{}{"documents": len(docs), "source": path})
			}
			ui.Success("Indexed %d documents from %s", len(docs), path)
			return nil
		},
	}
	build.Flags().StringVar(&seedPath, "docs", "", "JSON document file (default: index.seed_path)")

	cmd.AddCommand(build)
	return cmd
}

// newLexiconCmd creates the lexicon command group.
func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the web search result cache",
	}

	purge := &cobra.Command{
		Use:   "purge",
		Short: "Drop cached web search results",
		Long: `Drop cached web search results so the next queries go upstream.

Only useful with the redis cache driver; the memory cache lives and dies
with each process.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Cache.Driver != "redis" {
				ui.Warning("cache driver is %q, nothing persists between runs", cfg.Cache.Driver)
			}
			e, err := openEngine(cmd.Context(), engine.WithoutSeed())
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.PurgeWebCache(cmd.Context()); err != nil {
				return err
			}
			if outputJSON {
				return printJSON(map[string]interface{}{"purged": true, "driver": cfg.Cache.Driver})
			}
			ui.Success("Web search cache purged")
			return nil
		},
	}

	cmd.AddCommand(purge)
	return cmd
}

func newLexiconCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lexicon",
		Short: "Validate and report on lexicon datasets",
	}

	validate := &cobra.Command{
		Use:   "validate [paths...]",
		Short: "Check lexicon files without loading them into the engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			paths := args
			if len(paths) == 0 {
				paths = cfg.Lexicon.Paths
			}
			store, err := lexicon.Load(paths, lexicon.WithMinActiveTerms(cfg.Lexicon.MinActiveTerms))
			if err != nil {
				var le *lexicon.LoadError
				if outputJSON && errors.As(err, &le) {
					_ = printJSON(map[string]interface{}{
						"valid":   false,
						"kind":    le.Kind,
						"source":  le.Source,
						"locator": le.Locator,
						"message": le.Message,
					})
				}
				return err
			}

			st := store.Stats()
			if outputJSON {
				return printJSON(map[string]interface{}{"valid": true, "stats": st})
			}
			ui.Success("Lexicon %s is valid (%d files)", st.Version, st.Sources)
			return nil
		},
	}

	var includeDraft bool
	report := &cobra.Command{
		Use:   "report",
		Short: "Summarize entries and dialect profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := lexicon.Load(cfg.Lexicon.Paths, lexicon.WithMinActiveTerms(cfg.Lexicon.MinActiveTerms))
			if err != nil {
				return err
			}
			var qopts []lexicon.QueryOption
			if includeDraft {
				qopts = append(qopts, lexicon.IncludeDraft())
			}
			st := store.Stats()
			dialects := store.Dialects(qopts...)

			if outputJSON {
				return printJSON(map[string]interface{}{
					"stats":     st,
					"dialects":  dialects,
					"particles": store.Particles(),
				})
			}

			ui.Section(fmt.Sprintf("Lexicon %s", st.Version))
			cats := make([]string, 0, len(st.Entries))
			for c := range st.Entries {
				cats = append(cats, string(c))
			}
			sort.Strings(cats)
			for _, c := range cats {
				fmt.Printf("  %-10s %d\n", c, st.Entries[lexicon.Category(c)])
			}
			fmt.Printf("  %-10s %d\n", "draft", st.DraftEntries)

			ui.Section("Dialects")
			for _, d := range dialects {
				entries := store.EntriesForDialect(d.Code, qopts...)
				fmt.Printf("  %-12s %-20s %s, %d entries, min %d matches\n",
					d.Code, d.DisplayName, d.Status, len(entries), d.MinMatchCount)
			}
			return nil
		},
	}
	report.Flags().BoolVar(&includeDraft, "include-draft", false, "include draft dialects and entries")

	cmd.AddCommand(validate, report)
	return cmd
}

// parseHistory reads "role:text" turns.
func parseHistory(raw []string) ([]intent.Turn, error) {
	turns := make([]intent.Turn, 0, len(raw))
	for _, r := range raw {
		role, text, ok := strings.Cut(r, ":")
		role = strings.ToLower(strings.TrimSpace(role))
		if !ok || (role != intent.RoleUser && role != intent.RoleAssistant) {
			return nil, fmt.Errorf("invalid history turn %q: want user:text or assistant:text", r)
		}
		turns = append(turns, intent.Turn{Role: role, Text: strings.TrimSpace(text)})
	}
	return turns, nil
}

func categoryLabel(c lexicon.Category) string {
	if c == "" {
		return "elongation"
	}
	return string(c)
}
