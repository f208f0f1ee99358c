// Package main provides the malaya CLI for inspecting and exercising the
// query engine.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/malaya-ai/malaya/libs/query-engine/internal/config"
	"github.com/malaya-ai/malaya/libs/query-engine/internal/observability"
	"github.com/malaya-ai/malaya/libs/query-engine/pkg/engine"
)

var (
	// Global flags
	cfgFile    string
	outputJSON bool
	verbose    bool

	// Configuration and logger
	cfg    *config.Config
	logger *observability.Logger
	ui     *UI
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "malaya",
	Short: "Malay conversational query engine CLI",
	Long: `malaya runs colloquial Malaysian Malay text through the query engine.

Use this tool to:
- Normalize shortforms, dialect terms and elongations
- Inspect dialect, particle and retrieval decisions for a turn
- Run hybrid retrieval and generate replies
- Build local indexes and validate lexicon datasets

All commands support --json for automation.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logFormat := "console"
		if outputJSON {
			logFormat = "json"
		}
		level := cfg.Observability.LogLevel
		if verbose {
			level = "debug"
		}

		logger = observability.NewLogger(observability.LogConfig{
			Level:       level,
			Format:      logFormat,
			Output:      os.Stderr,
			ServiceName: "malaya-cli",
		})
		ui = NewUI(outputJSON, os.Getenv("NO_COLOR") != "")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default: uses env vars)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	rootCmd.AddCommand(newNormalizeCmd())
	rootCmd.AddCommand(newAnalyzeCmd())
	rootCmd.AddCommand(newDecideCmd())
	rootCmd.AddCommand(newQueryCmd())
	rootCmd.AddCommand(newChatCmd())
	rootCmd.AddCommand(newIndexCmd())
	rootCmd.AddCommand(newCacheCmd())
	rootCmd.AddCommand(newLexiconCmd())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openEngine builds an engine from the loaded config.
func openEngine(ctx context.Context, opts ...engine.Option) (*engine.Engine, error) {
	opts = append([]engine.Option{engine.WithLogger(logger)}, opts...)
	e, err := engine.New(ctx, cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("start engine: %w", err)
	}
	return e, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}
