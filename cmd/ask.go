package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/askdb/askdb/internal/render"
	"github.com/askdb/askdb/internal/session"
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question about the database",
	Long: `Answer a question about the database.

The question is classified, turned into SQL by the configured model, checked
by the safety validator and run read-only. Failed drafts are corrected up to
--max-attempts times.`,
	Example: `  # Ask against the default environment
  askdb ask "How many tracks are there?"

  # Show the SQL and the reasoning trace
  askdb ask --show-sql --show-trace "Which customers bought both Rock and Metal tracks?"

  # Machine-readable output against a specific database
  askdb ask --db ./chinook.db --format json "List the tables"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

var (
	askFlags    sessionFlags
	askShowSQL  bool
	askTrace    bool
	askShowRows bool
	askFormat   string
)

func init() {
	rootCmd.AddCommand(askCmd)

	askFlags.register(askCmd)
	askCmd.Flags().BoolVar(&askShowSQL, "show-sql", false, "Print the SQL that produced the answer")
	askCmd.Flags().BoolVar(&askTrace, "show-trace", false, "Print the reasoning trace")
	askCmd.Flags().BoolVar(&askShowRows, "show-rows", false, "Print the result rows even when there is an answer")
	askCmd.Flags().StringVar(&askFormat, "format", "text", "Output format: text or json")
}

func runAsk(cmd *cobra.Command, args []string) error {
	if askFormat != "text" && askFormat != "json" {
		return fmt.Errorf("unsupported format %q (expected text or json)", askFormat)
	}

	env, err := resolveEnvironment()
	if err != nil {
		return err
	}
	if err := askFlags.apply(env); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	s, err := openSession(ctx, env, askFlags, nil)
	if err != nil {
		return err
	}
	defer closeQuietly(s)

	resp, err := s.Ask(ctx, strings.Join(args, " "))
	if resp != nil {
		if werr := writeResponse(cmd.OutOrStdout(), resp); werr != nil {
			return werr
		}
	}
	if err != nil {
		return err
	}
	if resp.Status.Failed() {
		return fmt.Errorf("question could not be answered (%s)", resp.Status)
	}
	return nil
}

func writeResponse(w io.Writer, resp *session.Response) error {
	if askFormat == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	return render.Response(w, resp, render.Options{ShowSQL: askShowSQL, ShowTrace: askTrace, ShowRows: askShowRows})
}
