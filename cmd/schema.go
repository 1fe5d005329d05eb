package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/askdb/askdb/internal/executor"
	"github.com/askdb/askdb/internal/render"
	"github.com/askdb/askdb/internal/schema"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the schema snapshot questions are planned against",
	Long: `Introspect the database and print its schema snapshot: tables, columns,
keys, foreign keys and row counts.

The JSON output can be passed to 'askdb validate --snapshot' to validate SQL
offline.`,
	Example: `  # Compact text
  askdb schema --db ./chinook.db

  # One table
  askdb schema --table Invoice

  # Save a snapshot for offline validation
  askdb schema --format json > snapshot.json`,
	Args: cobra.NoArgs,
	RunE: runSchema,
}

var (
	schemaFormat    string
	schemaTable     string
	schemaRowCounts bool
)

func init() {
	rootCmd.AddCommand(schemaCmd)

	schemaCmd.Flags().StringVar(&schemaFormat, "format", "text", "Output format: text or json")
	schemaCmd.Flags().StringVar(&schemaTable, "table", "", "Describe a single table")
	schemaCmd.Flags().BoolVar(&schemaRowCounts, "row-counts", true, "Count the rows of each table")
}

func runSchema(cmd *cobra.Command, args []string) error {
	env, err := resolveEnvironment()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	h, err := executor.Open(ctx, env.DatabaseURL, executor.Options{Logger: logger.Named("executor")})
	if err != nil {
		return err
	}
	defer closeQuietly(h)

	snap, err := schema.Build(ctx, h.Source(schemaRowCounts))
	if err != nil {
		return fmt.Errorf("failed to introspect schema: %w", err)
	}

	out := cmd.OutOrStdout()
	if schemaTable != "" {
		text, ok := snap.Describe(schemaTable)
		if !ok {
			return fmt.Errorf("table %q not found (tables: %v)", schemaTable, snap.Tables())
		}
		_, err := fmt.Fprintln(out, text)
		return err
	}

	switch schemaFormat {
	case "json":
		return snap.WriteJSON(out)
	case "text":
		return render.Schema(out, snap)
	default:
		return fmt.Errorf("unsupported format %q (expected text or json)", schemaFormat)
	}
}
