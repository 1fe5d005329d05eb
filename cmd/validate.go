package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/askdb/askdb/internal/executor"
	"github.com/askdb/askdb/internal/render"
	"github.com/askdb/askdb/internal/schema"
	"github.com/askdb/askdb/internal/sqlvalidation"
)

var validateCmd = &cobra.Command{
	Use:   "validate <sql>",
	Short: "Check a SQL statement against the safety rules without running it",
	Long: `Check a SQL statement against the safety rules and the schema without
running it, and print the normalized statement or the rejection reason.

The schema comes from, in order of preference:
  1. --ddl, a .sql file or a directory of .sql files with CREATE TABLE statements
  2. --snapshot, a JSON file written by 'askdb schema --format json'
  3. the database of the selected environment

Use - as the statement to read it from stdin.`,
	Example: `  # Against the live database
  askdb validate "SELECT * FROM Track"

  # Offline, against DDL
  askdb validate --ddl schema.sql "SELECT Cuntry FROM Customer"

  # JSON output for tooling
  echo "DELETE FROM Customer" | askdb validate --snapshot snapshot.json --format json -`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

var (
	validateDDL      string
	validateSnapshot string
	validateRowCap   int
	validateFormat   string
)

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&validateDDL, "ddl", "", "Path to a .sql file or directory describing the schema")
	validateCmd.Flags().StringVar(&validateSnapshot, "snapshot", "", "Path to a JSON schema snapshot")
	validateCmd.Flags().IntVar(&validateRowCap, "row-cap", sqlvalidation.DefaultRowCap, "LIMIT added to statements without one")
	validateCmd.Flags().StringVar(&validateFormat, "format", "text", "Output format: text or json")
}

func runValidate(cmd *cobra.Command, args []string) error {
	if validateFormat != "text" && validateFormat != "json" {
		return fmt.Errorf("unsupported format %q (expected text or json)", validateFormat)
	}

	statement := args[0]
	if statement == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read statement from stdin: %w", err)
		}
		statement = string(data)
	}

	snap, err := loadSnapshot(cmd.Context())
	if err != nil {
		return err
	}

	v := sqlvalidation.Validate(statement, snap, sqlvalidation.Options{RowCap: validateRowCap})

	out := cmd.OutOrStdout()
	if validateFormat == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return err
		}
	} else if err := render.Verdict(out, v); err != nil {
		return err
	}

	if !v.Accepted {
		return fmt.Errorf("statement rejected: %s", v.Reason)
	}
	return nil
}

func loadSnapshot(ctx context.Context) (*schema.Snapshot, error) {
	switch {
	case strings.TrimSpace(validateDDL) != "":
		src, err := schema.LoadDDL(validateDDL)
		if err != nil {
			return nil, fmt.Errorf("failed to load DDL: %w", err)
		}
		return schema.Build(ctx, src)
	case strings.TrimSpace(validateSnapshot) != "":
		return schema.LoadJSON(validateSnapshot)
	}

	env, err := resolveEnvironment()
	if err != nil {
		return nil, err
	}
	h, err := executor.Open(ctx, env.DatabaseURL, executor.Options{Logger: logger.Named("executor")})
	if err != nil {
		return nil, err
	}
	defer closeQuietly(h)

	snap, err := schema.Build(ctx, h.Source(false))
	if err != nil {
		return nil, fmt.Errorf("failed to introspect schema: %w", err)
	}
	return snap, nil
}
