package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/askdb/askdb/internal/answer"
	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/executor"
	"github.com/askdb/askdb/internal/generation"
	"github.com/askdb/askdb/internal/generation/gemini"
	"github.com/askdb/askdb/internal/metrics"
	"github.com/askdb/askdb/internal/session"
)

type connectionFlags struct {
	db          string
	environment string
}

var connFlags connectionFlags

// sessionFlags are the per-command overrides of the resolved environment.
// Zero values leave the environment untouched.
type sessionFlags struct {
	maxAttempts          int
	timeout              time.Duration
	rowCap               int
	model                string
	noAnswer             bool
	requireClarification bool
}

func (f *sessionFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.maxAttempts, "max-attempts", 0, "Attempts per step, counting the first (default from config, then 3)")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "Per-query timeout (default from config, then 10s)")
	cmd.Flags().IntVar(&f.rowCap, "row-cap", 0, "LIMIT added to queries without one (default from config, then 100)")
	cmd.Flags().StringVar(&f.model, "model", "", "Gemini model (default from config, then gemini-2.0-flash)")
	cmd.Flags().BoolVar(&f.noAnswer, "no-answer", false, "Skip the prose answer and print rows only")
	cmd.Flags().BoolVar(&f.requireClarification, "require-clarification", false, "Ask for clarification instead of assuming a meaning for vague terms")
}

func (f *sessionFlags) apply(env *config.ResolvedEnvironment) error {
	if f.maxAttempts < 0 || f.rowCap < 0 || f.timeout < 0 {
		return errors.New("--max-attempts, --row-cap and --timeout must not be negative")
	}
	if f.maxAttempts > 0 {
		env.MaxAttempts = f.maxAttempts
	}
	if f.timeout > 0 {
		env.QueryTimeout = f.timeout
	}
	if f.rowCap > 0 {
		env.RowCap = f.rowCap
	}
	if f.model != "" {
		env.Model = f.model
	}
	if f.noAnswer {
		env.Answer = false
	}
	return nil
}

// resolveEnvironment loads askdb.toml and resolves the selected environment,
// applying --db last.
func resolveEnvironment() (*config.ResolvedEnvironment, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", config.FileName, err)
	}
	env, err := config.ResolveEnvironment(cfg, connFlags.environment)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve environment: %w", err)
	}
	if connFlags.db != "" {
		env.DatabaseURL = connFlags.db
	}
	if env.DatabaseURL == "" {
		return nil, fmt.Errorf("no database configured for environment %q: pass --db or set database_url in %s or .env.%s",
			env.Name, config.FileName, env.Name)
	}
	logger.Debug("environment resolved",
		zap.String("environment", env.Name),
		zap.String("dotenv", env.DotenvPath),
		zap.Bool("from_config", env.FromConfig),
		zap.Bool("from_dotenv", env.FromDotenv))
	return env, nil
}

// openSession connects to the environment's database and wires a Gemini
// model into the generator and, unless disabled, the answer assembler.
func openSession(ctx context.Context, env *config.ResolvedEnvironment, flags sessionFlags, m *metrics.Metrics) (*session.Session, error) {
	llm, err := gemini.New(ctx, gemini.Config{
		APIKey:         env.APIKey,
		Model:          env.Model,
		FallbackModels: env.FallbackModels,
		Logger:         logger.Named("gemini"),
	})
	if err != nil {
		return nil, err
	}

	cfg := session.Config{
		Generator:            generation.NewLLMGenerator(llm, logger.Named("generation")),
		MaxAttempts:          env.MaxAttempts,
		Timeout:              env.QueryTimeout,
		RowCap:               env.RowCap,
		RequireClarification: flags.requireClarification,
		WithRowCounts:        true,
		Metrics:              m,
		Logger:               logger.Named("session"),
	}
	if env.Answer {
		cfg.Answerer = answer.New(llm, logger.Named("answer"))
	}

	s, err := session.Open(ctx, env.DatabaseURL, cfg, executor.Options{MaxRows: env.MaxRows, Logger: logger.Named("executor")})
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}
	return s, nil
}

func closeQuietly(c io.Closer) {
	if err := c.Close(); err != nil {
		logger.Warn("close failed", zap.Error(err))
	}
}
