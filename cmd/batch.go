package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/askdb/askdb/internal/render"
	"github.com/askdb/askdb/internal/session"
)

var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Answer a file of questions with concurrent sessions",
	Long: `Answer every question in a file, one per line. Blank lines and lines
starting with # are skipped. Use - to read the questions from stdin.

Each worker owns its own session and database connection; questions are
handed to whichever worker is free. Results are printed in input order.`,
	Example: `  # Four workers, JSON lines
  askdb batch --concurrency 4 --format jsonl questions.txt > answers.jsonl`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

var (
	batchFlags       sessionFlags
	batchConcurrency int
	batchFormat      string
)

func init() {
	rootCmd.AddCommand(batchCmd)

	batchFlags.register(batchCmd)
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 4, "Number of concurrent sessions")
	batchCmd.Flags().StringVar(&batchFormat, "format", "text", "Output format: text or jsonl")
}

// question is one question and the line of the file it was read from.
type question struct {
	Text string
	Line int
}

// batchResult is one line of jsonl output.
type batchResult struct {
	Line     int               `json:"line"`
	Question string            `json:"question"`
	Response *session.Response `json:"response,omitempty"`
	Error    string            `json:"error,omitempty"`
}

func runBatch(cmd *cobra.Command, args []string) error {
	if batchFormat != "text" && batchFormat != "jsonl" {
		return fmt.Errorf("unsupported format %q (expected text or jsonl)", batchFormat)
	}
	if batchConcurrency < 1 {
		return fmt.Errorf("--concurrency must be at least 1, got %d", batchConcurrency)
	}

	questions, err := readQuestionsFrom(cmd.InOrStdin(), args[0])
	if err != nil {
		return err
	}
	if len(questions) == 0 {
		return fmt.Errorf("no questions in %s", args[0])
	}

	env, err := resolveEnvironment()
	if err != nil {
		return err
	}
	if err := batchFlags.apply(env); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	workers := min(batchConcurrency, len(questions))
	results := make([]batchResult, len(questions))
	jobs := make(chan int)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(jobs)
		for i := range questions {
			select {
			case jobs <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			s, err := openSession(gctx, env, batchFlags, nil)
			if err != nil {
				return err
			}
			defer closeQuietly(s)

			for i := range jobs {
				q := questions[i]
				resp, err := s.Ask(gctx, q.Text)
				results[i] = batchResult{Line: q.Line, Question: q.Text, Response: resp}
				if err != nil {
					results[i].Error = err.Error()
					logger.Warn("question failed", zap.Int("line", q.Line), zap.Error(err))
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	failed, err := writeBatch(cmd.OutOrStdout(), results)
	if err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d questions could not be answered", failed, len(results))
	}
	return nil
}

func writeBatch(w io.Writer, results []batchResult) (int, error) {
	failed := 0
	enc := json.NewEncoder(w)
	for _, r := range results {
		if r.Error != "" || r.Response == nil || r.Response.Status.Failed() {
			failed++
		}
		if batchFormat == "jsonl" {
			if err := enc.Encode(r); err != nil {
				return failed, err
			}
			continue
		}

		if _, err := fmt.Fprintf(w, "[line %d] %s\n", r.Line, r.Question); err != nil {
			return failed, err
		}
		if r.Response != nil {
			if err := render.Response(w, r.Response, render.Options{}); err != nil {
				return failed, err
			}
		}
		if r.Error != "" {
			if _, err := fmt.Fprintf(w, "error: %s\n", r.Error); err != nil {
				return failed, err
			}
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return failed, err
		}
	}
	return failed, nil
}

// readQuestionsFrom reads one question per line from path, or from stdin
// when path is "-". Blank lines and # comments are skipped; each question
// keeps its line number.
func readQuestionsFrom(stdin io.Reader, path string) ([]question, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open questions file: %w", err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}

	var questions []question
	scanner := bufio.NewScanner(r)
	for n := 1; scanner.Scan(); n++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		questions = append(questions, question{Text: text, Line: n})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read questions: %w", err)
	}
	return questions, nil
}
