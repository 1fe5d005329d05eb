package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/askdb/askdb/internal/metrics"
	"github.com/askdb/askdb/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve questions over HTTP",
	Long: `Serve one session over HTTP. Questions are answered one at a time.

Routes:
  POST /ask       {"question": "..."}
  POST /validate  {"sql": "..."}
  GET  /schema    snapshot as JSON, ?format=text for the compact form
  POST /refresh   rebuild the schema snapshot
  GET  /healthz
  GET  /metrics   Prometheus metrics`,
	Example: `  askdb serve --addr :8080 --db ./chinook.db
  curl -s localhost:8080/ask -d '{"question": "How many tracks are there?"}'`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	serveFlags      sessionFlags
	serveAddr       string
	serveAskTimeout time.Duration
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveFlags.register(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "127.0.0.1:8080", "Address to listen on")
	serveCmd.Flags().DurationVar(&serveAskTimeout, "ask-timeout", 2*time.Minute, "Upper bound for one question, including every retry")
}

func runServe(cmd *cobra.Command, args []string) error {
	env, err := resolveEnvironment()
	if err != nil {
		return err
	}
	if err := serveFlags.apply(env); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	s, err := openSession(ctx, env, serveFlags, metrics.New(reg))
	if err != nil {
		return err
	}
	defer closeQuietly(s)

	srv := &http.Server{
		Addr: serveAddr,
		Handler: server.NewHandler(s, server.Options{
			RowCap:     env.RowCap,
			AskTimeout: serveAskTimeout,
			Gatherer:   reg,
			Logger:     logger.Named("http"),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", serveAddr), zap.String("environment", env.Name))
		fmt.Fprintf(cmd.ErrOrStderr(), "Serving %s on http://%s\n", env.Name, serveAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}
