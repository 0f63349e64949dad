package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	autoflow "github.com/dxtr-labs/v1.0-sub000"
	"github.com/dxtr-labs/v1.0-sub000/server"
	"github.com/dxtr-labs/v1.0-sub000/store"
)

// NewServeCmd creates the "serve" subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}

	cmd.Flags().IntP("port", "p", 8090, "Listen port")
	cmd.Flags().String("host", "0.0.0.0", "Listen host")
	cmd.Flags().String("cors-origin", "*", "Allowed CORS origin")
	cmd.Flags().String("sqlite-path", "", "Path to SQLite database (default: ~/.autoflow/autoflow.db)")
	cmd.Flags().String("categories-dir", "", "Directory of custom category files (YAML or JSON)")
	cmd.Flags().String("enhance-provider", "", "LLM provider for parameter enhancement (openai | anthropic | ollama)")
	cmd.Flags().String("enhance-model", "", "Model id for parameter enhancement")
	cmd.Flags().String("enhance-api-key", "", "API key for the enhancement provider (default: $AUTOFLOW_ENHANCE_API_KEY)")
	cmd.Flags().Duration("enhance-timeout", 5*time.Second, "Per-node enhancement call timeout")
	cmd.Flags().StringArray("service", nil, "Offer a content service, id=Label (repeatable)")
	cmd.Flags().String("platform-url", "", "Automation platform endpoint confirmed workflows are deployed to")
	cmd.Flags().String("platform-api-key", "", "Bearer token for the automation platform")
	cmd.Flags().String("tls-cert", "", "TLS certificate file")
	cmd.Flags().String("tls-key", "", "TLS key file")
	cmd.Flags().Duration("read-timeout", 30*time.Second, "HTTP read timeout")
	cmd.Flags().Duration("write-timeout", 60*time.Second, "HTTP write timeout")
	cmd.Flags().Int64("max-body", 1<<20, "Max request body size in bytes")
	cmd.Flags().Duration("schedule-poll", 30*time.Second, "Workflow schedule poll interval")
	cmd.Flags().String("otlp-endpoint", "", "OTLP HTTP endpoint for traces and metrics (empty disables export)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	host, _ := cmd.Flags().GetString("host")
	port, _ := cmd.Flags().GetInt("port")
	corsOrigin, _ := cmd.Flags().GetString("cors-origin")
	categoriesDir, _ := cmd.Flags().GetString("categories-dir")
	enhanceProvider, _ := cmd.Flags().GetString("enhance-provider")
	enhanceModel, _ := cmd.Flags().GetString("enhance-model")
	enhanceAPIKey, _ := cmd.Flags().GetString("enhance-api-key")
	enhanceTimeout, _ := cmd.Flags().GetDuration("enhance-timeout")
	serviceFlags, _ := cmd.Flags().GetStringArray("service")
	platformURL, _ := cmd.Flags().GetString("platform-url")
	platformAPIKey, _ := cmd.Flags().GetString("platform-api-key")
	tlsCert, _ := cmd.Flags().GetString("tls-cert")
	tlsKey, _ := cmd.Flags().GetString("tls-key")
	readTimeout, _ := cmd.Flags().GetDuration("read-timeout")
	writeTimeout, _ := cmd.Flags().GetDuration("write-timeout")
	maxBody, _ := cmd.Flags().GetInt64("max-body")
	schedulePoll, _ := cmd.Flags().GetDuration("schedule-poll")
	otlpEndpoint, _ := cmd.Flags().GetString("otlp-endpoint")

	logger := slog.Default()

	shutdownTelemetry, err := setupTelemetry(cmd.Context(), otlpEndpoint)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("flushing telemetry", "error", err)
		}
	}()

	dsn, err := resolveServeSQLiteDSN(cmd)
	if err != nil {
		return err
	}
	st, err := store.NewSQLiteStore(store.SQLiteConfig{DSN: dsn})
	if err != nil {
		return fmt.Errorf("opening sqlite store: %w", err)
	}
	defer func() {
		_ = st.Close()
	}()

	cat, classifier, err := buildClassifier(categoriesDir, logger)
	if err != nil {
		return exitError(exitValidation, "%v", err)
	}
	enhancer, err := buildEnhancer(enhanceProvider, enhanceModel, enhanceAPIKey)
	if err != nil {
		return err
	}
	services, err := parseServiceFlags(serviceFlags)
	if err != nil {
		return exitError(exitValidation, "%v", err)
	}

	var executor autoflow.Executor = localExecutor
	if platformURL != "" {
		executor = newPlatformExecutor(platformURL, platformAPIKey)
	}

	engine := autoflow.NewEngine(autoflow.Config{
		Catalog:        cat,
		Classifier:     classifier,
		Enhancer:       enhancer,
		EnhanceTimeout: enhanceTimeout,
		Executor:       executor,
		Services:       services,
		Logger:         logger,
	})

	runner := server.NewRunService(executor, st, logger)
	api := server.NewServer(server.Config{
		Engine:     engine,
		Catalog:    cat,
		Classifier: classifier,
		Store:      st,
		Runner:     runner,
		CORSOrigin: corsOrigin,
		MaxBody:    maxBody,
		Logger:     logger,
	})

	scheduler, err := server.NewScheduler(server.SchedulerConfig{
		Store:        st,
		Runner:       runner,
		PollInterval: schedulePoll,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}
	scheduler.Start()
	defer func() {
		_ = scheduler.Stop(context.Background())
	}()

	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      api.Handler(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	// Signal handling
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(cmd.OutOrStdout(), "Autoflow listening on %s\n", addr)
		if tlsCert != "" && tlsKey != "" {
			errCh <- httpServer.ListenAndServeTLS(tlsCert, tlsKey)
		} else {
			errCh <- httpServer.ListenAndServe()
		}
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(cmd.OutOrStdout(), "Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return exitError(exitRuntime, "shutdown error: %v", err)
		}
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return exitError(exitRuntime, "server error: %v", err)
		}
		return nil
	}
}

func resolveServeSQLiteDSN(cmd *cobra.Command) (string, error) {
	sqlitePath, _ := cmd.Flags().GetString("sqlite-path")
	dsn := strings.TrimSpace(sqlitePath)
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv("AUTOFLOW_SQLITE_PATH"))
	}
	if dsn == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		dir := filepath.Join(home, ".autoflow")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dir, "autoflow.db")
	}
	if !strings.HasPrefix(strings.ToLower(dsn), "file:") {
		dsn = filepath.Clean(dsn)
	}
	return dsn, nil
}
