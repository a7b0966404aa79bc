package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/tandem/internal/config"
	"github.com/dshills/tandem/internal/llm"
	"github.com/dshills/tandem/internal/logging"
	"github.com/dshills/tandem/internal/server"
)

var flagAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the analysis job server",
	Long: "Serve accepts zipped workspaces over HTTP, runs each as a background job, " +
		"and exposes job status for polling.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		overrides := buildOverrides()
		if flagAddr != "" {
			overrides["addr"] = flagAddr
		}
		cfg, err := config.Load(overrides)
		if err != nil {
			return err
		}
		logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		exitCode = runServe(ctx, cfg, logger)
		return nil
	},
}

func runServe(ctx context.Context, cfg config.Config, logger *zap.Logger) int {
	p, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if llm.IsAuthError(err) {
			return ExitAuthError
		}
		return ExitRuntimeError
	}
	defer p.shutdown(context.WithoutCancel(ctx)) //nolint:errcheck

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	go p.store.RunJanitor(janitorCtx, cfg.Server.JanitorInterval, cfg.Server.JobRetention)

	srv := server.New(p.store, p.orch,
		server.WithLogger(logger),
		server.WithMaxUploadBytes(cfg.Server.MaxUploadBytes),
		server.WithVersion(version),
	)
	serveErr := srv.ListenAndServe(ctx, cfg.Server.Addr, cfg.Server.ShutdownTimeout)

	// Let in-flight jobs finish within the shutdown budget.
	waitCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := p.orch.Wait(waitCtx); err != nil {
		logger.Warn("jobs still running at shutdown", zap.Error(err))
	}

	if serveErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", serveErr)
		return ExitRuntimeError
	}
	return ExitSuccess
}

func init() {
	serveCmd.Flags().StringVar(&flagAddr, "addr", "", "Listen address (default from config, :8080)")
	serveCmd.Flags().StringVar(&flagStaticURL, "static-url", "", "Static analysis service URL")
	serveCmd.Flags().StringVar(&flagProvider, "provider", "", "LLM provider (anthropic, openai, gemini, ollama, lmstudio)")
	serveCmd.Flags().StringVar(&flagModel, "model", "", "Model name")
	serveCmd.Flags().StringVar(&flagLogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	serveCmd.Flags().StringVar(&flagRules, "rules", "", "Path to a YAML review rules file")
}
