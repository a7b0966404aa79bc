package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/tandem/internal/config"
	"github.com/dshills/tandem/internal/finding"
	"github.com/dshills/tandem/internal/gitctx"
	"github.com/dshills/tandem/internal/github"
	"github.com/dshills/tandem/internal/llm"
	"github.com/dshills/tandem/internal/logging"
	"github.com/dshills/tandem/internal/orchestrator"
	"github.com/dshills/tandem/internal/output"
	"github.com/dshills/tandem/internal/reconcile"
	"github.com/dshills/tandem/internal/workspace"
)

// Analyze flags
var (
	flagBase         string
	flagStaged       bool
	flagUnstaged     bool
	flagDir          string
	flagExclude      string
	flagContextLines int
	flagMaxDiffBytes int
	flagProvider     string
	flagModel        string
	flagStaticURL    string
	flagFormat       string
	flagOut          string
	flagFailOn       string
	flagMaxFixes     int
	flagNoFixes      bool
	flagNoRedact     bool
	flagLogLevel     string
	flagRules        string
	flagGitHubPR     int
	flagGitHubRepo   string
)

func addAnalyzeFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagBase, "base", "", "Analyze changes from the merge base with REF to HEAD")
	cmd.Flags().BoolVar(&flagStaged, "staged", false, "Analyze staged changes (index vs HEAD)")
	cmd.Flags().BoolVar(&flagUnstaged, "unstaged", false, "Analyze unstaged changes (default)")
	cmd.Flags().StringVar(&flagDir, "dir", "", "Repository directory (default: current directory)")
	cmd.Flags().StringVar(&flagExclude, "exclude", "", "Exclude file path globs (comma-separated)")
	cmd.Flags().IntVar(&flagContextLines, "context-lines", 0, "Number of context lines in diff")
	cmd.Flags().IntVar(&flagMaxDiffBytes, "max-diff-bytes", 0, "Maximum diff size in bytes")
	cmd.Flags().StringVar(&flagProvider, "provider", "", "LLM provider (anthropic, openai, gemini, ollama, lmstudio)")
	cmd.Flags().StringVar(&flagModel, "model", "", "Model name")
	cmd.Flags().StringVar(&flagStaticURL, "static-url", "", "Static analysis service URL")
	cmd.Flags().StringVar(&flagFormat, "format", "", "Output format (text, json, sarif)")
	cmd.Flags().StringVar(&flagOut, "out", "", "Output file path (default: stdout)")
	cmd.Flags().StringVar(&flagFailOn, "fail-on", "", "Exit 1 when: gate (quality gate failed), none, or a severity (critical, high, medium, low, info)")
	cmd.Flags().IntVar(&flagMaxFixes, "max-fixes", 0, "Maximum fixes generated per run")
	cmd.Flags().BoolVar(&flagNoFixes, "no-fixes", false, "Skip the fix backfill pass")
	cmd.Flags().BoolVar(&flagNoRedact, "no-redact", false, "Disable secret redaction (use with caution)")
	cmd.Flags().StringVar(&flagLogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&flagRules, "rules", "", "Path to a YAML review rules file")
	cmd.MarkFlagsMutuallyExclusive("base", "staged", "unstaged")
}

func buildOverrides() map[string]string {
	m := make(map[string]string)
	if flagProvider != "" {
		m["provider"] = flagProvider
	}
	if flagModel != "" {
		m["model"] = flagModel
	}
	if flagStaticURL != "" {
		m["staticURL"] = flagStaticURL
	}
	if flagFormat != "" {
		m["format"] = flagFormat
	}
	if flagFailOn != "" {
		m["failOn"] = flagFailOn
	}
	if flagMaxFixes > 0 {
		m["maxFixes"] = fmt.Sprintf("%d", flagMaxFixes)
	}
	if flagNoFixes {
		m["fixes"] = "false"
	}
	if flagLogLevel != "" {
		m["logLevel"] = flagLogLevel
	}
	if flagRules != "" {
		m["rules"] = flagRules
	}
	return m
}

func buildDiffOpts(cfg config.Config) gitctx.DiffOptions {
	opts := gitctx.DiffOptions{
		Mode:         gitctx.ModeUnstaged,
		ContextLines: cfg.Analysis.ContextLines,
		MaxDiffBytes: cfg.Analysis.MaxDiffBytes,
		Exclude:      cfg.Analysis.Exclude,
	}
	switch {
	case flagBase != "":
		opts.Mode = gitctx.ModeRange
		opts.Base = flagBase
	case flagStaged:
		opts.Mode = gitctx.ModeStaged
	}
	if flagContextLines > 0 {
		opts.ContextLines = flagContextLines
	}
	if flagMaxDiffBytes > 0 {
		opts.MaxDiffBytes = flagMaxDiffBytes
	}
	if flagExclude != "" {
		opts.Exclude = append(append([]string(nil), opts.Exclude...), splitComma(flagExclude)...)
	}
	return opts
}

func splitComma(s string) []string {
	parts := strings.Split(s, ",")
	var result []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// failOnBreached reports whether res should turn into exit code 1 under failOn.
func failOnBreached(res *reconcile.AnalysisResult, failOn string) bool {
	switch failOn {
	case "", "none":
		return false
	case "gate":
		return res.Summary.QualityGate == reconcile.GateFailed
	}
	for _, f := range res.Findings {
		if finding.MeetsThreshold(f.Severity, failOn) {
			return true
		}
	}
	return false
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze local git changes with both analyzers",
	Long: "Analyze collects a diff from the repository, runs the semantic reviewer and the static analyzer " +
		"in parallel, reconciles their findings, and prints the report.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(buildOverrides())
		if err != nil {
			return err
		}
		if flagNoRedact {
			cfg.Privacy.RedactSecrets = false
			fmt.Fprintln(os.Stderr, "WARNING: secret redaction is disabled")
		}
		logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		exitCode = runAnalyze(ctx, cfg, logger)
		return nil
	},
}

func runAnalyze(ctx context.Context, cfg config.Config, logger *zap.Logger) int {
	repo := gitctx.Repo{Dir: flagDir}
	diff, err := repo.Diff(ctx, buildDiffOpts(cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitRuntimeError
	}
	if strings.TrimSpace(diff.Diff) == "" {
		fmt.Fprintln(os.Stderr, "No changes to analyze.")
		return ExitSuccess
	}

	var gh *github.Client
	var pr github.PR
	if flagGitHubPR > 0 {
		gh, pr, err = resolvePR(ctx, repo)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			if errors.Is(err, github.ErrMissingToken) {
				return ExitAuthError
			}
			return ExitRuntimeError
		}
	}

	p, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if llm.IsAuthError(err) {
			return ExitAuthError
		}
		return ExitRuntimeError
	}
	defer p.shutdown(context.WithoutCancel(ctx)) //nolint:errcheck

	ws, err := workspace.Borrow(diff.Repo.Root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitRuntimeError
	}
	job, err := p.store.Create("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitRuntimeError
	}

	res, err := p.orch.Analyze(ctx, orchestrator.Request{
		JobID:        job.ID,
		Workspace:    ws,
		Diff:         diff.Diff,
		ChangedFiles: diff.Files,
	})
	if err != nil && !errors.Is(err, orchestrator.ErrCancelled) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitRuntimeError
	}
	if res == nil {
		fmt.Fprintln(os.Stderr, "Analysis cancelled.")
		return ExitRuntimeError
	}
	for _, ae := range res.AnalyzerErrors {
		logger.Warn("analyzer unavailable", zap.String("analyzer", ae.Analyzer), zap.String("error", ae.Message))
	}

	report := &output.Report{
		Tool:    "tandem",
		Version: version,
		Mode:    string(diff.Mode),
		Repo:    diff.Repo.Root,
		Branch:  diff.Repo.Branch,
		Result:  res,
	}
	if err := output.WriteReport(report, cfg.Format, flagOut); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing output: %v\n", err)
		return ExitRuntimeError
	}
	if gh != nil {
		if err := gh.Publish(ctx, pr, res); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return ExitRuntimeError
		}
		logger.Info("review posted", zap.Stringer("pr", pr), zap.Int("findings", len(res.Findings)))
	}
	if failOnBreached(res, cfg.FailOn) {
		return ExitFindings
	}
	return ExitSuccess
}

// resolvePR builds the GitHub client and target PR, reading owner/repo from
// the origin remote unless --github-repo names it.
func resolvePR(ctx context.Context, repo gitctx.Repo) (*github.Client, github.PR, error) {
	gh, err := github.NewClient()
	if err != nil {
		return nil, github.PR{}, err
	}
	pr := github.PR{Number: flagGitHubPR}
	if flagGitHubRepo != "" {
		owner, name, ok := strings.Cut(flagGitHubRepo, "/")
		if !ok || owner == "" || name == "" {
			return nil, github.PR{}, fmt.Errorf("--github-repo must be owner/repo, got %q", flagGitHubRepo)
		}
		pr.Owner, pr.Repo = owner, name
		return gh, pr, nil
	}
	url, err := repo.RemoteURL(ctx, "origin")
	if err != nil {
		return nil, github.PR{}, err
	}
	if pr.Owner, pr.Repo, err = github.ParseRemoteURL(url); err != nil {
		return nil, github.PR{}, err
	}
	return gh, pr, nil
}

func init() {
	addAnalyzeFlags(analyzeCmd)
	analyzeCmd.Flags().IntVar(&flagGitHubPR, "github-pr", 0, "Post the report as a review on this pull request (needs GITHUB_TOKEN)")
	analyzeCmd.Flags().StringVar(&flagGitHubRepo, "github-repo", "", "owner/repo for --github-pr (default: parsed from the origin remote)")
}
