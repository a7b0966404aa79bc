package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/tandem/internal/finding"
	"github.com/dshills/tandem/internal/gitctx"
	"github.com/dshills/tandem/internal/jobs"
	"github.com/dshills/tandem/internal/metrics"
	"github.com/dshills/tandem/internal/reconcile"
	"github.com/dshills/tandem/internal/telemetry"
)

// ErrCancelled is returned by Analyze when the job was cancelled mid-run.
var ErrCancelled = errors.New("analysis cancelled")

// Analyzer names used in logs, errors, and metrics.
const (
	AnalyzerSemantic = "semantic"
	AnalyzerStatic   = "static"
)

// Stages of a run, in order. Progress is reported as stage index over len(stages).
var stages = []string{"setup", "context", "analysis", "reconcile", "fixes"}

// Request describes one run.
type Request struct {
	JobID        string
	Workspace    Workspace
	Diff         string
	ChangedFiles []string
}

// Orchestrator drives runs through the job store.
type Orchestrator struct {
	store    *jobs.Store
	semantic SemanticAnalyzer
	static   StaticAnalyzer
	contexts ContextProvider
	backfill Backfill
	opts     Options
	logger   *zap.Logger
	tracer   trace.Tracer

	wg sync.WaitGroup
}

// New validates opts and returns an Orchestrator.
func New(store *jobs.Store, semantic SemanticAnalyzer, static StaticAnalyzer, opts Options, options ...Option) (*Orchestrator, error) {
	if store == nil || semantic == nil || static == nil {
		return nil, errors.New("orchestrator requires a job store and both analyzers")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	o := &Orchestrator{
		store:    store,
		semantic: semantic,
		static:   static,
		opts:     opts,
		logger:   zap.NewNop(),
		tracer:   telemetry.Tracer(),
	}
	for _, fn := range options {
		fn(o)
	}
	return o, nil
}

// Submit creates the job and runs it in the background. The run context is
// detached from ctx's cancellation and attached to the job, so cancelling the
// job aborts in-flight analyzer requests. Submit owns req.Workspace from the
// moment it is called.
func (o *Orchestrator) Submit(ctx context.Context, req Request) (string, error) {
	job, err := o.store.Create(req.JobID)
	if err != nil {
		closeWorkspace(o.logger, req.Workspace)
		return "", err
	}
	req.JobID = job.ID

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if err := o.store.Attach(job.ID, cancel); err != nil {
		cancel()
		closeWorkspace(o.logger, req.Workspace)
		return "", err
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				o.logger.Error("analysis panicked", zap.String("job_id", job.ID), zap.Any("panic", r))
				_ = o.store.Fail(job.ID, fmt.Sprintf("internal error: %v", r))
			}
		}()
		if _, err := o.Analyze(runCtx, req); err != nil && !errors.Is(err, ErrCancelled) {
			o.logger.Debug("analysis ended with error", zap.String("job_id", job.ID), zap.Error(err))
		}
	}()
	return job.ID, nil
}

// Wait blocks until every submitted run has returned or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Analyze runs one job to completion on the calling goroutine. The job must
// already exist in the store. The workspace is closed before Analyze returns.
func (o *Orchestrator) Analyze(ctx context.Context, req Request) (*reconcile.AnalysisResult, error) {
	ctx, span := o.tracer.Start(ctx, "tandem.analyze", trace.WithAttributes(attribute.String("job.id", req.JobID)))
	defer span.End()
	defer closeWorkspace(o.logger, req.Workspace)

	r := &run{
		o:      o,
		req:    req,
		id:     req.JobID,
		start:  time.Now(),
		logger: o.logger.With(zap.String("job_id", req.JobID)),
		done:   metrics.RunStarted(),
	}
	res, err := r.execute(ctx)
	switch {
	case errors.Is(err, ErrCancelled):
		r.done(string(jobs.StatusCancelled))
		span.SetStatus(codes.Error, "cancelled")
	case err != nil:
		r.done(string(jobs.StatusFailed))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	default:
		r.done(string(jobs.StatusCompleted))
	}
	return res, err
}

type run struct {
	o      *Orchestrator
	req    Request
	id     string
	start  time.Time
	logger *zap.Logger
	done   func(status string)
}

func (r *run) execute(ctx context.Context) (*reconcile.AnalysisResult, error) {
	store := r.o.store

	if err := store.SetStatus(r.id, jobs.StatusProcessing); err != nil {
		if store.IsCancelled(r.id) {
			return nil, ErrCancelled
		}
		return nil, err
	}
	r.log("Starting unified analysis.")
	r.stage(0)

	if r.req.Workspace == nil {
		return nil, r.fail("workspace setup failed: no workspace")
	}
	if err := r.req.Workspace.Validate(); err != nil {
		return nil, r.fail("workspace setup failed: " + err.Error())
	}
	files := r.req.ChangedFiles
	if len(files) == 0 {
		files = gitctx.ChangedFiles(r.req.Diff)
	}
	if err := r.checkpoint(ctx); err != nil {
		return nil, err
	}

	r.stage(1)
	contexts := r.fetchContexts(ctx, files)
	if err := r.checkpoint(ctx); err != nil {
		return nil, err
	}

	r.stage(2)
	out := r.analyze(ctx, files, contexts)
	if err := r.checkpoint(ctx); err != nil {
		return nil, err
	}

	r.stage(3)
	sem := finding.NormalizeSemanticAll(out.semantic)
	stat := finding.NormalizeStaticAll(out.static)
	skipped := map[finding.Source]int{}
	for src, b := range map[finding.Source]finding.Batch{finding.SourceSemantic: sem, finding.SourceStatic: stat} {
		metrics.AddSkipped(string(src), b.Skipped)
		if b.Skipped > 0 {
			skipped[src] = b.Skipped
			r.logger.Warn("skipped malformed records", zap.String("source", string(src)), zap.Int("count", b.Skipped), zap.Errors("errors", b.Errors))
		}
	}
	merged := reconcile.Merge(sem.Findings, stat.Findings)
	deduped := reconcile.Deduplicate(merged)
	r.log(fmt.Sprintf("Merged %d findings into %d after deduplication.", len(merged), len(deduped)))
	if err := r.checkpoint(ctx); err != nil {
		return nil, err
	}

	r.stage(4)
	final, fixStats := r.backfill(ctx, deduped, contexts)
	if err := r.checkpoint(ctx); err != nil {
		return nil, err
	}

	result := reconcile.NewResult(final)
	result.ExecutionTimeMs = time.Since(r.start).Milliseconds()
	result.AnalyzerErrors = out.errors
	result.Fixes = fixStats
	if len(skipped) > 0 {
		result.Skipped = skipped
	}
	_ = store.UpdateProgress(r.id, jobs.WithCurrent("done"), jobs.WithProcessed(len(stages)))

	if err := store.Complete(r.id, result); err != nil {
		if store.IsCancelled(r.id) {
			return nil, ErrCancelled
		}
		return nil, err
	}
	for _, f := range result.Findings {
		metrics.AddFinding(string(f.Source), string(f.Severity))
	}
	metrics.AddGate(string(result.Summary.QualityGate))
	r.logger.Info("analysis complete",
		zap.Int("findings", result.Summary.Total),
		zap.String("gate", string(result.Summary.QualityGate)),
		zap.Int64("elapsed_ms", result.ExecutionTimeMs))
	return result, nil
}

func (r *run) fetchContexts(ctx context.Context, files []string) map[string]string {
	contexts := make(map[string]string)
	if r.o.contexts == nil || r.o.opts.MaxContextFiles == 0 || len(files) == 0 {
		return contexts
	}
	if len(files) > r.o.opts.MaxContextFiles {
		files = files[:r.o.opts.MaxContextFiles]
	}

	results := make([]string, len(files))
	var g errgroup.Group
	g.SetLimit(r.o.opts.ContextConcurrency)
	root := r.req.Workspace.Root()
	for i, file := range files {
		g.Go(func() error {
			c, err := r.o.contexts.GetContext(ctx, root, file)
			if err != nil {
				r.logger.Debug("context unavailable", zap.String("file", file), zap.Error(err))
				return nil
			}
			results[i] = c
			return nil
		})
	}
	_ = g.Wait()

	for i, file := range files {
		if results[i] != "" {
			contexts[file] = results[i]
		}
	}
	r.log(fmt.Sprintf("Collected context for %d of %d files.", len(contexts), len(files)))
	return contexts
}

type analysisOutput struct {
	semantic []finding.SemanticIssue
	static   []finding.StaticIssue
	errors   []reconcile.AnalyzerError
}

// analyze runs both branches concurrently. A branch failure never cancels
// its sibling; it is recorded and the branch contributes nothing.
func (r *run) analyze(ctx context.Context, files []string, contexts map[string]string) analysisOutput {
	var (
		out       analysisOutput
		semErr    *reconcile.AnalyzerError
		statErr   *reconcile.AnalyzerError
		g         errgroup.Group
		opts      = r.o.opts
		semanticQ = SemanticRequest{Diff: r.req.Diff, ChangedFiles: files, Contexts: contexts}
	)

	g.Go(func() error {
		issues, err := branch(ctx, r, AnalyzerSemantic, opts.SemanticTimeout, func(bctx context.Context) ([]finding.SemanticIssue, error) {
			return r.o.semantic.Review(bctx, semanticQ)
		})
		out.semantic, semErr = issues, err
		return nil
	})
	g.Go(func() error {
		issues, err := branch(ctx, r, AnalyzerStatic, opts.StaticTimeout, func(bctx context.Context) ([]finding.StaticIssue, error) {
			archive, err := r.req.Workspace.Archive()
			if err != nil {
				return nil, fmt.Errorf("archiving workspace: %w", err)
			}
			defer os.Remove(archive)
			return r.o.static.Scan(bctx, archive)
		})
		out.static, statErr = issues, err
		return nil
	})
	_ = g.Wait()

	for _, e := range []*reconcile.AnalyzerError{semErr, statErr} {
		if e != nil {
			out.errors = append(out.errors, *e)
		}
	}
	return out
}

// branchResult carries one analyzer's return values across goroutines.
type branchResult[T any] struct {
	issues []T
	err    error
}

// branch runs fn under its own deadline and converts failure into an
// AnalyzerError with an empty result. The deadline holds even when fn
// ignores its context; fn is then abandoned and its late result dropped.
// A panic in fn fails only this branch.
func branch[T any](ctx context.Context, r *run, name string, timeout time.Duration, fn func(context.Context) ([]T, error)) ([]T, *reconcile.AnalyzerError) {
	bctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	bctx, span := r.o.tracer.Start(bctx, "tandem.analyzer."+name)
	defer span.End()

	start := time.Now()
	done := make(chan branchResult[T], 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				r.logger.Error("analyzer panicked",
					zap.String("analyzer", name),
					zap.Any("panic", p),
					zap.Stack("stack"))
				done <- branchResult[T]{err: fmt.Errorf("analyzer panicked: %v", p)}
			}
		}()
		issues, err := fn(bctx)
		done <- branchResult[T]{issues: issues, err: err}
	}()

	var res branchResult[T]
	select {
	case res = <-done:
	case <-bctx.Done():
		res = branchResult[T]{err: bctx.Err()}
	}
	issues, err := res.issues, res.err
	elapsed := time.Since(start)
	if err == nil {
		metrics.ObserveAnalyzer(name, elapsed, false, false)
		span.SetAttributes(attribute.Int("issues", len(issues)))
		r.log(fmt.Sprintf("%s analysis returned %d issues.", name, len(issues)))
		return issues, nil
	}

	timedOut := errors.Is(err, context.DeadlineExceeded) || errors.Is(bctx.Err(), context.DeadlineExceeded)
	msg := err.Error()
	if timedOut {
		msg = fmt.Sprintf("timed out after %s", timeout)
	}
	metrics.ObserveAnalyzer(name, elapsed, true, timedOut)
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	r.log(fmt.Sprintf("%s analysis failed: %s", name, msg))
	return nil, &reconcile.AnalyzerError{Analyzer: name, Message: msg, TimedOut: timedOut}
}

func (r *run) backfill(ctx context.Context, findings []finding.Finding, contexts map[string]string) ([]finding.Finding, reconcile.FixStats) {
	if r.o.backfill == nil {
		return findings, reconcile.FixStats{}
	}
	ctx, span := r.o.tracer.Start(ctx, "tandem.fixes")
	defer span.End()

	stop := func() bool { return ctx.Err() != nil || r.o.store.IsCancelled(r.id) }
	out, stats := r.o.backfill.Run(ctx, findings, r.req.Workspace, contexts, stop)
	metrics.AddFixes(stats.Generated, stats.Failed, stats.Skipped)
	span.SetAttributes(attribute.Int("fixes.generated", stats.Generated), attribute.Int("fixes.failed", stats.Failed))
	if stats.Attempted > 0 || stats.Skipped > 0 {
		r.log(fmt.Sprintf("Generated %d fixes (%d failed, %d skipped).", stats.Generated, stats.Failed, stats.Skipped))
	}
	return out, stats
}

// checkpoint stops the run when the job was cancelled or the run context ended.
func (r *run) checkpoint(ctx context.Context) error {
	if r.o.store.IsCancelled(r.id) {
		r.logger.Info("analysis stopped at checkpoint")
		return ErrCancelled
	}
	if err := ctx.Err(); err != nil {
		return r.fail("analysis aborted: " + err.Error())
	}
	return nil
}

func (r *run) fail(msg string) error {
	if err := r.o.store.Fail(r.id, msg); err != nil && r.o.store.IsCancelled(r.id) {
		return ErrCancelled
	}
	return errors.New(msg)
}

func (r *run) log(msg string) {
	_ = r.o.store.AppendLog(r.id, msg)
}

func (r *run) stage(i int) {
	_ = r.o.store.UpdateProgress(r.id,
		jobs.WithCurrent(stages[i]),
		jobs.WithProcessed(i),
		jobs.WithTotal(len(stages)))
}

func closeWorkspace(logger *zap.Logger, ws Workspace) {
	if ws == nil {
		return
	}
	if err := ws.Close(); err != nil {
		logger.Warn("closing workspace", zap.Error(err))
	}
}
