package fixes

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dshills/tandem/internal/finding"
	"github.com/dshills/tandem/internal/reconcile"
	"github.com/dshills/tandem/internal/workspace"
)

const (
	// DefaultMaxFixes caps generator calls per run.
	DefaultMaxFixes = 25
	snippetPad      = 3
)

// FileReader reads workspace-relative files.
type FileReader interface {
	ReadFile(rel string) (string, error)
}

// Backfiller fills in fixes for findings that arrived without one.
type Backfiller struct {
	gen      Generator
	maxFixes int
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// Option configures a Backfiller.
type Option func(*Backfiller)

// WithMaxFixes caps generator calls per run. Zero or less means no cap.
func WithMaxFixes(n int) Option {
	return func(b *Backfiller) { b.maxFixes = n }
}

// WithRateLimit spaces generator calls to at most perSecond with the given burst.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(b *Backfiller) {
		if perSecond > 0 {
			b.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Backfiller) { b.logger = l }
}

// NewBackfiller returns a Backfiller over gen.
func NewBackfiller(gen Generator, opts ...Option) *Backfiller {
	b := &Backfiller{
		gen:      gen,
		maxFixes: DefaultMaxFixes,
		limiter:  rate.NewLimiter(rate.Inf, 1),
		logger:   zap.NewNop(),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Run returns a copy of findings where each finding without a fix has been
// offered to the generator. Findings are handled file by file in order of
// first appearance and each file is read once. A failed generation is logged
// and counted; it never aborts the pass. stop is checked before every
// generation and ends the pass early when it reports true.
func (b *Backfiller) Run(ctx context.Context, findings []finding.Finding, files FileReader, contexts map[string]string, stop func() bool) ([]finding.Finding, reconcile.FixStats) {
	out := make([]finding.Finding, len(findings))
	for i, f := range findings {
		out[i] = f.Clone()
	}

	var stats reconcile.FixStats
	order, byFile := groupByFile(out)
	halted := false

	for _, file := range order {
		idxs := byFile[file]
		if halted {
			stats.Skipped += len(idxs)
			continue
		}
		content := b.read(files, file)

		for n, i := range idxs {
			if b.exhausted(ctx, stats, stop) {
				halted = true
				stats.Skipped += len(idxs) - n
				break
			}
			f := &out[i]
			snip := f.CodeSnippet
			if snip == "" && content != "" {
				snip = workspace.Snippet(content, f.Location.StartLine, f.Location.EndLine, snippetPad)
			}
			if err := b.limiter.Wait(ctx); err != nil {
				halted = true
				stats.Skipped += len(idxs) - n
				break
			}

			stats.Attempted++
			fix, err := b.gen.Generate(ctx, Request{
				Finding:     *f,
				FileContent: content,
				Snippet:     snip,
				Context:     contexts[file],
			})
			if err != nil || !fix.Valid() {
				stats.Failed++
				b.logger.Warn("fix generation failed",
					zap.String("finding", f.ID),
					zap.String("file", file),
					zap.Error(err))
				continue
			}
			f.Fix = fix
			stats.Generated++
		}
	}
	return out, stats
}

func (b *Backfiller) exhausted(ctx context.Context, stats reconcile.FixStats, stop func() bool) bool {
	if ctx.Err() != nil {
		return true
	}
	if stop != nil && stop() {
		return true
	}
	return b.maxFixes > 0 && stats.Attempted >= b.maxFixes
}

func (b *Backfiller) read(files FileReader, file string) string {
	if files == nil {
		return ""
	}
	content, err := files.ReadFile(file)
	if err != nil {
		b.logger.Debug("reading file for fix context", zap.String("file", file), zap.Error(err))
		return ""
	}
	return content
}

func groupByFile(findings []finding.Finding) ([]string, map[string][]int) {
	var order []string
	byFile := make(map[string][]int)
	for i, f := range findings {
		if f.HasFix() {
			continue
		}
		file := f.Location.File
		if _, ok := byFile[file]; !ok {
			order = append(order, file)
		}
		byFile[file] = append(byFile[file], i)
	}
	return order, byFile
}
