package orchestrator

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/tandem/internal/finding"
)

const (
	DefaultSemanticTimeout    = 180 * time.Second
	DefaultStaticTimeout      = 120 * time.Second
	DefaultMaxContextFiles    = 10
	DefaultContextConcurrency = 4
)

// Options bounds one run. The semantic branch must be given more time than
// the static one.
type Options struct {
	SemanticTimeout    time.Duration `validate:"gtfield=StaticTimeout"`
	StaticTimeout      time.Duration `validate:"gt=0"`
	MaxContextFiles    int           `validate:"gte=0"`
	ContextConcurrency int           `validate:"gte=1"`
}

// DefaultOptions returns the stock run limits.
func DefaultOptions() Options {
	return Options{
		SemanticTimeout:    DefaultSemanticTimeout,
		StaticTimeout:      DefaultStaticTimeout,
		MaxContextFiles:    DefaultMaxContextFiles,
		ContextConcurrency: DefaultContextConcurrency,
	}
}

// Validate checks the option invariants.
func (o Options) Validate() error {
	if err := finding.Validator().Struct(o); err != nil {
		return fmt.Errorf("invalid orchestrator options: %w", err)
	}
	return nil
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithContextProvider sets the per-file context source.
func WithContextProvider(p ContextProvider) Option {
	return func(o *Orchestrator) { o.contexts = p }
}

// WithBackfill enables the fix backfill pass.
func WithBackfill(b Backfill) Option {
	return func(o *Orchestrator) { o.backfill = b }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}
