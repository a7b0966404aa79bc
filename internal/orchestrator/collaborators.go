package orchestrator

import (
	"context"

	"github.com/dshills/tandem/internal/finding"
	"github.com/dshills/tandem/internal/fixes"
	"github.com/dshills/tandem/internal/reconcile"
)

// ContextProvider returns supporting code context for one changed file.
// Errors are tolerated: the file simply gets no context.
type ContextProvider interface {
	GetContext(ctx context.Context, root, file string) (string, error)
}

// SemanticRequest is the input of a semantic review.
type SemanticRequest struct {
	Diff         string
	ChangedFiles []string
	// Contexts maps a changed file to its supporting context.
	Contexts map[string]string
}

// SemanticAnalyzer reviews a diff and returns raw, unnormalized issues.
type SemanticAnalyzer interface {
	Review(ctx context.Context, req SemanticRequest) ([]finding.SemanticIssue, error)
}

// StaticAnalyzer scans a zipped workspace and returns raw issues.
type StaticAnalyzer interface {
	Scan(ctx context.Context, archivePath string) ([]finding.StaticIssue, error)
}

// Workspace is the tree a run analyzes. Close releases it and is called
// exactly once by the orchestrator on every exit path.
type Workspace interface {
	Root() string
	Validate() error
	Archive() (string, error)
	ReadFile(rel string) (string, error)
	Close() error
}

// Backfill attaches generated fixes to findings that have none.
type Backfill interface {
	Run(ctx context.Context, findings []finding.Finding, files fixes.FileReader, contexts map[string]string, stop func() bool) ([]finding.Finding, reconcile.FixStats)
}
