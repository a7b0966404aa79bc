package workspace

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"
)

// DefaultSignatureLimit caps the context returned per file.
const DefaultSignatureLimit = 2000

var signaturePatterns = map[string][]*regexp.Regexp{
	".py": {
		regexp.MustCompile(`^\s*(async\s+)?def\s+\w+\s*\(.*`),
		regexp.MustCompile(`^class\s+\w+.*:`),
	},
	".go": {
		regexp.MustCompile(`^func\s+.*`),
		regexp.MustCompile(`^type\s+\w+\s+.*`),
	},
	".js": jsPatterns,
	".jsx": jsPatterns,
	".ts": jsPatterns,
	".tsx": jsPatterns,
	".java": {
		regexp.MustCompile(`^\s*(public|protected|private)?\s*(static\s+)?(final\s+)?(class|interface|enum|record)\s+\w+.*`),
		regexp.MustCompile(`^\s*(public|protected|private)\s+(static\s+)?[\w<>\[\], ]+\s+\w+\s*\(.*`),
	},
	".rb": {
		regexp.MustCompile(`^\s*def\s+\w+.*`),
		regexp.MustCompile(`^\s*(class|module)\s+\w+.*`),
	},
	".rs": {
		regexp.MustCompile(`^\s*(pub\s+)?(async\s+)?fn\s+\w+.*`),
		regexp.MustCompile(`^\s*(pub\s+)?(struct|enum|trait|impl)\b.*`),
	},
}

var jsPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\s*(export\s+)?(default\s+)?(async\s+)?function\s*\*?\s*\w+\s*\(.*`),
	regexp.MustCompile(`^\s*(export\s+)?(const|let|var)\s+\w+\s*=\s*(async\s+)?\(.*\)\s*=>.*`),
	regexp.MustCompile(`^\s*(export\s+)?(default\s+)?class\s+\w+.*`),
}

// SignatureProvider returns the top-level function, class, and type
// signatures of a file as compact context for a reviewer.
type SignatureProvider struct {
	Limit int
}

// GetContext reads file under root and returns its signature lines. Files in
// languages without a pattern table yield empty context.
func (p SignatureProvider) GetContext(ctx context.Context, root, file string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	patterns, ok := signaturePatterns[strings.ToLower(filepath.Ext(file))]
	if !ok {
		return "", nil
	}
	ws := Workspace{root: root}
	content, err := ws.ReadFile(file)
	if err != nil {
		return "", err
	}
	limit := p.Limit
	if limit <= 0 {
		limit = DefaultSignatureLimit
	}
	return Signatures(content, patterns, limit), nil
}

// Signatures collects lines matching any pattern, stopping before limit
// bytes would be exceeded.
func Signatures(content string, patterns []*regexp.Regexp, limit int) string {
	var b strings.Builder
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimRight(line, " \t\r{")
		if !matchesAny(line, patterns) {
			continue
		}
		sig := strings.TrimSpace(line)
		if b.Len()+len(sig)+1 > limit {
			break
		}
		b.WriteString(sig)
		b.WriteByte('\n')
	}
	return b.String()
}

func matchesAny(line string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(line) {
			return true
		}
	}
	return false
}

// Snippet returns lines start..end (1-indexed, inclusive) of content with
// pad lines of surrounding context.
func Snippet(content string, start, end, pad int) string {
	lines := strings.Split(content, "\n")
	if start < 1 {
		start = 1
	}
	if end < start {
		end = start
	}
	from := max(start-pad, 1)
	to := min(end+pad, len(lines))
	if from > len(lines) {
		return ""
	}
	return strings.Join(lines[from-1:to], "\n")
}
