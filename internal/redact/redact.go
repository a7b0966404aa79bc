package redact

import (
	"path/filepath"
	"regexp"
	"strings"
)

const placeholder = "[REDACTED]"

// secretPatterns are regex heuristics for common secret types.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key|apikey|api[_-]?secret)\s*[:=]\s*["']?([A-Za-z0-9/+=_-]{20,})["']?`),
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
	regexp.MustCompile(`(?i)(aws[_-]?secret[_-]?access[_-]?key)\s*[:=]\s*["']?([A-Za-z0-9/+=]{40})["']?`),
	regexp.MustCompile(`(?i)(secret|token|password|passwd|credential)\s*[:=]\s*["']([^"']{8,})["']`),
	regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9._-]{20,}`),
	regexp.MustCompile(`eyJ[A-Za-z0-9_-]{10,}\.eyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}`),
	regexp.MustCompile(`-----BEGIN\s+(RSA\s+|EC\s+|OPENSSH\s+)?PRIVATE KEY-----`),
	regexp.MustCompile(`gh[pousr]_[A-Za-z0-9_]{36,}`),
	regexp.MustCompile(`xox[bporas]-[A-Za-z0-9-]{10,}`),
	regexp.MustCompile(`sk-ant-[A-Za-z0-9_-]{20,}`),
	regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`),
	// Connection strings with inline credentials.
	regexp.MustCompile(`(?i)\b(postgres(ql)?|mysql|mongodb(\+srv)?|redis|amqp)://[^:\s/]+:[^@\s]+@`),
	regexp.MustCompile(`(?i)(key|secret|token)\s*[:=]\s*["']?[0-9a-f]{32,}["']?`),
}

// Secrets replaces detected secrets in text with [REDACTED].
func Secrets(text string) string {
	for _, pat := range secretPatterns {
		text = pat.ReplaceAllLiteralString(text, placeholder)
	}
	return text
}

// MatchPath reports whether path matches any of the glob patterns. A leading
// "**/" also matches the base name.
func MatchPath(path string, patterns []string) bool {
	for _, pattern := range patterns {
		if ok, err := filepath.Match(pattern, path); err == nil && ok {
			return true
		}
		clean := strings.TrimPrefix(pattern, "**/")
		if clean == pattern {
			continue
		}
		if ok, err := filepath.Match(clean, filepath.Base(path)); err == nil && ok {
			return true
		}
		if ok, err := filepath.Match(clean, path); err == nil && ok {
			return true
		}
	}
	return false
}

// Policy decides what is scrubbed from text before it leaves the process.
type Policy struct {
	Secrets bool
	Paths   []string
}

// Text scrubs secrets from free text such as prompts and code context.
func (p Policy) Text(s string) string {
	if !p.Secrets {
		return s
	}
	return Secrets(s)
}

// File scrubs one file's content, hiding it entirely when the path is protected.
func (p Policy) File(path, content string) string {
	if MatchPath(path, p.Paths) {
		return placeholder + " (file content redacted by path policy)\n"
	}
	return p.Text(content)
}

// Diff scrubs a unified diff. Sections for protected paths keep their
// header so reviewers still see the file changed, but lose their hunks.
func (p Policy) Diff(diff string) string {
	if len(p.Paths) == 0 {
		return p.Text(diff)
	}
	var b strings.Builder
	for _, section := range splitSections(diff) {
		path := sectionPath(section)
		if path == "" || !MatchPath(path, p.Paths) {
			b.WriteString(section)
			continue
		}
		if header, _, ok := strings.Cut(section, "\n"); ok {
			b.WriteString(header)
			b.WriteString("\n")
		}
		b.WriteString(placeholder + " (file content redacted by path policy)\n")
	}
	return p.Text(b.String())
}

func splitSections(diff string) []string {
	var sections []string
	var current strings.Builder
	for _, line := range strings.SplitAfter(diff, "\n") {
		if strings.HasPrefix(line, "diff --git") && current.Len() > 0 {
			sections = append(sections, current.String())
			current.Reset()
		}
		current.WriteString(line)
	}
	if current.Len() > 0 {
		sections = append(sections, current.String())
	}
	return sections
}

func sectionPath(section string) string {
	for _, line := range strings.Split(section, "\n") {
		if strings.HasPrefix(line, "+++ b/") {
			return strings.TrimPrefix(line, "+++ b/")
		}
	}
	if header, _, _ := strings.Cut(section, "\n"); strings.HasPrefix(header, "diff --git a/") {
		if i := strings.LastIndex(header, " b/"); i >= 0 {
			return header[i+3:]
		}
	}
	return ""
}
