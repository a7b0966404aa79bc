package semantic

import (
	"fmt"
	"path/filepath"
	"strings"
)

// MaxDiffChars bounds the diff sent to the model.
const MaxDiffChars = 15000

const systemPrompt = `You are a strict, expert code reviewer. You review code diffs and report concrete problems as structured JSON.

Rules:
1. Only review the changes shown in the diff. Use the code context to understand call sites, not to review unchanged code.
2. Focus on bugs, logic errors, security issues, and performance problems. Skip pure style nits unless they hide a defect.
3. Reference line numbers in the new version of each file.
4. Every issue needs a concrete suggestion. Include fixed_code when the fix is a local edit.
5. Rate confidence from 0.0 to 1.0.

Respond with ONLY a JSON object, no markdown, no preamble:
{
  "issues": [
    {
      "file": "relative/path",
      "start_line": 1,
      "end_line": 1,
      "type": "bug|logic|security|style|performance|maintainability",
      "severity": "critical|high|medium|low",
      "title": "Short description",
      "description": "What is wrong and why it matters",
      "suggestion": "How to fix it",
      "original_code": "the problematic code",
      "fixed_code": "the corrected code",
      "confidence": 0.0
    }
  ]
}

If there are no issues, respond with {"issues": []}`

const repairPrompt = `Your previous reply could not be parsed. Reply again with ONLY the JSON object described in the instructions, in the form {"issues": [...]}. Do not add any other text.

Previous reply:
`

// SystemPrompt returns the reviewer's system prompt.
func SystemPrompt() string { return systemPrompt }

// BuildUserPrompt renders the diff and per-file context. Context is listed in
// changed-file order; files with empty context are omitted.
func BuildUserPrompt(diff string, files []string, contexts map[string]string) string {
	var b strings.Builder
	b.WriteString("Review the following code diff.\n\n")

	if langs := detectLanguages(files); len(langs) > 0 {
		fmt.Fprintf(&b, "Languages: %s\n\n", strings.Join(langs, ", "))
	}

	var ctxParts []string
	for _, f := range files {
		if c := strings.TrimSpace(contexts[f]); c != "" {
			ctxParts = append(ctxParts, "### "+f+"\n"+c)
		}
	}
	if len(ctxParts) > 0 {
		b.WriteString("## Code context (signatures)\n")
		b.WriteString(strings.Join(ctxParts, "\n\n"))
		b.WriteString("\n\n")
	}

	b.WriteString("## Diff to review\n```diff\n")
	b.WriteString(truncateDiff(diff, MaxDiffChars))
	b.WriteString("\n```\n")
	return b.String()
}

func truncateDiff(diff string, limit int) string {
	if len(diff) <= limit {
		return diff
	}
	cut := limit
	// Avoid splitting a UTF-8 sequence.
	for cut > 0 && diff[cut]&0xC0 == 0x80 {
		cut--
	}
	return diff[:cut] + "\n... (diff truncated)"
}

var languages = map[string]string{
	".go":   "Go",
	".py":   "Python",
	".js":   "JavaScript",
	".jsx":  "JavaScript/React",
	".ts":   "TypeScript",
	".tsx":  "TypeScript/React",
	".java": "Java",
	".rb":   "Ruby",
	".rs":   "Rust",
	".c":    "C",
	".cpp":  "C++",
	".cs":   "C#",
	".php":  "PHP",
	".kt":   "Kotlin",
	".sql":  "SQL",
	".sh":   "Shell",
}

func detectLanguages(files []string) []string {
	seen := make(map[string]bool)
	var langs []string
	for _, f := range files {
		lang, ok := languages[strings.ToLower(filepath.Ext(f))]
		if ok && !seen[lang] {
			seen[lang] = true
			langs = append(langs, lang)
		}
	}
	return langs
}
