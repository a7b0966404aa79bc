package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/tandem/internal/gitctx"
)

const (
	hookMarkerStart = "# >>> tandem pre-commit hook >>>"
	hookMarkerEnd   = "# <<< tandem pre-commit hook <<<"
)

var (
	hookFailOn string
	hookFormat string
)

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Manage the git pre-commit hook",
}

var hookInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Run tandem on staged changes before every commit",
	RunE: func(cmd *cobra.Command, args []string) error {
		hookPath, err := getHookPath(cmd.Context())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			exitCode = ExitRuntimeError
			return nil
		}

		section := generateHookScript(hookFailOn, hookFormat)

		existing, err := os.ReadFile(hookPath)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "Error reading hook file: %v\n", err)
			exitCode = ExitRuntimeError
			return nil
		}

		content := "#!/bin/sh\n" + section
		if len(existing) > 0 {
			content = replaceHookSection(string(existing), section)
		}

		if err := os.MkdirAll(filepath.Dir(hookPath), 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating hooks directory: %v\n", err)
			exitCode = ExitRuntimeError
			return nil
		}
		if err := os.WriteFile(hookPath, []byte(content), 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing hook file: %v\n", err)
			exitCode = ExitRuntimeError
			return nil
		}

		fmt.Fprintf(os.Stdout, "Installed tandem pre-commit hook at %s\n", hookPath)
		return nil
	},
}

var hookUninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove the tandem pre-commit hook",
	RunE: func(cmd *cobra.Command, args []string) error {
		hookPath, err := getHookPath(cmd.Context())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			exitCode = ExitRuntimeError
			return nil
		}

		existing, err := os.ReadFile(hookPath)
		if errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintln(os.Stdout, "No pre-commit hook found.")
			return nil
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading hook file: %v\n", err)
			exitCode = ExitRuntimeError
			return nil
		}

		content := removeHookSection(string(existing))

		// Nothing but a shebang left: the hook was ours alone.
		trimmed := strings.TrimSpace(content)
		if trimmed == "" || trimmed == "#!/bin/sh" || trimmed == "#!/bin/bash" {
			if err := os.Remove(hookPath); err != nil {
				fmt.Fprintf(os.Stderr, "Error removing hook file: %v\n", err)
				exitCode = ExitRuntimeError
				return nil
			}
			fmt.Fprintf(os.Stdout, "Removed tandem pre-commit hook at %s\n", hookPath)
			return nil
		}

		if err := os.WriteFile(hookPath, []byte(content), 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing hook file: %v\n", err)
			exitCode = ExitRuntimeError
			return nil
		}
		fmt.Fprintf(os.Stdout, "Removed tandem section from %s\n", hookPath)
		return nil
	},
}

func getHookPath(ctx context.Context) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	dir, err := gitctx.Repo{Dir: flagDir}.HooksDir(ctx)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "pre-commit"), nil
}

// generateHookScript blocks the commit on exit 1. Tool errors (exit 2 and
// above) let it through.
func generateHookScript(failOn, format string) string {
	var b strings.Builder
	b.WriteString(hookMarkerStart + "\n")
	fmt.Fprintf(&b, "tandem analyze --staged --fail-on %s --format %s\n", failOn, format)
	b.WriteString("TANDEM_EXIT=$?\n")
	b.WriteString("if [ $TANDEM_EXIT -eq 1 ]; then\n")
	b.WriteString("  echo \"tandem: quality gate failed, commit blocked\"\n")
	b.WriteString("  exit 1\n")
	b.WriteString("elif [ $TANDEM_EXIT -ge 2 ]; then\n")
	b.WriteString("  echo \"tandem: analysis error (exit $TANDEM_EXIT), allowing commit\"\n")
	b.WriteString("fi\n")
	b.WriteString(hookMarkerEnd + "\n")
	return b.String()
}

func replaceHookSection(existing, section string) string {
	startIdx := strings.Index(existing, hookMarkerStart)
	endIdx := strings.Index(existing, hookMarkerEnd)
	if startIdx == -1 || endIdx == -1 {
		if !strings.HasSuffix(existing, "\n") {
			existing += "\n"
		}
		return existing + section
	}
	after := strings.TrimPrefix(existing[endIdx+len(hookMarkerEnd):], "\n")
	return existing[:startIdx] + section + after
}

func removeHookSection(existing string) string {
	startIdx := strings.Index(existing, hookMarkerStart)
	endIdx := strings.Index(existing, hookMarkerEnd)
	if startIdx == -1 || endIdx == -1 {
		return existing
	}
	after := strings.TrimPrefix(existing[endIdx+len(hookMarkerEnd):], "\n")
	return existing[:startIdx] + after
}

func init() {
	hookCmd.AddCommand(hookInstallCmd)
	hookCmd.AddCommand(hookUninstallCmd)
	hookInstallCmd.Flags().StringVar(&hookFailOn, "fail-on", "gate", "Block the commit on: gate, none, or a severity")
	hookInstallCmd.Flags().StringVar(&hookFormat, "format", "text", "Output format (text, json, sarif)")
}
