package cli

import (
	"strings"
	"testing"
)

func TestGenerateHookScript(t *testing.T) {
	script := generateHookScript("gate", "text")

	if !strings.Contains(script, hookMarkerStart) {
		t.Error("Script missing start marker")
	}
	if !strings.Contains(script, hookMarkerEnd) {
		t.Error("Script missing end marker")
	}
	if !strings.Contains(script, "tandem analyze --staged --fail-on gate --format text") {
		t.Error("Script missing tandem command with correct flags")
	}
	if !strings.Contains(script, "TANDEM_EXIT=$?") {
		t.Error("Script missing exit code capture")
	}
	if !strings.Contains(script, "exit 1") {
		t.Error("Script missing exit 1 for a failed gate")
	}
	if !strings.Contains(script, "allowing commit") {
		t.Error("Script missing pass-through for tool errors")
	}
}

func TestGenerateHookScript_CustomFlags(t *testing.T) {
	script := generateHookScript("high", "json")
	if !strings.Contains(script, "--fail-on high") {
		t.Error("Script doesn't use custom fail-on")
	}
	if !strings.Contains(script, "--format json") {
		t.Error("Script doesn't use custom format")
	}
}

func TestReplaceHookSection_NoExisting(t *testing.T) {
	existing := "#!/bin/sh\nsome-other-hook\n"
	result := replaceHookSection(existing, generateHookScript("gate", "text"))

	if !strings.HasPrefix(result, existing) {
		t.Error("Existing content should be preserved")
	}
	if !strings.Contains(result, hookMarkerStart) {
		t.Error("New section should be appended")
	}
}

func TestReplaceHookSection_ExistingSection(t *testing.T) {
	existing := "#!/bin/sh\nbefore\n" + generateHookScript("low", "text") + "after\n"
	result := replaceHookSection(existing, generateHookScript("critical", "json"))

	if !strings.Contains(result, "before") || !strings.Contains(result, "after") {
		t.Error("Content around the tandem section should be preserved")
	}
	if !strings.Contains(result, "--fail-on critical") {
		t.Error("New section should have updated flags")
	}
	if strings.Contains(result, "--fail-on low") {
		t.Error("Old section should be replaced")
	}
	if strings.Count(result, hookMarkerStart) != 1 {
		t.Error("Exactly one tandem section expected")
	}
}

func TestReplaceHookSection_NoTrailingNewline(t *testing.T) {
	result := replaceHookSection("#!/bin/sh\nsome-hook", generateHookScript("gate", "text"))
	if !strings.Contains(result, "some-hook\n"+hookMarkerStart) {
		t.Error("Section should start on its own line")
	}
}

func TestRemoveHookSection(t *testing.T) {
	existing := "#!/bin/sh\nbefore\n" + generateHookScript("gate", "text") + "after\n"
	result := removeHookSection(existing)

	if strings.Contains(result, hookMarkerStart) {
		t.Error("Tandem section should be removed")
	}
	if result != "#!/bin/sh\nbefore\nafter\n" {
		t.Errorf("result = %q", result)
	}
}

func TestRemoveHookSection_NoSection(t *testing.T) {
	existing := "#!/bin/sh\nsome-hook\n"
	if removeHookSection(existing) != existing {
		t.Error("Content without a tandem section should be unchanged")
	}
}
