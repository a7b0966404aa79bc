package output

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"

	"github.com/dshills/tandem/internal/finding"
)

// SARIFWriter outputs findings in SARIF v2.1.0 format.
type SARIFWriter struct{}

func (s *SARIFWriter) Write(w io.Writer, report *Report) error {
	data, err := json.MarshalIndent(buildSARIF(report), "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling SARIF: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing SARIF: %w", err)
	}
	_, err = fmt.Fprintln(w)
	return err
}

type sarifLog struct {
	Version string     `json:"version"`
	Schema  string     `json:"$schema"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool        sarifTool         `json:"tool"`
	Results     []sarifResult     `json:"results"`
	Invocations []sarifInvocation `json:"invocations,omitempty"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name           string      `json:"name"`
	Version        string      `json:"version"`
	InformationURI string      `json:"informationUri"`
	Rules          []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID               string              `json:"id"`
	Name             string              `json:"name"`
	ShortDescription sarifMessage        `json:"shortDescription"`
	DefaultConfig    sarifDefaultConfig  `json:"defaultConfiguration"`
	Properties       sarifRuleProperties `json:"properties,omitempty"`
}

type sarifDefaultConfig struct {
	Level string `json:"level"`
}

type sarifRuleProperties struct {
	Tags []string `json:"tags,omitempty"`
}

type sarifResult struct {
	RuleID     string                 `json:"ruleId"`
	Level      string                 `json:"level"`
	Message    sarifMessage           `json:"message"`
	Locations  []sarifLocation        `json:"locations,omitempty"`
	Fixes      []sarifFix             `json:"fixes,omitempty"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Region           sarifRegion           `json:"region"`
}

type sarifArtifactLocation struct {
	URI string `json:"uri"`
}

type sarifRegion struct {
	StartLine int `json:"startLine"`
	EndLine   int `json:"endLine"`
}

type sarifFix struct {
	Description     sarifMessage          `json:"description"`
	ArtifactChanges []sarifArtifactChange `json:"artifactChanges,omitempty"`
}

type sarifArtifactChange struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Replacements     []sarifReplacement    `json:"replacements"`
}

type sarifReplacement struct {
	DeletedRegion   sarifRegion  `json:"deletedRegion"`
	InsertedContent sarifContent `json:"insertedContent"`
}

type sarifContent struct {
	Text string `json:"text"`
}

type sarifInvocation struct {
	ExecutionSuccessful bool                `json:"executionSuccessful"`
	Notifications       []sarifNotification `json:"toolExecutionNotifications,omitempty"`
}

type sarifNotification struct {
	Level   string       `json:"level"`
	Message sarifMessage `json:"message"`
}

func buildSARIF(report *Report) sarifLog {
	var (
		rules   []sarifRule
		results = []sarifResult{}
		seen    = make(map[string]bool)
		inv     = sarifInvocation{ExecutionSuccessful: true}
	)

	if res := report.Result; res != nil {
		for _, f := range res.Findings {
			ruleID := generateRuleID(f)
			if !seen[ruleID] {
				seen[ruleID] = true
				rules = append(rules, sarifRule{
					ID:               ruleID,
					Name:             string(f.Category),
					ShortDescription: sarifMessage{Text: f.Title},
					DefaultConfig:    sarifDefaultConfig{Level: severityToLevel(f.Severity)},
					Properties:       sarifRuleProperties{Tags: f.Tags},
				})
			}
			results = append(results, buildResult(ruleID, f))
		}

		if res.Error != "" {
			inv.ExecutionSuccessful = false
			inv.Notifications = append(inv.Notifications, sarifNotification{Level: "error", Message: sarifMessage{Text: res.Error}})
		}
		for _, ae := range res.AnalyzerErrors {
			inv.Notifications = append(inv.Notifications, sarifNotification{
				Level:   "warning",
				Message: sarifMessage{Text: fmt.Sprintf("%s analyzer: %s", ae.Analyzer, ae.Message)},
			})
		}
	}

	return sarifLog{
		Version: "2.1.0",
		Schema:  "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/main/sarif-2.1/schema/sarif-schema-2.1.0.json",
		Runs: []sarifRun{{
			Tool: sarifTool{Driver: sarifDriver{
				Name:           "tandem",
				Version:        report.Version,
				InformationURI: "https://github.com/dshills/tandem",
				Rules:          rules,
			}},
			Results:     results,
			Invocations: []sarifInvocation{inv},
		}},
	}
}

func buildResult(ruleID string, f finding.Finding) sarifResult {
	region := sarifRegion{StartLine: f.Location.StartLine, EndLine: f.Location.EndLine}
	artifact := sarifArtifactLocation{URI: f.Location.File}

	text := f.Title
	if f.Description != "" {
		text = f.Title + ": " + f.Description
	}
	result := sarifResult{
		RuleID:    ruleID,
		Level:     severityToLevel(f.Severity),
		Message:   sarifMessage{Text: text},
		Locations: []sarifLocation{{PhysicalLocation: sarifPhysicalLocation{ArtifactLocation: artifact, Region: region}}},
		Properties: map[string]interface{}{
			"source":     f.Source,
			"confidence": f.Confidence,
		},
	}
	if f.SourceRuleID != "" {
		result.Properties["sourceRuleId"] = f.SourceRuleID
	}
	if len(f.AlsoFoundBy) > 0 {
		result.Properties["alsoFoundBy"] = f.AlsoFoundBy
	}
	if f.HasFix() {
		result.Fixes = append(result.Fixes, sarifFix{
			Description: sarifMessage{Text: f.Fix.Explanation},
			ArtifactChanges: []sarifArtifactChange{{
				ArtifactLocation: artifact,
				Replacements: []sarifReplacement{{
					DeletedRegion:   region,
					InsertedContent: sarifContent{Text: f.Fix.FixedCode},
				}},
			}},
		})
	}
	return result
}

// severityToLevel maps a finding severity to a SARIF level.
func severityToLevel(s finding.Severity) string {
	switch s {
	case finding.SeverityCritical, finding.SeverityHigh:
		return "error"
	case finding.SeverityMedium:
		return "warning"
	default:
		return "note"
	}
}

// generateRuleID prefers the analyzer's own rule id and otherwise hashes category and title.
func generateRuleID(f finding.Finding) string {
	if f.SourceRuleID != "" {
		return f.SourceRuleID
	}
	h := sha256.Sum256([]byte(fmt.Sprintf("%s/%s", f.Category, f.Title)))
	return fmt.Sprintf("tandem/%s/%x", f.Category, h[:4])
}
