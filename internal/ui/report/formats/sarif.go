package formats

import (
	"fmt"
	"io"
	"path/filepath"

	"archguard/internal/engine/report"
	"archguard/internal/engine/rules"
)

// SARIF v2.1.0 schema – see https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0-rtm.5.json

const (
	sarifSchema  = "https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0-rtm.5.json"
	sarifVersion = "2.1.0"
	sarifSrcRoot = "%SRCROOT%"
)

type sarifReport struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool        sarifTool         `json:"tool"`
	Invocations []sarifInvocation `json:"invocations,omitempty"`
	Results     []sarifResult     `json:"results"`
}

type sarifInvocation struct {
	ExecutionSuccessful bool `json:"executionSuccessful"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name    string      `json:"name"`
	Version string      `json:"version"`
	Rules   []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID               string                 `json:"id"`
	Name             string                 `json:"name"`
	ShortDescription sarifMessage           `json:"shortDescription"`
	FullDescription  *sarifMessage          `json:"fullDescription,omitempty"`
	DefaultConfig    sarifRuleDefaultConfig `json:"defaultConfiguration"`
	Properties       map[string]string      `json:"properties,omitempty"`
}

type sarifRuleDefaultConfig struct {
	Level string `json:"level"`
}

type sarifResult struct {
	RuleID           string          `json:"ruleId"`
	RuleIndex        int             `json:"ruleIndex"`
	Level            string          `json:"level"`
	Message          sarifMessage    `json:"message"`
	Locations        []sarifLocation `json:"locations,omitempty"`
	RelatedLocations []sarifLocation `json:"relatedLocations,omitempty"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifLocation struct {
	ID               *int                  `json:"id,omitempty"`
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Region           *sarifRegion          `json:"region,omitempty"`
}

type sarifArtifactLocation struct {
	URI       string `json:"uri"`
	URIBaseID string `json:"uriBaseId"`
}

type sarifRegion struct {
	StartLine int `json:"startLine,omitempty"`
	EndLine   int `json:"endLine,omitempty"`
}

// writeSARIF emits one run whose driver lists the rules referenced by the
// report. File URIs are relative to the project root so reports are safe to
// share.
func writeSARIF(w io.Writer, rep *report.ValidationReport) error {
	driverRules := make([]sarifRule, 0, len(rep.Rules))
	index := make(map[string]int, len(rep.Rules))
	for _, r := range rep.Rules {
		index[r.ID] = len(driverRules)
		rule := sarifRule{
			ID:               r.ID,
			Name:             r.Name,
			ShortDescription: sarifMessage{Text: r.Name},
			DefaultConfig:    sarifRuleDefaultConfig{Level: sarifLevel(r.Severity)},
			Properties:       map[string]string{"category": r.Category},
		}
		if r.Description != "" {
			rule.FullDescription = &sarifMessage{Text: r.Description}
		}
		driverRules = append(driverRules, rule)
	}

	results := make([]sarifResult, 0, len(rep.Violations))
	for _, v := range rep.Violations {
		idx, ok := index[v.RuleID]
		if !ok {
			idx = -1
		}
		result := sarifResult{
			RuleID:    v.RuleID,
			RuleIndex: idx,
			Level:     sarifLevel(v.Severity),
			Message:   sarifMessage{Text: v.Message},
		}
		if v.Path != "" {
			result.Locations = []sarifLocation{fileLocation(rep.Root, v.Path, v.StartLine, v.EndLine)}
		}
		for i, rel := range v.Related {
			loc := fileLocation(rep.Root, rel.Path, rel.StartLine, rel.EndLine)
			id := i + 1
			loc.ID = &id
			result.RelatedLocations = append(result.RelatedLocations, loc)
		}
		results = append(results, result)
	}

	doc := sarifReport{
		Schema:  sarifSchema,
		Version: sarifVersion,
		Runs: []sarifRun{{
			Tool: sarifTool{Driver: sarifDriver{
				Name:    rep.Tool,
				Version: rep.Version,
				Rules:   driverRules,
			}},
			Invocations: []sarifInvocation{{ExecutionSuccessful: rep.Status != report.StatusDegraded}},
			Results:     results,
		}},
	}
	data, err := jsonAPI.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode sarif report: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

func fileLocation(root, path string, start, end int) sarifLocation {
	loc := sarifLocation{
		PhysicalLocation: sarifPhysicalLocation{
			ArtifactLocation: sarifArtifactLocation{
				URI:       relativeURI(root, path),
				URIBaseID: sarifSrcRoot,
			},
		},
	}
	if start > 0 {
		loc.PhysicalLocation.Region = &sarifRegion{StartLine: start, EndLine: max(end, start)}
	}
	return loc
}

// relativeURI converts a file path to a forward-slash URI anchored at root.
// Relative paths are passed through.
func relativeURI(root, path string) string {
	if root != "" && filepath.IsAbs(path) {
		if rel, err := filepath.Rel(root, path); err == nil {
			path = rel
		}
	}
	return filepath.ToSlash(path)
}

func sarifLevel(sev rules.Severity) string {
	switch sev {
	case rules.SeverityError:
		return "error"
	case rules.SeverityWarning:
		return "warning"
	default:
		return "note"
	}
}
