package formats

import (
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"

	"archguard/internal/engine/report"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

func writeJSON(w io.Writer, rep *report.ValidationReport) error {
	data, err := jsonAPI.MarshalIndent(normalized(rep), "", "  ")
	if err != nil {
		return fmt.Errorf("encode json report: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

// normalized replaces nil slices so consumers always see arrays.
func normalized(rep *report.ValidationReport) *report.ValidationReport {
	out := *rep
	if out.Violations == nil {
		out.Violations = []report.Violation{}
	}
	if out.Rules == nil {
		out.Rules = []report.RuleInfo{}
	}
	return &out
}
