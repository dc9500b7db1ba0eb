package reporting

import (
	"fmt"
	"io"

	"github.com/xkilldash9x/jsonguard/internal/analysis/core"
	"github.com/xkilldash9x/jsonguard/internal/engine"
)

// Document is the JSON output format.
type Document struct {
	RunIDs     []string         `json:"run_ids"`
	Files      int              `json:"files"`
	Findings   []core.Finding   `json:"findings"`
	Incomplete []IncompleteFunc `json:"incomplete,omitempty"`
	Errors     []FileError      `json:"errors,omitempty"`
}

// IncompleteFunc is a function whose analysis was abandoned, with its file.
type IncompleteFunc struct {
	File string `json:"file"`
	core.IncompleteFunc
}

// FileError is a file that could not be analyzed.
type FileError struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

// JSONReporter buffers every run and writes a single Document on Close.
type JSONReporter struct {
	writer io.WriteCloser
	doc    Document
}

// NewJSONReporter creates a reporter that writes one JSON document.
func NewJSONReporter(writer io.WriteCloser) *JSONReporter {
	return &JSONReporter{writer: writer, doc: Document{Findings: []core.Finding{}}}
}

// Write adds the results of report to the document.
func (r *JSONReporter) Write(report *engine.Report) error {
	r.doc.RunIDs = append(r.doc.RunIDs, report.RunID)
	r.doc.Files += len(report.Files)
	r.doc.Findings = append(r.doc.Findings, report.Findings()...)
	core.SortFindings(r.doc.Findings)
	for _, f := range report.Files {
		for _, inc := range f.Incomplete {
			r.doc.Incomplete = append(r.doc.Incomplete, IncompleteFunc{File: f.File, IncompleteFunc: inc})
		}
		if f.Err != nil {
			r.doc.Errors = append(r.doc.Errors, FileError{File: f.File, Error: f.Err.Error()})
		}
	}
	return nil
}

// Close encodes the document and closes the writer.
func (r *JSONReporter) Close() error {
	enc := json.NewEncoder(r.writer)
	enc.SetIndent("", "  ")
	encodeErr := enc.Encode(r.doc)
	closeErr := r.writer.Close()
	if encodeErr != nil {
		return fmt.Errorf("failed to encode JSON output: %w", encodeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}
	return nil
}
