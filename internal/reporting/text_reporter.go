package reporting

import (
	"errors"
	"fmt"
	"io"

	"github.com/xkilldash9x/jsonguard/internal/engine"
)

// TextReporter prints one line per finding, followed by its source line,
// then warnings for abandoned functions and errors for failed files.
type TextReporter struct {
	writer   io.WriteCloser
	findings int
	files    int
	err      error
}

// NewTextReporter creates a reporter that writes human-readable text.
func NewTextReporter(writer io.WriteCloser) *TextReporter {
	return &TextReporter{writer: writer}
}

func (r *TextReporter) printf(format string, args ...any) {
	if r.err != nil {
		return
	}
	_, r.err = fmt.Fprintf(r.writer, format, args...)
}

// Write prints the findings of report as they arrive.
func (r *TextReporter) Write(report *engine.Report) error {
	findings := report.Findings()
	for _, f := range findings {
		r.printf("%s: %s [%s]\n", f.Location, f.Message, f.Rule)
		if f.Location.Snippet != "" {
			r.printf("    %s\n", f.Location.Snippet)
		}
	}
	for _, f := range report.Files {
		for _, inc := range f.Incomplete {
			r.printf("%s: warning: %s in %s not analyzed: %s\n", f.File, inc.Analyzer, inc.Func, inc.Reason)
		}
		if f.Err != nil {
			r.printf("%s: error: %v\n", f.File, f.Err)
		}
	}
	r.findings += len(findings)
	r.files += len(report.Files)
	return r.err
}

// Close prints the summary line.
func (r *TextReporter) Close() error {
	r.printf("%d finding(s) in %d file(s)\n", r.findings, r.files)
	return errors.Join(r.err, r.writer.Close())
}
