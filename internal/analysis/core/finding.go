package core

import (
	"fmt"
	"sort"
)

// Severity represents how likely a finding is to crash at runtime.
type Severity string

// Constants defining the severity levels for findings.
const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
	SeverityInfo   Severity = "info"
)

// Location is a position in a source file, with the source line as snippet.
type Location struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Snippet string `json:"snippet,omitempty"`
}

func (l Location) String() string {
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}

// Finding is a single issue reported by an analyzer.
type Finding struct {
	ID     string `json:"id"`
	RunID  string `json:"run_id,omitempty"`
	Module string `json:"module"` // The analyzer that reported the finding.
	Rule   string `json:"rule"`

	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Location Location `json:"location"`

	// Func is the function containing the finding; Path is the access path
	// the message is about.
	Func string `json:"func,omitempty"`
	Path string `json:"path,omitempty"`

	CWE []string `json:"cwe,omitempty"`
}

// SortFindings orders findings by file, line, column and message.
func SortFindings(fs []Finding) {
	sort.SliceStable(fs, func(i, j int) bool {
		a, b := fs[i].Location, fs[j].Location
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.Column != b.Column {
			return a.Column < b.Column
		}
		return fs[i].Message < fs[j].Message
	})
}
