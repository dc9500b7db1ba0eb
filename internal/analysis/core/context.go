// internal/analysis/core/context.go
package core

import (
	"go.uber.org/zap"
)

// AnalysisContext carries one file through the analyzers. Analyzers append to
// Findings; the engine owns everything else.
type AnalysisContext struct {
	// RunID identifies the invocation that produced the findings.
	RunID  string
	File   string
	Source []byte
	Logger *zap.Logger

	Findings []Finding
	// Incomplete collects functions an analyzer could not finish, with the
	// reason. Their findings are omitted rather than guessed.
	Incomplete []IncompleteFunc
}

// IncompleteFunc names a function whose analysis was abandoned.
type IncompleteFunc struct {
	Analyzer string `json:"analyzer"`
	Func     string `json:"func"`
	Reason   string `json:"reason"`
}

// AddFinding appends a finding, filling in the run and file when missing.
func (ac *AnalysisContext) AddFinding(finding Finding) {
	if finding.RunID == "" {
		finding.RunID = ac.RunID
	}
	if finding.Location.File == "" {
		finding.Location.File = ac.File
	}
	ac.Findings = append(ac.Findings, finding)
}

// AddIncomplete records a function an analyzer gave up on.
func (ac *AnalysisContext) AddIncomplete(analyzer, fn string, err error) {
	ac.Incomplete = append(ac.Incomplete, IncompleteFunc{Analyzer: analyzer, Func: fn, Reason: err.Error()})
}
