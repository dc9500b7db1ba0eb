package core

import (
	"context"

	"go.uber.org/zap"
)

// AnalyzerType distinguishes the kinds of analysis modules.
type AnalyzerType string

const (
	// TypeStatic analyzers inspect source text without executing it.
	TypeStatic AnalyzerType = "STATIC"
)

// Analyzer is the interface every analysis module implements. The engine
// hands each analyzer one file at a time through an AnalysisContext.
type Analyzer interface {
	Name() string
	Description() string
	Type() AnalyzerType
	Analyze(ctx context.Context, analysisCtx *AnalysisContext) error
}

// BaseAnalyzer provides the name, description and type of an Analyzer. It is
// meant to be embedded in concrete analyzers.
type BaseAnalyzer struct {
	name         string
	description  string
	analyzerType AnalyzerType
	Logger       *zap.Logger // Exposed for use in specific analyzer implementations.
}

// NewBaseAnalyzer creates a BaseAnalyzer with a logger named after the analyzer.
func NewBaseAnalyzer(name, description string, analyzerType AnalyzerType, logger *zap.Logger) *BaseAnalyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BaseAnalyzer{
		name:         name,
		description:  description,
		analyzerType: analyzerType,
		Logger:       logger.Named(name),
	}
}

// Name returns the analyzer's name.
func (b *BaseAnalyzer) Name() string {
	return b.name
}

// Description returns the analyzer's description.
func (b *BaseAnalyzer) Description() string {
	return b.description
}

// Type returns the analyzer's type.
func (b *BaseAnalyzer) Type() AnalyzerType {
	return b.analyzerType
}
