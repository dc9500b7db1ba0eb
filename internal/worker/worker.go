package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/jsonguard/internal/analysis/core"
	"github.com/xkilldash9x/jsonguard/internal/analysis/nullcheck"
	"github.com/xkilldash9x/jsonguard/internal/config"
)

// MonolithicWorker runs every registered analyzer over a file in-process.
type MonolithicWorker struct {
	cfg       config.AnalysisConfig
	logger    *zap.Logger
	analyzers []core.Analyzer
}

// Option is a function that configures a MonolithicWorker.
type Option func(*MonolithicWorker)

// WithAnalyzers replaces the default analyzer set.
func WithAnalyzers(analyzers ...core.Analyzer) Option {
	return func(w *MonolithicWorker) {
		w.analyzers = analyzers
	}
}

// NewMonolithicWorker builds a worker. Without WithAnalyzers it registers the
// nullcheck analyzer configured from cfg.
func NewMonolithicWorker(cfg config.AnalysisConfig, logger *zap.Logger, opts ...Option) (*MonolithicWorker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &MonolithicWorker{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "worker")),
	}
	for _, opt := range opts {
		opt(w)
	}

	if len(w.analyzers) == 0 {
		if err := w.registerAnalyzers(); err != nil {
			return nil, fmt.Errorf("failed to register default analyzers: %w", err)
		}
	}
	return w, nil
}

func (w *MonolithicWorker) registerAnalyzers() error {
	nc, err := nullcheck.NewAnalyzer(w.cfg.Sanitizer(), w.logger)
	if err != nil {
		return err
	}
	w.analyzers = append(w.analyzers, nc)
	w.logger.Debug("Default analyzers registered", zap.Int("count", len(w.analyzers)))
	return nil
}

// Analyzers lists the names of the registered analyzers in run order.
func (w *MonolithicWorker) Analyzers() []string {
	names := make([]string, len(w.analyzers))
	for i, a := range w.analyzers {
		names[i] = a.Name()
	}
	return names
}

// ProcessTask runs each analyzer in turn. The first failure stops the file.
func (w *MonolithicWorker) ProcessTask(ctx context.Context, analysisCtx *core.AnalysisContext) error {
	logger := analysisCtx.Logger
	if logger == nil {
		logger = w.logger
	}
	for _, a := range w.analyzers {
		if err := ctx.Err(); err != nil {
			return err
		}
		logger.Debug("Dispatching file to analyzer", zap.String("analyzer", a.Name()))
		if err := a.Analyze(ctx, analysisCtx); err != nil {
			return fmt.Errorf("analyzer '%s' failed: %w", a.Name(), err)
		}
	}
	return nil
}
