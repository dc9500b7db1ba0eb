package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/jsonguard/internal/analysis/core"
	"github.com/xkilldash9x/jsonguard/internal/config"
)

const (
	defaultConcurrency = 4
	defaultFileTimeout = 30 * time.Second
)

// Worker analyzes one file. The engine owns the AnalysisContext; the worker
// only appends findings and incomplete functions to it.
type Worker interface {
	ProcessTask(ctx context.Context, analysisCtx *core.AnalysisContext) error
}

// FileResult is the outcome for one file. Err is set when the file could not
// be read, parsed or finished in time; Findings are then empty.
type FileResult struct {
	File       string
	Findings   []core.Finding
	Incomplete []core.IncompleteFunc
	Err        error
}

// Report collects the results of one Run, ordered by file.
type Report struct {
	RunID string
	Files []FileResult
}

// Findings returns every finding of the run sorted by file, line and column.
func (r *Report) Findings() []core.Finding {
	var out []core.Finding
	for _, f := range r.Files {
		out = append(out, f.Findings...)
	}
	core.SortFindings(out)
	return out
}

// Failed returns the files that produced an error.
func (r *Report) Failed() []FileResult {
	var out []FileResult
	for _, f := range r.Files {
		if f.Err != nil {
			out = append(out, f)
		}
	}
	return out
}

// IncompleteCount is the number of functions whose analysis was abandoned.
func (r *Report) IncompleteCount() int {
	n := 0
	for _, f := range r.Files {
		n += len(f.Incomplete)
	}
	return n
}

// Engine fans a worker out over a batch of files. Every file gets its own
// AnalysisContext; nothing mutable is shared between files.
type Engine struct {
	cfg      config.EngineConfig
	logger   *zap.Logger
	worker   Worker
	readFile func(string) ([]byte, error)
}

// New creates an Engine.
func New(cfg config.EngineConfig, logger *zap.Logger, worker Worker) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "engine")),
		worker:   worker,
		readFile: os.ReadFile,
	}
}

// Run analyzes files with bounded concurrency. Per-file failures are recorded
// in the report and do not stop the batch; cancellation of ctx does, and is
// returned alongside whatever finished.
func (e *Engine) Run(ctx context.Context, runID string, files []string) (*Report, error) {
	concurrency := e.cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	e.logger.Info("Starting analysis run",
		zap.String("run_id", runID),
		zap.Int("files", len(files)),
		zap.Int("concurrency", concurrency),
	)

	results := make([]FileResult, len(files))
	done := make([]bool, len(files))

	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, file := range files {
		i, file := i, file
		if groupCtx.Err() != nil {
			break
		}
		g.Go(func() error {
			res := e.process(groupCtx, runID, file)
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i], done[i] = res, true
			return nil
		})
	}
	err := g.Wait()

	report := &Report{RunID: runID}
	for i := range results {
		if done[i] {
			report.Files = append(report.Files, results[i])
		}
	}
	slices.SortStableFunc(report.Files, func(a, b FileResult) int { return strings.Compare(a.File, b.File) })

	if err != nil {
		e.logger.Warn("Analysis run was cancelled", zap.Int("completed", len(report.Files)), zap.Error(err))
		return report, err
	}
	e.logger.Info("Analysis run finished",
		zap.Int("files", len(report.Files)),
		zap.Int("findings", len(report.Findings())),
		zap.Int("failed", len(report.Failed())),
		zap.Int("incomplete_funcs", report.IncompleteCount()),
	)
	return report, nil
}

// process handles a single file.
func (e *Engine) process(ctx context.Context, runID, file string) FileResult {
	logger := e.logger.With(zap.String("file", file))
	res := FileResult{File: file}

	if ctx.Err() != nil {
		res.Err = ctx.Err()
		return res
	}

	src, err := e.readFile(file)
	if err != nil {
		logger.Error("Failed to read file", zap.Error(err))
		res.Err = fmt.Errorf("failed to read %s: %w", file, err)
		return res
	}

	timeout := e.cfg.FileTimeout
	if timeout <= 0 {
		timeout = defaultFileTimeout
	}
	fileCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	analysisCtx := &core.AnalysisContext{
		RunID:  runID,
		File:   file,
		Source: src,
		Logger: logger,
	}
	if err := e.worker.ProcessTask(fileCtx, analysisCtx); err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			logger.Warn("File analysis timed out", zap.Duration("timeout", timeout))
			res.Err = fmt.Errorf("analysis of %s timed out after %s: %w", file, timeout, err)
		case errors.Is(err, context.Canceled):
			logger.Warn("File analysis was cancelled", zap.Error(err))
			res.Err = err
		default:
			logger.Error("File analysis failed", zap.Error(err))
			res.Err = err
		}
		return res
	}

	core.SortFindings(analysisCtx.Findings)
	res.Findings = analysisCtx.Findings
	res.Incomplete = analysisCtx.Incomplete
	if len(res.Incomplete) > 0 {
		logger.Warn("Some functions could not be analyzed", zap.Int("count", len(res.Incomplete)))
	} else {
		logger.Debug("File analyzed", zap.Int("findings", len(res.Findings)))
	}
	return res
}
