package nullcheck

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/jsonguard/internal/analysis/core"
	"github.com/xkilldash9x/jsonguard/internal/analysis/ir"
	"github.com/xkilldash9x/jsonguard/internal/analysis/sanitizer"
	"github.com/xkilldash9x/jsonguard/internal/analysis/static/javascript"
)

const (
	// AnalyzerName is the module name findings are reported under.
	AnalyzerName = "nullcheck"
	// RuleID identifies the unguarded-read rule.
	RuleID = "json-unguarded-property-read"
)

// Analyzer runs the rule over every function of a JavaScript file.
type Analyzer struct {
	*core.BaseAnalyzer
	frontend *javascript.Frontend
	rule     *Rule
}

// NewAnalyzer builds the solver from cfg and wires it to a JavaScript front end.
func NewAnalyzer(cfg sanitizer.Config, logger *zap.Logger) (*Analyzer, error) {
	base := core.NewBaseAnalyzer(AnalyzerName, "Reports property reads on JSON.parse results that may be null or undefined", core.TypeStatic, logger)
	solver, err := sanitizer.NewSolver(cfg, base.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create nullcheck analyzer: %w", err)
	}
	return &Analyzer{
		BaseAnalyzer: base,
		frontend:     javascript.NewFrontend(base.Logger),
		rule:         NewRule(solver),
	}, nil
}

// Analyze parses the file and reports violations as findings. Functions the
// solver cannot finish are recorded in analysisCtx.Incomplete; cancellation
// of ctx aborts the file.
func (a *Analyzer) Analyze(ctx context.Context, analysisCtx *core.AnalysisContext) error {
	prog, err := a.frontend.Parse(ctx, analysisCtx.File, analysisCtx.Source)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", analysisCtx.File, err)
	}

	// Funcs lists enclosing functions before the closures they define.
	results := make(map[*ir.Func]*sanitizer.Result, len(prog.Funcs))
	for _, fn := range prog.Funcs {
		violations, res, err := a.rule.CheckFrom(ctx, fn, captured(fn, results[fn.Outer]))
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			var incomplete *sanitizer.IncompleteError
			if !errors.As(err, &incomplete) {
				return fmt.Errorf("failed to analyze %s in %s: %w", fn.Name, analysisCtx.File, err)
			}
			a.Logger.Warn("Analysis incomplete; findings for function omitted",
				zap.String("file", analysisCtx.File),
				zap.String("func", fn.Name),
				zap.Error(err),
			)
			analysisCtx.AddIncomplete(a.Name(), fn.Name, err)
			continue
		}
		results[fn] = res
		for _, v := range violations {
			analysisCtx.AddFinding(a.finding(prog, v))
		}
	}
	return nil
}

// captured returns the variables tainted anywhere in the enclosing function
// that fn does not shadow with a parameter. Sanitization is not carried over:
// a closure may run after the guard that proved it no longer holds.
func captured(fn *ir.Func, outer *sanitizer.Result) []string {
	if outer == nil {
		return nil
	}
	params := make(map[string]bool, len(fn.Params))
	for _, p := range fn.Params {
		params[p] = true
	}
	var out []string
	for _, root := range outer.TaintedRoots() {
		if !params[root] {
			out = append(out, root)
		}
	}
	return out
}

func (a *Analyzer) finding(prog *javascript.Program, v Violation) core.Finding {
	loc := javascript.LocationAt(prog.File, prog.Source, v.Pos)
	return core.Finding{
		ID:       uuid.NewString(),
		Module:   a.Name(),
		Rule:     RuleID,
		Severity: core.SeverityMedium,
		Message:  v.Message,
		Location: core.Location{
			File:    loc.File,
			Line:    loc.Line,
			Column:  loc.Column,
			Snippet: loc.Snippet,
		},
		Func: v.Func,
		Path: v.Path.String(),
		CWE:  []string{"CWE-476"},
	}
}
