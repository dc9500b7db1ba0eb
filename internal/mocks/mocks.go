package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/jsonguard/internal/analysis/core"
)

// -- Analyzer Mock --

// MockAnalyzer is a mock implementation of the core.Analyzer interface.
type MockAnalyzer struct {
	mock.Mock
}

func (m *MockAnalyzer) Analyze(ctx context.Context, analysisCtx *core.AnalysisContext) error {
	return m.Called(ctx, analysisCtx).Error(0)
}
func (m *MockAnalyzer) Name() string        { return m.Called().String(0) }
func (m *MockAnalyzer) Description() string { return m.Called().String(0) }

// Type returns the configured analyzer type, defaulting to static.
func (m *MockAnalyzer) Type() core.AnalyzerType {
	args := m.Called()
	if t, ok := args.Get(0).(core.AnalyzerType); ok {
		return t
	}
	return core.TypeStatic
}

// NewMockAnalyzer returns a MockAnalyzer that answers Name with name.
func NewMockAnalyzer(name string) *MockAnalyzer {
	m := new(MockAnalyzer)
	m.On("Name").Return(name).Maybe()
	m.On("Description").Return(name + " mock").Maybe()
	m.On("Type").Return(core.TypeStatic).Maybe()
	return m
}

// -- Worker Mock --

// MockWorker mocks the engine's Worker interface.
type MockWorker struct {
	mock.Mock
}

// ProcessTask records the call. Use Run on the expectation to simulate work.
func (m *MockWorker) ProcessTask(ctx context.Context, analysisCtx *core.AnalysisContext) error {
	return m.Called(ctx, analysisCtx).Error(0)
}
