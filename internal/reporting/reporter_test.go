// internal/reporting/reporter_test.go
package reporting_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/jsonguard/internal/analysis/core"
	"github.com/xkilldash9x/jsonguard/internal/analysis/nullcheck"
	"github.com/xkilldash9x/jsonguard/internal/engine"
	"github.com/xkilldash9x/jsonguard/internal/reporting"
)

var jsonUnmarshal = jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal

func sampleReport() *engine.Report {
	finding := func(file string, line int, msg, fn, path string) core.Finding {
		return core.Finding{
			ID:       "id-" + file,
			RunID:    "run-1",
			Module:   nullcheck.AnalyzerName,
			Rule:     nullcheck.RuleID,
			Severity: core.SeverityMedium,
			Message:  msg,
			Location: core.Location{File: file, Line: line, Column: 3, Snippet: "x.a;"},
			Func:     fn,
			Path:     path,
			CWE:      []string{"CWE-476"},
		}
	}
	return &engine.Report{
		RunID: "run-1",
		Files: []engine.FileResult{
			{File: "a.js", Findings: []core.Finding{finding("a.js", 2, "x could be null or undefined", "<program>", "x")}},
			{File: "b.js", Findings: []core.Finding{finding("b.js", 9, "x.a could be null or undefined", "load", "x.a")},
				Incomplete: []core.IncompleteFunc{{Analyzer: "nullcheck", Func: "loop", Reason: "iteration budget exceeded"}}},
			{File: "c.js", Err: errors.New("failed to read c.js")},
		},
	}
}

// MockWriteCloser captures output and can simulate I/O errors.
type MockWriteCloser struct {
	Buffer    bytes.Buffer
	FailWrite bool
	FailClose bool
	Closed    bool
}

func (m *MockWriteCloser) Write(p []byte) (int, error) {
	if m.FailWrite {
		return 0, errors.New("simulated write error")
	}
	return m.Buffer.Write(p)
}

func (m *MockWriteCloser) Close() error {
	m.Closed = true
	if m.FailClose {
		return errors.New("simulated close error")
	}
	return nil
}

func TestNew_Stdout(t *testing.T) {
	for _, format := range []string{reporting.FormatText, reporting.FormatJSON} {
		t.Run(format, func(t *testing.T) {
			var out bytes.Buffer
			r, err := reporting.New(format, "", &out)
			require.NoError(t, err)
			require.NoError(t, r.Write(&engine.Report{RunID: "r"}))
			require.NoError(t, r.Close())
			assert.NotEmpty(t, out.String())
		})
	}
}

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	var stdout bytes.Buffer

	r, err := reporting.New(reporting.FormatJSON, path, &stdout)
	require.NoError(t, err)
	require.NoError(t, r.Write(sampleReport()))
	require.NoError(t, r.Close())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), `"run_ids": [`)
	assert.Empty(t, stdout.String())
}

func TestNew_Failures(t *testing.T) {
	_, err := reporting.New("sarif", "", &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported output format: sarif")

	_, err = reporting.New(reporting.FormatJSON, filepath.Join(t.TempDir(), "missing", "out.json"), &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create output file")
}

func TestTextReporter(t *testing.T) {
	w := &MockWriteCloser{}
	r := reporting.NewTextReporter(w)
	require.NoError(t, r.Write(sampleReport()))
	require.NoError(t, r.Close())

	assert.Equal(t,
		"a.js:2:3: x could be null or undefined [json-unguarded-property-read]\n"+
			"    x.a;\n"+
			"b.js:9:3: x.a could be null or undefined [json-unguarded-property-read]\n"+
			"    x.a;\n"+
			"b.js: warning: nullcheck in loop not analyzed: iteration budget exceeded\n"+
			"c.js: error: failed to read c.js\n"+
			"2 finding(s) in 3 file(s)\n",
		w.Buffer.String())
	assert.True(t, w.Closed)
}

func TestTextReporter_WriteError(t *testing.T) {
	w := &MockWriteCloser{FailWrite: true}
	r := reporting.NewTextReporter(w)
	assert.Error(t, r.Write(sampleReport()))
	assert.Error(t, r.Close())
	assert.True(t, w.Closed)
}

func TestJSONReporter(t *testing.T) {
	w := &MockWriteCloser{}
	r := reporting.NewJSONReporter(w)
	require.NoError(t, r.Write(sampleReport()))
	require.NoError(t, r.Close())

	var doc reporting.Document
	require.NoError(t, jsonUnmarshal(w.Buffer.Bytes(), &doc))
	assert.Equal(t, []string{"run-1"}, doc.RunIDs)
	assert.Equal(t, 3, doc.Files)
	require.Len(t, doc.Findings, 2)
	assert.Equal(t, "a.js", doc.Findings[0].Location.File)
	assert.Equal(t, "x.a", doc.Findings[1].Path)
	require.Len(t, doc.Incomplete, 1)
	assert.Equal(t, "b.js", doc.Incomplete[0].File)
	assert.Equal(t, "loop", doc.Incomplete[0].Func)
	assert.Equal(t, []reporting.FileError{{File: "c.js", Error: "failed to read c.js"}}, doc.Errors)
}

func TestJSONReporter_MultipleRuns(t *testing.T) {
	w := &MockWriteCloser{}
	r := reporting.NewJSONReporter(w)
	second := &engine.Report{RunID: "run-2", Files: []engine.FileResult{{File: "0.js", Findings: []core.Finding{
		{Message: "m", Location: core.Location{File: "0.js", Line: 1, Column: 1}},
	}}}}
	require.NoError(t, r.Write(sampleReport()))
	require.NoError(t, r.Write(second))
	require.NoError(t, r.Close())

	var doc reporting.Document
	require.NoError(t, jsonUnmarshal(w.Buffer.Bytes(), &doc))
	assert.Equal(t, []string{"run-1", "run-2"}, doc.RunIDs)
	assert.Equal(t, 4, doc.Files)
	require.Len(t, doc.Findings, 3)
	assert.Equal(t, "0.js", doc.Findings[0].Location.File)
}

func TestJSONReporter_EmptyFindingsIsArray(t *testing.T) {
	w := &MockWriteCloser{}
	r := reporting.NewJSONReporter(w)
	require.NoError(t, r.Close())
	assert.Contains(t, w.Buffer.String(), `"findings": []`)
}

func TestJSONReporter_CloseError(t *testing.T) {
	r := reporting.NewJSONReporter(&MockWriteCloser{FailClose: true})
	err := r.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to close output writer")
}
