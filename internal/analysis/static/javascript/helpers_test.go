package javascript

import (
	"context"
	"testing"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/jsonguard/internal/analysis/ir"
)

func parseNode(t *testing.T, code string) (*sitter.Node, []byte) {
	t.Helper()
	parser := sitter.NewParser()
	parser.SetLanguage(javascript.GetLanguage())
	src := []byte(code)
	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	// program -> expression_statement -> expression
	root := tree.RootNode()
	stmt := root.Child(0)
	if stmt == nil {
		t.Fatal("No statement found")
	}
	if stmt.Type() == "expression_statement" {
		return stmt.Child(0), src
	}
	return stmt, src
}

func TestFlattenPropertyAccess(t *testing.T) {
	tests := []struct {
		code     string
		expected []string // nil means we expect failure/nil
	}{
		{"window.location.hash", []string{"window", "location", "hash"}},
		{"obj['prop']", []string{"obj", "prop"}},
		{"this.data", []string{"this", "data"}},
		{"simple", []string{"simple"}},
		{"arr[0]", nil},
		{"obj[variable]", nil},
		{"f().x", nil},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			node, src := parseNode(t, tt.code)
			assert.Equal(t, tt.expected, flattenPropertyAccess(node, src))
		})
	}
}

func TestUnquote(t *testing.T) {
	assert.Equal(t, "k", unquote(`"k"`))
	assert.Equal(t, "k", unquote(`'k'`))
	assert.Equal(t, "k", unquote("`k`"))
	assert.Equal(t, "it's", unquote(`"it's"`))
	assert.Equal(t, "bare", unquote("bare"))
	assert.Equal(t, "", unquote(`''`))
}

func TestPosOf(t *testing.T) {
	node, _ := parseNode(t, "  x.y")
	assert.Equal(t, ir.Pos{Line: 1, Column: 3}, posOf(node))
	assert.Equal(t, ir.Pos{}, posOf(nil))
}

func TestFindLineStart(t *testing.T) {
	content := `line one
line two
line three`
	source := []byte(content)

	tests := []struct {
		name     string
		idx      int
		expected int
	}{
		{"middle of first line", 3, 0},
		{"start of first line", 0, 0},
		{"end of first line", 7, 0},
		{"on newline char", 8, 0},
		{"start of second line", 9, 9},
		{"middle of second line", 12, 9},
		{"end of last line", len(content) - 1, 18},
		{"out of bounds high", len(content) + 5, 18},
		{"out of bounds low", -5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := findLineStart(source, tt.idx)
			if got != tt.expected {
				t.Errorf("expected findLineStart(..., %d) to be %d, but got %d", tt.idx, tt.expected, got)
			}
		})
	}
}

func TestLocationAt(t *testing.T) {
	source := []byte("const x = JSON.parse(s);\n\n    return x.value;   \nlast")

	tests := []struct {
		name    string
		pos     ir.Pos
		snippet string
	}{
		{"first line", ir.Pos{Line: 1, Column: 7}, "const x = JSON.parse(s);"},
		{"blank line", ir.Pos{Line: 2, Column: 1}, "N/A"},
		{"trimmed", ir.Pos{Line: 3, Column: 12}, "return x.value;"},
		{"last line without newline", ir.Pos{Line: 4, Column: 1}, "last"},
		{"past the end", ir.Pos{Line: 9, Column: 1}, "N/A"},
		{"zero position", ir.Pos{}, "N/A"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc := LocationAt("a.js", source, tt.pos)
			assert.Equal(t, tt.snippet, loc.Snippet)
			assert.Equal(t, tt.pos.Line, loc.Line)
			assert.Equal(t, "a.js", loc.File)
		})
	}
	assert.Equal(t, "a.js:3:12", LocationAt("a.js", source, ir.Pos{Line: 3, Column: 12}).String())
}
