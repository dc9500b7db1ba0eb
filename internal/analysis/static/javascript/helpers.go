// Filename: javascript/helpers.go
package javascript

import (
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/xkilldash9x/jsonguard/internal/analysis/ir"
)

// LocationInfo holds the location and source line of a finding.
type LocationInfo struct {
	File    string
	Line    int
	Column  int
	Snippet string
}

func (l LocationInfo) String() string {
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}

// NodeContent extracts the string content of a node from the source byte slice.
func NodeContent(node *sitter.Node, source []byte) string {
	if node == nil {
		return ""
	}
	return node.Content(source)
}

// posOf converts a tree-sitter start point to a 1-indexed position.
func posOf(node *sitter.Node) ir.Pos {
	if node == nil {
		return ir.Pos{}
	}
	p := node.StartPoint()
	return ir.Pos{Line: int(p.Row) + 1, Column: int(p.Column) + 1}
}

// unquote strips the delimiters of a string literal: ", ' and `.
func unquote(raw string) string {
	if len(raw) >= 2 {
		first, last := raw[0], raw[len(raw)-1]
		if first == last && (first == '"' || first == '\'' || first == '`') {
			return raw[1 : len(raw)-1]
		}
	}
	return strings.Trim(raw, "\"'`")
}

// flattenPropertyAccess flattens a chain of property accesses (member_expression
// and subscript_expression with a string key) into its names, e.g.
// window.location.hash or obj['prop'] -> ["window", "location", "hash"] or
// ["obj", "prop"]. It returns nil for anything else.
func flattenPropertyAccess(node *sitter.Node, source []byte) []string {
	var path []string
	current := node

	for {
		if current == nil {
			return nil
		}

		switch current.Type() {
		case "identifier", "this":
			return append([]string{NodeContent(current, source)}, path...)

		case "member_expression":
			object := current.ChildByFieldName("object")
			property := current.ChildByFieldName("property")
			if property == nil || object == nil {
				return nil
			}
			switch property.Type() {
			case "identifier", "property_identifier", "private_property_identifier":
				path = append([]string{NodeContent(property, source)}, path...)
				current = object
			default:
				return nil
			}

		case "subscript_expression":
			object := current.ChildByFieldName("object")
			index := current.ChildByFieldName("index")
			if index == nil || object == nil {
				return nil
			}
			// Only static string keys flatten; obj[0] and obj[v] do not.
			if index.Type() != "string" {
				return nil
			}
			path = append([]string{unquote(NodeContent(index, source))}, path...)
			current = object

		default:
			return nil
		}
	}
}

// LocationAt resolves a position to a LocationInfo carrying the trimmed
// source line as its snippet.
func LocationAt(filename string, source []byte, pos ir.Pos) LocationInfo {
	loc := LocationInfo{File: filename, Line: pos.Line, Column: pos.Column, Snippet: "N/A"}
	if pos.Line < 1 {
		return loc
	}
	line := 1
	start := 0
	for start < len(source) && line < pos.Line {
		if source[start] == '\n' {
			line++
		}
		start++
	}
	if line != pos.Line || start >= len(source) {
		return loc
	}
	lineStart := findLineStart(source, start)
	lineEnd := findLineEnd(source, start)
	if lineEnd > lineStart {
		loc.Snippet = strings.TrimSpace(string(source[lineStart:lineEnd]))
	}
	return loc
}

func findLineStart(source []byte, idx int) int {
	if idx >= len(source) {
		if len(source) == 0 {
			return 0
		}
		idx = len(source) - 1
	}
	if idx < 0 {
		return 0
	}
	// idx may itself sit on the newline ending the previous line.
	for i := idx - 1; i >= 0; i-- {
		if source[i] == '\n' {
			return i + 1
		}
	}
	return 0
}

func findLineEnd(source []byte, idx int) int {
	for i := idx; i < len(source); i++ {
		if source[i] == '\n' {
			return i
		}
	}
	return len(source)
}
