package ir

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		expr Expr
		want string
	}{
		{"dotted", Dotted("x.u.p"), "x.u.p"},
		{"string key normalized", Index(Name("x"), Str("q")), "x.q"},
		{"computed key", Index(Name("x"), Name("e")), "x[e]"},
		{"call", CallTo("JSON.parse", Name("input")), "JSON.parse(input)"},
		{"comparison", Cmp("!=", Dotted("x.q"), Undefined()), "(x.q != undefined)"},
		{"negation", Not(Name("v")), "!v"},
		{"typeof", &Unary{Op: "typeof", X: Name("v")}, "typeof v"},
		{"optional", &Member{Object: Name("a"), Property: "b", Optional: true}, "a?.b"},
		{"logical", And(Name("a"), Dotted("a.b")), "(a && a.b)"},
		{"string literal", Str("w"), `"w"`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Format(tt.expr))
		})
	}
}

func TestFunc_Validate(t *testing.T) {
	t.Parallel()

	t.Run("well formed if", func(t *testing.T) {
		fn := NewFunc("main", Pos{})
		entry := fn.Entry()
		entry.Control = &Branch{Cond: Name("x")}
		then := fn.NewBlock("then")
		join := fn.NewBlock("join")
		fn.Connect(entry, then, EdgeTrue)
		fn.Connect(entry, join, EdgeFalse)
		fn.Connect(then, join, EdgeUnconditional)
		require.NoError(t, fn.Validate())
		assert.Len(t, join.Preds, 2)
	})

	t.Run("conditional edge without control", func(t *testing.T) {
		fn := NewFunc("main", Pos{})
		next := fn.NewBlock("next")
		fn.Connect(fn.Entry(), next, EdgeTrue)
		err := fn.Validate()
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrMalformedCFG))
	})

	t.Run("for-in with true edge", func(t *testing.T) {
		fn := NewFunc("main", Pos{})
		fn.Entry().Control = &ForIn{Key: "k", Object: Name("x")}
		body := fn.NewBlock("body")
		fn.Connect(fn.Entry(), body, EdgeTrue)
		assert.ErrorIs(t, fn.Validate(), ErrMalformedCFG)
	})

	t.Run("empty func", func(t *testing.T) {
		assert.ErrorIs(t, (&Func{Name: "empty"}).Validate(), ErrMalformedCFG)
	})
}
