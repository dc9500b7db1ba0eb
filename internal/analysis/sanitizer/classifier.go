package sanitizer

import (
	"strings"

	"github.com/xkilldash9x/jsonguard/internal/analysis/ir"
)

// Class is the coarse classification of an expression.
type Class int

const (
	ClassOrdinary Class = iota
	ClassTaintSource
	ClassAccessPathRead
	ClassSanitizingCall
)

func (c Class) String() string {
	switch c {
	case ClassTaintSource:
		return "taint-source"
	case ClassAccessPathRead:
		return "access-path-read"
	case ClassSanitizingCall:
		return "sanitizing-call"
	default:
		return "ordinary"
	}
}

// Kind identifies which sanitizer shape a sanitizing expression has.
type Kind int

const (
	KindNone Kind = iota
	// KindMembership is `'key' in subject`.
	KindMembership
	// KindOwnProperty is subject.hasOwnProperty('key') and its Object.hasOwn forms.
	KindOwnProperty
	// KindPredicate is a configured predicate call.
	KindPredicate
	// KindInstanceOf is `subject instanceof T`.
	KindInstanceOf
	// KindAssertion is a configured assertion call.
	KindAssertion
)

func (k Kind) String() string {
	switch k {
	case KindMembership:
		return "membership"
	case KindOwnProperty:
		return "own-property"
	case KindPredicate:
		return "predicate"
	case KindInstanceOf:
		return "instanceof"
	case KindAssertion:
		return "assertion"
	default:
		return "none"
	}
}

// Classification is the result of Classify. Path is set for access-path
// reads. For sanitizing calls Subject is the expression the call is about and
// Key the property it checks, if any.
type Classification struct {
	Class   Class
	Kind    Kind
	Path    AccessPath
	Subject ir.Expr
	Key     string
}

// Classifier recognizes taint sources, access-path reads and sanitizing calls.
// It is immutable and safe for concurrent use.
type Classifier struct {
	cfg      Config
	compiled *compiledConfig
}

// NewClassifier compiles the configured signatures.
func NewClassifier(cfg Config) (*Classifier, error) {
	compiled, err := cfg.compile()
	if err != nil {
		return nil, err
	}
	return &Classifier{cfg: cfg, compiled: compiled}, nil
}

// Config returns the configuration the classifier was built with.
func (c *Classifier) Config() Config { return c.cfg }

// Classify inspects a single expression node.
func (c *Classifier) Classify(e ir.Expr) Classification {
	switch e := e.(type) {
	case *ir.Ident, *ir.Member:
		if p, ok := PathOf(e); ok {
			return Classification{Class: ClassAccessPathRead, Path: p}
		}
	case *ir.Binary:
		switch e.Op {
		case "in":
			if key, ok := stringLiteral(e.X); ok {
				return Classification{Class: ClassSanitizingCall, Kind: KindMembership, Subject: e.Y, Key: key}
			}
		case "instanceof":
			return Classification{Class: ClassSanitizingCall, Kind: KindInstanceOf, Subject: e.X}
		}
	case *ir.Call:
		return c.classifyCall(e)
	}
	return Classification{Class: ClassOrdinary}
}

// IsSource reports whether e is a call to a configured taint source.
func (c *Classifier) IsSource(e ir.Expr) bool {
	return c.Classify(e).Class == ClassTaintSource
}

func (c *Classifier) classifyCall(call *ir.Call) Classification {
	if call.New {
		return Classification{Class: ClassOrdinary}
	}
	name := CalleeName(call.Callee)

	if subject, key, ok := ownPropertyCheck(call, name); ok {
		return Classification{Class: ClassSanitizingCall, Kind: KindOwnProperty, Subject: subject, Key: key}
	}
	if name == "" {
		return Classification{Class: ClassOrdinary}
	}
	for _, re := range c.compiled.sources {
		if re.MatchString(name) {
			return Classification{Class: ClassTaintSource}
		}
	}
	for _, sig := range c.compiled.assertions {
		if sig.re.MatchString(name) && sig.arg < len(call.Args) {
			return Classification{Class: ClassSanitizingCall, Kind: KindAssertion, Subject: call.Args[sig.arg]}
		}
	}
	if c.compiled.excluded(name) {
		return Classification{Class: ClassOrdinary}
	}
	for _, sig := range c.compiled.predicates {
		if sig.re.MatchString(name) && sig.arg < len(call.Args) {
			return Classification{Class: ClassSanitizingCall, Kind: KindPredicate, Subject: call.Args[sig.arg]}
		}
	}
	return Classification{Class: ClassOrdinary}
}

// ownPropertyCheck matches subject.hasOwnProperty('k'),
// Object.hasOwn(subject, 'k') and Object.prototype.hasOwnProperty.call(subject, 'k').
func ownPropertyCheck(call *ir.Call, name string) (ir.Expr, string, bool) {
	switch name {
	case "Object.hasOwn", "Object.prototype.hasOwnProperty.call":
		if len(call.Args) != 2 {
			return nil, "", false
		}
		key, ok := stringLiteral(call.Args[1])
		return call.Args[0], key, ok
	}
	m, ok := call.Callee.(*ir.Member)
	if !ok || m.Key != nil || m.Property != "hasOwnProperty" || len(call.Args) != 1 {
		return nil, "", false
	}
	key, ok := stringLiteral(call.Args[0])
	return m.Object, key, ok
}

// CalleeName returns the dotted name of a callee built only from identifiers
// and literal property reads, or "" for anything else.
func CalleeName(e ir.Expr) string {
	var parts []string
	for {
		switch x := e.(type) {
		case *ir.Ident:
			parts = append(parts, x.Name)
			for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
				parts[i], parts[j] = parts[j], parts[i]
			}
			return strings.Join(parts, ".")
		case *ir.Member:
			if x.Key != nil {
				return ""
			}
			parts = append(parts, x.Property)
			e = x.Object
		default:
			return ""
		}
	}
}

func stringLiteral(e ir.Expr) (string, bool) {
	lit, ok := e.(*ir.Literal)
	if !ok || lit.Kind != ir.LitString {
		return "", false
	}
	return lit.Value, true
}

func isNullish(e ir.Expr) (null bool, undefined bool) {
	lit, ok := e.(*ir.Literal)
	if !ok {
		return false, false
	}
	return lit.Kind == ir.LitNull, lit.Kind == ir.LitUndefined
}
