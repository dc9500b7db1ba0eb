package sanitizer

import (
	"errors"
	"fmt"
	"regexp"
)

// Signature recognizes calls by callee name. Name is a regular expression
// matched against the dotted callee ("JSON.parse", "isValid", "assert.ok");
// Arg is the index of the argument the call says something about.
type Signature struct {
	Name string
	Arg  int
}

// Config is the static configuration of the analysis. It is copied into the
// classifier at construction and never mutated afterwards.
type Config struct {
	// Sources are callee-name patterns whose result has unknown nullability.
	Sources []string
	// Predicates are calls that, when true, prove their subject argument non-null.
	Predicates []Signature
	// Exclusions are callee-name patterns that are never predicates even when
	// a predicate pattern matches them. isNull(x) being true proves nothing.
	Exclusions []string
	// Assertions are calls that prove their subject argument for the rest of
	// the scope.
	Assertions []Signature
	// DereferenceImpliesNonNull makes every unconditional property read on a
	// base prove the base non-null afterwards.
	DereferenceImpliesNonNull bool
	// MaxIterations bounds the worklist. Zero selects a bound derived from the
	// size of the CFG.
	MaxIterations int
}

// DefaultConfig recognizes JSON.parse as the source, is*/has* functions as
// predicates except the ones that test for an absent value, and
// assert/invariant as assertions.
func DefaultConfig() Config {
	return Config{
		Sources: []string{`^JSON\.parse$`},
		Predicates: []Signature{
			{Name: `^(is|has)[A-Z0-9_$][\w$]*$`, Arg: 0},
		},
		Exclusions: []string{
			`^is(Null|Undefined|Nil|NaN|Empty|Nullish|Blank|Missing|None|Falsy|Absent)([A-Z_$][\w$]*)?$`,
			`^hasNo[A-Z0-9_$][\w$]*$`,
		},
		Assertions: []Signature{
			{Name: `^assert(\.(ok|strict))?$`, Arg: 0},
			{Name: `^invariant$`, Arg: 0},
		},
		DereferenceImpliesNonNull: true,
	}
}

// Validate checks that every pattern compiles and every index is sane.
func (c Config) Validate() error {
	_, err := c.compile()
	return err
}

type compiledSignature struct {
	re  *regexp.Regexp
	arg int
}

type compiledConfig struct {
	sources    []*regexp.Regexp
	exclusions []*regexp.Regexp
	predicates []compiledSignature
	assertions []compiledSignature
}

func (c Config) compile() (*compiledConfig, error) {
	var errs []error
	out := &compiledConfig{}
	for _, src := range c.Sources {
		re, err := regexp.Compile(src)
		if err != nil {
			errs = append(errs, fmt.Errorf("source %q: %w", src, err))
			continue
		}
		out.sources = append(out.sources, re)
	}
	for _, ex := range c.Exclusions {
		re, err := regexp.Compile(ex)
		if err != nil {
			errs = append(errs, fmt.Errorf("exclusion %q: %w", ex, err))
			continue
		}
		out.exclusions = append(out.exclusions, re)
	}
	compileSigs := func(kind string, sigs []Signature) []compiledSignature {
		var compiled []compiledSignature
		for _, sig := range sigs {
			if sig.Arg < 0 {
				errs = append(errs, fmt.Errorf("%s %q: argument index %d is negative", kind, sig.Name, sig.Arg))
				continue
			}
			re, err := regexp.Compile(sig.Name)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s %q: %w", kind, sig.Name, err))
				continue
			}
			compiled = append(compiled, compiledSignature{re: re, arg: sig.Arg})
		}
		return compiled
	}
	out.predicates = compileSigs("predicate", c.Predicates)
	out.assertions = compileSigs("assertion", c.Assertions)
	if c.MaxIterations < 0 {
		errs = append(errs, fmt.Errorf("max iterations %d is negative", c.MaxIterations))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid sanitizer config: %w", err)
	}
	return out, nil
}

func (cc *compiledConfig) excluded(name string) bool {
	for _, re := range cc.exclusions {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

// iterationBudget returns the worklist bound for a CFG with n blocks.
func (c Config) iterationBudget(n int) int {
	if c.MaxIterations > 0 {
		return c.MaxIterations
	}
	budget := 64 * n
	if budget < 1024 {
		budget = 1024
	}
	return budget
}
