// Package check performs semantic checks on parsed declarations.
package check

import (
	"fmt"
	"strings"

	"github.com/phobologic/declsync/internal/diag"
	"github.com/phobologic/declsync/internal/model"
	"github.com/phobologic/declsync/internal/scope"
)

// Checker validates a declaration batch against a scope.
type Checker struct{}

// New returns a Checker.
func New() *Checker {
	return &Checker{}
}

// Check registers decls into s and reports problems through s.Listener().
// s is mutated, so callers pass a child of the scope they want checked
// against.
func (c *Checker) Check(decls []*model.Declaration, s *scope.Scope) {
	l := s.Listener()
	for _, d := range decls {
		if _, dup := s.LookupLocal(d.ID()); dup {
			l.Report(problem(diag.Semantic, d, fmt.Sprintf("duplicate declaration %s", d.ID())))
			continue
		}
		// The identity is not local, so Register cannot fail.
		_ = s.Register(d)
	}

	for _, d := range decls {
		if d.Kind == model.Method {
			checkReceiver(d, s, l)
		}
		if d.Kind == model.Test {
			checkTestTarget(d, s, l)
		}
	}
}

// checkReceiver requires the type qualifying a method name to be visible.
func checkReceiver(d *model.Declaration, s *scope.Scope, l diag.Listener) {
	i := strings.LastIndex(d.Name, ".")
	if i <= 0 {
		return
	}
	recv := d.Name[:i]
	if t, ok := s.Lookup(recv); ok && t.Kind == model.Type {
		return
	}
	l.Report(problem(diag.Semantic, d, fmt.Sprintf("receiver type %s is not declared", recv)))
}

// checkTestTarget warns about tests that exercise nothing visible.
func checkTestTarget(d *model.Declaration, s *scope.Scope, l diag.Listener) {
	for _, sym := range d.Symbols {
		if _, ok := s.LookupName(sym); ok {
			return
		}
	}
	l.Report(problem(diag.Warning, d, fmt.Sprintf("test %s references no known declaration", d.Name)))
}

func problem(kind diag.Kind, d *model.Declaration, msg string) diag.Diagnostic {
	line := d.Line
	if line == 0 {
		line = 1
	}
	return diag.Diagnostic{Kind: kind, Line: line, Column: 1, Message: msg}
}
