// Package diag carries parse and check diagnostics.
package diag

import (
	"fmt"
	"strings"
)

// Kind classifies a diagnostic.
type Kind string

const (
	Syntax   Kind = "syntax"
	Semantic Kind = "semantic"
	Warning  Kind = "warning"
)

// Diagnostic is a single problem found in source text.
type Diagnostic struct {
	Kind    Kind   `json:"kind"`
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Message string `json:"message"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%d:%d: %s: %s", d.Line, d.Column, d.Kind, d.Message)
}

// List is an ordered set of diagnostics.
type List []Diagnostic

// HasErrors reports whether any diagnostic is more severe than a warning.
func (l List) HasErrors() bool {
	for _, d := range l {
		if d.Kind != Warning {
			return true
		}
	}
	return false
}

// Count returns the number of diagnostics of kind k.
func (l List) Count(k Kind) int {
	n := 0
	for _, d := range l {
		if d.Kind == k {
			n++
		}
	}
	return n
}

func (l List) String() string {
	parts := make([]string, len(l))
	for i, d := range l {
		parts[i] = d.String()
	}
	return strings.Join(parts, "\n")
}

// Listener receives diagnostics as they are found.
type Listener interface {
	Report(d Diagnostic)
}

// Collector is a Listener that keeps everything it is told.
type Collector struct {
	Problems List
}

// Report implements Listener.
func (c *Collector) Report(d Diagnostic) {
	c.Problems = append(c.Problems, d)
}

// Discard is a Listener that drops every diagnostic.
var Discard Listener = discard{}

type discard struct{}

func (discard) Report(Diagnostic) {}

// Error carries a diagnostic list out of an operation that failed because of it.
type Error struct {
	Problems List
}

func (e *Error) Error() string {
	if len(e.Problems) == 1 {
		return e.Problems[0].String()
	}
	return fmt.Sprintf("%d problems, first: %s", len(e.Problems), e.Problems[0])
}
