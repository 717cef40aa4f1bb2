// Package model defines core data structures for declsync.
package model

import (
	"encoding/json"
	"slices"
)

// Kind indicates the syntactic kind of a declaration.
type Kind string

const (
	Type   Kind = "Type"
	Method Kind = "Method"
	Test   Kind = "Test"
)

// Overloadable reports whether declarations of this kind are keyed by proto.
func (k Kind) Overloadable() bool {
	return k == Method
}

// RecordType returns the persisted type tag, e.g. "MethodDeclaration".
func (k Kind) RecordType() string {
	return string(k) + "Declaration"
}

// Declaration is a parsed top-level unit of source.
type Declaration struct {
	Name     string
	Kind     Kind
	Dialect  string
	Body     string
	Proto    string
	Storable *bool
	Symbols  []string
	Line     int
}

// ID returns the identity of d: the name, plus "/" and the proto for methods.
func (d *Declaration) ID() string {
	return Identity(d.Name, d.Kind, d.Proto)
}

// Identity builds a declaration identity from its parts.
func Identity(name string, kind Kind, proto string) string {
	if kind.Overloadable() {
		return name + "/" + proto
	}
	return name
}

// Fingerprint returns the serialized form compared when deciding whether two
// declarations with the same identity are byte-identical.
func (d *Declaration) Fingerprint() string {
	b, _ := json.Marshal(struct {
		Kind    Kind   `json:"kind"`
		Name    string `json:"name"`
		Proto   string `json:"proto"`
		Dialect string `json:"dialect"`
		Body    string `json:"body"`
	}{d.Kind, d.Name, d.Proto, d.Dialect, d.Body})
	return string(b)
}

// Clone returns a deep copy of d.
func (d *Declaration) Clone() *Declaration {
	c := *d
	c.Symbols = slices.Clone(d.Symbols)
	if d.Storable != nil {
		v := *d.Storable
		c.Storable = &v
	}
	return &c
}
