package model

// Catalog lists declarations by kind, the way a catalog view shows them.
type Catalog struct {
	Types   []string      `json:"types,omitempty"`
	Methods []MethodProto `json:"methods,omitempty"`
	Tests   []string      `json:"tests,omitempty"`
}

// MethodProto groups the protos of one method name.
type MethodProto struct {
	Name   string   `json:"name"`
	Protos []string `json:"protos"`
}

// Empty reports whether the catalog lists nothing.
func (c Catalog) Empty() bool {
	return len(c.Types) == 0 && len(c.Methods) == 0 && len(c.Tests) == 0
}

// Len returns the number of identities listed.
func (c Catalog) Len() int {
	n := len(c.Types) + len(c.Tests)
	for _, m := range c.Methods {
		n += len(m.Protos)
	}
	return n
}

// CatalogDelta is the change a catalog view applies after an edit.
type CatalogDelta struct {
	Removed Catalog `json:"removed"`
	Added   Catalog `json:"added"`
	Core    bool    `json:"core,omitempty"`
	// Select names the declaration to focus when an edit produced exactly one.
	Select string `json:"select,omitempty"`
	// Affected lists project declarations referring to something removed.
	Affected []string `json:"affected,omitempty"`
}
