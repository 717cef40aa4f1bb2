package model

import (
	"slices"
	"strings"
)

// DefaultVersion is the version given to declarations created locally.
const DefaultVersion = "0.0.1"

// EditStatus tracks a declaration's sync state with the backing store.
type EditStatus string

const (
	Clean   EditStatus = "CLEAN"
	Dirty   EditStatus = "DIRTY"
	Created EditStatus = "CREATED"
	Deleted EditStatus = "DELETED"
)

// Record is the persisted shape of a declaration:
//
//	{type: "<Kind>Declaration", value: {name, version, dialect, body, ...}}
type Record struct {
	Type  string      `json:"type"`
	Value RecordValue `json:"value"`
}

// RecordValue holds the fields of a persisted declaration.
type RecordValue struct {
	Name      string     `json:"name"`
	Version   string     `json:"version"`
	Dialect   string     `json:"dialect"`
	Body      string     `json:"body"`
	Prototype *string    `json:"prototype,omitempty"`
	Storable  *bool      `json:"storable,omitempty"`
	Symbols   []string   `json:"symbols,omitempty"`
	DbID      string     `json:"dbId,omitempty"`
	Module    *ModuleRef `json:"module,omitempty"`
}

// ModuleRef points at the persistence unit owning a declaration.
type ModuleRef struct {
	Type  string      `json:"type"`
	Value ModuleValue `json:"value"`
}

// ModuleValue is the payload of a ModuleRef. Only the dbId is kept; larger
// module payloads (dependencies, images) are never carried in a record.
type ModuleValue struct {
	DbID string `json:"dbId"`
}

// NewModuleRef returns a module reference for the given persisted id.
func NewModuleRef(dbID string) *ModuleRef {
	return &ModuleRef{Type: "Module", Value: ModuleValue{DbID: dbID}}
}

// NewRecord snapshots d as a record at DefaultVersion, with no persisted ids.
func NewRecord(d *Declaration) Record {
	rec := Record{
		Type: d.Kind.RecordType(),
		Value: RecordValue{
			Name:    d.Name,
			Version: DefaultVersion,
			Dialect: d.Dialect,
			Body:    d.Body,
			Symbols: slices.Clone(d.Symbols),
		},
	}
	if d.Kind.Overloadable() {
		p := d.Proto
		rec.Value.Prototype = &p
	}
	if d.Storable != nil {
		s := *d.Storable
		rec.Value.Storable = &s
	}
	return rec
}

// Kind returns the declaration kind encoded in the record type tag.
func (r Record) Kind() Kind {
	return Kind(strings.TrimSuffix(r.Type, "Declaration"))
}

// ID returns the identity of the persisted declaration.
func (r Record) ID() string {
	proto := ""
	if r.Value.Prototype != nil {
		proto = *r.Value.Prototype
	}
	return Identity(r.Value.Name, r.Kind(), proto)
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	c := r
	v := &c.Value
	v.Symbols = slices.Clone(r.Value.Symbols)
	if r.Value.Prototype != nil {
		p := *r.Value.Prototype
		v.Prototype = &p
	}
	if r.Value.Storable != nil {
		s := *r.Value.Storable
		v.Storable = &s
	}
	if r.Value.Module != nil {
		m := *r.Value.Module
		v.Module = &m
	}
	return c
}

// StatusEntry pairs a declaration snapshot with its edit status.
type StatusEntry struct {
	// Key is a surrogate id that survives renames; acknowledgments use it.
	Key string
	// Seq orders entries in commit batches.
	Seq      uint64
	Revision uint64
	Record   Record
	Status   EditStatus
	// Detached is set once a DELETED declaration has been unregistered.
	Detached bool
}

// EditedEntry is an immutable copy of a non-clean status entry queued for commit.
type EditedEntry struct {
	Key      string     `json:"key"`
	ID       string     `json:"id"`
	Revision uint64     `json:"revision"`
	Status   EditStatus `json:"editStatus"`
	Record   Record     `json:"stuff"`
}

// Ack acknowledges one committed entry. Revision echoes the revision of the
// EditedEntry that was committed.
type Ack struct {
	Key      string `json:"key"`
	Revision uint64 `json:"revision"`
	DbID     string `json:"dbId"`
}
