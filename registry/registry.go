// Package registry implements spec.md §4.G: the prepared-statement
// registry a Connection keeps, keyed by statement name, tracking each
// entry through Parse → ParameterDescription/RowDescription → Close.
package registry

import (
	"github.com/mevdschee/pgwire/pgerr"
	"github.com/mevdschee/pgwire/protocol"
)

// Entry is one prepared statement's registered shape.
type Entry struct {
	Name          string
	IsPreparsed   bool
	IsDescribed   bool
	ParameterOIDs []int32
	Row           protocol.RowDescription
	HasRow        bool // false when Describe answered with NoData
}

// Registry tracks prepared statements by name; the empty name denotes
// the unnamed statement, a singleton that Parse silently overwrites.
type Registry struct {
	entries map[string]*Entry
	order   []string
}

func New() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// Parse registers name as preparsed, replacing any prior entry of the
// same name (re-parsing the unnamed statement is normal and expected).
func (r *Registry) Parse(name string) {
	if _, exists := r.entries[name]; !exists {
		r.order = append(r.order, name)
	}
	r.entries[name] = &Entry{Name: name, IsPreparsed: true}
}

// Describe fills in an already-parsed entry's parameter and row shape.
func (r *Registry) Describe(name string, paramOIDs []int32, row protocol.RowDescription, hasRow bool) error {
	e, ok := r.entries[name]
	if !ok || !e.IsPreparsed {
		return pgerr.New(pgerr.ProtocolError, "registry: Describe for unprepared statement %q", name)
	}
	e.ParameterOIDs = paramOIDs
	e.Row = row
	e.HasRow = hasRow
	e.IsDescribed = true
	return nil
}

// Close removes name's entry after CloseComplete; unpreparing the
// unnamed statement is rejected since it is not an addressable,
// independently closeable statement per spec.md §4.G.
func (r *Registry) Close(name string) error {
	if name == "" {
		return pgerr.New(pgerr.InvalidArgument, "registry: cannot unprepare the unnamed statement")
	}
	if _, ok := r.entries[name]; !ok {
		return pgerr.New(pgerr.ProtocolError, "registry: Close for unknown statement %q", name)
	}
	delete(r.entries, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// Lookup returns the entry registered under name, if any.
func (r *Registry) Lookup(name string) (*Entry, bool) {
	e, ok := r.entries[name]
	return e, ok
}

// Names returns registered statement names in insertion order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
