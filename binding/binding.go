// Package binding implements spec.md §4.C parameter binding: a
// fixed-size ordered slot array sized from a preparsed statement, filled
// by position or by name before a Bind request is sent.
package binding

import (
	"github.com/mevdschee/pgwire/pgerr"
	"github.com/mevdschee/pgwire/sqlstmt"
)

// Binding holds one parameter value per slot of a statement's parameter
// list, in the statement's global parameter order (positional slots
// first, then named slots in first-appearance order).
type Binding struct {
	stmt   *sqlstmt.Statement
	values [][]byte
	occupied []bool
}

// New sizes a Binding from stmt's current parameter count. Re-running
// New after stmt.Append or stmt.ReplaceParameter picks up the new size.
func New(stmt *sqlstmt.Statement) *Binding {
	n := stmt.ParameterCount()
	return &Binding{
		stmt:     stmt,
		values:   make([][]byte, n),
		occupied: make([]bool, n),
	}
}

// Set binds the value at global 0-based index i, taking ownership of
// data. A nil data means SQL NULL, matching the DataRow wire encoding.
func (b *Binding) Set(i int, data []byte) error {
	if i < 0 || i >= len(b.values) {
		return pgerr.New(pgerr.InvalidArgument, "binding: index %d out of range [0,%d)", i, len(b.values))
	}
	b.values[i] = data
	b.occupied[i] = true
	return nil
}

// SetByName resolves name to its global index via the parent statement
// and binds data there.
func (b *Binding) SetByName(name string, data []byte) error {
	i, ok := b.stmt.ParameterIndex(name)
	if !ok {
		return pgerr.New(pgerr.InvalidArgument, "binding: unknown parameter %q", name)
	}
	return b.Set(i, data)
}

// Reset clears every slot back to unoccupied, for reuse across Execute
// calls against the same prepared statement.
func (b *Binding) Reset() {
	for i := range b.values {
		b.values[i] = nil
		b.occupied[i] = false
	}
}

// Clone returns an independent copy that can be mutated without
// affecting b.
func (b *Binding) Clone() *Binding {
	c := &Binding{
		stmt:     b.stmt,
		values:   make([][]byte, len(b.values)),
		occupied: make([]bool, len(b.occupied)),
	}
	for i, v := range b.values {
		if v != nil {
			c.values[i] = append([]byte{}, v...)
		}
	}
	copy(c.occupied, b.occupied)
	return c
}

// Len is the number of slots, equal to the parent statement's
// ParameterCount at the time New was called.
func (b *Binding) Len() int { return len(b.values) }

// Value returns the bytes bound at slot i; nil with ok=true means SQL
// NULL was explicitly bound. ok is false if the slot is unoccupied.
func (b *Binding) Value(i int) (data []byte, ok bool) {
	if i < 0 || i >= len(b.values) {
		return nil, false
	}
	return b.values[i], b.occupied[i]
}

// Validate reports a missing_parameter error naming the first unbound
// slot, or nil if every slot is occupied.
func (b *Binding) Validate() error {
	for i, ok := range b.occupied {
		if !ok {
			name, _ := b.stmt.ParameterName(i)
			return pgerr.New(pgerr.MissingParameter, "binding: parameter %q (slot %d) is not bound", name, i)
		}
	}
	return nil
}

// Values returns the bound slots in order, ready for protocol.Bind's
// BindParam list once wrapped with a wire format.
func (b *Binding) Values() [][]byte { return b.values }
