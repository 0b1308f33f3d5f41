// Package chain provides the in-memory state primitives the ledger runs on: an undo
// journal with nested snapshots and a fungible token with ERC-20 semantics.
package chain

// State is an undo journal shared by every contract living on one simulated chain.
// Mutations register an undo closure; reverting to a snapshot replays them in reverse.
//
// State is not safe for concurrent use. Callers serialize access the way a chain
// serializes transactions.
type State struct {
	undo  []func()
	depth int
}

// NewState returns an empty journal.
func NewState() *State {
	return &State{}
}

// Record registers the closure that undoes a mutation just applied.
// Outside any snapshot the mutation is final and nothing is recorded.
func (s *State) Record(undo func()) {
	if s.depth == 0 {
		return
	}
	s.undo = append(s.undo, undo)
}

// Snapshot opens a revertible scope and returns its id.
func (s *State) Snapshot() int {
	s.depth++
	return len(s.undo)
}

// RevertToSnapshot undoes every mutation recorded since the snapshot was taken and closes it.
func (s *State) RevertToSnapshot(id int) {
	for i := len(s.undo) - 1; i >= id; i-- {
		s.undo[i]()
	}
	s.undo = s.undo[:id]
	s.close()
}

// Release closes a snapshot keeping its mutations. When the outermost scope closes
// the journal is dropped.
func (s *State) Release(int) {
	s.close()
}

func (s *State) close() {
	if s.depth > 0 {
		s.depth--
	}
	if s.depth == 0 {
		s.undo = s.undo[:0]
	}
}

// Atomic runs fn inside a snapshot: on error every mutation fn made is undone.
func (s *State) Atomic(fn func() error) error {
	id := s.Snapshot()
	if err := fn(); err != nil {
		s.RevertToSnapshot(id)
		return err
	}
	s.Release(id)
	return nil
}

// Assign sets *field to v, journaling the previous value.
func Assign[T any](s *State, field *T, v T) {
	prev := *field
	s.Record(func() { *field = prev })
	*field = v
}

// Put stores v under k, journaling the previous entry.
func Put[K comparable, V any](s *State, m map[K]V, k K, v V) {
	prev, existed := m[k]
	s.Record(func() {
		if existed {
			m[k] = prev
		} else {
			delete(m, k)
		}
	})
	m[k] = v
}

// Remove deletes k from m, journaling the removed entry.
func Remove[K comparable, V any](s *State, m map[K]V, k K) {
	prev, existed := m[k]
	if !existed {
		return
	}
	s.Record(func() { m[k] = prev })
	delete(m, k)
}
