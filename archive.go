package ar

// Archive is the in-memory representation of an ar archive: its dialect,
// the modifiers governing mutation and serialisation, its ordered members,
// its symbol directory, and a basename lookup (§3).
type Archive struct {
	Dialect   Dialect
	Modifiers Modifiers

	// Members is the ordered sequence of archive members. It is ordinary
	// insertion order; GNU and BSD writers only reorder the symbol
	// directory and string table ahead of it, never the members
	// themselves.
	Members []*Member

	// Symbols is the archive's symbol directory.
	Symbols []SymbolRef

	// Dir is the directory the archive file itself lives in. Reads and
	// writes of a GNU-thin archive dereference each member's basename
	// relative to Dir instead of storing payload bytes inline.
	Dir string

	byName map[string]int
}

// NewArchive returns an empty archive. Dialect starts Ambiguous; the first
// successful read or the first write resolves it.
func NewArchive(mods Modifiers) *Archive {
	return &Archive{
		Modifiers: mods,
		byName:    make(map[string]int),
	}
}

// rebuildIndex restores the invariant that every member basename appears in
// byName exactly once, mapped to its current position. Called after any
// mutation that can shift member positions (delete) or after a bulk load
// (the reader populates Members directly then calls this once).
func (a *Archive) rebuildIndex() {
	a.byName = make(map[string]int, len(a.Members))
	for i, m := range a.Members {
		a.byName[m.name()] = i
	}
}

// find returns the position of the member named name, and whether it
// exists. Basenames are matched byte-for-byte.
func (a *Archive) find(name []byte) (int, bool) {
	if a.byName == nil {
		a.rebuildIndex()
	}
	idx, ok := a.byName[string(name)]
	return idx, ok
}

// resolvedSymbolMemberIndex reports the member holding symbol s, in int form
// for indexing; ok is false for an unresolved symbol.
func (a *Archive) resolvedSymbolMemberIndex(s SymbolRef) (int, bool) {
	if s.Unresolved() || s.MemberIndex >= uint64(len(a.Members)) {
		return 0, false
	}
	return int(s.MemberIndex), true
}
