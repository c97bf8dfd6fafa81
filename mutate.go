package ar

import (
	"os"
	"path/filepath"

	"github.com/apex/log"

	"github.com/xoar-project/xoar/internal/objsym"
)

// Insert adds the file at path as a new member, or replaces the existing
// member whose basename matches it (§4.5). When Modifiers.UpdateOnly is set
// and a member of that name already exists, the replacement is skipped
// unless path's modification time is strictly newer than the existing
// member's. When Modifiers.BuildSymbolTable is set, the new member's
// content is scanned for symbols, which replace whatever the member being
// overwritten contributed.
func (a *Archive) Insert(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return wrapIO(OpAccessing, path, err)
	}
	name := filepath.Base(path)

	existingIdx, exists := a.find([]byte(name))
	if exists && a.Modifiers.UpdateOnly && !info.ModTime().After(a.Members[existingIdx].ModTime) {
		if a.Modifiers.Verbose {
			log.WithField("member", name).Info("ar: not newer, skipping")
		}
		return nil
	}

	var data []byte
	if a.Dialect != GNUThin {
		if data, err = os.ReadFile(path); err != nil {
			return wrapIO(OpReading, path, err)
		}
	}

	m := &Member{Name: []byte(name)}
	if a.Dialect == GNUThin {
		m.declaredSize = info.Size()
	} else {
		m.Data = data
	}

	if a.Modifiers.deterministicMode() {
		// mtime=0, uid=gid=0, mode=0644: the Member zero value already
		// gives us the first three; only Mode needs setting.
		m.Mode = 0644
	} else {
		m.ModTime = info.ModTime()
		m.Mode = int64(info.Mode().Perm())
	}

	var idx int
	if exists {
		idx = existingIdx
		a.Members[idx] = m
		a.dropSymbolsFor(idx)
	} else {
		idx = len(a.Members)
		a.Members = append(a.Members, m)
	}
	a.rebuildIndex()

	if a.Modifiers.BuildSymbolTable {
		content, err := a.memberContent(m)
		if err != nil {
			return err
		}
		if err := a.extractSymbols(idx, name, content); err != nil {
			return err
		}
	}

	if a.Modifiers.Verbose {
		log.WithField("member", name).Info("ar: inserted")
	}
	return nil
}

// Delete removes the member named name, renumbering every symbol that
// pointed past it and dropping every symbol that pointed at it (§4.5).
func (a *Archive) Delete(name string) error {
	idx, ok := a.find([]byte(name))
	if !ok {
		return ErrMemberNotFound
	}
	a.Members = append(a.Members[:idx], a.Members[idx+1:]...)

	filtered := a.Symbols[:0]
	for _, s := range a.Symbols {
		switch {
		case s.Unresolved():
			continue
		case s.MemberIndex == uint64(idx):
			continue
		case s.MemberIndex > uint64(idx):
			s.MemberIndex--
		}
		filtered = append(filtered, s)
	}
	a.Symbols = filtered
	a.rebuildIndex()

	if a.Modifiers.Verbose {
		log.WithField("member", name).Info("ar: deleted")
	}
	return nil
}

// Extract returns the content of the member named name. Writing that
// payload out to a file in the archive's directory (§4.5) is the CLI
// front-end's job — same division as Names and SymbolTable below, so this
// package never has to decide a destination path, permission bits, or
// overwrite behaviour on the caller's behalf. A GNU-thin archive keeps no
// payload bytes of its own to return; ErrExtractingFromThin names that
// directly rather than returning an empty slice.
func (a *Archive) Extract(name string) ([]byte, error) {
	if a.Dialect == GNUThin {
		return nil, ErrExtractingFromThin
	}
	idx, ok := a.find([]byte(name))
	if !ok {
		return nil, ErrMemberNotFound
	}
	return a.Members[idx].Data, nil
}

// Names lists every member's basename, in archive order. Formatting this
// list for a terminal (ar -t style) is the CLI front-end's job, not this
// package's.
func (a *Archive) Names() []string {
	out := make([]string, len(a.Members))
	for i, m := range a.Members {
		out[i] = m.name()
	}
	return out
}

// SymbolListing pairs one symbol directory entry with the basename of the
// member that defines it, for an "ar -s" / "nm -s" style report.
type SymbolListing struct {
	Name   string
	Member string
}

// SymbolTable returns the archive's symbol directory in listing form. An
// entry whose symbol could not be resolved to a member (a symbol table
// entry read from an archive whose offset matched no member) reports an
// empty Member.
func (a *Archive) SymbolTable() []SymbolListing {
	out := make([]SymbolListing, len(a.Symbols))
	for i, s := range a.Symbols {
		listing := SymbolListing{Name: string(s.Name)}
		if idx, ok := a.resolvedSymbolMemberIndex(s); ok {
			listing.Member = a.Members[idx].name()
		}
		out[i] = listing
	}
	return out
}

// Ranlib rebuilds the archive's symbol directory from scratch by
// re-scanning every member's content, discarding whatever directory it had
// before. Unlike Insert, this always runs regardless of
// Modifiers.BuildSymbolTable: invoking ranlib is itself the request.
func (a *Archive) Ranlib() error {
	a.Symbols = nil
	for i, m := range a.Members {
		content, err := a.memberContent(m)
		if err != nil {
			return err
		}
		if err := a.extractSymbols(i, m.name(), content); err != nil {
			return err
		}
	}
	if a.Modifiers.Verbose {
		log.Info("ar: rebuilt symbol table")
	}
	return nil
}

// memberContent returns m's bytes, dereferencing a GNU-thin member's
// sibling file relative to the archive's own directory if m carries no
// payload of its own.
func (a *Archive) memberContent(m *Member) ([]byte, error) {
	if m.Data != nil {
		return m.Data, nil
	}
	path := filepath.Join(a.Dir, m.name())
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, wrapIO(OpReading, path, err)
	}
	return data, nil
}

// extractSymbols scans content for symbols via objsym and appends them to
// the archive's directory, tied to member index idx. An objsym failure is
// adapted into this package's own ObjectError taxonomy (§7) rather than
// leaking objsym's internal error type.
func (a *Archive) extractSymbols(idx int, name string, content []byte) error {
	syms, err := objsym.Extract(name, content)
	if err != nil {
		if de, ok := err.(objsym.DetailedError); ok {
			return &ObjectError{Kind: ObjectErrorKind(de.ObjsymKind()), Member: de.ObjsymMember(), Detail: err.Error()}
		}
		return err
	}
	for _, s := range syms {
		a.Symbols = append(a.Symbols, SymbolRef{Name: s.Name, MemberIndex: uint64(idx)})
	}
	return nil
}

// dropSymbolsFor removes every symbol directory entry pointing at member
// idx, ahead of that member being overwritten in place.
func (a *Archive) dropSymbolsFor(idx int) {
	filtered := a.Symbols[:0]
	for _, s := range a.Symbols {
		if s.MemberIndex == uint64(idx) {
			continue
		}
		filtered = append(filtered, s)
	}
	a.Symbols = filtered
}
