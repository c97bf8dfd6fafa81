/*
Copyright (c) 2013 Blake Smith <blakesmith0@gmail.com>

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/

// Package ar reads and writes Unix ar static-library archives, compatible
// with the dialects emitted by GNU binutils and LLVM: GNU, GNU-thin,
// GNU64, BSD, Darwin, Darwin64 and COFF. It maintains the set of member
// object files an archive contains and, on request, builds the external
// symbol index (ranlib directory) a linker consults to find them.
package ar

import "time"

const (
	headerByteSize = 60
	gnuMagic       = "!<arch>\n"
	thinMagic      = "!<thin>\n"

	bsdSymdefName   = "__.SYMDEF"
	bsdSymdefSorted = "__.SYMDEF SORTED"
	bsdSymdef64Name = "__.SYMDEF_64"
)

// slicer carves a fixed-size buffer into successive fields, in the order
// they're read or written. The member header codec uses it instead of
// relying on in-memory struct layout (§9).
type slicer []byte

func (sp *slicer) next(n int) (b []byte) {
	s := *sp
	b, *sp = s[0:n], s[n:]
	return
}

// Dialect is a specific on-disk encoding of the archive format. Dialects
// disagree on long-name handling, symbol-table layout and alignment; see
// §4.1.
type Dialect int

const (
	// Ambiguous is the pre-inference value every freshly constructed
	// Archive starts in. The reader resolves it while parsing; the writer
	// resolves it to the host's native dialect if it's never been set.
	Ambiguous Dialect = iota
	GNU
	GNUThin
	GNU64
	BSD
	Darwin
	Darwin64
	COFF
)

func (d Dialect) String() string {
	switch d {
	case Ambiguous:
		return "ambiguous"
	case GNU:
		return "gnu"
	case GNUThin:
		return "gnuthin"
	case GNU64:
		return "gnu64"
	case BSD:
		return "bsd"
	case Darwin:
		return "darwin"
	case Darwin64:
		return "darwin64"
	case COFF:
		return "coff"
	default:
		return "unknown"
	}
}

// isGNUFamily reports whether d uses GNU-style long-name and symbol-table
// encoding (trailing-slash short names, "/offset" long names, "\n" padding).
func (d Dialect) isGNUFamily() bool {
	switch d {
	case GNU, GNUThin, GNU64, COFF:
		return true
	default:
		return false
	}
}

func (d Dialect) isDarwinFamily() bool {
	return d == Darwin || d == Darwin64
}

func (d Dialect) is64SymbolWidth() bool {
	return d == GNU64 || d == Darwin64
}

// recordAlignment is the alignment every interior boundary (symbol table,
// string table, each member header) must satisfy, per the table in §4.1.
func (d Dialect) recordAlignment() int64 {
	switch d {
	case BSD, Darwin, Darwin64:
		return 8
	default:
		return 2
	}
}

// padByte is the byte used to pad interior boundaries up to alignment: '\n'
// in the GNU family, '\0' everywhere else.
func (d Dialect) padByte() byte {
	if d.isGNUFamily() {
		return '\n'
	}
	return 0
}

// Modifiers records the ar command-line flags that affect how the core
// mutates and serialises an archive (§3). The CLI front-end that parses
// flags into this struct is an external collaborator; this package only
// consumes the result.
type Modifiers struct {
	// Create suppresses the "creating archive" warning an external
	// front-end would otherwise print; it has no effect on the core.
	Create bool

	// UpdateOnly skips replacing an existing member when the file's mtime
	// is no newer than that member's recorded mtime. The archive file's own
	// mtime is not consulted, and a file with no member of the same name is
	// always inserted.
	UpdateOnly bool

	// UseRealTimestampsAndIDs disables deterministic mode. When false
	// (the default), inserted members get mtime=0, uid=gid=0, mode=0644
	// instead of their real filesystem metadata.
	UseRealTimestampsAndIDs bool

	// BuildSymbolTable requests a symbol directory be (re)built on write,
	// and that inserted members be scanned for symbols.
	BuildSymbolTable bool

	// SortSymbolTable requests the symbol directory be emitted in
	// lexicographic byte order of symbol name rather than insertion order.
	SortSymbolTable bool

	// Verbose requests the mutation operations log what they're doing.
	Verbose bool
}

// deterministicMode is the inverse of UseRealTimestampsAndIDs, spelled the
// way callers read more naturally at use sites.
func (m Modifiers) deterministicMode() bool { return !m.UseRealTimestampsAndIDs }

// Member, called ArchivedFile in §3, is a single file contained within an
// archive.
type Member struct {
	// Name is the member's basename. It is raw bytes, not guaranteed valid
	// text in any encoding: archives in the wild carry non-UTF8 names.
	Name []byte

	// Data is the member's payload. For a GNU-thin archive it stays nil;
	// the content lives in the sibling file named by Name, which is read
	// on demand each time it is needed and not stored here.
	Data []byte

	// ModTime is nanosecond-resolution modification time. Go's time.Time
	// already stores an int64 of seconds plus an int32 of nanoseconds
	// since the Unix epoch, which covers every value any archive dialect
	// here can encode; no wider integer type is needed to survive a round
	// trip (see DESIGN.md).
	ModTime time.Time

	// Mode is the POSIX mode bits exactly as they should be encoded in the
	// header's mode field. Deterministic-mode members store the bare
	// value 0644 (not the regular-file type bits LLVM ar otherwise
	// includes for real files); see the Design Notes in §9.
	Mode int64

	Uid int
	Gid int

	// declaredSize holds a GNU-thin member's payload length as read from
	// its header, since Data is left nil for such a member.
	declaredSize int64
}

func (m *Member) size() int64 {
	if m.Data == nil && m.declaredSize != 0 {
		return m.declaredSize
	}
	return int64(len(m.Data))
}

// name as a string, for map keys and error messages; archive basenames are
// treated as opaque bytes everywhere else.
func (m *Member) name() string { return string(m.Name) }

// unresolvedMember is the sentinel §3 defines for a SymbolRef whose file
// offset, during reading, matched no parsed member.
const unresolvedMember = ^uint64(0)

// SymbolRef is one entry in an archive's symbol directory: a symbol name
// and the member that defines it.
type SymbolRef struct {
	// Name is the symbol name, without its null terminator.
	Name []byte

	// MemberIndex is an index into the Archive's Members slice, or
	// unresolvedMember. The reader tracks the pending/resolved
	// distinction internally (see pendingSymbol in reader.go) and only
	// commits to this field once Phase C has run.
	MemberIndex uint64
}

// Unresolved reports whether s could not be tied to any member. Read
// produces such a ref when a symbol table entry's offset matches no
// member header, and keeps it in the returned Archive.
func (s SymbolRef) Unresolved() bool { return s.MemberIndex == unresolvedMember }
