// Package objsym implements the object-file symbol extractors described as
// C2: just enough of ELF, Mach-O and COFF to enumerate the externally
// visible symbols a member defines, so the archive writer can build a
// portable symbol directory. It never resolves symbols across members and
// never validates anything beyond what's needed to locate the symbol and
// string tables.
package objsym

import (
	"bytes"
	"errors"

	"github.com/apex/log"
)

// Binding distinguishes the two linkage kinds the archive's symbol
// directory cares about; everything else (local symbols, section symbols,
// debug symbols) is invisible to a linker consulting the archive and is
// never emitted.
type Binding int

const (
	Global Binding = iota
	Weak
)

// Symbol is one (name, binding) pair contributed by a member. Name is
// copied out of the object file's own buffers so the caller may discard
// them once extraction returns.
type Symbol struct {
	Name    []byte
	Binding Binding
}

var (
	elfMagic     = []byte{0x7f, 'E', 'L', 'F'}
	machMagic32  = []byte{0xfe, 0xed, 0xfa, 0xce}
	machMagic64  = []byte{0xfe, 0xed, 0xfa, 0xcf}
	machCigam32  = []byte{0xce, 0xfa, 0xed, 0xfe}
	machCigam64  = []byte{0xcf, 0xfa, 0xed, 0xfe}
	bitcodeMagic = []byte{'B', 'C', 0xc0, 0xde}
)

// ErrNotObject means the leading bytes don't match any magic this package
// recognises. It is not a failure of extraction: the caller treats a member
// that isn't an object file as contributing zero symbols.
var ErrNotObject = errors.New("objsym: not a recognised object file")

// Extract sniffs data's leading bytes and dispatches to the matching
// format's extractor. member names the archive member for error context
// only. The amd64Only COFF fallback described in §9 applies here: any
// leading bytes that are not ELF, Mach-O or bitcode magic are tried as a
// COFF header, and are accepted only if the machine field decodes to a
// plausible IMAGE_FILE_MACHINE_AMD64.
func Extract(member string, data []byte) ([]Symbol, error) {
	switch {
	case len(data) >= 4 && bytes.Equal(data[:4], elfMagic):
		return extractELF(member, data)
	case len(data) >= 4 && (bytes.Equal(data[:4], machMagic32) || bytes.Equal(data[:4], machMagic64) ||
		bytes.Equal(data[:4], machCigam32) || bytes.Equal(data[:4], machCigam64)):
		return extractMachO(member, data)
	case len(data) >= 4 && bytes.Equal(data[:4], bitcodeMagic):
		log.WithField("member", member).Warn("objsym: bitcode object accepted but contributes no symbols")
		return nil, nil
	default:
		syms, ok := tryCOFF(member, data)
		if !ok {
			return nil, nil
		}
		return syms, nil
	}
}
