package objsym

import (
	"bytes"
	"debug/macho"
)

// extractMachO walks the Mach-O load commands for the symbol table (the
// same debug/macho.File.Symtab a fuller Mach-O reader like go-macho builds
// on top of) and emits every symbol flagged both external (N_EXT) and
// defined in a section (N_SECT). debug/macho already resolves names through
// the Mach-O string table for us.
func extractMachO(member string, data []byte) ([]Symbol, error) {
	f, err := macho.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, &objectError{NotObject, member, err.Error()}
	}
	defer f.Close()

	if f.Symtab == nil {
		return nil, nil
	}

	const (
		nExt     = 0x01 // N_EXT: symbol is externally visible
		nTypeMsk = 0x0e // N_TYPE: mask selecting the type bits
		nSect    = 0x0e // N_SECT: defined in the section given by Sym.Sect
	)

	var out []Symbol
	for _, s := range f.Symtab.Syms {
		if s.Type&nExt == 0 {
			continue
		}
		if s.Type&nTypeMsk != nSect {
			continue
		}
		out = append(out, Symbol{Name: []byte(s.Name), Binding: Global})
	}
	return out, nil
}
