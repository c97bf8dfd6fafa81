package objsym

import (
	"bytes"
	"debug/elf"
	"errors"
	"fmt"
)

// extractELF emits one Symbol per STB_GLOBAL or STB_WEAK symbol defined in
// a section (st_shndx not SHN_UNDEF, and outside the SHN_LORESERVE..
// SHN_HIRESERVE reserved range). Only 64-bit little-endian ELF is required
// by the archive format this package serves; anything else aborts
// extraction for that member rather than guessing.
//
// debug/elf already decodes the section-header-indexed symbol table this
// format needs (and is the same stdlib package a symbol-scanning tool like
// pprof's elfexec helper reaches for), so there is no hand-rolled header
// decode here the way there is for COFF.
func extractELF(member string, data []byte) ([]Symbol, error) {
	if len(data) < elf.EI_NIDENT {
		return nil, &objectError{NotObject, member, "truncated ELF identification"}
	}
	if elf.Class(data[elf.EI_CLASS]) != elf.ELFCLASS64 || elf.Data(data[elf.EI_DATA]) != elf.ELFDATA2LSB {
		return nil, &objectError{NotSupportedMachine, member, "only 64-bit little-endian ELF is supported"}
	}

	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, &objectError{NotObject, member, err.Error()}
	}
	defer f.Close()

	if f.Machine == elf.EM_NONE {
		return nil, &objectError{NotSupportedMachine, member, fmt.Sprintf("machine %s", f.Machine)}
	}

	syms, err := f.Symbols()
	if err != nil {
		// A relocatable object with no .symtab at all defines nothing.
		if errors.Is(err, elf.ErrNoSymbols) {
			return nil, nil
		}
		return nil, &objectError{NotObject, member, err.Error()}
	}

	var out []Symbol
	for _, s := range syms {
		if s.Section == elf.SHN_UNDEF {
			continue
		}
		if s.Section >= elf.SHN_LORESERVE && s.Section <= elf.SHN_HIRESERVE {
			continue
		}
		bind := elf.ST_BIND(s.Info)
		switch bind {
		case elf.STB_GLOBAL:
			out = append(out, Symbol{Name: []byte(s.Name), Binding: Global})
		case elf.STB_WEAK:
			out = append(out, Symbol{Name: []byte(s.Name), Binding: Weak})
		}
	}
	return out, nil
}
