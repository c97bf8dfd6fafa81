package objsym

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// COFF object files carry no distinguishing magic of their own, unlike ELF,
// Mach-O and bitcode (§9): the first two bytes are simply the machine
// field. This package therefore tries to decode a plausible COFF file
// header and only accepts the member as COFF if the machine field is
// IMAGE_FILE_MACHINE_AMD64; anything else (including genuinely malformed
// input) quietly contributes no symbols rather than erroring.

const (
	imageFileMachineAMD64 = 0x8664

	coffFileHeaderSize = 20
	coffSymbolSize     = 18

	imageSymClassExternal = 2
)

// rawFileHeader mirrors the 20-byte IMAGE_FILE_HEADER this package reads;
// kept as an explicit little-endian field layout rather than an in-memory
// struct overlay, per §9's design note.
type rawFileHeader struct {
	Machine              uint16
	NumberOfSections     uint16
	TimeDateStamp        uint32
	PointerToSymbolTable uint32
	NumberOfSymbols      uint32
	SizeOfOptionalHeader uint16
	Characteristics      uint16
}

// rawSymbol mirrors one packed 18-byte IMAGE_SYMBOL record.
type rawSymbol struct {
	Name          [8]byte
	Value         uint32
	SectionNumber int16
	Type          uint16
	StorageClass  uint8
	NumberOfAux   uint8
}

// tryCOFF attempts to read data as a COFF object file. The bool result is
// false when the leading bytes don't decode as a plausible AMD64 COFF
// header; that's not itself an extraction error (§9), it just means the
// member isn't COFF.
func tryCOFF(member string, data []byte) ([]Symbol, bool) {
	if len(data) < coffFileHeaderSize {
		return nil, false
	}
	var hdr rawFileHeader
	if err := binary.Read(bytes.NewReader(data[:coffFileHeaderSize]), binary.LittleEndian, &hdr); err != nil {
		return nil, false
	}
	if hdr.Machine != imageFileMachineAMD64 {
		return nil, false
	}

	symTableOff := int64(hdr.PointerToSymbolTable)
	numSyms := int64(hdr.NumberOfSymbols)
	symTableSize := numSyms * coffSymbolSize
	if symTableOff < 0 || symTableSize < 0 || symTableOff+symTableSize > int64(len(data)) {
		return nil, false
	}
	symTable := data[symTableOff : symTableOff+symTableSize]

	// The string table immediately follows the symbol table: a 4-byte
	// little-endian total length (including itself) followed by
	// null-terminated strings.
	stringTableOff := symTableOff + symTableSize
	var stringTable []byte
	if stringTableOff+4 <= int64(len(data)) {
		size := binary.LittleEndian.Uint32(data[stringTableOff : stringTableOff+4])
		end := stringTableOff + int64(size)
		if size >= 4 && end <= int64(len(data)) {
			stringTable = data[stringTableOff:end]
		}
	}

	var out []Symbol
	for i := int64(0); i < numSyms; {
		rec := symTable[i*coffSymbolSize : (i+1)*coffSymbolSize]
		var sym rawSymbol
		if err := binary.Read(bytes.NewReader(rec), binary.LittleEndian, &sym); err != nil {
			return nil, false
		}
		if sym.StorageClass == imageSymClassExternal {
			name, err := coffSymbolName(sym.Name, stringTable)
			if err == nil {
				out = append(out, Symbol{Name: name, Binding: Global})
			}
		}
		// Skip the auxiliary records immediately following this symbol;
		// they describe the primary symbol and never define one themselves.
		i += 1 + int64(sym.NumberOfAux)
	}
	return out, true
}

// coffSymbolName resolves an 18-byte symbol's name field: inline when it
// fits in 8 bytes, or (four zero bytes, little-endian string-table offset)
// when it doesn't.
func coffSymbolName(raw [8]byte, stringTable []byte) ([]byte, error) {
	if raw[0] != 0 || raw[1] != 0 || raw[2] != 0 || raw[3] != 0 {
		end := bytes.IndexByte(raw[:], 0)
		if end == -1 {
			end = len(raw)
		}
		return append([]byte(nil), raw[:end]...), nil
	}
	off := binary.LittleEndian.Uint32(raw[4:8])
	if stringTable == nil || int64(off) >= int64(len(stringTable)) {
		return nil, fmt.Errorf("objsym: coff symbol name offset %d out of range", off)
	}
	rest := stringTable[off:]
	end := bytes.IndexByte(rest, 0)
	if end == -1 {
		end = len(rest)
	}
	return append([]byte(nil), rest[:end]...), nil
}
