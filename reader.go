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
package ar

import (
	"bytes"
	"strconv"
	"strings"
	"time"

	"github.com/xoar-project/xoar/internal/bin"
)

// rawMemberHeader is the decoded form of a 60-byte archive header, before
// any dialect-specific name resolution has been applied.
type rawMemberHeader struct {
	name  string
	mtime int64
	uid   int64
	gid   int64
	mode  int64
	size  int64
}

// decodeMemberHeader parses the fixed 60-byte record: name[16], date[12],
// uid[6], gid[6], mode[8], size[10], fmag[2]="`\n".
func decodeMemberHeader(b []byte) (rawMemberHeader, error) {
	s := slicer(b)
	var h rawMemberHeader
	name := s.next(16)
	mtimeF := s.next(12)
	uidF := s.next(6)
	gidF := s.next(6)
	modeF := s.next(8)
	sizeF := s.next(10)
	fmag := s.next(2)

	if string(fmag) != "`\n" {
		return h, newParseError(MalformedArchive, "bad header terminator %q", fmag)
	}
	h.name = string(bin.TrimTrailingSpace(name))

	var err error
	if h.mtime, err = bin.ParseDecimal(mtimeF); err != nil {
		return h, newParseError(InvalidCharacter, "mtime field: %s", err)
	}
	if h.uid, err = bin.ParseDecimal(uidF); err != nil {
		return h, newParseError(InvalidCharacter, "uid field: %s", err)
	}
	if h.gid, err = bin.ParseDecimal(gidF); err != nil {
		return h, newParseError(InvalidCharacter, "gid field: %s", err)
	}
	if h.mode, err = bin.ParseOctal(modeF); err != nil {
		return h, newParseError(InvalidCharacter, "mode field: %s", err)
	}
	if h.size, err = bin.ParseDecimal(sizeF); err != nil {
		return h, newParseError(InvalidCharacter, "size field: %s", err)
	}
	if h.size < 0 {
		return h, newParseError(Overflow, "negative size field")
	}
	return h, nil
}

// pendingSymbol is a SymbolRef whose member_index still holds the raw file
// offset read from a symbol or ranlib table; Phase C resolves it.
type pendingSymbol struct {
	name       []byte
	fileOffset int64
}

// Read parses a byte stream into an Archive, per §4.2. dir is the directory
// the archive file lives in, used only to resolve a GNU-thin archive's
// sibling member files. mods seeds the resulting Archive's Modifiers; the
// reader never infers modifiers from the archive's bytes.
func Read(data []byte, dir string, mods Modifiers) (*Archive, error) {
	a := NewArchive(mods)
	a.Dir = dir

	if len(data) == 0 {
		return a, nil
	}
	if len(data) < 8 {
		return nil, newParseError(NotArchive, "stream shorter than the archive magic")
	}

	switch string(data[:8]) {
	case gnuMagic:
		// Dialect left Ambiguous; resolved by cues below.
	case thinMagic:
		a.Dialect = GNUThin
	default:
		return nil, newParseError(NotArchive, `missing "!<arch>\n" or "!<thin>\n" magic`)
	}

	cursor := int64(8)
	recordAlign := int64(2)
	payloadAlign := int64(2)
	sawGNUCue := a.Dialect == GNUThin
	sawBSDCue := false
	var pending []pendingSymbol
	var longNames []byte
	var memberOffsets []int64
	sawSymbolTable := false
	sawStringTable := false

	resolveGNU := func() error {
		if sawBSDCue {
			return newParseError(MalformedArchive, "archive mixes GNU and BSD name cues")
		}
		sawGNUCue = true
		if a.Dialect == Ambiguous {
			a.Dialect = GNU
		}
		return nil
	}
	resolveBSD := func() error {
		if sawGNUCue {
			return newParseError(MalformedArchive, "archive mixes GNU and BSD name cues")
		}
		sawBSDCue = true
		recordAlign = 8
		if a.Dialect == Ambiguous {
			a.Dialect = BSD
		}
		return nil
	}

	// Phase A: consume any leading GNU long-names / symbol-index tables.
preamble:
	for cursor+headerByteSize <= int64(len(data)) {
		peek := data[cursor : cursor+headerByteSize]
		nameField := bin.TrimTrailingSpace(peek[:16])
		switch {
		case bytes.Equal(nameField, []byte("//")):
			if sawStringTable {
				return nil, newParseError(MalformedArchive, "archive contains multiple string tables")
			}
			hdr, err := decodeMemberHeader(peek)
			if err != nil {
				return nil, err
			}
			cursor += headerByteSize
			bodyEnd := cursor + hdr.size
			if bodyEnd > int64(len(data)) {
				return nil, newParseError(MalformedArchive, "truncated string table")
			}
			longNames = data[cursor:bodyEnd]
			cursor = bodyEnd
			if cursor%2 == 1 {
				cursor++
			}
			sawStringTable = true
			if err := resolveGNU(); err != nil {
				return nil, err
			}
		case bytes.Equal(nameField, []byte("/")), bytes.Equal(nameField, []byte("/SYM64/")):
			if sawSymbolTable {
				break preamble
			}
			wide := bytes.Equal(nameField, []byte("/SYM64/"))
			hdr, err := decodeMemberHeader(peek)
			if err != nil {
				return nil, err
			}
			cursor += headerByteSize
			bodyEnd := cursor + hdr.size
			if bodyEnd > int64(len(data)) {
				return nil, newParseError(MalformedArchive, "truncated symbol index")
			}
			syms, err := parseGNUSymbolTable(data, cursor, bodyEnd, wide)
			if err != nil {
				return nil, err
			}
			pending = append(pending, syms...)
			cursor = bodyEnd
			if cursor%2 == 1 {
				cursor++
			}
			sawSymbolTable = true
			if wide {
				a.Dialect = GNU64
			}
			if err := resolveGNU(); err != nil {
				return nil, err
			}
		default:
			break preamble
		}
	}

	// Phase B: the member loop.
	for cursor < int64(len(data)) {
		if aligned := bin.AlignUp(cursor, recordAlign); aligned != cursor {
			if aligned > int64(len(data)) {
				break
			}
			cursor = aligned
		}
		if cursor >= int64(len(data)) {
			break
		}
		if cursor+headerByteSize > int64(len(data)) {
			return nil, newParseError(MalformedArchive, "truncated member header")
		}
		headerStart := cursor
		hdr, err := decodeMemberHeader(data[cursor : cursor+headerByteSize])
		if err != nil {
			return nil, err
		}
		cursor += headerByteSize

		// The first member, under a still-undetermined dialect, may be a
		// BSD/Darwin ranlib symbol directory instead of an ordinary member.
		// Its on-disk name field is an inline-long-name marker whose content
		// IS the magic string, so this has to be checked against the raw
		// header and raw payload before the generic name-resolution switch
		// below consumes that marker as an ordinary member's inline name.
		if len(a.Members) == 0 && !sawGNUCue {
			if bodyEnd := cursor + hdr.size; bodyEnd <= int64(len(data)) {
				payload := data[cursor:bodyEnd]
				var magic string
				var wide bool
				switch {
				case hdr.name == "#1/12" && bytes.HasPrefix(payload, []byte(bsdSymdef64Name)):
					magic, wide = bsdSymdef64Name, true
				case hdr.name == "#1/16" && bytes.HasPrefix(payload, []byte(bsdSymdefSorted)):
					magic = bsdSymdefSorted
				case hdr.name == "#1/12" && bytes.HasPrefix(payload, []byte(bsdSymdefName)):
					magic = bsdSymdefName
				}
				if magic != "" {
					if err := resolveBSD(); err != nil {
						return nil, err
					}
					if wide {
						a.Dialect = Darwin64
						payloadAlign = 8
					}
					syms, err := parseBSDSymdef(data, cursor, bodyEnd, magic, wide, recordAlign)
					if err != nil {
						return nil, err
					}
					pending = append(pending, syms...)
					cursor = bodyEnd
					if aligned := bin.AlignUp(cursor, payloadAlign); aligned <= int64(len(data)) {
						cursor = aligned
					}
					continue
				}
			}
		}

		name := hdr.name
		var nameBytes []byte
		var bsdInlineLen int64

		switch {
		case strings.HasSuffix(name, "/"):
			if err := resolveGNU(); err != nil {
				return nil, err
			}
			nameBytes = []byte(strings.TrimSuffix(name, "/"))
		case strings.HasPrefix(name, "/") && isDigits(name[1:]):
			if err := resolveGNU(); err != nil {
				return nil, err
			}
			off, convErr := strconv.ParseInt(name[1:], 10, 64)
			if convErr != nil || off < 0 || off > int64(len(longNames)) {
				return nil, newParseError(MalformedArchive, "invalid long-name offset %q", name)
			}
			rest := longNames[off:]
			end := bytes.IndexByte(rest, '\n')
			if end == -1 || end == 0 || rest[end-1] != '/' {
				return nil, newParseError(MalformedArchive, "long-name table entry missing trailing '/\\n'")
			}
			nameBytes = rest[:end-1]
		case strings.HasPrefix(name, "#1/"):
			if err := resolveBSD(); err != nil {
				return nil, err
			}
			length, convErr := strconv.ParseInt(name[3:], 10, 64)
			if convErr != nil || length < 0 {
				return nil, newParseError(MalformedArchive, "invalid BSD long-name length %q", name)
			}
			if cursor+length > int64(len(data)) {
				return nil, newParseError(MalformedArchive, "truncated BSD long name")
			}
			nameBytes = bytes.TrimRight(data[cursor:cursor+length], "\x00")
			bsdInlineLen = length
			cursor += length
		default:
			nameBytes = []byte(name)
		}

		if bytes.ContainsRune(nameBytes, '/') {
			return nil, newParseError(MalformedArchive, "member name %q contains illegal '/'", nameBytes)
		}

		payloadLen := hdr.size - bsdInlineLen
		bodyEnd := cursor + payloadLen

		m := &Member{
			Name:    nameBytes,
			ModTime: time.Unix(hdr.mtime, 0),
			Uid:     int(hdr.uid),
			Gid:     int(hdr.gid),
			Mode:    hdr.mode,
		}

		if a.Dialect == GNUThin {
			// Thin archives keep no payload bytes of their own; content is
			// dereferenced lazily against the sibling file.
			m.declaredSize = payloadLen
		} else {
			if bodyEnd > int64(len(data)) {
				return nil, newParseError(MalformedArchive, "truncated member payload for %q", nameBytes)
			}
			m.Data = append([]byte(nil), data[cursor:bodyEnd]...)
			cursor = bodyEnd
			if aligned := bin.AlignUp(cursor, payloadAlign); aligned <= int64(len(data)) {
				cursor = aligned
			} else {
				cursor = int64(len(data))
			}
		}

		a.Members = append(a.Members, m)
		memberOffsets = append(memberOffsets, headerStart)
	}
	a.rebuildIndex()

	// Phase C: resolve pending symbol offsets against parsed members.
	offsetToIndex := make(map[int64]int, len(memberOffsets))
	for i, off := range memberOffsets {
		offsetToIndex[off] = i
	}
	a.Symbols = make([]SymbolRef, len(pending))
	for i, p := range pending {
		idx, ok := offsetToIndex[p.fileOffset]
		ref := SymbolRef{Name: p.name}
		if ok {
			ref.MemberIndex = uint64(idx)
		} else {
			ref.MemberIndex = unresolvedMember
		}
		a.Symbols[i] = ref
	}

	return a, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// parseGNUSymbolTable decodes the GNU symbol index: a big-endian count,
// that many big-endian member offsets (32- or 64-bit, per wide), then that
// many null-terminated names.
func parseGNUSymbolTable(data []byte, bodyStart, bodyEnd int64, wide bool) ([]pendingSymbol, error) {
	width := int64(4)
	if wide {
		width = 8
	}
	off := bodyStart
	if off+width > bodyEnd {
		return nil, newParseError(MalformedArchive, "truncated symbol index count")
	}
	var n int64
	if wide {
		n = int64(bin.Uint64BE(data[off : off+8]))
	} else {
		n = int64(bin.Uint32BE(data[off : off+4]))
	}
	off += width
	if n < 0 || off+n*width > bodyEnd {
		return nil, newParseError(MalformedArchive, "symbol index count overflows table")
	}
	offsets := make([]int64, n)
	for i := int64(0); i < n; i++ {
		if wide {
			offsets[i] = int64(bin.Uint64BE(data[off : off+8]))
		} else {
			offsets[i] = int64(bin.Uint32BE(data[off : off+4]))
		}
		off += width
	}
	out := make([]pendingSymbol, 0, n)
	for i := int64(0); i < n; i++ {
		end := bytes.IndexByte(data[off:bodyEnd], 0)
		if end == -1 {
			return nil, newParseError(MalformedArchive, "symbol index name missing null terminator")
		}
		name := append([]byte(nil), data[off:off+int64(end)]...)
		out = append(out, pendingSymbol{name: name, fileOffset: offsets[i]})
		off += int64(end) + 1
	}
	return out, nil
}

// parseBSDSymdef decodes a BSD/Darwin ranlib directory. The integers are
// read in the host's native endianness, matching how the writer packs them
// (§4.3); reading a BSD archive built on a foreign-endian host is out of
// scope per §1's NON-GOALS.
func parseBSDSymdef(data []byte, bodyStart, bodyEnd int64, magic string, wide bool, align int64) ([]pendingSymbol, error) {
	width := int64(4)
	if wide {
		width = 8
	}
	off := bin.AlignUp(bodyStart+int64(len(magic)), align)
	if off+width > bodyEnd {
		return nil, newParseError(MalformedArchive, "truncated ranlib length")
	}
	ranlibLen := nativeEndianInt(data[off:off+width], wide)
	off += width
	if ranlibLen < 0 || off+ranlibLen > bodyEnd {
		return nil, newParseError(MalformedArchive, "ranlib array overflows symbol directory")
	}
	pairBytes := data[off : off+ranlibLen]
	off += ranlibLen

	if off+width > bodyEnd {
		return nil, newParseError(MalformedArchive, "truncated symbol-string length")
	}
	strLen := nativeEndianInt(data[off:off+width], wide)
	off += width
	if strLen < 0 || off+strLen > bodyEnd {
		return nil, newParseError(MalformedArchive, "symbol-string blob overflows symbol directory")
	}
	strBlob := data[off : off+strLen]

	pairSize := width * 2
	n := ranlibLen / pairSize
	out := make([]pendingSymbol, 0, n)
	for i := int64(0); i < n; i++ {
		pair := pairBytes[i*pairSize : (i+1)*pairSize]
		nameOff := nativeEndianInt(pair[:width], wide)
		memberOff := nativeEndianInt(pair[width:], wide)
		if nameOff < 0 || nameOff >= int64(len(strBlob)) {
			continue
		}
		rest := strBlob[nameOff:]
		end := bytes.IndexByte(rest, 0)
		if end == -1 {
			end = len(rest)
		}
		out = append(out, pendingSymbol{name: append([]byte(nil), rest[:end]...), fileOffset: memberOff})
	}
	return out, nil
}

func nativeEndianInt(b []byte, wide bool) int64 {
	if wide {
		return int64(bin.NativeEndian.Uint64(b))
	}
	return int64(bin.NativeEndian.Uint32(b))
}
