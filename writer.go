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
	"fmt"
	"os"
	"runtime"
	"sort"
	"time"

	"github.com/xoar-project/xoar/internal/bin"
)

// Serialize encodes a into the byte image of its selected dialect (§4.3). It
// never touches a filesystem; Save wraps it for the common case of writing
// the result back to the archive's own file.
//
// The encoder runs in two passes. The first walks the members to work out
// every table's and every member's exact size and therefore its absolute
// file offset, without yet knowing any of the symbol directory's offset
// values - a symbol's table entry points at a member that, in stream order,
// is written after the table. The second pass uses those now-known offsets
// to fill the directory in and writes the final bytes. Nothing here needs to
// seek backward through a half-written buffer.
func Serialize(a *Archive) ([]byte, error) {
	resolveWriteDialect(a)

	magic := gnuMagic
	if a.Dialect == GNUThin {
		magic = thinMagic
	}

	symTimestamp := int64(0)
	if a.Modifiers.UseRealTimestampsAndIDs {
		symTimestamp = time.Now().Unix()
	}

	switch {
	case a.Dialect.isGNUFamily():
		return serializeGNU(a, magic, symTimestamp)
	case a.Dialect.isDarwinFamily() || a.Dialect == BSD:
		return serializeBSD(a, magic, symTimestamp)
	default:
		return nil, ErrTODO
	}
}

// Save serializes a and writes it to path, truncating the file to the
// result's exact length. A write that fails partway leaves the file
// truncated to nothing rather than holding a mix of old and new bytes, per
// §7's recovery rule.
func Save(a *Archive, path string) error {
	data, err := Serialize(a)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return wrapIO(OpCreating, path, err)
	}
	defer f.Close()

	if _, err := f.WriteAt(data, 0); err != nil {
		f.Truncate(0)
		return wrapIO(OpWriting, path, err)
	}
	if err := f.Truncate(int64(len(data))); err != nil {
		return wrapIO(OpWriting, path, err)
	}
	return nil
}

// resolveWriteDialect assigns the host's native dialect to a still-Ambiguous
// archive, mirroring the reader's own dialect-resolution step (§4.2, §4.3).
func resolveWriteDialect(a *Archive) {
	if a.Dialect != Ambiguous {
		return
	}
	switch runtime.GOOS {
	case "darwin":
		a.Dialect = Darwin
	case "windows":
		a.Dialect = COFF
	default:
		a.Dialect = GNU
	}
}

// symbolOrder returns the indices of a.Symbols in the order they should be
// emitted: lexicographic by name if SortSymbolTable is set, insertion order
// (the identity permutation) otherwise. sort.SliceStable preserves
// insertion order among equal names either way.
func symbolOrder(a *Archive) []int {
	order := make([]int, len(a.Symbols))
	for i := range order {
		order[i] = i
	}
	if a.Modifiers.SortSymbolTable {
		sort.SliceStable(order, func(i, j int) bool {
			return bytes.Compare(a.Symbols[order[i]].Name, a.Symbols[order[j]].Name) < 0
		})
	}
	return order
}

// encodeMemberHeader renders the 60-byte fixed-width ASCII header common to
// every dialect (§4.1). name must already be in its final on-disk form
// (trailing slash, "/offset", or "#1/NNN").
func encodeMemberHeader(name string, mtime, uid, gid, mode, size int64) []byte {
	b := make([]byte, headerByteSize)
	s := slicer(b)
	bin.PutPadded(s.next(16), name)
	bin.PutDecimalPadded(s.next(12), mtime)
	bin.PutDecimalPadded(s.next(6), uid)
	bin.PutDecimalPadded(s.next(6), gid)
	bin.PutOctalPadded(s.next(8), mode)
	bin.PutDecimalPadded(s.next(10), size)
	copy(s.next(2), "`\n")
	return b
}

// padTo appends padByte to buf until its length satisfies align. Every
// interior boundary (table tail, member payload tail) is padded this way;
// since buf's length already tracks the absolute file offset from the first
// byte written, no separate cursor bookkeeping is needed here.
func padTo(buf *bytes.Buffer, align int64, padByte byte) {
	for int64(buf.Len())%align != 0 {
		buf.WriteByte(padByte)
	}
}

// serializeGNU encodes the GNU, GNU-thin, GNU64 and COFF dialects: an
// optional symbol index, an optional long-names string table, then members
// in insertion order (§4.3). COFF shares this layout but never gets a
// symbol index of its own - symbol-index generation for COFF is out of
// scope - regardless of what BuildSymbolTable asks for.
func serializeGNU(a *Archive, magic string, symTimestamp int64) ([]byte, error) {
	isThin := a.Dialect == GNUThin
	wide := a.Dialect.is64SymbolWidth()
	width := int64(4)
	if wide {
		width = 8
	}

	// Long-names table: every member at all in a thin archive, or any
	// member whose basename is 16 bytes or longer otherwise, gets its name
	// pushed here instead of inlined in its own header.
	var longTable bytes.Buffer
	longOffset := make(map[int]int64, len(a.Members))
	for i, m := range a.Members {
		if isThin || len(m.Name) >= 16 {
			longOffset[i] = int64(longTable.Len())
			longTable.Write(m.Name)
			longTable.WriteString("/\n")
		}
	}

	buildSyms := a.Modifiers.BuildSymbolTable && a.Dialect != COFF && len(a.Symbols) > 0
	order := symbolOrder(a)

	var symNames bytes.Buffer
	for _, idx := range order {
		symNames.Write(a.Symbols[idx].Name)
		symNames.WriteByte(0)
	}
	symCount := int64(len(order))
	var symPayloadSize int64
	if buildSyms {
		symPayloadSize = width + symCount*width + int64(symNames.Len())
	}

	memberSize := make([]int64, len(a.Members))
	for i, m := range a.Members {
		memberSize[i] = m.size()
	}

	// Pass 1: lay out [symbol index][string table][members...] to learn
	// every member's absolute header offset.
	cursor := int64(len(magic))
	if buildSyms {
		cursor += headerByteSize + symPayloadSize
		cursor = bin.AlignUp(cursor, 2)
	}
	if longTable.Len() > 0 {
		cursor += headerByteSize + int64(longTable.Len())
		cursor = bin.AlignUp(cursor, 2)
	}
	memberHeaderOff := make([]int64, len(a.Members))
	for i := range a.Members {
		memberHeaderOff[i] = cursor
		cursor += headerByteSize
		if !isThin {
			cursor += memberSize[i]
			cursor = bin.AlignUp(cursor, 2)
		}
	}

	// Pass 2: emit.
	var out bytes.Buffer
	out.WriteString(magic)

	if buildSyms {
		payload := make([]byte, symPayloadSize)
		if wide {
			bin.PutUint64BE(payload[0:8], uint64(symCount))
		} else {
			bin.PutUint32BE(payload[0:4], uint32(symCount))
		}
		for k, idx := range order {
			sym := a.Symbols[idx]
			var off int64
			if mi, ok := a.resolvedSymbolMemberIndex(sym); ok {
				off = memberHeaderOff[mi]
			}
			if wide {
				bin.PutUint64BE(payload[width+int64(k)*8:width+int64(k)*8+8], uint64(off))
			} else {
				bin.PutUint32BE(payload[width+int64(k)*4:width+int64(k)*4+4], uint32(off))
			}
		}
		copy(payload[width+symCount*width:], symNames.Bytes())

		name := "/"
		if wide {
			name = "/SYM64/"
		}
		out.Write(encodeMemberHeader(name, symTimestamp, 0, 0, 0, symPayloadSize))
		out.Write(payload)
		padTo(&out, 2, '\n')
	}

	if longTable.Len() > 0 {
		out.Write(encodeMemberHeader("//", symTimestamp, 0, 0, 0, int64(longTable.Len())))
		out.Write(longTable.Bytes())
		padTo(&out, 2, '\n')
	}

	for i, m := range a.Members {
		var name string
		if off, ok := longOffset[i]; ok {
			name = fmt.Sprintf("/%d", off)
		} else {
			name = string(m.Name) + "/"
		}
		mtime, uid, gid, mode := m.ModTime.Unix(), int64(m.Uid), int64(m.Gid), m.Mode
		if a.Modifiers.deterministicMode() {
			mtime, uid, gid, mode = 0, 0, 0, 0644
		}
		out.Write(encodeMemberHeader(name, mtime, uid, gid, mode, memberSize[i]))
		if !isThin {
			out.Write(m.Data)
			padTo(&out, 2, '\n')
		}
	}

	return out.Bytes(), nil
}

// bsdSymdefMagic returns the 12-byte payload-leading magic for a BSD/Darwin
// ranlib member: "__.SYMDEF" null-padded to 12 bytes for 32-bit symbol
// width, or the already-12-byte "__.SYMDEF_64" for Darwin64. Both land the
// word that follows - the ranlib array's byte length - on an 8-aligned
// offset without any further padding, since the member's own 60-byte header
// plus this 12-byte magic is 72 bytes past the symdef member's header
// start, and the symdef member is always first, at file offset 8.
func bsdSymdefMagic(wide bool) []byte {
	if wide {
		return []byte(bsdSymdef64Name)
	}
	b := make([]byte, 12)
	copy(b, bsdSymdefName)
	return b
}

// bsdLongName renders a BSD-family inline long name: the raw basename, two
// NUL bytes, then one more if needed to reach an even length.
func bsdLongName(name []byte) []byte {
	padded := append(append([]byte(nil), name...), 0, 0)
	if len(padded)%2 != 0 {
		padded = append(padded, 0)
	}
	return padded
}

func putNativePair(dst []byte, a, b int64, width int64) {
	if width == 8 {
		bin.NativeEndian.PutUint64(dst[0:8], uint64(a))
		bin.NativeEndian.PutUint64(dst[8:16], uint64(b))
		return
	}
	bin.NativeEndian.PutUint32(dst[0:4], uint32(a))
	bin.NativeEndian.PutUint32(dst[4:8], uint32(b))
}

// serializeBSD encodes the BSD, Darwin and Darwin64 dialects: an optional
// ranlib symbol-directory member first, then members in insertion order
// (§4.3). A Darwin archive writes the directory even with zero symbols in
// it, as long as a symbol table was requested at all; plain BSD omits it
// entirely when there's nothing to put in it.
func serializeBSD(a *Archive, magic string, symTimestamp int64) ([]byte, error) {
	wide := a.Dialect == Darwin64
	width := int64(4)
	if wide {
		width = 8
	}
	align := a.Dialect.recordAlignment()

	order := symbolOrder(a)
	var symNames bytes.Buffer
	nameOffset := make([]int64, len(order))
	for k, idx := range order {
		nameOffset[k] = int64(symNames.Len())
		symNames.Write(a.Symbols[idx].Name)
		symNames.WriteByte(0)
	}
	unpaddedNamesLen := int64(symNames.Len())
	symCount := int64(len(order))

	requestedSyms := a.Modifiers.BuildSymbolTable
	emitSymdef := requestedSyms && (a.Dialect.isDarwinFamily() || symCount > 0)

	magicBytes := bsdSymdefMagic(wide)
	pairSize := width * 2
	ranlibLen := symCount * pairSize
	symdefPayloadSize := int64(len(magicBytes)) + width + ranlibLen + width + unpaddedNamesLen

	longName := make([][]byte, len(a.Members))
	memberPayloadSize := make([]int64, len(a.Members))
	for i, m := range a.Members {
		// Every BSD-family member carries its name inline after the header,
		// so its recorded size is name area plus payload.
		longName[i] = bsdLongName(m.Name)
		memberPayloadSize[i] = int64(len(longName[i])) + m.size()
	}

	// Pass 1: absolute offsets.
	cursor := int64(len(magic))
	if emitSymdef {
		cursor += headerByteSize + symdefPayloadSize
		cursor = bin.AlignUp(cursor, align)
	}
	memberHeaderOff := make([]int64, len(a.Members))
	for i := range a.Members {
		memberHeaderOff[i] = cursor
		cursor += headerByteSize + memberPayloadSize[i]
		cursor = bin.AlignUp(cursor, align)
	}

	// Pass 2: emit.
	var out bytes.Buffer
	out.WriteString(magic)

	if emitSymdef {
		payload := make([]byte, symdefPayloadSize)
		off := int64(copy(payload, magicBytes))

		pairs := make([]byte, ranlibLen)
		for k, idx := range order {
			sym := a.Symbols[idx]
			var memberOff int64
			if mi, ok := a.resolvedSymbolMemberIndex(sym); ok {
				memberOff = memberHeaderOff[mi]
			}
			putNativePair(pairs[k*int(pairSize):], nameOffset[k], memberOff, width)
		}

		if wide {
			bin.NativeEndian.PutUint64(payload[off:off+8], uint64(ranlibLen))
		} else {
			bin.NativeEndian.PutUint32(payload[off:off+4], uint32(ranlibLen))
		}
		off += width
		copy(payload[off:], pairs)
		off += ranlibLen
		if wide {
			bin.NativeEndian.PutUint64(payload[off:off+8], uint64(unpaddedNamesLen))
		} else {
			bin.NativeEndian.PutUint32(payload[off:off+4], uint32(unpaddedNamesLen))
		}
		off += width
		copy(payload[off:], symNames.Bytes())

		out.Write(encodeMemberHeader("#1/12", symTimestamp, 0, 0, 0, symdefPayloadSize))
		out.Write(payload)
		padTo(&out, align, 0)
	}

	for i, m := range a.Members {
		var name string
		if longName[i] != nil {
			name = fmt.Sprintf("#1/%d", len(longName[i]))
		} else {
			name = string(m.Name)
		}
		mtime, uid, gid, mode := m.ModTime.Unix(), int64(m.Uid), int64(m.Gid), m.Mode
		if a.Modifiers.deterministicMode() {
			mtime, uid, gid, mode = 0, 0, 0, 0644
		}
		out.Write(encodeMemberHeader(name, mtime, uid, gid, mode, memberPayloadSize[i]))
		if longName[i] != nil {
			out.Write(longName[i])
		}
		out.Write(m.Data)
		padTo(&out, align, 0)
	}

	return out.Bytes(), nil
}
