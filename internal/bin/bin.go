// Package bin provides the endian-aware fixed-width integer helpers,
// ASCII header-field codecs and alignment arithmetic used by the archive
// reader and writer. The object symbol extractors in internal/objsym do not
// use it; they decode through encoding/binary and the debug packages.
package bin

import (
	"encoding/binary"
	"fmt"
	"strconv"
)

// Uint32BE and Uint64BE decode a big-endian fixed-width integer from the
// front of b. Callers slice the record themselves; these never advance a
// cursor.
func Uint32BE(b []byte) uint32 { return binary.BigEndian.Uint32(b) }
func Uint64BE(b []byte) uint64 { return binary.BigEndian.Uint64(b) }

func PutUint32BE(b []byte, v uint32) { binary.BigEndian.PutUint32(b, v) }
func PutUint64BE(b []byte, v uint64) { binary.BigEndian.PutUint64(b, v) }

// NativeEndian is the byte order BSD and Darwin ranlib arrays are packed in:
// the host architecture's own endianness, per §4.3.
var NativeEndian = binary.NativeEndian

// TrimTrailingSpace returns the prefix of b before any run of ASCII spaces
// (0x20) padding out a fixed-width archive header field.
func TrimTrailingSpace(b []byte) []byte {
	i := len(b)
	for i > 0 && b[i-1] == ' ' {
		i--
	}
	return b[:i]
}

// ParseDecimal parses a space-padded ASCII decimal integer field, as used by
// archive header date/uid/gid/size fields.
func ParseDecimal(b []byte) (int64, error) {
	trimmed := TrimTrailingSpace(b)
	if len(trimmed) == 0 {
		return 0, nil
	}
	n, err := strconv.ParseInt(string(trimmed), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid decimal field %q: %w", trimmed, err)
	}
	return n, nil
}

// ParseOctal parses a space-padded ASCII octal integer field, as used by the
// archive header mode field.
func ParseOctal(b []byte) (int64, error) {
	trimmed := TrimTrailingSpace(b)
	if len(trimmed) == 0 {
		return 0, nil
	}
	n, err := strconv.ParseInt(string(trimmed), 8, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid octal field %q: %w", trimmed, err)
	}
	return n, nil
}

// PutPadded writes s into b, space-padding on the right. s must fit in b.
func PutPadded(b []byte, s string) {
	for i := range b {
		b[i] = ' '
	}
	copy(b, s)
}

// PutDecimalPadded formats v as a space-padded decimal field.
func PutDecimalPadded(b []byte, v int64) {
	PutPadded(b, strconv.FormatInt(v, 10))
}

// PutOctalPadded formats v as a space-padded octal field.
func PutOctalPadded(b []byte, v int64) {
	PutPadded(b, strconv.FormatInt(v, 8))
}

// AlignUp rounds n up to the next multiple of align.
func AlignUp(n int64, align int64) int64 {
	if align <= 1 {
		return n
	}
	rem := n % align
	if rem == 0 {
		return n
	}
	return n + (align - rem)
}
