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
	"errors"
	"fmt"
)

// ParseErrorKind distinguishes the ways a byte stream can fail to be a valid
// archive. These are "unhandled" in the sense of §7: the caller, not this
// package, phrases the user-visible message.
type ParseErrorKind int

const (
	// NotArchive means the stream's first eight bytes are neither "!<arch>\n"
	// nor "!<thin>\n".
	NotArchive ParseErrorKind = iota
	// MalformedArchive covers contradictory dialect cues, truncated tables,
	// and corrupt name slots.
	MalformedArchive
	// Overflow means a numeric header field decodes to a value out of range
	// for it (a negative member size). A long-name offset past the end of
	// the string table is reported as MalformedArchive instead.
	Overflow
	// InvalidCharacter means a fixed-width ASCII field contains bytes that
	// cannot be parsed as the decimal or octal number it's declared to hold.
	InvalidCharacter
)

func (k ParseErrorKind) String() string {
	switch k {
	case NotArchive:
		return "not an archive"
	case MalformedArchive:
		return "malformed archive"
	case Overflow:
		return "overflow"
	case InvalidCharacter:
		return "invalid character"
	default:
		return "parse error"
	}
}

// ParseError is raised by the reader and the header codec.
type ParseError struct {
	Kind   ParseErrorKind
	Detail string
}

func (e *ParseError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("ar: %s", e.Kind)
	}
	return fmt.Sprintf("ar: %s: %s", e.Kind, e.Detail)
}

func newParseError(kind ParseErrorKind, format string, args ...interface{}) *ParseError {
	return &ParseError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// ObjectErrorKind distinguishes failures specific to the object-file symbol
// extractors (C2).
type ObjectErrorKind int

const (
	// NotObject means the member carries an ELF or Mach-O magic but could
	// not be decoded as that format. A member whose leading bytes match no
	// recognised magic is not reported with this kind; it simply
	// contributes no symbols.
	NotObject ObjectErrorKind = iota
	// NotSupportedMachine means the object is ELF but not 64-bit
	// little-endian, or declares no machine. COFF-looking bytes with a
	// non-AMD64 machine field are not reported with this kind; they
	// contribute no symbols.
	NotSupportedMachine
)

func (k ObjectErrorKind) String() string {
	switch k {
	case NotObject:
		return "not an object file"
	case NotSupportedMachine:
		return "unsupported machine"
	default:
		return "object error"
	}
}

// ObjectError reports a symbol-extraction failure for a single member.
type ObjectError struct {
	Kind   ObjectErrorKind
	Member string
	Detail string
}

func (e *ObjectError) Error() string {
	return fmt.Sprintf("ar: member %q: %s: %s", e.Member, e.Kind, e.Detail)
}

var (
	// ErrOutOfMemory corresponds to the resource-kind error in §7. No
	// operation in this package returns it: a string-table or symbol-table
	// length that would exceed the remaining bytes of the stream is reported
	// by the reader as a MalformedArchive ParseError.
	ErrOutOfMemory = errors.New("ar: out of memory")

	// ErrTODO is the sentinel for dialect combinations §9 calls out as
	// unreachable in the source this package's behaviour is ported from.
	ErrTODO = errors.New("ar: TODO: unreachable dialect combination")

	// ErrExtractingFromThin is returned by Archive.Extract when the archive
	// is a GNU-thin archive; thin archives keep no payload bytes of their
	// own to extract.
	ErrExtractingFromThin = errors.New("ar: cannot extract members from a thin archive")

	// ErrMemberNotFound is returned by operations that look a member up by
	// basename.
	ErrMemberNotFound = errors.New("ar: no such member")
)

// IoOp names the operation an IoError was annotated with, per §7.
type IoOp int

const (
	OpAccessing IoOp = iota
	OpCreating
	OpOpening
	OpReading
	OpSeeking
	OpWriting
)

func (op IoOp) String() string {
	switch op {
	case OpAccessing:
		return "accessing"
	case OpCreating:
		return "creating"
	case OpOpening:
		return "opening"
	case OpReading:
		return "reading"
	case OpSeeking:
		return "seeking"
	case OpWriting:
		return "writing"
	default:
		return "handling"
	}
}

// IoError annotates a host I/O failure with the operation and file name that
// were in flight when it occurred, then surfaces the underlying error
// unchanged via Unwrap.
type IoError struct {
	Op   IoOp
	Name string
	Err  error
}

func (e *IoError) Error() string {
	return fmt.Sprintf("ar: %s %q: %s", e.Op, e.Name, e.Err)
}

func (e *IoError) Unwrap() error { return e.Err }

// wrapIO annotates err with op and name, or returns nil if err is nil. It is
// the single choke point every filesystem call in this package passes
// through, so every I/O failure carries the context §7 requires.
func wrapIO(op IoOp, name string, err error) error {
	if err == nil {
		return nil
	}
	return &IoError{Op: op, Name: name, Err: err}
}
