package objsym

import "fmt"

// Kind mirrors the ObjectErrorKind taxonomy of §7, local to this package so
// the extractors don't need to import the parent package (which imports
// this one).
type Kind int

const (
	NotObject Kind = iota
	NotSupportedMachine
)

func (k Kind) String() string {
	switch k {
	case NotObject:
		return "not an object file"
	case NotSupportedMachine:
		return "unsupported machine"
	default:
		return "object error"
	}
}

type objectError struct {
	Kind   Kind
	Member string
	Detail string
}

func (e *objectError) Error() string {
	return fmt.Sprintf("objsym: member %q: %s: %s", e.Member, e.Kind, e.Detail)
}

// DetailedError exposes an extraction failure's classification without
// exporting the concrete type, so the parent ar package can adapt it into
// its own ObjectError (§7) without an import cycle.
type DetailedError interface {
	error
	ObjsymKind() Kind
	ObjsymMember() string
}

func (e *objectError) ObjsymKind() Kind     { return e.Kind }
func (e *objectError) ObjsymMember() string { return e.Member }
