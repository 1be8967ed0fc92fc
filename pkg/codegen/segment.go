package codegen

import (
	"fmt"

	"github.com/pkg/errors"

	"hackvm/pkg/parser"
)

// ErrInvalidSegment is the cause of errors for push/pop on a segment name
// outside the fixed set, pop to constant, or an index past the end of a
// fixed-size segment.
var ErrInvalidSegment = errors.New("invalid segment")

// Addressing is how a segment index turns into a RAM address.
type Addressing int

const (
	BaseRelative Addressing = iota // RAM[RAM[register] + index]
	Fixed                          // RAM[base + index]
	Static                         // RAM[<unit>.<index>], allocated by the assembler
	Literal                        // not memory: the index is the value
)

// Segment describes one VM memory segment.
type Segment struct {
	Name       string
	Addressing Addressing
	Register   string // base pointer symbol for BaseRelative
	Base       int    // first RAM cell for Fixed
	Size       int    // number of addressable indices, 0 for unbounded
}

const (
	tempBase    = 5
	pointerBase = 3

	// maxConstant is the largest value an A-instruction can load.
	maxConstant = 1<<15 - 1
)

var segments = map[string]Segment{
	"local":    {Name: "local", Addressing: BaseRelative, Register: "LCL"},
	"argument": {Name: "argument", Addressing: BaseRelative, Register: "ARG"},
	"this":     {Name: "this", Addressing: BaseRelative, Register: "THIS"},
	"that":     {Name: "that", Addressing: BaseRelative, Register: "THAT"},
	"temp":     {Name: "temp", Addressing: Fixed, Base: tempBase, Size: 8},
	"pointer":  {Name: "pointer", Addressing: Fixed, Base: pointerBase, Size: 2},
	"static":   {Name: "static", Addressing: Static},
	"constant": {Name: "constant", Addressing: Literal, Size: maxConstant + 1},
}

// LookupSegment returns the segment with the given VM name.
func LookupSegment(name string) (Segment, bool) {
	s, ok := segments[name]
	return s, ok
}

func resolveSegment(name string, index int) (Segment, error) {
	seg, ok := segments[name]
	if !ok {
		return Segment{}, errors.Wrapf(ErrInvalidSegment, "%q", name)
	}
	if seg.Size > 0 && index >= seg.Size {
		if seg.Addressing == Literal {
			return Segment{}, errors.Wrapf(parser.ErrMalformedOperand, "constant %d out of range 0..%d", index, maxConstant)
		}
		return Segment{}, errors.Wrapf(ErrInvalidSegment, "%s index %d out of range 0..%d", name, index, seg.Size-1)
	}
	return seg, nil
}

// address returns the assembly symbol or number naming a Fixed or Static
// cell.
func (s Segment) address(unit string, index int) string {
	if s.Addressing == Static {
		return fmt.Sprintf("%s.%d", unit, index)
	}
	return fmt.Sprintf("%d", s.Base+index)
}
