// Package parser reads VM source text and classifies each instruction into
// a command kind and its arguments.
//
// Pipeline: VM source → Reader → Instruction → codegen.CodeWriter
package parser

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrUnknownCommand is the cause of errors for lines whose first token is
	// not a VM command.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrMalformedOperand is the cause of errors for missing or non-numeric
	// operands.
	ErrMalformedOperand = errors.New("malformed operand")
)

// Instruction is one parsed VM command. The zero value is not meaningful;
// instructions come from Parse or a Reader.
type Instruction struct {
	Kind CommandKind
	Text string // normalized source text
	Line int    // 1-based line in the source unit, 0 if unknown

	arg1 string
	arg2 int
}

// Arg1 returns the first argument. For arithmetic commands this is the
// operator itself. It panics for return, which has no arguments.
func (in Instruction) Arg1() string {
	if !in.Kind.HasArg1() {
		panic(fmt.Sprintf("parser: Arg1 called on %v", in.Kind))
	}
	return in.arg1
}

// Arg2 returns the integer second argument. It panics unless the command is
// push, pop, call or function.
func (in Instruction) Arg2() int {
	if !in.Kind.HasArg2() {
		panic(fmt.Sprintf("parser: Arg2 called on %v", in.Kind))
	}
	return in.arg2
}

// Operator returns the arithmetic operator of an arithmetic command.
func (in Instruction) Operator() Operator {
	if in.Kind != Arithmetic {
		panic(fmt.Sprintf("parser: Operator called on %v", in.Kind))
	}
	return Operator(in.arg1)
}

func (in Instruction) String() string {
	return in.Text
}

// Clean strips a trailing // comment and collapses whitespace. It returns the
// empty string for blank and comment-only lines.
func Clean(raw string) string {
	if i := strings.Index(raw, "//"); i >= 0 {
		raw = raw[:i]
	}
	return strings.Join(strings.Fields(raw), " ")
}

// Parse classifies a single line of VM code. lineNo is only used in error
// messages and may be zero.
func Parse(line string, lineNo int) (Instruction, error) {
	text := Clean(line)
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return Instruction{}, errors.Wrapf(ErrUnknownCommand, "line %d: empty instruction", lineNo)
	}

	kind, ok := Lookup(fields[0])
	if !ok {
		return Instruction{}, errors.Wrapf(ErrUnknownCommand, "line %d: %q", lineNo, fields[0])
	}

	in := Instruction{Kind: kind, Text: text, Line: lineNo}

	switch {
	case kind == Arithmetic:
		in.arg1 = fields[0]
	case kind.HasArg1():
		if len(fields) < 2 {
			return Instruction{}, errors.Wrapf(ErrMalformedOperand, "line %d: %s: missing argument", lineNo, text)
		}
		in.arg1 = fields[1]
	}

	if kind.HasArg2() {
		if len(fields) < 3 {
			return Instruction{}, errors.Wrapf(ErrMalformedOperand, "line %d: %s: missing index", lineNo, text)
		}
		n, err := strconv.ParseUint(fields[2], 10, 16)
		if err != nil {
			return Instruction{}, errors.Wrapf(ErrMalformedOperand, "line %d: %s: %q is not a non-negative integer", lineNo, text, fields[2])
		}
		in.arg2 = int(n)
	}

	return in, nil
}

// Reader supplies instructions from VM source one at a time, in source
// order, skipping blank and comment-only lines. A Reader cannot be rewound;
// create a new one to read the source again.
type Reader struct {
	scanner *bufio.Scanner
	lineNo  int
	current Instruction
	err     error
}

func NewReader(r io.Reader) *Reader {
	return &Reader{scanner: bufio.NewScanner(r)}
}

// Next advances to the next instruction. It returns false at the end of the
// input or on the first error, which is then available from Err.
func (r *Reader) Next() bool {
	if r.err != nil {
		return false
	}
	for r.scanner.Scan() {
		r.lineNo++
		text := Clean(r.scanner.Text())
		if text == "" {
			continue
		}
		in, err := Parse(text, r.lineNo)
		if err != nil {
			r.err = err
			return false
		}
		r.current = in
		return true
	}
	if err := r.scanner.Err(); err != nil {
		r.err = errors.Wrapf(err, "read failed after line %d", r.lineNo)
	}
	return false
}

// Instruction returns the instruction produced by the last call to Next.
func (r *Reader) Instruction() Instruction {
	return r.current
}

// Err returns the first error encountered, or nil at a clean end of input.
func (r *Reader) Err() error {
	return r.err
}

// ReadAll parses every instruction in r.
func ReadAll(r io.Reader) ([]Instruction, error) {
	var out []Instruction
	rd := NewReader(r)
	for rd.Next() {
		out = append(out, rd.Instruction())
	}
	return out, rd.Err()
}
