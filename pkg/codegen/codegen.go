// Package codegen turns parsed VM instructions into Hack assembly text.
//
// A CodeWriter is one translation session. It owns the comparison and
// call-site counters that keep synthesized labels unique, so every source
// unit of a program must go through the same CodeWriter, one unit after
// another.
package codegen

import (
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"

	"hackvm/pkg/parser"
)

const (
	// StackBase is the RAM address the bootstrap loads into SP.
	StackBase = 256
	// EntryFunction is the function the bootstrap calls.
	EntryFunction = "Sys.init"

	// frameSize is the number of cells CALL pushes on top of the arguments:
	// return address, LCL, ARG, THIS, THAT.
	frameSize = 5
)

// CodeWriter emits Hack assembly for VM instructions to an io.Writer.
type CodeWriter struct {
	out      io.Writer
	comments bool

	unit     string // current source unit, names static variables
	function string // enclosing function, scopes labels

	compIndex int // next comparison label index
	callIndex int // next return-address label index
	emitted   int
}

// Option configures a CodeWriter.
type Option func(*CodeWriter)

// WithComments echoes each VM instruction as a // comment above its block.
func WithComments(on bool) Option {
	return func(w *CodeWriter) { w.comments = on }
}

// WithUnit sets the initial source unit name.
func WithUnit(name string) Option {
	return func(w *CodeWriter) { w.unit = name }
}

func NewCodeWriter(out io.Writer, opts ...Option) *CodeWriter {
	w := &CodeWriter{out: out}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// SetUnit starts a new source unit. Static variables are named after the
// unit and label scope falls back to the unit until the next function.
func (w *CodeWriter) SetUnit(name string) {
	w.unit = name
	w.function = ""
}

// Unit returns the current source unit name.
func (w *CodeWriter) Unit() string {
	return w.unit
}

// Counters reports how many comparison and call-site labels have been
// allocated so far in this session.
func (w *CodeWriter) Counters() (comparisons, calls int) {
	return w.compIndex, w.callIndex
}

// Emitted returns the number of instructions translated so far.
func (w *CodeWriter) Emitted() int {
	return w.emitted
}

// block accumulates the assembly for one instruction so nothing reaches the
// output unless the whole instruction translated.
type block struct {
	strings.Builder
}

func (b *block) line(format string, args ...any) {
	fmt.Fprintf(b, format+"\n", args...)
}

func (b *block) label(name string) {
	b.line("(%s)", name)
}

func (b *block) comment(format string, args ...any) {
	b.line("// "+format, args...)
}

// pushD stores D at RAM[SP] and increments SP.
func (b *block) pushD() {
	b.line("    @SP")
	b.line("    A=M")
	b.line("    M=D")
	b.line("    @SP")
	b.line("    M=M+1")
}

// popD decrements SP and loads the old top of stack into D. A is left
// pointing at the popped cell.
func (b *block) popD() {
	b.line("    @SP")
	b.line("    AM=M-1")
	b.line("    D=M")
}

// Write translates one instruction. On error nothing is written and the
// counters are left as they were.
func (w *CodeWriter) Write(in parser.Instruction) error {
	var b block
	if w.comments {
		b.line("")
		b.comment("%s", in.Text)
	}

	comp, call, function := w.compIndex, w.callIndex, w.function

	var err error
	switch in.Kind {
	case parser.Arithmetic:
		err = w.writeArithmetic(&b, in.Operator())
	case parser.Push:
		err = w.writePush(&b, in.Arg1(), in.Arg2())
	case parser.Pop:
		err = w.writePop(&b, in.Arg1(), in.Arg2())
	case parser.Label:
		w.writeLabel(&b, in.Arg1())
	case parser.Goto:
		w.writeGoto(&b, in.Arg1())
	case parser.If:
		w.writeIf(&b, in.Arg1())
	case parser.Call:
		w.writeCall(&b, in.Arg1(), in.Arg2())
	case parser.Function:
		w.writeFunction(&b, in.Arg1(), in.Arg2())
	case parser.Return:
		w.writeReturn(&b)
	default:
		err = errors.Errorf("unhandled command kind %v", in.Kind)
	}
	if err != nil {
		w.compIndex, w.callIndex, w.function = comp, call, function
		return errors.Wrapf(err, "%s:%d: %s", w.unit, in.Line, in.Text)
	}

	if err := w.flush(&b); err != nil {
		return err
	}
	w.emitted++
	return nil
}

// WriteBootstrap emits the program prologue: SP = 256, call Sys.init 0.
func (w *CodeWriter) WriteBootstrap() error {
	var b block
	if w.comments {
		b.comment("bootstrap: SP = %d, call %s 0", StackBase, EntryFunction)
	}
	b.line("    @%d", StackBase)
	b.line("    D=A")
	b.line("    @SP")
	b.line("    M=D")
	w.writeCall(&b, EntryFunction, 0)
	return w.flush(&b)
}

func (w *CodeWriter) flush(b *block) error {
	if _, err := io.WriteString(w.out, b.String()); err != nil {
		return errors.Wrap(err, "write assembly")
	}
	return nil
}

func (w *CodeWriter) writeArithmetic(b *block, op parser.Operator) error {
	switch op {
	case parser.OpAdd:
		w.binary(b, "D+M")
	case parser.OpSub:
		// x - y: D holds y (popped first), M holds x.
		w.binary(b, "M-D")
	case parser.OpAnd:
		w.binary(b, "D&M")
	case parser.OpOr:
		w.binary(b, "D|M")
	case parser.OpNeg:
		w.unary(b, "-M")
	case parser.OpNot:
		w.unary(b, "!M")
	case parser.OpEq:
		w.compare(b, "JEQ")
	case parser.OpGt:
		w.compare(b, "JGT")
	case parser.OpLt:
		w.compare(b, "JLT")
	default:
		return errors.Wrapf(parser.ErrUnknownCommand, "operator %q", op)
	}
	return nil
}

// binary pops y, then replaces x with comp computed from D=y and M=x.
func (w *CodeWriter) binary(b *block, comp string) {
	b.popD()
	b.line("    A=A-1")
	b.line("    M=%s", comp)
}

func (w *CodeWriter) unary(b *block, comp string) {
	b.line("    @SP")
	b.line("    A=M-1")
	b.line("    M=%s", comp)
}

// compare pops y, replaces x with -1 when x-y satisfies jump and 0
// otherwise.
func (w *CodeWriter) compare(b *block, jump string) {
	n := w.compIndex
	w.compIndex++
	isTrue := fmt.Sprintf("COMP_TRUE.%d", n)
	end := fmt.Sprintf("COMP_END.%d", n)

	b.popD()
	b.line("    A=A-1")
	b.line("    D=M-D")
	b.line("    @%s", isTrue)
	b.line("    D;%s", jump)
	b.line("    @SP")
	b.line("    A=M-1")
	b.line("    M=0")
	b.line("    @%s", end)
	b.line("    0;JMP")
	b.label(isTrue)
	b.line("    @SP")
	b.line("    A=M-1")
	b.line("    M=-1")
	b.label(end)
}

func (w *CodeWriter) writePush(b *block, segment string, index int) error {
	seg, err := resolveSegment(segment, index)
	if err != nil {
		return err
	}

	switch seg.Addressing {
	case Literal:
		b.line("    @%d", index)
		b.line("    D=A")
	case BaseRelative:
		b.line("    @%s", seg.Register)
		b.line("    D=M")
		b.line("    @%d", index)
		b.line("    A=D+A")
		b.line("    D=M")
	case Fixed, Static:
		b.line("    @%s", seg.address(w.unit, index))
		b.line("    D=M")
	}
	b.pushD()
	return nil
}

func (w *CodeWriter) writePop(b *block, segment string, index int) error {
	seg, err := resolveSegment(segment, index)
	if err != nil {
		return err
	}

	switch seg.Addressing {
	case Literal:
		return errors.Wrap(ErrInvalidSegment, "cannot pop to constant")
	case BaseRelative:
		// Target address goes to R13 before SP moves.
		b.line("    @%s", seg.Register)
		b.line("    D=M")
		b.line("    @%d", index)
		b.line("    D=D+A")
		b.line("    @R13")
		b.line("    M=D")
		b.popD()
		b.line("    @R13")
		b.line("    A=M")
		b.line("    M=D")
	case Fixed, Static:
		b.popD()
		b.line("    @%s", seg.address(w.unit, index))
		b.line("    M=D")
	}
	return nil
}

// scoped qualifies a VM label with the enclosing function, or with the unit
// before the first function.
func (w *CodeWriter) scoped(label string) string {
	scope := w.function
	if scope == "" {
		scope = w.unit
	}
	if scope == "" {
		return label
	}
	return scope + "$" + label
}

func (w *CodeWriter) writeLabel(b *block, label string) {
	b.label(w.scoped(label))
}

func (w *CodeWriter) writeGoto(b *block, label string) {
	b.line("    @%s", w.scoped(label))
	b.line("    0;JMP")
}

func (w *CodeWriter) writeIf(b *block, label string) {
	b.popD()
	b.line("    @%s", w.scoped(label))
	b.line("    D;JNE")
}

func (w *CodeWriter) writeCall(b *block, function string, nArgs int) {
	ret := fmt.Sprintf("%s$ret.%d", function, w.callIndex)
	w.callIndex++

	b.line("    @%s", ret)
	b.line("    D=A")
	b.pushD()
	for _, reg := range []string{"LCL", "ARG", "THIS", "THAT"} {
		b.line("    @%s", reg)
		b.line("    D=M")
		b.pushD()
	}

	// ARG = SP - nArgs - 5
	b.line("    @SP")
	b.line("    D=M")
	b.line("    @%d", nArgs+frameSize)
	b.line("    D=D-A")
	b.line("    @ARG")
	b.line("    M=D")

	// LCL = SP
	b.line("    @SP")
	b.line("    D=M")
	b.line("    @LCL")
	b.line("    M=D")

	b.line("    @%s", function)
	b.line("    0;JMP")
	b.label(ret)
}

func (w *CodeWriter) writeFunction(b *block, function string, nVars int) {
	w.function = function
	b.label(function)
	for i := 0; i < nVars; i++ {
		b.line("    @SP")
		b.line("    A=M")
		b.line("    M=0")
		b.line("    @SP")
		b.line("    M=M+1")
	}
}

// writeReturn tears down the callee frame. R13 holds the frame pointer, R14
// the return address and R15 the return value. The return address is read
// before the return value is stored, since with zero arguments *ARG is the
// return address slot. ARG is consumed before the saved bases overwrite it.
func (w *CodeWriter) writeReturn(b *block) {
	// R13 = LCL
	b.line("    @LCL")
	b.line("    D=M")
	b.line("    @R13")
	b.line("    M=D")

	// R14 = *(R13 - 5)
	b.line("    @%d", frameSize)
	b.line("    A=D-A")
	b.line("    D=M")
	b.line("    @R14")
	b.line("    M=D")

	// R15 = *(SP - 1)
	b.line("    @SP")
	b.line("    A=M-1")
	b.line("    D=M")
	b.line("    @R15")
	b.line("    M=D")

	// SP = ARG
	b.line("    @ARG")
	b.line("    D=M")
	b.line("    @SP")
	b.line("    M=D")

	// *SP = R15, SP++
	b.line("    @R15")
	b.line("    D=M")
	b.pushD()

	// THAT, THIS, ARG, LCL = *(R13 - 1..4)
	for _, reg := range []string{"THAT", "THIS", "ARG", "LCL"} {
		b.line("    @R13")
		b.line("    AM=M-1")
		b.line("    D=M")
		b.line("    @%s", reg)
		b.line("    M=D")
	}

	b.line("    @R14")
	b.line("    A=M")
	b.line("    0;JMP")
}
