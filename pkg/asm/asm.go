// Package asm assembles Hack assembly text into 16-bit machine words.
//
// Supported syntax: @value, @symbol, dest=comp;jump, (LABEL) and //
// comments. Labels bind to the address of the next instruction; other
// symbols become variables allocated from RAM[16] upward.
package asm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// VariableBase is the first RAM address handed out to variables.
const VariableBase = 16

// MaxAddress is the largest value an A-instruction can hold.
const MaxAddress = 1<<15 - 1

var predefined = map[string]uint16{
	"SP":     0,
	"LCL":    1,
	"ARG":    2,
	"THIS":   3,
	"THAT":   4,
	"SCREEN": 0x4000,
	"KBD":    0x6000,
}

func init() {
	for i := 0; i < 16; i++ {
		predefined[fmt.Sprintf("R%d", i)] = uint16(i)
	}
}

func lookupComp(text string) (uint16, bool) {
	if c, ok := compCodes[text]; ok {
		return c, true
	}
	c, ok := compAliases[text]
	return c, ok
}

// compCodes maps a computation to its a-bit and six c-bits.
var compCodes = map[string]uint16{
	"0":   0b0101010,
	"1":   0b0111111,
	"-1":  0b0111010,
	"D":   0b0001100,
	"A":   0b0110000,
	"M":   0b1110000,
	"!D":  0b0001101,
	"!A":  0b0110001,
	"!M":  0b1110001,
	"-D":  0b0001111,
	"-A":  0b0110011,
	"-M":  0b1110011,
	"D+1": 0b0011111,
	"A+1": 0b0110111,
	"M+1": 0b1110111,
	"D-1": 0b0001110,
	"A-1": 0b0110010,
	"M-1": 0b1110010,
	"D+A": 0b0000010,
	"D+M": 0b1000010,
	"D-A": 0b0010011,
	"D-M": 0b1010011,
	"A-D": 0b0000111,
	"M-D": 0b1000111,
	"D&A": 0b0000000,
	"D&M": 0b1000000,
	"D|A": 0b0010101,
	"D|M": 0b1010101,
}

// compAliases are commuted spellings accepted on input only.
var compAliases = map[string]uint16{
	"A+D": 0b0000010,
	"M+D": 0b1000010,
	"A&D": 0b0000000,
	"M&D": 0b1000000,
	"A|D": 0b0010101,
	"M|D": 0b1010101,
}

var jumpCodes = map[string]uint16{
	"JGT": 0b001,
	"JEQ": 0b010,
	"JGE": 0b011,
	"JLT": 0b100,
	"JNE": 0b101,
	"JLE": 0b110,
	"JMP": 0b111,
}

type Assembler struct {
	symbols      map[string]uint16
	nextVariable uint16
}

type parsedLine struct {
	lineNo int
	stmt   *Statement
}

func NewAssembler() *Assembler {
	a := &Assembler{
		symbols:      make(map[string]uint16, len(predefined)),
		nextVariable: VariableBase,
	}
	for k, v := range predefined {
		a.symbols[k] = v
	}
	return a
}

// Assemble returns the ROM image for code and a map from ROM address to
// 1-based source line.
func Assemble(code string) ([]uint16, map[uint16]int, error) {
	return NewAssembler().Assemble(code)
}

func (a *Assembler) Assemble(code string) ([]uint16, map[uint16]int, error) {
	lines, err := a.pass1(strings.Split(code, "\n"))
	if err != nil {
		return nil, nil, err
	}
	return a.pass2(lines)
}

// Symbol returns the value bound to a label, predefined symbol or variable
// after assembly.
func (a *Assembler) Symbol(name string) (uint16, bool) {
	v, ok := a.symbols[name]
	return v, ok
}

// pass1 parses every line and binds labels to ROM addresses.
func (a *Assembler) pass1(raw []string) ([]parsedLine, error) {
	var lines []parsedLine
	var address uint32
	labels := make(map[string]bool)

	for i, text := range raw {
		lineNo := i + 1
		text = strings.TrimSpace(stripComments(text))
		if text == "" {
			continue
		}

		stmt, err := ParseStatement(text)
		if err != nil {
			return nil, errors.Wrapf(err, "syntax error on line %d", lineNo)
		}

		if stmt.Label != nil {
			name := *stmt.Label
			if _, ok := predefined[name]; ok {
				return nil, errors.Errorf("label '%s' on line %d redefines a predefined symbol", name, lineNo)
			}
			if labels[name] {
				return nil, errors.Errorf("duplicate label '%s' on line %d", name, lineNo)
			}
			if address > MaxAddress {
				return nil, errors.Errorf("label '%s' on line %d points past the end of ROM", name, lineNo)
			}
			labels[name] = true
			a.symbols[name] = uint16(address)
			continue
		}

		if address > MaxAddress {
			return nil, errors.Errorf("program too large near line %d", lineNo)
		}
		lines = append(lines, parsedLine{lineNo: lineNo, stmt: stmt})
		address++
	}

	return lines, nil
}

func (a *Assembler) pass2(lines []parsedLine) ([]uint16, map[uint16]int, error) {
	program := make([]uint16, 0, len(lines))
	sourceMap := make(map[uint16]int, len(lines))

	for _, p := range lines {
		sourceMap[uint16(len(program))] = p.lineNo

		var word uint16
		var err error
		switch {
		case p.stmt.Address != nil:
			word, err = a.encodeAddress(p.stmt.Address, p.lineNo)
		case p.stmt.Compute != nil:
			word, err = encodeCompute(p.stmt.Compute, p.lineNo)
		default:
			err = errors.Errorf("empty statement on line %d", p.lineNo)
		}
		if err != nil {
			return nil, nil, err
		}
		program = append(program, word)
	}

	return program, sourceMap, nil
}

func (a *Assembler) encodeAddress(addr *Address, lineNo int) (uint16, error) {
	if addr.Number != nil {
		v, err := strconv.ParseUint(*addr.Number, 10, 32)
		if err != nil || v > MaxAddress {
			return 0, errors.Errorf("address out of range on line %d: %s", lineNo, *addr.Number)
		}
		return uint16(v), nil
	}

	name := *addr.Symbol
	if v, ok := a.symbols[name]; ok {
		return v, nil
	}
	if a.nextVariable > MaxAddress {
		return 0, errors.Errorf("out of variable space at '%s' on line %d", name, lineNo)
	}
	v := a.nextVariable
	a.symbols[name] = v
	a.nextVariable++
	return v, nil
}

func encodeCompute(c *Compute, lineNo int) (uint16, error) {
	comp, ok := lookupComp(c.CompText())
	if !ok {
		return 0, errors.Errorf("invalid computation '%s' on line %d", c.CompText(), lineNo)
	}

	var dest uint16
	if c.Dest != nil {
		d, err := parseDest(*c.Dest, lineNo)
		if err != nil {
			return 0, err
		}
		dest = d
	}

	var jump uint16
	if c.Jump != nil {
		j, ok := jumpCodes[*c.Jump]
		if !ok {
			return 0, errors.Errorf("invalid jump '%s' on line %d", *c.Jump, lineNo)
		}
		jump = j
	}

	return 0xE000 | comp<<6 | dest<<3 | jump, nil
}

func parseDest(token string, lineNo int) (uint16, error) {
	var bits uint16
	for _, r := range token {
		var bit uint16
		switch r {
		case 'A':
			bit = 0b100
		case 'D':
			bit = 0b010
		case 'M':
			bit = 0b001
		default:
			return 0, errors.Errorf("invalid destination '%s' on line %d", token, lineNo)
		}
		if bits&bit != 0 {
			return 0, errors.Errorf("repeated register in destination '%s' on line %d", token, lineNo)
		}
		bits |= bit
	}
	return bits, nil
}

func stripComments(line string) string {
	if i := strings.Index(line, "//"); i >= 0 {
		return line[:i]
	}
	return line
}

// Format renders a ROM image in the .hack text format: one 16-digit binary
// word per line.
func Format(program []uint16) string {
	var b strings.Builder
	for _, w := range program {
		fmt.Fprintf(&b, "%016b\n", w)
	}
	return b.String()
}
