package cpu

import (
	"github.com/pkg/errors"
)

// Memory map of the Hack platform.
const (
	ROMSize     = 32768
	RAMSize     = 32768
	ScreenBase  = 0x4000
	ScreenWords = 8192
	KeyboardReg = 0x6000

	ScreenWidth  = 512
	ScreenHeight = 256
)

// Fixed RAM cells used by the VM calling convention.
const (
	RegSP   uint16 = 0
	RegLCL  uint16 = 1
	RegARG  uint16 = 2
	RegTHIS uint16 = 3
	RegTHAT uint16 = 4
)

// ErrStepLimit is returned by Run when the program is still running after
// the allowed number of steps.
var ErrStepLimit = errors.New("step limit reached")

// CPU is a Hack computer: A and D registers, a program counter, a read-only
// instruction memory and a data memory with the screen and keyboard mapped
// in.
type CPU struct {
	A  uint16
	D  uint16
	PC uint16

	RAM [RAMSize]uint16
	ROM []uint16

	// Key is the code of the key currently held down, 0 for none. Reads of
	// RAM[KeyboardReg] return it.
	Key uint16

	Halted bool
	Steps  uint64

	// ScreenDirty is set by any write to the screen map and cleared by the
	// front end after it redraws.
	ScreenDirty bool

	// Trace, if set, is called before each instruction executes.
	Trace func(pc, instr uint16)
}

func NewCPU() *CPU {
	return &CPU{}
}

// LoadProgram copies a ROM image into instruction memory and resets the
// program counter.
func (c *CPU) LoadProgram(program []uint16) error {
	if len(program) > ROMSize {
		return errors.Errorf("program too large for ROM: %d words > %d words", len(program), ROMSize)
	}
	c.ROM = append(c.ROM[:0], program...)
	c.Reset()
	return nil
}

// Reset restarts execution from ROM[0]. RAM is left as it is.
func (c *CPU) Reset() {
	c.PC = 0
	c.Halted = false
	c.Steps = 0
}

// SetKey presses key, or releases all keys when key is 0.
func (c *CPU) SetKey(key uint16) {
	c.Key = key
}

func (c *CPU) ReadMem(addr uint16) uint16 {
	if addr == KeyboardReg {
		return c.Key
	}
	return c.RAM[addr&(RAMSize-1)]
}

func (c *CPU) WriteMem(addr uint16, val uint16) {
	addr &= RAMSize - 1
	if addr == KeyboardReg {
		return
	}
	if addr >= ScreenBase && addr < ScreenBase+ScreenWords {
		c.ScreenDirty = true
	}
	c.RAM[addr] = val
}

// alu computes the Hack ALU function selected by the six control bits
// zx nx zy ny f no.
func alu(x, y, ctrl uint16) uint16 {
	if ctrl&0x20 != 0 {
		x = 0
	}
	if ctrl&0x10 != 0 {
		x = ^x
	}
	if ctrl&0x08 != 0 {
		y = 0
	}
	if ctrl&0x04 != 0 {
		y = ^y
	}
	var out uint16
	if ctrl&0x02 != 0 {
		out = x + y
	} else {
		out = x & y
	}
	if ctrl&0x01 != 0 {
		out = ^out
	}
	return out
}

func jumps(out, cond uint16) bool {
	v := int16(out)
	return (cond&0b100 != 0 && v < 0) ||
		(cond&0b010 != 0 && v == 0) ||
		(cond&0b001 != 0 && v > 0)
}

// Step executes one instruction. Running past the end of the program or
// reaching the "@L; (L) 0;JMP" idle loop halts the CPU.
func (c *CPU) Step() {
	if c.Halted {
		return
	}
	if int(c.PC) >= len(c.ROM) {
		c.Halted = true
		return
	}

	instr := c.ROM[c.PC]
	if c.Trace != nil {
		c.Trace(c.PC, instr)
	}
	c.Steps++

	if instr&0x8000 == 0 {
		c.A = instr
		c.PC++
		return
	}

	addr := c.A
	y := c.A
	if instr&0x1000 != 0 {
		y = c.ReadMem(addr)
	}
	out := alu(c.D, y, (instr>>6)&0x3F)

	dest := (instr >> 3) & 0x7
	if dest&0b001 != 0 {
		c.WriteMem(addr, out)
	}
	if dest&0b100 != 0 {
		c.A = out
	}
	if dest&0b010 != 0 {
		c.D = out
	}

	if jumps(out, instr&0x7) {
		if c.isIdleLoop(addr) {
			c.Halted = true
			return
		}
		c.PC = addr
		return
	}
	c.PC++
}

// isIdleLoop reports whether jumping to target from the current PC is the
// two-instruction "@target / 0;JMP" loop programs use to stop.
func (c *CPU) isIdleLoop(target uint16) bool {
	if target == c.PC {
		return true
	}
	return target+1 == c.PC && c.ROM[target] == target
}

// Run executes until the CPU halts. maxSteps bounds the run; zero means no
// bound.
func (c *CPU) Run(maxSteps uint64) error {
	for !c.Halted {
		if maxSteps > 0 && c.Steps >= maxSteps {
			return errors.Wrapf(ErrStepLimit, "pc=%d after %d steps", c.PC, c.Steps)
		}
		c.Step()
	}
	return nil
}

// RunUntil executes until done returns true or the CPU halts, checking done
// before every instruction.
func (c *CPU) RunUntil(done func(*CPU) bool, maxSteps uint64) error {
	for !c.Halted && !done(c) {
		if maxSteps > 0 && c.Steps >= maxSteps {
			return errors.Wrapf(ErrStepLimit, "pc=%d after %d steps", c.PC, c.Steps)
		}
		c.Step()
	}
	return nil
}

// Stack returns the words from base up to, but not including, SP.
func (c *CPU) Stack(base uint16) []uint16 {
	sp := c.RAM[RegSP]
	if sp > RAMSize {
		sp = RAMSize
	}
	if sp <= base {
		return nil
	}
	out := make([]uint16, sp-base)
	copy(out, c.RAM[base:sp])
	return out
}
