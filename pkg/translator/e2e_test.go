package translator

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"hackvm/pkg/asm"
	"hackvm/pkg/cpu"
)

const maxSteps = 2_000_000

func unit(name, src string) Unit {
	return Unit{Name: name, Source: strings.NewReader(src)}
}

// build translates units, assembles the result and loads it on a fresh CPU.
// Without a bootstrap the segment pointers get the usual test values.
func build(t *testing.T, bootstrap bool, units ...Unit) (*cpu.CPU, *asm.Assembler) {
	t.Helper()
	var out strings.Builder
	if _, err := TranslateUnits(&out, units, bootstrap); err != nil {
		t.Fatalf("translate: %v", err)
	}
	a := asm.NewAssembler()
	program, _, err := a.Assemble(out.String())
	if err != nil {
		t.Fatalf("assemble: %v\n%s", err, out.String())
	}
	c := cpu.NewCPU()
	if err := c.LoadProgram(program); err != nil {
		t.Fatal(err)
	}
	if !bootstrap {
		c.RAM[cpu.RegSP] = 256
		c.RAM[cpu.RegLCL] = 300
		c.RAM[cpu.RegARG] = 400
		c.RAM[cpu.RegTHIS] = 3000
		c.RAM[cpu.RegTHAT] = 3010
	}
	return c, a
}

func run(t *testing.T, c *cpu.CPU) {
	t.Helper()
	if err := c.Run(maxSteps); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func checkBases(t *testing.T, c *cpu.CPU) {
	t.Helper()
	want := map[uint16]uint16{cpu.RegLCL: 300, cpu.RegARG: 400, cpu.RegTHIS: 3000, cpu.RegTHAT: 3010}
	for reg, v := range want {
		if c.RAM[reg] != v {
			t.Errorf("RAM[%d] = %d; want %d", reg, c.RAM[reg], v)
		}
	}
}

func TestPushPopTemp(t *testing.T) {
	c, _ := build(t, false, unit("Main", "push constant 7\npop temp 0\n"))
	run(t, c)
	if c.RAM[5] != 7 {
		t.Errorf("RAM[5] = %d; want 7", c.RAM[5])
	}
	if c.RAM[cpu.RegSP] != 256 {
		t.Errorf("SP = %d; want 256", c.RAM[cpu.RegSP])
	}
}

func TestArithmetic(t *testing.T) {
	tests := []struct {
		src  string
		want int16
	}{
		{"push constant 7\npush constant 8\nadd", 15},
		{"push constant 9\npush constant 4\nsub", 5},
		{"push constant 4\npush constant 9\nsub", -5},
		{"push constant 5\nneg", -5},
		{"push constant 0\nnot", -1},
		{"push constant 12\npush constant 10\nand", 8},
		{"push constant 12\npush constant 10\nor", 14},
		{"push constant 5\npush constant 5\neq", -1},
		{"push constant 5\npush constant 6\neq", 0},
		{"push constant 9\npush constant 4\ngt", -1},
		{"push constant 4\npush constant 9\ngt", 0},
		{"push constant 5\npush constant 5\ngt", 0},
		{"push constant 4\npush constant 9\nlt", -1},
		{"push constant 9\npush constant 4\nlt", 0},
		{"push constant 1\nneg\npush constant 1\nlt", -1},
		{"push constant 32767\npush constant 1\nsub", 32766},
	}
	for _, tc := range tests {
		c, _ := build(t, false, unit("Main", tc.src))
		run(t, c)
		if sp := c.RAM[cpu.RegSP]; sp != 257 {
			t.Errorf("%q: SP = %d; want 257", tc.src, sp)
		}
		if got := int16(c.RAM[256]); got != tc.want {
			t.Errorf("%q: top = %d; want %d", tc.src, got, tc.want)
		}
	}
}

func TestSegmentRoundTrip(t *testing.T) {
	src := `push constant 10
pop local 0
push constant 21
pop argument 1
push constant 36
pop this 6
push constant 42
pop that 5
push constant 45
pop temp 6
push local 0
push that 5
add
push argument 1
sub
push this 6
push this 6
add
sub
push temp 6
add
push constant 3030
pop pointer 0
push constant 3040
pop pointer 1
push constant 32
pop this 2
push constant 46
pop that 6
push pointer 0
push pointer 1
add
push this 2
sub
push that 6
add
`
	c, _ := build(t, false, unit("Main", src))
	run(t, c)

	cells := map[uint16]uint16{300: 10, 401: 21, 3006: 36, 3015: 42, 11: 45, 3: 3030, 4: 3040, 3032: 32, 3046: 46}
	for addr, want := range cells {
		if c.RAM[addr] != want {
			t.Errorf("RAM[%d] = %d; want %d", addr, c.RAM[addr], want)
		}
	}
	if got := c.Stack(256); len(got) != 2 || int16(got[0]) != 4 || got[1] != 6084 {
		t.Errorf("stack = %v; want [4 6084]", got)
	}
}

func TestStaticIsolation(t *testing.T) {
	c, a := build(t, false,
		unit("A", "push constant 11\npop static 0\npush constant 12\npop static 1\n"),
		unit("B", "push constant 22\npop static 0\npush static 0\npush static 0\nadd\npop temp 0\n"),
	)
	run(t, c)

	want := map[string]uint16{"A.0": 11, "A.1": 12, "B.0": 22}
	seen := map[uint16]bool{}
	for sym, v := range want {
		addr, ok := a.Symbol(sym)
		if !ok {
			t.Fatalf("symbol %s not allocated", sym)
		}
		if addr < asm.VariableBase {
			t.Errorf("%s at %d, below the static area", sym, addr)
		}
		if seen[addr] {
			t.Errorf("%s shares address %d", sym, addr)
		}
		seen[addr] = true
		if c.RAM[addr] != v {
			t.Errorf("%s = %d; want %d", sym, c.RAM[addr], v)
		}
	}
	if c.RAM[5] != 44 {
		t.Errorf("RAM[5] = %d; want 44", c.RAM[5])
	}
}

func TestLabelsUniqueAcrossUnits(t *testing.T) {
	src := "push constant 3\npush constant 3\neq\nlabel SKIP\npush constant 1\nif-goto SKIP2\nlabel SKIP2\n"
	c, _ := build(t, false, unit("A", src), unit("B", src))
	run(t, c)
	if got := c.Stack(256); len(got) != 2 || got[0] != 0xFFFF || got[1] != 0xFFFF {
		t.Errorf("stack = %v; want two true values", got)
	}
}

func TestBranching(t *testing.T) {
	src := `push constant 0
if-goto SKIP
push constant 5
label SKIP
push constant 1
if-goto END
push constant 99
label END
`
	c, _ := build(t, false, unit("Main", src))
	run(t, c)
	if got := c.Stack(256); len(got) != 1 || got[0] != 5 {
		t.Errorf("stack = %v; want [5]", got)
	}
}

func TestLoop(t *testing.T) {
	src := `push constant 0
pop local 0
push constant 5
pop local 1
label LOOP
push local 0
push local 1
add
pop local 0
push local 1
push constant 1
sub
pop local 1
push local 1
if-goto LOOP
push local 0
`
	c, _ := build(t, false, unit("Main", src))
	run(t, c)
	if got := c.Stack(256); len(got) != 1 || got[0] != 15 {
		t.Errorf("stack = %v; want [15]", got)
	}
}

func TestCallWithoutArguments(t *testing.T) {
	src := `push constant 10
call Main.seven 0
label HALT
goto HALT
function Main.seven 0
push constant 7
return
`
	c, _ := build(t, false, unit("Main", src))
	run(t, c)

	if c.RAM[cpu.RegSP] != 258 {
		t.Errorf("SP = %d; want 258", c.RAM[cpu.RegSP])
	}
	if c.RAM[256] != 10 || c.RAM[257] != 7 {
		t.Errorf("stack = %v; want [10 7]", c.Stack(256))
	}
	checkBases(t, c)
}

func TestCallFrame(t *testing.T) {
	src := `push constant 5
push constant 3
push constant 8
call Main.diff 2
label HALT
goto HALT
function Main.diff 2
push argument 0
push argument 1
sub
return
`
	c, a := build(t, false, unit("Main", src))
	entry, ok := a.Symbol("Main.diff")
	if !ok {
		t.Fatal("Main.diff not defined")
	}

	if err := c.RunUntil(func(c *cpu.CPU) bool { return c.PC == entry }, maxSteps); err != nil {
		t.Fatal(err)
	}
	if c.RAM[cpu.RegARG] != 257 || c.RAM[257] != 3 {
		t.Errorf("at entry ARG = %d, *ARG = %d; want 257, 3", c.RAM[cpu.RegARG], c.RAM[257])
	}
	if c.RAM[cpu.RegLCL] != 264 || c.RAM[cpu.RegSP] != 264 {
		t.Errorf("at entry LCL = %d, SP = %d; want 264, 264", c.RAM[cpu.RegLCL], c.RAM[cpu.RegSP])
	}
	saved := []uint16{300, 400, 3000, 3010}
	for i, v := range saved {
		if c.RAM[260+i] != v {
			t.Errorf("saved frame[%d] = %d; want %d", i, c.RAM[260+i], v)
		}
	}

	run(t, c)
	if c.RAM[cpu.RegSP] != 258 {
		t.Errorf("SP = %d; want 258", c.RAM[cpu.RegSP])
	}
	if c.RAM[256] != 5 || int16(c.RAM[257]) != -5 {
		t.Errorf("stack = %v; want [5 -5]", c.Stack(256))
	}
	checkBases(t, c)
}

func TestFunctionLocalsZeroed(t *testing.T) {
	src := `call Main.f 0
label HALT
goto HALT
function Main.f 3
push local 0
push local 1
add
push local 2
add
return
`
	c, _ := build(t, false, unit("Main", src))
	// Dirty the cells the locals will occupy.
	for i := 256; i < 270; i++ {
		c.RAM[i] = 0x5555
	}
	run(t, c)
	if c.RAM[256] != 0 {
		t.Errorf("sum of fresh locals = %d; want 0", c.RAM[256])
	}
}

const fibMain = `// fib(n) = n < 2 ? n : fib(n-1) + fib(n-2)
function Main.fibonacci 0
push argument 0
push constant 2
lt
if-goto BASE
push argument 0
push constant 2
sub
call Main.fibonacci 1
push argument 0
push constant 1
sub
call Main.fibonacci 1
add
return
label BASE
push argument 0
return
`

const fibSys = `function Sys.init 0
push constant 10
call Main.fibonacci 1
pop temp 0
label END
goto END
`

func TestRecursiveProgramDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "Fib")
	if err := os.Mkdir(dir, 0755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, "Main.vm"), fibMain)
	writeFile(t, filepath.Join(dir, "Sys.vm"), fibSys)

	res, err := Translate(dir)
	if err != nil {
		t.Fatal(err)
	}
	code, err := os.ReadFile(res.Output)
	if err != nil {
		t.Fatal(err)
	}
	program, _, err := asm.Assemble(string(code))
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}

	c := cpu.NewCPU()
	if err := c.LoadProgram(program); err != nil {
		t.Fatal(err)
	}
	run(t, c)

	if c.RAM[5] != 55 {
		t.Errorf("fib(10) = %d; want 55", c.RAM[5])
	}
	// Sys.init's frame sits on top of the bootstrap stack base.
	if sp := c.RAM[cpu.RegSP]; sp != 261 {
		t.Errorf("SP = %d; want 261", sp)
	}
}

func TestBootstrapInMemory(t *testing.T) {
	c, _ := build(t, true, unit("Main", fibMain), unit("Sys", fibSys))
	run(t, c)
	if c.RAM[5] != 55 {
		t.Errorf("fib(10) = %d; want 55", c.RAM[5])
	}
}
