package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"

	"hackvm/pkg/cpu"
	"hackvm/pkg/translator"
)

func TestHackKey(t *testing.T) {
	tests := map[byte]uint16{'a': 'a', 'Z': 'Z', '\n': keyNewline, '\r': keyNewline, 0x7f: keyBackspace}
	for in, want := range tests {
		if got := hackKey(in); got != want {
			t.Errorf("hackKey(%q) = %d; want %d", in, got, want)
		}
	}
}

func TestRunProgram(t *testing.T) {
	dir := t.TempDir()
	vm := filepath.Join(dir, "Main.vm")
	if err := os.WriteFile(vm, []byte("push constant 2\npush constant 3\nadd\npop temp 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	program, res, err := translator.Program(vm)
	if err != nil {
		t.Fatal(err)
	}
	if res.Bootstrapped {
		t.Errorf("single file should not be bootstrapped")
	}

	c := cpu.NewCPU()
	c.LoadProgram(program)
	c.RAM[cpu.RegSP] = 256
	if err := run(c, nil, 1000); err != nil {
		t.Fatal(err)
	}
	if c.RAM[5] != 5 {
		t.Errorf("RAM[5] = %d; want 5", c.RAM[5])
	}

	var out strings.Builder
	printState(&out, c)
	if !strings.Contains(out.String(), "SP=256") {
		t.Errorf("printState:\n%s", out.String())
	}
}

func TestRunFeedsKeys(t *testing.T) {
	// Wait for a key, store it, then stop.
	src := "(WAIT)\n@KBD\nD=M\n@WAIT\nD;JEQ\n@R0\nM=D\n(END)\n@END\n0;JMP\n"
	program, err := assembleText(t, src)
	if err != nil {
		t.Fatal(err)
	}
	c := cpu.NewCPU()
	c.LoadProgram(program)

	keys := make(chan uint16, 1)
	go readKeys(strings.NewReader("q"), keys)
	if err := run(c, keys, 1_000_000); err != nil {
		t.Fatal(err)
	}
	if c.RAM[0] != 'q' {
		t.Errorf("RAM[0] = %d; want %d", c.RAM[0], 'q')
	}
}

func TestRunStepLimit(t *testing.T) {
	program, err := assembleText(t, "(L)\nD=D+1\n@L\n0;JMP\n")
	if err != nil {
		t.Fatal(err)
	}
	c := cpu.NewCPU()
	c.LoadProgram(program)
	if err := run(c, nil, 25_000); errors.Cause(err) != cpu.ErrStepLimit {
		t.Errorf("run = %v; want step limit", err)
	}
	if c.Steps != 25_000 {
		t.Errorf("Steps = %d; want 25000", c.Steps)
	}
}

func assembleText(t *testing.T, src string) ([]uint16, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prog.asm")
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	program, _, err := translator.Program(path)
	return program, err
}

func TestHibernateAndResume(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "Count.vm")
	prog := "label LOOP\npush static 0\npush constant 1\nadd\npop static 0\ngoto LOOP\n"
	if err := os.WriteFile(src, []byte(prog), 0o644); err != nil {
		t.Fatal(err)
	}

	vm, err := loadMachine(src, translator.BootstrapAuto)
	if err != nil {
		t.Fatal(err)
	}
	if vm.RAM[cpu.RegSP] != 256 {
		t.Fatalf("SP = %d; want 256", vm.RAM[cpu.RegSP])
	}
	if err := run(vm, nil, 30_000); errors.Cause(err) != cpu.ErrStepLimit {
		t.Fatalf("run = %v", err)
	}
	snapshot := filepath.Join(dir, "count.snapshot")
	if err := vm.HibernateToFile(snapshot); err != nil {
		t.Fatal(err)
	}
	counted := vm.RAM[16]
	if counted == 0 {
		t.Fatalf("counter never advanced")
	}

	resumed, err := resumeMachine(snapshot)
	if err != nil {
		t.Fatal(err)
	}
	if resumed.RAM[16] != counted || resumed.Steps != vm.Steps {
		t.Errorf("resumed state differs: RAM[16]=%d steps=%d", resumed.RAM[16], resumed.Steps)
	}
	run(resumed, nil, 60_000)
	if resumed.RAM[16] <= counted {
		t.Errorf("counter did not advance after resume: %d", resumed.RAM[16])
	}

	if _, err := resumeMachine(filepath.Join(dir, "missing")); err == nil {
		t.Errorf("resume of a missing snapshot should fail")
	}
}
