package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/pkg/errors"

	"hackvm/pkg/asm"
	"hackvm/pkg/cpu"
	"hackvm/pkg/translator"
	"hackvm/pkg/utils"
)

// Hack keyboard codes for keys that are not printable ASCII.
const (
	keyNewline   = 128
	keyBackspace = 129
)

// keyHold is how many instructions a typed key stays pressed. Terminals
// report presses only.
const keyHold = 200_000

// stepsPerPoll is how many instructions run between keyboard polls.
const stepsPerPoll = 10_000

// hackKey maps a terminal byte to a Hack keyboard code.
func hackKey(b byte) uint16 {
	switch b {
	case '\r', '\n':
		return keyNewline
	case 0x7f, 0x08:
		return keyBackspace
	}
	return uint16(b)
}

// readKeys forwards bytes from r until it fails.
func readKeys(r io.Reader, keys chan<- uint16) {
	br := bufio.NewReader(r)
	for {
		b, err := br.ReadByte()
		if err != nil {
			close(keys)
			return
		}
		keys <- hackKey(b)
	}
}

// run steps vm until it halts or maxSteps is reached, pressing keys as they
// arrive.
func run(vm *cpu.CPU, keys <-chan uint16, maxSteps uint64) error {
	var releaseAt uint64
	for !vm.Halted {
		select {
		case k, ok := <-keys:
			if ok {
				vm.SetKey(k)
				releaseAt = vm.Steps + keyHold
			} else {
				keys = nil
			}
		default:
		}
		if vm.Key != 0 && vm.Steps >= releaseAt {
			vm.SetKey(0)
		}

		chunk := uint64(stepsPerPoll)
		if maxSteps > 0 {
			if vm.Steps >= maxSteps {
				return errors.Wrapf(cpu.ErrStepLimit, "pc=%d after %d steps", vm.PC, vm.Steps)
			}
			chunk = min(chunk, maxSteps-vm.Steps)
		}
		for i := uint64(0); i < chunk && !vm.Halted; i++ {
			vm.Step()
		}
	}
	return nil
}

func printState(w io.Writer, vm *cpu.CPU) {
	fmt.Fprintf(w, "halted after %d steps: PC=%d A=%d D=%d\n", vm.Steps, vm.PC, vm.A, int16(vm.D))
	fmt.Fprintf(w, "SP=%d LCL=%d ARG=%d THIS=%d THAT=%d\n",
		vm.RAM[cpu.RegSP], vm.RAM[cpu.RegLCL], vm.RAM[cpu.RegARG], vm.RAM[cpu.RegTHIS], vm.RAM[cpu.RegTHAT])
	fmt.Fprintf(w, "temp: %v\n", vm.RAM[5:13])
	if stack := vm.Stack(256); len(stack) > 0 {
		if len(stack) > 16 {
			stack = stack[len(stack)-16:]
		}
		fmt.Fprintf(w, "stack top: %v\n", stack)
	}
}

// loadMachine builds path and loads it on a fresh CPU. Programs without a
// bootstrap start with SP at the stack base.
func loadMachine(path string, bootstrap translator.Bootstrap) (*cpu.CPU, error) {
	fullPath, baseDir, err := utils.GetPathInfo(path)
	if err != nil {
		return nil, errors.Wrap(err, "bad path")
	}
	print("Loading:", fullPath, "\n")
	print("Base directory:", baseDir, "\n")

	program, res, err := translator.Program(fullPath, translator.WithBootstrap(bootstrap))
	if err != nil {
		return nil, errors.WithMessage(err, "build failed")
	}
	vm := cpu.NewCPU()
	if err := vm.LoadProgram(program); err != nil {
		return nil, err
	}
	if !res.Bootstrapped {
		vm.RAM[cpu.RegSP] = 256
	}
	return vm, nil
}

func resumeMachine(path string) (*cpu.CPU, error) {
	vm := cpu.NewCPU()
	if err := vm.RestoreFromFile(path); err != nil {
		return nil, errors.WithMessage(err, "resume failed")
	}
	vm.Halted = false
	return vm, nil
}

func main() {
	trace := flag.Bool("trace", false, "print every executed instruction to stderr")
	raw := flag.Bool("raw", false, "put the terminal in raw mode and feed typed keys to the keyboard register")
	steps := flag.Uint64("steps", 0, "instruction limit, 0 for none")
	screenshot := flag.String("screenshot", "", "save the screen to this .png or .bmp file on exit")
	noBootstrap := flag.Bool("no-bootstrap", false, "never emit the bootstrap, even for directories")
	hibernate := flag.String("hibernate", "", "save a machine snapshot to this file on exit")
	resume := flag.String("resume", "", "continue from a snapshot instead of loading a program")
	flag.Parse()

	var vm *cpu.CPU
	var err error
	if *resume != "" {
		vm, err = resumeMachine(*resume)
	} else {
		if flag.NArg() != 1 {
			log.Fatalf("usage: console [flags] <file.vm|dir|file.asm>")
		}
		bootstrap := translator.BootstrapAuto
		if *noBootstrap {
			bootstrap = translator.BootstrapOff
		}
		vm, err = loadMachine(flag.Arg(0), bootstrap)
	}
	if err != nil {
		log.Fatal(err)
	}
	if *trace {
		vm.Trace = func(pc, instr uint16) {
			fmt.Fprintf(os.Stderr, "%5d  %04x  %s\n", pc, instr, asm.Disassemble(instr))
		}
	}

	var keys chan uint16
	if *raw {
		restore, err := setRawIO()
		if err != nil {
			log.Fatalf("Raw terminal: %v", err)
		}
		defer restore()
		keys = make(chan uint16, 16)
		go readKeys(os.Stdin, keys)
	}

	runErr := run(vm, keys, *steps)
	printState(os.Stdout, vm)

	if *screenshot != "" {
		if err := vm.SaveScreenshot(*screenshot); err != nil {
			log.Printf("Screenshot failed: %v", err)
		}
	}
	if *hibernate != "" {
		if err := vm.HibernateToFile(*hibernate); err != nil {
			log.Printf("Hibernate failed: %v", err)
		}
	}
	if runErr != nil {
		if *raw {
			fmt.Fprintln(os.Stderr, runErr)
			return
		}
		log.Fatal(runErr)
	}
}
