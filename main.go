//go:build !js

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"hackvm/pkg/asm"
	"hackvm/pkg/cpu"
	"hackvm/pkg/translator"
	"hackvm/pkg/utils"
)

func main() {
	inPath := flag.String("in", "", "input .vm file or directory of .vm files")
	outPath := flag.String("out", "", "output assembly file path (default: <file>.asm, or <dir>/<dir>.asm)")
	comments := flag.Bool("comments", false, "echo each VM instruction as a comment in the output")
	bootstrapMode := flag.String("bootstrap", "auto", "emit the SP/Sys.init prologue: auto (directories only), on or off")
	writeHack := flag.Bool("hack", false, "also assemble the output into a .hack file of binary words")
	runProgram := flag.Bool("run", false, "run the translated program on the Hack emulator")
	steps := flag.Uint64("steps", 10_000_000, "instruction limit for -run, 0 for none")
	flag.Parse()

	if *inPath == "" {
		fmt.Fprintln(os.Stderr, "nothing to do: provide -in <file.vm|dir>")
		flag.Usage()
		os.Exit(2)
	}

	bootstrap, err := parseBootstrap(*bootstrapMode)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	opts := []translator.Option{
		translator.WithComments(*comments),
		translator.WithBootstrap(bootstrap),
	}
	if *outPath != "" {
		opts = append(opts, translator.WithOutput(*outPath))
	}

	res, err := translator.Translate(*inPath, opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "translation failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("translated %d instructions from %d unit(s) -> %s\n", res.Instructions, len(res.Units), res.Output)

	if !*writeHack && !*runProgram {
		return
	}

	source, err := os.ReadFile(res.Output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read %q: %v\n", res.Output, err)
		os.Exit(1)
	}
	program, _, err := asm.Assemble(string(source))
	if err != nil {
		fmt.Fprintf(os.Stderr, "assembly failed: %v\n", err)
		os.Exit(1)
	}

	if *writeHack {
		hackPath := utils.ReplaceExt(res.Output, ".hack")
		if err := os.WriteFile(hackPath, []byte(asm.Format(program)), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write %q: %v\n", hackPath, err)
			os.Exit(1)
		}
		fmt.Printf("assembled %d words -> %s\n", len(program), hackPath)
	}

	if *runProgram {
		if err := runHack(program, res.Bootstrapped, *steps); err != nil {
			fmt.Fprintf(os.Stderr, "run failed for %q: %v\n", res.Output, err)
			os.Exit(1)
		}
	}
}

func parseBootstrap(mode string) (translator.Bootstrap, error) {
	switch mode {
	case "auto":
		return translator.BootstrapAuto, nil
	case "on":
		return translator.BootstrapOn, nil
	case "off":
		return translator.BootstrapOff, nil
	}
	return 0, errors.Errorf("invalid -bootstrap %q: want auto, on or off", mode)
}

// runHack executes program and prints the machine state. Programs without a
// bootstrap get the segment pointers a test harness would set.
func runHack(program []uint16, bootstrapped bool, maxSteps uint64) error {
	vm := cpu.NewCPU()
	if err := vm.LoadProgram(program); err != nil {
		return err
	}
	if !bootstrapped {
		vm.RAM[cpu.RegSP] = 256
		vm.RAM[cpu.RegLCL] = 300
		vm.RAM[cpu.RegARG] = 400
		vm.RAM[cpu.RegTHIS] = 3000
		vm.RAM[cpu.RegTHAT] = 3010
	}

	runErr := vm.Run(maxSteps)

	fmt.Printf(
		"run complete: steps=%d PC=%d A=%d D=%d SP=%d LCL=%d ARG=%d THIS=%d THAT=%d\n",
		vm.Steps,
		vm.PC,
		vm.A,
		int16(vm.D),
		vm.RAM[cpu.RegSP],
		vm.RAM[cpu.RegLCL],
		vm.RAM[cpu.RegARG],
		vm.RAM[cpu.RegTHIS],
		vm.RAM[cpu.RegTHAT],
	)
	if stack := vm.Stack(256); len(stack) > 0 {
		fmt.Printf("stack: %v\n", signed(stack))
	}
	return runErr
}

func signed(words []uint16) []int16 {
	out := make([]int16, len(words))
	for i, w := range words {
		out[i] = int16(w)
	}
	return out
}
