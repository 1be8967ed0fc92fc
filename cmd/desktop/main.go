package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"hackvm/pkg/cpu"
	"hackvm/pkg/translator"
	"hackvm/pkg/utils"
)

// Hack keyboard codes for keys without an ASCII character.
var specialKeys = []struct {
	key  ebiten.Key
	code uint16
}{
	{ebiten.KeyEnter, 128},
	{ebiten.KeyBackspace, 129},
	{ebiten.KeyArrowLeft, 130},
	{ebiten.KeyArrowUp, 131},
	{ebiten.KeyArrowRight, 132},
	{ebiten.KeyArrowDown, 133},
	{ebiten.KeyHome, 134},
	{ebiten.KeyEnd, 135},
	{ebiten.KeyPageUp, 136},
	{ebiten.KeyPageDown, 137},
	{ebiten.KeyInsert, 138},
	{ebiten.KeyDelete, 139},
	{ebiten.KeyEscape, 140},
	{ebiten.KeyF1, 141},
	{ebiten.KeyF2, 142},
	{ebiten.KeyF3, 143},
	{ebiten.KeyF4, 144},
	{ebiten.KeyF5, 145},
	{ebiten.KeyF6, 146},
	{ebiten.KeyF7, 147},
	{ebiten.KeyF8, 148},
	{ebiten.KeyF9, 149},
	{ebiten.KeyF10, 150},
	{ebiten.KeyF11, 151},
	{ebiten.KeyF12, 152},
}

// hackKey picks the keyboard register value from the keys held this frame
// and the characters typed this frame. last is the character still held from
// an earlier frame.
func hackKey(pressed []ebiten.Key, chars []rune, last uint16) uint16 {
	if len(pressed) == 0 {
		return 0
	}
	for _, sk := range specialKeys {
		for _, k := range pressed {
			if k == sk.key {
				return sk.code
			}
		}
	}
	if len(chars) > 0 {
		if r := chars[len(chars)-1]; r < 128 {
			return uint16(r)
		}
	}
	return last
}

type Game struct {
	vm       *cpu.CPU
	speed    int           // instructions per frame
	screen   *ebiten.Image // reused 512×256 canvas
	pressed  []ebiten.Key
	lastChar uint16
}

func (g *Game) Update() error {
	g.pressed = inpututil.AppendPressedKeys(g.pressed[:0])
	key := hackKey(g.pressed, ebiten.AppendInputChars(nil), g.lastChar)
	if key < 128 {
		g.lastChar = key
	}
	g.vm.SetKey(key)

	for i := 0; i < g.speed; i++ {
		if g.vm.Halted {
			break
		}
		g.vm.Step()
	}
	return nil
}

func (g *Game) Draw(screen *ebiten.Image) {
	if g.screen == nil {
		g.screen = ebiten.NewImage(cpu.ScreenWidth, cpu.ScreenHeight)
		g.vm.ScreenDirty = true
	}
	if g.vm.ScreenDirty {
		g.screen.WritePixels(g.vm.GetFramebufferRGBA())
		g.vm.ScreenDirty = false
	}
	screen.DrawImage(g.screen, nil)

	if g.vm.Halted {
		ebitenutil.DebugPrintAt(screen, fmt.Sprintf("halted after %d steps", g.vm.Steps), 4, cpu.ScreenHeight-16)
	}
}

func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return cpu.ScreenWidth, cpu.ScreenHeight
}

func main() {
	speed := flag.Int("speed", 50_000, "instructions executed per frame")
	scale := flag.Int("scale", 2, "window scale factor")
	flag.Parse()
	if flag.NArg() != 1 {
		log.Fatalf("usage: desktop [flags] <file.vm|dir|file.asm>")
	}

	fullPath, _, err := utils.GetPathInfo(flag.Arg(0))
	if err != nil {
		log.Fatalf("Bad path: %v", err)
	}
	program, res, err := translator.Program(fullPath)
	if err != nil {
		log.Fatalf("Build failed: %v", err)
	}

	vm := cpu.NewCPU()
	if err := vm.LoadProgram(program); err != nil {
		log.Fatal(err)
	}
	if !res.Bootstrapped {
		vm.RAM[cpu.RegSP] = 256
	}

	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetWindowSize(cpu.ScreenWidth*(*scale), cpu.ScreenHeight*(*scale))
	ebiten.SetWindowTitle("Hack - " + utils.UnitName(fullPath))

	game := &Game{vm: vm, speed: *speed}
	if err := ebiten.RunGame(game); err != nil {
		log.Fatal(err)
	}
}
