package asm

import (
	"fmt"
	"strings"
)

var compNames = func() map[uint16]string {
	m := make(map[uint16]string, len(compCodes))
	for name, code := range compCodes {
		m[code] = name
	}
	return m
}()

var jumpNames = func() map[uint16]string {
	m := make(map[uint16]string, len(jumpCodes))
	for name, code := range jumpCodes {
		m[code] = name
	}
	return m
}()

// Disassemble renders a single machine word as assembly text.
func Disassemble(word uint16) string {
	if word&0x8000 == 0 {
		return fmt.Sprintf("@%d", word)
	}

	comp, ok := compNames[(word>>6)&0x7F]
	if !ok {
		return fmt.Sprintf("??? %016b", word)
	}

	var b strings.Builder
	if dest := (word >> 3) & 0x7; dest != 0 {
		if dest&0b100 != 0 {
			b.WriteByte('A')
		}
		if dest&0b010 != 0 {
			b.WriteByte('D')
		}
		if dest&0b001 != 0 {
			b.WriteByte('M')
		}
		b.WriteByte('=')
	}
	b.WriteString(comp)
	if jump := word & 0x7; jump != 0 {
		b.WriteByte(';')
		b.WriteString(jumpNames[jump])
	}
	return b.String()
}
