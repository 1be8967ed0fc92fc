package asm

import (
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// Statement is one non-empty line of Hack assembly.
type Statement struct {
	Label   *string  `  "(" @Ident ")"`
	Address *Address `| "@" @@`
	Compute *Compute `| @@`
}

// Address is the operand of an A-instruction.
type Address struct {
	Number *string `  @Number`
	Symbol *string `| @Ident`
}

// Compute is a C-instruction: dest=comp;jump with dest and jump optional.
type Compute struct {
	Dest *string  `(@Ident "=")?`
	Comp []string `@(Ident | Number | "+" | "-" | "&" | "|" | "!")+`
	Jump *string  `(";" @Ident)?`
}

// CompText returns the computation with the tokens joined back together.
func (c *Compute) CompText() string {
	return strings.Join(c.Comp, "")
}

var hackLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `//[^\n]*`},
	{Name: "Whitespace", Pattern: `[ \t\r]+`},
	{Name: "Number", Pattern: `[0-9]+`},
	// Symbols may use letters, digits, _ . $ : but not start with a digit.
	{Name: "Ident", Pattern: `[A-Za-z_.$:][A-Za-z0-9_.$:]*`},
	{Name: "Punct", Pattern: `[()@=;+\-&|!]`},
})

var statementParser = participle.MustBuild[Statement](
	participle.Lexer(hackLexer),
	participle.Elide("Whitespace", "Comment"),
	participle.UseLookahead(2),
)

// ParseStatement parses a single line of Hack assembly. The line must not be
// blank.
func ParseStatement(line string) (*Statement, error) {
	return statementParser.ParseString("", line)
}
