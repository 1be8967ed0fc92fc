package parser

import "fmt"

// CommandKind identifies the category of a VM instruction.
type CommandKind int

const (
	Arithmetic CommandKind = iota // add, sub, neg, eq, gt, lt, and, or, not
	Push                          // push <segment> <index>
	Pop                           // pop <segment> <index>
	Label                         // label <name>
	Goto                          // goto <name>
	If                            // if-goto <name>
	Call                          // call <name> <nArgs>
	Function                      // function <name> <nVars>
	Return                        // return
)

var kindNames = [...]string{
	Arithmetic: "C_ARITHMETIC",
	Push:       "C_PUSH",
	Pop:        "C_POP",
	Label:      "C_LABEL",
	Goto:       "C_GOTO",
	If:         "C_IF",
	Call:       "C_CALL",
	Function:   "C_FUNCTION",
	Return:     "C_RETURN",
}

func (k CommandKind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("CommandKind(%d)", int(k))
}

// HasArg1 reports whether instructions of this kind carry a first argument.
func (k CommandKind) HasArg1() bool {
	return k != Return
}

// HasArg2 reports whether instructions of this kind carry an integer second
// argument.
func (k CommandKind) HasArg2() bool {
	switch k {
	case Push, Pop, Call, Function:
		return true
	}
	return false
}

// Operator is one of the nine arithmetic/logical VM commands.
type Operator string

const (
	OpAdd Operator = "add"
	OpSub Operator = "sub"
	OpNeg Operator = "neg"
	OpEq  Operator = "eq"
	OpGt  Operator = "gt"
	OpLt  Operator = "lt"
	OpAnd Operator = "and"
	OpOr  Operator = "or"
	OpNot Operator = "not"
)

// commands maps the first token of a line to its kind. The map is total
// over the VM language; anything else is an unknown command.
var commands = map[string]CommandKind{
	string(OpAdd): Arithmetic,
	string(OpSub): Arithmetic,
	string(OpNeg): Arithmetic,
	string(OpEq):  Arithmetic,
	string(OpGt):  Arithmetic,
	string(OpLt):  Arithmetic,
	string(OpAnd): Arithmetic,
	string(OpOr):  Arithmetic,
	string(OpNot): Arithmetic,
	"push":        Push,
	"pop":         Pop,
	"label":       Label,
	"goto":        Goto,
	"if-goto":     If,
	"call":        Call,
	"function":    Function,
	"return":      Return,
}

// Lookup returns the kind for a command token.
func Lookup(token string) (CommandKind, bool) {
	k, ok := commands[token]
	return k, ok
}
