package vm

import (
	"fmt"
	"sort"

	"its-hmny.dev/nand2tetris/pkg/asm"
)

// LocationResolver maps a SegmentType to a function producing the asm.Instruction(s)
// that leave the segment's base address (or the constant itself) in the 'D' register,
// used while lowering both push and pop MemoryOp.
var LocationResolver = map[SegmentType]func(uint16) []asm.Instruction{
	Constant: func(value uint16) []asm.Instruction {
		return []asm.Instruction{asm.AInstruction{Location: fmt.Sprint(value)}, asm.CInstruction{Dest: "D", Comp: "A"}}
	},
	Local:    pointerSegmentResolver("LCL"),
	Argument: pointerSegmentResolver("ARG"),
	This:     pointerSegmentResolver("THIS"),
	That:     pointerSegmentResolver("THAT"),
	Temp: func(offset uint16) []asm.Instruction {
		return []asm.Instruction{asm.AInstruction{Location: "5"}, asm.CInstruction{Dest: "D", Comp: "A"}}
	},
	Pointer: func(offset uint16) []asm.Instruction {
		return []asm.Instruction{asm.AInstruction{Location: "0"}, asm.CInstruction{Dest: "D", Comp: "A"}}
	},
}

// pointerSegmentResolver builds a LocationResolver entry for a real segment whose base
// address lives in a Hack register (LCL, ARG, THIS, THAT), leaving that base in 'D'.
func pointerSegmentResolver(register string) func(uint16) []asm.Instruction {
	return func(uint16) []asm.Instruction {
		return []asm.Instruction{asm.AInstruction{Location: register}, asm.CInstruction{Dest: "D", Comp: "M"}}
	}
}

// IntrinsicResolver maps an ArithOpType to the asm.Instruction(s) computing the operation
// on the two values already loaded into 'D' (second operand) and 'M' (first operand,
// the stack's top-1 cell), leaving the result in 'M'.
var IntrinsicResolver = map[ArithOpType]func() []asm.Instruction{
	Add: func() []asm.Instruction { return []asm.Instruction{asm.CInstruction{Dest: "M", Comp: "D+M"}} },
	Sub: func() []asm.Instruction { return []asm.Instruction{asm.CInstruction{Dest: "M", Comp: "M-D"}} },
	And: func() []asm.Instruction { return []asm.Instruction{asm.CInstruction{Dest: "M", Comp: "D&M"}} },
	Or:  func() []asm.Instruction { return []asm.Instruction{asm.CInstruction{Dest: "M", Comp: "D|M"}} },
}

// comparisonJump maps the three comparison ArithOpType to the C Instruction jump
// bit-code that should fire when the comparison holds.
var comparisonJump = map[ArithOpType]string{Eq: "JEQ", Gt: "JGT", Lt: "JLT"}

// ----------------------------------------------------------------------------
// Vm Lowerer

// The Lowerer takes a 'vm.Program' (one Module per translation unit) and produces its
// 'asm.Program' counterpart, implementing the full Hack calling convention (labels are
// scoped to their enclosing function, and 'call'/'function'/'return' manage the frame
// protocol through R13 as a scratch FRAME pointer).
type Lowerer struct {
	program Program

	currentModule   string // Name of the module/translation-unit currently being lowered, used to scope 'static' vars
	currentFunction string // Fully qualified name of the function currently being lowered, used to scope labels
	uniqueCounter   int    // Monotonic counter used to keep generated labels (comparisons, call sites) unique
}

// NewLowerer initializes and returns to the caller a brand new 'Lowerer' struct.
func NewLowerer(p Program) Lowerer {
	return Lowerer{program: p}
}

// Lowerer triggers the lowering process on every module of the program. Modules are
// visited in name order purely so the resulting .asm output is reproducible across runs.
func (l *Lowerer) Lowerer() (asm.Program, error) {
	if len(l.program) == 0 {
		return nil, fmt.Errorf("the given 'program' is empty")
	}

	names := make([]string, 0, len(l.program))
	for name := range l.program {
		names = append(names, name)
	}
	sort.Strings(names)

	program := asm.Program{}
	for _, name := range names {
		l.currentModule = name
		for _, operation := range l.program[name] {
			inst, err := l.handleOperation(operation)
			if err != nil {
				return nil, fmt.Errorf("error lowering module '%s': %w", name, err)
			}
			program = append(program, inst...)
		}
	}

	return program, nil
}

func (l *Lowerer) handleOperation(operation Operation) ([]asm.Instruction, error) {
	switch tOp := operation.(type) {
	case MemoryOp:
		return l.handleMemoryOp(tOp)
	case ArithmeticOp:
		return l.handleArithmeticOp(tOp)
	case LabelDecl:
		return l.handleLabelDecl(tOp)
	case GotoOp:
		return l.handleGotoOp(tOp)
	case FuncDecl:
		return l.handleFuncDecl(tOp)
	case FuncCallOp:
		return l.handleFuncCallOp(tOp)
	case ReturnOp:
		return l.handleReturnOp(tOp)
	default:
		return nil, fmt.Errorf("unrecognized operation '%T'", operation)
	}
}

// nextLabel allocates a fresh, program-wide unique label suffix.
func (l *Lowerer) nextLabel(prefix string) string {
	l.uniqueCounter++
	return fmt.Sprintf("%s_%d", prefix, l.uniqueCounter)
}

// scopedLabel mangles a label declared inside a function with the function's own name,
// since VM labels are only meaningful within the function that declares them.
func (l *Lowerer) scopedLabel(label string) string {
	if l.currentFunction == "" {
		return label
	}
	return fmt.Sprintf("%s$%s", l.currentFunction, label)
}

// ----------------------------------------------------------------------------
// Stack helpers shared by every operation below

func pushD() []asm.Instruction {
	return []asm.Instruction{
		asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "A", Comp: "M"}, asm.CInstruction{Dest: "M", Comp: "D"},
		asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "M", Comp: "M+1"},
	}
}

func popD() []asm.Instruction {
	return []asm.Instruction{asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "AM", Comp: "M-1"}, asm.CInstruction{Dest: "D", Comp: "M"}}
}

// ----------------------------------------------------------------------------
// Memory Op

func (l *Lowerer) handleMemoryOp(op MemoryOp) ([]asm.Instruction, error) {
	resolver, ok := LocationResolver[op.Segment]
	if !ok {
		return nil, fmt.Errorf("unrecognized segment '%s'", op.Segment)
	}

	switch op.Operation {
	case Push:
		return l.handlePush(op, resolver)
	case Pop:
		return l.handlePop(op, resolver)
	default:
		return nil, fmt.Errorf("unrecognized OperationType '%s'", op.Operation)
	}
}

func (l *Lowerer) handlePush(op MemoryOp, resolver func(uint16) []asm.Instruction) ([]asm.Instruction, error) {
	if op.Segment == Constant {
		inst := resolver(op.Offset)
		return append(inst, pushD()...), nil
	}

	if op.Segment == Static {
		inst := []asm.Instruction{asm.AInstruction{Location: l.staticSymbol(op.Offset)}, asm.CInstruction{Dest: "D", Comp: "M"}}
		return append(inst, pushD()...), nil
	}

	if op.Segment == Pointer {
		register := "THIS"
		if op.Offset == 1 {
			register = "THAT"
		}
		inst := []asm.Instruction{asm.AInstruction{Location: register}, asm.CInstruction{Dest: "D", Comp: "M"}}
		return append(inst, pushD()...), nil
	}

	// Real indexable segments (local, argument, this, that, temp): base + offset
	inst := resolver(op.Offset)
	inst = append(inst,
		asm.AInstruction{Location: fmt.Sprint(op.Offset)}, asm.CInstruction{Dest: "A", Comp: "D+A"}, asm.CInstruction{Dest: "D", Comp: "M"},
	)
	return append(inst, pushD()...), nil
}

// staticSymbol builds the module-scoped symbol name a 'static' segment access resolves
// to, mirroring the "Foo.i" convention (static variables are shared within a module only).
func (l *Lowerer) staticSymbol(offset uint16) string {
	if l.currentModule == "" {
		return fmt.Sprintf("Static.%d", offset)
	}
	return fmt.Sprintf("%s.%d", l.currentModule, offset)
}

func (l *Lowerer) handlePop(op MemoryOp, resolver func(uint16) []asm.Instruction) ([]asm.Instruction, error) {
	if op.Segment == Constant {
		return nil, fmt.Errorf("cannot 'pop' into the virtual 'constant' segment")
	}

	if op.Segment == Static {
		inst := popD()
		return append(inst, asm.AInstruction{Location: l.staticSymbol(op.Offset)}, asm.CInstruction{Dest: "M", Comp: "D"}), nil
	}

	if op.Segment == Pointer {
		register := "THIS"
		if op.Offset == 1 {
			register = "THAT"
		}
		inst := popD()
		return append(inst, asm.AInstruction{Location: register}, asm.CInstruction{Dest: "M", Comp: "D"}), nil
	}

	// Real indexable segments: resolve target address into R13, pop into D, then store.
	inst := resolver(op.Offset)
	inst = append(inst,
		asm.AInstruction{Location: fmt.Sprint(op.Offset)}, asm.CInstruction{Dest: "D", Comp: "D+A"},
		asm.AInstruction{Location: "R13"}, asm.CInstruction{Dest: "M", Comp: "D"},
	)
	inst = append(inst, popD()...)
	inst = append(inst, asm.AInstruction{Location: "R13"}, asm.CInstruction{Dest: "A", Comp: "M"}, asm.CInstruction{Dest: "M", Comp: "D"})
	return inst, nil
}

// ----------------------------------------------------------------------------
// Arithmetic Op

func (l *Lowerer) handleArithmeticOp(op ArithmeticOp) ([]asm.Instruction, error) {
	switch op.Operation {
	case Neg:
		return []asm.Instruction{asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "A", Comp: "M-1"}, asm.CInstruction{Dest: "M", Comp: "-M"}}, nil
	case Not:
		return []asm.Instruction{asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "A", Comp: "M-1"}, asm.CInstruction{Dest: "M", Comp: "!M"}}, nil
	case Add, Sub, And, Or:
		binOp, ok := IntrinsicResolver[op.Operation]
		if !ok {
			return nil, fmt.Errorf("unrecognized binary ArithOpType '%s'", op.Operation)
		}
		inst := []asm.Instruction{
			asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "AM", Comp: "M-1"}, asm.CInstruction{Dest: "D", Comp: "M"},
			asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "A", Comp: "M-1"},
		}
		return append(inst, binOp()...), nil
	case Eq, Gt, Lt:
		return l.handleComparisonOp(op)
	default:
		return nil, fmt.Errorf("unrecognized ArithOpType '%s'", op.Operation)
	}
}

func (l *Lowerer) handleComparisonOp(op ArithmeticOp) ([]asm.Instruction, error) {
	jump, ok := comparisonJump[op.Operation]
	if !ok {
		return nil, fmt.Errorf("unrecognized comparison ArithOpType '%s'", op.Operation)
	}

	trueLabel, endLabel := l.nextLabel("COMP_TRUE"), l.nextLabel("COMP_END")

	return []asm.Instruction{
		asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "AM", Comp: "M-1"}, asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "A", Comp: "M-1"}, asm.CInstruction{Dest: "D", Comp: "M-D"},
		asm.AInstruction{Location: trueLabel}, asm.CInstruction{Comp: "D", Jump: jump},
		asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "A", Comp: "M-1"}, asm.CInstruction{Dest: "M", Comp: "0"},
		asm.AInstruction{Location: endLabel}, asm.CInstruction{Comp: "0", Jump: "JMP"},
		asm.LabelDecl{Name: trueLabel},
		asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "A", Comp: "M-1"}, asm.CInstruction{Dest: "M", Comp: "-1"},
		asm.LabelDecl{Name: endLabel},
	}, nil
}

// ----------------------------------------------------------------------------
// Label & Goto Op

func (l *Lowerer) handleLabelDecl(op LabelDecl) ([]asm.Instruction, error) {
	if op.Name == "" {
		return nil, fmt.Errorf("unable to lower an empty label declaration")
	}
	return []asm.Instruction{asm.LabelDecl{Name: l.scopedLabel(op.Name)}}, nil
}

func (l *Lowerer) handleGotoOp(op GotoOp) ([]asm.Instruction, error) {
	if op.Label == "" {
		return nil, fmt.Errorf("unable to lower a jump to an empty label")
	}

	target := asm.AInstruction{Location: l.scopedLabel(op.Label)}

	switch op.Jump {
	case Unconditional:
		return []asm.Instruction{target, asm.CInstruction{Comp: "0", Jump: "JMP"}}, nil
	case Conditional:
		inst := popD()
		return append(inst, target, asm.CInstruction{Comp: "D", Jump: "JNE"}), nil
	default:
		return nil, fmt.Errorf("unrecognized JumpType '%s'", op.Jump)
	}
}

// ----------------------------------------------------------------------------
// Function Op(s)

func (l *Lowerer) handleFuncDecl(op FuncDecl) ([]asm.Instruction, error) {
	if op.Name == "" {
		return nil, fmt.Errorf("unable to lower an empty function declaration")
	}

	l.currentFunction = op.Name
	inst := []asm.Instruction{asm.LabelDecl{Name: op.Name}}

	for i := uint8(0); i < op.NLocal; i++ {
		inst = append(inst,
			asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "A", Comp: "M"}, asm.CInstruction{Dest: "M", Comp: "0"},
			asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "M", Comp: "M+1"},
		)
	}

	return inst, nil
}

// pushRegister pushes the value of a Hack register (one of LCL, ARG, THIS, THAT) on the
// stack, used while saving the caller's frame ahead of a FuncCallOp.
func pushRegister(register string) []asm.Instruction {
	inst := []asm.Instruction{asm.AInstruction{Location: register}, asm.CInstruction{Dest: "D", Comp: "M"}}
	return append(inst, pushD()...)
}

func (l *Lowerer) handleFuncCallOp(op FuncCallOp) ([]asm.Instruction, error) {
	if op.Name == "" {
		return nil, fmt.Errorf("unable to lower an empty function call")
	}

	retLabel := l.nextLabel(fmt.Sprintf("%s$ret", op.Name))

	inst := []asm.Instruction{asm.AInstruction{Location: retLabel}, asm.CInstruction{Dest: "D", Comp: "A"}}
	inst = append(inst, pushD()...)
	inst = append(inst, pushRegister("LCL")...)
	inst = append(inst, pushRegister("ARG")...)
	inst = append(inst, pushRegister("THIS")...)
	inst = append(inst, pushRegister("THAT")...)

	// ARG = SP - 5 - nArgs
	inst = append(inst,
		asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "5"}, asm.CInstruction{Dest: "D", Comp: "D-A"},
		asm.AInstruction{Location: fmt.Sprint(op.NArgs)}, asm.CInstruction{Dest: "D", Comp: "D-A"},
		asm.AInstruction{Location: "ARG"}, asm.CInstruction{Dest: "M", Comp: "D"},
	)
	// LCL = SP
	inst = append(inst,
		asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "LCL"}, asm.CInstruction{Dest: "M", Comp: "D"},
	)
	// goto Name, then the return label right after
	inst = append(inst,
		asm.AInstruction{Location: op.Name}, asm.CInstruction{Comp: "0", Jump: "JMP"},
		asm.LabelDecl{Name: retLabel},
	)

	return inst, nil
}

// restoreRegister pops the saved value off 'FRAME' (kept in R13, decremented each call)
// into the given register, used while tearing down the callee's frame on return.
func restoreRegister(register string) []asm.Instruction {
	return []asm.Instruction{
		asm.AInstruction{Location: "R13"}, asm.CInstruction{Dest: "AM", Comp: "M-1"}, asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: register}, asm.CInstruction{Dest: "M", Comp: "D"},
	}
}

func (l *Lowerer) handleReturnOp(op ReturnOp) ([]asm.Instruction, error) {
	inst := []asm.Instruction{
		// FRAME (R13) = LCL
		asm.AInstruction{Location: "LCL"}, asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "R13"}, asm.CInstruction{Dest: "M", Comp: "D"},
		// RET (R14) = *(FRAME - 5)
		asm.AInstruction{Location: "5"}, asm.CInstruction{Dest: "A", Comp: "D-A"}, asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "R14"}, asm.CInstruction{Dest: "M", Comp: "D"},
		// *ARG = pop()
		asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "AM", Comp: "M-1"}, asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "ARG"}, asm.CInstruction{Dest: "A", Comp: "M"}, asm.CInstruction{Dest: "M", Comp: "D"},
		// SP = ARG + 1
		asm.AInstruction{Location: "ARG"}, asm.CInstruction{Dest: "D", Comp: "M+1"},
		asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "M", Comp: "D"},
	}

	inst = append(inst, restoreRegister("THAT")...)
	inst = append(inst, restoreRegister("THIS")...)
	inst = append(inst, restoreRegister("ARG")...)
	inst = append(inst, restoreRegister("LCL")...)

	// goto RET
	inst = append(inst, asm.AInstruction{Location: "R14"}, asm.CInstruction{Dest: "A", Comp: "M"}, asm.CInstruction{Comp: "0", Jump: "JMP"})

	return inst, nil
}
