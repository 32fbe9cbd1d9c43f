package vm_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"its-hmny.dev/nand2tetris/pkg/asm"
	"its-hmny.dev/nand2tetris/pkg/vm"
)

func TestLowerMemoryOp(t *testing.T) {
	t.Run("push constant", func(t *testing.T) {
		program := vm.Program{"Main": vm.Module{vm.MemoryOp{Operation: vm.Push, Segment: vm.Constant, Offset: 7}}}
		lowerer := vm.NewLowerer(program)

		lowered, err := lowerer.Lowerer()
		require.NoError(t, err)
		require.Equal(t, asm.Program{
			asm.AInstruction{Location: "7"}, asm.CInstruction{Dest: "D", Comp: "A"},
			asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "A", Comp: "M"}, asm.CInstruction{Dest: "M", Comp: "D"},
			asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "M", Comp: "M+1"},
		}, lowered)
	})

	t.Run("pop into constant is rejected", func(t *testing.T) {
		program := vm.Program{"Main": vm.Module{vm.MemoryOp{Operation: vm.Pop, Segment: vm.Constant, Offset: 0}}}
		lowerer := vm.NewLowerer(program)

		_, err := lowerer.Lowerer()
		require.Error(t, err)
	})

	t.Run("static variables are scoped per module", func(t *testing.T) {
		program := vm.Program{
			"Foo": vm.Module{vm.MemoryOp{Operation: vm.Push, Segment: vm.Static, Offset: 0}},
			"Bar": vm.Module{vm.MemoryOp{Operation: vm.Push, Segment: vm.Static, Offset: 0}},
		}
		lowerer := vm.NewLowerer(program)

		lowered, err := lowerer.Lowerer()
		require.NoError(t, err)

		var symbols []string
		for _, inst := range lowered {
			if a, ok := inst.(asm.AInstruction); ok && (a.Location == "Foo.0" || a.Location == "Bar.0") {
				symbols = append(symbols, a.Location)
			}
		}
		require.ElementsMatch(t, []string{"Foo.0", "Bar.0"}, symbols)
	})
}

func TestLowerArithmeticOp(t *testing.T) {
	t.Run("binary operation reads from D and M", func(t *testing.T) {
		program := vm.Program{"Main": vm.Module{vm.ArithmeticOp{Operation: vm.Add}}}
		lowerer := vm.NewLowerer(program)

		lowered, err := lowerer.Lowerer()
		require.NoError(t, err)
		require.Contains(t, lowered, asm.CInstruction{Dest: "M", Comp: "D+M"})
	})

	t.Run("comparison operations produce unique labels", func(t *testing.T) {
		program := vm.Program{"Main": vm.Module{
			vm.ArithmeticOp{Operation: vm.Eq},
			vm.ArithmeticOp{Operation: vm.Eq},
		}}
		lowerer := vm.NewLowerer(program)

		lowered, err := lowerer.Lowerer()
		require.NoError(t, err)

		var labels []string
		for _, inst := range lowered {
			if l, ok := inst.(asm.LabelDecl); ok {
				labels = append(labels, l.Name)
			}
		}
		require.Len(t, labels, 4) // 2 comparisons * (TRUE + END) label each
		require.Equal(t, len(labels), len(uniqueStrings(labels)))
	})
}

func TestLowerLabelsAndGoto(t *testing.T) {
	t.Run("label outside any function is left bare", func(t *testing.T) {
		program := vm.Program{"Main": vm.Module{vm.LabelDecl{Name: "LOOP"}}}
		lowerer := vm.NewLowerer(program)

		lowered, err := lowerer.Lowerer()
		require.NoError(t, err)
		require.Equal(t, asm.Program{asm.LabelDecl{Name: "LOOP"}}, lowered)
	})

	t.Run("label inside a function is mangled with the function name", func(t *testing.T) {
		program := vm.Program{"Main": vm.Module{
			vm.FuncDecl{Name: "Main.loop", NLocal: 0},
			vm.LabelDecl{Name: "LOOP"},
			vm.GotoOp{Jump: vm.Unconditional, Label: "LOOP"},
		}}
		lowerer := vm.NewLowerer(program)

		lowered, err := lowerer.Lowerer()
		require.NoError(t, err)
		require.Contains(t, lowered, asm.LabelDecl{Name: "Main.loop$LOOP"})
		require.Contains(t, lowered, asm.AInstruction{Location: "Main.loop$LOOP"})
	})

	t.Run("if-goto pops the stack before branching", func(t *testing.T) {
		program := vm.Program{"Main": vm.Module{vm.GotoOp{Jump: vm.Conditional, Label: "END"}}}
		lowerer := vm.NewLowerer(program)

		lowered, err := lowerer.Lowerer()
		require.NoError(t, err)
		require.Equal(t, asm.Program{
			asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "AM", Comp: "M-1"}, asm.CInstruction{Dest: "D", Comp: "M"},
			asm.AInstruction{Location: "END"}, asm.CInstruction{Comp: "D", Jump: "JNE"},
		}, lowered)
	})
}

func TestLowerFunctionCallingConvention(t *testing.T) {
	t.Run("function declaration zero-initializes its locals", func(t *testing.T) {
		program := vm.Program{"Main": vm.Module{vm.FuncDecl{Name: "Main.test", NLocal: 2}}}
		lowerer := vm.NewLowerer(program)

		lowered, err := lowerer.Lowerer()
		require.NoError(t, err)
		require.Equal(t, asm.LabelDecl{Name: "Main.test"}, lowered[0])

		pushZero := []asm.Instruction{
			asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "A", Comp: "M"}, asm.CInstruction{Dest: "M", Comp: "0"},
			asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "M", Comp: "M+1"},
		}
		require.Equal(t, append(append([]asm.Instruction{}, pushZero...), pushZero...), lowered[1:])
	})

	t.Run("call saves the caller frame and jumps to the callee", func(t *testing.T) {
		program := vm.Program{"Main": vm.Module{vm.FuncCallOp{Name: "Math.multiply", NArgs: 2}}}
		lowerer := vm.NewLowerer(program)

		lowered, err := lowerer.Lowerer()
		require.NoError(t, err)

		// Jumps to the callee right before the return label is declared
		require.Equal(t, asm.AInstruction{Location: "Math.multiply"}, lowered[len(lowered)-3])
		require.Equal(t, asm.CInstruction{Comp: "0", Jump: "JMP"}, lowered[len(lowered)-2])
		if _, ok := lowered[len(lowered)-1].(asm.LabelDecl); !ok {
			t.Fatalf("expected the last instruction to be the return site label, got %T", lowered[len(lowered)-1])
		}

		// ARG is recomputed relative to the current stack pointer, accounting for nArgs
		require.Contains(t, lowered, asm.AInstruction{Location: "2"})
		require.Contains(t, lowered, asm.AInstruction{Location: "ARG"})
	})

	t.Run("return restores the caller frame and jumps back", func(t *testing.T) {
		program := vm.Program{"Main": vm.Module{vm.ReturnOp{}}}
		lowerer := vm.NewLowerer(program)

		lowered, err := lowerer.Lowerer()
		require.NoError(t, err)

		require.Contains(t, lowered, asm.AInstruction{Location: "THAT"})
		require.Contains(t, lowered, asm.AInstruction{Location: "THIS"})
		require.Contains(t, lowered, asm.AInstruction{Location: "ARG"})
		require.Contains(t, lowered, asm.AInstruction{Location: "LCL"})
		require.Equal(t, asm.AInstruction{Location: "R14"}, lowered[len(lowered)-3])
		require.Equal(t, asm.CInstruction{Dest: "A", Comp: "M"}, lowered[len(lowered)-2])
		require.Equal(t, asm.CInstruction{Comp: "0", Jump: "JMP"}, lowered[len(lowered)-1])
	})
}

func uniqueStrings(values []string) []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, v := range values {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}
