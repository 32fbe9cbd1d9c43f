package main

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/teris-io/cli"
	"its-hmny.dev/nand2tetris/pkg/asm"
	"its-hmny.dev/nand2tetris/pkg/hack"
	"its-hmny.dev/nand2tetris/pkg/jack"
	"its-hmny.dev/nand2tetris/pkg/utils"
	"its-hmny.dev/nand2tetris/pkg/vm"
)

var Description = strings.ReplaceAll(`
The nand2tetris Compiler chains the Jack Compiler, the VM Translator and the Hack Assembler
into a single pass: given one or more directories of .jack sources it produces one .hack binary,
bootstrapping the VM's entrypoint ('SP=256' then a jump to Sys.init, no call frame is pushed) along the way.
`, "\n", " ")

var N2TC = cli.New(Description).
	// 'AsOptional()' allows to have more than one input directory/file
	WithArg(cli.NewArg("inputs", "The source (.jack) files/directories to be compiled").
		AsOptional().WithType(cli.TypeString)).
	WithOption(cli.NewOption("output", "The final binary output (.hack), defaults to '<first input>.hack'").
		WithType(cli.TypeString)).
	WithOption(cli.NewOption("stdlib", "Uses the built-in ABI of the standard library for lowering").
		WithType(cli.TypeBool)).
	WithOption(cli.NewOption("keep-intermediate", "Also writes out the intermediate .vm and .asm files").
		WithType(cli.TypeBool)).
	WithOption(cli.NewOption("typecheck", "Runs a shallow typecheck pass before lowering, failing fast on unresolved names").
		WithType(cli.TypeBool)).
	WithAction(Handler)

func Handler(args []string, options map[string]string) int {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "ERROR: Not enough arguments provided, use --help\n")
		return -1
	}

	_, keepIntermediate := options["keep-intermediate"]

	output := options["output"]
	if output == "" {
		output = fmt.Sprintf("%s.hack", strings.TrimSuffix(args[0], filepath.Ext(args[0])))
	}

	// --- Pass 1: Jack -> VM -------------------------------------------------

	// The aggregation of all Translation Units (TUs) found walking the inputs, and the
	// jack.Program they parse into (one jack.Class per TU, keyed by its file name).
	TUs, program := []string{}, jack.Program{}

	for _, input := range args {
		filepath.Walk(input, func(p string, info fs.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() || filepath.Ext(p) != ".jack" {
				return nil // We recurse on dirs and ignore other filetypes
			}
			TUs = append(TUs, p)
			return nil
		})
	}

	if len(TUs) == 0 {
		fmt.Fprintf(os.Stderr, "ERROR: No '.jack' source file found in the given input(s)\n")
		return -1
	}

	for _, tu := range TUs {
		content, err := os.ReadFile(tu)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: Unable to open input file: %s\n", err)
			return -1
		}

		parser := jack.NewParser(bytes.NewReader(content))
		filename, extension := path.Base(tu), path.Ext(tu)
		program[strings.TrimSuffix(filename, extension)], err = parser.Parse()
		if err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: Unable to complete 'parsing' pass: %s\n", err)
			return -1
		}
	}

	// Adds the stdlib ABI so calls into Math/String/Array/... resolve without those
	// classes being present on disk (same wiring as 'jackc --stdlib').
	if _, enabled := options["stdlib"]; enabled {
		for name, abi := range jack.StandardLibraryABI {
			def := jack.Class{Name: name, Subroutines: utils.NewOrderedMap[string, jack.Subroutine]()}
			for _, entry := range abi.Subroutines.Entries() {
				def.Subroutines.Set(entry.Key, entry.Value)
			}
			program[name] = def
		}
	}

	if _, enabled := options["typecheck"]; enabled {
		checker := jack.NewTypeChecker(program)
		if _, err := checker.Check(); err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: Unable to complete 'typecheck' pass: %s\n", err)
			return -1
		}
	}

	jackLowerer := jack.NewLowerer(program)
	vmProgram, err := jackLowerer.Lowerer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Unable to complete Jack 'lowering' pass: %s\n", err)
		return -1
	}

	if keepIntermediate {
		vmCodegen := vm.NewCodeGenerator(vmProgram)
		compiled, err := vmCodegen.Generate()
		if err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: Unable to complete VM 'codegen' pass: %s\n", err)
			return -1
		}

		for _, tu := range TUs {
			filename, extension := path.Base(tu), path.Ext(tu)
			module, ok := compiled[strings.TrimSuffix(filename, extension)]
			if !ok {
				continue
			}
			if err := writeLines(fmt.Sprintf("%s.vm", strings.TrimSuffix(tu, extension)), module); err != nil {
				fmt.Fprintf(os.Stderr, "ERROR: Unable to write intermediate '.vm' file: %s\n", err)
				return -1
			}
		}
	}

	// --- Pass 2: VM -> Asm (always bootstrapped) -----------------------------

	vmLowerer := vm.NewLowerer(vmProgram)
	asmProgram, err := vmLowerer.Lowerer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Unable to complete VM 'lowering' pass: %s\n", err)
		return -1
	}

	// Sets the Stack Pointer to its base location and jumps to Sys.init, same
	// prelude 'vmc --bootstrap' prepends.
	asmProgram = append([]asm.Instruction{
		asm.AInstruction{Location: "256"},
		asm.CInstruction{Dest: "D", Comp: "A"},
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "M", Comp: "D"},
		asm.AInstruction{Location: "Sys.init"},
		asm.CInstruction{Comp: "0", Jump: "JMP"},
	}, asmProgram...)

	if keepIntermediate {
		asmCodegen := asm.NewCodeGenerator(asmProgram)
		compiled, err := asmCodegen.Generate()
		if err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: Unable to complete Asm 'codegen' pass: %s\n", err)
			return -1
		}
		asmPath := strings.TrimSuffix(output, ".hack") + ".asm"
		if err := writeLines(asmPath, compiled); err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: Unable to write intermediate '.asm' file: %s\n", err)
			return -1
		}
	}

	// --- Pass 3: Asm -> Hack --------------------------------------------------

	asmLowerer := asm.NewLowerer(asmProgram)
	hackProgram, table, err := asmLowerer.Lower()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Unable to complete Hack 'lowering' pass: %s\n", err)
		return -1
	}

	hackCodegen := hack.NewCodeGenerator(hackProgram, table)
	compiled, err := hackCodegen.Generate()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Unable to complete Hack 'codegen' pass: %s\n", err)
		return -1
	}

	if err := writeLines(output, compiled); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Unable to write output file: %s\n", err)
		return -1
	}

	return 0
}

// writeLines creates (or truncates) 'path' and dumps 'lines' to it, one per line.
func writeLines(path string, lines []string) error {
	output, err := os.Create(path)
	if err != nil {
		return err
	}
	defer output.Close()

	for _, line := range lines {
		if _, err := fmt.Fprintf(output, "%s\n", line); err != nil {
			return err
		}
	}
	return nil
}

func main() { os.Exit(N2TC.Run(os.Args, os.Stdout)) }
