package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFixture(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestVMTranslator(t *testing.T) {
	t.Run("SimpleAdd.vm", func(t *testing.T) {
		dir := t.TempDir()
		input := writeFixture(t, dir, "SimpleAdd.vm", strings.Join([]string{
			"push constant 7",
			"push constant 8",
			"add",
		}, "\n"))
		output := filepath.Join(dir, "SimpleAdd.asm")

		require.Equal(t, 0, Handler([]string{input}, map[string]string{"output": output}))

		compiled, err := os.ReadFile(output)
		require.NoError(t, err)
		require.Contains(t, string(compiled), "M=D+M")
	})

	t.Run("BasicLoop.vm", func(t *testing.T) {
		dir := t.TempDir()
		input := writeFixture(t, dir, "BasicLoop.vm", strings.Join([]string{
			"push constant 0",
			"pop local 0",
			"label LOOP_START",
			"push argument 0",
			"push local 0",
			"add",
			"pop local 0",
			"push argument 0",
			"push constant 1",
			"sub",
			"pop argument 0",
			"push argument 0",
			"if-goto LOOP_START",
			"push local 0",
		}, "\n"))
		output := filepath.Join(dir, "BasicLoop.asm")

		require.Equal(t, 0, Handler([]string{input}, map[string]string{"output": output}))

		compiled, err := os.ReadFile(output)
		require.NoError(t, err)
		require.Contains(t, string(compiled), "(LOOP_START)")
	})

	t.Run("SimpleFunction.vm with bootstrap", func(t *testing.T) {
		dir := t.TempDir()
		input := writeFixture(t, dir, "SimpleFunction.vm", strings.Join([]string{
			"function SimpleFunction.test 2",
			"push argument 0",
			"push argument 1",
			"add",
			"return",
		}, "\n"))
		output := filepath.Join(dir, "SimpleFunction.asm")

		require.Equal(t, 0, Handler([]string{input}, map[string]string{"output": output, "bootstrap": "true"}))

		compiled, err := os.ReadFile(output)
		require.NoError(t, err)

		lines := strings.Split(strings.TrimRight(string(compiled), "\n"), "\n")
		expectedPrelude := []string{"@256", "D=A", "@SP", "M=D", "@Sys.init", "0;JMP"}
		require.GreaterOrEqual(t, len(lines), len(expectedPrelude))
		require.Equal(t, expectedPrelude, lines[:len(expectedPrelude)])
		require.Contains(t, string(compiled), "(SimpleFunction.test)")
	})

	t.Run("missing output option", func(t *testing.T) {
		require.NotEqual(t, 0, Handler([]string{"irrelevant.vm"}, map[string]string{}))
	})
}
