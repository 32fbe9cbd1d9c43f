package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJackCompiler(t *testing.T) {
	t.Run("Function calls and arithmetic", func(t *testing.T) {
		dir := t.TempDir()
		source := strings.Join([]string{
			"class Main {",
			"    function void main() {",
			"        do Main.helper(2, 3);",
			"        return;",
			"    }",
			"",
			"    function int helper(int a, int b) {",
			"        return a + b;",
			"    }",
			"}",
		}, "\n")

		input := filepath.Join(dir, "Main.jack")
		require.NoError(t, os.WriteFile(input, []byte(source), 0644))

		require.Equal(t, 0, Handler([]string{dir}, map[string]string{}))

		compiled, err := os.ReadFile(filepath.Join(dir, "Main.vm"))
		require.NoError(t, err)

		out := string(compiled)
		for _, want := range []string{
			"function Main.main 0",
			"function Main.helper 0",
			"push constant 2",
			"push constant 3",
			"call Main.helper 2",
			"push argument 0",
			"push argument 1",
			"add",
			"return",
		} {
			require.Contains(t, out, want)
		}
	})

	t.Run("Fields and constructor", func(t *testing.T) {
		dir := t.TempDir()
		source := strings.Join([]string{
			"class Point {",
			"    field int x, y;",
			"",
			"    constructor Point new(int ax, int ay) {",
			"        let x = ax;",
			"        let y = ay;",
			"        return this;",
			"    }",
			"",
			"    method int getX() {",
			"        return x;",
			"    }",
			"}",
		}, "\n")

		input := filepath.Join(dir, "Point.jack")
		require.NoError(t, os.WriteFile(input, []byte(source), 0644))

		require.Equal(t, 0, Handler([]string{dir}, map[string]string{}))

		compiled, err := os.ReadFile(filepath.Join(dir, "Point.vm"))
		require.NoError(t, err)

		out := string(compiled)
		for _, want := range []string{
			"function Point.new 0",
			"call Memory.alloc 1",
			"pop pointer 0",
			"pop this 0",
			"pop this 1",
			"function Point.getX 0",
			"push this 0",
		} {
			require.Contains(t, out, want)
		}
	})

	t.Run("no input provided", func(t *testing.T) {
		require.NotEqual(t, 0, Handler([]string{}, map[string]string{}))
	})
}
