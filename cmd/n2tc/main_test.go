package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestN2TC(t *testing.T) {
	t.Run("end to end compiles a directory of .jack files to .hack", func(t *testing.T) {
		dir := t.TempDir()
		source := strings.Join([]string{
			"class Main {",
			"    function int add(int a, int b) {",
			"        return a + b;",
			"    }",
			"",
			"    function void main() {",
			"        do Main.add(2, 3);",
			"        return;",
			"    }",
			"}",
		}, "\n")

		require.NoError(t, os.WriteFile(filepath.Join(dir, "Main.jack"), []byte(source), 0644))

		output := filepath.Join(dir, "Main.hack")
		require.Equal(t, 0, Handler([]string{dir}, map[string]string{"output": output, "stdlib": "true"}))

		compiled, err := os.ReadFile(output)
		require.NoError(t, err)

		lines := strings.Split(strings.TrimRight(string(compiled), "\n"), "\n")
		require.NotEmpty(t, lines)
		for _, line := range lines {
			require.Len(t, line, 16)
		}
	})

	t.Run("keep-intermediate also writes the .vm and .asm passes", func(t *testing.T) {
		dir := t.TempDir()
		source := strings.Join([]string{
			"class Main {",
			"    function void main() {",
			"        return;",
			"    }",
			"}",
		}, "\n")

		require.NoError(t, os.WriteFile(filepath.Join(dir, "Main.jack"), []byte(source), 0644))

		output := filepath.Join(dir, "Main.hack")
		require.Equal(t, 0, Handler([]string{dir}, map[string]string{"output": output, "keep-intermediate": "true"}))

		_, err := os.ReadFile(filepath.Join(dir, "Main.vm"))
		require.NoError(t, err)
		_, err = os.ReadFile(filepath.Join(dir, "Main.asm"))
		require.NoError(t, err)
		_, err = os.ReadFile(output)
		require.NoError(t, err)
	})

	t.Run("no input provided", func(t *testing.T) {
		require.NotEqual(t, 0, Handler([]string{}, map[string]string{}))
	})

	t.Run("no .jack source found", func(t *testing.T) {
		dir := t.TempDir()
		require.NotEqual(t, 0, Handler([]string{dir}, map[string]string{"output": filepath.Join(dir, "out.hack")}))
	})
}
