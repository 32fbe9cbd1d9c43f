package token_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"its-hmny.dev/nand2tetris/pkg/token"
)

func tokenize(t *testing.T, source string) []token.Token {
	t.Helper()
	tz, err := token.NewTokenizer(strings.NewReader(source))
	require.NoError(t, err)

	tokens, err := tz.Tokenize()
	require.NoError(t, err)
	return tokens
}

func TestTokenize(t *testing.T) {
	t.Run("keywords, identifiers and symbols", func(t *testing.T) {
		tokens := tokenize(t, "class Main { field int x; }")
		require.Equal(t, []token.Token{
			{Kind: token.Keyword, Value: "class", Line: 1},
			{Kind: token.Identifier, Value: "Main", Line: 1},
			{Kind: token.Symbol, Value: "{", Line: 1},
			{Kind: token.Keyword, Value: "field", Line: 1},
			{Kind: token.Keyword, Value: "int", Line: 1},
			{Kind: token.Identifier, Value: "x", Line: 1},
			{Kind: token.Symbol, Value: ";", Line: 1},
			{Kind: token.Symbol, Value: "}", Line: 1},
		}, tokens)
	})

	t.Run("integer constants", func(t *testing.T) {
		tokens := tokenize(t, "42")
		require.Equal(t, []token.Token{{Kind: token.IntConst, Value: "42", Line: 1}}, tokens)
	})

	t.Run("string constants allow any printable character but a quote", func(t *testing.T) {
		tokens := tokenize(t, `"hello, world! 123"`)
		require.Equal(t, []token.Token{{Kind: token.StringConst, Value: "hello, world! 123", Line: 1}}, tokens)
	})

	t.Run("unterminated string literal is rejected", func(t *testing.T) {
		tz, err := token.NewTokenizer(strings.NewReader(`"oops`))
		require.NoError(t, err)
		_, err = tz.Tokenize()
		require.Error(t, err)
	})

	t.Run("string literal cannot span multiple lines", func(t *testing.T) {
		tz, err := token.NewTokenizer(strings.NewReader("\"oops\nstill open\""))
		require.NoError(t, err)
		_, err = tz.Tokenize()
		require.Error(t, err)
	})

	t.Run("line comments and block comments are stripped, lines still tracked", func(t *testing.T) {
		source := strings.Join([]string{
			"// a leading comment",
			"let x = 1; /* trailing */",
			"/** doc comment",
			" * spanning multiple lines */",
			"let y = 2;",
		}, "\n")

		tokens := tokenize(t, source)
		require.Equal(t, []token.Token{
			{Kind: token.Keyword, Value: "let", Line: 2}, {Kind: token.Identifier, Value: "x", Line: 2},
			{Kind: token.Symbol, Value: "=", Line: 2}, {Kind: token.IntConst, Value: "1", Line: 2},
			{Kind: token.Symbol, Value: ";", Line: 2},
			{Kind: token.Keyword, Value: "let", Line: 5}, {Kind: token.Identifier, Value: "y", Line: 5},
			{Kind: token.Symbol, Value: "=", Line: 5}, {Kind: token.IntConst, Value: "2", Line: 5},
			{Kind: token.Symbol, Value: ";", Line: 5},
		}, tokens)
	})

	t.Run("unrecognized character is rejected", func(t *testing.T) {
		tz, err := token.NewTokenizer(strings.NewReader("let x = @;"))
		require.NoError(t, err)
		_, err = tz.Tokenize()
		require.Error(t, err)
	})
}
