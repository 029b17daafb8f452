package protocol

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func newParser(input string) *Parser {
	return NewParser(bufio.NewReader(strings.NewReader(input)))
}

func TestReadAtom(t *testing.T) {
	p := newParser("A1 LOGIN\r\n")
	tag, err := p.ReadAtom()
	require.NoError(t, err)
	require.Equal(t, "A1", tag)
	verb, err := p.ReadAtom()
	require.NoError(t, err)
	require.Equal(t, "LOGIN", verb)
	require.True(t, p.AtLineEnd())
}

func TestReadStringQuoted(t *testing.T) {
	p := newParser(`"hello world" rest`)
	s, err := p.ReadString()
	require.NoError(t, err)
	require.Equal(t, "hello world", s)
}

func TestReadStringQuotedEscapes(t *testing.T) {
	p := newParser(`"a\"b\\c"`)
	s, err := p.ReadString()
	require.NoError(t, err)
	require.Equal(t, `a"b\c`, s)
}

func TestReadStringLiteral(t *testing.T) {
	p := newParser("{5}\r\nhello more")
	s, err := p.ReadString()
	require.NoError(t, err)
	require.Equal(t, "hello", s)
	rest, err := p.ReadAtom()
	require.NoError(t, err)
	require.Equal(t, "more", rest)
}

func TestReadStringBareFallsBackToAtom(t *testing.T) {
	p := newParser("UID\r\n")
	s, err := p.ReadString()
	require.NoError(t, err)
	require.Equal(t, "UID", s)
}

func TestReadList(t *testing.T) {
	p := newParser("(PLD:RFC822 ATR:header)\r\n")
	items, err := p.ReadList()
	require.NoError(t, err)
	require.Equal(t, []string{"PLD:RFC822", "ATR:header"}, items)
}

func TestReadListEmpty(t *testing.T) {
	p := newParser("()\r\n")
	items, err := p.ReadList()
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestReadListRejectsMissingOpenParen(t *testing.T) {
	p := newParser("PLD:RFC822)\r\n")
	_, err := p.ReadList()
	require.Error(t, err)
}

func TestReadLineEndAcceptsBareLF(t *testing.T) {
	p := newParser("\n")
	require.NoError(t, p.ReadLineEnd())
}
