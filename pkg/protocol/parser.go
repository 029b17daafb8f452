package protocol

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cuemby/akonadid/pkg/protoerr"
)

// Parser is a streaming tokenizer over one connection's input: it reads
// atoms, quoted strings, parenthesized lists, and literal-length blocks
// ({N}\r\n<N bytes>) one token at a time rather than a whole command
// line at once. A literal block's N bytes are read into memory in full,
// so an APPEND literal is held whole before it is stored.
type Parser struct {
	r *bufio.Reader
}

func NewParser(r *bufio.Reader) *Parser {
	return &Parser{r: r}
}

func (p *Parser) skipSpaces() error {
	for {
		b, err := p.r.Peek(1)
		if err != nil {
			return err
		}
		if b[0] != ' ' {
			return nil
		}
		p.r.Discard(1)
	}
}

// AtLineEnd reports whether the next bytes are the command terminator,
// without consuming them.
func (p *Parser) AtLineEnd() bool {
	b, err := p.r.Peek(1)
	return err != nil || b[0] == '\r' || b[0] == '\n'
}

// ReadLineEnd consumes the trailing CRLF (or bare LF).
func (p *Parser) ReadLineEnd() error {
	b, err := p.r.ReadByte()
	if err != nil {
		return err
	}
	if b == '\r' {
		b, err = p.r.ReadByte()
		if err != nil {
			return err
		}
	}
	if b != '\n' {
		return protoerr.New(protoerr.Protocol, "expected CRLF")
	}
	return nil
}

// ReadAtom reads an unquoted token up to the next space or line end.
func (p *Parser) ReadAtom() (string, error) {
	if err := p.skipSpaces(); err != nil {
		return "", err
	}
	var sb strings.Builder
	for {
		b, err := p.r.Peek(1)
		if err != nil {
			if err == io.EOF && sb.Len() > 0 {
				return sb.String(), nil
			}
			return "", err
		}
		c := b[0]
		if c == ' ' || c == '\r' || c == '\n' {
			break
		}
		sb.WriteByte(c)
		p.r.Discard(1)
	}
	if sb.Len() == 0 {
		return "", protoerr.New(protoerr.Protocol, "expected an atom")
	}
	return sb.String(), nil
}

// ReadString reads a quoted string ("..."), a literal block
// ({N}\r\n<N bytes>), or falls back to a bare atom.
func (p *Parser) ReadString() (string, error) {
	if err := p.skipSpaces(); err != nil {
		return "", err
	}
	b, err := p.r.Peek(1)
	if err != nil {
		return "", err
	}
	switch b[0] {
	case '"':
		return p.readQuoted()
	case '{':
		return p.readLiteral()
	default:
		return p.ReadAtom()
	}
}

func (p *Parser) readQuoted() (string, error) {
	p.r.Discard(1) // opening quote
	var sb strings.Builder
	for {
		c, err := p.r.ReadByte()
		if err != nil {
			return "", err
		}
		if c == '\\' {
			next, err := p.r.ReadByte()
			if err != nil {
				return "", err
			}
			sb.WriteByte(next)
			continue
		}
		if c == '"' {
			return sb.String(), nil
		}
		sb.WriteByte(c)
	}
}

func (p *Parser) readLiteral() (string, error) {
	p.r.Discard(1) // '{'
	var numBuf strings.Builder
	for {
		c, err := p.r.ReadByte()
		if err != nil {
			return "", err
		}
		if c == '}' {
			break
		}
		numBuf.WriteByte(c)
	}
	n, err := strconv.Atoi(numBuf.String())
	if err != nil {
		return "", protoerr.Wrap(protoerr.Protocol, "bad literal length", err)
	}
	if err := p.ReadLineEnd(); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(p.r, buf); err != nil {
		return "", fmt.Errorf("protocol: read literal body: %w", err)
	}
	return string(buf), nil
}

// ReadList reads a parenthesized, space-separated list of atoms/strings,
// e.g. "(\\Seen \\Flagged)" or "(PLD:RFC822 ATR:header)". Not recursive:
// this server's lists are always flat.
func (p *Parser) ReadList() ([]string, error) {
	if err := p.skipSpaces(); err != nil {
		return nil, err
	}
	b, err := p.r.ReadByte()
	if err != nil {
		return nil, err
	}
	if b != '(' {
		return nil, protoerr.New(protoerr.Protocol, "expected '('")
	}
	var items []string
	for {
		if err := p.skipSpaces(); err != nil {
			return nil, err
		}
		peek, err := p.r.Peek(1)
		if err != nil {
			return nil, err
		}
		if peek[0] == ')' {
			p.r.Discard(1)
			return items, nil
		}
		s, err := p.ReadString()
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
}
