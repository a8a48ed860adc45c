package kv

import (
	"fmt"
	"strings"

	"github.com/starford/cloudshelf/internal/apperr"
)

// UnmarshalText decodes a text keyed-value document such as loginusers.vdf.
// Only string and object nodes are produced. When rootName is not empty the
// root key must match it.
func UnmarshalText(data []byte, rootName string) (*Node, error) {
	l := &lexer{src: string(data)}

	tok, err := l.next()
	if err != nil {
		return nil, err
	}
	if tok.kind != tokString {
		return nil, l.errorf(tok.at, "expected root key")
	}
	if rootName != "" && tok.text != rootName {
		return nil, apperr.NewFormatError("unexpected root %q, want %q", tok.text, rootName)
	}
	open, err := l.next()
	if err != nil {
		return nil, err
	}
	if open.kind != tokOpen {
		return nil, l.errorf(open.at, "expected '{' after root key")
	}
	children, err := l.readObject(1)
	if err != nil {
		return nil, err
	}
	return &Node{Name: tok.text, Kind: KindObject, Children: children}, nil
}

type tokKind int

const (
	tokEOF tokKind = iota
	tokString
	tokOpen
	tokClose
	tokCond
)

type token struct {
	kind tokKind
	text string
	at   int
}

type lexer struct {
	src string
	pos int
}

func (l *lexer) errorf(at int, format string, args ...any) error {
	return &apperr.FormatError{Offset: int64(at), Msg: fmt.Sprintf(format, args...)}
}

func (l *lexer) skipSpaceAndComments() {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			l.pos++
		case strings.HasPrefix(l.src[l.pos:], "//"):
			nl := strings.IndexByte(l.src[l.pos:], '\n')
			if nl < 0 {
				l.pos = len(l.src)
			} else {
				l.pos += nl + 1
			}
		default:
			return
		}
	}
}

func (l *lexer) next() (token, error) {
	l.skipSpaceAndComments()
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, at: l.pos}, nil
	}
	start := l.pos
	switch c := l.src[l.pos]; c {
	case '{':
		l.pos++
		return token{kind: tokOpen, at: start}, nil
	case '}':
		l.pos++
		return token{kind: tokClose, at: start}, nil
	case '[':
		end := strings.IndexByte(l.src[l.pos:], ']')
		if end < 0 {
			return token{}, l.errorf(start, "unterminated conditional")
		}
		l.pos += end + 1
		return token{kind: tokCond, text: l.src[start:l.pos], at: start}, nil
	case '"':
		return l.quoted()
	default:
		for l.pos < len(l.src) && !strings.ContainsRune(" \t\r\n{}\"", rune(l.src[l.pos])) {
			l.pos++
		}
		return token{kind: tokString, text: l.src[start:l.pos], at: start}, nil
	}
}

func (l *lexer) quoted() (token, error) {
	start := l.pos
	l.pos++
	var b strings.Builder
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch c {
		case '"':
			l.pos++
			return token{kind: tokString, text: b.String(), at: start}, nil
		case '\\':
			if l.pos+1 >= len(l.src) {
				return token{}, l.errorf(l.pos, "dangling escape")
			}
			l.pos++
			switch e := l.src[l.pos]; e {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case '\\', '"':
				b.WriteByte(e)
			default:
				b.WriteByte('\\')
				b.WriteByte(e)
			}
		default:
			b.WriteByte(c)
		}
		l.pos++
	}
	return token{}, l.errorf(start, "unterminated string")
}

func (l *lexer) readObject(depth int) ([]*Node, error) {
	if depth > maxDepth {
		return nil, l.errorf(l.pos, "nesting deeper than %d", maxDepth)
	}
	children := []*Node{}
	for {
		key, err := l.next()
		if err != nil {
			return nil, err
		}
		switch key.kind {
		case tokClose:
			return children, nil
		case tokEOF:
			return nil, l.errorf(key.at, "unexpected end of data")
		case tokString:
		default:
			return nil, l.errorf(key.at, "expected key")
		}

		val, err := l.next()
		if err != nil {
			return nil, err
		}
		switch val.kind {
		case tokOpen:
			sub, err := l.readObject(depth + 1)
			if err != nil {
				return nil, err
			}
			children = append(children, Object(key.text, sub...))
		case tokString:
			children = append(children, String(key.text, val.text))
		case tokEOF:
			return nil, l.errorf(val.at, "unexpected end of data")
		default:
			return nil, l.errorf(val.at, "expected value for %q", key.text)
		}
		if err := l.skipCondition(); err != nil {
			return nil, err
		}
	}
}

// skipCondition drops an optional platform conditional such as [$WIN32].
func (l *lexer) skipCondition() error {
	save := l.pos
	tok, err := l.next()
	if err != nil {
		return err
	}
	if tok.kind != tokCond {
		l.pos = save
	}
	return nil
}
