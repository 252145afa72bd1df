package sqlguard

import (
	"errors"
	"strings"
)

var (
	errUnterminatedString  = errors.New("unterminated string literal")
	errUnterminatedIdent   = errors.New("unterminated quoted identifier")
	errUnterminatedComment = errors.New("unterminated block comment")
	errUnterminatedDollar  = errors.New("unterminated dollar-quoted string")
)

// scanner walks SQL text byte by byte so statement separators can be told apart from
// semicolons inside literals and comments.
type scanner struct {
	input   string
	pos     int
	readPos int
	ch      byte
}

func newScanner(input string) *scanner {
	s := &scanner{input: input}
	s.readChar()
	return s
}

func (s *scanner) readChar() {
	if s.readPos >= len(s.input) {
		s.ch = 0
	} else {
		s.ch = s.input[s.readPos]
	}
	s.pos = s.readPos
	s.readPos++
}

func (s *scanner) peekChar() byte {
	if s.readPos >= len(s.input) {
		return 0
	}
	return s.input[s.readPos]
}

func (s *scanner) jump(pos int) {
	s.readPos = pos
	s.readChar()
}

func (s *scanner) eof() bool {
	return s.pos >= len(s.input)
}

// splitStatements returns the non-empty statements of input with surrounding whitespace
// removed. Segments holding only whitespace or comments are dropped, so trailing
// semicolons never produce a statement of their own.
func splitStatements(input string) ([]string, error) {
	s := newScanner(input)
	statements := make([]string, 0, 1)
	start := 0
	meaningful := false

	for !s.eof() {
		switch {
		case s.ch == '\'':
			if err := s.skipQuoted('\'', s.escapeStringPrefix(), errUnterminatedString); err != nil {
				return nil, err
			}
			meaningful = true
		case s.ch == '"':
			if err := s.skipQuoted('"', false, errUnterminatedIdent); err != nil {
				return nil, err
			}
			meaningful = true
		case s.ch == '-' && s.peekChar() == '-':
			s.skipLineComment()
		case s.ch == '/' && s.peekChar() == '*':
			if err := s.skipBlockComment(); err != nil {
				return nil, err
			}
		case s.ch == '$':
			if tag, ok := s.dollarTag(); ok {
				if err := s.skipDollarQuoted(tag); err != nil {
					return nil, err
				}
			}
			meaningful = true
		case s.ch == ';':
			if meaningful {
				statements = append(statements, strings.TrimSpace(input[start:s.pos]))
			}
			start = s.pos + 1
			meaningful = false
		case !isSpace(s.ch):
			meaningful = true
		}
		s.readChar()
	}

	if meaningful {
		statements = append(statements, strings.TrimSpace(input[start:]))
	}
	return statements, nil
}

// escapeStringPrefix reports whether the quote under the cursor opens an E'...' string,
// where backslash escapes are honoured.
func (s *scanner) escapeStringPrefix() bool {
	if s.pos == 0 {
		return false
	}
	prev := s.input[s.pos-1]
	if prev != 'E' && prev != 'e' {
		return false
	}
	return s.pos == 1 || !isIdentChar(s.input[s.pos-2])
}

// skipQuoted leaves the cursor on the closing quote. Doubled quotes are escapes.
func (s *scanner) skipQuoted(quote byte, backslashEscapes bool, unterminated error) error {
	for {
		s.readChar()
		if s.eof() {
			return unterminated
		}
		if backslashEscapes && s.ch == '\\' {
			s.readChar()
			if s.eof() {
				return unterminated
			}
			continue
		}
		if s.ch == quote {
			if s.peekChar() == quote {
				s.readChar()
				continue
			}
			return nil
		}
	}
}

func (s *scanner) skipLineComment() {
	for s.peekChar() != '\n' && s.peekChar() != 0 {
		s.readChar()
	}
}

// skipBlockComment handles nested comments the way PostgreSQL does.
func (s *scanner) skipBlockComment() error {
	s.readChar()
	depth := 1
	for {
		s.readChar()
		if s.eof() {
			return errUnterminatedComment
		}
		switch {
		case s.ch == '/' && s.peekChar() == '*':
			s.readChar()
			depth++
		case s.ch == '*' && s.peekChar() == '/':
			s.readChar()
			depth--
			if depth == 0 {
				return nil
			}
		}
	}
}

// dollarTag recognises $$ and $tag$ openers. Positional parameters such as $1 are not tags,
// and a $ following an identifier character belongs to that identifier (a$x$ is one name).
func (s *scanner) dollarTag() (string, bool) {
	if s.pos > 0 && isIdentChar(s.input[s.pos-1]) {
		return "", false
	}
	end := s.pos + 1
	for end < len(s.input) && isIdentChar(s.input[end]) {
		end++
	}
	if end >= len(s.input) || s.input[end] != '$' {
		return "", false
	}
	name := s.input[s.pos+1 : end]
	if name != "" && isDigit(name[0]) {
		return "", false
	}
	return s.input[s.pos : end+1], true
}

func (s *scanner) skipDollarQuoted(tag string) error {
	bodyStart := s.pos + len(tag)
	closing := strings.Index(s.input[bodyStart:], tag)
	if closing < 0 {
		return errUnterminatedDollar
	}
	s.jump(bodyStart + closing + len(tag) - 1)
	return nil
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' || ch == '\f' || ch == '\v'
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isIdentChar(ch byte) bool {
	return ch == '_' || isDigit(ch) || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch >= 0x80
}
