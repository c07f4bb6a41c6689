package syntax

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Lex splits src into tokens. It never fails: unrecognized bytes become
// single-character operator tokens. The returned slice always ends with an
// empty TokenEOF.
func Lex(src string) []Token {
	l := &lexer{src: src, line: 1, col: 1}
	for l.pos < len(l.src) {
		l.next()
	}
	l.emit(TokenEOF, l.pos)
	return l.tokens
}

type lexer struct {
	src    string
	pos    int
	line   int
	col    int
	tokens []Token
}

func (l *lexer) emit(kind TokenKind, end int) {
	text := l.src[l.pos:end]
	l.tokens = append(l.tokens, Token{
		Kind:   kind,
		Text:   text,
		Index:  len(l.tokens),
		Offset: l.pos,
		Line:   l.line,
		Col:    l.col,
	})
	for _, r := range text {
		if r == '\n' {
			l.line++
			l.col = 1
		} else if r != '\r' {
			l.col += utf8.RuneLen(r)
		}
	}
	// A lone "\r" is also a line break.
	if strings.HasSuffix(text, "\r") {
		l.line++
		l.col = 1
	}
	l.pos = end
}

func (l *lexer) next() {
	c := l.src[l.pos]
	switch {
	case c == '\r' || c == '\n':
		l.emit(TokenNewline, l.newlineEnd(l.pos))
	case c == ' ' || c == '\t':
		end := l.pos
		for end < len(l.src) && (l.src[end] == ' ' || l.src[end] == '\t') {
			end++
		}
		l.emit(TokenWhitespace, end)
	case c == '_' && l.continuationEnd() > 0:
		l.emit(TokenLineContinuation, l.continuationEnd())
	case c == '\'':
		l.emit(TokenComment, l.lineEnd(l.pos))
	case c == ':':
		if l.peekByte(1) == '=' {
			l.emit(TokenOperator, l.pos+2)
			return
		}
		l.emit(TokenColon, l.pos+1)
	case c == '"':
		l.emit(TokenString, l.stringEnd())
	case c == '[':
		end := strings.IndexByte(l.src[l.pos:], ']')
		if end < 0 || strings.ContainsAny(l.src[l.pos:l.pos+end], "\r\n") {
			l.emit(TokenOperator, l.pos+1)
			return
		}
		l.emit(TokenIdentifier, l.pos+end+1)
	case c == '&' && (l.peekByte(1) == 'H' || l.peekByte(1) == 'h' || l.peekByte(1) == 'O' || l.peekByte(1) == 'o'):
		end := l.pos + 2
		for end < len(l.src) && isHexDigit(l.src[end]) {
			end++
		}
		if end < len(l.src) && (l.src[end] == '&' || l.src[end] == '%') {
			end++
		}
		l.emit(TokenNumber, end)
	case c >= '0' && c <= '9' || c == '.' && isDigit(l.peekByte(1)):
		l.emit(TokenNumber, l.numberEnd())
	case c == '#' && l.dateEnd() > 0:
		l.emit(TokenDate, l.dateEnd())
	case c < utf8.RuneSelf && isIdentStart(rune(c)) || c >= utf8.RuneSelf && l.identStartAt(l.pos):
		end := l.identEnd()
		if strings.EqualFold(l.src[l.pos:end], "Rem") && (end == len(l.src) || l.src[end] == ' ' || l.src[end] == '\t' || l.src[end] == '\r' || l.src[end] == '\n') && l.atStatementStart() {
			l.emit(TokenComment, l.lineEnd(l.pos))
			return
		}
		l.emit(TokenIdentifier, end)
	default:
		two := ""
		if l.pos+2 <= len(l.src) {
			two = l.src[l.pos : l.pos+2]
		}
		switch two {
		case "<>", "<=", ">=":
			l.emit(TokenOperator, l.pos+2)
			return
		}
		_, size := utf8.DecodeRuneInString(l.src[l.pos:])
		l.emit(TokenOperator, l.pos+size)
	}
}

func (l *lexer) peekByte(offset int) byte {
	if l.pos+offset < len(l.src) {
		return l.src[l.pos+offset]
	}
	return 0
}

func (l *lexer) newlineEnd(pos int) int {
	if l.src[pos] == '\r' && pos+1 < len(l.src) && l.src[pos+1] == '\n' {
		return pos + 2
	}
	return pos + 1
}

func (l *lexer) lineEnd(pos int) int {
	for pos < len(l.src) && l.src[pos] != '\r' && l.src[pos] != '\n' {
		pos++
	}
	return pos
}

// continuationEnd returns the end of a line continuation starting at the
// current '_', or 0 if the underscore does not continue the line. The
// underscore must follow whitespace and be followed only by whitespace up to
// the newline.
func (l *lexer) continuationEnd() int {
	if l.pos == 0 || (l.src[l.pos-1] != ' ' && l.src[l.pos-1] != '\t') {
		return 0
	}
	end := l.pos + 1
	for end < len(l.src) && (l.src[end] == ' ' || l.src[end] == '\t') {
		end++
	}
	if end >= len(l.src) || (l.src[end] != '\r' && l.src[end] != '\n') {
		return 0
	}
	return l.newlineEnd(end)
}

func (l *lexer) stringEnd() int {
	end := l.pos + 1
	for end < len(l.src) {
		switch l.src[end] {
		case '"':
			if end+1 < len(l.src) && l.src[end+1] == '"' {
				end += 2
				continue
			}
			return end + 1
		case '\r', '\n':
			return end
		}
		end++
	}
	return end
}

func (l *lexer) numberEnd() int {
	end := l.pos
	for end < len(l.src) && (isDigit(l.src[end]) || l.src[end] == '.') {
		end++
	}
	if end < len(l.src) && (l.src[end] == 'E' || l.src[end] == 'e') {
		exp := end + 1
		if exp < len(l.src) && (l.src[exp] == '+' || l.src[exp] == '-') {
			exp++
		}
		if exp < len(l.src) && isDigit(l.src[exp]) {
			end = exp
			for end < len(l.src) && isDigit(l.src[end]) {
				end++
			}
		}
	}
	if end < len(l.src) && strings.IndexByte("%&!#@^", l.src[end]) >= 0 {
		end++
	}
	return end
}

// dateEnd recognizes #1/2/2003# style literals on a single line.
func (l *lexer) dateEnd() int {
	for end := l.pos + 1; end < len(l.src); end++ {
		switch c := l.src[end]; {
		case c == '#':
			if end == l.pos+1 {
				return 0
			}
			return end + 1
		case c == '\r' || c == '\n':
			return 0
		case !(isDigit(c) || c == '/' || c == '-' || c == ':' || c == ' ' || c == ',' || unicode.IsLetter(rune(c))):
			return 0
		}
	}
	return 0
}

func (l *lexer) identStartAt(pos int) bool {
	r, _ := utf8.DecodeRuneInString(l.src[pos:])
	return isIdentStart(r)
}

func (l *lexer) identEnd() int {
	end := l.pos
	for end < len(l.src) {
		r, size := utf8.DecodeRuneInString(l.src[end:])
		if !isIdentStart(r) && !unicode.IsDigit(r) && r != '_' {
			break
		}
		end += size
	}
	// Type hint suffix, e.g. Left$ or count%.
	if end < len(l.src) && strings.IndexByte("$%&!#@", l.src[end]) >= 0 {
		if end+1 >= len(l.src) || !isIdentStart(rune(l.src[end+1])) {
			end++
		}
	}
	return end
}

// atStatementStart reports whether only whitespace or a colon separates the
// current position from the start of the logical line.
func (l *lexer) atStatementStart() bool {
	for i := len(l.tokens) - 1; i >= 0; i-- {
		switch l.tokens[i].Kind {
		case TokenWhitespace:
			continue
		case TokenNewline, TokenColon:
			return true
		default:
			return false
		}
	}
	return true
}

func isIdentStart(r rune) bool {
	return unicode.IsLetter(r)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isHexDigit(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
