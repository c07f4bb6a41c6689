package syntax

import "strings"

// TokenKind classifies a lexical token.
type TokenKind uint8

const (
	TokenEOF TokenKind = iota
	TokenNewline
	TokenWhitespace
	// TokenLineContinuation is " _" followed by the newline it joins; it is
	// trivia inside a logical line.
	TokenLineContinuation
	TokenComment
	TokenColon
	TokenIdentifier
	TokenNumber
	TokenString
	TokenDate
	TokenOperator
)

var tokenKindNames = [...]string{
	TokenEOF:              "EOF",
	TokenNewline:          "Newline",
	TokenWhitespace:       "Whitespace",
	TokenLineContinuation: "LineContinuation",
	TokenComment:          "Comment",
	TokenColon:            "Colon",
	TokenIdentifier:       "Identifier",
	TokenNumber:           "Number",
	TokenString:           "String",
	TokenDate:             "Date",
	TokenOperator:         "Operator",
}

func (k TokenKind) String() string {
	if int(k) < len(tokenKindNames) {
		return tokenKindNames[k]
	}
	return "Unknown"
}

// Token is a slice of module source. Concatenating the Text of every token
// in a Tree reproduces the source exactly.
type Token struct {
	Kind   TokenKind
	Text   string
	Index  int // position in the token stream
	Offset int // byte offset in the source
	Line   int // 1-based
	Col    int // 1-based, in bytes
}

// IsTrivia reports whether the token is skipped between significant tokens
// of a logical line.
func (t Token) IsTrivia() bool {
	return t.Kind == TokenWhitespace || t.Kind == TokenLineContinuation
}

// Is reports whether t is an identifier or operator matching text,
// case-insensitively.
func (t Token) Is(text string) bool {
	if t.Kind != TokenIdentifier && t.Kind != TokenOperator {
		return false
	}
	return strings.EqualFold(t.Text, text)
}

// IsAnnotation reports whether a comment token is an annotation ('@Name).
func (t Token) IsAnnotation() bool {
	return t.Kind == TokenComment && strings.HasPrefix(t.Text, "'@")
}
