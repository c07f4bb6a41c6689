// Package refactor implements declaration deletion on top of rewrite
// sessions, preserving comments, annotations and layout that do not belong
// to the deleted declarations.
package refactor

import (
	"errors"
	"regexp"
	"strings"

	"github.com/jward/mallard/internal/rewrite"
	"github.com/jward/mallard/internal/syntax"
)

// ErrNilRewriter is returned when no rewriter or session is supplied.
var ErrNilRewriter = errors.New("nil rewriter")

var trailingSeparation = regexp.MustCompile(`(\r\n|\n|\r)+[ \t]*$`)

// EOSContent classifies the content of an end-of-statement node: the
// separators after a statement, the comments on them and the blank lines
// and indentation before the next statement. A nil node stands for the end
// of the module.
type EOSContent struct {
	eos *syntax.Node
	rw  *rewrite.ModuleRewriter
}

// NewEOSContent returns the classifier for eos as rendered by rw.
func NewEOSContent(eos *syntax.Node, rw *rewrite.ModuleRewriter) (*EOSContent, error) {
	if rw == nil {
		return nil, ErrNilRewriter
	}
	return &EOSContent{eos: eos, rw: rw}, nil
}

// Elements returns the individual separators, in order.
func (c *EOSContent) Elements() []*syntax.Node {
	if c.eos == nil {
		return nil
	}
	return syntax.Separators(c.eos)
}

// DeclarationLogicalLineComment returns the first separator if it carries a
// comment or annotation, which then sits on the logical line of the
// preceding statement.
func (c *EOSContent) DeclarationLogicalLineComment() *syntax.Node {
	elems := c.Elements()
	if len(elems) == 0 || syntax.SeparatorComment(elems[0]) == nil {
		return nil
	}
	return elems[0]
}

// OriginalContent is the unedited source text of the node.
func (c *EOSContent) OriginalContent() string {
	return c.rw.Tree().Text(c.eos)
}

// ModifiedContent is the node's text with queued edits applied.
func (c *EOSContent) ModifiedContent() string {
	if c.eos == nil {
		return ""
	}
	if text, ok := c.rw.Text(c.eos.Start, c.eos.Stop); ok {
		return text
	}
	return c.OriginalContent()
}

// SeparationAndIndentation is the trailing run of newlines and the
// whitespace after them. Content starting with a colon has none.
func (c *EOSContent) SeparationAndIndentation() string {
	_, sep, indent := splitContent(c.ModifiedContent())
	return sep + indent
}

// Separation is the newline part of SeparationAndIndentation.
func (c *EOSContent) Separation() string {
	_, sep, _ := splitContent(c.ModifiedContent())
	return sep
}

// Indentation is the whitespace after the final newline.
func (c *EOSContent) Indentation() string {
	_, _, indent := splitContent(c.ModifiedContent())
	return indent
}

// ContentPriorToSeparationAndIndentation is everything before the
// trailing separation.
func (c *EOSContent) ContentPriorToSeparationAndIndentation() string {
	prior, _, _ := splitContent(c.ModifiedContent())
	return prior
}

// ContentFreeOfStartingNewLines is the modified content without leading
// newlines.
func (c *EOSContent) ContentFreeOfStartingNewLines() string {
	return trimStartingNewlines(c.ModifiedContent())
}

// ContainsCommentMarker reports whether the modified content still holds a
// comment or annotation.
func (c *EOSContent) ContainsCommentMarker() bool {
	return containsCommentMarker(c.ModifiedContent())
}

// splitContent splits content into the part before its trailing
// separation, the newlines, and the indentation after them. Content whose
// first non-blank character is a colon continues the logical line and has
// no separation. Blanks before the colon are ignored.
func splitContent(content string) (prior, separation, indentation string) {
	if strings.HasPrefix(strings.TrimLeft(content, " \t"), ":") {
		return content, "", ""
	}
	loc := trailingSeparation.FindStringIndex(content)
	if loc == nil {
		return content, "", ""
	}
	tail := content[loc[0]:]
	indentation = strings.TrimLeft(tail, "\r\n")
	return content[:loc[0]], tail[:len(tail)-len(indentation)], indentation
}

func trimStartingNewlines(s string) string {
	return strings.TrimLeft(s, "\r\n")
}

func containsCommentMarker(content string) bool {
	for _, line := range strings.FieldsFunc(content, func(r rune) bool { return r == '\r' || r == '\n' || r == ':' }) {
		line = strings.TrimLeft(line, " \t")
		if strings.HasPrefix(line, "'") {
			return true
		}
		if len(line) >= 3 && strings.EqualFold(line[:3], "rem") && (len(line) == 3 || line[3] == ' ' || line[3] == '\t') {
			return true
		}
	}
	return false
}

// hasRetainedContent reports whether content holds anything but
// whitespace and separators.
func hasRetainedContent(content string) bool {
	return strings.TrimLeft(content, " \t\r\n:") != ""
}
