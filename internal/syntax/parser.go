package syntax

import (
	"strings"
)

// reserved words never start a simple-name expression.
var reserved = map[string]bool{
	"and": true, "or": true, "not": true, "xor": true, "eqv": true, "imp": true,
	"mod": true, "like": true, "is": true, "then": true, "else": true,
	"elseif": true, "end": true, "to": true, "step": true, "in": true,
	"each": true, "as": true, "new": true, "typeof": true, "addressof": true,
	"call": true, "dim": true, "set": true, "let": true, "if": true, "for": true,
	"next": true, "do": true, "loop": true, "while": true, "wend": true,
	"with": true, "select": true, "case": true, "sub": true, "function": true,
	"property": true, "exit": true, "goto": true, "on": true, "resume": true,
	"const": true, "private": true, "public": true, "friend": true,
	"global": true, "static": true, "until": true, "option": true,
	"byval": true, "byref": true, "optional": true, "paramarray": true,
}

var literalWords = map[string]bool{
	"true": true, "false": true, "nothing": true, "empty": true, "null": true, "me": true,
}

// otherStatements start statements that are kept as opaque token runs.
var otherStatements = map[string]bool{
	"exit": true, "goto": true, "gosub": true, "on": true, "resume": true,
	"return": true, "stop": true, "error": true, "erase": true, "redim": true,
	"open": true, "close": true, "print": true, "input": true, "write": true,
	"line": true, "get": true, "put": true, "seek": true, "lock": true,
	"unlock": true, "raiseevent": true, "declare": true, "event": true,
	"implements": true, "deftype": true, "defint": true, "deflng": true,
	"defstr": true, "defbool": true, "defdbl": true, "defsng": true,
	"defcur": true, "defdate": true, "defobj": true, "defvar": true,
	"version": true, "begin": true, "end": true, "#if": true, "#else": true,
}

var binaryPrecedence = map[string]int{
	"imp": 1, "eqv": 2, "xor": 3, "or": 4, "and": 5,
	"=": 7, "<>": 7, "<": 7, ">": 7, "<=": 7, ">=": 7, "like": 7, "is": 7,
	"&": 8, "+": 9, "-": 9, "mod": 10, "\\": 11, "*": 12, "/": 12, "^": 14,
}

const (
	precNot   = 6
	precUnary = 13
)

type parser struct {
	toks   []Token
	pos    int
	last   int
	inline int
}

func (p *parser) sigIndex() int {
	i := p.pos
	for i < len(p.toks)-1 && p.toks[i].IsTrivia() {
		i++
	}
	return i
}

func (p *parser) peek() Token {
	return p.toks[p.sigIndex()]
}

// peekN returns the nth significant token ahead on the current logical line.
func (p *parser) peekN(n int) Token {
	i := p.sigIndex()
	for ; n > 0; n-- {
		if p.toks[i].Kind == TokenEOF {
			return p.toks[i]
		}
		i++
		for i < len(p.toks)-1 && p.toks[i].IsTrivia() {
			i++
		}
	}
	return p.toks[i]
}

func (p *parser) advance() Token {
	i := p.sigIndex()
	t := p.toks[i]
	if t.Kind != TokenEOF {
		p.pos = i + 1
		p.last = i
	}
	return t
}

func (p *parser) accept(text string) bool {
	if p.peek().Is(text) {
		p.advance()
		return true
	}
	return false
}

func (p *parser) atKeywords(words ...string) bool {
	for i, w := range words {
		if !p.peekN(i).Is(w) {
			return false
		}
	}
	return true
}

func (p *parser) atEOF() bool {
	return p.peek().Kind == TokenEOF
}

// atLineEnd reports whether the logical line ends at the next token.
func (p *parser) atLineEnd() bool {
	switch p.peek().Kind {
	case TokenNewline, TokenComment, TokenEOF:
		return true
	}
	return false
}

// atStmtEnd reports whether the current statement ends at the next token.
func (p *parser) atStmtEnd() bool {
	if p.atLineEnd() || p.peek().Kind == TokenColon {
		return true
	}
	return p.inline > 0 && p.peek().Is("Else")
}

var blockEnders = map[string]bool{
	"sub": true, "function": true, "property": true, "if": true, "with": true,
	"select": true, "type": true, "enum": true,
}

// isBlockEnd reports whether the next tokens close some enclosing block.
func (p *parser) isBlockEnd() bool {
	t := p.peek()
	if t.Kind != TokenIdentifier {
		return false
	}
	switch strings.ToLower(t.Text) {
	case "end":
		return blockEnders[strings.ToLower(p.peekN(1).Text)] && p.peekN(1).Kind == TokenIdentifier
	case "next", "loop", "wend", "else", "elseif", "case", "endif":
		return true
	}
	return false
}

func (p *parser) open(kind Kind) *Node {
	return &Node{Kind: kind, Start: p.sigIndex(), Stop: p.sigIndex() - 1}
}

func (p *parser) close(n *Node) *Node {
	if p.last >= n.Start {
		n.Stop = p.last
	}
	return n
}

// skipToEnd absorbs any unparsed tokens of the statement into n.
func (p *parser) skipToEnd(n *Node) *Node {
	for !p.atStmtEnd() {
		p.advance()
	}
	return p.close(n)
}

func (p *parser) ident() *Node {
	t := p.advance()
	return &Node{Kind: KindIdentifier, Start: t.Index, Stop: t.Index, Value: identName(t.Text)}
}

func identName(text string) string {
	if strings.HasPrefix(text, "[") && strings.HasSuffix(text, "]") {
		return text[1 : len(text)-1]
	}
	return strings.TrimRight(text, "$%&!#@")
}

func (p *parser) parseModule() *Node {
	root := &Node{Kind: KindModule, Start: 0, Stop: len(p.toks) - 2}
	root.add(p.parseEOS())
	for !p.atEOF() {
		start := p.pos
		root.add(p.parseModuleStatement())
		root.add(p.parseEOS())
		if p.pos == start {
			p.advance()
		}
	}
	return root
}

// parseEOS parses the separators between two statements. Outside single-line
// constructs it also absorbs the indentation before the next statement.
func (p *parser) parseEOS() *Node {
	eos := &Node{Kind: KindEndOfStatement, Start: p.pos}
	for {
		j := p.pos
		for j < len(p.toks)-1 && p.toks[j].IsTrivia() {
			j++
		}
		t := p.toks[j]
		var sep *Node
		switch t.Kind {
		case TokenComment:
			if p.inline > 0 {
				eos.Stop = p.pos - 1
				return eos
			}
			sep = &Node{Kind: KindSeparator, Start: p.pos, Stop: j}
			sep.add(commentNode(t))
			if p.toks[j+1].Kind == TokenNewline {
				sep.Stop = j + 1
			}
		case TokenNewline:
			if p.inline > 0 {
				eos.Stop = p.pos - 1
				return eos
			}
			sep = &Node{Kind: KindSeparator, Start: p.pos, Stop: j}
		case TokenColon:
			sep = &Node{Kind: KindSeparator, Start: p.pos, Stop: j}
		default:
			if p.inline == 0 {
				p.pos = j
			}
			eos.Stop = p.pos - 1
			return eos
		}
		eos.add(sep)
		p.pos = sep.Stop + 1
		p.last = sep.Stop
	}
}

func commentNode(t Token) *Node {
	if !t.IsAnnotation() {
		return &Node{Kind: KindComment, Start: t.Index, Stop: t.Index, Value: t.Text}
	}
	name, args := parseAnnotation(t.Text)
	return &Node{Kind: KindAnnotation, Start: t.Index, Stop: t.Index, Value: name, Args: args}
}

func (p *parser) parseModuleStatement() *Node {
	t := p.peek()
	switch {
	case t.Is("Option"):
		return p.skipToEnd(p.open(KindOptionStmt))
	case t.Is("Attribute"):
		return p.parseAttribute()
	}
	if n := p.parseDeclaration(true); n != nil {
		return n
	}
	return p.parseStatement()
}

func (p *parser) parseAttribute() *Node {
	n := p.open(KindAttributeStmt)
	p.advance()
	if !p.atStmtEnd() {
		n.Value = p.peek().Text
	}
	return p.skipToEnd(n)
}

// parseDeclaration parses statements introduced by an accessibility
// modifier, Dim, Static, Const, Sub, Function, Property, Type or Enum. It
// returns nil without consuming anything otherwise.
func (p *parser) parseDeclaration(moduleLevel bool) *Node {
	start := p.sigIndex()
	save, saveLast := p.pos, p.last
	access := ""
	if t := p.peek(); t.Is("Private") || t.Is("Public") || t.Is("Friend") || t.Is("Global") {
		access = p.advance().Text
	}
	static := p.accept("Static")
	t := p.peek()
	switch {
	case t.Is("Sub"), t.Is("Function"), t.Is("Property"):
		return p.parseProcedure(start, access)
	case t.Is("Const"):
		return p.parseConst(start, access)
	case moduleLevel && (t.Is("Type") || t.Is("Enum")):
		return p.parseTypeOrEnum(start, access)
	case t.Is("Declare"), t.Is("Event"), t.Is("Implements"):
		n := &Node{Kind: KindOtherStmt, Start: start, Value: access}
		return p.skipToEnd(n)
	case t.Is("Dim"):
		p.advance()
		return p.parseVariables(start, "Dim")
	case access != "":
		return p.parseVariables(start, access)
	case static:
		return p.parseVariables(start, "Static")
	}
	p.pos, p.last = save, saveLast
	return nil
}

func (p *parser) parseVariables(start int, keyword string) *Node {
	n := &Node{Kind: KindVariableStmt, Start: start, Value: keyword}
	for {
		if p.peek().Kind != TokenIdentifier {
			break
		}
		n.add(p.parseDeclarator(KindVariableDecl))
		if !p.accept(",") {
			break
		}
	}
	return p.skipToEnd(n)
}

// parseDeclarator parses "[WithEvents] name[(bounds)] [As [New] type]".
func (p *parser) parseDeclarator(kind Kind) *Node {
	d := p.open(kind)
	if p.peek().Is("WithEvents") {
		p.advance()
	}
	d.add(p.ident())
	if p.peek().Is("(") {
		d.Array = true
		d.add(p.parseParenArgs())
	}
	if p.accept("As") {
		d.AsType, d.Array = p.parseTypeName(d.Array)
	}
	return p.close(d)
}

// parseTypeName parses a type reference after As.
func (p *parser) parseTypeName(array bool) (string, bool) {
	p.accept("New")
	var parts []string
	for p.peek().Kind == TokenIdentifier {
		parts = append(parts, identName(p.advance().Text))
		if !p.peek().Is(".") {
			break
		}
		p.advance()
	}
	if p.peek().Is("(") && p.peekN(1).Is(")") {
		p.advance()
		p.advance()
		array = true
	}
	if p.accept("*") {
		p.advance()
	}
	return strings.Join(parts, "."), array
}

func (p *parser) parseConst(start int, access string) *Node {
	n := &Node{Kind: KindConstStmt, Start: start, Value: access}
	p.advance()
	for p.peek().Kind == TokenIdentifier {
		d := p.open(KindConstDecl)
		d.add(p.ident())
		if p.accept("As") {
			d.AsType, _ = p.parseTypeName(false)
		}
		if p.accept("=") {
			d.add(p.parseExpr())
		}
		n.add(p.close(d))
		if !p.accept(",") {
			break
		}
	}
	return p.skipToEnd(n)
}

func (p *parser) parseProcedure(start int, access string) *Node {
	n := &Node{Kind: KindSubStmt, Start: start, Value: access}
	keyword := p.advance()
	endWord := keyword.Text
	switch {
	case keyword.Is("Function"):
		n.Kind = KindFunctionStmt
	case keyword.Is("Property"):
		switch accessor := p.advance(); {
		case accessor.Is("Get"):
			n.Kind = KindPropertyGetStmt
		case accessor.Is("Let"):
			n.Kind = KindPropertyLetStmt
		case accessor.Is("Set"):
			n.Kind = KindPropertySetStmt
		}
	}
	if p.peek().Kind == TokenIdentifier {
		n.add(p.ident())
	}
	if p.peek().Is("(") {
		n.add(p.parseParameters())
	}
	if p.accept("As") {
		n.AsType, n.Array = p.parseTypeName(false)
	}
	p.skipToEnd(n)
	n.add(p.parseBlock(p.parseStatement))
	if p.atKeywords("End", endWord) {
		p.advance()
		p.advance()
	}
	return p.close(n)
}

func (p *parser) parseParameters() *Node {
	list := p.open(KindParameterList)
	p.advance()
	for !p.atLineEnd() && !p.peek().Is(")") {
		param := p.open(KindParameter)
		var mods []string
		for t := p.peek(); t.Is("Optional") || t.Is("ByVal") || t.Is("ByRef") || t.Is("ParamArray"); t = p.peek() {
			mods = append(mods, p.advance().Text)
		}
		param.Value = strings.Join(mods, " ")
		if p.peek().Kind != TokenIdentifier {
			break
		}
		param.add(p.ident())
		if p.peek().Is("(") && p.peekN(1).Is(")") {
			p.advance()
			p.advance()
			param.Array = true
		}
		if p.accept("As") {
			param.AsType, param.Array = p.parseTypeName(param.Array)
		}
		if p.accept("=") {
			param.add(p.parseExpr())
		}
		list.add(p.close(param))
		if !p.accept(",") {
			break
		}
	}
	p.accept(")")
	return p.close(list)
}

func (p *parser) parseTypeOrEnum(start int, access string) *Node {
	isEnum := p.advance().Is("Enum")
	n := &Node{Kind: KindTypeStmt, Start: start, Value: access}
	endWord := "Type"
	memberKind := KindTypeMember
	if isEnum {
		n.Kind, endWord, memberKind = KindEnumStmt, "Enum", KindEnumMember
	}
	if p.peek().Kind == TokenIdentifier {
		n.add(p.ident())
	}
	p.skipToEnd(n)
	n.add(p.parseBlock(func() *Node {
		if p.peek().Kind != TokenIdentifier {
			return p.skipToEnd(p.open(KindOtherStmt))
		}
		m := p.parseDeclarator(memberKind)
		if memberKind == KindEnumMember && p.accept("=") {
			m.add(p.parseExpr())
		}
		return p.skipToEnd(m)
	}))
	if p.atKeywords("End", endWord) {
		p.advance()
		p.advance()
	}
	return p.close(n)
}

// parseBlock parses "EOS (statement EOS)*" until a block terminator.
func (p *parser) parseBlock(statement func() *Node) *Node {
	b := &Node{Kind: KindBlock, Start: p.pos}
	b.add(p.parseEOS())
	for !p.atEOF() && !p.isBlockEnd() {
		start := p.pos
		b.add(statement())
		b.add(p.parseEOS())
		if p.pos == start {
			p.advance()
		}
	}
	b.Stop = p.pos - 1
	return b
}

// parseInlineBlock parses the colon-separated statements of a single-line If.
func (p *parser) parseInlineBlock() *Node {
	b := &Node{Kind: KindBlock, Start: p.pos}
	b.add(p.parseEOS())
	for !p.atLineEnd() && !p.peek().Is("Else") {
		start := p.pos
		b.add(p.parseStatement())
		b.add(p.parseEOS())
		if p.pos == start {
			p.advance()
		}
	}
	b.Stop = p.pos - 1
	return b
}

// parseStatement parses one statement inside a procedure body.
func (p *parser) parseStatement() *Node {
	t := p.peek()
	if t.Kind != TokenIdentifier {
		if t.Is(".") || t.Is("!") {
			return p.parseExpressionStatement()
		}
		return p.skipToEnd(p.open(KindOtherStmt))
	}
	switch strings.ToLower(t.Text) {
	case "dim", "static", "const", "private", "public":
		if n := p.parseDeclaration(false); n != nil {
			return n
		}
	case "attribute":
		return p.parseAttribute()
	case "set", "let":
		n := p.open(KindLetStmt)
		if p.advance().Is("Set") {
			n.Kind = KindSetStmt
		}
		n.add(p.parsePostfix(false))
		if p.accept("=") {
			n.add(p.parseExpr())
		}
		return p.skipToEnd(n)
	case "call":
		n := p.open(KindCallStmt)
		n.Value = p.advance().Text
		n.add(p.parsePostfix(false))
		return p.skipToEnd(n)
	case "if":
		return p.parseIf()
	case "for":
		return p.parseFor()
	case "do":
		return p.parseDo()
	case "while":
		return p.parseWhile()
	case "with":
		n := p.open(KindWithStmt)
		p.advance()
		n.add(p.parseExpr())
		p.skipToEnd(n)
		n.add(p.parseBlock(p.parseStatement))
		if p.atKeywords("End", "With") {
			p.advance()
			p.advance()
		}
		return p.close(n)
	case "select":
		return p.parseSelect()
	}
	if otherStatements[strings.ToLower(t.Text)] {
		return p.skipToEnd(p.open(KindOtherStmt))
	}
	return p.parseExpressionStatement()
}

// parseExpressionStatement parses an implicit call or an assignment.
func (p *parser) parseExpressionStatement() *Node {
	start := p.sigIndex()
	target := p.parsePostfix(true)
	if target == nil {
		return p.skipToEnd(p.open(KindOtherStmt))
	}
	if p.accept("=") {
		n := &Node{Kind: KindLetStmt, Start: start}
		n.add(target)
		n.add(p.parseExpr())
		return p.skipToEnd(n)
	}
	n := &Node{Kind: KindCallStmt, Start: start}
	n.add(target)
	if !p.atStmtEnd() {
		n.add(p.parseArgs(func() bool { return p.atStmtEnd() }))
	}
	return p.skipToEnd(n)
}

func (p *parser) parseIf() *Node {
	n := p.open(KindIfStmt)
	p.advance()
	n.add(p.parseExpr())
	p.accept("Then")
	if !p.atLineEnd() {
		p.inline++
		n.add(p.parseInlineBlock())
		if p.peek().Is("Else") {
			c := p.open(KindElseClause)
			p.advance()
			c.add(p.parseInlineBlock())
			c.Stop = p.pos - 1
			n.add(c)
		}
		p.inline--
		return p.close(n)
	}
	n.add(p.parseBlock(p.parseStatement))
	for {
		if p.peek().Is("ElseIf") {
			c := p.open(KindElseIfClause)
			p.advance()
			c.add(p.parseExpr())
			p.accept("Then")
			c.add(p.parseBlock(p.parseStatement))
			c.Stop = p.pos - 1
			n.add(c)
			continue
		}
		if p.peek().Is("Else") {
			c := p.open(KindElseClause)
			p.advance()
			c.add(p.parseBlock(p.parseStatement))
			c.Stop = p.pos - 1
			n.add(c)
			continue
		}
		break
	}
	if p.atKeywords("End", "If") {
		p.advance()
		p.advance()
	} else {
		p.accept("EndIf")
	}
	return p.close(n)
}

func (p *parser) parseFor() *Node {
	n := p.open(KindForStmt)
	p.advance()
	if p.accept("Each") {
		n.Kind = KindForEachStmt
		n.add(p.parsePostfix(false))
		p.accept("In")
		n.add(p.parseExpr())
	} else {
		n.add(p.parsePostfix(false))
		p.accept("=")
		n.add(p.parseExpr())
		p.accept("To")
		n.add(p.parseExpr())
		if p.accept("Step") {
			n.add(p.parseExpr())
		}
	}
	p.skipToEnd(n)
	n.add(p.parseBlock(p.parseStatement))
	if p.accept("Next") {
		for !p.atStmtEnd() {
			p.advance()
		}
	}
	return p.close(n)
}

func (p *parser) parseDo() *Node {
	n := p.open(KindDoStmt)
	p.advance()
	if p.accept("While") || p.accept("Until") {
		n.add(p.parseExpr())
	}
	p.skipToEnd(n)
	n.add(p.parseBlock(p.parseStatement))
	if p.accept("Loop") {
		if p.accept("While") || p.accept("Until") {
			n.add(p.parseExpr())
		}
	}
	return p.close(n)
}

func (p *parser) parseWhile() *Node {
	n := p.open(KindWhileStmt)
	p.advance()
	n.add(p.parseExpr())
	p.skipToEnd(n)
	n.add(p.parseBlock(p.parseStatement))
	p.accept("Wend")
	return p.close(n)
}

func (p *parser) parseSelect() *Node {
	n := p.open(KindSelectStmt)
	p.advance()
	p.accept("Case")
	n.add(p.parseExpr())
	p.skipToEnd(n)
	n.add(p.parseEOS())
	for p.peek().Is("Case") {
		c := p.open(KindCaseClause)
		p.advance()
		if !p.accept("Else") {
			for {
				if p.accept("Is") {
					p.advance()
				}
				c.add(p.parseExpr())
				if p.accept("To") {
					c.add(p.parseExpr())
				}
				if !p.accept(",") {
					break
				}
			}
		}
		for !p.atStmtEnd() {
			p.advance()
		}
		c.add(p.parseBlock(p.parseStatement))
		c.Stop = p.pos - 1
		n.add(c)
	}
	if p.atKeywords("End", "Select") {
		p.advance()
		p.advance()
	}
	return p.close(n)
}

// parseArgs parses a comma-separated argument list without parentheses.
func (p *parser) parseArgs(done func() bool) *Node {
	list := p.open(KindArgumentList)
	for {
		arg := p.open(KindArgument)
		if !p.peek().Is(",") && !done() {
			p.accept("ByVal")
			if p.peek().Kind == TokenIdentifier && p.peekN(1).Is(":=") {
				arg.Value = identName(p.advance().Text)
				p.advance()
			}
			arg.add(p.parseExpr())
			if p.accept("To") {
				arg.add(p.parseExpr())
			}
		}
		list.add(p.close(arg))
		if !p.accept(",") {
			break
		}
	}
	return p.close(list)
}

// parseParenArgs parses "(args)".
func (p *parser) parseParenArgs() *Node {
	start := p.sigIndex()
	p.advance()
	var list *Node
	if p.peek().Is(")") {
		list = &Node{Kind: KindArgumentList, Start: start, Stop: start - 1}
	} else {
		list = p.parseArgs(func() bool { return p.peek().Is(")") || p.atLineEnd() })
	}
	p.accept(")")
	list.Start = start
	return p.close(list)
}

func (p *parser) parseExpr() *Node {
	return p.parseBinary(1)
}

func (p *parser) parseBinary(minPrec int) *Node {
	left := p.parseUnary()
	if left == nil {
		return nil
	}
	for {
		op := p.peek()
		if op.Kind != TokenIdentifier && op.Kind != TokenOperator {
			break
		}
		prec := binaryPrecedence[strings.ToLower(op.Text)]
		if prec == 0 || prec < minPrec {
			break
		}
		p.advance()
		right := p.parseBinary(prec + 1)
		n := &Node{Kind: KindBinaryExpr, Start: left.Start, Value: op.Text}
		n.add(left)
		n.add(right)
		left = p.close(n)
		if right == nil {
			break
		}
	}
	return left
}

func (p *parser) parseUnary() *Node {
	t := p.peek()
	switch {
	case t.Is("Not"):
		n := p.open(KindUnaryExpr)
		n.Value = p.advance().Text
		n.add(p.parseBinary(precNot + 1))
		return p.close(n)
	case t.Is("-"), t.Is("+"):
		n := p.open(KindUnaryExpr)
		n.Value = p.advance().Text
		n.add(p.parseBinary(precUnary + 1))
		return p.close(n)
	case t.Is("AddressOf"):
		n := p.open(KindUnaryExpr)
		n.Value = p.advance().Text
		n.add(p.parsePostfix(false))
		return p.close(n)
	case t.Is("TypeOf"):
		n := p.open(KindUnaryExpr)
		n.Value = p.advance().Text
		n.add(p.parseBinary(binaryPrecedence["&"]))
		if p.accept("Is") {
			n.add(p.parsePostfix(false))
		}
		return p.close(n)
	case t.Is("New"):
		n := p.open(KindNewExpr)
		p.advance()
		n.add(p.parsePostfix(false))
		return p.close(n)
	}
	return p.parsePostfix(false)
}

// parsePostfix parses a primary expression followed by member accesses and
// argument lists. At statement level a parenthesis separated from the
// callee by whitespace starts the arguments instead of indexing.
func (p *parser) parsePostfix(statementLevel bool) *Node {
	left := p.parsePrimary()
	if left == nil {
		return nil
	}
	for {
		t := p.peek()
		adjacent := t.Index == p.last+1
		switch {
		case (t.Is(".") || t.Is("!")) && adjacent:
			p.advance()
			if p.peek().Kind != TokenIdentifier {
				return left
			}
			n := &Node{Kind: KindMemberAccessExpr, Start: left.Start, Value: t.Text}
			n.add(left)
			n.add(p.ident())
			left = p.close(n)
		case t.Is("(") && (adjacent || !statementLevel):
			n := &Node{Kind: KindIndexExpr, Start: left.Start}
			n.add(left)
			n.add(p.parseParenArgs())
			left = p.close(n)
		default:
			return left
		}
	}
}

func (p *parser) parsePrimary() *Node {
	t := p.peek()
	switch t.Kind {
	case TokenIdentifier:
		lower := strings.ToLower(t.Text)
		if literalWords[lower] {
			p.advance()
			return &Node{Kind: KindLiteralExpr, Start: t.Index, Stop: t.Index, Value: t.Text}
		}
		if reserved[lower] {
			return nil
		}
		n := p.open(KindSimpleNameExpr)
		n.add(p.ident())
		return p.close(n)
	case TokenNumber, TokenString, TokenDate:
		p.advance()
		return &Node{Kind: KindLiteralExpr, Start: t.Index, Stop: t.Index, Value: t.Text}
	case TokenOperator:
		switch t.Text {
		case "(":
			n := p.open(KindParenExpr)
			p.advance()
			n.add(p.parseExpr())
			p.accept(")")
			return p.close(n)
		case ".", "!":
			n := p.open(KindWithMemberAccessExpr)
			n.Value = p.advance().Text
			if p.peek().Kind != TokenIdentifier {
				return p.close(n)
			}
			n.add(p.ident())
			return p.close(n)
		}
	}
	return nil
}
