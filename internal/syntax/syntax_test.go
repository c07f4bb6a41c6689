package syntax

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/mallard/internal/project"
)

var testModule = project.NewModuleName("VBAProject", "Module1")

func parse(t *testing.T, src string) *Tree {
	t.Helper()
	tree := Parse(testModule, project.StandardModule, src)
	require.Equal(t, src, tree.Source(), "token stream must reproduce the source")
	return tree
}

// identifiers returns every Identifier node with the given name, in source
// order.
func identifiers(tree *Tree, name string) []*Node {
	var out []*Node
	Walk(tree.Root, func(n *Node) bool {
		if n.Kind == KindIdentifier && strings.EqualFold(n.Value, name) {
			out = append(out, n)
		}
		return true
	})
	return out
}

func kinds(nodes []*Node) []Kind {
	out := make([]Kind, len(nodes))
	for i, n := range nodes {
		out[i] = n.Kind
	}
	return out
}

func TestLex_RoundTrip(t *testing.T) {
	t.Parallel()
	sources := []string{
		"",
		"Option Explicit\r\n",
		"Dim s As String: s = \"a \"\"quoted\"\" value\" ' trailing\n",
		"x = foo _\r\n    + bar\r\n",
		"Rem old style comment\nd = #1/2/2003#\nh = &HFF&\n",
		"y = [Some Name].Value!Key\r",
		"Debug.Print Left$(s, 2); Tab(3)\n",
	}
	for _, src := range sources {
		toks := Lex(src)
		var b strings.Builder
		for i, tok := range toks {
			assert.Equal(t, i, tok.Index)
			b.WriteString(tok.Text)
		}
		assert.Equal(t, src, b.String())
		assert.Equal(t, TokenEOF, toks[len(toks)-1].Kind)
	}
}

func TestLex_Kinds(t *testing.T) {
	t.Parallel()
	toks := Lex("Rem note\nx = foo _\n  + 1 ' c\n")
	var got []TokenKind
	for _, tok := range toks {
		got = append(got, tok.Kind)
	}
	assert.Equal(t, []TokenKind{
		TokenComment, TokenNewline,
		TokenIdentifier, TokenWhitespace, TokenOperator, TokenWhitespace, TokenIdentifier,
		TokenWhitespace, TokenLineContinuation, TokenWhitespace, TokenOperator, TokenWhitespace,
		TokenNumber, TokenWhitespace, TokenComment, TokenNewline, TokenEOF,
	}, got)
	assert.Equal(t, 4, toks[len(toks)-1].Line)
}

func TestParse_ModuleLayout(t *testing.T) {
	t.Parallel()
	tree := parse(t, "Option Explicit\r\n\r\nPrivate Sub Foo()\r\nEnd Sub\r\n")

	assert.Equal(t, []Kind{
		KindEndOfStatement, KindOptionStmt, KindEndOfStatement, KindSubStmt, KindEndOfStatement,
	}, kinds(tree.Root.Children))

	leading := tree.Root.Children[0]
	assert.True(t, leading.IsEmpty())

	sub := tree.Root.Children[3]
	assert.Equal(t, "Foo", sub.Name())
	assert.Equal(t, "Private", sub.Value)
	assert.Equal(t, "Private Sub Foo()\r\nEnd Sub", tree.Text(sub))
	assert.Equal(t, "\r\n\r\n", tree.Text(PrecedingEOS(sub)))
	assert.Equal(t, "\r\n", tree.Text(FollowingEOS(sub)))
	assert.Len(t, Separators(PrecedingEOS(sub)), 2)
	assert.Equal(t, "\r\n", tree.Newline())

	span := tree.Span(sub)
	assert.Equal(t, Span{StartLine: 3, StartCol: 1, EndLine: 4, EndCol: 8}, span)
}

func TestParse_CommentsAndAnnotations(t *testing.T) {
	t.Parallel()
	src := "'@Description(\"Hi, there\")\r\n" +
		"Public Function Answer() As Long ' sig\r\n" +
		"    Answer = 42\r\n" +
		"End Function 'tail\r\n" +
		"'free\r\n"
	tree := parse(t, src)

	leading := tree.Root.Children[0]
	seps := Separators(leading)
	require.Len(t, seps, 1)
	ann := SeparatorComment(seps[0])
	require.NotNil(t, ann)
	assert.Equal(t, KindAnnotation, ann.Kind)
	assert.Equal(t, "Description", ann.Value)
	assert.Equal(t, []string{"Hi, there"}, ann.Args)
	assert.True(t, StartsOnOwnLine(leading))

	fn := tree.Root.Children[1]
	require.Equal(t, KindFunctionStmt, fn.Kind)
	assert.Equal(t, "Long", fn.AsType)

	// The signature-line comment belongs to the procedure body.
	sig := Body(fn).Children[0]
	require.Equal(t, KindEndOfStatement, sig.Kind)
	assert.Equal(t, " ' sig\r\n    ", tree.Text(sig))
	assert.False(t, StartsOnOwnLine(sig))

	tail := FollowingEOS(fn)
	tailSeps := Separators(tail)
	require.Len(t, tailSeps, 2)
	assert.Equal(t, " 'tail\r\n", tree.Text(tailSeps[0]))
	assert.Equal(t, KindComment, SeparatorComment(tailSeps[0]).Kind)
	assert.Equal(t, "'free\r\n", tree.Text(tailSeps[1]))
}

func TestParseAnnotation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		text string
		name string
		args []string
	}{
		{"'@Ignore ProcedureNotUsed, FunctionReturnValueNotUsed", "Ignore", []string{"ProcedureNotUsed", "FunctionReturnValueNotUsed"}},
		{"'@DefaultMember", "DefaultMember", nil},
		{"'@Folder(\"Parent.Child\")", "Folder", []string{"Parent.Child"}},
		{"'@Description(\"say \"\"hi\"\"\")", "Description", []string{`say "hi"`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, args := parseAnnotation(tt.text)
			assert.Equal(t, tt.name, name)
			assert.Equal(t, tt.args, args)
		})
	}
}

func TestParse_Declarations(t *testing.T) {
	t.Parallel()
	src := "Private a As Long, b() As String\n" +
		"Public Const MAX As Integer = 10\n" +
		"Private Type Point\n    X As Long\n    Y As Long\nEnd Type\n" +
		"Public Enum Color\n    Red = 1\n    Green\nEnd Enum\n" +
		"Public Property Get Item(ByVal index As Long) As Variant\nEnd Property\n"
	tree := parse(t, src)

	stmts := Statements(tree.Root)
	require.Len(t, stmts, 5)

	vars := stmts[0]
	assert.Equal(t, KindVariableStmt, vars.Kind)
	assert.Equal(t, "Private", vars.Value)
	decls := vars.ChildrenOf(KindVariableDecl)
	require.Len(t, decls, 2)
	assert.Equal(t, "a", decls[0].Name())
	assert.False(t, decls[0].Array)
	assert.Equal(t, "b", decls[1].Name())
	assert.True(t, decls[1].Array)
	assert.Equal(t, "String", decls[1].AsType)

	consts := stmts[1].ChildrenOf(KindConstDecl)
	require.Len(t, consts, 1)
	assert.Equal(t, "MAX", consts[0].Name())
	assert.Equal(t, "Integer", consts[0].AsType)

	typ := stmts[2]
	assert.Equal(t, KindTypeStmt, typ.Kind)
	assert.Equal(t, "Point", typ.Name())
	members := Statements(Body(typ))
	require.Len(t, members, 2)
	assert.Equal(t, "Y", members[1].Name())

	enum := stmts[3]
	assert.Equal(t, KindEnumStmt, enum.Kind)
	enumMembers := Statements(Body(enum))
	require.Len(t, enumMembers, 2)
	assert.Equal(t, KindEnumMember, enumMembers[0].Kind)

	prop := stmts[4]
	assert.Equal(t, KindPropertyGetStmt, prop.Kind)
	params := prop.Child(KindParameterList).ChildrenOf(KindParameter)
	require.Len(t, params, 1)
	assert.Equal(t, "index", params[0].Name())
	assert.Equal(t, "ByVal", params[0].Value)
	assert.Equal(t, "Long", params[0].AsType)
}

func TestParse_CallShapes(t *testing.T) {
	t.Parallel()
	src := "Sub Test()\n" +
		"    Foo\n" +
		"    Call Foo(1)\n" +
		"    x = Foo\n" +
		"    Bar Foo, 2\n" +
		"    obj.Foo 1\n" +
		"    Foo (1)\n" +
		"End Sub\n"
	tree := parse(t, src)

	uses := identifiers(tree, "Foo")
	require.Len(t, uses, 6)

	stmtKinds := make([]Kind, len(uses))
	for i, use := range uses {
		stmtKinds[i] = Ancestor(use, KindCallStmt, KindLetStmt).Kind
	}
	assert.Equal(t, []Kind{KindCallStmt, KindCallStmt, KindLetStmt, KindCallStmt, KindCallStmt, KindCallStmt}, stmtKinds)

	assert.Nil(t, Ancestor(uses[0], KindArgumentList))
	assert.Nil(t, Ancestor(uses[1], KindArgumentList), "callee of Call Foo(1) is not an argument")
	assert.NotNil(t, Ancestor(uses[3], KindArgumentList))
	assert.Equal(t, KindMemberAccessExpr, uses[4].Parent.Kind)
	assert.Nil(t, Ancestor(uses[5], KindArgumentList), "Foo (1) passes a parenthesized argument")
	assert.Equal(t, KindSimpleNameExpr, uses[5].Parent.Kind)
	assert.Equal(t, KindCallStmt, uses[5].Parent.Parent.Kind)
}

func TestParse_ControlFlow(t *testing.T) {
	t.Parallel()
	src := "Sub Test()\n" +
		"    If a Then Foo Else Bar\n" +
		"    If b Then\n        Foo\n    ElseIf c Then\n        Bar\n    Else\n        Baz\n    End If\n" +
		"    For i = 1 To 10 Step 2\n        Foo\n    Next i\n" +
		"    For Each item In items\n    Next\n" +
		"    Do While x < 3\n        x = x + 1\n    Loop\n" +
		"    With obj\n        .Foo\n    End With\n" +
		"    Select Case x\n        Case 1, 2\n            Foo\n        Case Is > 5\n        Case Else\n            Bar\n    End Select\n" +
		"    Dim a As Long: a = 1\n" +
		"End Sub\n"
	tree := parse(t, src)

	body := Body(Statements(tree.Root)[0])
	assert.Equal(t, []Kind{
		KindIfStmt, KindIfStmt, KindForStmt, KindForEachStmt, KindDoStmt,
		KindWithStmt, KindSelectStmt, KindVariableStmt, KindLetStmt,
	}, kinds(Statements(body)))

	inline := Statements(body)[0]
	require.NotNil(t, inline.Child(KindElseClause))
	assert.Len(t, Statements(inline.Child(KindBlock)), 1)

	with := Statements(body)[5]
	withStmts := Statements(Body(with))
	require.Len(t, withStmts, 1)
	callee := withStmts[0].Children[0]
	assert.Equal(t, KindWithMemberAccessExpr, callee.Kind)
	assert.Equal(t, "Foo", callee.Name())

	sel := Statements(body)[6]
	assert.Len(t, sel.ChildrenOf(KindCaseClause), 3)
}

func TestAncestor_SelfInclusive(t *testing.T) {
	t.Parallel()
	tree := parse(t, "Sub Test()\n    foo.Bar\nEnd Sub\n")
	bar := identifiers(tree, "Bar")[0]

	assert.Same(t, bar, Ancestor(bar, KindIdentifier))
	member := Ancestor(bar, KindMemberAccessExpr)
	require.NotNil(t, member)
	assert.Same(t, bar.Parent, member)
	assert.True(t, HasAncestor(member, KindMemberAccessExpr))
	assert.Nil(t, Ancestor(bar, KindArgumentList))

	proc := AncestorFunc(bar, func(n *Node) bool { return n.Kind.IsProcedure() })
	require.NotNil(t, proc)
	assert.Equal(t, "Test", proc.Name())
	assert.Nil(t, Ancestor(nil, KindModule))
}

func TestParse_Tolerant(t *testing.T) {
	t.Parallel()
	sources := []string{
		"Sub Broken(\nEnd Sub\n",
		"If x Then\n",
		"End Sub\nNext\n)))\n",
		"Private Declare PtrSafe Function GetTickCount Lib \"kernel32\" () As Long\n",
		"VERSION 1.0 CLASS\nBEGIN\n  MultiUse = -1  'True\nEND\nAttribute VB_Name = \"Class1\"\n",
	}
	for _, src := range sources {
		tree := parse(t, src)
		assert.NotNil(t, tree.Root)
	}
}

func TestStore(t *testing.T) {
	t.Parallel()
	s := NewStore()
	a := Parse(project.NewModuleName("P", "B"), project.StandardModule, "")
	b := Parse(project.NewModuleName("P", "A"), project.ClassModule, "")
	s.Put(a)
	s.Put(b)

	got, ok := s.ParseTree(project.NewModuleName("P", "A"))
	require.True(t, ok)
	assert.Same(t, b, got)
	assert.Equal(t, []project.ModuleName{b.Module, a.Module}, s.Modules())

	s.Remove(b.Module)
	_, ok = s.ParseTree(b.Module)
	assert.False(t, ok)
}
