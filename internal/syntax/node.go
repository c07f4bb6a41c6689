package syntax

// Kind identifies the syntactic category of a Node.
type Kind uint8

const (
	KindModule Kind = iota
	KindEndOfStatement
	KindSeparator
	KindComment
	KindAnnotation

	KindOptionStmt
	KindAttributeStmt
	KindVariableStmt
	KindVariableDecl
	KindConstStmt
	KindConstDecl
	KindSubStmt
	KindFunctionStmt
	KindPropertyGetStmt
	KindPropertyLetStmt
	KindPropertySetStmt
	KindParameterList
	KindParameter
	KindBlock
	KindTypeStmt
	KindTypeMember
	KindEnumStmt
	KindEnumMember

	KindCallStmt
	KindLetStmt
	KindSetStmt
	KindIfStmt
	KindElseIfClause
	KindElseClause
	KindForStmt
	KindForEachStmt
	KindDoStmt
	KindWhileStmt
	KindWithStmt
	KindSelectStmt
	KindCaseClause
	KindOtherStmt

	KindIdentifier
	KindSimpleNameExpr
	KindMemberAccessExpr
	KindWithMemberAccessExpr
	KindIndexExpr
	KindArgumentList
	KindArgument
	KindLiteralExpr
	KindParenExpr
	KindUnaryExpr
	KindBinaryExpr
	KindNewExpr
)

var kindNames = [...]string{
	KindModule:               "Module",
	KindEndOfStatement:       "EndOfStatement",
	KindSeparator:            "Separator",
	KindComment:              "Comment",
	KindAnnotation:           "Annotation",
	KindOptionStmt:           "OptionStmt",
	KindAttributeStmt:        "AttributeStmt",
	KindVariableStmt:         "VariableStmt",
	KindVariableDecl:         "VariableDecl",
	KindConstStmt:            "ConstStmt",
	KindConstDecl:            "ConstDecl",
	KindSubStmt:              "SubStmt",
	KindFunctionStmt:         "FunctionStmt",
	KindPropertyGetStmt:      "PropertyGetStmt",
	KindPropertyLetStmt:      "PropertyLetStmt",
	KindPropertySetStmt:      "PropertySetStmt",
	KindParameterList:        "ParameterList",
	KindParameter:            "Parameter",
	KindBlock:                "Block",
	KindTypeStmt:             "TypeStmt",
	KindTypeMember:           "TypeMember",
	KindEnumStmt:             "EnumStmt",
	KindEnumMember:           "EnumMember",
	KindCallStmt:             "CallStmt",
	KindLetStmt:              "LetStmt",
	KindSetStmt:              "SetStmt",
	KindIfStmt:               "IfStmt",
	KindElseIfClause:         "ElseIfClause",
	KindElseClause:           "ElseClause",
	KindForStmt:              "ForStmt",
	KindForEachStmt:          "ForEachStmt",
	KindDoStmt:               "DoStmt",
	KindWhileStmt:            "WhileStmt",
	KindWithStmt:             "WithStmt",
	KindSelectStmt:           "SelectStmt",
	KindCaseClause:           "CaseClause",
	KindOtherStmt:            "OtherStmt",
	KindIdentifier:           "Identifier",
	KindSimpleNameExpr:       "SimpleNameExpr",
	KindMemberAccessExpr:     "MemberAccessExpr",
	KindWithMemberAccessExpr: "WithMemberAccessExpr",
	KindIndexExpr:            "IndexExpr",
	KindArgumentList:         "ArgumentList",
	KindArgument:             "Argument",
	KindLiteralExpr:          "LiteralExpr",
	KindParenExpr:            "ParenExpr",
	KindUnaryExpr:            "UnaryExpr",
	KindBinaryExpr:           "BinaryExpr",
	KindNewExpr:              "NewExpr",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Unknown"
}

// IsProcedure reports whether k is a Sub, Function or Property statement.
func (k Kind) IsProcedure() bool {
	return k >= KindSubStmt && k <= KindPropertySetStmt
}

// IsContainer reports whether nodes of kind k hold alternating
// end-of-statement and statement children, starting with an
// end-of-statement.
func (k Kind) IsContainer() bool {
	return k == KindModule || k == KindBlock
}

// Node is a parse tree node spanning the inclusive token range
// [Start, Stop]. An empty node has Stop == Start-1.
type Node struct {
	Kind     Kind
	Parent   *Node
	Children []*Node
	Start    int
	Stop     int

	// Value carries the node's principal text: the name of an Identifier or
	// Annotation, the leading keyword of a declaration statement, the
	// accessibility of a procedure, the operator of an expression.
	Value string
	// AsType is the declared type name of variables, parameters, constants,
	// members and functions.
	AsType string
	// Array is set on declarators followed by array bounds.
	Array bool
	// Args holds annotation arguments.
	Args []string
}

// IsEmpty reports whether n spans no tokens.
func (n *Node) IsEmpty() bool {
	return n.Stop < n.Start
}

func (n *Node) add(child *Node) *Node {
	if child == nil {
		return n
	}
	child.Parent = n
	n.Children = append(n.Children, child)
	return n
}

// Child returns the first direct child of the given kind, or nil.
func (n *Node) Child(kind Kind) *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if c.Kind == kind {
			return c
		}
	}
	return nil
}

// ChildrenOf returns the direct children of the given kind.
func (n *Node) ChildrenOf(kind Kind) []*Node {
	if n == nil {
		return nil
	}
	var out []*Node
	for _, c := range n.Children {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// Name returns the Value of the node's Identifier child, or "".
func (n *Node) Name() string {
	if id := n.Child(KindIdentifier); id != nil {
		return id.Value
	}
	return ""
}

// Index returns n's position among its parent's children, or -1.
func (n *Node) Index() int {
	if n == nil || n.Parent == nil {
		return -1
	}
	for i, c := range n.Parent.Children {
		if c == n {
			return i
		}
	}
	return -1
}

// PrevSibling returns the child of n's parent immediately before n.
func (n *Node) PrevSibling() *Node {
	i := n.Index()
	if i <= 0 {
		return nil
	}
	return n.Parent.Children[i-1]
}

// NextSibling returns the child of n's parent immediately after n.
func (n *Node) NextSibling() *Node {
	i := n.Index()
	if i < 0 || i+1 >= len(n.Parent.Children) {
		return nil
	}
	return n.Parent.Children[i+1]
}

// Walk calls fn for n and every descendant in pre-order. Returning false
// from fn skips the node's children.
func Walk(n *Node, fn func(*Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, c := range n.Children {
		Walk(c, fn)
	}
}

// Ancestor returns the nearest node, starting with n itself, whose kind is
// one of kinds. It returns nil if there is none.
func Ancestor(n *Node, kinds ...Kind) *Node {
	return AncestorFunc(n, func(a *Node) bool {
		for _, k := range kinds {
			if a.Kind == k {
				return true
			}
		}
		return false
	})
}

// AncestorFunc returns the nearest node, starting with n itself, for which
// match returns true.
func AncestorFunc(n *Node, match func(*Node) bool) *Node {
	for a := n; a != nil; a = a.Parent {
		if match(a) {
			return a
		}
	}
	return nil
}

// HasAncestor reports whether Ancestor(n, kinds...) is non-nil.
func HasAncestor(n *Node, kinds ...Kind) bool {
	return Ancestor(n, kinds...) != nil
}

// Statements returns the statement children of a container node, skipping
// the end-of-statement nodes between them.
func Statements(container *Node) []*Node {
	if container == nil {
		return nil
	}
	var out []*Node
	for _, c := range container.Children {
		if c.Kind != KindEndOfStatement {
			out = append(out, c)
		}
	}
	return out
}

// Body returns the Block child of a procedure, Type, Enum or other compound
// statement.
func Body(n *Node) *Node {
	return n.Child(KindBlock)
}

// FollowingEOS returns the end-of-statement node that terminates stmt within
// its container, or nil.
func FollowingEOS(stmt *Node) *Node {
	next := stmt.NextSibling()
	if next != nil && next.Kind == KindEndOfStatement {
		return next
	}
	return nil
}

// PrecedingEOS returns the end-of-statement node before stmt within its
// container, or nil.
func PrecedingEOS(stmt *Node) *Node {
	prev := stmt.PrevSibling()
	if prev != nil && prev.Kind == KindEndOfStatement {
		return prev
	}
	return nil
}

// Separators returns the individual separator elements of an
// end-of-statement node.
func Separators(eos *Node) []*Node {
	return eos.ChildrenOf(KindSeparator)
}

// SeparatorComment returns the Comment or Annotation child of a separator,
// or nil.
func SeparatorComment(sep *Node) *Node {
	if sep == nil {
		return nil
	}
	for _, c := range sep.Children {
		if c.Kind == KindComment || c.Kind == KindAnnotation {
			return c
		}
	}
	return nil
}

// StartsOnOwnLine reports whether the first separator of eos begins a
// physical line rather than continuing the line of the preceding statement.
// Only the leading end-of-statement of a module does.
func StartsOnOwnLine(eos *Node) bool {
	return eos.Parent != nil && eos.Parent.Kind == KindModule && eos.Index() == 0
}
