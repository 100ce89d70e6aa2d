package parser

// Span locates a node in its file. Lines and columns are 1-based.
type Span struct {
	StartLine int `json:"start_line"`
	EndLine   int `json:"end_line"`
	StartCol  int `json:"start_col,omitempty"`
	EndCol    int `json:"end_col,omitempty"`
}

// Lines returns the number of lines covered by the span.
func (s Span) Lines() int {
	if s.EndLine < s.StartLine {
		return 1
	}
	return s.EndLine - s.StartLine + 1
}

// Node is the language-agnostic structural tree. The set of implementations is
// closed: File, Function, TypeDecl, Import, Call, Block, Branch, Loop,
// Identifier, Literal, Keyword, Punct and Comment.
type Node interface {
	Span() Span
	Children() []Node
	sealed()
}

type base struct {
	span     Span
	children []Node
}

func (b *base) Span() Span       { return b.span }
func (b *base) Children() []Node { return b.children }
func (*base) sealed()            {}

// File is the root of every structural tree.
type File struct {
	base
	Language string
}

type FunctionKind string

const (
	FunctionPlain   FunctionKind = "function"
	FunctionMethod  FunctionKind = "method"
	FunctionClosure FunctionKind = "closure"
)

// Function is a function, method or closure declaration including its body.
type Function struct {
	base
	Name     string
	Receiver string
	Kind     FunctionKind
	Params   int
	// Public is set for declarations visible outside their package or
	// module; Documented when a doc comment or docstring is attached.
	Public     bool
	Documented bool
}

// TypeDecl is a class, struct, interface, enum, trait or alias declaration.
type TypeDecl struct {
	base
	Name string
	Kind string
	// Fields counts declared data members; methods are not fields.
	Fields     int
	Public     bool
	Documented bool
}

// Import carries the raw module paths named by one import statement.
type Import struct {
	base
	Paths []string
}

// Call is a call, constructor or macro invocation.
type Call struct {
	base
	Callee string
}

// Block is a lexical block; nested blocks define nesting depth.
type Block struct {
	base
}

// Branch is a decision point: if/elif, case arm, catch, ternary or short-circuit operator.
type Branch struct {
	base
	Construct string
}

// Loop is any iteration construct.
type Loop struct {
	base
	Construct string
}

type Identifier struct {
	base
	Name string
}

type LiteralKind string

const (
	LiteralString LiteralKind = "str"
	LiteralNumber LiteralKind = "num"
	LiteralBool   LiteralKind = "bool"
	LiteralNull   LiteralKind = "nil"
)

type Literal struct {
	base
	Kind LiteralKind
	Text string
}

type Keyword struct {
	base
	Text string
}

// Punct is an operator or punctuation token.
type Punct struct {
	base
	Text string
}

type Comment struct {
	base
	Text string
}

// Walk visits n and its descendants in source order. Returning false from fn
// skips the children of the visited node.
func Walk(n Node, fn func(Node) bool) {
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for _, child := range n.Children() {
		Walk(child, fn)
	}
}

// Count returns the number of nodes in the tree rooted at n.
func Count(n Node) int {
	total := 0
	Walk(n, func(Node) bool {
		total++
		return true
	})
	return total
}
