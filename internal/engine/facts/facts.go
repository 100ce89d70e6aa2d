// Package facts derives reusable per-file records from a structural tree in a
// single walk. Output depends only on the tree, so identical content always
// yields identical facts.
package facts

type TokenKind uint8

const (
	TokenIdentifier TokenKind = iota + 1
	TokenLiteral
	TokenKeyword
	TokenPunct
)

func (k TokenKind) String() string {
	switch k {
	case TokenIdentifier:
		return "identifier"
	case TokenLiteral:
		return "literal"
	case TokenKeyword:
		return "keyword"
	case TokenPunct:
		return "punct"
	default:
		return "unknown"
	}
}

// Token is one normalized lexical unit. Identifiers collapse to a single
// placeholder and literals to a typed placeholder so renamed clones hash alike.
type Token struct {
	Kind TokenKind `json:"kind"`
	Text string    `json:"text"`
	Line int       `json:"line"`
}

const (
	PlaceholderIdentifier = "$id"
	placeholderPrefix     = "$"
)

type ImportFact struct {
	Path string `json:"path"`
	Line int    `json:"line"`
}

// FunctionFact holds the complexity counters of one function. Nested
// functions are measured on their own and do not add to the enclosing one.
type FunctionFact struct {
	Name       string `json:"name"`
	Receiver   string `json:"receiver,omitempty"`
	Kind       string `json:"kind"`
	StartLine  int    `json:"start_line"`
	EndLine    int    `json:"end_line"`
	Params     int    `json:"params"`
	Branches   int    `json:"branches"`
	Loops      int    `json:"loops"`
	MaxNesting int    `json:"max_nesting"`
	Lines      int    `json:"lines"`
	Cyclomatic int    `json:"cyclomatic"`
	Public     bool   `json:"public,omitempty"`
	Documented bool   `json:"documented,omitempty"`
}

// QualifiedName is Receiver.Name for methods with a receiver, otherwise Name.
func (f FunctionFact) QualifiedName() string {
	if f.Receiver != "" {
		return f.Receiver + "." + f.Name
	}
	return f.Name
}

type Declaration struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Line       int    `json:"line"`
	EndLine    int    `json:"end_line"`
	Fields     int    `json:"fields"`
	Public     bool   `json:"public,omitempty"`
	Documented bool   `json:"documented,omitempty"`
}

type CallFact struct {
	Callee string `json:"callee"`
	Line   int    `json:"line"`
}

type CommentFact struct {
	Text string `json:"text"`
	Line int    `json:"line"`
}

// StringFact is a string literal as written, quotes included.
type StringFact struct {
	Text string `json:"text"`
	Line int    `json:"line"`
}

// FileFacts is the FactRecord set of one source unit.
type FileFacts struct {
	Language  string         `json:"language"`
	Lines     int            `json:"lines"`
	Imports   []ImportFact   `json:"imports"`
	Functions []FunctionFact `json:"functions"`
	Types     []Declaration  `json:"types"`
	Calls     []CallFact     `json:"calls"`
	Comments  []CommentFact  `json:"comments"`
	Strings   []StringFact   `json:"strings"`
	Tokens    []Token        `json:"tokens"`
}

// ImportPaths returns the raw import paths in source order.
func (f *FileFacts) ImportPaths() []string {
	out := make([]string, 0, len(f.Imports))
	for _, imp := range f.Imports {
		out = append(out, imp.Path)
	}
	return out
}
