package facts

import (
	"archguard/internal/engine/parser"
)

// Extract walks the structural tree exactly once.
func Extract(root *parser.File) *FileFacts {
	out := &FileFacts{
		Language:  root.Language,
		Lines:     root.Span().EndLine,
		Imports:   []ImportFact{},
		Functions: []FunctionFact{},
		Types:     []Declaration{},
		Calls:     []CallFact{},
		Comments:  []CommentFact{},
		Strings:   []StringFact{},
		Tokens:    make([]Token, 0, 256),
	}
	e := &extractor{out: out}
	for _, child := range root.Children() {
		e.visit(child, -1, 0)
	}
	for i := range out.Functions {
		fn := &out.Functions[i]
		fn.Cyclomatic = 1 + fn.Branches + fn.Loops
	}
	return out
}

type extractor struct {
	out *FileFacts
}

// visit handles one node. fn is the index of the enclosing function fact (-1
// at file level); depth is the block depth relative to that function's body.
func (e *extractor) visit(n parser.Node, fn int, depth int) {
	switch node := n.(type) {
	case *parser.Function:
		span := node.Span()
		e.out.Functions = append(e.out.Functions, FunctionFact{
			Name:       functionLabel(node),
			Receiver:   node.Receiver,
			Kind:       string(node.Kind),
			StartLine:  span.StartLine,
			EndLine:    span.EndLine,
			Params:     node.Params,
			Lines:      span.Lines(),
			Public:     node.Public,
			Documented: node.Documented,
		})
		idx := len(e.out.Functions) - 1
		for _, child := range node.Children() {
			// The body block sits at depth 0.
			e.visit(child, idx, -1)
		}
		return
	case *parser.Block:
		depth++
		if fn >= 0 && depth > e.out.Functions[fn].MaxNesting {
			e.out.Functions[fn].MaxNesting = depth
		}
	case *parser.Branch:
		if fn >= 0 {
			e.out.Functions[fn].Branches++
		}
	case *parser.Loop:
		if fn >= 0 {
			e.out.Functions[fn].Loops++
		}
	case *parser.TypeDecl:
		span := node.Span()
		e.out.Types = append(e.out.Types, Declaration{
			Name:       node.Name,
			Kind:       node.Kind,
			Line:       span.StartLine,
			EndLine:    span.EndLine,
			Fields:     node.Fields,
			Public:     node.Public,
			Documented: node.Documented,
		})
	case *parser.Import:
		for _, path := range node.Paths {
			e.out.Imports = append(e.out.Imports, ImportFact{Path: path, Line: node.Span().StartLine})
		}
	case *parser.Call:
		if node.Callee != "" {
			e.out.Calls = append(e.out.Calls, CallFact{Callee: node.Callee, Line: node.Span().StartLine})
		}
	case *parser.Comment:
		e.out.Comments = append(e.out.Comments, CommentFact{Text: node.Text, Line: node.Span().StartLine})
		return
	case *parser.Identifier:
		e.token(TokenIdentifier, PlaceholderIdentifier, node.Span())
		return
	case *parser.Literal:
		if node.Kind == parser.LiteralString {
			e.out.Strings = append(e.out.Strings, StringFact{Text: node.Text, Line: node.Span().StartLine})
		}
		e.token(TokenLiteral, placeholderPrefix+string(node.Kind), node.Span())
		return
	case *parser.Keyword:
		e.token(TokenKeyword, node.Text, node.Span())
		return
	case *parser.Punct:
		e.token(TokenPunct, node.Text, node.Span())
		return
	}

	for _, child := range n.Children() {
		e.visit(child, fn, depth)
	}
}

func (e *extractor) token(kind TokenKind, text string, span parser.Span) {
	e.out.Tokens = append(e.out.Tokens, Token{Kind: kind, Text: text, Line: span.StartLine})
}

func functionLabel(fn *parser.Function) string {
	if fn.Name != "" {
		return fn.Name
	}
	return "<" + string(fn.Kind) + ">"
}
