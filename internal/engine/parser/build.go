package parser

import (
	sitter "github.com/tree-sitter/go-tree-sitter"
)

type scopeKind int

const (
	scopeType scopeKind = iota
	scopeFunction
)

type scope struct {
	kind       scopeKind
	sitterKind string
}

// builder lowers one tree-sitter tree into the structural tree.
type builder struct {
	lang  string
	prof  *profile
	src   []byte
	scope []scope
}

func spanOf(n *sitter.Node) Span {
	start, end := n.StartPosition(), n.EndPosition()
	return Span{
		StartLine: int(start.Row) + 1,
		StartCol:  int(start.Column) + 1,
		EndLine:   int(end.Row) + 1,
		EndCol:    int(end.Column) + 1,
	}
}

func (b *builder) buildFile(root *sitter.Node, lines int) *File {
	f := &File{Language: b.lang}
	f.span = Span{StartLine: 1, EndLine: lines, StartCol: 1}
	f.children = b.children(root)
	return f
}

func (b *builder) children(n *sitter.Node) []Node {
	var out []Node
	for i := uint(0); i < n.ChildCount(); i++ {
		child := n.Child(i)
		if child == nil {
			continue
		}
		out = append(out, b.build(child)...)
	}
	return out
}

func (b *builder) build(n *sitter.Node) []Node {
	if n.IsMissing() {
		return nil
	}
	kind := n.Kind()
	span := spanOf(n)

	if isCommentKind(kind) {
		c := &Comment{Text: text(n, b.src)}
		c.span = span
		return []Node{c}
	}
	if n.IsNamed() {
		if lk, ok := literalKinds[kind]; ok {
			lit := &Literal{Kind: lk, Text: text(n, b.src)}
			lit.span = span
			return []Node{lit}
		}
	}
	if n.ChildCount() == 0 {
		return b.leaf(n, kind, span)
	}

	p := b.prof
	if fk, ok := p.functions[kind]; ok {
		return []Node{b.function(n, fk, span)}
	}
	if tk, ok := p.types[kind]; ok {
		decl := &TypeDecl{Name: typeName(n, b.src), Kind: tk, Fields: countFields(b.lang, n)}
		if !b.inFunction() {
			decl.Public = isPublic(b.lang, n, decl.Name, "", b.src)
			decl.Documented = hasDoc(b.lang, n)
		}
		decl.span = span
		b.scope = append(b.scope, scope{kind: scopeType, sitterKind: kind})
		decl.children = b.children(n)
		b.scope = b.scope[:len(b.scope)-1]
		return []Node{decl}
	}
	if p.imports[kind] {
		paths := importPaths(b.lang, n, b.src)
		if len(paths) > 0 {
			imp := &Import{Paths: paths}
			imp.span = span
			imp.children = b.children(n)
			return []Node{imp}
		}
		return b.children(n)
	}
	if field, ok := p.calls[kind]; ok {
		if b.lang == "javascript" || b.lang == "typescript" || b.lang == "tsx" {
			if path, isRequire := requirePath(n, b.src); isRequire {
				imp := &Import{Paths: []string{path}}
				imp.span = span
				imp.children = b.children(n)
				return []Node{imp}
			}
		}
		call := &Call{Callee: collapseSpace(text(n.ChildByFieldName(field), b.src))}
		if b.lang == "java" && kind == "method_invocation" {
			if obj := n.ChildByFieldName("object"); obj != nil {
				call.Callee = collapseSpace(text(obj, b.src)) + "." + call.Callee
			}
		}
		call.span = span
		call.children = b.children(n)
		return []Node{call}
	}
	if p.blocks[kind] {
		blk := &Block{}
		blk.span = span
		blk.children = b.children(n)
		return []Node{blk}
	}
	if p.branches[kind] && !b.isDefaultLabel(n, kind) {
		br := &Branch{Construct: kind}
		br.span = span
		br.children = b.children(n)
		return []Node{br}
	}
	if p.loops[kind] {
		loop := &Loop{Construct: kind}
		loop.span = span
		loop.children = b.children(n)
		return []Node{loop}
	}
	if p.logical[kind] {
		if op := n.ChildByFieldName("operator"); op != nil && p.logicalOps[text(op, b.src)] {
			br := &Branch{Construct: text(op, b.src)}
			br.span = span
			br.children = b.children(n)
			return []Node{br}
		}
	}
	return b.children(n)
}

func (b *builder) inFunction() bool {
	for _, s := range b.scope {
		if s.kind == scopeFunction {
			return true
		}
	}
	return false
}

// isDefaultLabel keeps Java `default:` labels from counting as decisions.
func (b *builder) isDefaultLabel(n *sitter.Node, kind string) bool {
	if kind != "switch_label" {
		return false
	}
	first := n.Child(0)
	return first != nil && first.Kind() == "default"
}

func (b *builder) function(n *sitter.Node, fk FunctionKind, span Span) Node {
	name, receiver := functionName(b.lang, n, b.src)
	if fk == FunctionPlain && len(b.scope) > 0 {
		top := b.scope[len(b.scope)-1]
		if top.kind == scopeType && b.prof.methodHosts[top.sitterKind] {
			fk = FunctionMethod
		}
	}
	fn := &Function{
		Name:     name,
		Receiver: receiver,
		Kind:     fk,
		Params:   countParams(b.lang, n, b.src),
	}
	if fk != FunctionClosure && !b.inFunction() {
		fn.Public = isPublic(b.lang, n, name, receiver, b.src)
		fn.Documented = hasDoc(b.lang, n)
	}
	fn.span = span
	b.scope = append(b.scope, scope{kind: scopeFunction, sitterKind: n.Kind()})
	fn.children = b.children(n)
	b.scope = b.scope[:len(b.scope)-1]
	return fn
}

func (b *builder) leaf(n *sitter.Node, kind string, span Span) []Node {
	if n.IsNamed() {
		id := &Identifier{Name: text(n, b.src)}
		id.span = span
		return []Node{id}
	}
	tok := text(n, b.src)
	if tok == "" {
		tok = kind
	}
	if tok == "" {
		return nil
	}
	if isWord(tok) {
		kw := &Keyword{Text: tok}
		kw.span = span
		return []Node{kw}
	}
	p := &Punct{Text: tok}
	p.span = span
	return []Node{p}
}
