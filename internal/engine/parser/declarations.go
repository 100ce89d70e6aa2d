package parser

import (
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// functionName resolves the declared name of a function-like node. Anonymous
// functions take the name of the binding they are assigned to, when any.
func functionName(lang string, n *sitter.Node, src []byte) (name, receiver string) {
	if nameNode := n.ChildByFieldName("name"); nameNode != nil {
		name = text(nameNode, src)
	}
	if lang == "go" && n.Kind() == "method_declaration" {
		receiver = goReceiverType(n.ChildByFieldName("receiver"), src)
	}
	if name != "" {
		return name, receiver
	}

	parent := n.Parent()
	if parent == nil {
		return "", receiver
	}
	switch parent.Kind() {
	case "variable_declarator", "pair", "public_field_definition", "field_definition":
		for _, field := range []string{"name", "key", "property"} {
			if key := parent.ChildByFieldName(field); key != nil {
				return trimQuotes(text(key, src)), receiver
			}
		}
	case "assignment_expression", "assignment":
		if left := parent.ChildByFieldName("left"); left != nil {
			return text(left, src), receiver
		}
	case "expression_list":
		// Go: helper := func() {...}
		gp := parent.Parent()
		if gp == nil || parent.NamedChildCount() != 1 {
			break
		}
		switch gp.Kind() {
		case "short_var_declaration", "assignment_statement":
			if left := gp.ChildByFieldName("left"); left != nil && left.NamedChildCount() == 1 {
				return text(left, src), receiver
			}
		case "var_spec", "const_spec":
			if nameNode := gp.ChildByFieldName("name"); nameNode != nil {
				return text(nameNode, src), receiver
			}
		}
	case "let_declaration":
		if pattern := parent.ChildByFieldName("pattern"); pattern != nil {
			return text(pattern, src), receiver
		}
	}
	return "", receiver
}

func goReceiverType(receiver *sitter.Node, src []byte) string {
	if receiver == nil {
		return ""
	}
	for _, param := range namedChildren(receiver) {
		if param.Kind() != "parameter_declaration" {
			continue
		}
		typ := text(param.ChildByFieldName("type"), src)
		typ = strings.TrimPrefix(strings.TrimSpace(typ), "*")
		if i := strings.IndexByte(typ, '['); i >= 0 {
			typ = typ[:i]
		}
		return typ
	}
	return ""
}

// countParams counts the declared parameters of a function-like node. Receivers
// and self parameters are not counted.
func countParams(lang string, n *sitter.Node, src []byte) int {
	params := n.ChildByFieldName("parameters")
	if params == nil {
		// Single-parameter arrow functions: x => x * 2
		if p := n.ChildByFieldName("parameter"); p != nil {
			return 1
		}
		return 0
	}

	switch lang {
	case "go":
		count := 0
		for _, decl := range namedChildren(params) {
			switch decl.Kind() {
			case "parameter_declaration", "variadic_parameter_declaration":
				names := 0
				for _, child := range namedChildren(decl) {
					if child.Kind() == "identifier" {
						names++
					}
				}
				if names == 0 {
					names = 1
				}
				count += names
			}
		}
		return count
	case "java":
		if params.Kind() == "identifier" {
			return 1
		}
		count := 0
		for _, child := range namedChildren(params) {
			switch child.Kind() {
			case "formal_parameter", "spread_parameter", "identifier":
				count++
			}
		}
		return count
	case "rust":
		count := 0
		for _, child := range namedChildren(params) {
			switch child.Kind() {
			case "parameter", "variadic_parameter", "identifier", "closure_parameter":
				count++
			default:
				if !isCommentKind(child.Kind()) && child.Kind() != "self_parameter" && child.Kind() != "attribute_item" {
					count++
				}
			}
		}
		return count
	case "python":
		count := 0
		for i, child := range namedChildren(params) {
			kind := child.Kind()
			if isCommentKind(kind) || kind == "keyword_separator" || kind == "positional_separator" {
				continue
			}
			if i == 0 && kind == "identifier" {
				if name := text(child, src); name == "self" || name == "cls" {
					continue
				}
			}
			count++
		}
		return count
	default:
		count := 0
		for _, child := range namedChildren(params) {
			if !isCommentKind(child.Kind()) {
				count++
			}
		}
		return count
	}
}

func typeName(n *sitter.Node, src []byte) string {
	for _, field := range []string{"name", "type"} {
		if nameNode := n.ChildByFieldName(field); nameNode != nil {
			return collapseSpace(text(nameNode, src))
		}
	}
	return ""
}

// isPublic reports whether a named declaration is visible outside its
// package: exported Go identifiers, `pub` Rust items, Java `public` members,
// exported JavaScript/TypeScript declarations and Python names without a
// leading underscore.
func isPublic(lang string, n *sitter.Node, name, receiver string, src []byte) bool {
	if name == "" {
		return false
	}
	switch lang {
	case "go":
		if receiver != "" && !startsUpper(receiver) {
			return false
		}
		return startsUpper(name)
	case "rust":
		for _, child := range namedChildren(n) {
			if child.Kind() == "visibility_modifier" {
				return text(child, src) == "pub"
			}
		}
	case "java":
		for _, child := range namedChildren(n) {
			if child.Kind() == "modifiers" {
				return slices.Contains(strings.Fields(text(child, src)), "public")
			}
		}
	case "javascript", "typescript", "tsx":
		parent := n.Parent()
		return parent != nil && parent.Kind() == "export_statement"
	case "python":
		return !strings.HasPrefix(name, "_")
	}
	return false
}

func startsUpper(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsUpper(r)
}

// hasDoc reports whether a comment ends on the line right above the
// declaration, or above the wrapper that carries it (a Go type group, an
// export, a Python decorator). Rust attributes between the comment and the
// item are skipped. Python definitions may carry a docstring instead.
func hasDoc(lang string, n *sitter.Node) bool {
	if lang == "python" && hasDocstring(n) {
		return true
	}
	for node := n; node != nil; node = node.Parent() {
		if commentAbove(node) {
			return true
		}
		parent := node.Parent()
		if parent == nil {
			return false
		}
		switch parent.Kind() {
		case "type_declaration", "export_statement", "decorated_definition":
		default:
			return false
		}
	}
	return false
}

func commentAbove(n *sitter.Node) bool {
	row := n.StartPosition().Row
	for prev := n.PrevSibling(); prev != nil; prev = prev.PrevSibling() {
		if prev.EndPosition().Row+1 < row {
			return false
		}
		switch {
		case isCommentKind(prev.Kind()):
			return true
		case prev.Kind() == "attribute_item":
			row = prev.StartPosition().Row
		default:
			return false
		}
	}
	return false
}

func hasDocstring(n *sitter.Node) bool {
	body := n.ChildByFieldName("body")
	if body == nil || body.NamedChildCount() == 0 {
		return false
	}
	first := body.NamedChild(0)
	if first == nil || first.Kind() != "expression_statement" {
		return false
	}
	expr := first.NamedChild(0)
	return expr != nil && expr.Kind() == "string"
}

// countFields counts struct fields, class attributes and record components
// declared directly by a type node.
func countFields(lang string, n *sitter.Node) int {
	count := 0
	switch lang {
	case "go":
		typ := n.ChildByFieldName("type")
		if typ == nil || typ.Kind() != "struct_type" {
			return 0
		}
		for _, list := range namedChildren(typ) {
			if list.Kind() != "field_declaration_list" {
				continue
			}
			for _, decl := range namedChildren(list) {
				if decl.Kind() != "field_declaration" {
					continue
				}
				names := 0
				for _, child := range namedChildren(decl) {
					if child.Kind() == "field_identifier" {
						names++
					}
				}
				// Embedded fields carry no name.
				count += max(names, 1)
			}
		}
	case "rust":
		body := n.ChildByFieldName("body")
		if body == nil {
			return 0
		}
		for _, child := range namedChildren(body) {
			switch child.Kind() {
			case "attribute_item", "visibility_modifier":
			case "field_declaration":
				count++
			default:
				if body.Kind() == "ordered_field_declaration_list" && !isCommentKind(child.Kind()) {
					count++
				}
			}
		}
	case "java":
		if params := n.ChildByFieldName("parameters"); params != nil {
			for _, child := range namedChildren(params) {
				if child.Kind() == "formal_parameter" {
					count++
				}
			}
		}
		for _, member := range namedChildren(n.ChildByFieldName("body")) {
			if member.Kind() != "field_declaration" {
				continue
			}
			for _, child := range namedChildren(member) {
				if child.Kind() == "variable_declarator" {
					count++
				}
			}
		}
	case "javascript", "typescript", "tsx":
		for _, member := range namedChildren(n.ChildByFieldName("body")) {
			switch member.Kind() {
			case "field_definition", "public_field_definition":
				count++
			}
		}
	case "python":
		for _, stmt := range namedChildren(n.ChildByFieldName("body")) {
			if stmt.Kind() != "expression_statement" {
				continue
			}
			if first := stmt.NamedChild(0); first != nil && first.Kind() == "assignment" {
				count++
			}
		}
	}
	return count
}

// importPaths extracts the raw module paths named by an import node.
func importPaths(lang string, n *sitter.Node, src []byte) []string {
	switch lang {
	case "go":
		if p := n.ChildByFieldName("path"); p != nil {
			return []string{trimQuotes(text(p, src))}
		}
	case "python":
		return pythonImportPaths(n, src)
	case "javascript", "typescript", "tsx":
		if source := n.ChildByFieldName("source"); source != nil {
			return []string{trimQuotes(text(source, src))}
		}
	case "java":
		var path string
		wildcard := false
		for _, child := range namedChildren(n) {
			switch child.Kind() {
			case "scoped_identifier", "identifier":
				path = text(child, src)
			case "asterisk":
				wildcard = true
			}
		}
		if path == "" {
			return nil
		}
		if wildcard {
			path += ".*"
		}
		return []string{path}
	case "rust":
		if n.Kind() == "extern_crate_declaration" {
			if name := n.ChildByFieldName("name"); name != nil {
				return []string{text(name, src)}
			}
			return nil
		}
		if arg := n.ChildByFieldName("argument"); arg != nil {
			return []string{rustUseBase(text(arg, src))}
		}
	case "css":
		for _, child := range namedChildren(n) {
			switch child.Kind() {
			case "string_value":
				return []string{trimQuotes(text(child, src))}
			case "call_expression":
				raw := text(child, src)
				raw = strings.TrimSuffix(strings.TrimPrefix(raw, "url("), ")")
				return []string{trimQuotes(raw)}
			}
		}
	}
	return nil
}

func pythonImportPaths(n *sitter.Node, src []byte) []string {
	if n.Kind() == "import_statement" {
		var out []string
		for _, child := range namedChildren(n) {
			switch child.Kind() {
			case "dotted_name":
				out = append(out, text(child, src))
			case "aliased_import":
				out = append(out, text(child.ChildByFieldName("name"), src))
			}
		}
		return out
	}

	module := n.ChildByFieldName("module_name")
	if module == nil {
		return nil
	}
	base := text(module, src)
	if strings.Trim(base, ".") != "" {
		return []string{base}
	}
	// from . import a, b -> .a, .b
	var out []string
	for _, child := range namedChildren(n) {
		if child.StartByte() == module.StartByte() {
			continue
		}
		switch child.Kind() {
		case "dotted_name":
			out = append(out, base+text(child, src))
		case "aliased_import":
			out = append(out, base+text(child.ChildByFieldName("name"), src))
		}
	}
	if len(out) == 0 {
		out = append(out, base)
	}
	return out
}

func rustUseBase(arg string) string {
	if i := strings.Index(arg, " as "); i > 0 {
		arg = arg[:i]
	}
	arg = strings.Join(strings.Fields(arg), "")
	if i := strings.Index(arg, "::{"); i >= 0 {
		arg = arg[:i]
	}
	return strings.TrimSuffix(arg, "::*")
}

// requirePath recognises CommonJS require("x") calls.
func requirePath(n *sitter.Node, src []byte) (string, bool) {
	fn := n.ChildByFieldName("function")
	if fn == nil || fn.Kind() != "identifier" || text(fn, src) != "require" {
		return "", false
	}
	args := n.ChildByFieldName("arguments")
	for _, arg := range namedChildren(args) {
		if arg.Kind() == "string" {
			return trimQuotes(text(arg, src)), true
		}
	}
	return "", false
}
