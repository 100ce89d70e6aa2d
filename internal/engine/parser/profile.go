package parser

import (
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// profile maps one grammar's node kinds onto structural variants.
type profile struct {
	functions map[string]FunctionKind
	types     map[string]string
	imports   map[string]bool
	calls     map[string]string // kind -> field holding the callee
	blocks    map[string]bool
	branches  map[string]bool
	loops     map[string]bool
	// binary kinds that are branches when their operator is short-circuit.
	logical    map[string]bool
	logicalOps map[string]bool
	// enclosing kinds that turn a plain function into a method.
	methodHosts map[string]bool
}

func set(values ...string) map[string]bool {
	out := make(map[string]bool, len(values))
	for _, v := range values {
		out[v] = true
	}
	return out
}

var cFamilyLogical = set("&&", "||", "??")

var profiles = map[string]*profile{
	"go": {
		functions: map[string]FunctionKind{
			"function_declaration": FunctionPlain,
			"method_declaration":   FunctionMethod,
			"func_literal":         FunctionClosure,
		},
		types:    map[string]string{"type_spec": "type", "type_alias": "alias"},
		imports:  set("import_spec"),
		calls:    map[string]string{"call_expression": "function"},
		blocks:   set("block", "expression_switch_statement", "type_switch_statement", "select_statement"),
		branches: set("if_statement", "expression_case", "type_case", "communication_case"),
		loops:    set("for_statement"),
		logical:  set("binary_expression"), logicalOps: set("&&", "||"),
	},
	"python": {
		functions: map[string]FunctionKind{
			"function_definition": FunctionPlain,
			"lambda":              FunctionClosure,
		},
		types:       map[string]string{"class_definition": "class"},
		imports:     set("import_statement", "import_from_statement"),
		calls:       map[string]string{"call": "function"},
		blocks:      set("block"),
		branches:    set("if_statement", "elif_clause", "except_clause", "conditional_expression", "case_clause", "boolean_operator"),
		loops:       set("for_statement", "while_statement", "for_in_clause"),
		methodHosts: set("class_definition"),
	},
	"javascript": jsProfile(),
	"typescript": tsProfile(),
	"tsx":        tsProfile(),
	"java": {
		functions: map[string]FunctionKind{
			"method_declaration":      FunctionMethod,
			"constructor_declaration": FunctionMethod,
			"lambda_expression":       FunctionClosure,
		},
		types: map[string]string{
			"class_declaration":           "class",
			"interface_declaration":       "interface",
			"enum_declaration":            "enum",
			"record_declaration":          "record",
			"annotation_type_declaration": "annotation",
		},
		imports:  set("import_declaration"),
		calls:    map[string]string{"method_invocation": "name", "object_creation_expression": "type"},
		blocks:   set("block", "constructor_body", "switch_block"),
		branches: set("if_statement", "switch_label", "catch_clause", "ternary_expression"),
		loops:    set("for_statement", "enhanced_for_statement", "while_statement", "do_statement"),
		logical:  set("binary_expression"), logicalOps: set("&&", "||"),
	},
	"rust": {
		functions: map[string]FunctionKind{
			"function_item":      FunctionPlain,
			"closure_expression": FunctionClosure,
		},
		types: map[string]string{
			"struct_item": "struct",
			"enum_item":   "enum",
			"trait_item":  "trait",
			"type_item":   "alias",
			"union_item":  "union",
			"impl_item":   "impl",
		},
		imports:  set("use_declaration", "extern_crate_declaration"),
		calls:    map[string]string{"call_expression": "function", "macro_invocation": "macro"},
		blocks:   set("block", "match_block"),
		branches: set("if_expression", "match_arm"),
		loops:    set("for_expression", "while_expression", "loop_expression"),
		logical:  set("binary_expression"), logicalOps: set("&&", "||"),
		methodHosts: set("impl_item", "trait_item"),
	},
	"css": {
		imports: set("import_statement"),
		blocks:  set("block"),
	},
	"html": {},
}

func jsProfile() *profile {
	return &profile{
		functions: map[string]FunctionKind{
			"function_declaration":           FunctionPlain,
			"generator_function_declaration": FunctionPlain,
			"function_expression":            FunctionClosure,
			"function":                       FunctionClosure,
			"generator_function":             FunctionClosure,
			"arrow_function":                 FunctionClosure,
			"method_definition":              FunctionMethod,
		},
		types:    map[string]string{"class_declaration": "class", "class": "class"},
		imports:  set("import_statement", "export_statement"),
		calls:    map[string]string{"call_expression": "function", "new_expression": "constructor"},
		blocks:   set("statement_block", "switch_body"),
		branches: set("if_statement", "switch_case", "catch_clause", "ternary_expression"),
		loops:    set("for_statement", "for_in_statement", "while_statement", "do_statement"),
		logical:  set("binary_expression"), logicalOps: cFamilyLogical,
	}
}

func tsProfile() *profile {
	p := jsProfile()
	p.types["interface_declaration"] = "interface"
	p.types["type_alias_declaration"] = "alias"
	p.types["enum_declaration"] = "enum"
	p.types["abstract_class_declaration"] = "class"
	return p
}

var literalKinds = map[string]LiteralKind{
	"interpreted_string_literal": LiteralString,
	"raw_string_literal":         LiteralString,
	"rune_literal":               LiteralString,
	"string":                     LiteralString,
	"string_literal":             LiteralString,
	"template_string":            LiteralString,
	"concatenated_string":        LiteralString,
	"char_literal":               LiteralString,
	"character_literal":          LiteralString,
	"string_value":               LiteralString,
	"text_block":                 LiteralString,
	"regex":                      LiteralString,
	"quoted_attribute_value":     LiteralString,

	"int_literal":                    LiteralNumber,
	"float_literal":                  LiteralNumber,
	"imaginary_literal":              LiteralNumber,
	"integer":                        LiteralNumber,
	"float":                          LiteralNumber,
	"number":                         LiteralNumber,
	"integer_literal":                LiteralNumber,
	"decimal_integer_literal":        LiteralNumber,
	"hex_integer_literal":            LiteralNumber,
	"octal_integer_literal":          LiteralNumber,
	"binary_integer_literal":         LiteralNumber,
	"decimal_floating_point_literal": LiteralNumber,
	"hex_floating_point_literal":     LiteralNumber,
	"integer_value":                  LiteralNumber,
	"float_value":                    LiteralNumber,

	"true":            LiteralBool,
	"false":           LiteralBool,
	"boolean_literal": LiteralBool,

	"nil":          LiteralNull,
	"null":         LiteralNull,
	"none":         LiteralNull,
	"undefined":    LiteralNull,
	"null_literal": LiteralNull,
}

func isCommentKind(kind string) bool {
	return strings.Contains(kind, "comment")
}

func isWord(text string) bool {
	if text == "" {
		return false
	}
	for _, r := range text {
		if r != '_' && (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}

func text(n *sitter.Node, src []byte) string {
	if n == nil {
		return ""
	}
	return n.Utf8Text(src)
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func trimQuotes(s string) string {
	return strings.Trim(strings.TrimSpace(s), "\"'`")
}

func namedChildren(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	out := make([]*sitter.Node, 0, n.NamedChildCount())
	for i := uint(0); i < n.NamedChildCount(); i++ {
		if child := n.NamedChild(i); child != nil {
			out = append(out, child)
		}
	}
	return out
}
