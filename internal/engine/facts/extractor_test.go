package facts

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"

	"archguard/internal/engine/parser"
)

func parse(t *testing.T, path, src string) *parser.Syntax {
	t.Helper()
	loader, err := parser.NewGrammarLoader(nil)
	if err != nil {
		t.Fatalf("loader: %v", err)
	}
	syntax, err := parser.NewParser(loader, parser.Options{}).Parse(path, []byte(src))
	if err != nil {
		t.Fatalf("parse %s: %v", path, err)
	}
	t.Cleanup(syntax.Close)
	return syntax
}

const goSource = `package demo

import "fmt"

// TODO: split this up
func Process(items []int, limit int) int {
	total := 0
	for _, it := range items {
		if it > limit {
			if it%2 == 0 || it > 100 {
				total += it
			}
		}
	}
	helper := func(x int) int {
		if x > 0 {
			return x
		}
		return 0
	}
	fmt.Println(helper(total))
	return total
}
`

func TestExtractFunctionCounters(t *testing.T) {
	f := Extract(parse(t, "demo/process.go", goSource).Root)

	if f.Language != "go" {
		t.Fatalf("expected go, got %q", f.Language)
	}
	if len(f.Functions) != 2 {
		t.Fatalf("expected outer function and closure, got %d", len(f.Functions))
	}

	outer := f.Functions[0]
	if outer.Name != "Process" || outer.Kind != "function" {
		t.Fatalf("unexpected outer function %+v", outer)
	}
	if outer.Params != 2 {
		t.Errorf("expected 2 params, got %d", outer.Params)
	}
	// for-block(1) > if-block(2) > if-block(3)
	if outer.MaxNesting != 3 {
		t.Errorf("expected nesting 3, got %d", outer.MaxNesting)
	}
	// two ifs and one || ; the closure's if is not counted here
	if outer.Branches != 3 {
		t.Errorf("expected 3 branches, got %d", outer.Branches)
	}
	if outer.Loops != 1 {
		t.Errorf("expected 1 loop, got %d", outer.Loops)
	}
	if outer.Cyclomatic != 5 {
		t.Errorf("expected cyclomatic 5, got %d", outer.Cyclomatic)
	}
	if outer.StartLine != 6 || outer.EndLine != 23 || outer.Lines != 18 {
		t.Errorf("unexpected span %d-%d (%d lines)", outer.StartLine, outer.EndLine, outer.Lines)
	}

	closure := f.Functions[1]
	if closure.Kind != "closure" || closure.Name != "helper" {
		t.Errorf("expected closure named after its binding, got %+v", closure)
	}
	if closure.Branches != 1 || closure.MaxNesting != 1 {
		t.Errorf("unexpected closure counters %+v", closure)
	}

	if len(f.Imports) != 1 || f.Imports[0].Path != "fmt" || f.Imports[0].Line != 3 {
		t.Errorf("unexpected imports %+v", f.Imports)
	}
	if len(f.Comments) != 1 || f.Comments[0].Line != 5 {
		t.Errorf("unexpected comments %+v", f.Comments)
	}
	if len(f.Calls) != 2 || f.Calls[0].Callee != "fmt.Println" {
		t.Errorf("unexpected calls %+v", f.Calls)
	}
}

func TestExtractIsDeterministic(t *testing.T) {
	first, err := json.Marshal(Extract(parse(t, "a.go", goSource).Root))
	if err != nil {
		t.Fatal(err)
	}
	second, err := json.Marshal(Extract(parse(t, "b.go", goSource).Root))
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != string(second) {
		t.Fatal("expected byte-identical facts for identical content")
	}
}

func TestTokensNormalizeIdentifiersAndLiterals(t *testing.T) {
	a := Extract(parse(t, "a.py", "def area(w, h):\n    return w * h * 2\n").Root)
	b := Extract(parse(t, "b.py", "def size(x, y):\n    return x * y * 7\n").Root)

	if len(a.Tokens) != len(b.Tokens) {
		t.Fatalf("token count differs: %d vs %d", len(a.Tokens), len(b.Tokens))
	}
	for i := range a.Tokens {
		if a.Tokens[i] != b.Tokens[i] {
			t.Fatalf("token %d differs: %+v vs %+v", i, a.Tokens[i], b.Tokens[i])
		}
	}

	var sawKeyword, sawNumber bool
	for _, tok := range a.Tokens {
		if tok.Kind == TokenKeyword && tok.Text == "def" {
			sawKeyword = true
		}
		if tok.Kind == TokenLiteral && tok.Text == "$num" {
			sawNumber = true
		}
		if tok.Kind == TokenIdentifier && tok.Text != PlaceholderIdentifier {
			t.Fatalf("identifier leaked raw text %q", tok.Text)
		}
	}
	if !sawKeyword || !sawNumber {
		t.Fatalf("expected keyword and typed literal placeholders, got %+v", a.Tokens)
	}
}

func TestExtractStringLiterals(t *testing.T) {
	f := Extract(parse(t, "settings.py", "KEY = \"AKIA1234567890ABCDEF\"\nlabel = 'ok'\ncount = 3\n").Root)
	want := []StringFact{
		{Text: `"AKIA1234567890ABCDEF"`, Line: 1},
		{Text: `'ok'`, Line: 2},
	}
	if diff := cmp.Diff(want, f.Strings); diff != "" {
		t.Fatalf("string literals mismatch (-want +got):\n%s", diff)
	}
}

func TestQualifiedName(t *testing.T) {
	fn := FunctionFact{Name: "Handle", Receiver: "Server"}
	if fn.QualifiedName() != "Server.Handle" {
		t.Fatalf("unexpected %q", fn.QualifiedName())
	}
	if (FunctionFact{Name: "run"}).QualifiedName() != "run" {
		t.Fatal("expected plain name without receiver")
	}
}
