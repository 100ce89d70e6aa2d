package parser

import (
	"bytes"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	domainerrors "archguard/internal/core/errors"
	"archguard/internal/shared/observability"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// Options tune how strictly the adapter treats malformed input.
type Options struct {
	// TolerateErrors accepts trees containing error nodes instead of
	// reporting the file as unparsable.
	TolerateErrors bool
	// MaxFileBytes rejects larger files; zero disables the limit.
	MaxFileBytes int
}

// Parser is the language adapter: raw source in, structural tree out.
type Parser struct {
	loader *GrammarLoader
	opts   Options
	pools  map[string]*ParserPool
}

func NewParser(loader *GrammarLoader, opts Options) *Parser {
	p := &Parser{
		loader: loader,
		opts:   opts,
		pools:  make(map[string]*ParserPool),
	}
	for _, id := range loader.Languages() {
		lang, _ := loader.Language(id)
		p.pools[id] = NewParserPool(lang)
	}
	return p
}

func (p *Parser) Loader() *GrammarLoader { return p.loader }

// Syntax is the parse result of one file. It keeps the tree-sitter tree alive
// for structural-pattern queries until Close is called.
type Syntax struct {
	Language string
	Root     *File

	mu     sync.Mutex
	tree   *sitter.Tree
	source []byte
}

// Parse converts content into a Syntax. Failures are returned as PARSE_ERROR
// (malformed input) or NOT_SUPPORTED (no grammar) domain errors.
func (p *Parser) Parse(path string, content []byte) (*Syntax, error) {
	language := p.loader.DetectLanguage(path)
	if language == "" {
		return nil, domainerrors.AddContext(
			domainerrors.New(domainerrors.CodeNotSupported, "no grammar registered for file"),
			domainerrors.CtxPath, path)
	}
	return p.ParseAs(language, path, content)
}

// ParseAs parses content with an explicit language.
func (p *Parser) ParseAs(language, path string, content []byte) (*Syntax, error) {
	pool, ok := p.pools[language]
	if !ok {
		return nil, parseError(domainerrors.CodeNotSupported, path, language, "language is not enabled")
	}
	if p.opts.MaxFileBytes > 0 && len(content) > p.opts.MaxFileBytes {
		return nil, parseError(domainerrors.CodeParse, path, language,
			fmt.Sprintf("file exceeds %d bytes", p.opts.MaxFileBytes))
	}
	if bytes.IndexByte(content, 0) >= 0 {
		return nil, parseError(domainerrors.CodeParse, path, language, "binary content")
	}
	if !utf8.Valid(content) {
		return nil, parseError(domainerrors.CodeParse, path, language, "content is not valid UTF-8")
	}

	start := time.Now()
	sp := pool.Get()
	tree := sp.Parse(content, nil)
	pool.Put(sp)
	observability.ParsingDuration.WithLabelValues(language).Observe(time.Since(start).Seconds())

	if tree == nil {
		return nil, parseError(domainerrors.CodeParse, path, language, "parser returned no tree")
	}
	root := tree.RootNode()
	if root.HasError() && !p.opts.TolerateErrors {
		line := firstErrorLine(root)
		tree.Close()
		return nil, parseError(domainerrors.CodeParse, path, language,
			fmt.Sprintf("syntax error near line %d", line))
	}

	b := &builder{lang: language, prof: profiles[language], src: content}
	if b.prof == nil {
		b.prof = &profile{}
	}
	syntax := &Syntax{
		Language: language,
		Root:     b.buildFile(root, countLines(content)),
		tree:     tree,
		source:   content,
	}
	slog.Debug("parsed file", "path", path, "language", language, "nodes", Count(syntax.Root))
	return syntax, nil
}

// Query runs a compiled structural-pattern query against the retained tree.
// fn receives the capture names and nodes of each match.
func (s *Syntax) Query(q *sitter.Query, fn func(captures []Capture)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tree == nil || q == nil {
		return
	}
	cursor := sitter.NewQueryCursor()
	defer cursor.Close()

	names := q.CaptureNames()
	matches := cursor.Matches(q, s.tree.RootNode(), s.source)
	for match := matches.Next(); match != nil; match = matches.Next() {
		captures := make([]Capture, 0, len(match.Captures))
		for _, c := range match.Captures {
			node := c.Node
			name := ""
			if int(c.Index) < len(names) {
				name = names[c.Index]
			}
			captures = append(captures, Capture{
				Name: name,
				Text: node.Utf8Text(s.source),
				Span: spanOf(&node),
			})
		}
		fn(captures)
	}
}

// Close releases the tree-sitter tree. The structural tree stays usable.
func (s *Syntax) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tree != nil {
		s.tree.Close()
		s.tree = nil
	}
	s.source = nil
}

// Capture is one named node of a query match.
type Capture struct {
	Name string
	Text string
	Span Span
}

func parseError(code domainerrors.ErrorCode, path, language, reason string) error {
	err := domainerrors.New(code, reason)
	err = domainerrors.AddContext(err, domainerrors.CtxPath, path)
	return domainerrors.AddContext(err, domainerrors.CtxLanguage, language)
}

func firstErrorLine(n *sitter.Node) int {
	if n.IsError() || n.IsMissing() {
		return int(n.StartPosition().Row) + 1
	}
	for i := uint(0); i < n.ChildCount(); i++ {
		child := n.Child(i)
		if child != nil && (child.HasError() || child.IsMissing()) {
			return firstErrorLine(child)
		}
	}
	return int(n.StartPosition().Row) + 1
}

func countLines(content []byte) int {
	if len(content) == 0 {
		return 0
	}
	lines := bytes.Count(content, []byte{'\n'})
	if content[len(content)-1] != '\n' {
		lines++
	}
	return lines
}
