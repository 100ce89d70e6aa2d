package parser

import (
	"sync"
	"sync/atomic"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// ParserPool recycles tree-sitter parser instances for one grammar so Phase 1
// workers do not pay sitter.NewParser per file.
//
//	sp := pool.Get()
//	defer pool.Put(sp)
//	tree := sp.Parse(source, nil)
//
// Safe for concurrent use.
type ParserPool struct {
	lang   *sitter.Language
	pool   sync.Pool
	leased atomic.Int64
}

// NewParserPool creates a pool for the given language grammar.
// The language must remain valid for the lifetime of the pool.
func NewParserPool(lang *sitter.Language) *ParserPool {
	p := &ParserPool{lang: lang}
	p.pool = sync.Pool{
		New: func() any {
			sp := sitter.NewParser()
			_ = sp.SetLanguage(lang)
			return sp
		},
	}
	return p
}

// Get retrieves a configured parser from the pool.
func (p *ParserPool) Get() *sitter.Parser {
	sp := p.pool.Get().(*sitter.Parser)
	// Reset() clears the language on some binding versions.
	_ = sp.SetLanguage(p.lang)
	p.leased.Add(1)
	return sp
}

// Put resets sp and returns it to the pool. Callers must not use sp afterwards.
func (p *ParserPool) Put(sp *sitter.Parser) {
	if sp == nil {
		return
	}
	p.leased.Add(-1)
	sp.Reset()
	p.pool.Put(sp)
}

// Leased returns the number of parsers currently checked out.
func (p *ParserPool) Leased() int {
	return int(p.leased.Load())
}
