package duplication

import (
	"context"
	"fmt"
	"testing"

	"archguard/internal/engine/facts"
	"archguard/internal/engine/parser"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stream builds a token stream from segments; each segment is prefix×n
// distinct keywords. Four tokens share a line.
func stream(segments ...any) []facts.Token {
	var out []facts.Token
	for i := 0; i < len(segments); i += 2 {
		prefix := segments[i].(string)
		n := segments[i+1].(int)
		for k := 0; k < n; k++ {
			out = append(out, facts.Token{Kind: facts.TokenKeyword, Text: fmt.Sprintf("%s%d", prefix, k)})
		}
	}
	for i := range out {
		out[i].Line = i/4 + 1
	}
	return out
}

func TestDetect_CrossFileClone(t *testing.T) {
	d := NewDetector(DefaultConfig())
	res := d.Detect(context.Background(), []Input{
		{Path: "b.go", Tokens: stream("w", 10, "dup", 80, "x", 10)},
		{Path: "a.go", Tokens: stream("u", 30, "dup", 80, "v", 30)},
	})

	require.False(t, res.Partial)
	require.Len(t, res.Clusters, 1)
	c := res.Clusters[0]
	assert.Equal(t, 80, c.Tokens)
	assert.Equal(t, 160, c.Mass)
	require.Len(t, c.Members, 2)
	assert.Equal(t, Member{Path: "a.go", StartLine: 8, EndLine: 28, StartToken: 30, EndToken: 110}, c.Members[0])
	assert.Equal(t, Member{Path: "b.go", StartLine: 3, EndLine: 23, StartToken: 10, EndToken: 90}, c.Members[1])
}

func TestDetect_ThreeCopiesFormOneCluster(t *testing.T) {
	d := NewDetector(DefaultConfig())
	res := d.Detect(context.Background(), []Input{
		{Path: "a.go", Tokens: stream("dup", 80)},
		{Path: "b.go", Tokens: stream("p", 7, "dup", 80)},
		{Path: "c.go", Tokens: stream("q", 3, "dup", 80, "r", 9)},
	})

	require.Len(t, res.Clusters, 1)
	assert.Len(t, res.Clusters[0].Members, 3)
	assert.Equal(t, 240, res.Clusters[0].Mass)
}

func TestDetect_SameFileRepeat(t *testing.T) {
	d := NewDetector(DefaultConfig())
	res := d.Detect(context.Background(), []Input{
		{Path: "a.go", Tokens: stream("dup", 60, "sep", 5, "dup", 60)},
	})

	require.Len(t, res.Clusters, 1)
	members := res.Clusters[0].Members
	require.Len(t, members, 2)
	assert.Equal(t, 0, members[0].StartToken)
	assert.Equal(t, 65, members[1].StartToken)
	assert.False(t, members[0].overlaps(members[1]))
}

func TestDetect_ShortMatchesDiscarded(t *testing.T) {
	d := NewDetector(DefaultConfig())
	res := d.Detect(context.Background(), []Input{
		{Path: "a.go", Tokens: stream("u", 10, "dup", 40, "v", 10)},
		{Path: "b.go", Tokens: stream("w", 10, "dup", 40, "x", 10)},
	})
	assert.Empty(t, res.Clusters)
}

func TestDetect_MinLines(t *testing.T) {
	oneLine := func(tokens []facts.Token) []facts.Token {
		for i := range tokens {
			tokens[i].Line = 1
		}
		return tokens
	}
	d := NewDetector(DefaultConfig())
	res := d.Detect(context.Background(), []Input{
		{Path: "a.min.js", Tokens: oneLine(stream("dup", 80))},
		{Path: "b.min.js", Tokens: oneLine(stream("dup", 80))},
	})
	assert.Empty(t, res.Clusters)
}

func TestDetect_BoilerplateBucketsSkipped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxBucket = 3
	d := NewDetector(cfg)
	var inputs []Input
	for i := 0; i < 5; i++ {
		inputs = append(inputs, Input{Path: fmt.Sprintf("f%d.go", i), Tokens: stream(fmt.Sprintf("own%d_", i), 5, "dup", 80)})
	}
	res := d.Detect(context.Background(), inputs)
	assert.Empty(t, res.Clusters)
}

func TestDetect_CancelledContextIsPartial(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := NewDetector(DefaultConfig())
	res := d.Detect(ctx, []Input{
		{Path: "a.go", Tokens: stream("dup", 80)},
		{Path: "b.go", Tokens: stream("dup", 80)},
	})
	assert.True(t, res.Partial)
	assert.Empty(t, res.Clusters)
}

func TestDetect_Deterministic(t *testing.T) {
	inputs := []Input{
		{Path: "a.go", Tokens: stream("u", 30, "dup", 80, "v", 30, "two", 60)},
		{Path: "b.go", Tokens: stream("two", 60, "dup", 80)},
		{Path: "c.go", Tokens: stream("dup", 80, "z", 3, "two", 60)},
	}
	d := NewDetector(DefaultConfig())
	first := d.Detect(context.Background(), inputs)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, d.Detect(context.Background(), inputs))
	}
	require.Len(t, first.Clusters, 2)
	assert.GreaterOrEqual(t, first.Clusters[0].Mass, first.Clusters[1].Mass)
}

func TestDropSubsumed(t *testing.T) {
	long := Cluster{Tokens: 100, Members: []Member{
		{Path: "a", StartToken: 0, EndToken: 100},
		{Path: "b", StartToken: 0, EndToken: 100},
	}}
	inner := Cluster{Tokens: 60, Members: []Member{
		{Path: "a", StartToken: 20, EndToken: 80},
		{Path: "b", StartToken: 20, EndToken: 80},
	}}
	partly := Cluster{Tokens: 60, Members: []Member{
		{Path: "a", StartToken: 20, EndToken: 80},
		{Path: "c", StartToken: 0, EndToken: 60},
	}}

	got := dropSubsumed([]Cluster{long, inner, partly})
	require.Len(t, got, 2)
	assert.Equal(t, 100, got[0].Tokens)
	assert.Equal(t, "c", got[1].Members[1].Path)
}

const cloneA = `package billing

func Total(items []Item, rate float64) float64 {
	sum := 0.0
	for _, item := range items {
		if item.Qty > 0 {
			sum += item.Price * float64(item.Qty)
		}
	}
	if sum > 1000 {
		sum = sum * (1 - rate)
	}
	return sum
}
`

const cloneB = `package orders

func Amount(lines []Line, discount float64) float64 {
	acc := 0.0
	for _, ln := range lines {
		if ln.Count > 0 {
			acc += ln.Cost * float64(ln.Count)
		}
	}
	if acc > 5000 {
		acc = acc * (1 - discount)
	}
	return acc
}
`

func TestDetect_RenamedClone(t *testing.T) {
	loader, err := parser.NewGrammarLoader(nil)
	require.NoError(t, err)
	p := parser.NewParser(loader, parser.Options{})

	var inputs []Input
	for path, src := range map[string]string{"billing/total.go": cloneA, "orders/amount.go": cloneB} {
		syntax, err := p.Parse(path, []byte(src))
		require.NoError(t, err)
		t.Cleanup(syntax.Close)
		inputs = append(inputs, Input{Path: path, Tokens: facts.Extract(syntax.Root).Tokens})
	}

	cfg := DefaultConfig()
	cfg.MinTokens = 40
	res := NewDetector(cfg).Detect(context.Background(), inputs)
	require.Len(t, res.Clusters, 1, "renaming identifiers must not hide the clone")
	c := res.Clusters[0]
	require.Len(t, c.Members, 2)
	assert.Equal(t, "billing/total.go", c.Members[0].Path)
	assert.Equal(t, "orders/amount.go", c.Members[1].Path)
	assert.GreaterOrEqual(t, c.Members[0].Lines(), 5)
}
