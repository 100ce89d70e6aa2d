package duplication

import (
	"context"
	"fmt"
	"sort"

	"archguard/internal/engine/facts"

	"golang.org/x/sync/errgroup"
)

// Config bounds the detector.
type Config struct {
	// Window is the number of tokens hashed per fingerprint.
	Window int
	// MinTokens discards shorter matches.
	MinTokens int
	// MinLines discards matches spanning fewer source lines.
	MinLines int
	// MaxBucket skips fingerprints shared by more positions; such windows
	// are boilerplate (imports, closing braces).
	MaxBucket int
	// Workers bounds fingerprinting parallelism.
	Workers int
}

func DefaultConfig() Config {
	return Config{Window: 25, MinTokens: 50, MinLines: 5, MaxBucket: 64, Workers: 4}
}

// Input is the token stream of one file.
type Input struct {
	Path   string
	Tokens []facts.Token
}

// Member is one occurrence of a duplicated span.
type Member struct {
	Path       string `json:"path"`
	StartLine  int    `json:"start_line"`
	EndLine    int    `json:"end_line"`
	StartToken int    `json:"-"`
	EndToken   int    `json:"-"` // exclusive
}

func (m Member) Lines() int { return m.EndLine - m.StartLine + 1 }

func (m Member) contains(o Member) bool {
	return m.Path == o.Path && m.StartToken <= o.StartToken && o.EndToken <= m.EndToken
}

func (m Member) overlaps(o Member) bool {
	return m.Path == o.Path && m.StartToken < o.EndToken && o.StartToken < m.EndToken
}

// Cluster is a set of non-overlapping spans with identical normalized tokens.
type Cluster struct {
	Fingerprint string   `json:"fingerprint"`
	Tokens      int      `json:"tokens"`
	Lines       int      `json:"lines"`
	Mass        int      `json:"mass"`
	Members     []Member `json:"members"`
}

// Result of one detection pass. Partial is set when the context expired
// before every fingerprint bucket was examined.
type Result struct {
	Clusters []Cluster
	Partial  bool
	Files    int
	Windows  int
}

type fileIndex struct {
	path         string
	tokens       []facts.Token
	tokenHashes  []uint64
	windowHashes []uint64
}

type position struct {
	file   int
	offset int
}

type match struct {
	a, b position
	n    int
}

// Detector is stateless apart from its configuration.
type Detector struct {
	cfg Config
}

func NewDetector(cfg Config) *Detector {
	def := DefaultConfig()
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.MinTokens < cfg.Window {
		cfg.MinTokens = cfg.Window
	}
	if cfg.MaxBucket <= 1 {
		cfg.MaxBucket = def.MaxBucket
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	return &Detector{cfg: cfg}
}

func (d *Detector) Config() Config { return d.cfg }

// Index is the global fingerprint index of a run. It is read-only once built.
type Index struct {
	d       *Detector
	files   []*fileIndex
	buckets map[uint64][]position
	partial bool
}

// Index fingerprints every input in parallel and builds the hash-to-location
// index. Inputs skipped because ctx expired mark the index partial.
func (d *Detector) Index(ctx context.Context, inputs []Input) *Index {
	sorted := append([]Input(nil), inputs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	files, partial := d.fingerprintAll(ctx, sorted)
	return &Index{d: d, files: files, buckets: d.buildIndex(files), partial: partial}
}

// Clusters examines the index and groups matches. It stops early when ctx
// is done and returns what it has found so far with Partial set.
func (ix *Index) Clusters(ctx context.Context) Result {
	res := Result{Files: len(ix.files)}
	for _, f := range ix.files {
		res.Windows += len(f.windowHashes)
	}
	matches, stopped := ix.d.collectMatches(ctx, ix.files, ix.buckets)
	res.Partial = ix.partial || stopped
	res.Clusters = ix.d.cluster(ix.files, matches)
	return res
}

// Detect is Index followed by Clusters.
func (d *Detector) Detect(ctx context.Context, inputs []Input) Result {
	return d.Index(ctx, inputs).Clusters(ctx)
}

func (d *Detector) fingerprintAll(ctx context.Context, inputs []Input) ([]*fileIndex, bool) {
	results := make([]*fileIndex, len(inputs))
	var g errgroup.Group
	g.SetLimit(d.cfg.Workers)
	for i := range inputs {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			th, wh := fingerprints(inputs[i].Tokens, d.cfg.Window)
			results[i] = &fileIndex{
				path:         inputs[i].Path,
				tokens:       inputs[i].Tokens,
				tokenHashes:  th,
				windowHashes: wh,
			}
			return nil
		})
	}
	_ = g.Wait()

	files := make([]*fileIndex, 0, len(results))
	partial := false
	for _, f := range results {
		if f == nil {
			partial = true
			continue
		}
		files = append(files, f)
	}
	return files, partial
}

// buildIndex maps fingerprints to positions, keeping only buckets that can
// produce a match and are not boilerplate.
func (d *Detector) buildIndex(files []*fileIndex) map[uint64][]position {
	all := make(map[uint64][]position)
	for fi, f := range files {
		for off, h := range f.windowHashes {
			all[h] = append(all[h], position{file: fi, offset: off})
		}
	}
	for h, positions := range all {
		if len(positions) < 2 || len(positions) > d.cfg.MaxBucket {
			delete(all, h)
		}
	}
	return all
}

func (d *Detector) collectMatches(ctx context.Context, files []*fileIndex, buckets map[uint64][]position) ([]match, bool) {
	keys := make([]uint64, 0, len(buckets))
	for h := range buckets {
		keys = append(keys, h)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	type pairKey struct{ fa, sa, fb, sb int }
	seen := make(map[pairKey]struct{})
	var out []match

	for i, h := range keys {
		if i%64 == 0 && ctx.Err() != nil {
			return out, true
		}
		positions := buckets[h]
		for x := 0; x < len(positions); x++ {
			for y := x + 1; y < len(positions); y++ {
				a, b := positions[x], positions[y]
				if !d.windowEqual(files, a, b) {
					continue
				}
				if d.startsInsideEarlierMatch(files, buckets, a, b) {
					continue
				}
				m, ok := d.extend(files, a, b)
				if !ok {
					continue
				}
				key := pairKey{m.a.file, m.a.offset, m.b.file, m.b.offset}
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				if d.qualifies(files, m) {
					out = append(out, m)
				}
			}
		}
	}
	return out, false
}

func tokensEqual(x, y facts.Token) bool {
	return x.Kind == y.Kind && x.Text == y.Text
}

// windowEqual verifies a fingerprint hit token by token.
func (d *Detector) windowEqual(files []*fileIndex, a, b position) bool {
	ta, tb := files[a.file].tokens, files[b.file].tokens
	for k := 0; k < d.cfg.Window; k++ {
		if !tokensEqual(ta[a.offset+k], tb[b.offset+k]) {
			return false
		}
	}
	return true
}

// startsInsideEarlierMatch reports whether the pair one token to the left is
// also an indexed match; that pair extends over this one.
func (d *Detector) startsInsideEarlierMatch(files []*fileIndex, buckets map[uint64][]position, a, b position) bool {
	if a.offset == 0 || b.offset == 0 {
		return false
	}
	fa, fb := files[a.file], files[b.file]
	if !tokensEqual(fa.tokens[a.offset-1], fb.tokens[b.offset-1]) {
		return false
	}
	_, indexed := buckets[fa.windowHashes[a.offset-1]]
	return indexed
}

// extend grows a verified window pair to its maximal extent in both
// directions. Occurrences in the same file are clipped so they never overlap.
func (d *Detector) extend(files []*fileIndex, a, b position) (match, bool) {
	if a.file > b.file || (a.file == b.file && a.offset > b.offset) {
		a, b = b, a
	}
	ta, tb := files[a.file].tokens, files[b.file].tokens
	for a.offset > 0 && b.offset > 0 && tokensEqual(ta[a.offset-1], tb[b.offset-1]) {
		a.offset--
		b.offset--
	}
	n := d.cfg.Window
	for a.offset+n < len(ta) && b.offset+n < len(tb) && tokensEqual(ta[a.offset+n], tb[b.offset+n]) {
		n++
	}
	if a.file == b.file {
		if gap := b.offset - a.offset; n > gap {
			n = gap
		}
	}
	if n < d.cfg.Window {
		return match{}, false
	}
	return match{a: a, b: b, n: n}, true
}

func (d *Detector) qualifies(files []*fileIndex, m match) bool {
	if m.n < d.cfg.MinTokens {
		return false
	}
	for _, p := range []position{m.a, m.b} {
		toks := files[p.file].tokens
		if toks[p.offset+m.n-1].Line-toks[p.offset].Line+1 < d.cfg.MinLines {
			return false
		}
	}
	return true
}

func (d *Detector) member(files []*fileIndex, p position, n int) Member {
	f := files[p.file]
	return Member{
		Path:       f.path,
		StartLine:  f.tokens[p.offset].Line,
		EndLine:    f.tokens[p.offset+n-1].Line,
		StartToken: p.offset,
		EndToken:   p.offset + n,
	}
}

type clusterBuilder struct {
	rep     position
	n       int
	hash    uint64
	members map[[2]int]Member
}

// cluster groups pairwise matches with identical content, drops overlapping
// members, and removes clusters whose every member is covered by a longer
// cluster.
func (d *Detector) cluster(files []*fileIndex, matches []match) []Cluster {
	byKey := make(map[[2]uint64][]*clusterBuilder)
	var builders []*clusterBuilder

	for _, m := range matches {
		fa := files[m.a.file]
		h := spanHash(fa.tokenHashes[m.a.offset : m.a.offset+m.n])
		key := [2]uint64{h, uint64(m.n)}
		var target *clusterBuilder
		for _, cb := range byKey[key] {
			if d.spanEqual(files, cb.rep, m.a, m.n) {
				target = cb
				break
			}
		}
		if target == nil {
			target = &clusterBuilder{rep: m.a, n: m.n, hash: h, members: make(map[[2]int]Member)}
			byKey[key] = append(byKey[key], target)
			builders = append(builders, target)
		}
		for _, p := range []position{m.a, m.b} {
			target.members[[2]int{p.file, p.offset}] = d.member(files, p, m.n)
		}
	}

	clusters := make([]Cluster, 0, len(builders))
	for _, cb := range builders {
		members := make([]Member, 0, len(cb.members))
		for _, mem := range cb.members {
			members = append(members, mem)
		}
		sortMembers(members)
		members = dropOverlapping(members)
		if len(members) < 2 {
			continue
		}
		lines := 0
		for _, mem := range members {
			if mem.Lines() > lines {
				lines = mem.Lines()
			}
		}
		clusters = append(clusters, Cluster{
			Fingerprint: fmt.Sprintf("%016x", cb.hash),
			Tokens:      cb.n,
			Lines:       lines,
			Mass:        cb.n * len(members),
			Members:     members,
		})
	}

	clusters = dropSubsumed(clusters)
	sort.SliceStable(clusters, func(i, j int) bool {
		if clusters[i].Mass != clusters[j].Mass {
			return clusters[i].Mass > clusters[j].Mass
		}
		a, b := clusters[i].Members[0], clusters[j].Members[0]
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		if a.StartLine != b.StartLine {
			return a.StartLine < b.StartLine
		}
		return clusters[i].Fingerprint < clusters[j].Fingerprint
	})
	return clusters
}

func (d *Detector) spanEqual(files []*fileIndex, a, b position, n int) bool {
	ta, tb := files[a.file].tokens, files[b.file].tokens
	for k := 0; k < n; k++ {
		if !tokensEqual(ta[a.offset+k], tb[b.offset+k]) {
			return false
		}
	}
	return true
}

func sortMembers(members []Member) {
	sort.Slice(members, func(i, j int) bool {
		if members[i].Path != members[j].Path {
			return members[i].Path < members[j].Path
		}
		return members[i].StartToken < members[j].StartToken
	})
}

func dropOverlapping(members []Member) []Member {
	out := members[:0]
	for _, mem := range members {
		if len(out) > 0 && out[len(out)-1].overlaps(mem) {
			continue
		}
		out = append(out, mem)
	}
	return out
}

// dropSubsumed removes a cluster when a longer cluster covers each of its
// members.
func dropSubsumed(clusters []Cluster) []Cluster {
	byPath := make(map[string][]struct {
		tokens int
		mem    Member
	})
	for _, c := range clusters {
		for _, mem := range c.Members {
			byPath[mem.Path] = append(byPath[mem.Path], struct {
				tokens int
				mem    Member
			}{c.Tokens, mem})
		}
	}

	out := clusters[:0]
	for _, c := range clusters {
		covered := true
		for _, mem := range c.Members {
			found := false
			for _, other := range byPath[mem.Path] {
				if other.tokens > c.Tokens && other.mem.contains(mem) {
					found = true
					break
				}
			}
			if !found {
				covered = false
				break
			}
		}
		if !covered {
			out = append(out, c)
		}
	}
	return out
}
