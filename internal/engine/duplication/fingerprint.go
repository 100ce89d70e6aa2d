// Package duplication finds structural clones across files by fingerprinting
// windows of normalized tokens.
package duplication

import (
	"archguard/internal/engine/facts"

	"github.com/zeebo/xxh3"
)

// rollBase is the multiplier of the polynomial rolling hash. Arithmetic wraps
// modulo 2^64.
const rollBase uint64 = 1099511628211

func tokenHash(tok facts.Token) uint64 {
	buf := make([]byte, 0, len(tok.Text)+1)
	buf = append(buf, byte(tok.Kind))
	buf = append(buf, tok.Text...)
	return xxh3.Hash(buf)
}

// fingerprints returns one hash per window start. Files shorter than the
// window produce none.
func fingerprints(tokens []facts.Token, window int) (tokenHashes, windowHashes []uint64) {
	tokenHashes = make([]uint64, len(tokens))
	for i, tok := range tokens {
		tokenHashes[i] = tokenHash(tok)
	}
	if window <= 0 || len(tokens) < window {
		return tokenHashes, nil
	}

	// top = rollBase^(window-1)
	top := uint64(1)
	for i := 1; i < window; i++ {
		top *= rollBase
	}

	windowHashes = make([]uint64, len(tokens)-window+1)
	var h uint64
	for i := 0; i < window; i++ {
		h = h*rollBase + tokenHashes[i]
	}
	windowHashes[0] = h
	for i := 1; i < len(windowHashes); i++ {
		h = (h-tokenHashes[i-1]*top)*rollBase + tokenHashes[i+window-1]
		windowHashes[i] = h
	}
	return tokenHashes, windowHashes
}

// spanHash identifies the full token content of a match for clustering.
func spanHash(tokenHashes []uint64) uint64 {
	buf := make([]byte, 0, len(tokenHashes)*8)
	for _, h := range tokenHashes {
		buf = append(buf,
			byte(h), byte(h>>8), byte(h>>16), byte(h>>24),
			byte(h>>32), byte(h>>40), byte(h>>48), byte(h>>56))
	}
	return xxh3.Hash(buf)
}
