package resolver

import (
	_ "embed"
	"strings"
)

//go:embed stdlib/python.txt
var pythonStdlibData string

//go:embed stdlib/node.txt
var nodeBuiltinData string

var (
	pythonStdlib = loadNames(pythonStdlibData)
	nodeBuiltins = loadNames(nodeBuiltinData)
	rustStdlib   = map[string]bool{"std": true, "core": true, "alloc": true, "proc_macro": true, "test": true}
)

func loadNames(data string) map[string]bool {
	out := make(map[string]bool)
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out[line] = true
	}
	return out
}
