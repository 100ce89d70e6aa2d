package deps

import (
	"bufio"
	"bytes"
	"strings"

	"github.com/BurntSushi/toml"
	jsoniter "github.com/json-iterator/go"
	"golang.org/x/mod/modfile"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func readGoMod(s *Set, data []byte) error {
	mf, err := modfile.Parse("go.mod", data, nil)
	if err != nil {
		return err
	}
	if mf.Module != nil {
		s.GoModule = mf.Module.Mod.Path
	}
	for _, req := range mf.Require {
		s.Add(EcosystemGo, req.Mod.Path)
	}
	return nil
}

type packageJSON struct {
	Dependencies         map[string]string `json:"dependencies"`
	DevDependencies      map[string]string `json:"devDependencies"`
	PeerDependencies     map[string]string `json:"peerDependencies"`
	OptionalDependencies map[string]string `json:"optionalDependencies"`
}

func readPackageJSON(s *Set, data []byte) error {
	var pkg packageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		return err
	}
	for _, group := range []map[string]string{pkg.Dependencies, pkg.DevDependencies, pkg.PeerDependencies, pkg.OptionalDependencies} {
		for name := range group {
			s.Add(EcosystemNPM, name)
		}
	}
	return nil
}

func readRequirements(s *Set, data []byte) error {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		if name := requirementName(scanner.Text()); name != "" {
			s.Add(EcosystemPython, name)
		}
	}
	return scanner.Err()
}

// requirementName extracts the distribution name from one PEP 508 line.
// Options (-r, -e, --index-url) and comments yield "".
func requirementName(line string) string {
	if i := strings.Index(line, "#"); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "-") {
		return ""
	}
	end := strings.IndexAny(line, " ;[<>=!~@(")
	if end >= 0 {
		line = line[:end]
	}
	return strings.TrimSpace(line)
}

type pyProject struct {
	Project struct {
		Dependencies         []string            `toml:"dependencies"`
		OptionalDependencies map[string][]string `toml:"optional-dependencies"`
	} `toml:"project"`
	Tool struct {
		Poetry struct {
			Dependencies    map[string]any `toml:"dependencies"`
			DevDependencies map[string]any `toml:"dev-dependencies"`
			Group           map[string]struct {
				Dependencies map[string]any `toml:"dependencies"`
			} `toml:"group"`
		} `toml:"poetry"`
	} `toml:"tool"`
}

func readPyProject(s *Set, data []byte) error {
	var doc pyProject
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return err
	}
	for _, req := range doc.Project.Dependencies {
		s.Add(EcosystemPython, requirementName(req))
	}
	for _, group := range doc.Project.OptionalDependencies {
		for _, req := range group {
			s.Add(EcosystemPython, requirementName(req))
		}
	}
	poetry := doc.Tool.Poetry
	groups := []map[string]any{poetry.Dependencies, poetry.DevDependencies}
	for _, g := range poetry.Group {
		groups = append(groups, g.Dependencies)
	}
	for _, group := range groups {
		for name := range group {
			if strings.EqualFold(name, "python") {
				continue
			}
			s.Add(EcosystemPython, name)
		}
	}
	return nil
}

type cargoManifest struct {
	Dependencies      map[string]any `toml:"dependencies"`
	DevDependencies   map[string]any `toml:"dev-dependencies"`
	BuildDependencies map[string]any `toml:"build-dependencies"`
	Workspace         struct {
		Dependencies map[string]any `toml:"dependencies"`
	} `toml:"workspace"`
}

func readCargo(s *Set, data []byte) error {
	var doc cargoManifest
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return err
	}
	for _, group := range []map[string]any{doc.Dependencies, doc.DevDependencies, doc.BuildDependencies, doc.Workspace.Dependencies} {
		for name, spec := range group {
			s.Add(EcosystemCargo, name)
			// serde_json = { package = "serde-json" } renames the crate.
			if table, ok := spec.(map[string]any); ok {
				if pkg, ok := table["package"].(string); ok {
					s.Add(EcosystemCargo, pkg)
				}
			}
		}
	}
	return nil
}
