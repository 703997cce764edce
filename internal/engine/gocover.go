package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/mod/modfile"
	"golang.org/x/tools/cover"

	"github.com/zjy-dev/coveralls/internal/coverage"
)

// GoCover reads `go test -coverprofile` output.
type GoCover struct {
	*snapshot
	modulePath string
	profiles   map[string]*cover.Profile
}

// NewGoCover parses the profile at profilePath. Profile file names are
// import paths; they are mapped to disk through the module path declared in
// the go.mod found at the project root.
func NewGoCover(profilePath string, opts Options) (*GoCover, error) {
	snap, filter, err := newSnapshot(opts)
	if err != nil {
		return nil, err
	}

	profiles, err := cover.ParseProfiles(profilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to parse cover profile: %w", err)
	}

	modulePath, err := readModulePath(filepath.Join(snap.root, "go.mod"))
	if err != nil {
		return nil, err
	}

	g := &GoCover{
		snapshot:   snap,
		modulePath: modulePath,
		profiles:   make(map[string]*cover.Profile, len(profiles)),
	}
	for _, p := range profiles {
		path := g.diskPath(p.FileName)
		if prev, ok := g.profiles[path]; ok {
			prev.Blocks = append(prev.Blocks, p.Blocks...)
			continue
		}
		if snap.add(path, filter) {
			g.profiles[path] = p
		}
	}
	snap.sort()
	return g, nil
}

// readModulePath returns the module path of a go.mod file, or "" when the
// file does not exist.
func readModulePath(goModPath string) (string, error) {
	content, err := os.ReadFile(goModPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read %s: %w", goModPath, err)
	}
	parsed, err := modfile.Parse(goModPath, content, nil)
	if err != nil {
		return "", fmt.Errorf("failed to parse %s: %w", goModPath, err)
	}
	if parsed.Module == nil {
		return "", nil
	}
	return parsed.Module.Mod.Path, nil
}

// diskPath maps a profile file name to a file under the project root.
func (g *GoCover) diskPath(name string) string {
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}
	if g.modulePath != "" {
		if name == g.modulePath {
			return g.root
		}
		if rel, ok := strings.CutPrefix(name, g.modulePath+"/"); ok {
			return g.abs(rel)
		}
	}
	return g.abs(name)
}

// ModulePath returns the module path read from go.mod.
func (g *GoCover) ModulePath() string {
	return g.modulePath
}

// Analyze implements coverage.AnalysisSource. A line is a statement when a
// block with statements spans it, and missing when every such block has a
// zero count.
func (g *GoCover) Analyze(path string) coverage.FileResult {
	p, ok := g.profiles[path]
	if !ok {
		return coverage.Fail(coverage.NoSource(path, errors.New("not in cover profile")))
	}

	statements := coverage.LineSet{}
	hit := coverage.LineSet{}
	for _, b := range p.Blocks {
		if b.NumStmt == 0 {
			continue
		}
		for l := b.StartLine; l <= b.EndLine; l++ {
			statements.Add(l)
			if b.Count > 0 {
				hit.Add(l)
			}
		}
	}
	missing := coverage.LineSet{}
	for l := range statements {
		if !hit.Has(l) {
			missing.Add(l)
		}
	}

	return g.build(path, statements, missing, nil)
}
