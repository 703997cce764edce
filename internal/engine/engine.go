// Package engine adapts the output of coverage measurement tools to
// coverage.AnalysisSource.
package engine

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zjy-dev/coveralls/internal/coverage"
)

// DefaultEngine is used when no engine is configured.
const DefaultEngine = "gocover"

// Options are shared by all engine adapters.
type Options struct {
	// Root is the project root. Relative paths in reports are resolved
	// against it. Defaults to the working directory.
	Root string
	// Include and Omit are doublestar patterns over root-relative paths.
	Include []string
	Omit    []string
	// CheckSyntax rejects sources that fail to parse.
	CheckSyntax bool
}

// Factory opens a coverage report with an engine adapter.
type Factory func(reportPath string, opts Options) (coverage.AnalysisSource, error)

type registration struct {
	factory       Factory
	defaultReport string
}

var registry = map[string]registration{}

// Register adds an engine adapter under name.
func Register(name, defaultReport string, factory Factory) {
	registry[name] = registration{factory: factory, defaultReport: defaultReport}
}

// Names returns the registered engine names in order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultReport returns the report file an engine reads when none is given.
func DefaultReport(name string) string {
	return registry[name].defaultReport
}

// Open creates the named adapter. An empty reportPath selects the engine's
// default report file.
func Open(name, reportPath string, opts Options) (coverage.AnalysisSource, error) {
	reg, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown coverage engine: %s (available: %s)", name, strings.Join(Names(), ", "))
	}
	if reportPath == "" {
		reportPath = reg.defaultReport
	}
	if opts.Root != "" && !filepath.IsAbs(reportPath) {
		reportPath = filepath.Join(opts.Root, reportPath)
	}
	return reg.factory(reportPath, opts)
}

func init() {
	Register("gocover", "coverage.out", func(p string, o Options) (coverage.AnalysisSource, error) { return NewGoCover(p, o) })
	Register("coveragepy", "coverage.json", func(p string, o Options) (coverage.AnalysisSource, error) { return NewCoveragePy(p, o) })
	Register("lcov", "lcov.info", func(p string, o Options) (coverage.AnalysisSource, error) { return NewLcov(p, o) })
}

// snapshot holds what every adapter needs: the project root, the filtered
// file list and a source loader.
type snapshot struct {
	root   string
	files  []string
	loader *Loader
}

func newSnapshot(opts Options) (*snapshot, *Filter, error) {
	root := opts.Root
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve root %s: %w", root, err)
	}
	filter, err := NewFilter(opts.Include, opts.Omit)
	if err != nil {
		return nil, nil, err
	}
	loader := &Loader{}
	if opts.CheckSyntax {
		loader.Syntax = NewSyntaxChecker()
	}
	return &snapshot{root: abs, loader: loader}, filter, nil
}

// abs resolves a report path against the project root.
func (s *snapshot) abs(name string) string {
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}
	return filepath.Join(s.root, filepath.FromSlash(name))
}

// add records path if it passes filter. Paths are kept sorted.
func (s *snapshot) add(path string, filter *Filter) bool {
	rel := path
	if r, err := filepath.Rel(s.root, path); err == nil && !strings.HasPrefix(r, "..") {
		rel = r
	}
	if !filter.Match(filepath.ToSlash(rel)) {
		return false
	}
	s.files = append(s.files, path)
	return true
}

func (s *snapshot) sort() {
	sort.Strings(s.files)
}

// Files implements coverage.AnalysisSource.
func (s *snapshot) Files() []string {
	return s.files
}

// Root returns the absolute project root.
func (s *snapshot) Root() string {
	return s.root
}

// build loads the source of path and assembles the record.
func (s *snapshot) build(path string, statements, missing coverage.LineSet, branches *coverage.BranchFacts) coverage.FileResult {
	text, lines, err := s.loader.Load(path)
	if err != nil {
		return coverage.Fail(err)
	}
	clip(statements, lines)
	clip(missing, lines)
	for l := range missing {
		if !statements.Has(l) {
			delete(missing, l)
		}
	}
	rec, err := coverage.NewAnalysisRecord(path, text, lines, statements, missing, branches)
	if err != nil {
		return coverage.Fail(err)
	}
	return coverage.Ok(rec)
}

// clip drops lines past the end of the file, which happens when the source
// changed after measurement.
func clip(s coverage.LineSet, lines int) {
	for l := range s {
		if l < 1 || l > lines {
			delete(s, l)
		}
	}
}
