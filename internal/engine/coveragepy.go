package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/zjy-dev/coveralls/internal/coverage"
)

type pyReport struct {
	Meta struct {
		Version        string `json:"version"`
		BranchCoverage bool   `json:"branch_coverage"`
	} `json:"meta"`
	Files map[string]pyFile `json:"files"`
}

type pyFile struct {
	ExecutedLines    []int    `json:"executed_lines"`
	MissingLines     []int    `json:"missing_lines"`
	ExecutedBranches [][2]int `json:"executed_branches"`
	MissingBranches  [][2]int `json:"missing_branches"`
}

// CoveragePy reads the JSON report written by `coverage json`.
type CoveragePy struct {
	*snapshot
	branches bool
	files    map[string]pyFile
}

// NewCoveragePy parses the coverage.py JSON report at reportPath.
func NewCoveragePy(reportPath string, opts Options) (*CoveragePy, error) {
	snap, filter, err := newSnapshot(opts)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(reportPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read coverage report: %w", err)
	}
	var report pyReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to parse coverage report %s: %w", reportPath, err)
	}
	if report.Files == nil {
		return nil, fmt.Errorf("no data to report: %s has no files", reportPath)
	}

	c := &CoveragePy{
		snapshot: snap,
		branches: report.Meta.BranchCoverage,
		files:    make(map[string]pyFile, len(report.Files)),
	}
	for name, f := range report.Files {
		path := snap.abs(name)
		if snap.add(path, filter) {
			c.files[path] = f
		}
	}
	snap.sort()
	return c, nil
}

// Analyze implements coverage.AnalysisSource.
func (c *CoveragePy) Analyze(path string) coverage.FileResult {
	f, ok := c.files[path]
	if !ok {
		return coverage.Fail(coverage.NoSource(path, errors.New("not in coverage report")))
	}

	statements := coverage.NewLineSet(f.ExecutedLines...)
	for _, l := range f.MissingLines {
		statements.Add(l)
	}
	missing := coverage.NewLineSet(f.MissingLines...)

	var branches *coverage.BranchFacts
	if c.branches {
		branches = &coverage.BranchFacts{
			Executed:    toArcs(f.ExecutedBranches),
			Missing:     toArcs(f.MissingBranches),
			BranchLines: coverage.LineSet{},
		}
		for _, arcs := range [][]coverage.Arc{branches.Executed, branches.Missing} {
			for _, a := range arcs {
				branches.BranchLines.Add(a.From)
			}
		}
	}

	return c.build(path, statements, missing, branches)
}

func toArcs(pairs [][2]int) []coverage.Arc {
	arcs := make([]coverage.Arc, 0, len(pairs))
	for _, p := range pairs {
		// Entry arcs start at a negative line and are not branches.
		if p[0] < 1 {
			continue
		}
		arcs = append(arcs, coverage.Arc{From: p[0], To: p[1]})
	}
	return arcs
}
