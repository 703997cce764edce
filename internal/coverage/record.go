package coverage

import (
	"fmt"
	"sort"
)

// LineSet is a set of 1-indexed source line numbers.
type LineSet map[int]struct{}

// NewLineSet builds a LineSet from the given lines.
func NewLineSet(lines ...int) LineSet {
	s := make(LineSet, len(lines))
	for _, l := range lines {
		s[l] = struct{}{}
	}
	return s
}

// Has reports whether line is in the set. A nil set contains nothing.
func (s LineSet) Has(line int) bool {
	_, ok := s[line]
	return ok
}

// Add inserts line into the set.
func (s LineSet) Add(line int) {
	s[line] = struct{}{}
}

// Sorted returns the lines in ascending order.
func (s LineSet) Sorted() []int {
	out := make([]int, 0, len(s))
	for l := range s {
		out = append(out, l)
	}
	sort.Ints(out)
	return out
}

// Arc is a directed edge between two lines. A negative To marks an exit
// from the code object starting at line -To.
type Arc struct {
	From int
	To   int
}

// BranchFacts holds the arc data of a file measured with branch tracking.
type BranchFacts struct {
	// Executed arcs observed during the run.
	Executed []Arc
	// Missing arcs that were possible but never taken.
	Missing []Arc
	// BranchLines are the lines with more than one possible successor.
	BranchLines LineSet
}

// AnalysisRecord is the measurement engine's view of one source file.
type AnalysisRecord struct {
	// Path is the absolute file path.
	Path string
	// Statements are the trackable lines.
	Statements LineSet
	// Missing are the trackable lines that were never executed.
	Missing LineSet
	// Branches is nil when the file was measured without branch tracking.
	Branches *BranchFacts
	// LineCount is the number of lines in Source.
	LineCount int
	// Source is the decoded file content.
	Source string
}

// NewAnalysisRecord validates the record invariants and returns the record.
// Arcs are sorted by origin then destination.
func NewAnalysisRecord(path, source string, lineCount int, statements, missing LineSet, branches *BranchFacts) (*AnalysisRecord, error) {
	if path == "" {
		return nil, invalidRecord(path, "empty path")
	}
	if lineCount < 0 {
		return nil, invalidRecord(path, fmt.Sprintf("negative line count %d", lineCount))
	}
	for l := range statements {
		if l < 1 || l > lineCount {
			return nil, invalidRecord(path, fmt.Sprintf("statement line %d outside [1, %d]", l, lineCount))
		}
	}
	for l := range missing {
		if !statements.Has(l) {
			return nil, invalidRecord(path, fmt.Sprintf("missing line %d is not a statement", l))
		}
	}
	if branches != nil {
		for _, arcs := range [][]Arc{branches.Executed, branches.Missing} {
			for _, a := range arcs {
				if a.From < 1 {
					return nil, invalidRecord(path, fmt.Sprintf("arc origin %d is not a line", a.From))
				}
			}
		}
		sortArcs(branches.Executed)
		sortArcs(branches.Missing)
	}
	if statements == nil {
		statements = LineSet{}
	}
	if missing == nil {
		missing = LineSet{}
	}

	return &AnalysisRecord{
		Path:       path,
		Statements: statements,
		Missing:    missing,
		Branches:   branches,
		LineCount:  lineCount,
		Source:     source,
	}, nil
}

func sortArcs(arcs []Arc) {
	sort.SliceStable(arcs, func(i, j int) bool {
		if arcs[i].From != arcs[j].From {
			return arcs[i].From < arcs[j].From
		}
		return arcs[i].To < arcs[j].To
	})
}

// HasBranches reports whether the record carries branch facts.
func (r *AnalysisRecord) HasBranches() bool {
	return r.Branches != nil
}
