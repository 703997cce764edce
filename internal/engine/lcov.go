package engine

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/zjy-dev/coveralls/internal/coverage"
)

// lcovFile is the line data of one SF record.
type lcovFile struct {
	statements coverage.LineSet
	hit        coverage.LineSet
}

// Lcov reads lcov tracefiles (geninfo / lcov --capture output).
//
// BRDA records identify branches by block and branch number rather than by
// destination line, so no branch facts are produced.
type Lcov struct {
	*snapshot
	records map[string]*lcovFile
}

// NewLcov parses the tracefile at tracePath.
func NewLcov(tracePath string, opts Options) (*Lcov, error) {
	snap, filter, err := newSnapshot(opts)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(tracePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open tracefile: %w", err)
	}
	defer f.Close()

	lc := &Lcov{snapshot: snap, records: make(map[string]*lcovFile)}

	// Format example:
	// SF:/path/to/source.c
	// DA:10,5
	// LH:1
	// LF:1
	// end_of_record
	var current *lcovFile
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		switch {
		case strings.HasPrefix(line, "SF:"):
			path := snap.abs(strings.TrimPrefix(line, "SF:"))
			if rec, ok := lc.records[path]; ok {
				current = rec
				continue
			}
			current = &lcovFile{statements: coverage.LineSet{}, hit: coverage.LineSet{}}
			if snap.add(path, filter) {
				lc.records[path] = current
			}
		case strings.HasPrefix(line, "DA:"):
			if current == nil {
				return nil, fmt.Errorf("%s:%d: DA record outside SF", tracePath, lineNo)
			}
			num, count, err := parseDA(strings.TrimPrefix(line, "DA:"))
			if err != nil {
				return nil, fmt.Errorf("%s:%d: %w", tracePath, lineNo, err)
			}
			current.statements.Add(num)
			if count > 0 {
				current.hit.Add(num)
			}
		case line == "end_of_record":
			current = nil
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read tracefile: %w", err)
	}

	snap.sort()
	return lc, nil
}

// parseDA parses "line,count[,checksum]".
func parseDA(v string) (int, float64, error) {
	parts := strings.Split(v, ",")
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("malformed DA record: %q", v)
	}
	num, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("malformed DA line number: %q", parts[0])
	}
	// Some generators emit negative or fractional counts.
	count, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed DA count: %q", parts[1])
	}
	return num, count, nil
}

// Analyze implements coverage.AnalysisSource.
func (lc *Lcov) Analyze(path string) coverage.FileResult {
	rec, ok := lc.records[path]
	if !ok {
		return coverage.Fail(coverage.NoSource(path, errors.New("not in tracefile")))
	}

	statements := coverage.LineSet{}
	missing := coverage.LineSet{}
	for l := range rec.statements {
		statements.Add(l)
		if !rec.hit.Has(l) {
			missing.Add(l)
		}
	}
	return lc.build(path, statements, missing, nil)
}
