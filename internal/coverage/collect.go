package coverage

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

// AnalysisSource is a completed measurement snapshot.
type AnalysisSource interface {
	// Files lists the measured files in a stable order.
	Files() []string
	// Analyze loads the analysis of one file listed by Files.
	Analyze(path string) FileResult
}

// FileResult is either a record or the reason there is none.
type FileResult struct {
	Record *AnalysisRecord
	Err    error
}

// Ok wraps a record.
func Ok(rec *AnalysisRecord) FileResult { return FileResult{Record: rec} }

// Fail wraps an error.
func Fail(err error) FileResult { return FileResult{Err: err} }

// Policy decides what a per-file failure does to the run.
type Policy int

const (
	// Lenient skips files with no source or unparseable source.
	Lenient Policy = iota
	// Strict aborts the run on the first such file.
	Strict
)

// String returns "lenient" or "strict".
func (p Policy) String() string {
	if p == Strict {
		return "strict"
	}
	return "lenient"
}

// Options configure Collect.
type Options struct {
	Root    string
	BaseDir string
	SrcDir  string
	Policy  Policy
	Diag    Diagnostics
}

// Result is the outcome of a run.
type Result struct {
	SourceFiles []SourceFile
	// Skipped combines the errors of every file left out of SourceFiles.
	Skipped error
}

// SkippedErrors returns the individual skip errors.
func (r *Result) SkippedErrors() []error {
	return multierr.Errors(r.Skipped)
}

// Collect normalizes every file of src in enumeration order.
func Collect(ctx context.Context, src AnalysisSource, opts Options) (*Result, error) {
	n := &Normalizer{
		Root:    opts.Root,
		BaseDir: opts.BaseDir,
		SrcDir:  opts.SrcDir,
		Diag:    opts.Diag,
	}
	diag := n.diag()

	res := &Result{SourceFiles: []SourceFile{}}
	for _, path := range src.Files() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		fr := src.Analyze(path)
		if fr.Err == nil && fr.Record == nil {
			fr.Err = NoSource(path, errors.New("engine returned no analysis"))
		}
		if fr.Err != nil {
			kind := KindOf(fr.Err)
			if kind == "" {
				return nil, fmt.Errorf("failed to analyze %s: %w", path, fr.Err)
			}
			diag.Warn(kind, path, fr.Err.Error())
			if opts.Policy == Strict && kind != KindEncoding {
				return nil, &RunError{Path: path, Kind: kind, Err: fr.Err}
			}
			res.Skipped = multierr.Append(res.Skipped, fr.Err)
			continue
		}

		res.SourceFiles = append(res.SourceFiles, n.Normalize(fr.Record))
	}
	return res, nil
}
