package coverage

import "fmt"

// Diagnostics receives non-fatal findings from the normalizer.
type Diagnostics interface {
	Warn(kind Kind, file, detail string)
	Debug(kind Kind, file, detail string)
}

// NopDiagnostics discards everything.
type NopDiagnostics struct{}

// Warn discards the finding.
func (NopDiagnostics) Warn(Kind, string, string) {}

// Debug discards the finding.
func (NopDiagnostics) Debug(Kind, string, string) {}

// Normalizer converts analysis records into coveralls source files.
type Normalizer struct {
	// Root is the project root that names are made relative to.
	Root    string
	BaseDir string
	SrcDir  string
	Diag    Diagnostics
}

// Normalize converts rec using the package defaults: names are taken
// relative to nothing and diagnostics are dropped.
func Normalize(rec *AnalysisRecord, baseDir, srcDir string) SourceFile {
	n := Normalizer{BaseDir: baseDir, SrcDir: srcDir}
	return n.Normalize(rec)
}

// Normalize builds the SourceFile for rec.
func (n *Normalizer) Normalize(rec *AnalysisRecord) SourceFile {
	sf := SourceFile{
		Name:     Resolve(rec.Path, n.Root, n.BaseDir, n.SrcDir),
		Source:   rec.Source,
		Coverage: Lines(rec),
	}
	if branches := n.Arcs(rec); len(branches) > 0 {
		sf.Branches = branches
	}
	return sf
}

// LineHits classifies a single line. Missing wins over statements.
func LineHits(line int, rec *AnalysisRecord) Hit {
	if rec.Missing.Has(line) {
		return Missed
	}
	if rec.Statements.Has(line) {
		return Covered
	}
	return NotTrackable
}

// Lines returns the coverage array for rec, one entry per source line.
func Lines(rec *AnalysisRecord) []Hit {
	hits := make([]Hit, 0, rec.LineCount)
	for i := 1; i <= rec.LineCount; i++ {
		hits = append(hits, LineHits(i, rec))
	}
	return hits
}

// Arcs flattens the branch facts of rec into (line, block, branch, hit)
// quadruples. Block is always 0 and branch is the destination line.
// Records without branch facts yield an empty slice.
func (n *Normalizer) Arcs(rec *AnalysisRecord) []int {
	if rec.Branches == nil {
		return []int{}
	}
	diag := n.diag()
	out := make([]int, 0, 4*(len(rec.Branches.Executed)+len(rec.Branches.Missing)))
	emit := func(arcs []Arc, hit int) {
		for _, a := range arcs {
			if !rec.Branches.BranchLines.Has(a.From) {
				diag.Debug(KindArcConsistency, rec.Path,
					fmt.Sprintf("dropping arc %d->%d: %d is not a branch line", a.From, a.To, a.From))
				continue
			}
			out = append(out, a.From, 0, abs(a.To), hit)
		}
	}
	emit(rec.Branches.Executed, 1)
	emit(rec.Branches.Missing, 0)
	return out
}

// Arcs is Normalizer.Arcs without diagnostics.
func Arcs(rec *AnalysisRecord) []int {
	var n Normalizer
	return n.Arcs(rec)
}

func (n *Normalizer) diag() Diagnostics {
	if n.Diag == nil {
		return NopDiagnostics{}
	}
	return n.Diag
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
