// Package report holds the coveralls job document and the helpers that
// merge, redact, summarize and save it.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/zjy-dev/coveralls/internal/coverage"
	"github.com/zjy-dev/coveralls/internal/git"
)

// Secure replaces the repo token in logged documents.
const Secure = "[secure]"

// ErrNoMergeData is returned by Merge when the document has no source_files.
var ErrNoMergeData = errors.New(`No data to be merged; does the json file contain "source_files" data?`)

// Job is the document posted to the jobs endpoint.
type Job struct {
	SourceFiles        []coverage.SourceFile `json:"source_files"`
	Git                *git.Info             `json:"git,omitempty"`
	RepoToken          string                `json:"repo_token,omitempty"`
	ServiceName        string                `json:"service_name,omitempty"`
	ServiceJobID       string                `json:"service_job_id,omitempty"`
	ServicePullRequest string                `json:"service_pull_request,omitempty"`
	Parallel           bool                  `json:"parallel,omitempty"`
	FlagName           string                `json:"flag_name,omitempty"`
}

// Merge appends the source_files of another job document to j.
func (j *Job) Merge(data []byte) error {
	if !gjson.ValidBytes(data) {
		return errors.New("failed to merge: invalid JSON")
	}
	files := gjson.GetBytes(data, "source_files")
	if !files.Exists() {
		return ErrNoMergeData
	}
	var extra []coverage.SourceFile
	if err := json.Unmarshal([]byte(files.Raw), &extra); err != nil {
		return fmt.Errorf("failed to merge source_files: %w", err)
	}
	j.SourceFiles = append(j.SourceFiles, extra...)
	return nil
}

// Redact masks the repo token of an encoded job.
func Redact(data []byte) []byte {
	if !gjson.GetBytes(data, "repo_token").Exists() {
		return data
	}
	out, err := sjson.SetBytes(data, "repo_token", Secure)
	if err != nil {
		return data
	}
	return out
}

// Summary lists "name - hits/lines" per source file.
func Summary(j *Job) []string {
	lines := make([]string, 0, len(j.SourceFiles))
	for _, f := range j.SourceFiles {
		lines = append(lines, fmt.Sprintf("%s - %d/%d", f.Name, f.Hits(), len(f.Coverage)))
	}
	return lines
}

// Reporter defines the interface for saving encoded jobs.
type Reporter interface {
	// Save saves an encoded job to disk.
	Save(data []byte) error
}

// FileReporter implements the Reporter interface by writing a single file.
type FileReporter struct {
	path string
}

// NewFileReporter creates a new FileReporter writing to path.
func NewFileReporter(path string) *FileReporter {
	return &FileReporter{path: path}
}

// Save writes data, creating the parent directory when needed.
func (r *FileReporter) Save(data []byte) error {
	if dir := filepath.Dir(r.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	if err := os.WriteFile(r.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
