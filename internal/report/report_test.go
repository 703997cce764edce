package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjy-dev/coveralls/internal/coverage"
)

func sample() *Job {
	return &Job{
		SourceFiles: []coverage.SourceFile{
			{Name: "project.py", Source: "a\nb\nc\n", Coverage: []coverage.Hit{coverage.NotTrackable, 1, 0}},
		},
		RepoToken:   "xxx",
		ServiceName: "coveralls-go",
	}
}

func TestJob_JSON(t *testing.T) {
	data, err := json.Marshal(sample())
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"source_files": [{"name": "project.py", "source": "a\nb\nc\n", "coverage": [null, 1, 0]}],
		"repo_token": "xxx",
		"service_name": "coveralls-go"
	}`, string(data))
}

func TestJob_Merge(t *testing.T) {
	t.Run("appends source files", func(t *testing.T) {
		j := sample()
		err := j.Merge([]byte(`{"source_files": [
			{"name": "foobar", "source": "x\ny\n", "coverage": [null, 3], "branches": [1, 0, 2, 1]}
		]}`))
		require.NoError(t, err)
		require.Len(t, j.SourceFiles, 2)
		assert.Equal(t, "foobar", j.SourceFiles[1].Name)
		assert.Equal(t, []coverage.Hit{coverage.NotTrackable, 3}, j.SourceFiles[1].Coverage)
		assert.Equal(t, []int{1, 0, 2, 1}, j.SourceFiles[1].Branches)
	})

	t.Run("no source files", func(t *testing.T) {
		j := sample()
		err := j.Merge([]byte(`{"random_stuff": "random_value"}`))
		assert.ErrorIs(t, err, ErrNoMergeData)
		assert.Len(t, j.SourceFiles, 1)
	})

	t.Run("invalid json", func(t *testing.T) {
		assert.Error(t, sample().Merge([]byte(`{"source_files": [`)))
	})

	t.Run("bad coverage value", func(t *testing.T) {
		assert.Error(t, sample().Merge([]byte(`{"source_files": [{"name": "a", "coverage": ["x"]}]}`)))
	})
}

func TestRedact(t *testing.T) {
	data, err := json.Marshal(sample())
	require.NoError(t, err)

	red := Redact(data)
	assert.Contains(t, string(red), `"repo_token":"[secure]"`)
	assert.NotContains(t, string(red), "xxx")

	noToken := []byte(`{"source_files":[]}`)
	assert.Equal(t, noToken, Redact(noToken))
}

func TestSummary(t *testing.T) {
	j := sample()
	j.SourceFiles = append(j.SourceFiles, coverage.SourceFile{Name: "b.go", Coverage: []coverage.Hit{2, 3, coverage.NotTrackable}})
	assert.Equal(t, []string{"project.py - 1/3", "b.go - 5/3"}, Summary(j))
}

func TestFileReporter_Save(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "coveralls.json")
	require.NoError(t, NewFileReporter(path).Save([]byte(`{}`)))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(content))

	var _ Reporter = (*FileReporter)(nil)
}
