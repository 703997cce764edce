package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/zjy-dev/coveralls/internal/ci"
	"github.com/zjy-dev/coveralls/internal/config"
	"github.com/zjy-dev/coveralls/internal/coverage"
	"github.com/zjy-dev/coveralls/internal/exec"
	"github.com/zjy-dev/coveralls/internal/logger"
)

// memSource serves prepared records.
type memSource struct {
	paths   []string
	records map[string]*coverage.AnalysisRecord
}

func (s *memSource) Files() []string { return s.paths }

func (s *memSource) Analyze(path string) coverage.FileResult {
	if rec, ok := s.records[path]; ok {
		return coverage.Ok(rec)
	}
	return coverage.Fail(coverage.NoSource(path, errors.New("gone")))
}

type noGit struct{}

func (noGit) Run(context.Context, string, ...string) (*exec.ExecutionResult, error) {
	return nil, errors.New(`exec: "git": executable file not found in $PATH`)
}

func newTestClient(t *testing.T, cfg *config.Config) (*Client, *bytes.Buffer) {
	t.Helper()
	rec, err := coverage.NewAnalysisRecord("/p/project.py", "def hello():\n    print('world')\n\nhello()\n", 4,
		coverage.NewLineSet(1, 2, 4), coverage.NewLineSet(2), nil)
	require.NoError(t, err)

	src := &memSource{
		paths:   []string{"/p/project.py", "/p/gone.py"},
		records: map[string]*coverage.AnalysisRecord{"/p/project.py": rec},
	}

	var buf bytes.Buffer
	log := logger.New(&buf, "debug")
	c := NewClient(cfg, src, coverage.Options{Root: "/p", Diag: logger.NewDiagnostics(log)})
	c.Log = log
	c.Git = noGit{}
	c.Env = ci.MapEnv(nil)
	return c, &buf
}

func testConfig(host string) *config.Config {
	return &config.Config{
		RepoToken:   "xxx",
		ServiceName: "coveralls-go",
		Host:        host,
	}
}

func TestCreateData(t *testing.T) {
	c, logs := newTestClient(t, testConfig(config.DefaultHost))

	job, err := c.CreateData(context.Background())
	require.NoError(t, err)
	require.Len(t, job.SourceFiles, 1)
	assert.Equal(t, "project.py", job.SourceFiles[0].Name)
	assert.Equal(t, []coverage.Hit{1, 0, coverage.NotTrackable, 1}, job.SourceFiles[0].Coverage)
	assert.Equal(t, "xxx", job.RepoToken)
	assert.Equal(t, "coveralls-go", job.ServiceName)
	assert.Nil(t, job.Git)
	assert.Contains(t, logs.String(), "[WARN] Failed collecting git data")
	assert.Contains(t, logs.String(), "no source for code '/p/gone.py'")

	again, err := c.CreateData(context.Background())
	require.NoError(t, err)
	assert.Same(t, job, again)
}

func TestCreateData_Strict(t *testing.T) {
	c, _ := newTestClient(t, testConfig(config.DefaultHost))
	c.Options.Policy = coverage.Strict

	_, err := c.CreateData(context.Background())
	var runErr *coverage.RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, "/p/gone.py", runErr.Path)
}

func TestCreateData_Git(t *testing.T) {
	c, _ := newTestClient(t, testConfig(config.DefaultHost))
	c.Env = ci.MapEnv(map[string]string{"GIT_ID": "abc123", "GIT_BRANCH": "master", "GIT_MESSAGE": "msg"})

	job, err := c.CreateData(context.Background())
	require.NoError(t, err)
	require.NotNil(t, job.Git)
	assert.Equal(t, "abc123", job.Git.Head.ID)
	assert.Equal(t, "master", job.Git.Branch)
}

func TestNewClient_UsesConfigEnv(t *testing.T) {
	cfg := testConfig(config.DefaultHost)
	cfg.Env = ci.MapEnv(map[string]string{"GIT_ID": "from-dotenv", "GIT_BRANCH": "dev"})

	rec, err := coverage.NewAnalysisRecord("/p/a.py", "x = 1\n", 1, coverage.NewLineSet(1), nil, nil)
	require.NoError(t, err)
	src := &memSource{paths: []string{"/p/a.py"}, records: map[string]*coverage.AnalysisRecord{"/p/a.py": rec}}

	c := NewClient(cfg, src, coverage.Options{Root: "/p"})
	c.Log = logger.New(&bytes.Buffer{}, "info")
	c.Git = noGit{}

	job, err := c.CreateData(context.Background())
	require.NoError(t, err)
	require.NotNil(t, job.Git)
	assert.Equal(t, "from-dotenv", job.Git.Head.ID)
	assert.Equal(t, "dev", job.Git.Branch)
}

func TestMerge(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "other.json")
	require.NoError(t, os.WriteFile(good, []byte(`{"source_files": [{"name": "foobar", "coverage": [null, 1]}]}`), 0644))
	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte(`{"random_stuff": "random_value"}`), 0644))

	c, logs := newTestClient(t, testConfig(config.DefaultHost))
	require.NoError(t, c.Merge(context.Background(), good))
	require.NoError(t, c.Merge(context.Background(), empty))
	assert.Error(t, c.Merge(context.Background(), filepath.Join(dir, "missing.json")))

	job, err := c.CreateData(context.Background())
	require.NoError(t, err)
	require.Len(t, job.SourceFiles, 2)
	assert.Equal(t, "foobar", job.SourceFiles[1].Name)
	assert.Contains(t, logs.String(), `No data to be merged; does the json file contain "source_files" data?`)
}

func TestCreateReport(t *testing.T) {
	c, logs := newTestClient(t, testConfig(config.DefaultHost))

	data, err := c.CreateReport(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "xxx", gjson.GetBytes(data, "repo_token").String())
	assert.Equal(t, `[1,0,null,1]`, gjson.GetBytes(data, "source_files.0.coverage").Raw)

	out := logs.String()
	assert.Contains(t, out, `"repo_token":"[secure]"`)
	assert.NotContains(t, out, `"repo_token":"xxx"`)
	assert.Contains(t, out, "Reporting 1 files")
	assert.Contains(t, out, "project.py - 2/4")
}

func TestSaveReport(t *testing.T) {
	c, _ := newTestClient(t, testConfig(config.DefaultHost))
	path := filepath.Join(t.TempDir(), "coveralls.json")

	require.NoError(t, c.SaveReport(context.Background(), path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "project.py", gjson.GetBytes(data, "source_files.0.name").String())
}

func TestWear(t *testing.T) {
	var got []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/jobs", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		f, _, err := r.FormFile("json_file")
		require.NoError(t, err)
		got, _ = io.ReadAll(f)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"message": "Job #7.1", "url": "https://coveralls.io/jobs/5869"}`)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, testConfig(srv.URL+"/"))
	resp, err := c.Wear(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, &Response{Message: "Job #7.1", URL: "https://coveralls.io/jobs/5869"}, resp)
	assert.Equal(t, "xxx", gjson.GetBytes(got, "repo_token").String())
}

func TestWear_DryRun(t *testing.T) {
	c, _ := newTestClient(t, testConfig("http://127.0.0.1:1"))
	resp, err := c.Wear(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, &Response{}, resp)
}

func TestWear_Errors(t *testing.T) {
	t.Run("server error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "Couldn't find a repository matching this job.", http.StatusUnprocessableEntity)
		}))
		defer srv.Close()

		c, _ := newTestClient(t, testConfig(srv.URL))
		_, err := c.Wear(context.Background(), false)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Could not submit coverage: 422")
		assert.Contains(t, err.Error(), "Couldn't find a repository")
	})

	t.Run("invalid response", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "<html>")
		}))
		defer srv.Close()

		c, _ := newTestClient(t, testConfig(srv.URL))
		_, err := c.Wear(context.Background(), false)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Could not submit coverage: invalid response")
	})

	t.Run("self signed certificate", func(t *testing.T) {
		srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `{"message": "ok"}`)
		}))
		defer srv.Close()

		c, _ := newTestClient(t, testConfig(srv.URL))
		_, err := c.Wear(context.Background(), false)
		require.Error(t, err)

		cfg := testConfig(srv.URL)
		cfg.SkipSSLVerify = true
		c, _ = newTestClient(t, cfg)
		resp, err := c.Wear(context.Background(), false)
		require.NoError(t, err)
		assert.Equal(t, "ok", resp.Message)
	})
}

func TestFinish(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/webhook", r.URL.Path)
		assert.Equal(t, "xxx", r.URL.Query().Get("repo_token"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		io.WriteString(w, `{"done": true}`)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.ServiceJobID = "777"
	c, _ := newTestClient(t, cfg)
	require.NoError(t, c.Finish(context.Background()))
	assert.Equal(t, map[string]any{"payload": map[string]any{"build_num": "777", "status": "done"}}, body)

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()
	c, _ = newTestClient(t, testConfig(failing.URL))
	err := c.Finish(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Could not finish parallel build")
}
