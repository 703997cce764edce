// Package api assembles coveralls jobs and submits them.
package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/tidwall/sjson"

	"github.com/zjy-dev/coveralls/internal/ci"
	"github.com/zjy-dev/coveralls/internal/config"
	"github.com/zjy-dev/coveralls/internal/coverage"
	"github.com/zjy-dev/coveralls/internal/exec"
	"github.com/zjy-dev/coveralls/internal/git"
	"github.com/zjy-dev/coveralls/internal/logger"
	"github.com/zjy-dev/coveralls/internal/report"
)

// Response is the reply of the jobs endpoint.
type Response struct {
	Message string `json:"message"`
	URL     string `json:"url"`
	Error   bool   `json:"error,omitempty"`
}

// Client builds one job and talks to the coveralls host.
type Client struct {
	Config  *config.Config
	Source  coverage.AnalysisSource
	Options coverage.Options
	// Git runs git for commit metadata.
	Git exec.Executor
	Env ci.Env
	// HTTP, when nil, is built from Config.SkipSSLVerify.
	HTTP *http.Client
	Log  *logger.Logger

	job *report.Job
}

// NewClient creates a Client for cfg reading measurements from src.
func NewClient(cfg *config.Config, src coverage.AnalysisSource, opts coverage.Options) *Client {
	c := &Client{
		Config:  cfg,
		Source:  src,
		Options: opts,
		Git:     exec.NewCommandExecutor(opts.Root),
		Env:     ci.OSEnv,
		Log:     logger.Default(),
	}
	if cfg.Env != nil {
		c.Env = cfg.Env
	}
	if c.Options.Diag == nil {
		c.Options.Diag = logger.NewDiagnostics(c.Log)
	}
	return c
}

// CreateData builds the job document. The result is cached.
func (c *Client) CreateData(ctx context.Context) (*report.Job, error) {
	if c.job != nil {
		return c.job, nil
	}

	res, err := coverage.Collect(ctx, c.Source, c.Options)
	if err != nil {
		return nil, err
	}

	job := &report.Job{
		SourceFiles:        res.SourceFiles,
		RepoToken:          c.Config.RepoToken,
		ServiceName:        c.Config.ServiceName,
		ServiceJobID:       c.Config.ServiceJobID,
		ServicePullRequest: c.Config.ServicePullRequest,
		Parallel:           c.Config.Parallel,
		FlagName:           c.Config.FlagName,
	}
	if job.SourceFiles == nil {
		job.SourceFiles = []coverage.SourceFile{}
	}

	info, err := git.Collect(ctx, c.Git, c.Env)
	if err != nil {
		c.Log.Warnf("Failed collecting git data. Are you running coveralls inside a git repository? %v", err)
	} else {
		job.Git = info
	}

	c.job = job
	return job, nil
}

// Merge adds the source files of a previously saved job document.
func (c *Client) Merge(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read merge file: %w", err)
	}
	job, err := c.CreateData(ctx)
	if err != nil {
		return err
	}
	if err := job.Merge(data); err != nil {
		if errors.Is(err, report.ErrNoMergeData) {
			c.Log.Warnf("%v", err)
			return nil
		}
		return err
	}
	return nil
}

// CreateReport encodes the job document.
func (c *Client) CreateReport(ctx context.Context) ([]byte, error) {
	job, err := c.CreateData(ctx)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job: %w", err)
	}

	if c.Log.Enabled(logger.DEBUG) {
		c.Log.Debugf("%s", report.Redact(data))
		c.Log.Debugf("==\nReporting %d files\n==", len(job.SourceFiles))
		for _, line := range report.Summary(job) {
			c.Log.Debugf("%s", line)
		}
	}
	return data, nil
}

// SaveReport writes the encoded job to path.
func (c *Client) SaveReport(ctx context.Context, path string) error {
	data, err := c.CreateReport(ctx)
	if err != nil {
		return err
	}
	return report.NewFileReporter(path).Save(data)
}

// Wear submits the job. A dry run only builds the report.
func (c *Client) Wear(ctx context.Context, dryRun bool) (*Response, error) {
	data, err := c.CreateReport(ctx)
	if err != nil {
		return nil, err
	}
	if dryRun {
		return &Response{}, nil
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("json_file", "json_file")
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/api/v1/jobs"), &body)
	if err != nil {
		return nil, fmt.Errorf("Could not submit coverage: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	out := &Response{}
	if err := c.do(req, out); err != nil {
		return nil, fmt.Errorf("Could not submit coverage: %w", err)
	}
	return out, nil
}

// Finish closes a parallel build on the webhook endpoint.
func (c *Client) Finish(ctx context.Context) error {
	payload, err := sjson.SetBytes([]byte(`{}`), "payload.build_num", c.Config.ServiceJobID)
	if err == nil {
		payload, err = sjson.SetBytes(payload, "payload.status", "done")
	}
	if err != nil {
		return fmt.Errorf("failed to build webhook payload: %w", err)
	}

	endpoint := c.endpoint("/webhook") + "?" + url.Values{"repo_token": {c.Config.RepoToken}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("Could not finish parallel build: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if err := c.do(req, nil); err != nil {
		return fmt.Errorf("Could not finish parallel build: %w", err)
	}
	return nil
}

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.Config.Host, "/") + path
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("invalid response: %w", err)
	}
	return nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if c.Config.SkipSSLVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	c.HTTP = &http.Client{Transport: transport, Timeout: 60 * time.Second}
	return c.HTTP
}
