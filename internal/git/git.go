// Package git collects the commit metadata attached to a coveralls job.
package git

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/zjy-dev/coveralls/internal/ci"
	"github.com/zjy-dev/coveralls/internal/exec"
)

// Head describes the commit under test.
type Head struct {
	ID             string `json:"id"`
	AuthorName     string `json:"author_name"`
	AuthorEmail    string `json:"author_email"`
	CommitterName  string `json:"committer_name"`
	CommitterEmail string `json:"committer_email"`
	Message        string `json:"message"`
}

// Remote is one fetch remote of the repository.
type Remote struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Info is the "git" member of a job document.
type Info struct {
	Head    Head     `json:"head"`
	Branch  string   `json:"branch"`
	Remotes []Remote `json:"remotes"`
}

// branchVars are consulted in order before asking git for the branch.
var branchVars = []string{
	"APPVEYOR_REPO_BRANCH",
	"BUILDKITE_BRANCH",
	"CI_BRANCH",
	"CIRCLE_BRANCH",
	"GIT_BRANCH",
	"TRAVIS_BRANCH",
}

// Collect gathers branch, head commit and remotes.
//
// When GIT_ID is set the metadata is taken from the GIT_* environment
// variables and git is never run, which serves checkouts without a .git
// directory.
func Collect(ctx context.Context, runner exec.Executor, env ci.Env) (*Info, error) {
	if env == nil {
		env = ci.OSEnv
	}
	if env("GIT_ID") != "" {
		return fromEnv(env), nil
	}

	info := &Info{Remotes: []Remote{}}
	for _, key := range branchVars {
		if v := env(key); v != "" {
			info.Branch = v
			break
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	if info.Branch == "" {
		g.Go(func() error {
			out, err := run(ctx, runner, "rev-parse", "--abbrev-ref", "HEAD")
			info.Branch = out
			return err
		})
	}

	fields := []struct {
		format string
		dst    *string
	}{
		{"%H", &info.Head.ID},
		{"%aN", &info.Head.AuthorName},
		{"%ae", &info.Head.AuthorEmail},
		{"%cN", &info.Head.CommitterName},
		{"%ce", &info.Head.CommitterEmail},
		{"%s", &info.Head.Message},
	}
	for _, f := range fields {
		g.Go(func() error {
			out, err := run(ctx, runner, "--no-pager", "log", "-1", "--pretty=format:"+f.format)
			*f.dst = out
			return err
		})
	}

	var remotes string
	g.Go(func() error {
		out, err := run(ctx, runner, "remote", "-v")
		remotes = out
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	info.Remotes = parseRemotes(remotes)
	return info, nil
}

func run(ctx context.Context, runner exec.Executor, args ...string) (string, error) {
	res, err := runner.Run(ctx, "git", args...)
	if err != nil {
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("git %s: exit code %d: %s", strings.Join(args, " "), res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return strings.TrimSpace(res.Stdout), nil
}

// parseRemotes keeps the (fetch) lines of `git remote -v`.
func parseRemotes(out string) []Remote {
	remotes := []Remote{}
	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(line, "(fetch)") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		remotes = append(remotes, Remote{Name: fields[0], URL: fields[1]})
	}
	return remotes
}

func fromEnv(env ci.Env) *Info {
	info := &Info{
		Head: Head{
			ID:             env("GIT_ID"),
			AuthorName:     env("GIT_AUTHOR_NAME"),
			AuthorEmail:    env("GIT_AUTHOR_EMAIL"),
			CommitterName:  env("GIT_COMMITTER_NAME"),
			CommitterEmail: env("GIT_COMMITTER_EMAIL"),
			Message:        env("GIT_MESSAGE"),
		},
		Branch:  env("GIT_BRANCH"),
		Remotes: []Remote{},
	}
	if url := env("GIT_URL"); url != "" {
		name := env("GIT_REMOTE")
		if name == "" {
			name = "origin"
		}
		info.Remotes = append(info.Remotes, Remote{Name: name, URL: url})
	}
	return info
}
