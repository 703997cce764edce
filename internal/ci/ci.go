// Package ci identifies the continuous integration service a run executes on.
package ci

import (
	"os"
	"strings"
)

// DefaultServiceName is reported when no known CI service is detected.
const DefaultServiceName = "coveralls-go"

// Env looks up environment variables.
type Env func(key string) string

// OSEnv reads the process environment.
func OSEnv(key string) string { return os.Getenv(key) }

// MapEnv serves lookups from m.
func MapEnv(m map[string]string) Env {
	return func(key string) string { return m[key] }
}

// Environment describes the detected CI service.
type Environment struct {
	Name        string
	JobID       string
	PullRequest string
	// TokenRequired is false on services where coveralls authenticates the
	// job by its id.
	TokenRequired bool
}

type detector struct {
	marker string
	detect func(env Env) Environment
}

// Detection order matters when several markers are set.
var detectors = []detector{
	{"APPVEYOR", appveyor},
	{"BUILDKITE", buildkite},
	{"CIRCLECI", circle},
	{"GITHUB_ACTIONS", github},
	{"JENKINS_HOME", jenkins},
	{"TRAVIS", travis},
	{"SEMAPHORE", semaphore},
}

// Detect returns the CI environment described by env.
func Detect(env Env) Environment {
	if env == nil {
		env = OSEnv
	}
	for _, d := range detectors {
		if env(d.marker) != "" {
			return d.detect(env)
		}
	}
	return Environment{Name: DefaultServiceName, TokenRequired: true}
}

func appveyor(env Env) Environment {
	return Environment{
		Name:          "appveyor",
		JobID:         env("APPVEYOR_BUILD_ID"),
		PullRequest:   env("APPVEYOR_PULL_REQUEST_NUMBER"),
		TokenRequired: true,
	}
}

func buildkite(env Env) Environment {
	pr := env("BUILDKITE_PULL_REQUEST")
	if pr == "false" {
		pr = ""
	}
	return Environment{Name: "buildkite", JobID: env("BUILDKITE_JOB_ID"), PullRequest: pr, TokenRequired: true}
}

func circle(env Env) Environment {
	return Environment{
		Name:          "circle-ci",
		JobID:         env("CIRCLE_BUILD_NUM"),
		PullRequest:   lastSegment(env("CI_PULL_REQUEST")),
		TokenRequired: true,
	}
}

func github(env Env) Environment {
	var pr string
	if ref := env("GITHUB_REF"); strings.HasPrefix(ref, "refs/pull/") {
		// refs/pull/<number>/merge
		parts := strings.Split(ref, "/")
		if len(parts) > 2 {
			pr = parts[2]
		}
	}
	return Environment{Name: "github-actions", PullRequest: pr, TokenRequired: true}
}

func jenkins(env Env) Environment {
	return Environment{
		Name:          "jenkins",
		JobID:         env("BUILD_NUMBER"),
		PullRequest:   lastSegment(env("CI_PULL_REQUEST")),
		TokenRequired: true,
	}
}

func travis(env Env) Environment {
	return Environment{
		Name:        "travis-ci",
		JobID:       env("TRAVIS_JOB_ID"),
		PullRequest: env("TRAVIS_PULL_REQUEST"),
	}
}

func semaphore(env Env) Environment {
	return Environment{
		Name:          "semaphore-ci",
		JobID:         env("SEMAPHORE_BUILD_NUMBER"),
		PullRequest:   env("PULL_REQUEST_NUMBER"),
		TokenRequired: true,
	}
}

// lastSegment returns the part after the final slash of a pull request URL.
func lastSegment(url string) string {
	if i := strings.LastIndex(url, "/"); i >= 0 {
		return url[i+1:]
	}
	return url
}
