// Package config loads coveralls settings from .coveralls.yml, .env and the
// process environment, then fills the CI service fields.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/zjy-dev/coveralls/internal/ci"
	"github.com/zjy-dev/coveralls/internal/logger"
)

const (
	// FileName is the default rc file looked up in the project root.
	FileName = ".coveralls.yml"
	// DotEnvName is the optional dotenv file looked up in the project root.
	DotEnvName = ".env"
	// DefaultHost is the coveralls endpoint used when none is configured.
	DefaultHost = "https://coveralls.io"
)

// ErrTokenRequired is returned by EnsureToken.
var ErrTokenRequired = errors.New("Not on TravisCI. You have to provide either repo_token in " +
	FileName + " or set the COVERALLS_REPO_TOKEN env var.")

// Config holds the settings of one run.
type Config struct {
	RepoToken          string `mapstructure:"repo_token"`
	ServiceName        string `mapstructure:"service_name"`
	ServiceJobID       string `mapstructure:"service_job_id"`
	ServicePullRequest string `mapstructure:"service_pull_request"`
	Parallel           bool   `mapstructure:"parallel"`
	FlagName           string `mapstructure:"flag_name"`
	Host               string `mapstructure:"coveralls_host"`
	SkipSSLVerify      bool   `mapstructure:"skip_ssl_verify"`

	// Collection settings.
	BaseDir      string   `mapstructure:"base_dir"`
	SrcDir       string   `mapstructure:"src_dir"`
	Strict       bool     `mapstructure:"strict"`
	Engine       string   `mapstructure:"engine"`
	CoverageFile string   `mapstructure:"coverage_file"`
	Include      []string `mapstructure:"include"`
	Omit         []string `mapstructure:"omit"`
	CheckSyntax  bool     `mapstructure:"check_syntax"`

	// TokenRequired is false on CI services that authenticate by job id.
	TokenRequired bool `mapstructure:"-"`
	// Env is the process environment with .env variables layered under it.
	Env ci.Env `mapstructure:"-"`
}

// LoadOptions controls where settings come from.
type LoadOptions struct {
	// Dir is the project root. Empty means the working directory.
	Dir string
	// RcFile replaces Dir/.coveralls.yml. A relative path is resolved
	// against Dir.
	RcFile string
	// ServiceName, when set, wins over the rc file.
	ServiceName string
	// Env, when nil, reads the process environment.
	Env ci.Env
}

// Load builds the Config in this order: defaults, rc file, explicit
// options, environment, CI detection.
func Load(opts LoadOptions) (*Config, error) {
	dir := opts.Dir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		dir = wd
	}

	env, err := withDotEnv(opts.Env, filepath.Join(dir, DotEnvName))
	if err != nil {
		return nil, err
	}

	rcFile := opts.RcFile
	if rcFile == "" {
		rcFile = FileName
	}
	if !filepath.IsAbs(rcFile) {
		rcFile = filepath.Join(dir, rcFile)
	}

	v := viper.New()
	v.SetConfigFile(rcFile)
	v.SetConfigType("yaml")
	v.SetDefault("coveralls_host", DefaultHost)
	v.SetDefault("check_syntax", true)

	if _, err := os.Stat(rcFile); errors.Is(err, fs.ErrNotExist) {
		logger.Debug("Missing %s file. Using only env variables.", filepath.Base(rcFile))
	} else if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config data: %w", err)
	}
	if opts.ServiceName != "" {
		cfg.ServiceName = opts.ServiceName
	}
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}

	cfg.Env = env
	cfg.applyEnv(env)
	cfg.applyCI(ci.Detect(env))
	return cfg, nil
}

// withDotEnv layers the variables of a dotenv file under env. Variables
// already present in env win.
func withDotEnv(env ci.Env, path string) (ci.Env, error) {
	if env == nil {
		env = ci.OSEnv
	}
	vars, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return env, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	logger.Debug("Loaded %d variables from %s", len(vars), path)
	return func(key string) string {
		if v := env(key); v != "" {
			return v
		}
		return vars[key]
	}, nil
}

func (c *Config) applyEnv(env ci.Env) {
	if host := env("COVERALLS_HOST"); host != "" {
		c.Host = host
	}
	if strings.EqualFold(env("COVERALLS_PARALLEL"), "true") {
		c.Parallel = true
	}
	if token := env("COVERALLS_REPO_TOKEN"); token != "" {
		c.RepoToken = token
	}
	if name := env("COVERALLS_SERVICE_NAME"); name != "" {
		c.ServiceName = name
	}
	if flag := env("COVERALLS_FLAG_NAME"); flag != "" {
		c.FlagName = flag
	}
	if env("COVERALLS_SKIP_SSL_VERIFY") != "" {
		c.SkipSSLVerify = true
	}
}

func (c *Config) applyCI(e ci.Environment) {
	if c.ServiceName == "" {
		c.ServiceName = e.Name
	}
	if e.JobID != "" {
		c.ServiceJobID = e.JobID
	}
	if e.PullRequest != "" {
		c.ServicePullRequest = e.PullRequest
	}
	c.TokenRequired = e.TokenRequired
}

// EnsureToken fails when the service needs a repo token and none is set.
func (c *Config) EnsureToken() error {
	if c.RepoToken != "" || !c.TokenRequired {
		return nil
	}
	return ErrTokenRequired
}
