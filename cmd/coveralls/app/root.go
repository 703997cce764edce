package app

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zjy-dev/coveralls/internal/api"
	"github.com/zjy-dev/coveralls/internal/config"
	"github.com/zjy-dev/coveralls/internal/coverage"
	"github.com/zjy-dev/coveralls/internal/engine"
	"github.com/zjy-dev/coveralls/internal/logger"
)

// options are the flags shared by every command.
type options struct {
	rcfile       string
	output       string
	merge        string
	serviceName  string
	baseDir      string
	srcDir       string
	engine       string
	coverageFile string
	include      []string
	omit         []string
	strict       bool
	verbose      bool
	finish       bool
}

// NewCoverallsCommand creates the root command for the coveralls tool.
func NewCoverallsCommand() *cobra.Command {
	o := &options{}

	cmd := &cobra.Command{
		Use:   "coveralls",
		Short: "Send coverage reports to coveralls.io.",
		Long: `Coveralls reads the report of a coverage engine, converts it to a
coveralls job and submits it.

Supported engines:
  gocover     go test -coverprofile output (default: coverage.out)
  coveragepy  coverage json output (default: coverage.json)
  lcov        lcov tracefiles (default: lcov.info)

Configuration:
  Settings are read from .coveralls.yml in the working directory, a .env
  file and COVERALLS_* environment variables. Command line flags override the
  config file values.

Examples:
  # Submit a Go cover profile
  coveralls --engine gocover --coverage-file coverage.out

  # Write the job to a file instead of submitting it
  coveralls --output coveralls.json

  # Combine with a job saved by another run
  coveralls --merge other.json

  # Close a parallel build
  coveralls --finish`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&o.rcfile, "rcfile", "", "Config file to read instead of "+config.FileName)
	flags.StringVar(&o.serviceName, "service-name", "", "CI service name reported to coveralls")
	flags.StringVar(&o.baseDir, "base-dir", "", "Directory stripped from reported file names")
	flags.StringVar(&o.srcDir, "src-dir", "", "Directory prepended to reported file names")
	flags.StringVar(&o.engine, "engine", "", "Coverage engine: gocover, coveragepy or lcov")
	flags.StringVar(&o.coverageFile, "coverage-file", "", "Coverage report produced by the engine")
	flags.StringSliceVar(&o.include, "include", nil, "Only report files matching these patterns")
	flags.StringSliceVar(&o.omit, "omit", nil, "Do not report files matching these patterns")
	flags.BoolVar(&o.strict, "strict", false, "Abort when a measured file has no source or fails to parse")
	flags.BoolVarP(&o.verbose, "verbose", "v", false, "Print debug output")
	cmd.Flags().StringVar(&o.output, "output", "", "Write the job to this file instead of submitting it")
	cmd.Flags().StringVar(&o.merge, "merge", "", "Merge the source files of a saved job")
	cmd.Flags().BoolVar(&o.finish, "finish", false, "Close the parallel build and exit")

	cmd.AddCommand(NewDebugCommand(o))

	return cmd
}

func (o *options) run(cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, client, err := o.setup(cmd)
	if err != nil {
		return err
	}

	if o.finish {
		logger.Info("Finishing parallel build...")
		if err := client.Finish(ctx); err != nil {
			return err
		}
		logger.Info("Done")
		return nil
	}

	if o.merge != "" {
		if err := client.Merge(ctx, o.merge); err != nil {
			return err
		}
	}

	if o.output != "" {
		logger.Info("Writing coverage to %s...", o.output)
		return client.SaveReport(ctx, o.output)
	}

	// Writing the job to a file needs no token, submitting does.
	if err := cfg.EnsureToken(); err != nil {
		return err
	}

	logger.Info("Submitting coverage to coveralls.io...")
	resp, err := client.Wear(ctx, false)
	if err != nil {
		return err
	}
	logger.Info("Coverage submitted!")
	logger.Debug("%+v", *resp)
	if resp.Message != "" {
		logger.Info("%s", resp.Message)
	}
	if resp.URL != "" {
		logger.Info("%s", resp.URL)
	}
	return nil
}

// setup loads the configuration, applies flag overrides and opens the
// coverage engine.
func (o *options) setup(cmd *cobra.Command) (*config.Config, *api.Client, error) {
	if o.verbose {
		logger.SetLevel("debug")
	}

	root, err := os.Getwd()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get working directory: %w", err)
	}

	cfg, err := config.Load(config.LoadOptions{Dir: root, RcFile: o.rcfile, ServiceName: o.serviceName})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Use config values as defaults, command line flags override
	flags := cmd.Flags()
	if flags.Changed("base-dir") {
		cfg.BaseDir = o.baseDir
	}
	if flags.Changed("src-dir") {
		cfg.SrcDir = o.srcDir
	}
	if flags.Changed("engine") {
		cfg.Engine = o.engine
	}
	if flags.Changed("coverage-file") {
		cfg.CoverageFile = o.coverageFile
	}
	if flags.Changed("include") {
		cfg.Include = o.include
	}
	if flags.Changed("omit") {
		cfg.Omit = o.omit
	}
	if flags.Changed("strict") {
		cfg.Strict = o.strict
	}
	if cfg.Engine == "" {
		cfg.Engine = engine.DefaultEngine
	}

	var src coverage.AnalysisSource
	if !o.finish {
		src, err = engine.Open(cfg.Engine, cfg.CoverageFile, engine.Options{
			Root:        root,
			Include:     cfg.Include,
			Omit:        cfg.Omit,
			CheckSyntax: cfg.CheckSyntax,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open coverage report: %w", err)
		}
	}

	policy := coverage.Lenient
	if cfg.Strict {
		policy = coverage.Strict
	}
	logger.Debug("Using engine %s with %s policy", cfg.Engine, policy)

	client := api.NewClient(cfg, src, coverage.Options{
		Root:    root,
		BaseDir: cfg.BaseDir,
		SrcDir:  cfg.SrcDir,
		Policy:  policy,
	})
	return cfg, client, nil
}
