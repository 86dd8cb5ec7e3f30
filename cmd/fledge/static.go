package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/fledgehq/fledge/internal/buildlog"
	"github.com/fledgehq/fledge/internal/config"
	"github.com/fledgehq/fledge/internal/coordinator"
)

var (
	flagServer   string
	flagOut      string
	flagBase     string
	flagValidate bool
	flagVerbose  bool
)

var staticCmd = &cobra.Command{
	Use:   "static [configPath[:exportName]]",
	Short: "Crawl a running server and materialize it as a static site.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var configPath string
		if len(args) == 1 {
			configPath = args[0]
		}
		return runStatic(configPath)
	},
}

func init() {
	staticCmd.Flags().StringVar(&flagServer, "server", "", "HTTP origin to crawl, e.g. http://127.0.0.1:4000")
	staticCmd.Flags().StringVar(&flagOut, "out", "", "overrides outputDir")
	staticCmd.Flags().StringVar(&flagBase, "base", "", "overrides basePath")
	staticCmd.Flags().BoolVar(&flagValidate, "validate", false, "validate the resolved config and exit without crawling")
	staticCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "print every supervisor state transition and fetch outcome to stderr")
}

// exitCodeError carries the process exit code for a build outcome,
// alongside the underlying cause for display.
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string { return e.err.Error() }
func (e *exitCodeError) Unwrap() error { return e.err }

func asExitCode(err error) (int, bool) {
	if ec, ok := err.(*exitCodeError); ok {
		return ec.code, true
	}
	return 0, false
}

// configSource selects where the build's configuration comes from:
// piped stdin outranks a config file, which outranks bare CLI flags.
// Exactly one source is used; the others are reported with a warning
// on stderr.
type configSource int

const (
	sourceFlags configSource = iota
	sourceFile
	sourceStdin
)

func resolveConfigSource(configPath string) configSource {
	if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		return sourceStdin
	}
	if configPath != "" {
		return sourceFile
	}
	return sourceFlags
}

func runStatic(configArg string) error {
	configPath, exportName := splitConfigArg(configArg)

	source := resolveConfigSource(configPath)
	warnIgnoredSources(source, configPath, flagServer)

	var cfg config.Config
	var err error

	switch source {
	case sourceStdin:
		cfg, err = config.FromReader(os.Stdin)
	case sourceFile:
		if exportName != "" {
			fmt.Fprintf(os.Stderr, "fledge: warning: named config exports are not supported; using %s as-is\n", configPath)
		}
		cfg, err = config.FromFile(configPath)
	default:
		cfg, err = configFromFlags()
	}
	if err != nil {
		return &exitCodeError{code: 1, err: err}
	}

	cfg, err = applyFlagOverrides(cfg)
	if err != nil {
		return &exitCodeError{code: 1, err: err}
	}

	if flagValidate {
		printResolvedConfig(cfg)
		return nil
	}

	logger := buildlog.New(flagVerbose)
	result := coordinator.Run(context.Background(), cfg, coordinator.Options{}, logger)
	return interpretResult(result)
}

func splitConfigArg(arg string) (path, exportName string) {
	if arg == "" {
		return "", ""
	}
	if idx := strings.LastIndex(arg, ":"); idx > 1 { // idx>1 so "C:\path" on Windows isn't split
		return arg[:idx], arg[idx+1:]
	}
	return arg, ""
}

func warnIgnoredSources(chosen configSource, configPath, server string) {
	switch chosen {
	case sourceStdin:
		if configPath != "" {
			fmt.Fprintf(os.Stderr, "fledge: warning: config file %s is ignored; config was piped on stdin\n", configPath)
		}
		if server != "" {
			fmt.Fprintln(os.Stderr, "fledge: warning: --server is ignored; config was piped on stdin")
		}
	case sourceFile:
		if server != "" {
			fmt.Fprintln(os.Stderr, "fledge: warning: --server is ignored; a config file was given")
		}
	}
}

func configFromFlags() (config.Config, error) {
	if flagServer == "" {
		return config.Config{}, fmt.Errorf("--server is required when no config file or piped config is given")
	}
	return config.WithDefault().WithOrigin(flagServer).WithRoutes([]string{"/"}).Build()
}

func applyFlagOverrides(cfg config.Config) (config.Config, error) {
	builder := config.WithDefault().
		WithRoutes(cfg.Routes()).
		WithDiscover(cfg.Discover()).
		WithAssetsDir(cfg.AssetsDir()).
		WithBasePath(cfg.BasePath()).
		WithOutputDir(cfg.OutputDir())

	if cfg.Server().Boot != nil {
		builder = builder.WithBoot(cfg.Server().BootName, cfg.Server().Boot)
	} else {
		builder = builder.WithOrigin(cfg.Server().Origin)
	}

	if flagOut != "" {
		builder = builder.WithOutputDir(flagOut)
	}
	if flagBase != "" {
		builder = builder.WithBasePath(flagBase)
	}
	return builder.Build()
}

func printResolvedConfig(cfg config.Config) {
	fmt.Printf("server:    %s\n", serverDescription(cfg))
	fmt.Printf("routes:    %v\n", cfg.Routes())
	fmt.Printf("discover:  enabled=%t depth=%d ignore=%v\n", cfg.Discover().Enabled, cfg.Discover().Depth, cfg.Discover().Ignore)
	fmt.Printf("basePath:  %s\n", cfg.BasePath())
	fmt.Printf("assetsDir: %s\n", cfg.AssetsDir())
	fmt.Printf("outputDir: %s\n", cfg.OutputDir())
}

func serverDescription(cfg config.Config) string {
	if cfg.Server().Boot != nil {
		return fmt.Sprintf("boot:%s", cfg.Server().BootName)
	}
	return cfg.Server().Origin
}

// interpretResult maps a coordinator.Result onto the process exit codes.
func interpretResult(result coordinator.Result) error {
	switch result.Outcome {
	case coordinator.OutcomeSuccess:
		return nil
	case coordinator.OutcomePartial:
		return &exitCodeError{code: 3, err: fmt.Errorf("build completed with permanent failures")}
	case coordinator.OutcomeBootErr:
		return &exitCodeError{code: 2, err: result.Err}
	case coordinator.OutcomeAborted:
		return &exitCodeError{code: 130, err: result.Err}
	default:
		return &exitCodeError{code: 1, err: result.Err}
	}
}
