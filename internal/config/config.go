// Package config implements the immutable per-build configuration,
// assembled through a WithDefault(...).WithX(...).Build() chain:
// unexported fields, a JSON-serializable configDTO shadow struct for
// file/stdin-based loading, and a Build() that validates and defaults.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fledgehq/fledge/pkg/fsatomic"
)

// BootFunc starts serving on port and blocks until ctx is canceled or
// the server stops on its own. It crosses into a separate OS process
// via internal/bootchild; it cannot be constructed from a JSON config
// document, only from Go code via WithBoot.
type BootFunc func(ctx context.Context, port int) error

// ServerSpec describes where the server under crawl comes from:
// exactly one of Origin or Boot is set.
type ServerSpec struct {
	Origin   string
	Boot     BootFunc
	BootName string // registered name, used when Boot crosses a re-exec boundary
}

// DiscoverPolicy controls link-following. Depth -1 means unlimited.
type DiscoverPolicy struct {
	Enabled bool
	Depth   int
	Ignore  []string
}

// Config is the validated, immutable StaticConfig for one build.
type Config struct {
	server    ServerSpec
	routes    []string
	routesFn  func() ([]string, error)
	discover  DiscoverPolicy
	basePath  string
	assetsDir string
	outputDir string
}

func (c Config) Server() ServerSpec       { return c.server }
func (c Config) Routes() []string         { return append([]string(nil), c.routes...) }
func (c Config) Discover() DiscoverPolicy { return c.discover }
func (c Config) BasePath() string         { return c.basePath }
func (c Config) AssetsDir() string        { return c.assetsDir }
func (c Config) OutputDir() string        { return c.outputDir }

// WithDefault creates a builder seeded with the defaults: basePath
// "/", outputDir "./dist", discovery disabled.
func WithDefault() *Config {
	return &Config{
		basePath:  "/",
		outputDir: "./dist",
		discover:  DiscoverPolicy{Enabled: false},
	}
}

func (c *Config) WithOrigin(origin string) *Config {
	c.server.Origin = origin
	return c
}

func (c *Config) WithBoot(name string, fn BootFunc) *Config {
	c.server.Boot = fn
	c.server.BootName = name
	return c
}

func (c *Config) WithRoutes(routes []string) *Config {
	c.routes = routes
	return c
}

// WithRoutesFn supplies routes lazily: fn is evaluated once, at Build
// time, so a caller can compute the route list from its own router or
// sitemap without the config package caring how.
func (c *Config) WithRoutesFn(fn func() ([]string, error)) *Config {
	c.routesFn = fn
	return c
}

func (c *Config) WithDiscover(policy DiscoverPolicy) *Config {
	c.discover = policy
	return c
}

func (c *Config) WithBasePath(basePath string) *Config {
	if basePath != "" {
		c.basePath = basePath
	}
	return c
}

func (c *Config) WithAssetsDir(dir string) *Config {
	c.assetsDir = dir
	return c
}

func (c *Config) WithOutputDir(dir string) *Config {
	if dir != "" {
		c.outputDir = dir
	}
	return c
}

// Build validates the accumulated fields and returns the immutable
// Config, or a *ConfigError. Validation happens before the build takes
// any side effect.
func (c *Config) Build() (Config, error) {
	if c.server.Origin == "" && c.server.Boot == nil {
		return Config{}, &ConfigError{Field: "server", Cause: "exactly one of origin or boot must be set"}
	}
	if c.server.Origin != "" && c.server.Boot != nil {
		return Config{}, &ConfigError{Field: "server", Cause: "origin and boot are mutually exclusive"}
	}
	if c.server.Boot != nil && c.server.BootName == "" {
		return Config{}, &ConfigError{Field: "server", Cause: "a boot callable must be registered under a name"}
	}
	if c.basePath == "" {
		c.basePath = "/"
	}
	if c.basePath[0] != '/' {
		return Config{}, &ConfigError{Field: "basePath", Cause: "must be site-absolute (start with /)"}
	}
	if c.outputDir == "" {
		c.outputDir = "./dist"
	}
	if c.discover.Enabled && c.discover.Depth < 0 {
		// {true} with no depth means unlimited; represent internally as -1.
		c.discover.Depth = -1
	}
	if !c.discover.Enabled {
		c.discover.Depth = 0
		c.discover.Ignore = nil
	}
	for _, pattern := range c.discover.Ignore {
		if pattern == "" {
			return Config{}, &ConfigError{Field: "discover.ignore", Cause: "glob pattern must not be empty"}
		}
	}
	if c.routesFn != nil {
		lazy, err := c.routesFn()
		if err != nil {
			return Config{}, &ConfigError{Field: "routes", Cause: err.Error()}
		}
		c.routes = lazy
	}
	routes := make([]string, len(c.routes))
	copy(routes, c.routes)

	return Config{
		server:    c.server,
		routes:    routes,
		discover:  c.discover,
		basePath:  c.basePath,
		assetsDir: c.assetsDir,
		outputDir: c.outputDir,
	}, nil
}

// --- JSON document loading (file / stdin config sources) ---

// discoverDTO mirrors the discover union in JSON: either the bare
// booleans false/true, or an object {"depth": N, "ignore": [...]}.
type discoverDTO struct {
	Enabled bool
	Depth   *int
	Ignore  []string
}

func (d *discoverDTO) UnmarshalJSON(data []byte) error {
	var asBool bool
	if err := json.Unmarshal(data, &asBool); err == nil {
		d.Enabled = asBool
		d.Depth = nil
		d.Ignore = nil
		return nil
	}

	var asObject struct {
		Depth  *int     `json:"depth"`
		Ignore []string `json:"ignore"`
	}
	if err := json.Unmarshal(data, &asObject); err != nil {
		return fmt.Errorf("discover must be a bool or {depth, ignore}: %w", err)
	}
	d.Enabled = true
	d.Depth = asObject.Depth
	d.Ignore = asObject.Ignore
	return nil
}

type serverDTO struct {
	Origin string `json:"origin"`
}

type configDTO struct {
	Server    *serverDTO   `json:"server,omitempty"`
	Routes    []string     `json:"routes,omitempty"`
	Discover  *discoverDTO `json:"discover,omitempty"`
	BasePath  string       `json:"basePath,omitempty"`
	AssetsDir string       `json:"assetsDir,omitempty"`
	OutputDir string       `json:"outputDir,omitempty"`
}

// FromJSON builds a Config from a JSON document. A boot callable
// cannot cross a JSON boundary, so configs loaded this way always
// carry a pre-existing Origin.
func FromJSON(data []byte) (Config, error) {
	var dto configDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrConfigParsingFail, err)
	}

	builder := WithDefault()

	if dto.Server != nil && dto.Server.Origin != "" {
		builder = builder.WithOrigin(dto.Server.Origin)
	}
	if len(dto.Routes) > 0 {
		builder = builder.WithRoutes(dto.Routes)
	}
	if dto.Discover != nil {
		policy := DiscoverPolicy{Enabled: dto.Discover.Enabled, Ignore: dto.Discover.Ignore}
		if dto.Discover.Depth != nil {
			policy.Depth = *dto.Discover.Depth
		} else {
			policy.Depth = -1
		}
		builder = builder.WithDiscover(policy)
	}
	if dto.BasePath != "" {
		builder = builder.WithBasePath(dto.BasePath)
	}
	if dto.AssetsDir != "" {
		builder = builder.WithAssetsDir(dto.AssetsDir)
	}
	if dto.OutputDir != "" {
		builder = builder.WithOutputDir(dto.OutputDir)
	}

	return builder.Build()
}

// FromFile loads and parses a JSON config document from path.
func FromFile(path string) (Config, error) {
	if !fsatomic.Exists(path) {
		return Config{}, fmt.Errorf("%w: %s", ErrFileDoesNotExist, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrReadConfigFail, err)
	}
	return FromJSON(data)
}

// FromReader parses a JSON config document from r, the piped-stdin
// source.
func FromReader(r io.Reader) (Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrReadConfigFail, err)
	}
	return FromJSON(data)
}
