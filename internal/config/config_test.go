package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fledgehq/fledge/internal/config"
)

func TestWithDefaultBuild(t *testing.T) {
	cfg, err := config.WithDefault().WithOrigin("http://127.0.0.1:1234").Build()
	require.NoError(t, err)
	assert.Equal(t, "/", cfg.BasePath())
	assert.Equal(t, "./dist", cfg.OutputDir())
	assert.False(t, cfg.Discover().Enabled)
	assert.Equal(t, "http://127.0.0.1:1234", cfg.Server().Origin)
}

func TestBuildRejectsMissingServer(t *testing.T) {
	_, err := config.WithDefault().Build()
	require.Error(t, err)
	var cerr *config.ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "server", cerr.Field)
}

func TestBuildRejectsBothServerKinds(t *testing.T) {
	boot := func(ctx context.Context, port int) error { return nil }
	_, err := config.WithDefault().
		WithOrigin("http://127.0.0.1:1234").
		WithBoot("app", boot).
		Build()
	require.Error(t, err)
}

func TestBuildRejectsRelativeBasePath(t *testing.T) {
	_, err := config.WithDefault().WithOrigin("http://x").WithBasePath("app").Build()
	require.Error(t, err)
}

func TestDiscoverTrueMeansUnlimitedDepth(t *testing.T) {
	cfg, err := config.WithDefault().
		WithOrigin("http://x").
		WithDiscover(config.DiscoverPolicy{Enabled: true, Depth: -1}).
		Build()
	require.NoError(t, err)
	assert.Equal(t, -1, cfg.Discover().Depth)
}

func TestDiscoverFalseClearsDepthAndIgnore(t *testing.T) {
	cfg, err := config.WithDefault().
		WithOrigin("http://x").
		WithDiscover(config.DiscoverPolicy{Enabled: false, Depth: 5, Ignore: []string{"/admin/*"}}).
		Build()
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Discover().Depth)
	assert.Nil(t, cfg.Discover().Ignore)
}

func TestWithRoutesFnEvaluatedAtBuild(t *testing.T) {
	calls := 0
	cfg, err := config.WithDefault().
		WithOrigin("http://x").
		WithRoutesFn(func() ([]string, error) {
			calls++
			return []string{"/", "/about"}, nil
		}).
		Build()
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, []string{"/", "/about"}, cfg.Routes())
}

func TestWithRoutesFnErrorIsConfigError(t *testing.T) {
	_, err := config.WithDefault().
		WithOrigin("http://x").
		WithRoutesFn(func() ([]string, error) { return nil, assert.AnError }).
		Build()
	require.Error(t, err)
	var cerr *config.ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "routes", cerr.Field)
}

func TestFromJSONDiscoverUnionBool(t *testing.T) {
	cfg, err := config.FromJSON([]byte(`{"server":{"origin":"http://x"},"discover":true}`))
	require.NoError(t, err)
	assert.True(t, cfg.Discover().Enabled)
	assert.Equal(t, -1, cfg.Discover().Depth)
}

func TestFromJSONDiscoverUnionObject(t *testing.T) {
	cfg, err := config.FromJSON([]byte(`{"server":{"origin":"http://x"},"discover":{"depth":2,"ignore":["/admin/*"]}}`))
	require.NoError(t, err)
	assert.True(t, cfg.Discover().Enabled)
	assert.Equal(t, 2, cfg.Discover().Depth)
	assert.Equal(t, []string{"/admin/*"}, cfg.Discover().Ignore)
}

func TestFromFileMissing(t *testing.T) {
	_, err := config.FromFile(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrFileDoesNotExist)
}

func TestFromFileLoads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fledge.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"server":{"origin":"http://x"},"routes":["/"],"basePath":"/app"}`), 0o644))

	cfg, err := config.FromFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"/"}, cfg.Routes())
	assert.Equal(t, "/app", cfg.BasePath())
}
