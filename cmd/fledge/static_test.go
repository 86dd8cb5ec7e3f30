package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fledgehq/fledge/internal/config"
	"github.com/fledgehq/fledge/internal/coordinator"
)

func TestSplitConfigArg(t *testing.T) {
	cases := []struct {
		arg        string
		wantPath   string
		wantExport string
	}{
		{"", "", ""},
		{"fledge.json", "fledge.json", ""},
		{"fledge.json:prod", "fledge.json", "prod"},
		{`C:\site\fledge.json`, `C:\site\fledge.json`, ""},
	}
	for _, c := range cases {
		path, export := splitConfigArg(c.arg)
		require.Equal(t, c.wantPath, path, c.arg)
		require.Equal(t, c.wantExport, export, c.arg)
	}
}

func TestInterpretResult(t *testing.T) {
	cases := []struct {
		outcome  coordinator.Outcome
		wantCode int
		wantNil  bool
	}{
		{coordinator.OutcomeSuccess, 0, true},
		{coordinator.OutcomePartial, 3, false},
		{coordinator.OutcomeBootErr, 2, false},
		{coordinator.OutcomeAborted, 130, false},
	}
	for _, c := range cases {
		err := interpretResult(coordinator.Result{Outcome: c.outcome, Err: errors.New("boom")})
		if c.wantNil {
			require.NoError(t, err)
			continue
		}
		require.Error(t, err)
		code, ok := asExitCode(err)
		require.True(t, ok)
		require.Equal(t, c.wantCode, code)
	}
}

func TestConfigFromFlags_RequiresServer(t *testing.T) {
	flagServer = ""
	_, err := configFromFlags()
	require.Error(t, err)
}

func TestConfigFromFlags_BuildsOriginConfig(t *testing.T) {
	flagServer = "http://127.0.0.1:4000"
	defer func() { flagServer = "" }()

	cfg, err := configFromFlags()
	require.NoError(t, err)
	require.Equal(t, "http://127.0.0.1:4000", cfg.Server().Origin)
	require.Equal(t, []string{"/"}, cfg.Routes())
}

func TestApplyFlagOverrides_OutAndBaseWinOverConfig(t *testing.T) {
	base, err := config.WithDefault().WithOrigin("http://127.0.0.1:4000").WithRoutes([]string{"/"}).
		WithOutputDir("./original").WithBasePath("/docs").Build()
	require.NoError(t, err)

	flagOut = "./overridden"
	flagBase = "/override"
	defer func() { flagOut = ""; flagBase = "" }()

	cfg, err := applyFlagOverrides(base)
	require.NoError(t, err)
	require.Equal(t, "./overridden", cfg.OutputDir())
	require.Equal(t, "/override", cfg.BasePath())
}

func TestServerDescription(t *testing.T) {
	originCfg, err := config.WithDefault().WithOrigin("http://127.0.0.1:4000").WithRoutes([]string{"/"}).Build()
	require.NoError(t, err)
	require.Equal(t, "http://127.0.0.1:4000", serverDescription(originCfg))

	bootCfg, err := config.WithDefault().
		WithBoot("my-server", func(ctx context.Context, port int) error { return nil }).
		WithRoutes([]string{"/"}).Build()
	require.NoError(t, err)
	require.Equal(t, "boot:my-server", serverDescription(bootCfg))
}
