package supervisor_test

import (
	"context"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fledgehq/fledge/internal/supervisor"
)

// TestMain lets this test binary re-exec itself as the child process
// under test: when FLEDGE_TEST_MODE=httpserver is set, it runs a bare
// HTTP server on $PORT instead of the test suite. This is the standard
// Go idiom for exercising real subprocess behavior without a second
// build artifact.
func TestMain(m *testing.M) {
	if os.Getenv("FLEDGE_TEST_MODE") == "httpserver" {
		runTestHTTPServer()
		return
	}
	os.Exit(m.Run())
}

func runTestHTTPServer() {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := &http.Server{Addr: "127.0.0.1:" + os.Getenv("PORT"), Handler: mux}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGTERM, os.Interrupt)
	go func() {
		<-sig
		_ = srv.Close()
	}()

	_ = srv.ListenAndServe()
	os.Exit(0)
}

func TestSupervisor_PreExistingOriginSkipsSpawn(t *testing.T) {
	s := supervisor.New(supervisor.ServerSpec{Origin: "http://example.com"}, supervisor.Config{})

	origin, err := s.Boot(context.Background())
	require.NoError(t, err)
	require.Equal(t, "http://example.com", origin)
	require.Equal(t, supervisor.StateReady, s.State())

	require.NoError(t, s.Kill(context.Background()))
	require.Equal(t, supervisor.StateDead, s.State())
}

func TestSupervisor_BootsAndKillsRealChildProcess(t *testing.T) {
	exe, err := os.Executable()
	require.NoError(t, err)

	spec := supervisor.ServerSpec{
		Command: exe,
		Env:     []string{"FLEDGE_TEST_MODE=httpserver"},
	}
	cfg := supervisor.Config{
		ReadyDeadline: 3 * time.Second,
		PollInterval:  10 * time.Millisecond,
	}
	s := supervisor.New(spec, cfg)

	origin, err := s.Boot(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, origin)
	require.Equal(t, supervisor.StateReady, s.State())

	resp, err := http.Get(origin + "/")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, s.Kill(context.Background()))
	require.Equal(t, supervisor.StateDead, s.State())
}

func TestSupervisor_BootFailureWhenChildExitsImmediately(t *testing.T) {
	falsePath, err := exec.LookPath("false")
	if err != nil {
		t.Skip("no 'false' binary available on this system")
	}

	spec := supervisor.ServerSpec{Command: falsePath}
	cfg := supervisor.Config{
		MaxPortAttempts: 2,
		PortGraceDelay:  1 * time.Millisecond,
		ReadyDeadline:   300 * time.Millisecond,
		PollInterval:    10 * time.Millisecond,
	}
	s := supervisor.New(spec, cfg)

	_, err = s.Boot(context.Background())
	require.Error(t, err)

	var bootErr *supervisor.BootError
	require.ErrorAs(t, err, &bootErr)
	require.Equal(t, supervisor.StateFailed, s.State())
}

func TestSupervisor_BootFailureWhenCommandDoesNotExist(t *testing.T) {
	spec := supervisor.ServerSpec{Command: "/no/such/binary-fledge-test"}
	cfg := supervisor.Config{MaxPortAttempts: 1, PortGraceDelay: time.Millisecond}
	s := supervisor.New(spec, cfg)

	_, err := s.Boot(context.Background())
	require.Error(t, err)
	require.Equal(t, supervisor.StateFailed, s.State())
}
