// Package coordinator owns the end-to-end build transaction: it copies
// assets, boots the supervisor, drives the crawl engine to exhaustion,
// and guarantees supervisor teardown on every exit path, whether the
// build succeeds, fails per-URL, or dies partway through.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/fledgehq/fledge/internal/bootchild"
	"github.com/fledgehq/fledge/internal/buildlog"
	"github.com/fledgehq/fledge/internal/config"
	"github.com/fledgehq/fledge/internal/crawl"
	"github.com/fledgehq/fledge/internal/materialize"
	"github.com/fledgehq/fledge/internal/supervisor"
	"github.com/fledgehq/fledge/pkg/classify"
)

// Outcome summarizes the build's final disposition.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePartial Outcome = "partial-failure" // exit code 3
	OutcomeBootErr Outcome = "boot-error"      // exit code 2
	OutcomeAborted Outcome = "aborted"         // exit code 130
)

// Result summarizes one finished build: the per-URL records, outcome
// counts, wall time, and final disposition.
type Result struct {
	Records    map[string]*crawl.UrlRecord
	Counts     map[crawl.Outcome]int
	DurationMs int64
	Outcome    Outcome
	Err        error
}

// Options tunes the supervisor and engine beyond config.Config's
// build-level fields.
type Options struct {
	Supervisor supervisor.Config
	Crawl      crawl.Config
}

// Run executes one build transaction for cfg. Teardown is guaranteed by
// scoped resource acquisition: if any step after the supervisor is
// constructed fails, the supervisor is still killed before Run returns.
func Run(ctx context.Context, cfg config.Config, opts Options, logger *buildlog.Logger) Result {
	start := time.Now()

	// origin isn't known until the Supervisor boots (below); the
	// Materializer still needs to exist now so the asset copy and the
	// crawl share one bookkeeping map and AssetOverwrite can fire.
	materializer := materialize.New(cfg.OutputDir(), cfg.BasePath(), nil)
	if logger.Verbose() {
		materializer = materializer.EnableDebugValidate(func(err error) {
			logger.Warn("HtmlDebugValidate", err.Error())
		})
	}

	if cfg.AssetsDir() != "" {
		if err := materializer.CopyAssets(cfg.AssetsDir()); err != nil {
			return fail(start, OutcomeBootErr, fmt.Errorf("copy assets: %w", err))
		}
		logger.Info(fmt.Sprintf("copied assets from %s", cfg.AssetsDir()))
	}

	spec := serverSpec(cfg.Server())
	sup := supervisor.New(spec, opts.Supervisor)

	originStr, err := sup.Boot(ctx)
	if err != nil {
		var bootErr *supervisor.BootError
		if errors.As(err, &bootErr) {
			logger.Error("BootError", "", bootErr)
			return fail(start, OutcomeBootErr, bootErr)
		}
		if errors.Is(err, context.Canceled) {
			return fail(start, OutcomeAborted, err)
		}
		return fail(start, OutcomeBootErr, err)
	}
	logger.SupervisorTransition("starting", "ready")

	defer func() {
		_ = sup.Kill(context.Background())
		logger.SupervisorTransition("ready", "dead")
	}()

	origin, err := url.Parse(originStr)
	if err != nil {
		return fail(start, OutcomeBootErr, fmt.Errorf("parse origin %q: %w", originStr, err))
	}

	materializer.SetOrigin(origin)
	engine := crawl.New(origin, materializer, crawlConfig(cfg, opts.Crawl, logger))

	if err := engine.Seed(cfg.Routes()); err != nil {
		return fail(start, OutcomeBootErr, fmt.Errorf("seed routes: %w", err))
	}

	records, err := engine.Run(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Result{
				Records:    records,
				Counts:     countOutcomes(records),
				DurationMs: time.Since(start).Milliseconds(),
				Outcome:    OutcomeAborted,
				Err:        err,
			}
		}
		var collision *materialize.OutputCollisionError
		if errors.As(err, &collision) {
			logger.Error("OutputCollision", collision.NewURL, collision)
		} else if SeverityOf(err) == classify.SeverityFatal {
			logger.Error("BuildError", "", err)
		}
		return Result{
			Records:    records,
			Counts:     countOutcomes(records),
			DurationMs: time.Since(start).Milliseconds(),
			Outcome:    OutcomeBootErr,
			Err:        err,
		}
	}

	counts := countOutcomes(records)
	outcome := OutcomeSuccess
	if counts[crawl.OutcomeFailedPermanent] > 0 || counts[crawl.OutcomeFailedNetwork] > 0 {
		outcome = OutcomePartial
	}

	return Result{
		Records:    records,
		Counts:     counts,
		DurationMs: time.Since(start).Milliseconds(),
		Outcome:    outcome,
	}
}

func fail(start time.Time, outcome Outcome, err error) Result {
	return Result{
		Counts:     map[crawl.Outcome]int{},
		DurationMs: time.Since(start).Milliseconds(),
		Outcome:    outcome,
		Err:        err,
	}
}

func countOutcomes(records map[string]*crawl.UrlRecord) map[crawl.Outcome]int {
	counts := map[crawl.Outcome]int{}
	for _, rec := range records {
		counts[rec.Outcome]++
	}
	return counts
}

func serverSpec(s config.ServerSpec) supervisor.ServerSpec {
	if s.Boot != nil {
		bootchild.Register(s.BootName, bootchild.BootFunc(s.Boot))
		return supervisor.ServerSpec{BootName: s.BootName}
	}
	return supervisor.ServerSpec{Origin: s.Origin}
}

func crawlConfig(cfg config.Config, base crawl.Config, logger *buildlog.Logger) crawl.Config {
	policy := crawl.DiscoverPolicy{
		Enabled: cfg.Discover().Enabled,
		Depth:   cfg.Discover().Depth,
		Ignore:  cfg.Discover().Ignore,
	}
	base.Policy = policy
	base.Logger = logger
	return base
}

// SeverityOf reports the classify.Severity of err if it implements
// classify.ClassifiedError, defaulting to Fatal for unclassified errors
// since the Coordinator only ever surfaces errors that already aborted
// the build.
func SeverityOf(err error) classify.Severity {
	var ce classify.ClassifiedError
	if errors.As(err, &ce) {
		return ce.Severity()
	}
	return classify.SeverityFatal
}
