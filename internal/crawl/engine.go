// Package crawl implements the crawl engine: a bounded-concurrency BFS
// over one site's same-origin URLs, fetching each with a manual
// redirect policy (the engine inspects 3xx responses itself rather
// than letting the HTTP client auto-follow, since a cross-origin
// redirect target is a terminal outcome, not something to chase),
// discovering further same-origin links in HTML responses via
// internal/linkextract, and handing every successful body to
// internal/materialize for writing.
//
// The engine is logically single-threaded: fetches run concurrently,
// but frontier, seen-set, and record mutations all happen on the one
// goroutine draining the completion channel.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/fledgehq/fledge/internal/linkextract"
	"github.com/fledgehq/fledge/internal/materialize"
	"github.com/fledgehq/fledge/internal/urlnorm"
	"github.com/fledgehq/fledge/pkg/retry"
)

// Outcome is the terminal disposition recorded for a crawled URL.
type Outcome string

const (
	OutcomeFetched         Outcome = "fetched"
	OutcomeRedirected      Outcome = "redirected"
	OutcomeSkippedIgnored  Outcome = "skipped-ignored"
	OutcomeSkippedDepth    Outcome = "skipped-depth"
	OutcomeFailedPermanent Outcome = "failed-permanent"
	OutcomeFailedNetwork   Outcome = "failed-network"
)

// CrawlTarget is one unit of frontier work: a canonical URL reached at
// a given depth, optionally via a referring page.
type CrawlTarget struct {
	URL      *url.URL
	Depth    int
	Referrer *url.URL
}

// UrlRecord is the crawl's final report for one canonical URL. Exactly
// one is produced per URL that was ever admitted to the frontier or
// rejected by depth/ignore gating.
type UrlRecord struct {
	URL      string
	Depth    int
	Status   int
	Attempts int
	Outcome  Outcome
}

// DiscoverPolicy controls whether and how far the engine follows
// same-origin links found in crawled HTML.
type DiscoverPolicy struct {
	Enabled bool
	Depth   int // -1 means unlimited
	Ignore  []string
}

// Config tunes the engine's HTTP behavior and concurrency.
type Config struct {
	MaxConcurrency int
	Timeout        time.Duration
	UserAgent      string
	Policy         DiscoverPolicy
	// Logger receives one event per fetch completion, plus warnings
	// for overwritten assets and skipped links. Nil is a valid,
	// silent default.
	Logger EventLogger
}

// EventLogger is the subset of buildlog.Logger the engine needs. Kept
// as a narrow interface here (rather than importing internal/buildlog
// directly) so crawl stays usable without pulling in the logging stack
// in tests that don't care about it.
type EventLogger interface {
	FetchCompleted(url string, status int, outcome string, attempts int)
	Warn(kind, message string)
}

// DefaultConfig returns the crawl defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 4,
		Timeout:        30 * time.Second,
		UserAgent:      "Fledge/1.0",
	}
}

func withEngineDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = def.MaxConcurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	return cfg
}

// Engine drives the crawl for one origin.
type Engine struct {
	origin       *url.URL
	cfg          Config
	client       *http.Client
	materializer *materialize.Materializer

	frontier *FIFOQueue[CrawlTarget]
	seen     Set[string]
	records  map[string]*UrlRecord
}

// New constructs an Engine. origin is the crawl's base URL; materializer
// receives every fetched response for writing to the output tree.
func New(origin *url.URL, materializer *materialize.Materializer, cfg Config) *Engine {
	cfg = withEngineDefaults(cfg)
	return &Engine{
		origin: origin,
		cfg:    cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		materializer: materializer,
		frontier:     NewFIFOQueue[CrawlTarget](),
		seen:         NewSet[string](),
		records:      make(map[string]*UrlRecord),
	}
}

// Seed resolves each route against origin and admits it to the
// frontier at depth 0.
func (e *Engine) Seed(routes []string) error {
	for _, r := range routes {
		resolved, err := urlnorm.Canonicalize(r, e.origin)
		if err != nil {
			return err
		}
		e.enqueueIfNew(CrawlTarget{URL: resolved, Depth: 0})
	}
	return nil
}

type fetchResult struct {
	status  int
	headers http.Header
	body    []byte
}

type fetchJob struct {
	target   CrawlTarget
	result   fetchResult
	attempts int
	err      error
}

// Run drains the frontier under bounded concurrency until it is empty
// and no fetch remains in flight, or ctx is canceled. On cancellation
// it waits for in-flight fetches to unwind (their requests share ctx,
// so they return promptly) and returns ctx.Err(). An OutputCollision
// from the materializer aborts the whole run immediately.
func (e *Engine) Run(ctx context.Context) (map[string]*UrlRecord, error) {
	results := make(chan fetchJob)
	inflight := 0

	for {
		for inflight < e.cfg.MaxConcurrency {
			target, ok := e.frontier.Dequeue()
			if !ok {
				break
			}
			inflight++
			go func(t CrawlTarget) {
				res, attempts, err := e.fetchWithRetry(ctx, t)
				results <- fetchJob{target: t, result: res, attempts: attempts, err: err}
			}(target)
		}

		if inflight == 0 {
			return e.records, nil
		}

		select {
		case job := <-results:
			inflight--
			if err := e.dispatch(job.target, job.result, job.attempts, job.err); err != nil {
				e.drain(results, inflight)
				return e.records, err
			}
		case <-ctx.Done():
			e.drain(results, inflight)
			return e.records, ctx.Err()
		}
	}
}

func (e *Engine) drain(results chan fetchJob, inflight int) {
	for inflight > 0 {
		<-results
		inflight--
	}
}

func (e *Engine) fetchWithRetry(ctx context.Context, target CrawlTarget) (fetchResult, int, error) {
	var retryAfter time.Duration
	return retry.Do(ctx, retry.Param{
		MaxAttempts: 3,
		Delays:      []time.Duration{100 * time.Millisecond, 400 * time.Millisecond},
		RetryAfter: func(int) (time.Duration, bool) {
			if retryAfter > 0 {
				return retryAfter, true
			}
			return 0, false
		},
	}, func(attempt int) (fetchResult, error) {
		res, err := e.performFetch(ctx, target.URL)
		retryAfter = 0
		var fetchErr *FetchError
		if errors.As(err, &fetchErr) {
			retryAfter = fetchErr.RetryAfter
		}
		return res, err
	})
}

func (e *Engine) performFetch(ctx context.Context, u *url.URL) (fetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fetchResult{}, &FetchError{Message: err.Error(), Retryable: false, Cause: CauseNetwork}
	}
	req.Header.Set("User-Agent", e.cfg.UserAgent)
	req.Header.Set("Accept", "*/*")

	resp, err := e.client.Do(req)
	if err != nil {
		return fetchResult{}, &FetchError{Message: err.Error(), Retryable: true, Cause: CauseNetwork}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fetchResult{}, &FetchError{Message: err.Error(), Retryable: true, Cause: CauseNetwork}
	}

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return fetchResult{status: resp.StatusCode, headers: resp.Header, body: body}, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return fetchResult{}, &FetchError{
			Message:    "rate limited",
			Retryable:  true,
			Cause:      CauseClientError,
			Status:     resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	case resp.StatusCode >= 500:
		return fetchResult{}, &FetchError{
			Message: fmt.Sprintf("server error %d", resp.StatusCode), Retryable: true, Cause: CauseServerError, Status: resp.StatusCode,
		}
	case resp.StatusCode >= 400:
		return fetchResult{}, &FetchError{
			Message: fmt.Sprintf("client error %d", resp.StatusCode), Retryable: true, Cause: CauseClientError, Status: resp.StatusCode,
		}
	default:
		return fetchResult{status: resp.StatusCode, headers: resp.Header, body: body}, nil
	}
}

// parseRetryAfter reads a Retry-After header value: either delta-seconds
// or an HTTP date. Unparseable or past values yield 0, meaning the
// normal backoff schedule applies.
func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// dispatch records target's terminal outcome and, for 2xx responses,
// hands the body to the materializer and runs discovery. It returns a
// non-nil error only for a fatal materializer failure or context
// cancellation, both of which abort the run.
func (e *Engine) dispatch(target CrawlTarget, result fetchResult, attempts int, err error) error {
	key := target.URL.String()
	rec := &UrlRecord{URL: key, Depth: target.Depth, Attempts: attempts}

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		var fetchErr *FetchError
		if errors.As(err, &fetchErr) {
			rec.Status = fetchErr.Status
			if fetchErr.Cause == CauseNetwork {
				rec.Outcome = OutcomeFailedNetwork
			} else {
				rec.Outcome = OutcomeFailedPermanent
			}
		} else {
			rec.Outcome = OutcomeFailedPermanent
		}
		e.records[key] = rec
		e.logFetch(rec)
		return nil
	}

	rec.Status = result.status

	switch {
	case result.status >= 200 && result.status < 300:
		outcome, err := e.onSuccess(target, result)
		rec.Outcome = outcome
		e.records[key] = rec
		e.logFetch(rec)
		return err
	case result.status >= 300 && result.status < 400:
		e.onRedirect(target, result, rec)
		e.records[key] = rec
		e.logFetch(rec)
		return nil
	default: // 404, 410, and any status that fell through retries unclassified
		rec.Outcome = OutcomeFailedPermanent
		e.records[key] = rec
		e.logFetch(rec)
		return nil
	}
}

func (e *Engine) logFetch(rec *UrlRecord) {
	if e.cfg.Logger != nil {
		e.cfg.Logger.FetchCompleted(rec.URL, rec.Status, string(rec.Outcome), rec.Attempts)
	}
}

func (e *Engine) onRedirect(target CrawlTarget, result fetchResult, rec *UrlRecord) {
	loc := result.headers.Get("Location")
	if loc == "" {
		rec.Outcome = OutcomeFailedPermanent
		return
	}
	resolved, err := urlnorm.Canonicalize(loc, target.URL)
	if err != nil || !urlnorm.IsSameOrigin(resolved, e.origin) {
		rec.Outcome = OutcomeFailedPermanent
		return
	}
	rec.Outcome = OutcomeRedirected
	e.enqueueIfNew(CrawlTarget{URL: resolved, Depth: target.Depth, Referrer: target.URL})
}

// onSuccess materializes a 2xx response and runs discovery on its
// links. An HTML body that isn't decodable is skipped with a warning
// and downgraded to failed-permanent; a fatal materializer error (an
// OutputCollision) propagates up and aborts the run.
func (e *Engine) onSuccess(target CrawlTarget, result fetchResult) (Outcome, error) {
	contentType := result.headers.Get("Content-Type")
	isHTML := isHTMLContent(contentType, result.body)

	var discoveries []linkextract.Discovery
	if isHTML {
		ds, err := linkextract.Extract(result.body)
		if err != nil {
			e.warn("HtmlParseError", fmt.Sprintf("%s: %v", target.URL, err))
			return OutcomeFailedPermanent, nil
		}
		discoveries = ds
	}

	matRes, err := e.materializer.MaterializePage(target.URL, result.body, discoveries, isHTML)
	if err != nil {
		return OutcomeFetched, err
	}
	if matRes.AssetOverwrote {
		e.warn("AssetOverwrite", target.URL.String())
	}

	if isHTML && e.cfg.Policy.Enabled {
		for _, d := range discoveries {
			e.considerDiscovery(target, d.URL)
		}
	}
	return OutcomeFetched, nil
}

func (e *Engine) warn(kind, message string) {
	if e.cfg.Logger != nil {
		e.cfg.Logger.Warn(kind, message)
	}
}

// considerDiscovery applies the discovery gating rules to one link
// found on target's page: same-origin only, depth and ignore-pattern
// checks, and frontier dedup. A same-origin URL rejected specifically
// by depth or ignore still gets a UrlRecord (skipped-depth /
// skipped-ignored) so repeated discovery of it doesn't re-evaluate the
// gate on every referring page; a URL rejected for being out of scope
// entirely (cross-origin, or discovery disabled) gets no record at all.
func (e *Engine) considerDiscovery(referrer CrawlTarget, rawURL string) {
	resolved, err := urlnorm.Canonicalize(rawURL, referrer.URL)
	if err != nil {
		e.warn("InvalidUrl", fmt.Sprintf("%s (found on %s)", rawURL, referrer.URL))
		return
	}
	if !urlnorm.IsSameOrigin(resolved, e.origin) {
		return
	}

	key := urlnorm.Key(resolved)
	if e.seen.Contains(key) {
		return
	}

	depth := referrer.Depth + 1

	if e.cfg.Policy.Depth >= 0 && depth > e.cfg.Policy.Depth {
		e.seen.Add(key)
		e.records[key] = &UrlRecord{URL: key, Depth: depth, Outcome: OutcomeSkippedDepth}
		return
	}

	if urlnorm.MatchesIgnore(urlnorm.ToSitePath(resolved), e.cfg.Policy.Ignore) {
		e.seen.Add(key)
		e.records[key] = &UrlRecord{URL: key, Depth: depth, Outcome: OutcomeSkippedIgnored}
		return
	}

	e.seen.Add(key)
	e.frontier.Enqueue(CrawlTarget{URL: resolved, Depth: depth, Referrer: referrer.URL})
}

func (e *Engine) enqueueIfNew(t CrawlTarget) {
	key := urlnorm.Key(t.URL)
	if e.seen.Contains(key) {
		return
	}
	e.seen.Add(key)
	e.frontier.Enqueue(t)
}

func isHTMLContent(contentType string, body []byte) bool {
	if contentType != "" {
		return strings.Contains(strings.ToLower(contentType), "text/html")
	}
	trimmed := strings.TrimLeft(string(body), " \t\r\n")
	lower := strings.ToLower(trimmed)
	return strings.HasPrefix(lower, "<!doctype") || strings.HasPrefix(lower, "<html")
}
