// Package materialize maps crawled responses onto the output filesystem
// tree: it decides each response's destination path, rewrites base-path
// links in HTML using the link extractor's byte spans, and copies the
// assets directory verbatim before the crawl begins. All writes go
// through pkg/fsatomic so a reader never observes a half-written file.
package materialize

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/fledgehq/fledge/internal/linkextract"
	"github.com/fledgehq/fledge/internal/urlnorm"
	"github.com/fledgehq/fledge/pkg/classify"
	"github.com/fledgehq/fledge/pkg/fsatomic"
	"github.com/fledgehq/fledge/pkg/hashutil"
)

// OutputCollisionError reports two distinct canonical URLs mapping to
// the same filesystem path. It is fatal to the build, not local to the
// URL that triggered it.
type OutputCollisionError struct {
	Path        string
	ExistingURL string
	NewURL      string
}

func (e *OutputCollisionError) Error() string {
	return fmt.Sprintf("output collision at %q: %q and %q both map here", e.Path, e.ExistingURL, e.NewURL)
}

func (e *OutputCollisionError) Severity() classify.Severity { return classify.SeverityFatal }

var _ classify.ClassifiedError = (*OutputCollisionError)(nil)

// WriteError wraps an underlying filesystem failure while persisting a
// materialized file or asset.
type WriteError struct {
	Path      string
	Retryable bool
	Cause     error
}

func (e *WriteError) Error() string { return fmt.Sprintf("write %q: %v", e.Path, e.Cause) }

func (e *WriteError) Unwrap() error { return e.Cause }

func (e *WriteError) Severity() classify.Severity {
	if e.Retryable {
		return classify.SeverityRecoverable
	}
	return classify.SeverityFatal
}

var _ classify.ClassifiedError = (*WriteError)(nil)

// entryKind distinguishes an asset-copy write from a crawled-page write,
// so a crawled response landing on an asset's path is an overwrite, not
// a collision.
type entryKind int

const (
	entryAsset entryKind = iota
	entryPage
)

type writtenEntry struct {
	kind      entryKind
	sourceURL string // canonical URL string, empty for assets
	hash      string
}

// Materializer owns the output tree for one build.
type Materializer struct {
	outputDir string
	basePath  string
	origin    *url.URL
	written   map[string]writtenEntry // relative output path -> entry
	folded    map[string]string       // lowercased path -> exact path first written
	caseFold  *bool                   // probed lazily: does outputDir fold case?
	debugWarn func(error)
}

// New constructs a Materializer. basePath is the site's mount path
// ("/" for root-mounted sites); origin is the crawl's base URL, used to
// decide which discovered links are same-origin and therefore eligible
// for base-path rewriting. origin may be nil at construction time: the
// Coordinator copies assets (and so needs a Materializer) before the
// Supervisor resolves the origin; SetOrigin fills it in once known.
func New(outputDir, basePath string, origin *url.URL) *Materializer {
	return &Materializer{
		outputDir: outputDir,
		basePath:  basePath,
		origin:    origin,
		written:   make(map[string]writtenEntry),
		folded:    make(map[string]string),
	}
}

// SetOrigin fills in the crawl origin once the Supervisor has resolved
// it. It must be called before the first MaterializePage if New was
// given a nil origin.
func (m *Materializer) SetOrigin(origin *url.URL) {
	m.origin = origin
}

// EnableDebugValidate arms the optional --verbose sanity pass: every
// materialized HTML body is re-parsed by DebugValidateHTML, and warn is
// called with the result on failure.
func (m *Materializer) EnableDebugValidate(warn func(error)) *Materializer {
	m.debugWarn = warn
	return m
}

// CopyAssets copies assetsDir verbatim into the output tree, ahead of
// the crawl. It is a no-op if assetsDir is empty.
func (m *Materializer) CopyAssets(assetsDir string) error {
	if assetsDir == "" {
		return nil
	}
	return filepath.Walk(assetsDir, func(srcPath string, info os.FileInfo, err error) error {
		if err != nil {
			return &WriteError{Path: srcPath, Retryable: false, Cause: err}
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(assetsDir, srcPath)
		if err != nil {
			return &WriteError{Path: srcPath, Retryable: false, Cause: err}
		}
		rel = filepath.ToSlash(rel)

		data, err := os.ReadFile(srcPath)
		if err != nil {
			return &WriteError{Path: srcPath, Retryable: false, Cause: err}
		}

		dest := filepath.Join(m.outputDir, filepath.FromSlash(rel))
		if err := fsatomic.WriteFile(dest, data, 0644); err != nil {
			return &WriteError{Path: dest, Retryable: true, Cause: err}
		}

		m.written[rel] = writtenEntry{kind: entryAsset, hash: hashutil.HashBytes(data)}
		m.folded[strings.ToLower(rel)] = rel
		return nil
	})
}

// Result describes one materialized response.
type Result struct {
	OutputPath     string // path relative to outputDir
	AssetOverwrote bool   // a previously-copied asset was replaced
}

// MaterializePage decides canonical's destination path, optionally
// rewrites same-origin link spans for HTML content, and writes the
// body. It returns *OutputCollisionError if path already holds a
// different canonical URL's content.
func (m *Materializer) MaterializePage(canonical *url.URL, body []byte, discoveries []linkextract.Discovery, isHTML bool) (Result, error) {
	relPath := sitePathToFilePath(urlnorm.ToSitePath(canonical))
	key := filepath.ToSlash(relPath)

	out := body
	if isHTML && m.basePath != "" && m.basePath != "/" {
		out = rewriteBasePath(body, discoveries, m.basePath, canonical, m.origin)
	}

	if isHTML && m.debugWarn != nil {
		if err := DebugValidateHTML(out); err != nil {
			m.debugWarn(err)
		}
	}

	hash := hashutil.HashBytes(out)

	// On a case-folding filesystem, paths differing only by case land
	// on the same file: resolve the lookup through the folded index so
	// the collision/overwrite checks see the path that actually holds
	// the bytes.
	lookupKey := key
	if _, ok := m.written[key]; !ok && m.caseInsensitiveFS() {
		if prior, ok := m.folded[strings.ToLower(key)]; ok {
			lookupKey = prior
		}
	}

	if existing, ok := m.written[lookupKey]; ok {
		switch existing.kind {
		case entryPage:
			if existing.sourceURL != canonical.String() {
				return Result{}, &OutputCollisionError{
					Path:        key,
					ExistingURL: existing.sourceURL,
					NewURL:      canonical.String(),
				}
			}
			if existing.hash == hash {
				return Result{OutputPath: key}, nil
			}
		case entryAsset:
			dest := filepath.Join(m.outputDir, filepath.FromSlash(key))
			if err := fsatomic.WriteFile(dest, out, 0644); err != nil {
				return Result{}, &WriteError{Path: dest, Retryable: true, Cause: err}
			}
			if lookupKey != key {
				delete(m.written, lookupKey)
			}
			m.written[key] = writtenEntry{kind: entryPage, sourceURL: canonical.String(), hash: hash}
			m.folded[strings.ToLower(key)] = key
			return Result{OutputPath: key, AssetOverwrote: true}, nil
		}
	}

	dest := filepath.Join(m.outputDir, filepath.FromSlash(key))
	if err := fsatomic.WriteFile(dest, out, 0644); err != nil {
		return Result{}, &WriteError{Path: dest, Retryable: true, Cause: err}
	}
	m.written[key] = writtenEntry{kind: entryPage, sourceURL: canonical.String(), hash: hash}
	m.folded[strings.ToLower(key)] = key
	return Result{OutputPath: key}, nil
}

// caseInsensitiveFS probes outputDir once: write a marker file, stat it
// back under a different case. Windows and default-configured macOS
// volumes fold; Linux generally does not.
func (m *Materializer) caseInsensitiveFS() bool {
	if m.caseFold != nil {
		return *m.caseFold
	}
	folds := probeCaseFold(m.outputDir)
	m.caseFold = &folds
	return folds
}

func probeCaseFold(dir string) bool {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false
	}
	probe := filepath.Join(dir, ".fledge-caseprobe")
	if err := os.WriteFile(probe, nil, 0o644); err != nil {
		return false
	}
	defer os.Remove(probe)
	_, err := os.Stat(filepath.Join(dir, ".FLEDGE-CASEPROBE"))
	return err == nil
}

// sitePathToFilePath maps a URL site-path (path plus "?query") onto a
// relative filesystem path: a path ending in "/" or whose final
// segment carries no dot gets "index.html" appended; the query, if
// present, is discarded entirely.
func sitePathToFilePath(sitePath string) string {
	p := sitePath
	if idx := strings.IndexByte(p, '?'); idx >= 0 {
		p = p[:idx]
	}
	if p == "" {
		p = "/"
	}

	if strings.HasSuffix(p, "/") {
		return strings.TrimPrefix(p+"index.html", "/")
	}
	last := path.Base(p)
	if !strings.Contains(last, ".") {
		return strings.TrimPrefix(path.Join(p, "index.html"), "/")
	}
	return strings.TrimPrefix(p, "/")
}

// rewriteBasePath splices basePath-prefixed site paths into body at each
// same-origin discovery span, preserving every other byte (and every
// cross-origin span) untouched. Relative discovery URLs resolve against
// pageURL (the page the link was found on), same-origin status against
// siteOrigin (the crawl's base URL).
func rewriteBasePath(body []byte, discoveries []linkextract.Discovery, basePath string, pageURL, siteOrigin *url.URL) []byte {
	if len(discoveries) == 0 {
		return body
	}

	var b strings.Builder
	b.Grow(len(body))
	cursor := 0

	for _, d := range discoveries {
		if d.Start < cursor || d.Start+d.Len > len(body) {
			continue
		}
		resolved, err := urlnorm.Canonicalize(d.URL, pageURL)
		if err != nil || !urlnorm.IsSameOrigin(resolved, siteOrigin) {
			continue
		}

		b.Write(body[cursor:d.Start])
		b.WriteString(strings.TrimSuffix(basePath, "/"))
		sitePath := urlnorm.ToSitePath(resolved)
		if !strings.HasPrefix(sitePath, "/") {
			b.WriteByte('/')
		}
		b.WriteString(sitePath)
		cursor = d.Start + d.Len
	}
	b.Write(body[cursor:])

	return []byte(b.String())
}
