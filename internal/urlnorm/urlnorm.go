// Package urlnorm canonicalizes and classifies URLs. Canonicalization is
// the crawl engine's dedup key: two targets sharing a canonical URL are
// the same work item.
package urlnorm

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/fledgehq/fledge/pkg/classify"
	"github.com/fledgehq/fledge/pkg/urlmatch"
)

// InvalidURLError reports a URL that cannot be canonicalized: an
// unparseable string, or a non-http(s) scheme.
type InvalidURLError struct {
	Raw   string
	Cause string
}

func (e *InvalidURLError) Error() string {
	return fmt.Sprintf("invalid url %q: %s", e.Raw, e.Cause)
}

func (e *InvalidURLError) Severity() classify.Severity { return classify.SeverityRecoverable }

var _ classify.ClassifiedError = (*InvalidURLError)(nil)

// Canonicalize resolves raw against origin (if relative), lowercases
// scheme and host, strips default ports, drops the fragment, collapses
// duplicate path slashes, and resolves "." / ".." segments without
// escaping above root. The query string is preserved; it is part of
// URL identity.
func Canonicalize(raw string, origin *url.URL) (*url.URL, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, &InvalidURLError{Raw: raw, Cause: err.Error()}
	}

	resolved := parsed
	if origin != nil && !parsed.IsAbs() {
		resolved = origin.ResolveReference(parsed)
	}

	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return nil, &InvalidURLError{Raw: raw, Cause: "scheme must be http or https"}
	}

	canonical := *resolved
	canonical.Scheme = strings.ToLower(canonical.Scheme)
	canonical.Host = strings.ToLower(canonical.Host)
	canonical.Fragment = ""
	canonical.RawFragment = ""

	if host, port := canonical.Hostname(), canonical.Port(); port != "" {
		if (canonical.Scheme == "http" && port == "80") ||
			(canonical.Scheme == "https" && port == "443") {
			canonical.Host = host
		}
	}

	canonical.Path = cleanPath(canonical.Path)

	return &canonical, nil
}

// cleanPath collapses duplicate slashes and resolves "."/".." segments,
// never escaping above the root. path.Clean already refuses to climb
// above "/"; we only need to restore the trailing slash path.Clean eats.
func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	trailingSlash := len(p) > 1 && strings.HasSuffix(p, "/")
	cleaned := path.Clean(p)
	if cleaned == "." {
		cleaned = "/"
	}
	if trailingSlash && !strings.HasSuffix(cleaned, "/") {
		cleaned += "/"
	}
	return cleaned
}

// IsSameOrigin reports whether candidate shares scheme, host, and port
// with origin, after canonicalization of both.
func IsSameOrigin(candidate *url.URL, origin *url.URL) bool {
	c, err := Canonicalize(candidate.String(), nil)
	if err != nil {
		return false
	}
	o, err := Canonicalize(origin.String(), nil)
	if err != nil {
		return false
	}
	return c.Scheme == o.Scheme && c.Host == o.Host
}

// MatchesIgnore evaluates pathQuery ("path" or "path?query") against the
// discover.ignore glob patterns.
func MatchesIgnore(pathQuery string, patterns []string) bool {
	return urlmatch.MatchAny(pathQuery, patterns)
}

// ToSitePath returns canonical's path (and "?query" if present) relative
// to its origin: the form used for ignore matching, output path
// mapping, and record display.
func ToSitePath(canonical *url.URL) string {
	if canonical.RawQuery == "" {
		return canonical.Path
	}
	return canonical.Path + "?" + canonical.RawQuery
}

// Key returns the deduplication key for canonical: the full string form
// (query included, fragment already stripped by Canonicalize).
func Key(canonical *url.URL) string {
	return canonical.String()
}
