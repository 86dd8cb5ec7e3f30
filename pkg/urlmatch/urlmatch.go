// Package urlmatch implements the glob dialect used by discover.ignore
// patterns: "*" matches a run of non-"/" characters, "**" matches a run
// including "/", and every other character matches literally. A pattern
// that does not start with "/" is implicitly prefixed with "**/".
package urlmatch

import (
	"regexp"
	"strings"
	"sync"
)

var (
	compileCacheMu sync.Mutex
	compileCache   = map[string]*regexp.Regexp{}
)

// Match reports whether pathQuery (a site-absolute "path" or "path?query")
// matches the given glob pattern.
func Match(pathQuery string, pattern string) bool {
	if pattern == "" {
		return false
	}
	if !strings.HasPrefix(pattern, "/") {
		pattern = "**/" + pattern
	}
	re := compile(pattern)
	return re.MatchString(pathQuery)
}

// MatchAny reports whether pathQuery matches any of the given patterns.
func MatchAny(pathQuery string, patterns []string) bool {
	for _, p := range patterns {
		if Match(pathQuery, p) {
			return true
		}
	}
	return false
}

func compile(pattern string) *regexp.Regexp {
	compileCacheMu.Lock()
	defer compileCacheMu.Unlock()

	if re, ok := compileCache[pattern]; ok {
		return re
	}

	re := regexp.MustCompile("^" + translate(pattern) + "$")
	compileCache[pattern] = re
	return re
}

// translate converts the glob pattern into an anchored regexp body.
func translate(pattern string) string {
	var b strings.Builder
	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '*':
			if i+1 < len(runes) && runes[i+1] == '*' {
				b.WriteString(".*")
				i++
			} else {
				b.WriteString("[^/]*")
			}
		default:
			b.WriteString(regexp.QuoteMeta(string(runes[i])))
		}
	}
	return b.String()
}
