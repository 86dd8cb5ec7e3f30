package urlmatch

import "testing"

func TestMatch(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		pattern  string
		expected bool
	}{
		{
			name:     "single star stops at slash",
			path:     "/admin/a",
			pattern:  "/admin/*",
			expected: true,
		},
		{
			name:     "single star does not cross slash",
			path:     "/admin/a/b",
			pattern:  "/admin/*",
			expected: false,
		},
		{
			name:     "double star crosses slash",
			path:     "/admin/a/b",
			pattern:  "/admin/**",
			expected: true,
		},
		{
			name:     "unprefixed pattern implicitly matches any prefix",
			path:     "/docs/admin/a",
			pattern:  "admin/*",
			expected: true,
		},
		{
			name:     "literal characters match exactly",
			path:     "/favicon.ico",
			pattern:  "/favicon.ico",
			expected: true,
		},
		{
			name:     "query string is part of the match target",
			path:     "/search?q=x",
			pattern:  "/search?*",
			expected: true,
		},
		{
			name:     "no match on unrelated path",
			path:     "/public/b",
			pattern:  "/admin/*",
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Match(tt.path, tt.pattern)
			if got != tt.expected {
				t.Errorf("Match(%q, %q) = %v, want %v", tt.path, tt.pattern, got, tt.expected)
			}
		})
	}
}

func TestMatchAny(t *testing.T) {
	patterns := []string{"/admin/*", "/internal/**"}

	if !MatchAny("/admin/x", patterns) {
		t.Error("expected /admin/x to match")
	}
	if !MatchAny("/internal/a/b", patterns) {
		t.Error("expected /internal/a/b to match")
	}
	if MatchAny("/public/x", patterns) {
		t.Error("expected /public/x not to match")
	}
}
