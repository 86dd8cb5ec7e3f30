// Package linkextract scans raw HTML bytes for link-bearing attribute
// values without building a DOM tree. It is a single-pass byte scanner,
// not a tree builder: malformed markup is tolerated rather than
// corrected, and the only error case is input that isn't valid UTF-8.
//
// A full tree builder (golang.org/x/net/html's Tokenizer included) is
// deliberately avoided here: it hands back attribute values already
// HTML-entity-decoded, which loses the exact raw byte span a caller
// needs to splice a replacement URL into the source buffer without
// disturbing the bytes around it. Reading the buffer directly sidesteps
// that ambiguity. x/net/html stays in the dependency graph elsewhere,
// for the materializer's optional debug validation pass.
package linkextract

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/fledgehq/fledge/pkg/classify"
)

// Discovery is one URL-bearing attribute value found in the document.
type Discovery struct {
	URL   string // decoded URL, ready to resolve against the page origin
	Tag   string // lowercased element name, e.g. "a", "img"
	Attr  string // attribute name, e.g. "href", "srcset"
	Start int    // byte offset of the value's first byte in the source
	Len   int    // byte length of the value, as written, in the source
}

// HtmlParseError is the only error Extract returns: the input is not
// valid UTF-8. Everything else (unclosed tags, stray angle brackets,
// duplicate attributes) is tolerated and skipped.
type HtmlParseError struct {
	Cause string
}

func (e *HtmlParseError) Error() string { return fmt.Sprintf("html parse error: %s", e.Cause) }

func (e *HtmlParseError) Severity() classify.Severity { return classify.SeverityRecoverable }

var _ classify.ClassifiedError = (*HtmlParseError)(nil)

// linkAttr maps a lowercased element name to the attribute holding its
// primary URL. img and source additionally carry srcset, handled
// separately since it packs several URLs into one value.
var linkAttr = map[string]string{
	"a":      "href",
	"area":   "href",
	"link":   "href",
	"img":    "src",
	"script": "src",
	"iframe": "src",
	"source": "src",
	"audio":  "src",
	"video":  "src",
	"track":  "src",
	"form":   "action",
	"object": "data",
}

var srcsetTags = map[string]bool{"img": true, "source": true}

// rawAttr is an attribute as found on a tag: its name plus the byte
// span of its value in the source buffer, quotes excluded.
type rawAttr struct {
	name     string
	valStart int
	valLen   int
}

func (a rawAttr) value(buf []byte) string {
	return string(buf[a.valStart : a.valStart+a.valLen])
}

// Extract scans body and returns every link-bearing attribute value it
// finds, in document order. Content inside <script>, <style>, and HTML
// comments is never scanned for links.
func Extract(body []byte) ([]Discovery, error) {
	if !utf8.Valid(body) {
		return nil, &HtmlParseError{Cause: "input is not valid UTF-8"}
	}

	var out []Discovery
	pos := 0

	for pos < len(body) {
		lt := indexFrom(body, pos, '<')
		if lt < 0 {
			break
		}
		pos = lt

		switch {
		case hasPrefix(body, pos, "<!--"):
			end := indexStringFrom(body, pos+4, "-->")
			if end < 0 {
				pos = len(body)
			} else {
				pos = end + 3
			}
			continue
		case hasPrefix(body, pos, "<!"), hasPrefix(body, pos, "<?"):
			gt := indexFrom(body, pos, '>')
			if gt < 0 {
				pos = len(body)
			} else {
				pos = gt + 1
			}
			continue
		case hasPrefix(body, pos, "</"):
			gt := indexFrom(body, pos, '>')
			if gt < 0 {
				pos = len(body)
			} else {
				pos = gt + 1
			}
			continue
		}

		nameStart := pos + 1
		if nameStart >= len(body) || !isNameStart(body[nameStart]) {
			pos++
			continue
		}
		nameEnd := nameStart
		for nameEnd < len(body) && isNameByte(body[nameEnd]) {
			nameEnd++
		}
		tag := strings.ToLower(string(body[nameStart:nameEnd]))

		attrs, tagEnd, selfClosing := parseAttrs(body, nameEnd)
		out = append(out, discoveriesFor(body, tag, attrs)...)
		pos = tagEnd

		if !selfClosing && (tag == "script" || tag == "style") {
			closeIdx := findClosingTag(body, pos, tag)
			if closeIdx < 0 {
				pos = len(body)
			} else {
				pos = closeIdx
			}
		}
	}

	return out, nil
}

// parseAttrs reads attributes starting at pos (just past the tag name)
// up to the closing '>' or self-closing "/>". It tolerates boolean
// attributes, unquoted values, and a missing closing angle bracket (in
// which case it stops at end of input).
func parseAttrs(body []byte, pos int) (attrs []rawAttr, tagEnd int, selfClosing bool) {
	for pos < len(body) {
		pos = skipSpace(body, pos)
		if pos >= len(body) {
			return attrs, pos, false
		}
		if body[pos] == '>' {
			return attrs, pos + 1, false
		}
		if body[pos] == '/' && pos+1 < len(body) && body[pos+1] == '>' {
			return attrs, pos + 2, true
		}

		nameStart := pos
		for pos < len(body) && !isSpace(body[pos]) && body[pos] != '=' && body[pos] != '>' && body[pos] != '/' {
			pos++
		}
		if pos == nameStart {
			pos++
			continue
		}
		name := strings.ToLower(string(body[nameStart:pos]))

		afterName := pos
		pos = skipSpace(body, pos)
		if pos >= len(body) || body[pos] != '=' {
			pos = afterName
			continue
		}
		pos++
		pos = skipSpace(body, pos)
		if pos >= len(body) {
			return attrs, pos, false
		}

		var valStart, valEnd int
		if body[pos] == '"' || body[pos] == '\'' {
			quote := body[pos]
			pos++
			valStart = pos
			for pos < len(body) && body[pos] != quote {
				pos++
			}
			valEnd = pos
			if pos < len(body) {
				pos++
			}
		} else {
			valStart = pos
			for pos < len(body) && !isSpace(body[pos]) && body[pos] != '>' {
				pos++
			}
			valEnd = pos
		}

		attrs = append(attrs, rawAttr{name: name, valStart: valStart, valLen: valEnd - valStart})
	}
	return attrs, pos, false
}

func discoveriesFor(body []byte, tag string, attrs []rawAttr) []Discovery {
	if tag == "meta" {
		return metaRefreshDiscovery(body, attrs)
	}

	want, ok := linkAttr[tag]
	if !ok {
		return nil
	}

	var out []Discovery
	for _, a := range attrs {
		if a.name == want {
			out = append(out, Discovery{
				URL:   unescapeEntities(a.value(body)),
				Tag:   tag,
				Attr:  a.name,
				Start: a.valStart,
				Len:   a.valLen,
			})
		}
		if a.name == "srcset" && srcsetTags[tag] {
			out = append(out, srcsetDiscoveries(body, tag, a)...)
		}
	}
	return out
}

// srcsetDiscoveries splits a srcset value on commas and yields one
// Discovery per candidate, keyed to that candidate's URL span only;
// its size descriptor ("2x", "480w"), if present, is left untouched.
func srcsetDiscoveries(body []byte, tag string, a rawAttr) []Discovery {
	var out []Discovery
	value := body[a.valStart : a.valStart+a.valLen]

	start := 0
	for start <= len(value) {
		end := indexFrom(value, start, ',')
		var candidate []byte
		candStart := start
		if end < 0 {
			candidate = value[start:]
			start = len(value) + 1
		} else {
			candidate = value[start:end]
			start = end + 1
		}

		trimmed := strings.TrimLeft(string(candidate), " \t\n\r")
		leadingWS := len(candidate) - len(trimmed)
		urlStart := candStart + leadingWS

		urlLen := 0
		for urlLen < len(trimmed) && !isSpace(trimmed[urlLen]) {
			urlLen++
		}
		if urlLen == 0 {
			continue
		}

		out = append(out, Discovery{
			URL:   unescapeEntities(trimmed[:urlLen]),
			Tag:   tag,
			Attr:  "srcset",
			Start: a.valStart + urlStart,
			Len:   urlLen,
		})
	}
	return out
}

// metaRefreshDiscovery handles <meta http-equiv="refresh" content="N;url=...">.
// Only the URL portion of content is reported; the delay prefix is left
// untouched by callers rewriting the span.
func metaRefreshDiscovery(body []byte, attrs []rawAttr) []Discovery {
	var httpEquiv, content *rawAttr
	for i := range attrs {
		switch attrs[i].name {
		case "http-equiv":
			httpEquiv = &attrs[i]
		case "content":
			content = &attrs[i]
		}
	}
	if httpEquiv == nil || content == nil {
		return nil
	}
	if !strings.EqualFold(httpEquiv.value(body), "refresh") {
		return nil
	}

	value := content.value(body)
	lower := strings.ToLower(value)
	idx := strings.Index(lower, "url=")
	if idx < 0 {
		return nil
	}
	urlStart := idx + len("url=")
	rest := value[urlStart:]
	if len(rest) > 0 && (rest[0] == '"' || rest[0] == '\'') {
		quote := rest[0]
		urlStart++
		rest = rest[1:]
		if end := strings.IndexByte(rest, quote); end >= 0 {
			rest = rest[:end]
		}
	}
	if rest == "" {
		return nil
	}

	return []Discovery{{
		URL:   unescapeEntities(rest),
		Tag:   "meta",
		Attr:  "content",
		Start: content.valStart + urlStart,
		Len:   len(rest),
	}}
}

// findClosingTag returns the byte offset just past the first closing
// tag for name at or after pos, or -1 if none exists.
func findClosingTag(body []byte, pos int, name string) int {
	needle := "</" + name
	for {
		idx := indexStringFoldFrom(body, pos, needle)
		if idx < 0 {
			return -1
		}
		end := idx + len(needle)
		if end < len(body) && isNameByte(body[end]) {
			pos = idx + 1
			continue
		}
		gt := indexFrom(body, end, '>')
		if gt < 0 {
			return len(body)
		}
		return gt + 1
	}
}

func isNameStart(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isNameByte(b byte) bool {
	return isNameStart(b) || (b >= '0' && b <= '9') || b == '-' || b == ':'
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\f'
}

func skipSpace(body []byte, pos int) int {
	for pos < len(body) && isSpace(body[pos]) {
		pos++
	}
	return pos
}

func hasPrefix(body []byte, pos int, prefix string) bool {
	if pos+len(prefix) > len(body) {
		return false
	}
	return string(body[pos:pos+len(prefix)]) == prefix
}

func indexFrom(body []byte, pos int, b byte) int {
	for i := pos; i < len(body); i++ {
		if body[i] == b {
			return i
		}
	}
	return -1
}

func indexStringFrom(body []byte, pos int, s string) int {
	if pos >= len(body) {
		return -1
	}
	idx := strings.Index(string(body[pos:]), s)
	if idx < 0 {
		return -1
	}
	return pos + idx
}

func indexStringFoldFrom(body []byte, pos int, s string) int {
	if pos >= len(body) {
		return -1
	}
	idx := strings.Index(strings.ToLower(string(body[pos:])), strings.ToLower(s))
	if idx < 0 {
		return -1
	}
	return pos + idx
}
