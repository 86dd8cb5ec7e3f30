package linkextract

import (
	"strconv"
	"strings"
)

// namedEntities covers the handful of entities that actually show up
// inside URL attribute values in the wild. It is not a full HTML named
// character reference table on purpose.
var namedEntities = map[string]string{
	"amp":  "&",
	"lt":   "<",
	"gt":   ">",
	"quot": "\"",
	"apos": "'",
}

// unescapeEntities decodes named and numeric character references in s.
// Spans reported on Discovery stay byte-exact against the source; this
// only affects the URL field used to resolve and dedup the link.
func unescapeEntities(s string) string {
	if !strings.Contains(s, "&") {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '&' {
			b.WriteByte(s[i])
			continue
		}
		semi := strings.IndexByte(s[i:], ';')
		if semi < 0 || semi > 10 {
			b.WriteByte(s[i])
			continue
		}
		entity := s[i+1 : i+semi]
		if decoded, ok := decodeEntity(entity); ok {
			b.WriteString(decoded)
			i += semi
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func decodeEntity(entity string) (string, bool) {
	if v, ok := namedEntities[entity]; ok {
		return v, true
	}
	if strings.HasPrefix(entity, "#x") || strings.HasPrefix(entity, "#X") {
		if n, err := strconv.ParseInt(entity[2:], 16, 32); err == nil {
			return string(rune(n)), true
		}
		return "", false
	}
	if strings.HasPrefix(entity, "#") {
		if n, err := strconv.ParseInt(entity[1:], 10, 32); err == nil {
			return string(rune(n)), true
		}
	}
	return "", false
}
