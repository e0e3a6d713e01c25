package logging

import (
	"fmt"
	"sort"
	"strings"
)

// Sanitize removes newlines and other control characters from user-provided
// strings so they cannot forge additional log lines.
func Sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n', r == '\r', r == '\t':
			return ' '
		case r < 32:
			return -1
		default:
			return r
		}
	}, s)
}

// Truncate shortens s to at most n runes, appending "..." when cut. Used for
// free-form remote strings (banners, error text) before they reach logs.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

// FormatContext renders a context bag as sorted key=value pairs. Values are
// sanitized; values containing spaces are quoted. Deterministic output keeps
// log lines grep-able and tests stable.
func FormatContext(ctx map[string]any) string {
	if len(ctx) == 0 {
		return ""
	}
	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(' ')
		}
		v := Sanitize(fmt.Sprint(ctx[k]))
		if strings.Contains(v, " ") {
			v = fmt.Sprintf("%q", v)
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(v)
	}
	return b.String()
}
