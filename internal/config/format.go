package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Format expands Python-style replacement fields. "{}" takes the next
// argument, "{n}" the n-th one, and "{{" / "}}" are literal braces.
// Conversion and format specs ("{0!r}", "{:>5}") are accepted and ignored.
func Format(tmpl string, args ...string) (string, error) {
	var sb strings.Builder
	sb.Grow(len(tmpl))
	next := 0

	for i := 0; i < len(tmpl); i++ {
		ch := tmpl[i]
		switch ch {
		case '{':
			if i+1 < len(tmpl) && tmpl[i+1] == '{' {
				sb.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(tmpl[i+1:], '}')
			if end < 0 {
				return "", fmt.Errorf("unclosed '{' at offset %d", i)
			}
			field := tmpl[i+1 : i+1+end]
			if k := strings.IndexAny(field, ":!"); k >= 0 {
				field = field[:k]
			}

			idx := next
			if field == "" {
				next++
			} else {
				n, err := strconv.Atoi(field)
				if err != nil {
					return "", fmt.Errorf("unsupported replacement field %q", field)
				}
				idx = n
			}
			if idx < 0 || idx >= len(args) {
				return "", fmt.Errorf("replacement index %d out of range (%d args)", idx, len(args))
			}
			sb.WriteString(args[idx])
			i += end + 1
		case '}':
			if i+1 < len(tmpl) && tmpl[i+1] == '}' {
				sb.WriteByte('}')
				i++
				continue
			}
			return "", fmt.Errorf("single '}' at offset %d", i)
		default:
			sb.WriteByte(ch)
		}
	}

	return sb.String(), nil
}
