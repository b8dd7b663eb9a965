package xmlnode

import "strings"

// SubstituteVars replaces ${name} references in s with values from vars.
// A reference may carry a fallback as ${name:default}, used when the name
// is not present. A reference with no fallback and no value is left
// untouched, so build-time substitution can run before every variable is
// known. There is no escape syntax; a bare "${" without a closing brace is
// emitted verbatim.
func SubstituteVars(s string, vars map[string]string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s))
	for {
		start := strings.Index(s, "${")
		if start < 0 {
			sb.WriteString(s)
			break
		}
		end := strings.Index(s[start:], "}")
		if end < 0 {
			sb.WriteString(s)
			break
		}
		end += start
		sb.WriteString(s[:start])
		name := strings.TrimSpace(s[start+2 : end])
		def := ""
		hasDefault := false
		// Only a plain property name takes a fallback; anything else may be
		// a runtime expression that happens to contain a colon.
		if i := strings.IndexByte(name, ':'); i >= 0 && isPropertyName(strings.TrimSpace(name[:i])) {
			name, def = strings.TrimSpace(name[:i]), name[i+1:]
			hasDefault = true
		}
		if v, ok := vars[name]; ok {
			sb.WriteString(v)
		} else if hasDefault {
			sb.WriteString(def)
		} else {
			sb.WriteString(s[start : end+1])
		}
		s = s[end+1:]
	}
	return sb.String()
}

func isPropertyName(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '.':
		default:
			return false
		}
	}
	return true
}
