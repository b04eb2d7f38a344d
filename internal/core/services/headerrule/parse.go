package headerrule

import (
	"fmt"
	"regexp"
	"strings"

	apperrors "github.com/alejandroruanova/rowloader/internal/pkg/errors"
)

// splitUnescaped splits s on sep wherever sep is not preceded by a
// backslash. Escaped separators lose their backslash; every other escape
// sequence is kept so regular expressions survive.
func splitUnescaped(s string, sep byte) []string {
	var parts []string
	var current strings.Builder

	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' && i+1 < len(s) {
			if s[i+1] == sep {
				current.WriteByte(sep)
			} else {
				current.WriteByte(c)
				current.WriteByte(s[i+1])
			}
			i++
			continue
		}
		if c == sep {
			parts = append(parts, current.String())
			current.Reset()
			continue
		}
		current.WriteByte(c)
	}

	return append(parts, current.String())
}

// splitFirstUnescaped splits s at the first unescaped sep
func splitFirstUnescaped(s string, sep byte) (string, string, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' {
			i++
			continue
		}
		if s[i] == sep {
			return s[:i], s[i+1:], true
		}
	}
	return s, "", false
}

// unescape removes the backslash in front of the given characters
func unescape(s string, chars string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var out strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) && strings.IndexByte(chars, s[i+1]) >= 0 {
			out.WriteByte(s[i+1])
			i++
			continue
		}
		out.WriteByte(s[i])
	}
	return out.String()
}

// compileEntries turns one action's rule string into entries
func compileEntries(ruleString string) ([]Entry, error) {
	var entries []Entry

	for _, item := range splitUnescaped(ruleString, '|') {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}

		rawColumn, rawRules, hasRules := splitFirstUnescaped(item, ':')
		entry := Entry{Column: strings.TrimSpace(unescape(rawColumn, ":,"))}
		if entry.Column == "" {
			return nil, apperrors.ConfigInvalid(fmt.Sprintf("header rule %q has no column", item))
		}

		if hasRules {
			for _, name := range splitUnescaped(rawRules, ',') {
				if strings.TrimSpace(name) == "" {
					continue
				}
				kind, err := ParseKind(name, entry.Column)
				if err != nil {
					return nil, err
				}
				entry.Kinds = append(entry.Kinds, kind)
			}
		}

		for _, kind := range entry.Kinds {
			if kind == KindMatch && entry.pattern == nil {
				pattern, err := compilePattern(entry.Column)
				if err != nil {
					return nil, err
				}
				entry.pattern = pattern
			}
		}

		entries = append(entries, entry)
	}

	return entries, nil
}

// compilePattern accepts a bare expression or a /pattern/flags literal
func compilePattern(raw string) (*regexp.Regexp, error) {
	expr := raw
	if len(raw) > 1 && raw[0] == '/' {
		if end := strings.LastIndexByte(raw, '/'); end > 0 {
			expr = raw[1:end]
			var flags strings.Builder
			for _, flag := range raw[end+1:] {
				switch flag {
				case 'i', 'm', 's', 'U':
					flags.WriteRune(flag)
				case 'u':
					// patterns are always UTF-8
				default:
					return nil, apperrors.ConfigInvalid(fmt.Sprintf("unsupported regex flag %q in %s", flag, raw))
				}
			}
			if flags.Len() > 0 {
				expr = "(?" + flags.String() + ")" + expr
			}
		}
	}

	pattern, err := regexp.Compile(expr)
	if err != nil {
		return nil, apperrors.ConfigInvalidWrap(err, fmt.Sprintf("invalid header pattern %s", raw))
	}
	return pattern, nil
}

// ParseSpec parses the serialized form action:'rules'|action:'rules'.
// Quotes inside a rule string are escaped with a backslash.
func ParseSpec(serialized string) (map[string]string, error) {
	spec := make(map[string]string)
	s := strings.TrimSpace(serialized)

	for len(s) > 0 {
		colon := strings.IndexByte(s, ':')
		if colon <= 0 {
			return nil, apperrors.ConfigInvalid(fmt.Sprintf("malformed rule specification near %q", s))
		}
		action := strings.ToLower(strings.TrimSpace(s[:colon]))
		s = strings.TrimLeft(s[colon+1:], " ")

		if len(s) == 0 || s[0] != '\'' {
			return nil, apperrors.ConfigInvalid(fmt.Sprintf("rule string for action %s must be quoted", action))
		}

		var rules strings.Builder
		closed := false
		i := 1
		for ; i < len(s); i++ {
			if s[i] == '\\' && i+1 < len(s) && s[i+1] == '\'' {
				rules.WriteByte('\'')
				i++
				continue
			}
			if s[i] == '\'' {
				closed = true
				break
			}
			rules.WriteByte(s[i])
		}
		if !closed {
			return nil, apperrors.ConfigInvalid(fmt.Sprintf("unterminated rule string for action %s", action))
		}

		spec[action] = rules.String()
		s = strings.TrimSpace(s[i+1:])
		if len(s) == 0 {
			break
		}
		if s[0] != '|' {
			return nil, apperrors.ConfigInvalid(fmt.Sprintf("expected | after action %s", action))
		}
		s = strings.TrimSpace(s[1:])
	}

	return spec, nil
}
