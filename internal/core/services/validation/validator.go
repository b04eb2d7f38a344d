package validation

// validator.go checks mapped row values against per-field rule strings such
// as "required|numeric|min:0". Rules are parsed once per distinct rule string
// and cached; empty optional values skip every rule but required.

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	apperrors "github.com/alejandroruanova/rowloader/internal/pkg/errors"
)

type ruleKind int

const (
	ruleRequired ruleKind = iota
	ruleFilled
	ruleString
	ruleNumeric
	ruleInteger
	ruleBoolean
	ruleDate
	ruleMin
	ruleMax
	ruleIn
	ruleRegex
)

var ruleKinds = map[string]ruleKind{
	"required": ruleRequired,
	"filled":   ruleFilled,
	"string":   ruleString,
	"numeric":  ruleNumeric,
	"integer":  ruleInteger,
	"boolean":  ruleBoolean,
	"date":     ruleDate,
	"min":      ruleMin,
	"max":      ruleMax,
	"in":       ruleIn,
	"regex":    ruleRegex,
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"01/02/2006",
	"02.01.2006",
}

type rule struct {
	kind    ruleKind
	limit   float64
	options []string
	pattern *regexp.Regexp
}

// fieldRules is the parsed form of one rule string
type fieldRules struct {
	rules   []rule
	numeric bool
}

func (f fieldRules) has(kind ruleKind) bool {
	for _, r := range f.rules {
		if r.kind == kind {
			return true
		}
	}
	return false
}

// RuleValidator validates row data against rule strings
type RuleValidator struct {
	mu    sync.Mutex
	cache map[string]fieldRules
}

// NewRuleValidator creates a new rule validator
func NewRuleValidator() *RuleValidator {
	return &RuleValidator{
		cache: make(map[string]fieldRules),
	}
}

// Check parses every rule string so unknown rules fail at configuration time
func (v *RuleValidator) Check(rules map[string]string) error {
	for field, ruleString := range rules {
		if _, err := v.parse(ruleString); err != nil {
			return apperrors.ConfigInvalidWrap(err, fmt.Sprintf("invalid validation rules for %s", field))
		}
	}
	return nil
}

// Validate returns one message per failing rule, ordered by field name.
// The method is accepted for interface compatibility; rule selection per
// method happens in the caller.
func (v *RuleValidator) Validate(ctx context.Context, method string, data map[string]string, rules map[string]string) ([]string, error) {
	fields := make([]string, 0, len(rules))
	for field := range rules {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var messages []string
	for _, field := range fields {
		if err := ctx.Err(); err != nil {
			return messages, err
		}

		parsed, err := v.parse(rules[field])
		if err != nil {
			return nil, apperrors.ConfigInvalidWrap(err, fmt.Sprintf("invalid validation rules for %s", field))
		}

		value, present := data[field]
		messages = append(messages, parsed.check(field, value, present)...)
	}

	return messages, nil
}

func (v *RuleValidator) parse(ruleString string) (fieldRules, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if parsed, ok := v.cache[ruleString]; ok {
		return parsed, nil
	}

	var parsed fieldRules
	for _, item := range splitRules(ruleString) {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}

		name, arg, _ := strings.Cut(item, ":")
		kind, ok := ruleKinds[strings.ToLower(name)]
		if !ok {
			return fieldRules{}, fmt.Errorf("unknown validation rule %q", name)
		}

		r := rule{kind: kind}
		switch kind {
		case ruleMin, ruleMax:
			limit, err := strconv.ParseFloat(arg, 64)
			if err != nil {
				return fieldRules{}, fmt.Errorf("rule %s needs a numeric argument: %w", name, err)
			}
			r.limit = limit
		case ruleIn:
			r.options = strings.Split(arg, ",")
		case ruleRegex:
			pattern, err := compileRegex(arg)
			if err != nil {
				return fieldRules{}, err
			}
			r.pattern = pattern
		case ruleNumeric, ruleInteger:
			parsed.numeric = true
		}
		parsed.rules = append(parsed.rules, r)
	}

	v.cache[ruleString] = parsed
	return parsed, nil
}

func (f fieldRules) check(field, value string, present bool) []string {
	var messages []string

	if value == "" {
		switch {
		case f.has(ruleRequired):
			return []string{fmt.Sprintf("The %s field is required.", field)}
		case present && f.has(ruleFilled):
			return []string{fmt.Sprintf("The %s field must have a value.", field)}
		default:
			return nil
		}
	}

	for _, r := range f.rules {
		switch r.kind {
		case ruleNumeric:
			if _, err := strconv.ParseFloat(value, 64); err != nil {
				messages = append(messages, fmt.Sprintf("The %s field must be a number.", field))
			}
		case ruleInteger:
			if _, err := strconv.ParseInt(value, 10, 64); err != nil {
				messages = append(messages, fmt.Sprintf("The %s field must be an integer.", field))
			}
		case ruleBoolean:
			switch strings.ToLower(value) {
			case "1", "0", "true", "false", "yes", "no":
			default:
				messages = append(messages, fmt.Sprintf("The %s field must be true or false.", field))
			}
		case ruleDate:
			if !isDate(value) {
				messages = append(messages, fmt.Sprintf("The %s field must be a valid date.", field))
			}
		case ruleMin, ruleMax:
			if msg := f.checkSize(r, field, value); msg != "" {
				messages = append(messages, msg)
			}
		case ruleIn:
			if !contains(r.options, value) {
				messages = append(messages, fmt.Sprintf("The selected %s is invalid.", field))
			}
		case ruleRegex:
			if !r.pattern.MatchString(value) {
				messages = append(messages, fmt.Sprintf("The %s field format is invalid.", field))
			}
		}
	}

	return messages
}

// checkSize compares numbers for numeric fields and character counts otherwise
func (f fieldRules) checkSize(r rule, field, value string) string {
	limit := strconv.FormatFloat(r.limit, 'f', -1, 64)

	if f.numeric {
		n, err := strconv.ParseFloat(value, 64)
		if err != nil {
			// reported by the numeric rule
			return ""
		}
		if r.kind == ruleMin && n < r.limit {
			return fmt.Sprintf("The %s field must be at least %s.", field, limit)
		}
		if r.kind == ruleMax && n > r.limit {
			return fmt.Sprintf("The %s field must not be greater than %s.", field, limit)
		}
		return ""
	}

	length := float64(utf8.RuneCountInString(value))
	if r.kind == ruleMin && length < r.limit {
		return fmt.Sprintf("The %s field must be at least %s characters.", field, limit)
	}
	if r.kind == ruleMax && length > r.limit {
		return fmt.Sprintf("The %s field must not be greater than %s characters.", field, limit)
	}
	return ""
}

func isDate(value string) bool {
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, value); err == nil {
			return true
		}
	}
	return false
}

func contains(options []string, value string) bool {
	for _, option := range options {
		if strings.TrimSpace(option) == value {
			return true
		}
	}
	return false
}

// compileRegex accepts /pattern/flags or a bare expression
func compileRegex(arg string) (*regexp.Regexp, error) {
	expr := arg
	if len(arg) > 1 && arg[0] == '/' {
		if end := strings.LastIndexByte(arg, '/'); end > 0 {
			expr = arg[1:end]
			if flags := strings.Trim(arg[end+1:], "u"); flags != "" {
				expr = "(?" + flags + ")" + expr
			}
		}
	}
	pattern, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid regex rule %s: %w", arg, err)
	}
	return pattern, nil
}

// splitRules splits on unescaped pipes so regex rules may contain \|
func splitRules(s string) []string {
	var parts []string
	var current strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) && s[i+1] == '|' {
			current.WriteByte('|')
			i++
			continue
		}
		if s[i] == '|' {
			parts = append(parts, current.String())
			current.Reset()
			continue
		}
		current.WriteByte(s[i])
	}
	return append(parts, current.String())
}
