package headerrule

import (
	"fmt"
	"regexp"
	"strings"

	apperrors "github.com/alejandroruanova/rowloader/internal/pkg/errors"
)

// Kind is a header rule resolved from its configured name
type Kind int

const (
	KindRequired Kind = iota
	KindMatch
	KindContain
	KindStartWith
	KindEndWith
)

var kindsByName = map[string]Kind{
	"required":   KindRequired,
	"match":      KindMatch,
	"contain":    KindContain,
	"start_with": KindStartWith,
	"end_with":   KindEndWith,
}

// String returns the configured name of the rule
func (k Kind) String() string {
	for name, kind := range kindsByName {
		if kind == k {
			return name
		}
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind resolves a rule name. Unknown names are configuration faults.
func ParseKind(name, column string) (Kind, error) {
	kind, ok := kindsByName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, apperrors.HeaderRuleUnknown(name, column)
	}
	return kind, nil
}

// Mode controls how pattern rules with zero matching columns are treated
type Mode int

const (
	// Strict fails resolution when a match/contain/start_with/end_with rule
	// claims no column.
	Strict Mode = iota
	// Lenient tolerates pattern rules that claim nothing; the coverage check
	// still applies.
	Lenient
)

// ParseMode resolves a configured mode name; empty means Strict
func ParseMode(name string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "strict":
		return Strict, nil
	case "lenient":
		return Lenient, nil
	default:
		return Strict, apperrors.ConfigInvalid(fmt.Sprintf("unknown header mode %q", name))
	}
}

// Options configures compilation
type Options struct {
	Mode Mode
}

// Entry is one compiled `column:rule,rule` item
type Entry struct {
	Column string
	Kinds  []Kind

	pattern *regexp.Regexp
}

// Resolution is the outcome of resolving a header against an action's rules
type Resolution struct {
	OK bool
	// Err holds the first failing reason when OK is false
	Err string
	// Matched lists the claimed header positions in ascending order
	Matched []int
}

func (e Entry) claims(kind Kind, column string) bool {
	switch kind {
	case KindMatch:
		return e.pattern.MatchString(column)
	case KindContain:
		return strings.Contains(column, e.Column)
	case KindStartWith:
		return strings.HasPrefix(column, e.Column)
	case KindEndWith:
		return strings.HasSuffix(column, e.Column)
	default:
		return column == e.Column
	}
}

func (e Entry) noMatchMessage(kind Kind) string {
	switch kind {
	case KindMatch:
		return fmt.Sprintf("%s does not match any header column", e.Column)
	case KindContain:
		return fmt.Sprintf("No header contains %s", e.Column)
	case KindStartWith:
		return fmt.Sprintf("No header starts with %s", e.Column)
	case KindEndWith:
		return fmt.Sprintf("No header ends with %s", e.Column)
	default:
		return fmt.Sprintf("%s header is required", e.Column)
	}
}
