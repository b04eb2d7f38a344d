package headerrule

import (
	"fmt"
	"sort"
	"strings"
)

// ActionNotFound is reported when the rule specification has no entry for the action
const ActionNotFound = "Action is not found"

// RuleSet holds the compiled header rules of every action of a sheet
type RuleSet struct {
	actions map[string][]Entry
	mode    Mode
}

// Compile resolves every rule name once. Unknown rule names and invalid
// patterns are configuration faults.
func Compile(spec map[string]string, opts Options) (*RuleSet, error) {
	rs := &RuleSet{
		actions: make(map[string][]Entry, len(spec)),
		mode:    opts.Mode,
	}

	for action, ruleString := range spec {
		entries, err := compileEntries(ruleString)
		if err != nil {
			return nil, err
		}
		rs.actions[strings.ToLower(action)] = entries
	}

	return rs, nil
}

// Actions returns the declared action names, sorted
func (rs *RuleSet) Actions() []string {
	actions := make([]string, 0, len(rs.actions))
	for action := range rs.actions {
		actions = append(actions, action)
	}
	sort.Strings(actions)
	return actions
}

// Has reports whether the action is declared
func (rs *RuleSet) Has(action string) bool {
	_, ok := rs.actions[strings.ToLower(action)]
	return ok
}

// Entries returns the compiled entries of an action
func (rs *RuleSet) Entries(action string) []Entry {
	return rs.actions[strings.ToLower(action)]
}

// Resolve checks a header against the action's rules. Entries are applied
// left to right; required rules fail immediately, and every header column
// must be claimed by some entry once all entries ran.
func (rs *RuleSet) Resolve(header []string, action string) Resolution {
	entries, ok := rs.actions[strings.ToLower(action)]
	if !ok {
		return Resolution{Err: ActionNotFound}
	}

	claimed := make([]bool, len(header))
	if len(entries) == 0 {
		// an empty rule string accepts any header
		for i := range claimed {
			claimed[i] = true
		}
		return Resolution{OK: true, Matched: positions(claimed)}
	}

	for _, entry := range entries {
		if len(entry.Kinds) == 0 {
			if idx := indexOf(header, entry.Column); idx >= 0 {
				claimed[idx] = true
			}
			continue
		}

		for _, kind := range entry.Kinds {
			if kind == KindRequired {
				idx := indexOf(header, entry.Column)
				if idx < 0 {
					return Resolution{Err: entry.noMatchMessage(kind), Matched: positions(claimed)}
				}
				claimed[idx] = true
				continue
			}

			found := 0
			for i, column := range header {
				if entry.claims(kind, column) {
					claimed[i] = true
					found++
				}
			}
			if found == 0 && rs.mode == Strict {
				return Resolution{Err: entry.noMatchMessage(kind), Matched: positions(claimed)}
			}
		}
	}

	var uncovered []string
	for i, ok := range claimed {
		if !ok {
			uncovered = append(uncovered, header[i])
		}
	}
	if len(uncovered) > 0 {
		return Resolution{
			Err:     fmt.Sprintf("header columns not covered by any rule: %s", strings.Join(uncovered, ", ")),
			Matched: positions(claimed),
		}
	}

	return Resolution{OK: true, Matched: positions(claimed)}
}

func indexOf(header []string, column string) int {
	for i, h := range header {
		if h == column {
			return i
		}
	}
	return -1
}

func positions(claimed []bool) []int {
	out := make([]int, 0, len(claimed))
	for i, ok := range claimed {
		if ok {
			out = append(out, i)
		}
	}
	return out
}
