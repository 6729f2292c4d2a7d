package permission

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Rule is one configured permission policy entry. Patterns take the
// form "Action(glob)", where the glob is matched against the query's
// target, or a bare "Action", which matches every target for that
// action. The action part may be "*". The first matching rule wins.
type Rule struct {
	Pattern string
	Outcome Outcome
}

// MatchRules returns the first rule matching action and target, or nil
// when no rule applies.
func MatchRules(rules []Rule, action, target string) *Rule {
	for i := range rules {
		if RuleMatches(rules[i].Pattern, action, target) {
			return &rules[i]
		}
	}
	return nil
}

// RuleMatches checks a single pattern against an action/target pair.
// Invalid globs never match; they are rejected up front by config
// validation.
func RuleMatches(pattern, action, target string) bool {
	name, glob := SplitRulePattern(pattern)
	if name != "*" && name != action {
		return false
	}
	if glob == "" {
		return true
	}
	ok, err := doublestar.Match(glob, target)
	if err != nil {
		return false
	}
	return ok
}

// SplitRulePattern splits "Action(glob)" into its parts. A pattern
// without parentheses is all action name.
func SplitRulePattern(pattern string) (action, glob string) {
	i := strings.IndexByte(pattern, '(')
	if i < 0 || !strings.HasSuffix(pattern, ")") {
		return pattern, ""
	}
	return pattern[:i], pattern[i+1 : len(pattern)-1]
}
