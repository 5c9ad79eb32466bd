package privacy

import "strings"

type Rule interface {
	Evaluate(target Component) ActivityResult
}

// ConditionRule gives its result to components matching both its name and type clauses. An empty
// clause matches every component.
type ConditionRule struct {
	result        ActivityResult
	componentName []string
	componentType []string
}

func (r ConditionRule) Evaluate(target Component) ActivityResult {
	nameMatches := anyMatch(r.componentName, target.MatchesName)
	typeMatches := anyMatch(r.componentType, func(componentType string) bool {
		return strings.EqualFold(componentType, target.Type)
	})
	if nameMatches && typeMatches {
		return r.result
	}
	return ActivityAbstain
}

func anyMatch(clauses []string, matches func(string) bool) bool {
	if len(clauses) == 0 {
		return true
	}
	for _, clause := range clauses {
		if matches(clause) {
			return true
		}
	}
	return false
}
