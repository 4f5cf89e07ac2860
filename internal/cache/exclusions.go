package cache

import (
	"fmt"
	"regexp"
)

// ExclusionList decides whether a request attribute (tenant name, tag)
// opts the request out of caching. Two matching modes:
//
//   - Exact: the value must equal the rule exactly.
//   - Regex: the value is tested against a compiled pattern.
//
// A nil *ExclusionList is safe to call and never matches.
type ExclusionList struct {
	exact    map[string]struct{}
	patterns []*regexp.Regexp
}

// NewExclusionList compiles the rules. Invalid patterns error out so
// misconfiguration is caught at startup.
func NewExclusionList(exact, patterns []string) (*ExclusionList, error) {
	el := &ExclusionList{
		exact: make(map[string]struct{}, len(exact)),
	}

	for _, e := range exact {
		if e != "" {
			el.exact[e] = struct{}{}
		}
	}

	for _, p := range patterns {
		if p == "" {
			continue
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("cache exclusion: invalid pattern %q: %w", p, err)
		}
		el.patterns = append(el.patterns, re)
	}

	return el, nil
}

// Matches reports whether value is excluded from caching. Exact rules are
// checked first, then regex patterns in order.
func (el *ExclusionList) Matches(value string) bool {
	if el == nil {
		return false
	}
	if _, ok := el.exact[value]; ok {
		return true
	}
	for _, re := range el.patterns {
		if re.MatchString(value) {
			return true
		}
	}
	return false
}

// MatchesAny reports whether any of the values is excluded. Empty values
// are skipped.
func (el *ExclusionList) MatchesAny(values ...string) bool {
	if el == nil {
		return false
	}
	for _, v := range values {
		if v != "" && el.Matches(v) {
			return true
		}
	}
	return false
}

// Len returns the total number of rules configured.
func (el *ExclusionList) Len() int {
	if el == nil {
		return 0
	}
	return len(el.exact) + len(el.patterns)
}
