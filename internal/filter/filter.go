// Package filter selects jobs of converted workflows by id or display name.
package filter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bgricker/workflowc/internal/workflow"
)

// Pattern is a compiled job filter. Plain patterns match case-insensitive
// substrings, patterns wrapped in slashes are regular expressions.
type Pattern struct {
	raw   string
	regex *regexp.Regexp
	lower string
}

// Compile transforms raw pattern strings into Pattern values. Blank
// patterns are ignored.
func Compile(patterns []string) ([]Pattern, error) {
	result := make([]Pattern, 0, len(patterns))
	for _, raw := range patterns {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.HasPrefix(raw, "/") && strings.HasSuffix(raw, "/") && len(raw) >= 2 {
			re, err := regexp.Compile(raw[1 : len(raw)-1])
			if err != nil {
				return nil, fmt.Errorf("compile regexp %q: %w", raw, err)
			}
			result = append(result, Pattern{raw: raw, regex: re})
			continue
		}
		result = append(result, Pattern{raw: raw, lower: strings.ToLower(raw)})
	}
	return result, nil
}

func (p Pattern) String() string { return p.raw }

// Match reports whether the pattern matches s.
func (p Pattern) Match(s string) bool {
	if s == "" {
		return false
	}
	if p.regex != nil {
		return p.regex.MatchString(s)
	}
	return strings.Contains(strings.ToLower(s), p.lower)
}

// Jobs returns the jobs matching any pattern. A reusable workflow job is
// kept when it matches itself, in which case all of its callee jobs are
// kept, or when one of its callee jobs matches, in which case only the
// matching callee jobs are kept. The input is not modified.
func Jobs(jobs []workflow.JobItem, patterns []Pattern) []workflow.JobItem {
	if len(patterns) == 0 {
		return jobs
	}
	var result []workflow.JobItem
	for _, item := range jobs {
		if matchesJob(item, patterns) {
			result = append(result, item)
			continue
		}
		rj, ok := item.(*workflow.ReusableWorkflowJob)
		if !ok {
			continue
		}
		nested := Jobs(rj.Jobs, patterns)
		if len(nested) == 0 {
			continue
		}
		cp := *rj
		cp.Jobs = nested
		result = append(result, &cp)
	}
	return result
}

// Template returns a shallow copy of t restricted to the matching jobs,
// or nil when no job matches.
func Template(t *workflow.Template, patterns []Pattern) *workflow.Template {
	if len(patterns) == 0 {
		return t
	}
	jobs := Jobs(t.Jobs, patterns)
	if len(jobs) == 0 {
		return nil
	}
	cp := *t
	cp.Jobs = jobs
	return &cp
}

func matchesJob(job workflow.JobItem, patterns []Pattern) bool {
	for _, pattern := range patterns {
		if pattern.Match(job.JobName()) || pattern.Match(job.JobID()) {
			return true
		}
	}
	return false
}
