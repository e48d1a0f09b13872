package project

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/greg-hellings/osapanel/pkg/jobconfig"
)

var (
	usePoetryKey      = jobconfig.Key{Group: jobconfig.GroupWorkflows, Option: "use-poetry"}
	pythonVersionsKey = jobconfig.Key{Group: jobconfig.GroupWorkflows, Option: "python-versions"}
)

// Suggestion is a feature flag value that fits the detected project.
type Suggestion struct {
	Key    jobconfig.Key
	Value  string
	Reason string
}

func (s Suggestion) String() string {
	return fmt.Sprintf("%s=%s (%s)", s.Key, s.Value, s.Reason)
}

// Suggestions derives flag suggestions from the profile. The python version
// candidates are the values the python-versions flag accepts.
func (p *Profile) Suggestions() ([]Suggestion, error) {
	if p == nil {
		return nil, nil
	}
	var out []Suggestion
	if p.Tool == ToolPoetry {
		out = append(out, Suggestion{Key: usePoetryKey, Value: "true", Reason: "Poetry project"})
	}
	if p.RequiresPython == "" {
		return out, nil
	}

	spec, ok := jobconfig.LookupSpec(pythonVersionsKey)
	if !ok {
		return out, nil
	}
	versions, err := MatchingVersions(p.RequiresPython, spec.Allowed)
	if err != nil {
		return out, err
	}
	if len(versions) > 0 {
		out = append(out, Suggestion{
			Key:    pythonVersionsKey,
			Value:  strings.Join(versions, " "),
			Reason: "requires-python " + p.RequiresPython,
		})
	}
	return out, nil
}

// MatchingVersions returns the candidates (minor versions such as "3.11")
// that satisfy a PEP 440 or Poetry style interpreter constraint.
func MatchingVersions(constraint string, candidates []string) ([]string, error) {
	c, err := semver.NewConstraint(normalizeConstraint(constraint))
	if err != nil {
		return nil, fmt.Errorf("invalid python constraint %q: %w", constraint, err)
	}
	var out []string
	for _, cand := range candidates {
		v, err := semver.NewVersion(cand)
		if err != nil {
			return nil, fmt.Errorf("invalid python version %q: %w", cand, err)
		}
		if c.Check(v) {
			out = append(out, cand)
		}
	}
	return out, nil
}

// normalizeConstraint rewrites PEP 440 operators into their semver
// equivalents. Poetry operators (^, ~, ||) pass through unchanged.
func normalizeConstraint(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "*"
	}
	ors := strings.Split(s, "||")
	for i, or := range ors {
		parts := strings.Split(or, ",")
		for j, part := range parts {
			parts[j] = normalizeClause(strings.TrimSpace(part))
		}
		ors[i] = strings.Join(parts, ", ")
	}
	return strings.Join(ors, " || ")
}

func normalizeClause(c string) string {
	switch {
	case strings.HasPrefix(c, "~="):
		// ~=3.9 allows any later 3.x; ~=3.9.1 stays within 3.9
		v := strings.TrimSpace(strings.TrimPrefix(c, "~="))
		if strings.Count(v, ".") == 1 {
			return "^" + v
		}
		return "~" + v
	case strings.HasPrefix(c, "==="):
		return "=" + strings.TrimSpace(strings.TrimPrefix(c, "==="))
	case strings.HasPrefix(c, "=="):
		return "=" + strings.TrimSpace(strings.TrimPrefix(c, "=="))
	default:
		return c
	}
}
