package zeitdieb

import (
	"errors"
	"fmt"
	"strings"
)

// Target names one callable as "module-path:Callable".
type Target struct {
	Module   string
	Callable string
}

func (t Target) String() string {
	return t.Module + ":" + t.Callable
}

// ParseTarget splits "module-path:Callable". Pointer receivers are
// normalized, so "pkg:(*T).M" and "pkg:T.M" name the same method.
func ParseTarget(token string) (Target, error) {
	token = strings.TrimSpace(token)

	module, callable, ok := strings.Cut(token, ":")
	module = strings.TrimSpace(module)
	callable = normalizeCallable(strings.TrimSpace(callable))

	if !ok || module == "" || callable == "" || strings.ContainsAny(callable, ": ") {
		return Target{}, &TargetError{Target: token, Err: ErrMalformedTarget}
	}

	return Target{Module: module, Callable: callable}, nil
}

func normalizeCallable(callable string) string {
	if strings.HasPrefix(callable, "(*") {
		if end := strings.Index(callable, ")"); end > 0 {
			callable = callable[2:end] + callable[end+1:]
		}
	}

	return callable
}

// TargetSelector is an ordered set of target names. An empty selector
// traces everything in scope.
type TargetSelector []string

// NewTargetSelector validates names. Invalid names are reported one
// TargetError each; the valid ones are kept.
func NewTargetSelector(names ...string) (TargetSelector, error) {
	var (
		sel  TargetSelector
		errs []error
	)

	seen := make(map[string]struct{}, len(names))

	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			continue
		}

		target, err := ParseTarget(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		key := target.String()
		if _, dup := seen[key]; dup {
			continue
		}

		seen[key] = struct{}{}
		sel = append(sel, key)
	}

	return sel, errors.Join(errs...)
}

// ParseTargets parses a comma separated target list such as the value of
// the X-Zeitdieb header. Braces expand to alternatives:
// "pkg:{a,b},other:c" selects pkg:a, pkg:b and other:c. Like
// NewTargetSelector, a bad token is reported as a TargetError and the
// remaining targets are still returned.
func ParseTargets(text string) (TargetSelector, error) {
	var (
		names []string
		errs  []error
	)

	for _, token := range splitTopLevel(text) {
		expanded, err := ExpandBraces(token)
		if err != nil {
			errs = append(errs, &TargetError{Target: strings.TrimSpace(token), Err: err})
			continue
		}

		names = append(names, expanded...)
	}

	sel, err := NewTargetSelector(names...)

	return sel, errors.Join(append(errs, err)...)
}

// ExpandBraces expands every "{a,b}" group of s into its alternatives.
// Groups may nest.
func ExpandBraces(s string) ([]string, error) {
	open := strings.IndexByte(s, '{')
	if open < 0 {
		if strings.IndexByte(s, '}') >= 0 {
			return nil, fmt.Errorf("unbalanced '}' in %q", s)
		}

		return []string{s}, nil
	}

	depth := 0
	closeAt := -1

	for i := open; i < len(s) && closeAt < 0; i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				closeAt = i
			}
		}
	}

	if closeAt < 0 {
		return nil, fmt.Errorf("unbalanced '{' in %q", s)
	}

	prefix, suffix := s[:open], s[closeAt+1:]

	var out []string

	for _, alt := range splitTopLevel(s[open+1 : closeAt]) {
		expanded, err := ExpandBraces(prefix + alt + suffix)
		if err != nil {
			return nil, err
		}

		out = append(out, expanded...)
	}

	return out, nil
}

// splitTopLevel splits s at commas that are not inside braces. A stray '}'
// does not hide the commas after it.
func splitTopLevel(s string) []string {
	var (
		parts []string
		depth int
		start int
	)

	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}

	return append(parts, s[start:])
}

// Empty reports whether the selector traces everything.
func (s TargetSelector) Empty() bool {
	return len(s) == 0
}

// Contains reports whether name is selected.
func (s TargetSelector) Contains(name string) bool {
	for _, n := range s {
		if n == name {
			return true
		}
	}

	return false
}

// Resolve keeps the targets for which known returns true and reports one
// TargetError per unknown target.
func (s TargetSelector) Resolve(known func(name string) bool) (TargetSelector, error) {
	var (
		resolved TargetSelector
		errs     []error
	)

	for _, name := range s {
		if !known(name) {
			errs = append(errs, &TargetError{Target: name, Err: ErrUnknownTarget})
			continue
		}

		resolved = append(resolved, name)
	}

	return resolved, errors.Join(errs...)
}

func (s TargetSelector) String() string {
	return strings.Join(s, ",")
}
