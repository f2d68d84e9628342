// Package match implements the path-pattern language used by blob
// triggers: literal text with named placeholders in braces, e.g.
// "in/{name}.txt". Matching a concrete path produces route values;
// resolving an output pattern substitutes them back in.
package match

import (
	"fmt"
	"strings"
)

// RouteValues maps placeholder names to the text they captured.
type RouteValues map[string]string

// UnresolvedPlaceholderError reports an output pattern referencing a
// placeholder the input pattern never captured. It is a configuration
// shape fault scoped to a single trigger attempt.
type UnresolvedPlaceholderError struct {
	Pattern     string
	Placeholder string
}

func (e *UnresolvedPlaceholderError) Error() string {
	return fmt.Sprintf("pattern %q references placeholder {%s} with no captured value", e.Pattern, e.Placeholder)
}

// segment is one parsed piece of a pattern: either literal text or a
// placeholder name.
type segment struct {
	text        string
	placeholder bool
}

// parse splits a pattern into alternating literal and placeholder
// segments. Adjacent placeholders are rejected because the boundary
// between their captures would be ambiguous.
func parse(pattern string) ([]segment, error) {
	var segs []segment
	rest := pattern
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			if rest != "" {
				segs = append(segs, segment{text: rest})
			}
			return segs, nil
		}
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			return nil, fmt.Errorf("pattern %q: unterminated placeholder", pattern)
		}
		end += open
		name := rest[open+1 : end]
		if name == "" {
			return nil, fmt.Errorf("pattern %q: empty placeholder name", pattern)
		}
		if open > 0 {
			segs = append(segs, segment{text: rest[:open]})
		} else if len(segs) > 0 && segs[len(segs)-1].placeholder {
			return nil, fmt.Errorf("pattern %q: adjacent placeholders", pattern)
		}
		segs = append(segs, segment{text: name, placeholder: true})
		rest = rest[end+1:]
	}
}

// Validate reports whether pattern is well formed.
func Validate(pattern string) error {
	_, err := parse(pattern)
	return err
}

// Match tests path against pattern. On success it returns the captured
// route values (possibly empty for a fully literal pattern) and true.
// Placeholders capture the shortest non-empty run of characters up to
// the next literal segment; a trailing placeholder captures the rest.
func Match(pattern, path string) (RouteValues, bool) {
	segs, err := parse(pattern)
	if err != nil {
		return nil, false
	}

	rv := RouteValues{}
	rest := path
	for i, seg := range segs {
		if !seg.placeholder {
			if !strings.HasPrefix(rest, seg.text) {
				return nil, false
			}
			rest = rest[len(seg.text):]
			continue
		}
		if i == len(segs)-1 {
			if rest == "" {
				return nil, false
			}
			rv[seg.text] = rest
			rest = ""
			continue
		}
		// Capture up to the first occurrence of the next literal.
		next := segs[i+1].text
		idx := strings.Index(rest, next)
		if idx <= 0 {
			return nil, false
		}
		rv[seg.text] = rest[:idx]
		rest = rest[idx:]
	}
	if rest != "" {
		return nil, false
	}
	return rv, true
}

// Resolve substitutes route values into pattern, producing a concrete
// path. A placeholder with no corresponding captured value yields an
// *UnresolvedPlaceholderError.
func Resolve(pattern string, rv RouteValues) (string, error) {
	segs, err := parse(pattern)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, seg := range segs {
		if !seg.placeholder {
			sb.WriteString(seg.text)
			continue
		}
		val, ok := rv[seg.text]
		if !ok {
			return "", &UnresolvedPlaceholderError{Pattern: pattern, Placeholder: seg.text}
		}
		sb.WriteString(val)
	}
	return sb.String(), nil
}
