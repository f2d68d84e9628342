package match

import (
	"errors"
	"testing"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		path    string
		want    RouteValues
		ok      bool
	}{
		{
			name:    "single placeholder",
			pattern: "in/{name}.txt",
			path:    "in/a.txt",
			want:    RouteValues{"name": "a"},
			ok:      true,
		},
		{
			name:    "two placeholders",
			pattern: "{dir}/{name}.csv",
			path:    "incoming/report.csv",
			want:    RouteValues{"dir": "incoming", "name": "report"},
			ok:      true,
		},
		{
			name:    "literal only",
			pattern: "fixed/path.txt",
			path:    "fixed/path.txt",
			want:    RouteValues{},
			ok:      true,
		},
		{
			name:    "trailing placeholder",
			pattern: "in/{rest}",
			path:    "in/a/b/c.txt",
			want:    RouteValues{"rest": "a/b/c.txt"},
			ok:      true,
		},
		{
			name:    "prefix mismatch",
			pattern: "in/{name}.txt",
			path:    "out/a.txt",
			ok:      false,
		},
		{
			name:    "suffix mismatch",
			pattern: "in/{name}.txt",
			path:    "in/a.csv",
			ok:      false,
		},
		{
			name:    "empty capture rejected",
			pattern: "in/{name}.txt",
			path:    "in/.txt",
			ok:      false,
		},
		{
			name:    "empty trailing capture rejected",
			pattern: "in/{name}",
			path:    "in/",
			ok:      false,
		},
		{
			// {name} captures "a" (shortest run before ".txt"), leaving
			// a trailing ".txt" unconsumed — no match.
			name:    "shortest capture leaves tail unconsumed",
			pattern: "in/{name}.txt",
			path:    "in/a.txt.txt",
			ok:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Match(tt.pattern, tt.path)
			if ok != tt.ok {
				t.Fatalf("Match(%q, %q) ok = %v, want %v", tt.pattern, tt.path, ok, tt.ok)
			}
			if !ok {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Match(%q, %q) = %v, want %v", tt.pattern, tt.path, got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("Match(%q, %q)[%q] = %q, want %q", tt.pattern, tt.path, k, got[k], v)
				}
			}
		})
	}
}

func TestResolve(t *testing.T) {
	rv := RouteValues{"name": "a", "dir": "out"}

	got, err := Resolve("{dir}/{name}.txt", rv)
	if err != nil {
		t.Fatalf("Resolve() unexpected error: %v", err)
	}
	if got != "out/a.txt" {
		t.Errorf("Resolve() = %q, want %q", got, "out/a.txt")
	}
}

func TestResolve_UnresolvedPlaceholder(t *testing.T) {
	_, err := Resolve("out/{missing}.txt", RouteValues{"name": "a"})
	if err == nil {
		t.Fatal("Resolve() expected error for unresolved placeholder")
	}
	var unresolved *UnresolvedPlaceholderError
	if !errors.As(err, &unresolved) {
		t.Fatalf("Resolve() error = %v, want *UnresolvedPlaceholderError", err)
	}
	if unresolved.Placeholder != "missing" {
		t.Errorf("Placeholder = %q, want %q", unresolved.Placeholder, "missing")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		pattern string
		wantErr bool
	}{
		{"in/{name}.txt", false},
		{"literal", false},
		{"{a}/{b}", false},
		{"in/{name", true},   // unterminated
		{"in/{}.txt", true},  // empty name
		{"{a}{b}.txt", true}, // adjacent placeholders
	}

	for _, tt := range tests {
		err := Validate(tt.pattern)
		if (err != nil) != tt.wantErr {
			t.Errorf("Validate(%q) error = %v, wantErr %v", tt.pattern, err, tt.wantErr)
		}
	}
}
