// Package ignore decides which records are excluded from the index.
package ignore

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/sha1n/redx-indexer/internal/domain"
	"gopkg.in/yaml.v3"
)

// ErrInvalidRule indicates a rule that can never match or does not parse.
var ErrInvalidRule = errors.New("invalid ignore rule")

// Rule excludes records of an owner, records under a path, or both.
//
// Path is a glob over the backslash-delimited full path of a record
// (path\name). "*" and "?" match within one component and "**" matches any
// number of components. A pattern without a backslash matches a component
// at any depth.
type Rule struct {
	Owner string `yaml:"owner,omitempty"`
	Path  string `yaml:"path,omitempty"`
}

func (r Rule) validate() error {
	if r.Owner == "" && r.Path == "" {
		return fmt.Errorf("%w: owner or path must be set", ErrInvalidRule)
	}
	for _, p := range strings.Split(r.Path, domain.PathSeparator) {
		if _, err := path.Match(escapeSlash(p), ""); err != nil {
			return fmt.Errorf("%w: %q: %v", ErrInvalidRule, r.Path, err)
		}
	}
	return nil
}

func (r Rule) pattern() []string {
	if r.Path == "" {
		return nil
	}
	if !strings.Contains(r.Path, domain.PathSeparator) {
		return []string{"**", r.Path}
	}
	return strings.Split(r.Path, domain.PathSeparator)
}

// List is a set of ignore rules. The zero value ignores nothing.
type List struct {
	rules []Rule
}

type file struct {
	Ignore []Rule `yaml:"ignore"`
}

// New creates a list from rules.
func New(rules ...Rule) (*List, error) {
	for _, r := range rules {
		if err := r.validate(); err != nil {
			return nil, err
		}
	}
	return &List{rules: rules}, nil
}

// Parse reads a YAML document with a top-level "ignore" sequence of rules.
func Parse(data []byte) (*List, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse ignore list: %w", err)
	}
	return New(f.Ignore...)
}

// Load reads an ignore list file. An empty path yields an empty list.
func Load(filename string) (*List, error) {
	if filename == "" {
		return &List{}, nil
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read ignore list: %w", err)
	}
	return Parse(data)
}

// Len returns the number of rules.
func (l *List) Len() int {
	return len(l.rules)
}

// IsIgnored reports whether the record addressed by stub is excluded: a
// rule matches its owner and its full path or any ancestor of it.
func (l *List) IsIgnored(stub domain.RecordStub) bool {
	if l == nil {
		return false
	}

	var parts []string
	if stub.Name != "" {
		parts = append(domain.SplitPath(stub.Path), stub.Name)
	}

	for _, r := range l.rules {
		if r.Owner != "" && r.Owner != stub.OwnerID {
			continue
		}
		pat := r.pattern()
		if pat == nil {
			return true
		}
		for n := len(parts); n > 0; n-- {
			if matchParts(pat, parts[:n]) {
				return true
			}
		}
	}
	return false
}

// matchParts matches path components against pattern components.
func matchParts(pattern, parts []string) bool {
	if len(pattern) == 0 {
		return len(parts) == 0
	}
	if pattern[0] == "**" {
		for i := 0; i <= len(parts); i++ {
			if matchParts(pattern[1:], parts[i:]) {
				return true
			}
		}
		return false
	}
	if len(parts) == 0 || !matchComponent(pattern[0], parts[0]) {
		return false
	}
	return matchParts(pattern[1:], parts[1:])
}

func matchComponent(pattern, name string) bool {
	if pattern == name {
		return true
	}
	matched, _ := path.Match(escapeSlash(pattern), escapeSlash(name))
	return matched
}

// escapeSlash hides forward slashes, which path.Match treats as separators
// but which are ordinary characters in record names.
func escapeSlash(s string) string {
	return strings.ReplaceAll(s, "/", "\x00")
}
