// Package roots loads the set of records the crawl starts from. Origin
// resolution treats them as the trusted ends of provenance chains.
package roots

import (
	"fmt"
	"os"

	"github.com/sha1n/redx-indexer/internal/domain"
	"gopkg.in/yaml.v3"
)

// Set is an ordered, read-only list of root records.
type Set struct {
	uris  []string
	stubs []domain.RecordStub
}

type file struct {
	Roots []string `yaml:"roots"`
}

// New creates a set from record URIs.
func New(uris ...string) (*Set, error) {
	s := &Set{}
	seen := make(map[string]bool, len(uris))
	for _, uri := range uris {
		if seen[uri] {
			continue
		}
		seen[uri] = true

		stub, err := domain.ParseRecordURI(uri)
		if err != nil {
			return nil, fmt.Errorf("invalid root: %w", err)
		}
		s.uris = append(s.uris, uri)
		s.stubs = append(s.stubs, stub)
	}
	return s, nil
}

// Parse reads a YAML document with a top-level "roots" sequence of URIs.
func Parse(data []byte) (*Set, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse roots: %w", err)
	}
	return New(f.Roots...)
}

// Load reads a roots file. An empty path yields an empty set.
func Load(filename string) (*Set, error) {
	if filename == "" {
		return &Set{}, nil
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read roots: %w", err)
	}
	return Parse(data)
}

// Stubs returns the root identities in file order.
func (s *Set) Stubs() []domain.RecordStub {
	return append([]domain.RecordStub(nil), s.stubs...)
}

// URIs returns the root URIs in file order.
func (s *Set) URIs() []string {
	return append([]string(nil), s.uris...)
}

// Len returns the number of roots.
func (s *Set) Len() int {
	return len(s.stubs)
}
