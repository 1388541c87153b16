package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	// RecordURIScheme prefixes every record URI.
	RecordURIScheme = "resrec:///"

	// PathSeparator delimits record path components.
	PathSeparator = `\`

	// InventoryRoot is the first component of every owner's path.
	InventoryRoot = "Inventory"
)

var (
	// ErrInvalidRecordURI indicates the string is not a record URI.
	ErrInvalidRecordURI = errors.New("invalid record URI")

	// Matches: resrec:///U-owner/R-id or resrec:///G-owner/Inventory/Dir/Name
	recordURIPattern = regexp.MustCompile(`^resrec:///([^/]+)/(.+)$`)
)

// IDType returns the type prefix of an id: "U" (user), "G" (group) or "R" (record).
func IDType(id string) string {
	prefix, _, found := strings.Cut(id, "-")
	if !found {
		return ""
	}
	return prefix
}

// IsOwnerID reports whether id identifies a user or a group.
func IsOwnerID(id string) bool {
	t := IDType(id)
	return t == "U" || t == "G"
}

// RecordURI renders the stub as a record URI. The path form is used when
// pathForm is set or the stub has no id.
//
// Examples:
//   - {U-a, R-1} -> resrec:///U-a/R-1
//   - {U-a, Inventory\Dir, Name} -> resrec:///U-a/Inventory/Dir/Name
func RecordURI(s RecordStub, pathForm bool) string {
	if s.ID != "" && !pathForm {
		return RecordURIScheme + s.OwnerID + "/" + s.ID
	}
	parts := SplitPath(s.Path)
	parts = append(parts, s.Name)
	return RecordURIScheme + s.OwnerID + "/" + strings.Join(parts, "/")
}

// ParseRecordURI parses a record URI in either id or path form.
func ParseRecordURI(uri string) (RecordStub, error) {
	matches := recordURIPattern.FindStringSubmatch(strings.TrimSpace(uri))
	if matches == nil {
		return RecordStub{}, fmt.Errorf("%w: %q", ErrInvalidRecordURI, uri)
	}
	owner, rest := matches[1], matches[2]
	if !IsOwnerID(owner) {
		return RecordStub{}, fmt.Errorf("%w: bad owner in %q", ErrInvalidRecordURI, uri)
	}

	if !strings.Contains(rest, "/") && IDType(rest) == "R" {
		return RecordStub{OwnerID: owner, ID: rest}, nil
	}

	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) < 2 {
		return RecordStub{}, fmt.Errorf("%w: path form needs a path and a name in %q", ErrInvalidRecordURI, uri)
	}
	return RecordStub{
		OwnerID: owner,
		Path:    strings.Join(parts[:len(parts)-1], PathSeparator),
		Name:    parts[len(parts)-1],
	}, nil
}

// IsRecordURI reports whether s parses as a record URI.
func IsRecordURI(s string) bool {
	_, err := ParseRecordURI(s)
	return err == nil
}

// SplitPath splits a backslash path into its non-empty components.
func SplitPath(path string) []string {
	var parts []string
	for _, p := range strings.Split(path, PathSeparator) {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// ParentDirectoryStub returns the stub of the directory containing s. Records
// directly below the owner root have no addressable parent.
func ParentDirectoryStub(s RecordStub) (RecordStub, bool) {
	parts := SplitPath(s.Path)
	if s.OwnerID == "" || len(parts) < 2 {
		return RecordStub{}, false
	}
	return RecordStub{
		OwnerID: s.OwnerID,
		Path:    strings.Join(parts[:len(parts)-1], PathSeparator),
		Name:    parts[len(parts)-1],
	}, true
}
