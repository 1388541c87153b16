package domain

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Length caps of the indexed projections.
const (
	MaxNameLength           = 8000
	MaxSimpleNameLength     = 2000
	MaxOwnerNameLength      = 500
	MaxPathComponentLength  = 48
	MaxPathSearchableLength = 2000
	MaxTagsSearchableLength = 8000
)

var richTextPattern = regexp.MustCompile(`<([^>]*)>`)

// StripRichText removes tag markup such as <color=red> from s.
func StripRichText(s string) string {
	return strings.TrimSpace(richTextPattern.ReplaceAllString(s, ""))
}

// NormalizePathComponent returns the form a path component takes in PathArray.
func NormalizePathComponent(p string) string {
	return truncate(norm.NFC.String(StripRichText(p)), MaxPathComponentLength)
}

// Sanitize returns a copy of r ready to be written to an index: oversized
// strings are truncated, the searchable projections are derived and fields
// invalid for the record type are cleared.
func Sanitize(r Record) Record {
	out := r
	out.Tags = append([]string(nil), r.Tags...)
	if out.Tags == nil {
		out.Tags = []string{}
	}
	if out.RecordType == "" {
		out.RecordType = RecordTypeOther
	}
	if out.RecordType != RecordTypeObject {
		out.ObjectType = ""
	}

	out.SimpleName = truncate(norm.NFC.String(StripRichText(r.Name)), MaxSimpleNameLength)
	out.Name = truncate(r.Name, MaxNameLength)
	out.OwnerName = truncate(r.OwnerName, MaxOwnerNameLength)

	var parts []string
	for _, p := range SplitPath(r.Path) {
		p = NormalizePathComponent(p)
		if p == "" || p == InventoryRoot {
			continue
		}
		parts = append(parts, p)
	}
	out.PathArray = append([]string{InventoryRoot}, parts...)
	out.PathNameSearchable = truncate(strings.Join(parts, " "), MaxPathSearchableLength) + " " + out.SimpleName
	out.OwnerPathNameSearchable = out.OwnerName + " " + out.PathNameSearchable
	out.TagsSearchable = truncate(norm.NFC.String(strings.Join(out.Tags, " ")), MaxTagsSearchableLength)

	return out
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
