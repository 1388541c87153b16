package mcp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sha1n/redx-indexer/internal/domain"
	"github.com/sha1n/redx-indexer/internal/origin"
	"github.com/sha1n/redx-indexer/internal/spider"
	"github.com/sha1n/redx-indexer/internal/store"
)

const (
	alice = "U-alice"
	bob   = "U-bob"
)

func record(owner, id, path, name string, typ domain.RecordType) domain.Record {
	return domain.Record{
		OwnerID:    owner,
		OwnerName:  strings.TrimPrefix(owner, "U-"),
		ID:         id,
		Path:       path,
		Name:       name,
		RecordType: typ,
		Version:    1,
	}
}

var (
	hatsDir  = record(alice, "R-hats", `Inventory`, "Hats", domain.RecordTypeDirectory)
	redHat   = record(alice, "R-red", `Inventory\Hats`, "Red Hat", domain.RecordTypeObject)
	fancyDir = record(alice, "R-fancy", `Inventory\Hats`, "Fancy", domain.RecordTypeDirectory)
	topHat   = record(alice, "R-top", `Inventory\Hats\Fancy`, "Top Hat", domain.RecordTypeObject)
	hatWorld = record(alice, "R-world", `Inventory`, "Hat World", domain.RecordTypeWorld)
	bobHat   = record(bob, "R-bob", `Inventory`, "Bob Hat", domain.RecordTypeObject)
)

func oldHat() domain.Record {
	r := record(alice, "R-old", `Inventory\Hats`, "Old Hat", domain.RecordTypeObject)
	r.IsDeleted = true
	return r
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s := store.NewTestStore(t, 100)
	store.MustWrite(t, s, store.Committed, hatsDir, redHat, fancyDir, topHat, hatWorld, bobHat, oldHat())
	return s
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("Expected content in result")
	}
	text, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("Expected TextContent, got %T", result.Content[0])
	}
	return text.Text
}

func decode(t *testing.T, result *mcp.CallToolResult, v any) {
	t.Helper()
	if result.IsError {
		t.Fatalf("Unexpected error result: %s", resultText(t, result))
	}
	if err := json.Unmarshal([]byte(resultText(t, result)), v); err != nil {
		t.Fatalf("Failed to decode result: %v", err)
	}
}

func names(views []recordView) []string {
	out := make([]string, len(views))
	for i, v := range views {
		out[i] = v.Name
	}
	return out
}

func TestSearchHandler_InvalidArgs(t *testing.T) {
	handler := NewSearchHandler(newTestStore(t), 10)

	tests := []struct {
		name string
		args SearchArgument
		want string
	}{
		{"empty query", SearchArgument{Query: "   "}, "cannot be empty"},
		{"negative offset", SearchArgument{Query: "hat", Offset: -1}, "negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, tt.args)
			if err != nil {
				t.Fatalf("Handle returned error: %v", err)
			}
			if !result.IsError {
				t.Fatal("Expected error result")
			}
			if text := resultText(t, result); !strings.Contains(text, tt.want) {
				t.Errorf("Expected %q in %q", tt.want, text)
			}
		})
	}
}

func TestSearchHandler_Text(t *testing.T) {
	handler := NewSearchHandler(newTestStore(t), 10)

	result, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, SearchArgument{Query: "hat"})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	var got page
	decode(t, result, &got)

	found := names(got.Records)
	for _, want := range []string{"Red Hat", "Top Hat", "Bob Hat"} {
		if !contains(found, want) {
			t.Errorf("Expected %q in %v", want, found)
		}
	}
	if contains(found, "Old Hat") {
		t.Errorf("Deleted record returned: %v", found)
	}
}

func TestSearchHandler_Filters(t *testing.T) {
	handler := NewSearchHandler(newTestStore(t), 10)

	tests := []struct {
		name  string
		args  SearchArgument
		total uint64
	}{
		{"owner", SearchArgument{Query: "hat", Owner: bob}, 1},
		{"type and owner", SearchArgument{Types: []string{"object"}, Owner: alice}, 2},
		{"include deleted", SearchArgument{Types: []string{"object"}, Owner: alice, IncludeDeleted: true}, 3},
		{"world", SearchArgument{Types: []string{"world"}}, 1},
		{"directories", SearchArgument{Types: []string{"directory"}, Owner: alice}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, tt.args)
			if err != nil {
				t.Fatalf("Handle returned error: %v", err)
			}
			var got page
			decode(t, result, &got)
			if got.Total != tt.total {
				t.Errorf("Total = %d, want %d (%v)", got.Total, tt.total, names(got.Records))
			}
		})
	}
}

func TestSearchHandler_LimitCappedByMaxResults(t *testing.T) {
	handler := NewSearchHandler(newTestStore(t), 2)

	result, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, SearchArgument{
		Types:          []string{"object"},
		Owner:          alice,
		IncludeDeleted: true,
		Limit:          50,
	})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	var got page
	decode(t, result, &got)
	if got.Total != 3 || len(got.Records) != 2 {
		t.Errorf("Expected 2 of 3 records, got %d of %d", len(got.Records), got.Total)
	}
}

func TestSearchHandler_RecordView(t *testing.T) {
	handler := NewSearchHandler(newTestStore(t), 10)

	result, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, SearchArgument{Query: "hat", Owner: bob})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	text := resultText(t, result)
	for _, want := range []string{
		`"uri": "resrec:///U-bob/R-bob"`,
		`"pathUri": "resrec:///U-bob/Inventory/Bob Hat"`,
		`"recordType": "object"`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected %s in:\n%s", want, text)
		}
	}
	if strings.Contains(text, "simpleName") {
		t.Errorf("Searchable projections leaked:\n%s", text)
	}
}

func TestBrowseHandler(t *testing.T) {
	handler := NewBrowseHandler(newTestStore(t), 10)

	tests := []struct {
		name string
		args BrowseArgument
		want []string
	}{
		{"id form", BrowseArgument{URI: "resrec:///U-alice/R-hats"}, []string{"Red Hat", "Fancy"}},
		{"path form", BrowseArgument{URI: "resrec:///U-alice/Inventory/Hats"}, []string{"Red Hat", "Fancy"}},
		{"include deleted", BrowseArgument{URI: "resrec:///U-alice/R-hats", IncludeDeleted: true}, []string{"Red Hat", "Fancy", "Old Hat"}},
		{"nested", BrowseArgument{URI: "resrec:///U-alice/R-fancy"}, []string{"Top Hat"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, tt.args)
			if err != nil {
				t.Fatalf("Handle returned error: %v", err)
			}
			var got listing
			decode(t, result, &got)
			if got.Directory.RecordType != domain.RecordTypeDirectory {
				t.Errorf("Directory = %+v", got.Directory)
			}
			found := names(got.Records)
			if len(found) != len(tt.want) {
				t.Fatalf("Children = %v, want %v", found, tt.want)
			}
			for _, want := range tt.want {
				if !contains(found, want) {
					t.Errorf("Expected %q in %v", want, found)
				}
			}
		})
	}
}

func TestBrowseHandler_Errors(t *testing.T) {
	handler := NewBrowseHandler(newTestStore(t), 10)

	tests := []struct {
		name string
		uri  string
		want string
	}{
		{"invalid uri", "http://example.com", "Invalid record URI"},
		{"missing", "resrec:///U-alice/R-missing", "not found"},
		{"not a directory", "resrec:///U-alice/R-red", "not a directory"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, BrowseArgument{URI: tt.uri})
			if err != nil {
				t.Fatalf("Handle returned error: %v", err)
			}
			if !result.IsError {
				t.Fatal("Expected error result")
			}
			if text := resultText(t, result); !strings.Contains(text, tt.want) {
				t.Errorf("Expected %q in %q", tt.want, text)
			}
		})
	}
}

func TestOriginHandler(t *testing.T) {
	s := newTestStore(t)
	root, err := domain.ParseRecordURI("resrec:///U-alice/Inventory/Hats")
	if err != nil {
		t.Fatalf("ParseRecordURI failed: %v", err)
	}
	handler := NewOriginHandler(origin.New(s, []domain.RecordStub{root}, 3))

	result, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, OriginArgument{URI: "resrec:///U-alice/R-top"})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	var node origin.Node
	decode(t, result, &node)

	if node.Name != "Top Hat" || node.Parent == nil || node.Parent.Name != "Fancy" {
		t.Fatalf("Unexpected tree: %+v", node)
	}
	if hats := node.Parent.Parent; hats == nil || !hats.Root || hats.ID != "R-hats" {
		t.Errorf("Expected committed root Hats, got %+v", node.Parent.Parent)
	}
}

func TestOriginHandler_MaxDepth(t *testing.T) {
	handler := NewOriginHandler(origin.New(newTestStore(t), nil, 3))
	depth := 1

	result, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, OriginArgument{URI: "resrec:///U-alice/R-top", MaxDepth: &depth})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	var node origin.Node
	decode(t, result, &node)
	if node.Parent == nil || !node.Parent.MaxDepthExceeded {
		t.Errorf("Expected cutoff at the parent, got %+v", node.Parent)
	}
}

func TestOriginHandler_Errors(t *testing.T) {
	handler := NewOriginHandler(origin.New(newTestStore(t), nil, 3))
	negative, tooDeep := -1, 6

	tests := []struct {
		name string
		args OriginArgument
		want string
	}{
		{"invalid uri", OriginArgument{URI: "nope"}, "Invalid record URI"},
		{"negative depth", OriginArgument{URI: "resrec:///U-alice/R-top", MaxDepth: &negative}, "negative"},
		{"depth above limit", OriginArgument{URI: "resrec:///U-alice/R-top", MaxDepth: &tooDeep}, "Invalid max_depth"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, tt.args)
			if err != nil {
				t.Fatalf("Handle returned error: %v", err)
			}
			if !result.IsError {
				t.Fatal("Expected error result")
			}
			if text := resultText(t, result); !strings.Contains(text, tt.want) {
				t.Errorf("Expected %q in %q", tt.want, text)
			}
		})
	}
}

func TestStatusHandler(t *testing.T) {
	s := newTestStore(t)
	store.MustWrite(t, s, store.Pending, record(alice, "R-new", `Inventory\Hats`, "New Hat", domain.RecordTypeObject))

	statePath := filepath.Join(t.TempDir(), spider.StateFilename)
	state := spider.NewState()
	runID := state.Begin("drain")
	state.Finish(nil)
	if err := state.Save(statePath); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	handler := NewStatusHandler(s, statePath)
	result, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, StatusArgument{})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	var got status
	decode(t, result, &got)

	if n := got.Indexes[store.Committed].Documents; n != 7 {
		t.Errorf("Committed documents = %d, want 7", n)
	}
	if n := got.Indexes[store.Pending].Documents; n != 1 {
		t.Errorf("Pending documents = %d, want 1", n)
	}
	if got.LastRun == nil || got.LastRun.ID != runID || got.LastRun.Command != "drain" {
		t.Errorf("LastRun = %+v, want run %s", got.LastRun, runID)
	}
	if got.LastSuccess.IsZero() {
		t.Error("Expected LastSuccess to be set")
	}
}

func TestStatusHandler_NoState(t *testing.T) {
	handler := NewStatusHandler(store.NewTestStore(t, 100), filepath.Join(t.TempDir(), spider.StateFilename))

	result, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, StatusArgument{})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	var got status
	decode(t, result, &got)
	if got.LastRun != nil {
		t.Errorf("Expected no last run, got %+v", got.LastRun)
	}
	if len(got.Indexes) != len(store.Indexes) {
		t.Errorf("Indexes = %v", got.Indexes)
	}
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
