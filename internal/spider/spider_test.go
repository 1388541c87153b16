package spider

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/sha1n/redx-indexer/internal/cloud"
	"github.com/sha1n/redx-indexer/internal/config"
	"github.com/sha1n/redx-indexer/internal/describe"
	"github.com/sha1n/redx-indexer/internal/domain"
	"github.com/sha1n/redx-indexer/internal/ignore"
	"github.com/sha1n/redx-indexer/internal/roots"
	"github.com/sha1n/redx-indexer/internal/store"
)

const owner = "U-alice"

var testSettings = config.SpiderSettings{
	BatchSize:     16,
	Concurrency:   4,
	RetryAttempts: 2,
	RetryDelay:    time.Millisecond,
	RetryFactor:   2,
}

type fixture struct {
	store    *store.Store
	upstream *cloud.FakeUpstream
	spider   *Spider
}

func newFixture(t *testing.T, settings config.SpiderSettings, rules ...ignore.Rule) *fixture {
	t.Helper()
	list, err := ignore.New(rules...)
	if err != nil {
		t.Fatalf("ignore.New failed: %v", err)
	}
	f := &fixture{
		store:    store.NewTestStore(t, store.DefaultPageSize),
		upstream: cloud.NewFakeUpstream(),
	}
	f.spider = New(Deps{
		Store:     f.store,
		Upstream:  f.upstream,
		Describer: describe.New(),
		Ignore:    list,
	}, settings)
	return f
}

func (f *fixture) withRoots(t *testing.T, uris ...string) {
	t.Helper()
	set, err := roots.New(uris...)
	if err != nil {
		t.Fatalf("roots.New failed: %v", err)
	}
	f.spider.roots = set
}

func record(typ domain.RecordType, id, path, name string) domain.Record {
	return domain.Record{
		OwnerID:    owner,
		OwnerName:  "alice",
		ID:         id,
		Path:       path,
		Name:       name,
		RecordType: typ,
		Version:    1,
	}
}

func directory(id, path, name string) domain.Record {
	return record(domain.RecordTypeDirectory, id, path, name)
}

func object(id, path, name string) domain.Record {
	return record(domain.RecordTypeObject, id, path, name)
}

func link(id, path, name, target string) domain.Record {
	r := record(domain.RecordTypeLink, id, path, name)
	r.AssetURI = target
	return r
}

func newer(r domain.Record) domain.Record {
	r.Version++
	return r
}

// assertState checks where a record lives after reconciliation.
func (f *fixture) assertState(t *testing.T, rec domain.Record, wantPending, wantCommitted, wantDeleted bool) {
	t.Helper()
	if _, ok := store.MustGet(t, f.store, store.Pending, rec.Stub(), true); ok != wantPending {
		t.Errorf("%s: pending = %v, want %v", rec, ok, wantPending)
	}
	got, ok := store.MustGet(t, f.store, store.Committed, rec.Stub(), true)
	if ok != wantCommitted {
		t.Errorf("%s: committed = %v, want %v", rec, ok, wantCommitted)
		return
	}
	if ok && got.IsDeleted != wantDeleted {
		t.Errorf("%s: deleted = %v, want %v", rec, got.IsDeleted, wantDeleted)
	}
}

func TestDirectory_Diff(t *testing.T) {
	f := newFixture(t, testSettings)
	ctx := context.Background()

	d := directory("R-d", "Inventory", "D")
	a := object("R-a", `Inventory\D`, "a")
	b := object("R-b", `Inventory\D`, "b")
	store.MustWrite(t, f.store, store.Committed, a)
	f.upstream.SetChildren(d, a, b)

	if _, err := f.spider.reconcile(ctx, newBatch(), d); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	f.assertState(t, d, false, true, false)
	f.assertState(t, a, false, true, false)
	f.assertState(t, b, true, false, false)
	if n := f.spider.state.Snapshot().Deleted; n != 0 {
		t.Errorf("Expected nothing deleted, got %d", n)
	}
}

func TestDirectory_DiffUpdatesAndRemovals(t *testing.T) {
	f := newFixture(t, testSettings)
	ctx := context.Background()

	d := directory("R-d", "Inventory", "D")
	changed := object("R-c", `Inventory\D`, "changed")
	removed := object("R-r", `Inventory\D`, "removed")
	removedPending := object("R-p", `Inventory\D`, "removed pending")
	store.MustWrite(t, f.store, store.Committed, changed, removed)
	store.MustWrite(t, f.store, store.Pending, removedPending)
	f.upstream.SetChildren(d, newer(changed))

	if _, err := f.spider.reconcile(ctx, newBatch(), d); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	f.assertState(t, changed, true, true, false)
	f.assertState(t, removed, false, true, true)
	f.assertState(t, removedPending, false, false, false)
}

func TestDirectory_IgnoredChildNotEnqueued(t *testing.T) {
	f := newFixture(t, testSettings, ignore.Rule{Path: "private"})
	ctx := context.Background()

	d := directory("R-d", "Inventory", "D")
	private := directory("R-x", `Inventory\D`, "private")
	f.upstream.SetChildren(d, private)

	if _, err := f.spider.reconcile(ctx, newBatch(), d); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	f.assertState(t, private, false, false, false)
}

func TestDirectory_PermanentNotFound(t *testing.T) {
	f := newFixture(t, testSettings)
	ctx := context.Background()

	d := directory("R-d", "Inventory", "D")
	x := object("R-x", `Inventory\D`, "x")
	y := link("R-y", `Inventory\D`, "y", "resrec:///U-bob/R-t")
	pendingDir := directory("R-pd", `Inventory\D`, "moved")
	pendingObj := object("R-po", `Inventory\D`, "pending object")
	store.MustWrite(t, f.store, store.Committed, d, x, y)
	store.MustWrite(t, f.store, store.Pending, pendingDir, pendingObj)
	f.upstream.FailChildren(d, cloud.NotFoundError("D"))

	outcome, err := f.spider.reconcile(ctx, newBatch(), d)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if outcome != outcomeDeleted {
		t.Errorf("Expected outcome %q, got %q", outcomeDeleted, outcome)
	}

	f.assertState(t, d, false, true, true)
	f.assertState(t, x, false, true, true)
	f.assertState(t, y, false, true, true)
	f.assertState(t, pendingDir, true, false, false)
	f.assertState(t, pendingObj, false, false, false)
}

func TestDirectory_NoIndexMarker(t *testing.T) {
	f := newFixture(t, testSettings)
	ctx := context.Background()

	d := directory("R-d", "Inventory", "D")
	child := object("R-c", `Inventory\D`, "c")
	grandchild := object("R-g", `Inventory\D\Sub`, "g")
	marker := object("R-m", `Inventory\D`, NoIndexMarker)
	store.MustWrite(t, f.store, store.Committed, child, grandchild)
	f.upstream.SetChildren(d, marker, child)

	if _, err := f.spider.reconcile(ctx, newBatch(), d); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	f.assertState(t, d, false, true, true)
	f.assertState(t, child, false, true, true)
	f.assertState(t, grandchild, false, true, true)
	f.assertState(t, marker, false, false, false)
}

func TestDeleteIgnoredDirectories(t *testing.T) {
	f := newFixture(t, testSettings, ignore.Rule{Path: `Inventory\Secret`})
	ctx := context.Background()

	secret := directory("R-s", "Inventory", "Secret")
	sub := directory("R-s2", `Inventory\Secret`, "Sub")
	inner := object("R-s1", `Inventory\Secret`, "inner")
	deep := object("R-s3", `Inventory\Secret\Sub`, "deep")
	pendingDeep := object("R-s4", `Inventory\Secret\Sub`, "pending deep")
	public := object("R-pub", `Inventory\Public`, "public")
	out := link("R-l", `Inventory\Secret`, "out", domain.RecordURI(public.Stub(), false))
	sibling := object("R-o", `Inventory\SecretStuff`, "sibling")

	store.MustWrite(t, f.store, store.Committed, secret, sub, inner, deep, public, out, sibling)
	store.MustWrite(t, f.store, store.Pending, pendingDeep)

	n, err := f.spider.DeleteIgnoredDirectories(ctx)
	if err != nil {
		t.Fatalf("DeleteIgnoredDirectories failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 ignored directories, got %d", n)
	}

	for _, rec := range []domain.Record{secret, sub, inner, deep, out} {
		f.assertState(t, rec, false, true, true)
	}
	f.assertState(t, pendingDeep, false, false, false)
	f.assertState(t, public, false, true, false)
	f.assertState(t, sibling, false, true, false)
}

func TestLink(t *testing.T) {
	target := domain.Record{OwnerID: "U-bob", ID: "R-t", Path: "Inventory", Name: "target", RecordType: domain.RecordTypeObject, Version: 2}
	targetURI := domain.RecordURI(target.Stub(), false)

	tests := []struct {
		name        string
		upstream    bool
		committed   *domain.Record
		wantPending bool
	}{
		{"new target", true, nil, true},
		{"current target", true, &target, false},
		{"stale target", true, &domain.Record{OwnerID: "U-bob", ID: "R-t", Path: "Inventory", Name: "target", RecordType: domain.RecordTypeObject, Version: 1}, true},
		{"missing target", false, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, testSettings)
			if tt.upstream {
				f.upstream.AddRecord(target)
			}
			if tt.committed != nil {
				store.MustWrite(t, f.store, store.Committed, *tt.committed)
			}

			l := link("R-l", "Inventory", "l", targetURI)
			if _, err := f.spider.reconcile(context.Background(), newBatch(), l); err != nil {
				t.Fatalf("reconcile failed: %v", err)
			}

			f.assertState(t, l, false, true, false)
			if _, ok := store.MustGet(t, f.store, store.Pending, target.Stub(), false); ok != tt.wantPending {
				t.Errorf("target pending = %v, want %v", ok, tt.wantPending)
			}
		})
	}
}

func TestLink_AlreadyPendingSkipsFetch(t *testing.T) {
	f := newFixture(t, testSettings)
	target := object("R-t", "Inventory", "target")
	store.MustWrite(t, f.store, store.Pending, target)
	f.upstream.AddRecord(target)

	targetURI := domain.RecordURI(target.Stub(), false)
	l := link("R-l", "Inventory", "l", targetURI)
	if _, err := f.spider.reconcile(context.Background(), newBatch(), l); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if n := f.upstream.Calls("FetchRecord", targetURI); n != 0 {
		t.Errorf("Expected no fetch for a pending target, got %d", n)
	}
}

func TestLink_Ignored(t *testing.T) {
	f := newFixture(t, testSettings, ignore.Rule{Path: "hidden"})
	l := link("R-l", "Inventory", "hidden", "resrec:///U-bob/R-t")
	store.MustWrite(t, f.store, store.Committed, l)

	outcome, err := f.spider.reconcile(context.Background(), newBatch(), l)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if outcome != outcomeDeleted {
		t.Errorf("Expected outcome %q, got %q", outcomeDeleted, outcome)
	}
	f.assertState(t, l, false, true, true)
	if n := f.upstream.Calls("FetchRecord", "resrec:///U-bob/R-t"); n != 0 {
		t.Errorf("Expected ignored link target not to be fetched, got %d calls", n)
	}
}

func TestObject(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

	tests := []struct {
		name           string
		tags           []string
		asset          string
		content        []byte
		wantType       string
		wantReads      int
		wantWorldQueue bool
	}{
		{"classified by extension", nil, "resdb:///abc.png", nil, describe.TypeTexture, 0, false},
		{"classified by content", nil, "resdb:///abc", png, describe.TypeTexture, 1, false},
		{"content unavailable", nil, "resdb:///missing", nil, "", 1, false},
		{"world orb", []string{describe.WorldURLTag + "resrec:///U-bob/R-world"}, "resdb:///orb", nil, describe.TypeWorldOrb, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, testSettings)
			world := domain.Record{OwnerID: "U-bob", ID: "R-world", Path: "Inventory", Name: "world", RecordType: domain.RecordTypeWorld}
			f.upstream.AddRecord(world)
			if tt.content != nil {
				f.upstream.SetAsset(tt.asset, tt.content)
			}

			o := object("R-o", "Inventory", "o")
			o.Tags = tt.tags
			o.AssetURI = tt.asset

			if _, err := f.spider.reconcile(context.Background(), newBatch(), o); err != nil {
				t.Fatalf("reconcile failed: %v", err)
			}

			got, ok := store.MustGet(t, f.store, store.Committed, o.Stub(), false)
			if !ok {
				t.Fatal("Expected object to be committed")
			}
			if got.ObjectType != tt.wantType {
				t.Errorf("Expected object type %q, got %q", tt.wantType, got.ObjectType)
			}
			if n := f.upstream.Calls("ReadPackedObject", tt.asset); n != tt.wantReads {
				t.Errorf("Expected %d content reads, got %d", tt.wantReads, n)
			}
			if _, ok := store.MustGet(t, f.store, store.Pending, world.Stub(), false); ok != tt.wantWorldQueue {
				t.Errorf("world pending = %v, want %v", ok, tt.wantWorldQueue)
			}
		})
	}
}

func TestWorld(t *testing.T) {
	f := newFixture(t, testSettings)
	ctx := context.Background()

	w := record(domain.RecordTypeWorld, "R-w", "Inventory", "w")
	w.AssetURI = "resdb:///world"
	f.upstream.SetAsset(w.AssetURI, []byte("plain world data"))

	missing := record(domain.RecordTypeWorld, "R-m", "Inventory", "m")
	missing.AssetURI = "resdb:///gone"

	for _, rec := range []domain.Record{w, missing} {
		if _, err := f.spider.reconcile(ctx, newBatch(), rec); err != nil {
			t.Fatalf("reconcile(%s) failed: %v", rec, err)
		}
	}

	got, ok := store.MustGet(t, f.store, store.Committed, w.Stub(), false)
	if !ok {
		t.Fatal("Expected world to be committed")
	}
	if got.Metadata["contentSize"] != "16" {
		t.Errorf("Expected content metadata, got %v", got.Metadata)
	}
	if got.ObjectType != "" {
		t.Errorf("Expected no object type on a world, got %q", got.ObjectType)
	}
	f.assertState(t, missing, false, true, false)
}

func TestOther(t *testing.T) {
	f := newFixture(t, testSettings, ignore.Rule{Path: "junk"})
	ctx := context.Background()

	kept := record(domain.RecordTypeOther, "R-k", "Inventory", "kept")
	junk := record(domain.RecordTypeOther, "R-j", "Inventory", "junk")
	for _, rec := range []domain.Record{kept, junk} {
		if _, err := f.spider.reconcile(ctx, newBatch(), rec); err != nil {
			t.Fatalf("reconcile(%s) failed: %v", rec, err)
		}
	}
	f.assertState(t, kept, false, true, false)
	f.assertState(t, junk, false, true, true)
}

func TestDeletePending_Idempotent(t *testing.T) {
	f := newFixture(t, testSettings)
	ctx := context.Background()

	rec := object("R-1", "Inventory", "one")
	store.MustWrite(t, f.store, store.Pending, rec)

	b := newBatch()
	deleted, err := f.spider.deletePending(ctx, b, rec)
	if err != nil || !deleted {
		t.Fatalf("First deletePending = %v, %v", deleted, err)
	}
	deleted, err = f.spider.deletePending(ctx, b, rec)
	if err != nil || deleted {
		t.Errorf("Second deletePending = %v, %v; want false, nil", deleted, err)
	}
	if !b.isDeleted(rec.Stub()) {
		t.Error("Expected identity to be marked deleted")
	}

	// A new batch deletes again without error even though nothing is left
	deleted, err = f.spider.deletePending(ctx, newBatch(), rec)
	if err != nil || !deleted {
		t.Errorf("deletePending in a new batch = %v, %v", deleted, err)
	}
	f.assertState(t, rec, false, false, false)
}

func TestDedupe(t *testing.T) {
	a := object("R-a", "Inventory", "a")
	b := object("R-b", "Inventory", "b")
	aCopy := a
	aCopy.Name = "a renamed"

	got := dedupe([]domain.Record{a, b, aCopy})
	if len(got) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(got))
	}
	if got[0].Name != "a" || got[1].ID != "R-b" {
		t.Errorf("Expected first occurrence to win, got %v", got)
	}
}

func TestDrainBatch_OneFetchPerIdentity(t *testing.T) {
	f := newFixture(t, testSettings)

	d := directory("R-d", "Inventory", "D")
	child := object("R-c", `Inventory\D`, "c")
	store.MustWrite(t, f.store, store.Pending, d)
	f.upstream.SetChildren(d, child)

	// Two pending copies of one identity arrive in the same batch.
	if err := f.spider.drainBatch(context.Background(), []domain.Record{d, newer(d)}); err != nil {
		t.Fatalf("drainBatch failed: %v", err)
	}

	if n := f.upstream.Calls("FetchDirectoryChildren", domain.RecordURI(d.Stub(), false)); n != 1 {
		t.Errorf("Expected one listing of the directory, got %d", n)
	}
	if n := f.spider.state.Snapshot().Processed; n != 1 {
		t.Errorf("Expected 1 processed record, got %d", n)
	}
	f.assertState(t, d, false, true, false)
	f.assertState(t, child, true, false, false)
}

func TestDrain_SkipsRecordsDeletedInBatch(t *testing.T) {
	settings := testSettings
	settings.Concurrency = 1
	f := newFixture(t, settings)

	// Sorted by key, the directory is processed before its stale child.
	d := directory("R-d", "Inventory", "D")
	stale := object("R-z", `Inventory\D`, "stale")
	stale.AssetURI = "resdb:///stale"
	store.MustWrite(t, f.store, store.Pending, d, stale)
	f.upstream.SetChildren(d)

	if err := f.spider.Drain(context.Background()); err != nil {
		t.Fatalf("Drain failed: %v", err)
	}

	f.assertState(t, stale, false, false, false)
	if n := f.upstream.Calls("ReadPackedObject", stale.AssetURI); n != 0 {
		t.Errorf("Expected the deleted record not to be processed, got %d reads", n)
	}
	if n := f.spider.state.Snapshot().Processed; n != 1 {
		t.Errorf("Expected 1 processed record, got %d", n)
	}
}

func TestDrain_CrawlsFromRoots(t *testing.T) {
	f := newFixture(t, testSettings)
	ctx := context.Background()

	root := directory("R-root", "Inventory", "Root")
	a := object("R-a", `Inventory\Root`, "a")
	sub := directory("R-sub", `Inventory\Root`, "Sub")
	deep := object("R-deep", `Inventory\Root\Sub`, "deep")
	f.upstream.AddRecord(root)
	f.upstream.SetChildren(root, a, sub)
	f.upstream.SetChildren(sub, deep)
	f.withRoots(t, domain.RecordURI(root.Stub(), false))

	if err := f.spider.Seed(ctx); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	if err := f.spider.Drain(ctx); err != nil {
		t.Fatalf("Drain failed: %v", err)
	}

	for _, rec := range []domain.Record{root, a, sub, deep} {
		f.assertState(t, rec, false, true, false)
	}
	if n := f.upstream.Calls("FetchDirectoryChildren", domain.RecordURI(root.Stub(), false)); n != 1 {
		t.Errorf("Expected one listing of the root, got %d", n)
	}
	if n := f.spider.state.Snapshot().Processed; n != 4 {
		t.Errorf("Expected 4 processed records, got %d", n)
	}

	// A second drain over an unchanged upstream finds nothing to do
	if err := f.spider.Seed(ctx); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	if count, err := f.store.DocCount(store.Pending); err != nil || count != 0 {
		t.Errorf("Expected empty pending index, got %d (%v)", count, err)
	}
}

func TestDrain_RetriesThenAborts(t *testing.T) {
	f := newFixture(t, testSettings)

	d := directory("R-d", "Inventory", "D")
	store.MustWrite(t, f.store, store.Pending, d)
	f.upstream.FailChildren(d, errors.New("connection reset"))

	err := f.spider.Drain(context.Background())
	if err == nil {
		t.Fatal("Expected Drain to fail")
	}
	if n := f.upstream.Calls("FetchDirectoryChildren", domain.RecordURI(d.Stub(), false)); n != testSettings.RetryAttempts {
		t.Errorf("Expected %d attempts, got %d", testSettings.RetryAttempts, n)
	}
	f.assertState(t, d, true, true, false)
	if n := f.spider.state.Snapshot().Retries; n != testSettings.RetryAttempts-1 {
		t.Errorf("Expected %d retries, got %d", testSettings.RetryAttempts-1, n)
	}
}

func TestRescan(t *testing.T) {
	f := newFixture(t, testSettings)

	a := directory("R-a", "Inventory", "A")
	b := directory("R-b", "Inventory", "B")
	gone := directory("R-c", "Inventory", "C")
	gone.IsDeleted = true
	o := object("R-o", "Inventory", "o")
	store.MustWrite(t, f.store, store.Committed, a, b, gone, o)
	store.MustWrite(t, f.store, store.Pending, b)

	n, err := f.spider.Rescan(context.Background())
	if err != nil {
		t.Fatalf("Rescan failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 directory enqueued, got %d", n)
	}
	f.assertState(t, a, true, true, false)
	if _, ok := store.MustGet(t, f.store, store.Pending, gone.Stub(), true); ok {
		t.Error("Expected deleted directory not to be rescanned")
	}
	if _, ok := store.MustGet(t, f.store, store.Pending, o.Stub(), true); ok {
		t.Error("Expected objects not to be rescanned")
	}
}

func TestIndexURI(t *testing.T) {
	f := newFixture(t, testSettings)
	ctx := context.Background()

	rec := object("R-1", "Inventory", "one")
	f.upstream.AddRecord(rec)

	if err := f.spider.IndexURI(ctx, domain.RecordURI(rec.Stub(), false)); err != nil {
		t.Fatalf("IndexURI failed: %v", err)
	}
	f.assertState(t, rec, true, false, false)

	err := f.spider.IndexURI(ctx, "resrec:///U-alice/R-missing")
	if !errors.Is(err, cloud.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	err = f.spider.IndexURI(ctx, "https://example.com")
	if !errors.Is(err, domain.ErrInvalidRecordURI) {
		t.Errorf("Expected ErrInvalidRecordURI, got %v", err)
	}
}

func TestRun_SavesState(t *testing.T) {
	f := newFixture(t, testSettings)
	dir := t.TempDir()
	f.spider.statePath = StatePath(dir)

	rec := object("R-1", "Inventory", "one")
	f.upstream.AddRecord(rec)

	if err := f.spider.Run(context.Background(), CommandIndex, domain.RecordURI(rec.Stub(), false)); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	f.assertState(t, rec, false, true, false)

	if _, err := os.Stat(StatePath(dir)); err != nil {
		t.Fatalf("Expected state file: %v", err)
	}
	state, err := LoadState(StatePath(dir))
	if err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}
	run := state.Snapshot()
	if run.Command != string(CommandIndex) || run.Processed != 1 || run.Error != "" || run.Running() {
		t.Errorf("Unexpected run state: %+v", run)
	}
}

func TestRun_RecordsFailure(t *testing.T) {
	f := newFixture(t, testSettings)

	err := f.spider.Run(context.Background(), CommandIndex, "resrec:///U-alice/R-missing")
	if err == nil {
		t.Fatal("Expected Run to fail")
	}
	if run := f.spider.State().Snapshot(); run.Error == "" {
		t.Error("Expected the error to be recorded")
	}
}
