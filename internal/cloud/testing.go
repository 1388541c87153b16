package cloud

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/sha1n/redx-indexer/internal/domain"
)

// FakeUpstream is an in-memory Upstream that counts calls.
// This is exported for use in other packages' tests.
type FakeUpstream struct {
	mu          sync.Mutex
	records     []domain.Record
	children    map[string][]domain.Record
	childrenErr map[string]error
	assets      map[string][]byte
	calls       map[string]int
}

// NewFakeUpstream creates an empty fake upstream.
func NewFakeUpstream() *FakeUpstream {
	return &FakeUpstream{
		children:    make(map[string][]domain.Record),
		childrenErr: make(map[string]error),
		assets:      make(map[string][]byte),
		calls:       make(map[string]int),
	}
}

func dirKey(dir domain.RecordStub) string {
	return dir.OwnerID + ":" + dir.FullPath()
}

// AddRecord makes rec fetchable.
func (f *FakeUpstream) AddRecord(recs ...domain.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, recs...)
}

// SetChildren sets the listing of dir and makes every child fetchable.
func (f *FakeUpstream) SetChildren(dir domain.Record, children ...domain.Record) {
	f.mu.Lock()
	f.children[dirKey(dir.Stub())] = children
	f.mu.Unlock()
	f.AddRecord(children...)
}

// FailChildren makes listing dir fail with err.
func (f *FakeUpstream) FailChildren(dir domain.Record, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.childrenErr[dirKey(dir.Stub())] = err
}

// SetAsset sets the content behind an asset URI.
func (f *FakeUpstream) SetAsset(assetURI string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assets[assetURI] = data
}

// Calls returns how often a method was called for a key: the record URI for
// FetchRecord and FetchDirectoryChildren, the asset URI for ReadPackedObject.
func (f *FakeUpstream) Calls(method, key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method+" "+key]
}

func (f *FakeUpstream) count(method, key string) {
	f.calls[method+" "+key]++
}

// NotFoundError returns the error the fake uses for missing records.
func NotFoundError(what string) error {
	return &PermanentError{StatusCode: http.StatusNotFound, Err: fmt.Errorf("%w: %s", ErrNotFound, what)}
}

func (f *FakeUpstream) FetchDirectoryChildren(_ context.Context, dir domain.Record) ([]domain.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("FetchDirectoryChildren", domain.RecordURI(dir.Stub(), false))

	key := dirKey(dir.Stub())
	if err := f.childrenErr[key]; err != nil {
		return nil, err
	}
	return append([]domain.Record(nil), f.children[key]...), nil
}

func (f *FakeUpstream) FetchRecord(_ context.Context, stub domain.RecordStub) (domain.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("FetchRecord", domain.RecordURI(stub, stub.ID == ""))

	for _, rec := range f.records {
		if domain.SameIdentity(rec.Stub(), stub) {
			return rec, nil
		}
		if stub.ID == "" && rec.OwnerID == stub.OwnerID && rec.Path == stub.Path && rec.Name == stub.Name {
			return rec, nil
		}
	}
	return domain.Record{}, NotFoundError(domain.RecordURI(stub, stub.ID == ""))
}

func (f *FakeUpstream) ReadPackedObject(_ context.Context, assetURI string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("ReadPackedObject", assetURI)

	data, ok := f.assets[assetURI]
	if !ok {
		return nil, NotFoundError(assetURI)
	}
	return data, nil
}
