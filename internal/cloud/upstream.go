// Package cloud talks to the upstream record store.
package cloud

import (
	"context"
	"errors"
	"fmt"

	"github.com/sha1n/redx-indexer/internal/domain"
)

// ErrNotFound indicates the upstream has no record for the requested
// identity, or refuses to disclose it.
var ErrNotFound = errors.New("record not found")

// PermanentError is an upstream failure that retrying will not fix.
type PermanentError struct {
	StatusCode int
	Err        error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("upstream returned %d: %v", e.StatusCode, e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// IsPermanent reports whether err is a permanent upstream failure.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// Upstream is the remote record store.
type Upstream interface {
	// FetchDirectoryChildren lists the records directly inside dir.
	FetchDirectoryChildren(ctx context.Context, dir domain.Record) ([]domain.Record, error)

	// FetchRecord fetches one record by identity. A missing record yields an
	// error wrapping ErrNotFound.
	FetchRecord(ctx context.Context, stub domain.RecordStub) (domain.Record, error)

	// ReadPackedObject downloads the asset behind an asset URI.
	ReadPackedObject(ctx context.Context, assetURI string) ([]byte, error)
}
