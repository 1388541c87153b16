package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sha1n/redx-indexer/internal/domain"
)

const (
	// AssetScheme prefixes content addressed asset URIs.
	AssetScheme = "resdb:///"

	// MaxAssetBytes caps the size of a downloaded packed object.
	MaxAssetBytes = 64 * 1024 * 1024

	userAgent = "redx-indexer"
)

// Client is the HTTP implementation of Upstream.
type Client struct {
	baseURL   string
	assetsURL string
	http      *http.Client
}

// NewClient creates a client for the API at baseURL and the asset host at
// assetsURL.
func NewClient(baseURL, assetsURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		assetsURL: strings.TrimRight(assetsURL, "/"),
		http:      &http.Client{Timeout: timeout},
	}
}

// ownerCollection returns the API collection an owner id lives in.
func ownerCollection(ownerID string) string {
	if domain.IDType(ownerID) == "G" {
		return "groups"
	}
	return "users"
}

func (c *Client) recordsURL(ownerID string) string {
	return fmt.Sprintf("%s/%s/%s/records", c.baseURL, ownerCollection(ownerID), url.PathEscape(ownerID))
}

// FetchRecord fetches one record by id, or by path and name.
func (c *Client) FetchRecord(ctx context.Context, stub domain.RecordStub) (domain.Record, error) {
	if err := stub.Validate(); err != nil {
		return domain.Record{}, err
	}

	var u string
	if stub.ID != "" {
		u = c.recordsURL(stub.OwnerID) + "/" + url.PathEscape(stub.ID)
	} else {
		parts := append(domain.SplitPath(stub.Path), stub.Name)
		for i, p := range parts {
			parts[i] = url.PathEscape(p)
		}
		u = c.recordsURL(stub.OwnerID) + "/root/" + strings.Join(parts, "/")
	}

	var rec domain.Record
	if err := c.getJSON(ctx, u, &rec); err != nil {
		return domain.Record{}, fmt.Errorf("fetch %s: %w", domain.RecordURI(stub, stub.ID == ""), err)
	}
	return rec, nil
}

// FetchDirectoryChildren lists the records whose path is the full path of dir.
func (c *Client) FetchDirectoryChildren(ctx context.Context, dir domain.Record) ([]domain.Record, error) {
	u := c.recordsURL(dir.OwnerID) + "?path=" + url.QueryEscape(dir.Stub().FullPath())

	var children []domain.Record
	if err := c.getJSON(ctx, u, &children); err != nil {
		return nil, fmt.Errorf("list children of %s: %w", dir, err)
	}
	return children, nil
}

// ReadPackedObject downloads a resdb asset.
func (c *Client) ReadPackedObject(ctx context.Context, assetURI string) ([]byte, error) {
	u, err := c.assetURL(assetURI)
	if err != nil {
		return nil, err
	}

	resp, err := c.get(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("read asset %s: %w", assetURI, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxAssetBytes))
	if err != nil {
		return nil, fmt.Errorf("read asset %s: %w", assetURI, err)
	}
	return data, nil
}

// assetURL maps resdb:///<hash>.<ext> to the asset host.
func (c *Client) assetURL(assetURI string) (string, error) {
	if !strings.HasPrefix(assetURI, AssetScheme) {
		return "", &PermanentError{StatusCode: http.StatusBadRequest, Err: fmt.Errorf("not an asset URI: %q", assetURI)}
	}
	name := strings.TrimPrefix(assetURI, AssetScheme)
	hash, _, _ := strings.Cut(name, ".")
	if hash == "" {
		return "", &PermanentError{StatusCode: http.StatusBadRequest, Err: fmt.Errorf("empty asset hash in %q", assetURI)}
	}
	return c.assetsURL + "/" + url.PathEscape(hash), nil
}

func (c *Client) getJSON(ctx context.Context, u string, v any) error {
	resp, err := c.get(ctx, u)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// get issues a GET and classifies failures: 403 and 404 are permanent
// not-found errors, other 4xx are permanent, everything else is transient.
func (c *Client) get(ctx context.Context, u string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 300 {
		return resp, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	_ = resp.Body.Close()
	statusErr := fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(body)))

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden:
		return nil, &PermanentError{StatusCode: resp.StatusCode, Err: errors.Join(ErrNotFound, statusErr)}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, statusErr
	default:
		return nil, &PermanentError{StatusCode: resp.StatusCode, Err: statusErr}
	}
}
