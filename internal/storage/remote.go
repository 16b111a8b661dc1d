package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"
)

// listPageSize is the number of entries requested per list call.
const listPageSize = 1000

// RemoteBucket reads a bucket through a storage REST API.
type RemoteBucket struct {
	baseURL *url.URL
	bucket  string
	key     string
	client  *http.Client
}

// NewRemoteBucket creates a client for bucket on the storage server at baseURL.
// key is sent as a bearer token; it may be empty for public buckets.
func NewRemoteBucket(baseURL, bucket, key string) (*RemoteBucket, error) {
	if bucket == "" {
		return nil, fmt.Errorf("storage bucket name is required")
	}
	parsed, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid storage URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("invalid storage URL scheme %q", parsed.Scheme)
	}
	return &RemoteBucket{
		baseURL: parsed,
		bucket:  bucket,
		key:     key,
		client:  &http.Client{Timeout: 60 * time.Second},
	}, nil
}

type listRequest struct {
	Prefix string     `json:"prefix"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
	SortBy listSortBy `json:"sortBy"`
}

type listSortBy struct {
	Column string `json:"column"`
	Order  string `json:"order"`
}

type listEntry struct {
	Name      string     `json:"name"`
	ID        *string    `json:"id"`
	UpdatedAt *time.Time `json:"updated_at"`
	Metadata  *struct {
		Size int64 `json:"size"`
	} `json:"metadata"`
}

// List pages through the bucket root. Folder placeholders (entries without an
// id) are skipped.
func (b *RemoteBucket) List(ctx context.Context) ([]Object, error) {
	var objects []Object
	for offset := 0; ; offset += listPageSize {
		page, err := doRequestJSON[[]listEntry](ctx, b, http.MethodPost,
			b.resolveURL("storage", "v1", "object", "list", b.bucket),
			listRequest{
				Limit:  listPageSize,
				Offset: offset,
				SortBy: listSortBy{Column: "name", Order: "asc"},
			}, http.StatusOK)
		if err != nil {
			return nil, fmt.Errorf("list bucket %s: %w", b.bucket, err)
		}
		for _, e := range *page {
			if e.ID == nil || e.Name == "" {
				continue
			}
			obj := Object{Name: e.Name}
			if e.Metadata != nil {
				obj.Size = e.Metadata.Size
			}
			if e.UpdatedAt != nil {
				obj.UpdatedAt = *e.UpdatedAt
			}
			objects = append(objects, obj)
		}
		if len(*page) < listPageSize {
			break
		}
	}
	return objects, nil
}

// Fetch downloads the named object from the bucket's public path.
func (b *RemoteBucket) Fetch(ctx context.Context, name string) ([]byte, error) {
	return b.download(ctx, b.URL(name), name)
}

// URL returns the public URL of the named object.
func (b *RemoteBucket) URL(name string) string {
	return b.resolveURL("storage", "v1", "object", "public", b.bucket, name)
}

func (b *RemoteBucket) download(ctx context.Context, target, name string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	b.authorize(req)

	resp, err := b.client.Do(req) //nolint:gosec // URL built from the configured base via resolveURL
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s failed with status %d: %s", name, resp.StatusCode, readErrorBody(resp.Body))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxObjectSize))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

func (b *RemoteBucket) authorize(req *http.Request) {
	if b.key == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+b.key)
	req.Header.Set("apikey", b.key)
}

func (b *RemoteBucket) resolveURL(elem ...string) string {
	return b.baseURL.JoinPath(elem...).String()
}

// doRequestJSON sends a JSON body and decodes a JSON response. Any status not
// listed in expectedStatuses is an error.
func doRequestJSON[T any](ctx context.Context, b *RemoteBucket, method, target string, requestBody any, expectedStatuses ...int) (*T, error) {
	var bodyReader io.Reader
	if requestBody != nil {
		jsonBody, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("could not marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	b.authorize(req)
	if requestBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.client.Do(req) //nolint:gosec // URL built from the configured base via resolveURL
	if err != nil {
		return nil, fmt.Errorf("could not send request: %w", err)
	}
	defer resp.Body.Close()

	if !slices.Contains(expectedStatuses, resp.StatusCode) {
		return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, readErrorBody(resp.Body))
	}

	var result T
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("could not unmarshal response: %w", err)
	}
	return &result, nil
}

// readErrorBody returns at most 512 bytes of an error response.
func readErrorBody(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, 512))
	if err != nil || len(body) == 0 {
		return "(no body)"
	}
	return strings.TrimSpace(string(body))
}
