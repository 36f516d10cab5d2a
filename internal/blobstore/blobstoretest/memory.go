// Package blobstoretest provides an in-memory blobstore.Store for tests.
package blobstoretest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/keithlinneman/smallbiz-web/internal/blobstore"
)

const BaseURL = "https://blobs.example.test"

// Memory is a blobstore.Store backed by a map. The Fail* fields inject errors
// into the matching operation.
type Memory struct {
	mu      sync.Mutex
	objects map[string]memObject

	FailList   error
	FailGet    error
	FailPut    error
	FailDelete error

	// Calls records operations in order, e.g. "delete:content.json".
	Calls []string
}

type memObject struct {
	data        []byte
	size        int64
	contentType string
	modified    time.Time
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string]memObject)}
}

// Seed stores an object directly, bypassing failure injection and call recording.
func (m *Memory) Seed(key string, data []byte, contentType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memObject{data: append([]byte(nil), data...), size: int64(len(data)), contentType: contentType, modified: time.Now().UTC()}
}

// SeedSized stores an empty object that lists with the given size.
func (m *Memory) SeedSized(key string, size int64, contentType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memObject{size: size, contentType: contentType, modified: time.Now().UTC()}
}

// Data returns the stored bytes for key.
func (m *Memory) Data(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), o.data...), true
}

// Keys returns all stored keys in sorted order.
func (m *Memory) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *Memory) record(call string) {
	m.Calls = append(m.Calls, call)
}

func (m *Memory) List(_ context.Context, prefix, cursor string, limit int) (blobstore.ListPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("list:" + prefix)
	if m.FailList != nil {
		return blobstore.ListPage{}, m.FailList
	}
	if limit <= 0 {
		limit = blobstore.DefaultPageSize
	}

	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) && k > cursor {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var page blobstore.ListPage
	for i, k := range keys {
		if i == limit {
			page.Cursor = keys[i-1]
			break
		}
		o := m.objects[k]
		page.Objects = append(page.Objects, blobstore.Object{
			Key:          k,
			URL:          m.URL(k),
			Size:         o.size,
			ContentType:  o.contentType,
			LastModified: o.modified,
		})
	}
	return page, nil
}

func (m *Memory) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("get:" + key)
	if m.FailGet != nil {
		return nil, m.FailGet
	}
	o, ok := m.objects[key]
	if !ok {
		return nil, blobstore.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(append([]byte(nil), o.data...))), nil
}

func (m *Memory) Put(_ context.Context, key string, data []byte, contentType string) (blobstore.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("put:" + key)
	if m.FailPut != nil {
		return blobstore.Object{}, m.FailPut
	}
	m.objects[key] = memObject{data: append([]byte(nil), data...), size: int64(len(data)), contentType: contentType, modified: time.Now().UTC()}
	return blobstore.Object{Key: key, URL: m.URL(key), Size: int64(len(data)), ContentType: contentType}, nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("delete:" + key)
	if m.FailDelete != nil {
		return m.FailDelete
	}
	delete(m.objects, key)
	return nil
}

func (m *Memory) URL(key string) string { return BaseURL + "/" + key }

func (m *Memory) KeyFromURL(u string) (string, bool) {
	if !strings.HasPrefix(u, BaseURL+"/") {
		return "", false
	}
	return strings.TrimPrefix(u, BaseURL+"/"), true
}

// ErrInjected is a convenience error for the Fail* fields.
var ErrInjected = errors.New("blobstoretest: injected failure")

var _ blobstore.Store = (*Memory)(nil)
