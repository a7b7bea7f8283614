package memory

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"

	"github.com/tendant/message-store/pkg/messagestore"
)

// Backend is an in-memory implementation of the messagestore.BlobStore
// interface
type Backend struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// New creates a new in-memory blob store
func New() messagestore.BlobStore {
	return &Backend{
		objects: make(map[string][]byte),
	}
}

func blobKey(tenant, recordID, dataID string) string {
	return tenant + "/" + recordID + "/" + dataID
}

// Put stores a payload in memory
func (b *Backend) Put(ctx context.Context, tenant, recordID, dataID string, r io.Reader) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, &messagestore.BlobError{Backend: "memory", Op: "put", Key: blobKey(tenant, recordID, dataID), Err: err}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[blobKey(tenant, recordID, dataID)] = data
	return int64(len(data)), nil
}

// Get retrieves a payload from memory
func (b *Backend) Get(ctx context.Context, tenant, recordID, dataID string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	data, exists := b.objects[blobKey(tenant, recordID, dataID)]
	if !exists {
		return nil, messagestore.ErrDataNotFound
	}
	// Snapshot so the reader stays valid after a concurrent overwrite.
	return io.NopCloser(bytes.NewReader(append([]byte(nil), data...))), nil
}

// Delete removes a payload. Deleting an absent payload is not an error.
func (b *Backend) Delete(ctx context.Context, tenant, recordID, dataID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, blobKey(tenant, recordID, dataID))
	return nil
}

// ClearTenant removes every payload owned by the tenant
func (b *Backend) ClearTenant(ctx context.Context, tenant string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	prefix := tenant + "/"
	for key := range b.objects {
		if strings.HasPrefix(key, prefix) {
			delete(b.objects, key)
		}
	}
	return nil
}

// Clear removes every payload
func (b *Backend) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects = make(map[string][]byte)
	return nil
}
