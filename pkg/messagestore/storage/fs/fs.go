package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tendant/message-store/pkg/messagestore"
)

// Backend is a filesystem implementation of the messagestore.BlobStore
// interface. Payloads live under baseDir/tenant/recordID/dataID.
type Backend struct {
	baseDir string
}

// Config options for the filesystem backend
type Config struct {
	BaseDir string // Base directory for storing payloads
}

// New creates a new filesystem blob store
func New(config Config) (messagestore.BlobStore, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}
	if err := os.MkdirAll(config.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &Backend{baseDir: config.BaseDir}, nil
}

// payloadPath validates the key components and joins them under the base
// directory. Components become path segments, so anything that could walk
// out of the tree is rejected.
func (b *Backend) payloadPath(tenant, recordID, dataID string) (string, error) {
	for _, part := range []string{tenant, recordID, dataID} {
		if part == "" || part == "." || part == ".." || strings.ContainsAny(part, `/\`) {
			return "", fmt.Errorf("invalid key component %q", part)
		}
	}
	return filepath.Join(b.baseDir, tenant, recordID, dataID), nil
}

// Put streams a payload to disk
func (b *Backend) Put(ctx context.Context, tenant, recordID, dataID string, r io.Reader) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	path, err := b.payloadPath(tenant, recordID, dataID)
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, &messagestore.BlobError{Backend: "fs", Op: "put", Key: path, Err: err}
	}
	file, err := os.Create(path)
	if err != nil {
		return 0, &messagestore.BlobError{Backend: "fs", Op: "put", Key: path, Err: err}
	}
	defer file.Close()

	n, err := io.Copy(file, r)
	if err != nil {
		return n, &messagestore.BlobError{Backend: "fs", Op: "put", Key: path, Err: err}
	}
	return n, nil
}

// Get opens a payload for reading
func (b *Backend) Get(ctx context.Context, tenant, recordID, dataID string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := b.payloadPath(tenant, recordID, dataID)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, messagestore.ErrDataNotFound
	} else if err != nil {
		return nil, &messagestore.BlobError{Backend: "fs", Op: "get", Key: path, Err: err}
	}
	return file, nil
}

// Delete removes a payload. Deleting an absent payload is not an error.
func (b *Backend) Delete(ctx context.Context, tenant, recordID, dataID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := b.payloadPath(tenant, recordID, dataID)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return &messagestore.BlobError{Backend: "fs", Op: "delete", Key: path, Err: err}
	}
	return nil
}

// ClearTenant removes every payload owned by the tenant
func (b *Backend) ClearTenant(ctx context.Context, tenant string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if tenant == "" || tenant == "." || tenant == ".." || strings.ContainsAny(tenant, `/\`) {
		return fmt.Errorf("invalid key component %q", tenant)
	}

	dir := filepath.Join(b.baseDir, tenant)
	if err := os.RemoveAll(dir); err != nil {
		return &messagestore.BlobError{Backend: "fs", Op: "clearTenant", Key: dir, Err: err}
	}
	return nil
}

// Clear removes every payload
func (b *Backend) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entries, err := os.ReadDir(b.baseDir)
	if err != nil {
		return &messagestore.BlobError{Backend: "fs", Op: "clear", Key: b.baseDir, Err: err}
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(b.baseDir, entry.Name())); err != nil {
			return &messagestore.BlobError{Backend: "fs", Op: "clear", Key: entry.Name(), Err: err}
		}
	}
	return nil
}
