package messagestore

import (
	"context"
	"io"
)

// BlobStore holds message payloads that were not inlined into their records.
// Payloads are addressed by the (tenant, record id, data id) triple, so the
// same bytes referenced from two records are stored once per record and one
// record's deletion never strands another's payload.
//
// Implementations must be safe for concurrent use.
type BlobStore interface {
	// Put streams a payload into the store and returns the byte count
	// written. Writing the same key again replaces the payload.
	Put(ctx context.Context, tenant, recordID, dataID string, r io.Reader) (int64, error)

	// Get opens a payload for reading. It reports ErrDataNotFound when the
	// key does not exist. The caller owns the returned reader and must
	// close it.
	Get(ctx context.Context, tenant, recordID, dataID string) (io.ReadCloser, error)

	// Delete removes a payload. Deleting an absent key is not an error.
	Delete(ctx context.Context, tenant, recordID, dataID string) error

	// ClearTenant removes every payload owned by the tenant.
	ClearTenant(ctx context.Context, tenant string) error

	// Clear removes every payload across all tenants.
	Clear(ctx context.Context) error
}
