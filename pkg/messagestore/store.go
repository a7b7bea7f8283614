package messagestore

import "context"

// Store is a tenant-partitioned record table addressed by message content.
//
// Implementations must be safe for concurrent use by multiple goroutines.
// Open must be called before any other operation and Close after the last
// one; outside that window every method reports ErrNotOpen. Every method
// honors context cancellation before touching the backend.
type Store interface {
	// Open prepares the backend for use, provisioning physical resources
	// (tables, indexes, directories) when they do not exist yet. Open is
	// idempotent.
	Open(ctx context.Context) error

	// Close releases the backend. Operations after Close report ErrNotOpen.
	Close(ctx context.Context) error

	// Put writes the message and its index attributes as one record keyed
	// by the message's content id. Writing an equal message again replaces
	// the record and all of its index attributes in place.
	//
	// When the payload exceeds the inline limit the record is written
	// without it and the result carries DataInlined false; the caller is
	// then responsible for placing the payload in a blob store under
	// (tenant, record id, DataID).
	Put(ctx context.Context, tenant string, msg Message, indexes map[string]any, opts ...PutOption) (*PutResult, error)

	// Get returns the record with the given content id, or (nil, nil) when
	// the tenant has no such record.
	Get(ctx context.Context, tenant, contentID string) (*Record, error)

	// Query returns one page of the tenant's records matching the query,
	// ordered by the query's sort field and direction with the content id
	// breaking ties. Feeding the returned page cursor back through
	// Query.Cursor resumes exactly after the page's last record.
	Query(ctx context.Context, tenant string, q Query) (*Page, error)

	// Delete removes the record and its index attributes. Deleting an
	// absent record is not an error.
	Delete(ctx context.Context, tenant, contentID string) error

	// ClearTenant removes every record owned by the tenant.
	ClearTenant(ctx context.Context, tenant string) error

	// Clear removes every record across all tenants.
	Clear(ctx context.Context) error
}

// PutOptions carries per-write overrides for Store.Put.
type PutOptions struct {
	// MaxInlineSize overrides the store's inline limit for this write.
	// A value <= 0 sends any payload to external storage.
	MaxInlineSize *int
}

// PutOption configures a single Store.Put call.
type PutOption func(*PutOptions)

// WithMaxInlineSize overrides the store's inline limit for one write. A limit
// <= 0 disables inlining entirely.
func WithMaxInlineSize(n int) PutOption {
	return func(o *PutOptions) {
		o.MaxInlineSize = &n
	}
}

// ApplyPutOptions folds a Put call's options into one PutOptions value.
// Store implementations use it to resolve per-call overrides.
func ApplyPutOptions(opts []PutOption) PutOptions {
	var po PutOptions
	for _, opt := range opts {
		opt(&po)
	}
	return po
}
