package messagestore

import (
	"context"
	"io"
)

// Service defines the main interface for the message-store library. It
// fronts a record Store and an optional companion BlobStore, routing
// oversized payloads to the blob store on write and re-attaching them on
// read.
type Service interface {
	// Lifecycle
	Open(ctx context.Context) error
	Close(ctx context.Context) error

	// Message operations
	PutMessage(ctx context.Context, req PutMessageRequest) (*PutResult, error)
	GetMessage(ctx context.Context, req GetMessageRequest) (*Record, error)
	QueryMessages(ctx context.Context, req QueryMessagesRequest) (*Page, error)
	DeleteMessage(ctx context.Context, req DeleteMessageRequest) error
	ClearTenant(ctx context.Context, tenant string) error
	Clear(ctx context.Context) error

	// Payload operations against the companion blob store
	PutData(ctx context.Context, tenant, recordID, dataID string, r io.Reader) (int64, error)
	GetData(ctx context.Context, tenant, recordID, dataID string) (io.ReadCloser, error)
	DeleteData(ctx context.Context, tenant, recordID, dataID string) error
}
