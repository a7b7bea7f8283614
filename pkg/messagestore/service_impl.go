package messagestore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
)

// DefaultMaxInlineSize is the payload size, in bytes, above which the service
// stores a payload in the blob store instead of inline with its record.
const DefaultMaxInlineSize = 64 * 1024

// service implements the Service interface
type service struct {
	store     Store
	blobs     BlobStore
	maxInline int
	logger    *slog.Logger
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithStore sets the record store for the service
func WithStore(st Store) Option {
	return func(s *service) {
		s.store = st
	}
}

// WithBlobStore sets the companion blob store for externally held payloads
func WithBlobStore(bs BlobStore) Option {
	return func(s *service) {
		s.blobs = bs
	}
}

// WithServiceMaxInlineSize sets the service-wide inline limit. A limit <= 0
// sends every payload to the blob store.
func WithServiceMaxInlineSize(n int) Option {
	return func(s *service) {
		s.maxInline = n
	}
}

// WithLogger sets the logger for the service
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		maxInline: DefaultMaxInlineSize,
	}

	for _, option := range options {
		option(s)
	}

	if s.store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	return s, nil
}

// Lifecycle

func (s *service) Open(ctx context.Context) error {
	return s.store.Open(ctx)
}

func (s *service) Close(ctx context.Context) error {
	return s.store.Close(ctx)
}

// Message operations

func (s *service) PutMessage(ctx context.Context, req PutMessageRequest) (*PutResult, error) {
	if req.Tenant == "" {
		return nil, fmt.Errorf("tenant is required")
	}

	limit := s.maxInline
	if req.MaxInlineSize != nil {
		limit = *req.MaxInlineSize
	}

	// Decide payload placement up front so a homeless payload fails the
	// write before anything is stored.
	external := len(req.Message.Data) > 0 && (limit <= 0 || len(req.Message.Data) > limit)
	if external {
		if s.blobs == nil {
			return nil, ErrNoBlobStore
		}
		if req.RecordID == "" {
			return nil, fmt.Errorf("%w: payload exceeds inline limit", ErrMissingRecordID)
		}
	}

	var dataID string
	if external {
		dataID = ComputeDataID(req.Message.Data)
		if _, err := s.blobs.Put(ctx, req.Tenant, req.RecordID, dataID, bytes.NewReader(req.Message.Data)); err != nil {
			return nil, err
		}
	}

	res, err := s.store.Put(ctx, req.Tenant, req.Message, req.Indexes, WithMaxInlineSize(limit))
	if err != nil {
		if external {
			// The payload went in first; take it back out so a failed
			// write leaves nothing behind.
			if derr := s.blobs.Delete(ctx, req.Tenant, req.RecordID, dataID); derr != nil {
				s.logger.Warn("orphaned payload after failed record write",
					"tenant", req.Tenant, "recordId", req.RecordID, "dataId", dataID, "error", derr)
			}
		}
		return nil, err
	}
	return res, nil
}

func (s *service) GetMessage(ctx context.Context, req GetMessageRequest) (*Record, error) {
	if req.Tenant == "" {
		return nil, fmt.Errorf("tenant is required")
	}
	rec, err := s.store.Get(ctx, req.Tenant, req.ContentID)
	if err != nil || rec == nil {
		return rec, err
	}
	if req.WithData && rec.HasData() && !rec.DataInlined {
		if s.blobs == nil {
			return nil, ErrNoBlobStore
		}
		if req.RecordID == "" {
			return nil, fmt.Errorf("%w: payload is externally stored", ErrMissingRecordID)
		}
		rc, err := s.blobs.Get(ctx, req.Tenant, req.RecordID, rec.DataID)
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("read payload %s: %w", rec.DataID, err)
		}
		rec.Message.Data = data
	}
	return rec, nil
}

func (s *service) QueryMessages(ctx context.Context, req QueryMessagesRequest) (*Page, error) {
	if req.Tenant == "" {
		return nil, fmt.Errorf("tenant is required")
	}
	return s.store.Query(ctx, req.Tenant, req.Query)
}

func (s *service) DeleteMessage(ctx context.Context, req DeleteMessageRequest) error {
	if req.Tenant == "" {
		return fmt.Errorf("tenant is required")
	}

	var dataID string
	if req.DeleteData {
		rec, err := s.store.Get(ctx, req.Tenant, req.ContentID)
		if err != nil {
			return err
		}
		if rec != nil && rec.HasData() && !rec.DataInlined {
			if s.blobs == nil {
				return ErrNoBlobStore
			}
			if req.RecordID == "" {
				return fmt.Errorf("%w: payload is externally stored", ErrMissingRecordID)
			}
			dataID = rec.DataID
		}
	}

	if err := s.store.Delete(ctx, req.Tenant, req.ContentID); err != nil {
		return err
	}
	if dataID != "" {
		if err := s.blobs.Delete(ctx, req.Tenant, req.RecordID, dataID); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) ClearTenant(ctx context.Context, tenant string) error {
	if tenant == "" {
		return fmt.Errorf("tenant is required")
	}
	if err := s.store.ClearTenant(ctx, tenant); err != nil {
		return err
	}
	if s.blobs != nil {
		return s.blobs.ClearTenant(ctx, tenant)
	}
	return nil
}

func (s *service) Clear(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		return err
	}
	if s.blobs != nil {
		return s.blobs.Clear(ctx)
	}
	return nil
}

// Payload operations

func (s *service) PutData(ctx context.Context, tenant, recordID, dataID string, r io.Reader) (int64, error) {
	if s.blobs == nil {
		return 0, ErrNoBlobStore
	}
	return s.blobs.Put(ctx, tenant, recordID, dataID, r)
}

func (s *service) GetData(ctx context.Context, tenant, recordID, dataID string) (io.ReadCloser, error) {
	if s.blobs == nil {
		return nil, ErrNoBlobStore
	}
	return s.blobs.Get(ctx, tenant, recordID, dataID)
}

func (s *service) DeleteData(ctx context.Context, tenant, recordID, dataID string) error {
	if s.blobs == nil {
		return ErrNoBlobStore
	}
	return s.blobs.Delete(ctx, tenant, recordID, dataID)
}
