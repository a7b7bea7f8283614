package messagestore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// Convenience functions for common message operations. These provide
// simplified interfaces for frequent use cases while keeping the core
// Service interface clean.

// PutJSON marshals v as the message envelope and stores it. This is a
// convenience function for messages without a separate payload.
func PutJSON(ctx context.Context, svc Service, tenant string, v any, indexes map[string]any) (*PutResult, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return svc.PutMessage(ctx, PutMessageRequest{
		Tenant:  tenant,
		Message: Message{Envelope: raw},
		Indexes: indexes,
	})
}

// QueryAll walks every page of a query and returns the combined records.
// Queries with no limit already return everything in one page; this helper is
// for sweeping a limited query to exhaustion.
func QueryAll(ctx context.Context, svc Service, tenant string, q Query) ([]*Record, error) {
	var all []*Record
	for {
		page, err := svc.QueryMessages(ctx, QueryMessagesRequest{Tenant: tenant, Query: q})
		if err != nil {
			return nil, err
		}
		all = append(all, page.Records...)
		if page.Cursor == "" {
			return all, nil
		}
		q.Cursor = page.Cursor
	}
}

// CopyData streams an externally stored payload into w and returns the byte
// count copied.
func CopyData(ctx context.Context, svc Service, tenant, recordID, dataID string, w io.Writer) (int64, error) {
	rc, err := svc.GetData(ctx, tenant, recordID, dataID)
	if err != nil {
		return 0, err
	}
	defer rc.Close()
	return io.Copy(w, rc)
}
