// Package memory provides an in-memory record store, useful for tests and
// development. It implements the same observable contract as the DynamoDB
// store: content-addressed writes, sparse sort indexes, and cursor
// pagination.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tendant/message-store/pkg/messagestore"
)

// Store implements messagestore.Store using in-memory storage
type Store struct {
	mu        sync.RWMutex
	open      bool
	tenants   map[string]map[string]*messagestore.PreparedRecord // tenant -> cid -> record
	project   messagestore.ProjectFunc
	maxInline int
}

// Option configures the in-memory store
type Option func(*Store)

// WithProjector overrides the default index projector
func WithProjector(p messagestore.ProjectFunc) Option {
	return func(s *Store) {
		s.project = p
	}
}

// WithMaxInlineSize sets the store's inline limit. A limit <= 0 sends every
// payload to external storage.
func WithMaxInlineSize(n int) Option {
	return func(s *Store) {
		s.maxInline = n
	}
}

// New creates a new in-memory record store
func New(opts ...Option) messagestore.Store {
	s := &Store{
		tenants:   make(map[string]map[string]*messagestore.PreparedRecord),
		project:   messagestore.ProjectIndexes,
		maxInline: messagestore.DefaultMaxInlineSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Lifecycle

func (s *Store) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = true
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
	return nil
}

// Record operations

func (s *Store) Put(ctx context.Context, tenant string, msg messagestore.Message, indexes map[string]any, opts ...messagestore.PutOption) (*messagestore.PutResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return nil, messagestore.ErrNotOpen
	}

	limit := s.maxInline
	if po := messagestore.ApplyPutOptions(opts); po.MaxInlineSize != nil {
		limit = *po.MaxInlineSize
	}

	prepared, err := messagestore.PrepareRecord(tenant, msg, indexes, s.project, limit)
	if err != nil {
		return nil, err
	}

	records, ok := s.tenants[tenant]
	if !ok {
		records = make(map[string]*messagestore.PreparedRecord)
		s.tenants[tenant] = records
	}
	// Store a copy so later caller mutations cannot reach stored state.
	records[prepared.ContentID] = prepared.Clone()

	return &messagestore.PutResult{
		ContentID:   prepared.ContentID,
		DataID:      prepared.DataID,
		DataSize:    int64(len(prepared.Data)),
		DataInlined: prepared.Inline,
	}, nil
}

func (s *Store) Get(ctx context.Context, tenant, contentID string) (*messagestore.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if tenant == "" {
		return nil, fmt.Errorf("tenant is required")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.open {
		return nil, messagestore.ErrNotOpen
	}

	prepared, ok := s.tenants[tenant][contentID]
	if !ok {
		return nil, nil
	}
	return prepared.Clone().Record()
}

func (s *Store) Query(ctx context.Context, tenant string, q messagestore.Query) (*messagestore.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if tenant == "" {
		return nil, fmt.Errorf("tenant is required")
	}

	q = q.Normalized()
	var after *messagestore.CursorPosition
	if q.Cursor != "" {
		pos, err := messagestore.DecodeCursor(q.Cursor, tenant, q)
		if err != nil {
			return nil, err
		}
		after = pos
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.open {
		return nil, messagestore.ErrNotOpen
	}

	field := string(q.SortBy)
	desc := q.Direction == messagestore.SortDescending

	// Records without the sort attribute are not in that sort's index.
	type entry struct {
		sortVal string
		rec     *messagestore.PreparedRecord
	}
	var entries []entry
	for _, rec := range s.tenants[tenant] {
		val, ok := rec.Direct[field]
		if !ok {
			continue
		}
		entries = append(entries, entry{sortVal: val, rec: rec})
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.sortVal != b.sortVal {
			if desc {
				return a.sortVal > b.sortVal
			}
			return a.sortVal < b.sortVal
		}
		if desc {
			return a.rec.ContentID > b.rec.ContentID
		}
		return a.rec.ContentID < b.rec.ContentID
	})

	want := 0
	if q.Limit > 0 {
		want = q.Limit + 1
	}
	var matched []entry
	for _, e := range entries {
		if after != nil && !strictlyAfter(e.sortVal, e.rec.ContentID, after, desc) {
			continue
		}
		if !messagestore.MatchesFilters(q.Filters, e.rec.Direct, e.rec.Tags) {
			continue
		}
		matched = append(matched, e)
		if want > 0 && len(matched) == want {
			break
		}
	}

	page := &messagestore.Page{Records: make([]*messagestore.Record, 0, len(matched))}
	more := q.Limit > 0 && len(matched) > q.Limit
	if more {
		matched = matched[:q.Limit]
	}
	for _, e := range matched {
		rec, err := e.rec.Clone().Record()
		if err != nil {
			return nil, err
		}
		page.Records = append(page.Records, rec)
	}
	if more {
		last := matched[len(matched)-1]
		token, err := messagestore.EncodeCursor(tenant, q, messagestore.CursorPosition{
			ContentID: last.rec.ContentID,
			SortValue: last.sortVal,
		})
		if err != nil {
			return nil, err
		}
		page.Cursor = token
	}
	return page, nil
}

func (s *Store) Delete(ctx context.Context, tenant, contentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if tenant == "" {
		return fmt.Errorf("tenant is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return messagestore.ErrNotOpen
	}

	delete(s.tenants[tenant], contentID)
	return nil
}

func (s *Store) ClearTenant(ctx context.Context, tenant string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if tenant == "" {
		return fmt.Errorf("tenant is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return messagestore.ErrNotOpen
	}

	delete(s.tenants, tenant)
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return messagestore.ErrNotOpen
	}

	s.tenants = make(map[string]map[string]*messagestore.PreparedRecord)
	return nil
}

// strictlyAfter reports whether (sortVal, cid) comes after the cursor
// position in the query's total order.
func strictlyAfter(sortVal, cid string, pos *messagestore.CursorPosition, desc bool) bool {
	if sortVal != pos.SortValue {
		if desc {
			return sortVal < pos.SortValue
		}
		return sortVal > pos.SortValue
	}
	if desc {
		return cid < pos.ContentID
	}
	return cid > pos.ContentID
}
