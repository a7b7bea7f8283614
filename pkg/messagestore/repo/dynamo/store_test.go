package dynamo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/message-store/pkg/messagestore"
)

func newTestStore(t *testing.T, f *fakeClient) messagestore.Store {
	t.Helper()
	st, err := NewFromClient(f, "messages", WithCreateTableTimeout(5*time.Second))
	require.NoError(t, err)
	require.NoError(t, st.Open(context.Background()))
	return st
}

// seedRecords writes n records with distinct, increasing message timestamps
// and returns their content ids in timestamp order. match decides which
// records get method "match" instead of "noise".
func seedRecords(t *testing.T, st messagestore.Store, tenant string, n int, match func(i int) bool) []string {
	t.Helper()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	cids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		method := "noise"
		if match != nil && match(i) {
			method = "match"
		}
		msg := messagestore.Message{Envelope: fmt.Appendf(nil, `{"tenant":%q,"seq":%d}`, tenant, i)}
		res, err := st.Put(context.Background(), tenant, msg, map[string]any{
			"messageTimestamp": base.Add(time.Duration(i) * time.Minute),
			"method":           method,
		})
		require.NoError(t, err)
		cids = append(cids, res.ContentID)
	}
	return cids
}

func sweepQuery(t *testing.T, st messagestore.Store, tenant string, q messagestore.Query) []*messagestore.Record {
	t.Helper()
	var all []*messagestore.Record
	for {
		page, err := st.Query(context.Background(), tenant, q)
		require.NoError(t, err)
		all = append(all, page.Records...)
		if page.Cursor == "" {
			return all
		}
		q.Cursor = page.Cursor
	}
}

func TestNewFromClient(t *testing.T) {
	t.Run("ClientRequired", func(t *testing.T) {
		_, err := NewFromClient(nil, "messages")
		assert.Error(t, err)
	})

	t.Run("TableNameRequired", func(t *testing.T) {
		_, err := NewFromClient(newFakeClient(), "")
		assert.Error(t, err)
	})
}

func TestDynamoStore_Open(t *testing.T) {
	ctx := context.Background()

	t.Run("TableAlreadyExists", func(t *testing.T) {
		f := newFakeClient()
		f.exists = true
		st, err := NewFromClient(f, "messages")
		require.NoError(t, err)
		require.NoError(t, st.Open(ctx))
		assert.Equal(t, 0, f.createCalls)
	})

	t.Run("CreatesMissingTable", func(t *testing.T) {
		f := newFakeClient()
		st, err := NewFromClient(f, "messages", WithCreateTableTimeout(5*time.Second))
		require.NoError(t, err)
		require.NoError(t, st.Open(ctx))
		assert.Equal(t, 1, f.createCalls)
	})

	t.Run("LosesCreationRace", func(t *testing.T) {
		f := newFakeClient()
		f.createInUse = true
		st, err := NewFromClient(f, "messages", WithCreateTableTimeout(5*time.Second))
		require.NoError(t, err)
		assert.NoError(t, st.Open(ctx))
	})

	t.Run("OpenIsIdempotent", func(t *testing.T) {
		f := newFakeClient()
		st, err := NewFromClient(f, "messages", WithCreateTableTimeout(5*time.Second))
		require.NoError(t, err)
		require.NoError(t, st.Open(ctx))
		require.NoError(t, st.Open(ctx))
		assert.Equal(t, 1, f.createCalls)
	})

	t.Run("OperationsBeforeOpen", func(t *testing.T) {
		st, err := NewFromClient(newFakeClient(), "messages")
		require.NoError(t, err)
		_, err = st.Get(ctx, "did:example:alice", "abc")
		assert.ErrorIs(t, err, messagestore.ErrNotOpen)
	})

	t.Run("OperationsAfterClose", func(t *testing.T) {
		f := newFakeClient()
		f.exists = true
		st, err := NewFromClient(f, "messages")
		require.NoError(t, err)
		require.NoError(t, st.Open(ctx))
		require.NoError(t, st.Close(ctx))
		_, err = st.Get(ctx, "did:example:alice", "abc")
		assert.ErrorIs(t, err, messagestore.ErrNotOpen)
	})
}

func TestDynamoStore_PutGet(t *testing.T) {
	ctx := context.Background()
	tenant := "did:example:alice"

	t.Run("ItemLayout", func(t *testing.T) {
		f := newFakeClient()
		st := newTestStore(t, f)

		res, err := st.Put(ctx, tenant, messagestore.Message{
			Envelope: json.RawMessage(`{"kind":"note"}`),
			Data:     []byte("hello world"),
		}, map[string]any{
			"method": "RecordsWrite",
			"labels": []string{"draft", "shared"},
		})
		require.NoError(t, err)
		require.True(t, res.DataInlined)

		raw := f.item(tenant, res.ContentID)
		require.NotNil(t, raw)

		assert.Equal(t, &types.AttributeValueMemberS{Value: tenant}, raw[messagestore.AttrTenant])
		assert.Equal(t, &types.AttributeValueMemberS{Value: res.ContentID}, raw[messagestore.AttrCID])
		assert.IsType(t, &types.AttributeValueMemberB{}, raw[messagestore.AttrMessage])

		// Scalar index attributes sit at the top level so the sort
		// indexes can key on them.
		assert.Equal(t, &types.AttributeValueMemberS{Value: "RecordsWrite"}, raw["method"])

		tags, ok := raw[messagestore.AttrTags].(*types.AttributeValueMemberM)
		require.True(t, ok)
		labels, ok := tags.Value["labels"].(*types.AttributeValueMemberL)
		require.True(t, ok)
		assert.Len(t, labels.Value, 2)

		assert.Equal(t, &types.AttributeValueMemberS{Value: res.DataID}, raw[messagestore.AttrDataID])
		assert.IsType(t, &types.AttributeValueMemberB{}, raw[messagestore.AttrData])
	})

	t.Run("ExternalPayloadLeavesNoDataAttribute", func(t *testing.T) {
		f := newFakeClient()
		st := newTestStore(t, f)

		res, err := st.Put(ctx, tenant, messagestore.Message{
			Envelope: json.RawMessage(`{"kind":"note"}`),
			Data:     []byte("hello world"),
		}, nil, messagestore.WithMaxInlineSize(4))
		require.NoError(t, err)
		require.False(t, res.DataInlined)

		raw := f.item(tenant, res.ContentID)
		require.NotNil(t, raw)
		_, hasData := raw[messagestore.AttrData]
		assert.False(t, hasData)
		assert.Equal(t, &types.AttributeValueMemberS{Value: res.DataID}, raw[messagestore.AttrDataID])

		rec, err := st.Get(ctx, tenant, res.ContentID)
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.False(t, rec.DataInlined)
		assert.Nil(t, rec.Message.Data)
		assert.Equal(t, res.DataID, rec.DataID)
	})

	t.Run("RoundTrip", func(t *testing.T) {
		f := newFakeClient()
		st := newTestStore(t, f)

		res, err := st.Put(ctx, tenant, messagestore.Message{
			Envelope: json.RawMessage(`{"kind":"note","seq":1}`),
			Data:     []byte("inline payload"),
		}, map[string]any{
			"method": "RecordsWrite",
			"labels": []string{"draft"},
		})
		require.NoError(t, err)

		rec, err := st.Get(ctx, tenant, res.ContentID)
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, tenant, rec.Tenant)
		assert.Equal(t, res.ContentID, rec.ContentID)
		assert.JSONEq(t, `{"kind":"note","seq":1}`, string(rec.Message.Envelope))
		assert.Equal(t, []byte("inline payload"), rec.Message.Data)
		assert.True(t, rec.DataInlined)
		assert.Equal(t, "RecordsWrite", rec.Indexes["method"])
		assert.Equal(t, []string{"draft"}, rec.Tags["labels"])
	})

	t.Run("Miss", func(t *testing.T) {
		st := newTestStore(t, newFakeClient())
		rec, err := st.Get(ctx, tenant, "does-not-exist")
		assert.NoError(t, err)
		assert.Nil(t, rec)
	})

	t.Run("Delete", func(t *testing.T) {
		f := newFakeClient()
		st := newTestStore(t, f)
		cids := seedRecords(t, st, tenant, 1, nil)

		require.NoError(t, st.Delete(ctx, tenant, cids[0]))
		assert.Equal(t, 0, f.count())

		// Absent records delete without error.
		assert.NoError(t, st.Delete(ctx, tenant, cids[0]))
	})
}

func TestDynamoStore_Query(t *testing.T) {
	ctx := context.Background()
	tenant := "did:example:alice"

	t.Run("FillsPageAcrossWindows", func(t *testing.T) {
		f := newFakeClient()
		st := newTestStore(t, f)
		cids := seedRecords(t, st, tenant, 200, func(i int) bool { return i%10 == 0 })

		q := messagestore.Query{
			Filters: []messagestore.Filter{{"method": "match"}},
			SortBy:  messagestore.SortMessageTimestamp,
			Limit:   8,
		}
		page, err := st.Query(ctx, tenant, q)
		require.NoError(t, err)
		require.Len(t, page.Records, 8)
		require.NotEmpty(t, page.Cursor)

		// The first window holds only 7 matches, so a second, doubled
		// window is read before the page is full.
		assert.Equal(t, 2, f.queryCalls)
		assert.Equal(t, []int32{64, 128}, f.queryLimits)

		for i, rec := range page.Records {
			assert.Equal(t, cids[i*10], rec.ContentID)
		}

		q.Cursor = page.Cursor
		rest := sweepQuery(t, st, tenant, q)
		assert.Len(t, rest, 12)
		for i, rec := range rest {
			assert.Equal(t, cids[(8+i)*10], rec.ContentID)
			assert.Equal(t, "match", rec.Indexes["method"])
		}
	})

	t.Run("UnboundedQueryFollowsPageCap", func(t *testing.T) {
		f := newFakeClient()
		f.pageMax = 30
		st := newTestStore(t, f)
		cids := seedRecords(t, st, tenant, 75, nil)

		page, err := st.Query(ctx, tenant, messagestore.Query{SortBy: messagestore.SortMessageTimestamp})
		require.NoError(t, err)
		require.Len(t, page.Records, 75)
		assert.Empty(t, page.Cursor)
		assert.Equal(t, 3, f.queryCalls)

		for i, rec := range page.Records {
			assert.Equal(t, cids[i], rec.ContentID)
		}
	})

	t.Run("DescendingWithCursor", func(t *testing.T) {
		f := newFakeClient()
		st := newTestStore(t, f)
		cids := seedRecords(t, st, tenant, 5, nil)

		records := sweepQuery(t, st, tenant, messagestore.Query{
			SortBy:    messagestore.SortMessageTimestamp,
			Direction: messagestore.SortDescending,
			Limit:     2,
		})
		require.Len(t, records, 5)
		for i, rec := range records {
			assert.Equal(t, cids[len(cids)-1-i], rec.ContentID)
		}
	})

	t.Run("SparseIndex", func(t *testing.T) {
		f := newFakeClient()
		st := newTestStore(t, f)

		res, err := st.Put(ctx, tenant, messagestore.Message{Envelope: json.RawMessage(`{"kind":"undated"}`)}, map[string]any{
			"dateCreated": time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
		seedRecords(t, st, tenant, 2, nil)

		page, err := st.Query(ctx, tenant, messagestore.Query{SortBy: messagestore.SortMessageTimestamp})
		require.NoError(t, err)
		assert.Len(t, page.Records, 2)

		page, err = st.Query(ctx, tenant, messagestore.Query{SortBy: messagestore.SortDateCreated})
		require.NoError(t, err)
		require.Len(t, page.Records, 1)
		assert.Equal(t, res.ContentID, page.Records[0].ContentID)
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		f := newFakeClient()
		st := newTestStore(t, f)
		seedRecords(t, st, tenant, 3, nil)
		seedRecords(t, st, "did:example:bob", 2, nil)

		page, err := st.Query(ctx, tenant, messagestore.Query{SortBy: messagestore.SortMessageTimestamp})
		require.NoError(t, err)
		assert.Len(t, page.Records, 3)
		for _, rec := range page.Records {
			assert.Equal(t, tenant, rec.Tenant)
		}
	})

	t.Run("CursorMismatch", func(t *testing.T) {
		f := newFakeClient()
		st := newTestStore(t, f)
		seedRecords(t, st, tenant, 3, nil)

		q := messagestore.Query{SortBy: messagestore.SortMessageTimestamp, Limit: 1}
		page, err := st.Query(ctx, tenant, q)
		require.NoError(t, err)
		require.NotEmpty(t, page.Cursor)

		q.SortBy = messagestore.SortDateCreated
		q.Cursor = page.Cursor
		_, err = st.Query(ctx, tenant, q)
		assert.ErrorIs(t, err, messagestore.ErrCursorMismatch)
	})

	t.Run("InvalidCursor", func(t *testing.T) {
		st := newTestStore(t, newFakeClient())
		_, err := st.Query(ctx, tenant, messagestore.Query{Cursor: "????"})
		assert.ErrorIs(t, err, messagestore.ErrInvalidCursor)
	})

	t.Run("BackendError", func(t *testing.T) {
		f := newFakeClient()
		st := newTestStore(t, f)
		f.queryErr = errors.New("throttled")

		_, err := st.Query(ctx, tenant, messagestore.Query{})
		var storeErr *messagestore.StoreError
		require.ErrorAs(t, err, &storeErr)
		assert.Equal(t, "query", storeErr.Op)
	})

	t.Run("TenantRequired", func(t *testing.T) {
		st := newTestStore(t, newFakeClient())
		_, err := st.Query(ctx, "", messagestore.Query{})
		assert.Error(t, err)
	})
}

func TestDynamoStore_ClearTenant(t *testing.T) {
	ctx := context.Background()

	t.Run("DeletesOnlyTheTenant", func(t *testing.T) {
		f := newFakeClient()
		f.pageMax = 25
		st := newTestStore(t, f)
		seedRecords(t, st, "did:example:alice", 60, nil)
		seedRecords(t, st, "did:example:bob", 5, nil)
		f.resetCounters()

		require.NoError(t, st.ClearTenant(ctx, "did:example:alice"))
		assert.Equal(t, 5, f.count())
		assert.GreaterOrEqual(t, f.batchCalls, 3)
	})

	t.Run("RetriesUnprocessedDeletes", func(t *testing.T) {
		f := newFakeClient()
		st := newTestStore(t, f)
		seedRecords(t, st, "did:example:alice", 20, nil)
		f.resetCounters()
		f.unprocessedOnce = true

		require.NoError(t, st.ClearTenant(ctx, "did:example:alice"))
		assert.Equal(t, 0, f.count())
		assert.Equal(t, 2, f.batchCalls)
	})

	t.Run("ResumesAfterMidLoopFailure", func(t *testing.T) {
		f := newFakeClient()
		f.pageMax = 25
		st := newTestStore(t, f)
		seedRecords(t, st, "did:example:alice", 60, nil)
		f.resetCounters()
		f.batchFailAt = 2

		err := st.ClearTenant(ctx, "did:example:alice")
		var storeErr *messagestore.StoreError
		require.ErrorAs(t, err, &storeErr)
		// The page deleted before the failure stays deleted.
		assert.Equal(t, 35, f.count())

		require.NoError(t, st.ClearTenant(ctx, "did:example:alice"))
		assert.Equal(t, 0, f.count())
	})

	t.Run("TenantRequired", func(t *testing.T) {
		st := newTestStore(t, newFakeClient())
		assert.Error(t, st.ClearTenant(ctx, ""))
	})
}

func TestDynamoStore_Clear(t *testing.T) {
	ctx := context.Background()

	f := newFakeClient()
	f.pageMax = 25
	st := newTestStore(t, f)
	seedRecords(t, st, "did:example:alice", 30, nil)
	seedRecords(t, st, "did:example:bob", 30, nil)
	f.resetCounters()

	require.NoError(t, st.Clear(ctx))
	assert.Equal(t, 0, f.count())
	assert.Equal(t, 3, f.scanCalls)
}

func TestWindowSize(t *testing.T) {
	tests := []struct {
		name     string
		limit    int
		filtered bool
		want     int32
	}{
		{"unbounded uses the max window", 0, false, maxWindow},
		{"unfiltered fetches one page worth", 5, false, 6},
		{"filtered enforces the floor", 5, true, minFilteredWindow},
		{"large filtered limit passes through", 500, true, 501},
		{"window never exceeds the max", 5000, true, maxWindow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, windowSize(tt.limit, tt.filtered))
		})
	}
}
