package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/tendant/message-store/pkg/messagestore"
)

// Query window sizing. Filtering happens client-side, so a window can
// under-fill a page; windows start near the page size and grow when most of
// a window gets filtered away.
const (
	minFilteredWindow = 64
	maxWindow         = 1000
)

func windowSize(limit int, filtered bool) int32 {
	if limit <= 0 {
		return maxWindow
	}
	w := limit + 1
	if filtered && w < minFilteredWindow {
		w = minFilteredWindow
	}
	if w > maxWindow {
		w = maxWindow
	}
	return int32(w)
}

// Query accumulates matching records across as many index windows as it
// takes to fill the page or exhaust the tenant's index. One window is never
// trusted to satisfy the query: filters drop records after the read, so the
// loop keeps reading from the last evaluated key until it has limit+1
// matches (the extra one proves there is a next page) or runs out of
// records.
func (s *Store) Query(ctx context.Context, tenant string, q messagestore.Query) (*messagestore.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !s.open.Load() {
		return nil, messagestore.ErrNotOpen
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

	field := string(q.SortBy)
	desc := q.Direction == messagestore.SortDescending
	want := 0
	if q.Limit > 0 {
		want = q.Limit + 1
	}
	window := windowSize(q.Limit, len(q.Filters) > 0)

	type match struct {
		rec     *messagestore.Record
		sortVal string
	}
	var matched []match
	startKey := resumeKey(tenant, field, after)

	for {
		out, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.table),
			IndexName:              aws.String(indexNameFor(q.SortBy)),
			KeyConditionExpression: aws.String("#tenant = :tenant"),
			ExpressionAttributeNames: map[string]string{
				"#tenant": messagestore.AttrTenant,
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":tenant": &types.AttributeValueMemberS{Value: tenant},
			},
			ScanIndexForward:  aws.Bool(!desc),
			Limit:             aws.Int32(window),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, &messagestore.StoreError{Op: "query", Tenant: tenant, Err: err}
		}

		kept := 0
		satisfied := false
		for _, item := range out.Items {
			prepared, err := unmarshalItem(item)
			if err != nil {
				return nil, err
			}
			if !messagestore.MatchesFilters(q.Filters, prepared.Direct, prepared.Tags) {
				continue
			}
			rec, err := prepared.Record()
			if err != nil {
				return nil, err
			}
			matched = append(matched, match{rec: rec, sortVal: prepared.Direct[field]})
			kept++
			if want > 0 && len(matched) == want {
				satisfied = true
				break
			}
		}
		if satisfied || len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
		if kept*2 < len(out.Items) && window < maxWindow {
			window = min(window*2, maxWindow)
			s.logger.Debug("widening query window",
				"tenant", tenant, "sort", field, "window", window)
		}
	}

	more := want > 0 && len(matched) == want
	if more {
		matched = matched[:q.Limit]
	}
	page := &messagestore.Page{Records: make([]*messagestore.Record, 0, len(matched))}
	for _, m := range matched {
		page.Records = append(page.Records, m.rec)
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

// resumeKey rebuilds the physical start position for a cursor. A query
// against a secondary index needs the index keys and the table keys in its
// exclusive start key; the partition key is shared, so that is the tenant,
// the sort attribute, and the cid.
func resumeKey(tenant, field string, after *messagestore.CursorPosition) map[string]types.AttributeValue {
	if after == nil {
		return nil
	}
	return map[string]types.AttributeValue{
		messagestore.AttrTenant: &types.AttributeValueMemberS{Value: tenant},
		messagestore.AttrCID:    &types.AttributeValueMemberS{Value: after.ContentID},
		field:                   &types.AttributeValueMemberS{Value: after.SortValue},
	}
}
