package dynamo

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/tendant/message-store/pkg/messagestore"
)

// fakeClient implements Client over an in-memory item map with the service's
// windowing behavior: Limit, ExclusiveStartKey, and LastEvaluatedKey act like
// the real thing, sparse index queries skip items without the sort attribute,
// and pageMax stands in for the response size cap by truncating pages below
// the requested limit.
type fakeClient struct {
	mu     sync.Mutex
	exists bool
	items  map[string]map[string]types.AttributeValue

	pageMax int // max items per Query/Scan page, 0 means no cap

	createInUse     bool  // CreateTable loses the creation race
	queryErr        error // injected Query failure
	unprocessedOnce bool  // next BatchWriteItem leaves half its requests unprocessed
	batchFailAt     int   // BatchWriteItem call number that fails, 0 disables

	createCalls int
	queryCalls  int
	scanCalls   int
	batchCalls  int
	queryLimits []int32
}

func newFakeClient() *fakeClient {
	return &fakeClient{items: make(map[string]map[string]types.AttributeValue)}
}

func fakeKey(tenant, cid string) string {
	return tenant + "\x00" + cid
}

func attrString(item map[string]types.AttributeValue, name string) string {
	if s, ok := item[name].(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func (f *fakeClient) item(tenant, cid string) map[string]types.AttributeValue {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[fakeKey(tenant, cid)]
}

func (f *fakeClient) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

func (f *fakeClient) resetCounters() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls, f.queryCalls, f.scanCalls, f.batchCalls = 0, 0, 0, 0
	f.queryLimits = nil
}

func (f *fakeClient) DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.exists {
		return nil, &types.ResourceNotFoundException{}
	}
	return &dynamodb.DescribeTableOutput{
		Table: &types.TableDescription{
			TableName:   params.TableName,
			TableStatus: types.TableStatusActive,
		},
	}, nil
}

func (f *fakeClient) CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	f.exists = true
	if f.createInUse {
		return nil, &types.ResourceInUseException{}
	}
	return &dynamodb.CreateTableOutput{}, nil
}

func (f *fakeClient) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item := make(map[string]types.AttributeValue, len(params.Item))
	for k, v := range params.Item {
		item[k] = v
	}
	f.items[fakeKey(attrString(item, messagestore.AttrTenant), attrString(item, messagestore.AttrCID))] = item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeClient) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fakeKey(attrString(params.Key, messagestore.AttrTenant), attrString(params.Key, messagestore.AttrCID))
	item, ok := f.items[key]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return &dynamodb.GetItemOutput{Item: out}, nil
}

func (f *fakeClient) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, fakeKey(attrString(params.Key, messagestore.AttrTenant), attrString(params.Key, messagestore.AttrCID)))
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeClient) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryCalls++
	if params.Limit != nil {
		f.queryLimits = append(f.queryLimits, *params.Limit)
	}
	if f.queryErr != nil {
		return nil, f.queryErr
	}

	tenant := ""
	if v, ok := params.ExpressionAttributeValues[":tenant"].(*types.AttributeValueMemberS); ok {
		tenant = v.Value
	}
	sortAttr := ""
	if params.IndexName != nil {
		sortAttr = strings.TrimSuffix(*params.IndexName, "-index")
	}
	desc := params.ScanIndexForward != nil && !*params.ScanIndexForward

	var rows []map[string]types.AttributeValue
	for _, item := range f.items {
		if attrString(item, messagestore.AttrTenant) != tenant {
			continue
		}
		if sortAttr != "" {
			if _, ok := item[sortAttr]; !ok {
				continue
			}
		}
		rows = append(rows, item)
	}
	sortRows(rows, sortAttr, desc)
	rows = afterKey(rows, params.ExclusiveStartKey, sortAttr, desc)

	items, lastKey := f.page(rows, params.Limit, sortAttr, params.ProjectionExpression)
	return &dynamodb.QueryOutput{Items: items, LastEvaluatedKey: lastKey}, nil
}

func (f *fakeClient) Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scanCalls++

	rows := make([]map[string]types.AttributeValue, 0, len(f.items))
	for _, item := range f.items {
		rows = append(rows, item)
	}
	sortRows(rows, "", false)
	rows = afterKey(rows, params.ExclusiveStartKey, "", false)

	items, lastKey := f.page(rows, params.Limit, "", params.ProjectionExpression)
	return &dynamodb.ScanOutput{Items: items, LastEvaluatedKey: lastKey}, nil
}

func (f *fakeClient) BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchCalls++
	if f.batchFailAt > 0 && f.batchCalls == f.batchFailAt {
		return nil, fmt.Errorf("batch write rejected")
	}

	out := &dynamodb.BatchWriteItemOutput{}
	for table, requests := range params.RequestItems {
		if len(requests) > batchWriteMax {
			return nil, fmt.Errorf("batch of %d exceeds the %d request limit", len(requests), batchWriteMax)
		}
		done := requests
		if f.unprocessedOnce {
			f.unprocessedOnce = false
			half := len(requests) / 2
			done = requests[:half]
			out.UnprocessedItems = map[string][]types.WriteRequest{table: requests[half:]}
		}
		for _, req := range done {
			if req.DeleteRequest != nil {
				key := req.DeleteRequest.Key
				delete(f.items, fakeKey(attrString(key, messagestore.AttrTenant), attrString(key, messagestore.AttrCID)))
			}
		}
	}
	return out, nil
}

// page cuts one response out of the ordered rows and, when rows remain
// beyond it, returns the last returned row's key attributes.
func (f *fakeClient) page(rows []map[string]types.AttributeValue, limit *int32, sortAttr string, projection *string) ([]map[string]types.AttributeValue, map[string]types.AttributeValue) {
	n := len(rows)
	if limit != nil && int(*limit) < n {
		n = int(*limit)
	}
	if f.pageMax > 0 && f.pageMax < n {
		n = f.pageMax
	}

	items := make([]map[string]types.AttributeValue, 0, n)
	for _, row := range rows[:n] {
		items = append(items, projectRow(row, projection))
	}
	if n == 0 || n == len(rows) {
		return items, nil
	}
	return items, rowKey(rows[n-1], sortAttr)
}

func projectRow(row map[string]types.AttributeValue, projection *string) map[string]types.AttributeValue {
	if projection == nil {
		out := make(map[string]types.AttributeValue, len(row))
		for k, v := range row {
			out[k] = v
		}
		return out
	}
	return map[string]types.AttributeValue{
		messagestore.AttrTenant: row[messagestore.AttrTenant],
		messagestore.AttrCID:    row[messagestore.AttrCID],
	}
}

func rowKey(row map[string]types.AttributeValue, sortAttr string) map[string]types.AttributeValue {
	key := map[string]types.AttributeValue{
		messagestore.AttrTenant: row[messagestore.AttrTenant],
		messagestore.AttrCID:    row[messagestore.AttrCID],
	}
	if sortAttr != "" {
		key[sortAttr] = row[sortAttr]
	}
	return key
}

func sortRows(rows []map[string]types.AttributeValue, sortAttr string, desc bool) {
	sort.Slice(rows, func(i, j int) bool {
		return rowLess(rows[i], rows[j], sortAttr, desc)
	})
}

func rowLess(a, b map[string]types.AttributeValue, sortAttr string, desc bool) bool {
	if sortAttr != "" {
		av, bv := attrString(a, sortAttr), attrString(b, sortAttr)
		if av != bv {
			if desc {
				return av > bv
			}
			return av < bv
		}
	}
	at, bt := attrString(a, messagestore.AttrTenant), attrString(b, messagestore.AttrTenant)
	if at != bt {
		return at < bt
	}
	ac, bc := attrString(a, messagestore.AttrCID), attrString(b, messagestore.AttrCID)
	if desc {
		return ac > bc
	}
	return ac < bc
}

// afterKey drops every row at or before the exclusive start key in the
// current order. Positioning is by key value, so rows deleted between pages
// do not disturb it.
func afterKey(rows []map[string]types.AttributeValue, key map[string]types.AttributeValue, sortAttr string, desc bool) []map[string]types.AttributeValue {
	if len(key) == 0 {
		return rows
	}
	for i, row := range rows {
		if rowLess(key, row, sortAttr, desc) {
			return rows[i:]
		}
	}
	return nil
}
