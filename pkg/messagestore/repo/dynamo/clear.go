package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/tendant/message-store/pkg/messagestore"
	"golang.org/x/sync/errgroup"
)

const (
	// DynamoDB caps BatchWriteItem at 25 requests.
	batchWriteMax = 25

	clearPageSize    = 500
	clearConcurrency = 4
	batchRetryMax    = 5
)

// ClearTenant walks the tenant's partition page by page, deleting as it
// goes. Interrupting it leaves already deleted pages deleted; running it
// again finishes the job.
func (s *Store) ClearTenant(ctx context.Context, tenant string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.open.Load() {
		return messagestore.ErrNotOpen
	}
	if tenant == "" {
		return fmt.Errorf("tenant is required")
	}

	var startKey map[string]types.AttributeValue
	for {
		out, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.table),
			KeyConditionExpression: aws.String("#tenant = :tenant"),
			ProjectionExpression:   aws.String("#tenant, #cid"),
			ExpressionAttributeNames: map[string]string{
				"#tenant": messagestore.AttrTenant,
				"#cid":    messagestore.AttrCID,
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":tenant": &types.AttributeValueMemberS{Value: tenant},
			},
			Limit:             aws.Int32(clearPageSize),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return &messagestore.StoreError{Op: "clearTenant", Tenant: tenant, Err: err}
		}
		if err := s.deleteKeys(ctx, "clearTenant", tenant, out.Items); err != nil {
			return err
		}
		if len(out.LastEvaluatedKey) == 0 {
			return nil
		}
		startKey = out.LastEvaluatedKey
	}
}

// Clear scans the whole table and deletes everything, with the same
// page-at-a-time resumability as ClearTenant.
func (s *Store) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.open.Load() {
		return messagestore.ErrNotOpen
	}

	var startKey map[string]types.AttributeValue
	for {
		out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:            aws.String(s.table),
			ProjectionExpression: aws.String("#tenant, #cid"),
			ExpressionAttributeNames: map[string]string{
				"#tenant": messagestore.AttrTenant,
				"#cid":    messagestore.AttrCID,
			},
			Limit:             aws.Int32(clearPageSize),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return &messagestore.StoreError{Op: "clear", Err: err}
		}
		if err := s.deleteKeys(ctx, "clear", "", out.Items); err != nil {
			return err
		}
		if len(out.LastEvaluatedKey) == 0 {
			return nil
		}
		startKey = out.LastEvaluatedKey
	}
}

// deleteKeys deletes one page of keys in 25-item batches, a few batches in
// flight at a time.
func (s *Store) deleteKeys(ctx context.Context, op, tenant string, keys []map[string]types.AttributeValue) error {
	if len(keys) == 0 {
		return nil
	}
	s.logger.Debug("deleting page", "op", op, "tenant", tenant, "keys", len(keys))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(clearConcurrency)
	for start := 0; start < len(keys); start += batchWriteMax {
		chunk := keys[start:min(start+batchWriteMax, len(keys))]
		g.Go(func() error {
			return s.batchDelete(ctx, op, tenant, chunk)
		})
	}
	return g.Wait()
}

// batchDelete issues one BatchWriteItem and retries whatever DynamoDB
// reports back as unprocessed.
func (s *Store) batchDelete(ctx context.Context, op, tenant string, keys []map[string]types.AttributeValue) error {
	requests := make([]types.WriteRequest, 0, len(keys))
	for _, key := range keys {
		requests = append(requests, types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{Key: key},
		})
	}
	for attempt := 0; len(requests) > 0; attempt++ {
		if attempt == batchRetryMax {
			return &messagestore.StoreError{
				Op:     op,
				Tenant: tenant,
				Err:    fmt.Errorf("%d deletes still unprocessed after %d attempts", len(requests), attempt),
			}
		}
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 50 * time.Millisecond):
			}
		}
		out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{s.table: requests},
		})
		if err != nil {
			return &messagestore.StoreError{Op: op, Tenant: tenant, Err: err}
		}
		requests = out.UnprocessedItems[s.table]
	}
	return nil
}
