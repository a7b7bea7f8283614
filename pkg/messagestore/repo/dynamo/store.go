// Package dynamo provides a DynamoDB-backed record store.
//
// Records live in a single table keyed by (tenant, cid) with one global
// secondary index per sort field. The sort attributes are optional on each
// item, so every index is sparse: a record appears in a sort order only when
// it was written with that attribute.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/tendant/message-store/pkg/messagestore"
)

const defaultCreateTimeout = 2 * time.Minute

var sortFields = []messagestore.SortField{
	messagestore.SortDateCreated,
	messagestore.SortDatePublished,
	messagestore.SortMessageTimestamp,
}

func indexNameFor(field messagestore.SortField) string {
	return string(field) + "-index"
}

// Config options for the DynamoDB store
type Config struct {
	TableName       string // DynamoDB table name
	Region          string // AWS region
	AccessKeyID     string // AWS access key ID
	SecretAccessKey string // AWS secret access key
	Endpoint        string // Optional custom endpoint (DynamoDB Local, LocalStack)
}

// Store implements messagestore.Store on DynamoDB
type Store struct {
	client        Client
	table         string
	open          atomic.Bool
	project       messagestore.ProjectFunc
	maxInline     int
	createTimeout time.Duration
	logger        *slog.Logger
}

// Option configures the DynamoDB store
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

// WithLogger sets the logger for the store
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithCreateTableTimeout bounds how long Open waits for a newly created
// table to become active
func WithCreateTableTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.createTimeout = d
	}
}

// New creates a DynamoDB record store with its own client
func New(config Config, opts ...Option) (messagestore.Store, error) {
	if config.TableName == "" {
		return nil, errors.New("table name is required")
	}
	if config.Region == "" {
		config.Region = "us-east-1"
	}

	var awsCfg aws.Config
	var err error
	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(config.Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				config.AccessKeyID,
				config.SecretAccessKey,
				"",
			)),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(config.Region),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var ddbOptions []func(*dynamodb.Options)
	if config.Endpoint != "" {
		ddbOptions = append(ddbOptions, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
		})
	}

	return NewFromClient(dynamodb.NewFromConfig(awsCfg, ddbOptions...), config.TableName, opts...)
}

// NewFromClient creates a store around an existing client. The client is
// shared, not owned: Close stops the store but leaves the client untouched.
func NewFromClient(client Client, tableName string, opts ...Option) (messagestore.Store, error) {
	if client == nil {
		return nil, errors.New("client is required")
	}
	if tableName == "" {
		return nil, errors.New("table name is required")
	}
	s := &Store{
		client:        client,
		table:         tableName,
		project:       messagestore.ProjectIndexes,
		maxInline:     messagestore.DefaultMaxInlineSize,
		createTimeout: defaultCreateTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s, nil
}

// Lifecycle

// Open verifies the table exists, creating it (with all sort indexes) when it
// does not. Open is idempotent and safe to race from several processes.
func (s *Store) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.open.Load() {
		return nil
	}

	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.table),
	})
	if err == nil {
		s.open.Store(true)
		return nil
	}
	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return &messagestore.StoreError{Op: "open", Err: err}
	}

	s.logger.Info("creating table", "table", s.table)
	if _, err := s.client.CreateTable(ctx, s.createTableInput()); err != nil {
		var inUse *types.ResourceInUseException
		if !errors.As(err, &inUse) {
			return &messagestore.StoreError{Op: "open", Err: err}
		}
		// Another process won the create race; wait for its table.
	}

	waiter := dynamodb.NewTableExistsWaiter(s.client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)}, s.createTimeout); err != nil {
		return &messagestore.StoreError{Op: "open", Err: err}
	}
	s.open.Store(true)
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.open.Store(false)
	return nil
}

func (s *Store) createTableInput() *dynamodb.CreateTableInput {
	attrs := []types.AttributeDefinition{
		{AttributeName: aws.String(messagestore.AttrTenant), AttributeType: types.ScalarAttributeTypeS},
		{AttributeName: aws.String(messagestore.AttrCID), AttributeType: types.ScalarAttributeTypeS},
	}
	var gsis []types.GlobalSecondaryIndex
	for _, field := range sortFields {
		attrs = append(attrs, types.AttributeDefinition{
			AttributeName: aws.String(string(field)),
			AttributeType: types.ScalarAttributeTypeS,
		})
		gsis = append(gsis, types.GlobalSecondaryIndex{
			IndexName: aws.String(indexNameFor(field)),
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String(messagestore.AttrTenant), KeyType: types.KeyTypeHash},
				{AttributeName: aws.String(string(field)), KeyType: types.KeyTypeRange},
			},
			Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
		})
	}
	return &dynamodb.CreateTableInput{
		TableName:            aws.String(s.table),
		AttributeDefinitions: attrs,
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(messagestore.AttrTenant), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String(messagestore.AttrCID), KeyType: types.KeyTypeRange},
		},
		GlobalSecondaryIndexes: gsis,
		BillingMode:            types.BillingModePayPerRequest,
	}
}

// Record operations

func (s *Store) Put(ctx context.Context, tenant string, msg messagestore.Message, indexes map[string]any, opts ...messagestore.PutOption) (*messagestore.PutResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !s.open.Load() {
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
	item, err := marshalItem(prepared)
	if err != nil {
		return nil, &messagestore.StoreError{Op: "put", Tenant: tenant, Key: prepared.ContentID, Err: err}
	}

	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	}); err != nil {
		return nil, &messagestore.StoreError{Op: "put", Tenant: tenant, Key: prepared.ContentID, Err: err}
	}

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
	if !s.open.Load() {
		return nil, messagestore.ErrNotOpen
	}
	if tenant == "" {
		return nil, fmt.Errorf("tenant is required")
	}

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            itemKey(tenant, contentID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, &messagestore.StoreError{Op: "get", Tenant: tenant, Key: contentID, Err: err}
	}
	if len(out.Item) == 0 {
		return nil, nil
	}

	prepared, err := unmarshalItem(out.Item)
	if err != nil {
		return nil, err
	}
	return prepared.Record()
}

func (s *Store) Delete(ctx context.Context, tenant, contentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.open.Load() {
		return messagestore.ErrNotOpen
	}
	if tenant == "" {
		return fmt.Errorf("tenant is required")
	}

	if _, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       itemKey(tenant, contentID),
	}); err != nil {
		return &messagestore.StoreError{Op: "delete", Tenant: tenant, Key: contentID, Err: err}
	}
	return nil
}
