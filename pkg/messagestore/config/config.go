// Package config wires record stores and blob stores together from plain
// configuration, suitable for loading from the environment.
package config

import (
	"errors"
	"fmt"

	"github.com/tendant/message-store/pkg/messagestore"
	"github.com/tendant/message-store/pkg/messagestore/repo/dynamo"
	repomemory "github.com/tendant/message-store/pkg/messagestore/repo/memory"
	fsstorage "github.com/tendant/message-store/pkg/messagestore/storage/fs"
	memorystorage "github.com/tendant/message-store/pkg/messagestore/storage/memory"
	s3storage "github.com/tendant/message-store/pkg/messagestore/storage/s3"
)

// Option applies configuration to a Config instance.
type Option func(*Config) error

// Load constructs a Config by applying the supplied options on top of
// library defaults.
func Load(opts ...Option) (*Config, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() Config {
	return Config{
		StoreType:     "memory",
		BlobStoreType: "memory",
		MaxInlineSize: messagestore.DefaultMaxInlineSize,
	}
}

// Config represents configuration for a message store service
type Config struct {
	StoreType string // "memory", "dynamodb"
	Dynamo    DynamoConfig

	// BlobStoreType may be empty to run without a companion blob store;
	// every payload must then fit the inline limit.
	BlobStoreType string // "", "memory", "fs", "s3"
	FS            FSConfig
	S3            S3Config

	MaxInlineSize int
}

// DynamoConfig represents configuration for the DynamoDB record store
type DynamoConfig struct {
	TableName       string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
}

// FSConfig represents configuration for the filesystem blob store
type FSConfig struct {
	BaseDir string
}

// S3Config represents configuration for the S3 blob store
type S3Config struct {
	Bucket                 string
	Region                 string
	AccessKeyID            string
	SecretAccessKey        string
	Endpoint               string
	UsePathStyle           bool
	CreateBucketIfNotExist bool
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.StoreType {
	case "memory":
	case "dynamodb":
		if c.Dynamo.TableName == "" {
			return errors.New("dynamo table name is required when using dynamodb")
		}
	default:
		return fmt.Errorf("store_type must be 'memory' or 'dynamodb', got %q", c.StoreType)
	}

	switch c.BlobStoreType {
	case "", "memory":
	case "fs":
		if c.FS.BaseDir == "" {
			return errors.New("fs base directory is required when using fs blob storage")
		}
	case "s3":
		if c.S3.Bucket == "" {
			return errors.New("s3 bucket is required when using s3 blob storage")
		}
	default:
		return fmt.Errorf("blob_store_type must be 'memory', 'fs', or 's3', got %q", c.BlobStoreType)
	}

	return nil
}

// BuildService creates a Service instance from the configuration
func (c *Config) BuildService() (messagestore.Service, error) {
	st, err := c.BuildStore()
	if err != nil {
		return nil, fmt.Errorf("failed to build store: %w", err)
	}

	options := []messagestore.Option{
		messagestore.WithStore(st),
		messagestore.WithServiceMaxInlineSize(c.MaxInlineSize),
	}

	if c.BlobStoreType != "" {
		bs, err := c.BuildBlobStore()
		if err != nil {
			return nil, fmt.Errorf("failed to build blob store: %w", err)
		}
		options = append(options, messagestore.WithBlobStore(bs))
	}

	return messagestore.New(options...)
}

// BuildStore creates a record store based on the configuration
func (c *Config) BuildStore() (messagestore.Store, error) {
	switch c.StoreType {
	case "memory":
		return repomemory.New(repomemory.WithMaxInlineSize(c.MaxInlineSize)), nil
	case "dynamodb":
		return dynamo.New(dynamo.Config{
			TableName:       c.Dynamo.TableName,
			Region:          c.Dynamo.Region,
			AccessKeyID:     c.Dynamo.AccessKeyID,
			SecretAccessKey: c.Dynamo.SecretAccessKey,
			Endpoint:        c.Dynamo.Endpoint,
		}, dynamo.WithMaxInlineSize(c.MaxInlineSize))
	default:
		return nil, fmt.Errorf("unsupported store type: %s", c.StoreType)
	}
}

// BuildBlobStore creates a blob store based on the configuration
func (c *Config) BuildBlobStore() (messagestore.BlobStore, error) {
	switch c.BlobStoreType {
	case "memory":
		return memorystorage.New(), nil
	case "fs":
		return fsstorage.New(fsstorage.Config{
			BaseDir: c.FS.BaseDir,
		})
	case "s3":
		return s3storage.New(s3storage.Config{
			Bucket:                 c.S3.Bucket,
			Region:                 c.S3.Region,
			AccessKeyID:            c.S3.AccessKeyID,
			SecretAccessKey:        c.S3.SecretAccessKey,
			Endpoint:               c.S3.Endpoint,
			UsePathStyle:           c.S3.UsePathStyle,
			CreateBucketIfNotExist: c.S3.CreateBucketIfNotExist,
		})
	default:
		return nil, fmt.Errorf("unsupported blob store type: %s", c.BlobStoreType)
	}
}
