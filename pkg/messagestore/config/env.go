package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// envConfig is the flat environment surface, read with cleanenv.
//
//	MSGSTORE_STORE_URL - Record store connection string (one of):
//	                     - "memory://" - In-memory store (default)
//	                     - "dynamodb://table?region=us-east-1&endpoint=http://localhost:8000"
//	MSGSTORE_BLOB_URL  - Blob store connection string (one of):
//	                     - "memory://" - In-memory blob store (default)
//	                     - "file:///path/to/data" - Filesystem blob store
//	                     - "s3://bucket?region=us-east-1&endpoint=http://localhost:9000&path_style=true"
//	                     - "none" - No blob store; payloads must fit inline
//	MSGSTORE_MAX_INLINE_SIZE - Inline payload limit in bytes
//
// AWS credentials come from the standard AWS_ACCESS_KEY_ID,
// AWS_SECRET_ACCESS_KEY, and AWS_REGION variables when set.
type envConfig struct {
	StoreURL      string `env:"MSGSTORE_STORE_URL" env-default:"memory://"`
	BlobURL       string `env:"MSGSTORE_BLOB_URL" env-default:"memory://"`
	MaxInlineSize int    `env:"MSGSTORE_MAX_INLINE_SIZE" env-default:"65536"`

	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" env-default:""`
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" env-default:""`
	AWSRegion          string `env:"AWS_REGION" env-default:""`
}

// FromEnv loads configuration from environment variables.
func FromEnv() (*Config, error) {
	var ec envConfig
	if err := cleanenv.ReadEnv(&ec); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	return Load(
		WithStoreURL(ec.StoreURL),
		WithBlobURL(ec.BlobURL),
		WithMaxInlineSize(ec.MaxInlineSize),
		withAWSEnv(ec),
	)
}

// WithMaxInlineSize sets the inline payload limit.
func WithMaxInlineSize(n int) Option {
	return func(c *Config) error {
		c.MaxInlineSize = n
		return nil
	}
}

// WithStoreURL configures the record store from a connection string.
func WithStoreURL(raw string) Option {
	return func(c *Config) error {
		if raw == "" || raw == "memory" || raw == "memory://" {
			c.StoreType = "memory"
			return nil
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid store URL %q: %w", raw, err)
		}
		switch u.Scheme {
		case "dynamodb":
			table := u.Host
			if table == "" {
				table = strings.TrimPrefix(u.Path, "/")
			}
			if table == "" {
				return fmt.Errorf("dynamodb table name cannot be empty in store URL")
			}
			c.StoreType = "dynamodb"
			c.Dynamo.TableName = table
			q := u.Query()
			if v := q.Get("region"); v != "" {
				c.Dynamo.Region = v
			}
			if v := q.Get("endpoint"); v != "" {
				c.Dynamo.Endpoint = v
			}
			return nil
		default:
			return fmt.Errorf("unsupported store URL %q (use 'memory://' or 'dynamodb://table')", raw)
		}
	}
}

// WithBlobURL configures the blob store from a connection string. The value
// "none" disables blob storage entirely.
func WithBlobURL(raw string) Option {
	return func(c *Config) error {
		switch raw {
		case "", "memory", "memory://":
			c.BlobStoreType = "memory"
			return nil
		case "none", "none://":
			c.BlobStoreType = ""
			return nil
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid blob URL %q: %w", raw, err)
		}
		switch u.Scheme {
		case "file":
			if u.Path == "" {
				return fmt.Errorf("filesystem path cannot be empty in blob URL")
			}
			c.BlobStoreType = "fs"
			c.FS.BaseDir = u.Path
			return nil
		case "s3":
			if u.Host == "" {
				return fmt.Errorf("s3 bucket name cannot be empty in blob URL")
			}
			c.BlobStoreType = "s3"
			c.S3.Bucket = u.Host
			q := u.Query()
			if v := q.Get("region"); v != "" {
				c.S3.Region = v
			}
			if v := q.Get("endpoint"); v != "" {
				c.S3.Endpoint = v
			}
			if v := q.Get("path_style"); v != "" {
				b, err := strconv.ParseBool(v)
				if err != nil {
					return fmt.Errorf("invalid path_style in blob URL: %w", err)
				}
				c.S3.UsePathStyle = b
			}
			if v := q.Get("create_bucket"); v != "" {
				b, err := strconv.ParseBool(v)
				if err != nil {
					return fmt.Errorf("invalid create_bucket in blob URL: %w", err)
				}
				c.S3.CreateBucketIfNotExist = b
			}
			return nil
		default:
			return fmt.Errorf("unsupported blob URL %q (use 'memory://', 'file://...', 's3://...', or 'none')", raw)
		}
	}
}

// withAWSEnv threads ambient AWS credentials into whichever backends need
// them, without overriding values set explicitly.
func withAWSEnv(ec envConfig) Option {
	return func(c *Config) error {
		if c.StoreType == "dynamodb" {
			if c.Dynamo.AccessKeyID == "" {
				c.Dynamo.AccessKeyID = ec.AWSAccessKeyID
			}
			if c.Dynamo.SecretAccessKey == "" {
				c.Dynamo.SecretAccessKey = ec.AWSSecretAccessKey
			}
			if c.Dynamo.Region == "" {
				c.Dynamo.Region = ec.AWSRegion
			}
		}
		if c.BlobStoreType == "s3" {
			if c.S3.AccessKeyID == "" {
				c.S3.AccessKeyID = ec.AWSAccessKeyID
			}
			if c.S3.SecretAccessKey == "" {
				c.S3.SecretAccessKey = ec.AWSSecretAccessKey
			}
			if c.S3.Region == "" {
				c.S3.Region = ec.AWSRegion
			}
		}
		return nil
	}
}
