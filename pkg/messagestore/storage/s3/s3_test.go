package s3

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestS3Backend_BasicConfiguration tests the configuration and creation of
// the S3 backend. No network calls are made unless bucket creation is
// requested, so these run without live credentials.
func TestS3Backend_BasicConfiguration(t *testing.T) {
	t.Run("EmptyBucket", func(t *testing.T) {
		config := Config{
			Region: "us-east-1",
			Bucket: "",
		}
		_, err := New(config)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bucket name is required")
	})

	t.Run("DefaultRegion", func(t *testing.T) {
		config := Config{
			Bucket:          "test-bucket",
			AccessKeyID:     "test-key",
			SecretAccessKey: "test-secret",
		}
		backend, err := New(config)
		require.NoError(t, err)
		assert.NotNil(t, backend)
		if b, ok := backend.(*Backend); ok {
			assert.Equal(t, "us-east-1", b.config.Region)
		}
	})

	t.Run("CustomEndpoint", func(t *testing.T) {
		config := Config{
			Bucket:          "test-bucket",
			Region:          "us-east-1",
			AccessKeyID:     "minioadmin",
			SecretAccessKey: "minioadmin",
			Endpoint:        "http://localhost:9000",
			UsePathStyle:    true,
		}
		backend, err := New(config)
		require.NoError(t, err)
		assert.NotNil(t, backend)
	})

	t.Run("ServerSideEncryption", func(t *testing.T) {
		config := Config{
			Bucket:          "test-bucket",
			AccessKeyID:     "test-key",
			SecretAccessKey: "test-secret",
			EnableSSE:       true,
			SSEAlgorithm:    "AES256",
		}
		backend, err := New(config)
		require.NoError(t, err)
		assert.NotNil(t, backend)
	})
}

func TestObjectKey(t *testing.T) {
	key := objectKey("did:example:alice", "rec-1", "data-1")
	assert.Equal(t, "did:example:alice/rec-1/data-1", key)
}
