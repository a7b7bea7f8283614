package messagestore

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrNotOpen indicates the store was used before Open or after Close
	ErrNotOpen = errors.New("store not open")

	// ErrInvalidCursor indicates a cursor token that could not be parsed
	ErrInvalidCursor = errors.New("invalid cursor")

	// ErrCursorMismatch indicates a cursor presented with a different
	// tenant, sort, or filter combination than the one it was issued under
	ErrCursorMismatch = errors.New("cursor does not match query")

	// ErrDataNotFound indicates a payload was not found in the blob store
	ErrDataNotFound = errors.New("data not found")

	// ErrNoBlobStore indicates a data operation was attempted on a service
	// with no blob store configured
	ErrNoBlobStore = errors.New("no blob store configured")

	// ErrReservedAttribute indicates an index attribute name that collides
	// with one of the store's own attributes
	ErrReservedAttribute = errors.New("reserved index attribute name")

	// ErrInvalidIndexValue indicates an index value of an unsupported type
	ErrInvalidIndexValue = errors.New("unsupported index value")

	// ErrMissingRecordID indicates a payload-bearing operation without the
	// record id needed to address the payload in the blob store
	ErrMissingRecordID = errors.New("record id required")
)

// StoreError represents an error from a store backend operation
type StoreError struct {
	Op     string
	Tenant string
	Key    string
	Err    error
}

func (e *StoreError) Error() string {
	switch {
	case e.Tenant == "":
		return fmt.Sprintf("store operation %s failed: %v", e.Op, e.Err)
	case e.Key == "":
		return fmt.Sprintf("store operation %s failed for tenant %s: %v", e.Op, e.Tenant, e.Err)
	default:
		return fmt.Sprintf("store operation %s failed for tenant %s key %s: %v", e.Op, e.Tenant, e.Key, e.Err)
	}
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// DecodeError represents a stored record that could not be decoded back into
// a message
type DecodeError struct {
	ContentID string
	Err       error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode record %s: %v", e.ContentID, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// BlobError represents an error from a blob store operation
type BlobError struct {
	Backend string
	Key     string
	Op      string
	Err     error
}

func (e *BlobError) Error() string {
	return fmt.Sprintf("blob operation %s failed for key %s on backend %s: %v", e.Op, e.Key, e.Backend, e.Err)
}

func (e *BlobError) Unwrap() error {
	return e.Err
}
