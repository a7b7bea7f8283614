package messagestore

// PutMessageRequest contains parameters for storing a message
type PutMessageRequest struct {
	Tenant string

	// RecordID keys the payload in the blob store. Required only when the
	// message carries a payload that will not inline.
	RecordID string

	Message Message

	// Indexes are the caller's index attributes, projected to the store's
	// physical shape before the write (see ProjectIndexes).
	Indexes map[string]any

	// MaxInlineSize overrides the service-wide inline limit for this
	// write. A value <= 0 sends any payload to the blob store.
	MaxInlineSize *int
}

// GetMessageRequest contains parameters for fetching one record
type GetMessageRequest struct {
	Tenant    string
	ContentID string

	// WithData re-attaches an externally stored payload onto the returned
	// record. Requires RecordID when the payload is external.
	WithData bool
	RecordID string
}

// QueryMessagesRequest contains parameters for querying records
type QueryMessagesRequest struct {
	Tenant string
	Query  Query
}

// DeleteMessageRequest contains parameters for deleting a record
type DeleteMessageRequest struct {
	Tenant    string
	ContentID string

	// DeleteData also removes an externally stored payload. Requires
	// RecordID when the record's payload is external.
	DeleteData bool
	RecordID   string
}
