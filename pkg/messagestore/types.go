package messagestore

import "encoding/json"

// SortField names one of the time dimensions a query can be ordered by.
type SortField string

// Sort field constants (typed).
const (
	SortDateCreated      SortField = "dateCreated"
	SortDatePublished    SortField = "datePublished"
	SortMessageTimestamp SortField = "messageTimestamp"
)

// SortDirection is the scan direction along a sort field.
type SortDirection string

// Sort direction constants (typed).
const (
	SortAscending  SortDirection = "asc"
	SortDescending SortDirection = "desc"
)

// Filter is a single conjunctive clause: every key must equal its value for
// the clause to match. Keys name index attributes; a key that points at a
// tagged (multi-valued) attribute matches when any of the attribute's values
// equals the filter value.
type Filter map[string]string

// Query describes a tenant-scoped record query.
//
// Filters form a disjunction of conjunctions: a record matches when at least
// one clause matches. An empty or nil Filters slice matches every record.
type Query struct {
	Filters   []Filter      `json:"filters,omitempty"`
	SortBy    SortField     `json:"sortBy,omitempty"`    // empty defaults to SortMessageTimestamp
	Direction SortDirection `json:"direction,omitempty"` // empty defaults to SortAscending
	Limit     int           `json:"limit,omitempty"`     // <= 0 means unbounded
	Cursor    string        `json:"cursor,omitempty"`    // opaque token from a previous page
}

// Normalized resolves the query's sort defaults: any sort field other than
// the three named dimensions becomes SortMessageTimestamp and any direction
// other than the two named ones becomes SortAscending. Sort resolution is
// total; it never fails.
func (q Query) Normalized() Query {
	switch q.SortBy {
	case SortDateCreated, SortDatePublished, SortMessageTimestamp:
	default:
		q.SortBy = SortMessageTimestamp
	}
	switch q.Direction {
	case SortAscending, SortDescending:
	default:
		q.Direction = SortAscending
	}
	if q.Limit < 0 {
		q.Limit = 0
	}
	return q
}

// Page is one page of query results. Cursor is non-empty only when more
// matching records remain beyond this page.
type Page struct {
	Records []*Record `json:"records"`
	Cursor  string    `json:"cursor,omitempty"`
}

// Message is the logical unit a store holds: a structured envelope plus an
// optional opaque payload. The envelope is arbitrary JSON; two envelopes are
// considered equal when their canonical forms are byte-equal.
type Message struct {
	Envelope json.RawMessage `json:"envelope"`
	Data     []byte          `json:"data,omitempty"`
}

// Record is a stored message together with its identity and index state.
type Record struct {
	// Tenant that owns the record.
	Tenant string `json:"tenant"`

	// ContentID is the content-derived identifier of the envelope. Equal
	// envelopes always produce equal ContentIDs.
	ContentID string `json:"contentId"`

	// Message holds the decoded envelope. Data is populated only when the
	// payload was stored inline (or re-attached from a blob store).
	Message Message `json:"message"`

	// Indexes are the scalar index attributes the record was written with,
	// after projection to strings.
	Indexes map[string]string `json:"indexes,omitempty"`

	// Tags are the multi-valued index attributes.
	Tags map[string][]string `json:"tags,omitempty"`

	// DataID is the content-derived identifier of the payload, empty when the
	// message carried no payload.
	DataID string `json:"dataId,omitempty"`

	// DataInlined reports whether the payload lives on the record itself. A
	// record with a DataID and DataInlined false keeps its payload in a
	// companion blob store.
	DataInlined bool `json:"dataInlined,omitempty"`
}

// HasData reports whether the record's message carried a payload, inline or
// external.
func (r *Record) HasData() bool {
	return r.DataID != ""
}

// SortValue returns the record's value for the given sort field, or the empty
// string when the record was not indexed on that field.
func (r *Record) SortValue(field SortField) string {
	if r.Indexes == nil {
		return ""
	}
	return r.Indexes[string(field)]
}

// PutResult reports what a store did with a message.
type PutResult struct {
	// ContentID of the stored record.
	ContentID string `json:"contentId"`

	// DataID of the payload, empty when the message had none.
	DataID string `json:"dataId,omitempty"`

	// DataSize is the payload length in bytes.
	DataSize int64 `json:"dataSize,omitempty"`

	// DataInlined is true when the payload was written with the record.
	// When false and DataID is set, the caller is responsible for placing
	// the payload in a blob store under (tenant, record id, DataID).
	DataInlined bool `json:"dataInlined,omitempty"`
}
