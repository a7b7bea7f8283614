// Package messagestore provides a reusable library for storing, indexing,
// and querying content-addressed message records with pluggable record store
// and blob storage backends.
//
// It exposes a single Service interface that orchestrates message writes,
// content addressing, index projection, cursor-paginated queries, and payload
// placement. Implementations of record stores (memory, DynamoDB) and blob
// stores (memory, filesystem, S3) are provided under subpackages.
//
// Content Addressing
//
// A record's identity is derived from its envelope: the envelope JSON is
// canonicalized (RFC 8785) and hashed, so equal envelopes always map to the
// same record regardless of key order or insignificant formatting. The
// payload (Message.Data) never participates in identity; small payloads are
// stored inline with the record and larger ones in a companion blob store
// keyed by (tenant, record id, data id).
//
// Queries
//
// Queries are tenant-scoped and ordered along one of three time dimensions,
// with the content id breaking ties so the order is total. Filters are a
// disjunction of conjunctive equality clauses evaluated against a record's
// index attributes. Pages carry an opaque cursor bound to the issuing query;
// presenting it with a different tenant, sort, or filter combination is
// rejected.
package messagestore
