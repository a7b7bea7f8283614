package messagestore

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

const cursorVersion = 1

// cursorToken is the wire form of a pagination cursor.
type cursorToken struct {
	Version     int    `json:"v"`
	Fingerprint string `json:"fp"`
	ContentID   string `json:"cid"`
	SortValue   string `json:"val"`
}

// CursorPosition locates the last record of a page in its query's total
// order. The next page resumes strictly after it; the content id breaks ties
// between records sharing a sort value.
type CursorPosition struct {
	ContentID string
	SortValue string
}

// EncodeCursor seals a resumption point into an opaque token bound to the
// issuing tenant, sort, and filter combination.
func EncodeCursor(tenant string, q Query, pos CursorPosition) (string, error) {
	if pos.ContentID == "" || pos.SortValue == "" {
		return "", fmt.Errorf("encode cursor: incomplete position")
	}
	tok := cursorToken{
		Version:     cursorVersion,
		Fingerprint: queryFingerprint(tenant, q),
		ContentID:   pos.ContentID,
		SortValue:   pos.SortValue,
	}
	raw, err := json.Marshal(tok)
	if err != nil {
		return "", fmt.Errorf("encode cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// DecodeCursor opens a token and checks it against the presenting query. A
// token issued under a different tenant, sort, or filter combination is
// rejected with ErrCursorMismatch; a token that cannot be parsed at all is
// rejected with ErrInvalidCursor.
func DecodeCursor(token, tenant string, q Query) (*CursorPosition, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	var tok cursorToken
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	if tok.Version != cursorVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidCursor, tok.Version)
	}
	if tok.ContentID == "" || tok.SortValue == "" {
		return nil, fmt.Errorf("%w: incomplete position", ErrInvalidCursor)
	}
	if tok.Fingerprint != queryFingerprint(tenant, q) {
		return nil, ErrCursorMismatch
	}
	return &CursorPosition{ContentID: tok.ContentID, SortValue: tok.SortValue}, nil
}

// queryFingerprint hashes the parts of a query a cursor stays bound to:
// tenant, resolved sort, and the filter set. Filter clauses are hashed in a
// canonical order so logically equal queries fingerprint identically.
func queryFingerprint(tenant string, q Query) string {
	q = q.Normalized()
	clauses := make([]string, 0, len(q.Filters))
	for _, clause := range q.Filters {
		// Map keys marshal in sorted order, so each clause is canonical.
		b, err := json.Marshal(clause)
		if err != nil {
			continue
		}
		clauses = append(clauses, string(b))
	}
	sort.Strings(clauses)

	h := sha256.New()
	h.Write([]byte(tenant))
	h.Write([]byte{0})
	h.Write([]byte(q.SortBy))
	h.Write([]byte{0})
	h.Write([]byte(q.Direction))
	for _, c := range clauses {
		h.Write([]byte{0})
		h.Write([]byte(c))
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}
