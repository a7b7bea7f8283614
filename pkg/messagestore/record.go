package messagestore

import "fmt"

// Attribute names every backend reserves for the record itself. Index
// attributes may not use them.
const (
	AttrTenant  = "tenant"
	AttrCID     = "cid"
	AttrMessage = "encodedMessage"
	AttrData    = "encodedData"
	AttrDataID  = "dataId"
	AttrTags    = "tags"
)

var reservedAttrs = map[string]struct{}{
	AttrTenant:  {},
	AttrCID:     {},
	AttrMessage: {},
	AttrData:    {},
	AttrDataID:  {},
	AttrTags:    {},
}

// PreparedRecord is the physical image of a record: the output of the write
// pipeline and the input to record decoding.
type PreparedRecord struct {
	Tenant    string
	ContentID string
	Bytes     []byte
	Direct    map[string]string
	Tags      map[string][]string
	Data      []byte // payload bytes, kept regardless of the inline decision
	DataID    string
	Inline    bool // payload is stored with the record
}

// PrepareRecord runs the write pipeline shared by every backend: encode the
// message, project the index attributes, reject reserved attribute names, and
// decide payload placement. A payload at most inlineLimit bytes long is
// marked inline; inlineLimit <= 0 disables inlining entirely.
func PrepareRecord(tenant string, msg Message, indexes map[string]any, project ProjectFunc, inlineLimit int) (*PreparedRecord, error) {
	if tenant == "" {
		return nil, fmt.Errorf("tenant is required")
	}
	if project == nil {
		project = ProjectIndexes
	}
	enc, err := EncodeMessage(msg)
	if err != nil {
		return nil, err
	}
	direct, tags, err := project(indexes)
	if err != nil {
		return nil, err
	}
	for name := range direct {
		if _, ok := reservedAttrs[name]; ok {
			return nil, fmt.Errorf("%w: %q", ErrReservedAttribute, name)
		}
	}
	for name := range tags {
		if _, ok := reservedAttrs[name]; ok {
			return nil, fmt.Errorf("%w: %q", ErrReservedAttribute, name)
		}
		if _, ok := direct[name]; ok {
			return nil, fmt.Errorf("%w: attribute %q is both scalar and tag", ErrInvalidIndexValue, name)
		}
	}
	return &PreparedRecord{
		Tenant:    tenant,
		ContentID: enc.ContentID,
		Bytes:     enc.Bytes,
		Direct:    direct,
		Tags:      tags,
		Data:      enc.Data,
		DataID:    enc.DataID,
		Inline:    len(enc.Data) > 0 && inlineLimit > 0 && len(enc.Data) <= inlineLimit,
	}, nil
}

// Record decodes the image into a caller-facing Record. The payload is
// attached only when it was stored inline.
func (p *PreparedRecord) Record() (*Record, error) {
	var data []byte
	if p.Inline {
		data = p.Data
	}
	msg, err := DecodeMessage(p.Bytes, data)
	if err != nil {
		return nil, &DecodeError{ContentID: p.ContentID, Err: err}
	}
	return &Record{
		Tenant:      p.Tenant,
		ContentID:   p.ContentID,
		Message:     msg,
		Indexes:     p.Direct,
		Tags:        p.Tags,
		DataID:      p.DataID,
		DataInlined: p.Inline,
	}, nil
}

// Clone deep-copies the image so stored state never aliases caller slices.
func (p *PreparedRecord) Clone() *PreparedRecord {
	c := &PreparedRecord{
		Tenant:    p.Tenant,
		ContentID: p.ContentID,
		DataID:    p.DataID,
		Inline:    p.Inline,
	}
	if p.Bytes != nil {
		c.Bytes = append([]byte(nil), p.Bytes...)
	}
	if p.Data != nil {
		c.Data = append([]byte(nil), p.Data...)
	}
	if p.Direct != nil {
		c.Direct = make(map[string]string, len(p.Direct))
		for k, v := range p.Direct {
			c.Direct[k] = v
		}
	}
	if p.Tags != nil {
		c.Tags = make(map[string][]string, len(p.Tags))
		for k, v := range p.Tags {
			c.Tags[k] = append([]string(nil), v...)
		}
	}
	return c
}
