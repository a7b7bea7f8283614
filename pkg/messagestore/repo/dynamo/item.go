package dynamo

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/tendant/message-store/pkg/messagestore"
)

func itemKey(tenant, contentID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		messagestore.AttrTenant: &types.AttributeValueMemberS{Value: tenant},
		messagestore.AttrCID:    &types.AttributeValueMemberS{Value: contentID},
	}
}

// marshalItem lays a prepared record out as one item: reserved attributes for
// the record itself, every scalar index attribute at the top level (so the
// sort indexes can key on them), and tags as a nested map.
func marshalItem(p *messagestore.PreparedRecord) (map[string]types.AttributeValue, error) {
	item := map[string]types.AttributeValue{
		messagestore.AttrTenant:  &types.AttributeValueMemberS{Value: p.Tenant},
		messagestore.AttrCID:     &types.AttributeValueMemberS{Value: p.ContentID},
		messagestore.AttrMessage: &types.AttributeValueMemberB{Value: p.Bytes},
	}
	for name, val := range p.Direct {
		item[name] = &types.AttributeValueMemberS{Value: val}
	}
	if len(p.Tags) > 0 {
		tags, err := attributevalue.Marshal(p.Tags)
		if err != nil {
			return nil, fmt.Errorf("marshal tags: %w", err)
		}
		item[messagestore.AttrTags] = tags
	}
	if p.DataID != "" {
		item[messagestore.AttrDataID] = &types.AttributeValueMemberS{Value: p.DataID}
	}
	if p.Inline {
		item[messagestore.AttrData] = &types.AttributeValueMemberB{Value: p.Data}
	}
	return item, nil
}

// unmarshalItem rebuilds a prepared record from an item. Any attribute that
// is not one of the record's own is an index attribute: strings are scalar
// indexes, the tags map holds the rest.
func unmarshalItem(item map[string]types.AttributeValue) (*messagestore.PreparedRecord, error) {
	p := &messagestore.PreparedRecord{Direct: make(map[string]string)}
	for name, av := range item {
		switch name {
		case messagestore.AttrTenant:
			s, ok := av.(*types.AttributeValueMemberS)
			if !ok {
				return nil, decodeErr(item, name, av)
			}
			p.Tenant = s.Value
		case messagestore.AttrCID:
			s, ok := av.(*types.AttributeValueMemberS)
			if !ok {
				return nil, decodeErr(item, name, av)
			}
			p.ContentID = s.Value
		case messagestore.AttrMessage:
			b, ok := av.(*types.AttributeValueMemberB)
			if !ok {
				return nil, decodeErr(item, name, av)
			}
			p.Bytes = b.Value
		case messagestore.AttrData:
			b, ok := av.(*types.AttributeValueMemberB)
			if !ok {
				return nil, decodeErr(item, name, av)
			}
			p.Data = b.Value
			p.Inline = true
		case messagestore.AttrDataID:
			s, ok := av.(*types.AttributeValueMemberS)
			if !ok {
				return nil, decodeErr(item, name, av)
			}
			p.DataID = s.Value
		case messagestore.AttrTags:
			var tags map[string][]string
			if err := attributevalue.Unmarshal(av, &tags); err != nil {
				return nil, &messagestore.DecodeError{ContentID: itemCID(item), Err: fmt.Errorf("unmarshal tags: %w", err)}
			}
			p.Tags = tags
		default:
			s, ok := av.(*types.AttributeValueMemberS)
			if !ok {
				return nil, decodeErr(item, name, av)
			}
			p.Direct[name] = s.Value
		}
	}
	if p.Tenant == "" || p.ContentID == "" || p.Bytes == nil {
		return nil, &messagestore.DecodeError{ContentID: itemCID(item), Err: fmt.Errorf("item is missing record attributes")}
	}
	return p, nil
}

func itemCID(item map[string]types.AttributeValue) string {
	if s, ok := item[messagestore.AttrCID].(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func decodeErr(item map[string]types.AttributeValue, name string, av types.AttributeValue) error {
	return &messagestore.DecodeError{
		ContentID: itemCID(item),
		Err:       fmt.Errorf("attribute %q has unexpected type %T", name, av),
	}
}
