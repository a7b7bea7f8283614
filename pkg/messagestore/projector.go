package messagestore

import (
	"fmt"
	"strconv"
	"time"
)

// TimeIndexFormat is the canonical textual form for time-valued index
// attributes. The fractional seconds are fixed width so lexicographic order
// equals chronological order.
const TimeIndexFormat = "2006-01-02T15:04:05.000000000Z"

// FormatTimeIndex renders a timestamp in TimeIndexFormat, normalized to UTC.
// Sort fields written through the default projector use this form.
func FormatTimeIndex(t time.Time) string {
	return t.UTC().Format(TimeIndexFormat)
}

// ProjectFunc converts caller index values into the store's physical shape:
// scalar attributes as strings and tag attributes as string lists.
type ProjectFunc func(indexes map[string]any) (direct map[string]string, tags map[string][]string, err error)

// ProjectIndexes is the default ProjectFunc.
//
// Strings, booleans, integers, floats, and timestamps become scalar
// attributes; []string and []any-of-strings become tag attributes. Timestamps
// are rendered with FormatTimeIndex so they sort chronologically as strings.
// Nil values and unsupported types are rejected.
func ProjectIndexes(indexes map[string]any) (map[string]string, map[string][]string, error) {
	direct := make(map[string]string, len(indexes))
	tags := make(map[string][]string)
	for name, value := range indexes {
		switch v := value.(type) {
		case string:
			direct[name] = v
		case bool:
			direct[name] = strconv.FormatBool(v)
		case int:
			direct[name] = strconv.Itoa(v)
		case int32:
			direct[name] = strconv.FormatInt(int64(v), 10)
		case int64:
			direct[name] = strconv.FormatInt(v, 10)
		case float32:
			direct[name] = strconv.FormatFloat(float64(v), 'f', -1, 32)
		case float64:
			direct[name] = strconv.FormatFloat(v, 'f', -1, 64)
		case time.Time:
			direct[name] = FormatTimeIndex(v)
		case []string:
			vals := make([]string, len(v))
			copy(vals, v)
			tags[name] = vals
		case []any:
			vals := make([]string, 0, len(v))
			for _, item := range v {
				s, ok := item.(string)
				if !ok {
					return nil, nil, fmt.Errorf("%w: attribute %q has non-string tag element of type %T", ErrInvalidIndexValue, name, item)
				}
				vals = append(vals, s)
			}
			tags[name] = vals
		case nil:
			return nil, nil, fmt.Errorf("%w: attribute %q is nil", ErrInvalidIndexValue, name)
		default:
			return nil, nil, fmt.Errorf("%w: attribute %q has type %T", ErrInvalidIndexValue, name, value)
		}
	}
	return direct, tags, nil
}
