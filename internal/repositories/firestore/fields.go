package firestore

import (
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/ds-advance/api/internal/platform/firestore"
)

// fieldReader pulls loosely typed values out of raw document data. A value of the wrong type reads as
// the zero value and the field is recorded in problems.
type fieldReader struct {
	data     map[string]any
	problems []string
}

func mapDecoder[T any](decode func(*fieldReader) T) pfirestore.Decoder[T] {
	return func(snap *firestore.DocumentSnapshot) (T, error) {
		return decode(&fieldReader{data: snap.Data()}), nil
	}
}

func (f *fieldReader) mismatch(key string) {
	f.problems = append(f.problems, key)
}

func (f *fieldReader) lookup(key string) (any, bool) {
	value, ok := f.data[key]
	if !ok || value == nil {
		return nil, false
	}
	return value, true
}

func (f *fieldReader) str(key string) string {
	value, ok := f.lookup(key)
	if !ok {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		f.mismatch(key)
		return ""
	}
}

func (f *fieldReader) optionalStr(key string) *string {
	value := f.str(key)
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}

func (f *fieldReader) boolean(key string) bool {
	value, ok := f.lookup(key)
	if !ok {
		return false
	}
	b, isBool := value.(bool)
	if !isBool {
		f.mismatch(key)
	}
	return b
}

// date accepts a timestamp or an RFC 3339 / yyyy-mm-dd string. Anything else reads as zero, which
// the pricing windows treat as never active.
func (f *fieldReader) date(key string) time.Time {
	value, ok := f.lookup(key)
	if !ok {
		return time.Time{}
	}
	switch v := value.(type) {
	case time.Time:
		return v
	case string:
		raw := strings.TrimSpace(v)
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return t
		}
		if t, err := time.Parse(time.DateOnly, raw); err == nil {
			return t
		}
	}
	f.mismatch(key)
	return time.Time{}
}

func (f *fieldReader) optionalDate(key string) *time.Time {
	if _, ok := f.lookup(key); !ok {
		return nil
	}
	t := f.date(key)
	if t.IsZero() {
		return nil
	}
	return &t
}

func (f *fieldReader) strs(key string) []string {
	value, ok := f.lookup(key)
	if !ok {
		return nil
	}
	items, isList := value.([]any)
	if !isList {
		f.mismatch(key)
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, isString := item.(string)
		if !isString {
			f.mismatch(key)
			continue
		}
		out = append(out, s)
	}
	return out
}
