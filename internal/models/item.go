package models

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Item is a content item as produced by a source: a flat bag of platform fields.
// Every source guarantees at least id, title, url and a publish time.
type Item map[string]interface{}

// ID returns the source-native id of the item
func (i Item) ID() string {
	return i.String("id")
}

// Title returns the item title
func (i Item) Title() string {
	return i.String("title")
}

// URL returns the item link
func (i Item) URL() string {
	return i.String("url")
}

// Author returns the first non-empty of author, channel and username
func (i Item) Author() string {
	return i.firstString("author", "channel", "username")
}

// Published returns the publish time as reported by the source
func (i Item) Published() string {
	return i.firstString("published", "published_at", "created_at")
}

// Has reports whether the field is present
func (i Item) Has(key string) bool {
	_, ok := i[key]
	return ok
}

// String returns the field stringified, or "" when absent
func (i Item) String(key string) string {
	v, ok := i[key]
	if !ok {
		return ""
	}
	return Stringify(v)
}

// Int returns a numeric field, 0 when absent or not numeric
func (i Item) Int(key string) int64 {
	switch v := i[key].(type) {
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	case uint64:
		if v > math.MaxInt64 {
			return math.MaxInt64
		}
		return int64(v)
	case float64:
		return int64(v)
	case float32:
		return int64(v)
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

// Text concatenates every string-valued field, in sorted key order
func (i Item) Text() string {
	keys := make([]string, 0, len(i))
	for k, v := range i {
		if _, ok := v.(string); ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(i[k].(string))
		b.WriteByte(' ')
	}
	return b.String()
}

// Clone returns a shallow copy that can be mutated independently
func (i Item) Clone() Item {
	out := make(Item, len(i))
	for k, v := range i {
		out[k] = v
	}
	return out
}

func (i Item) firstString(keys ...string) string {
	for _, k := range keys {
		if s := i.String(k); s != "" {
			return s
		}
	}
	return ""
}

// Stringify renders a field value the way templates show it
func Stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1e15 {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return Stringify(float64(t))
	case time.Time:
		return t.Format(time.RFC3339)
	case *time.Time:
		if t == nil {
			return ""
		}
		return t.Format(time.RFC3339)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
