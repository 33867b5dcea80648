// Package queryparams parses and serializes URL query strings without
// losing parameter order, which net/url.Values does not preserve.
package queryparams

import (
	"net/url"
	"strings"
)

type Param struct {
	Key   string
	Value string
}

type List []Param

// Parse splits a raw query (without the leading '?') into its parameters.
// Segments that fail to unescape are kept verbatim.
func Parse(rawQuery string) List {
	if rawQuery == "" {
		return nil
	}

	var out List
	for _, seg := range strings.Split(rawQuery, "&") {
		if seg == "" {
			continue
		}
		key, value, _ := strings.Cut(seg, "=")
		out = append(out, Param{Key: unescape(key), Value: unescape(value)})
	}
	return out
}

func unescape(s string) string {
	v, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}
	return v
}

// Encode serializes the list as application/x-www-form-urlencoded.
func (l List) Encode() string {
	if len(l) == 0 {
		return ""
	}

	var b strings.Builder
	for i, p := range l {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.Key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.Value))
	}
	return b.String()
}

// Get returns the value of the first parameter named key.
func (l List) Get(key string) (string, bool) {
	for _, p := range l {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// Without returns a copy of l with every parameter named key removed.
func (l List) Without(key string) List {
	out := make(List, 0, len(l))
	for _, p := range l {
		if p.Key != key {
			out = append(out, p)
		}
	}
	return out
}

func (l List) Keys() []string {
	keys := make([]string, 0, len(l))
	for _, p := range l {
		keys = append(keys, p.Key)
	}
	return keys
}
