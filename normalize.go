package chatsync

import (
	"encoding/json"
	"fmt"
	"unicode"
	"unicode/utf8"
)

// normalizeKeys rewrites every object key in a JSON document to camelCase.
// Servers in the wild send both "MessageId" and "messageId"; when both forms
// appear in one object the camelCase original wins.
func normalizeKeys(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return raw, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	out, err := json.Marshal(normalizeValue(v))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return out, nil
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			ck := camelKey(k)
			if _, exists := out[ck]; exists && ck != k {
				continue
			}
			out[ck] = normalizeValue(val)
		}
		return out
	case []any:
		for i := range t {
			t[i] = normalizeValue(t[i])
		}
		return t
	default:
		return v
	}
}

// camelKey lowercases the leading upper-case run of a key. A run followed
// by a lower-case letter keeps its last capital as the start of the next
// word, so "URLPath" becomes "urlPath" and "ID" becomes "id".
func camelKey(k string) string {
	r, _ := utf8.DecodeRuneInString(k)
	if r == utf8.RuneError || !unicode.IsUpper(r) {
		return k
	}
	runes := []rune(k)
	n := 0
	for n < len(runes) && unicode.IsUpper(runes[n]) {
		n++
	}
	if n > 1 && n < len(runes) && unicode.IsLower(runes[n]) {
		n--
	}
	for i := 0; i < n; i++ {
		runes[i] = unicode.ToLower(runes[i])
	}
	return string(runes)
}
