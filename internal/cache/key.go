package cache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/ziadkadry99/memberrec/internal/members"
)

// MemberVersionKey builds the cache key for a call of fn about member m in
// version with optional extra arguments:
//
//	fn:fn:<member json>:fn:<version>:<kwargs json>
//
// The member is serialized with every field, so any edit produces a new key.
func MemberVersionKey(fn string, m members.Member, version string, kwargs map[string]any) (string, error) {
	memberJSON, err := compactJSON(m)
	if err != nil {
		return "", fmt.Errorf("encoding member %d for cache key: %w", m.MemberNo, err)
	}
	kwargsJSON, err := kwargsString(kwargs)
	if err != nil {
		return "", fmt.Errorf("encoding cache key arguments: %w", err)
	}
	return fn + ":" + fn + ":" + memberJSON + ":" + fn + ":" + version + ":" + kwargsJSON, nil
}

func kwargsString(kwargs map[string]any) (string, error) {
	if len(kwargs) == 0 {
		return "{}", nil
	}
	keys := make([]string, 0, len(kwargs))
	for k := range kwargs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := compactJSON(k)
		if err != nil {
			return "", err
		}
		value, err := compactJSON(kwargs[k])
		if err != nil {
			return "", fmt.Errorf("argument %q: %w", k, err)
		}
		buf.WriteString(name)
		buf.WriteByte(':')
		buf.WriteString(value)
	}
	buf.WriteByte('}')
	return buf.String(), nil
}

func compactJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}
