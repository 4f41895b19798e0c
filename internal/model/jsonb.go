package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// StringList is a set-like list of tags stored as a JSONB array
type StringList []string

// Value implements driver.Valuer
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(l))
}

// Scan implements sql.Scanner
func (l *StringList) Scan(value any) error {
	if value == nil {
		*l = nil
		return nil
	}
	var out []string
	if err := scanJSON(value, &out); err != nil {
		return err
	}
	*l = out
	return nil
}

// Contains reports whether v is in the list
func (l StringList) Contains(v string) bool {
	for _, s := range l {
		if s == v {
			return true
		}
	}
	return false
}

// Union returns l plus every value of other not already present, keeping order
func (l StringList) Union(other StringList) StringList {
	out := make(StringList, 0, len(l)+len(other))
	seen := make(map[string]bool, len(l)+len(other))
	for _, list := range []StringList{l, other} {
		for _, s := range list {
			if seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func scanJSON(value any, dest any) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported JSONB source type %T", value)
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dest)
}

// marshalWithExtra encodes known and then adds every extra key that does
// not shadow a known one.
func marshalWithExtra(known any, extra map[string]any, knownKeys []string) ([]byte, error) {
	base, err := json.Marshal(known)
	if err != nil {
		return nil, err
	}
	if len(extra) == 0 {
		return base, nil
	}

	merged := make(map[string]json.RawMessage)
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range extra {
		if isKnownKey(k, knownKeys) {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal metadata key %q: %w", k, err)
		}
		merged[k] = raw
	}
	return json.Marshal(merged)
}

func unmarshalWithExtra(data []byte, known any, knownKeys []string) (map[string]any, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	if err := json.Unmarshal(data, known); err != nil {
		return nil, err
	}

	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for _, k := range knownKeys {
		delete(all, k)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}

func isKnownKey(k string, knownKeys []string) bool {
	for _, known := range knownKeys {
		if k == known {
			return true
		}
	}
	return false
}

func cloneExtra(extra map[string]any) map[string]any {
	if extra == nil {
		return nil
	}
	c := make(map[string]any, len(extra))
	for k, v := range extra {
		c[k] = v
	}
	return c
}
