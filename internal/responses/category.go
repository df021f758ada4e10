package responses

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Category is an ordered keyword -> reply mapping. Key order follows the
// backing JSON document, which is what the substring matcher iterates in.
type Category struct {
	keys   []string
	values map[string]string
}

// NewCategory creates an empty ordered category.
func NewCategory() *Category {
	return &Category{values: make(map[string]string)}
}

// Get returns the reply for an exact key.
func (c *Category) Get(key string) (string, bool) {
	if c == nil || c.values == nil {
		return "", false
	}
	v, ok := c.values[key]
	return v, ok
}

// Set stores a key, appending it to the order if previously unseen.
func (c *Category) Set(key, value string) {
	if c.values == nil {
		c.values = make(map[string]string)
	}
	if _, exists := c.values[key]; !exists {
		c.keys = append(c.keys, key)
	}
	c.values[key] = value
}

// Delete removes a key. It reports whether the key existed.
func (c *Category) Delete(key string) bool {
	if c == nil || c.values == nil {
		return false
	}
	if _, exists := c.values[key]; !exists {
		return false
	}
	delete(c.values, key)
	for i, k := range c.keys {
		if k == key {
			c.keys = append(c.keys[:i], c.keys[i+1:]...)
			break
		}
	}
	return true
}

// Keys returns the keys in document order.
func (c *Category) Keys() []string {
	if c == nil {
		return nil
	}
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}

// Len returns the number of keys.
func (c *Category) Len() int {
	if c == nil {
		return 0
	}
	return len(c.keys)
}

// Clone returns a deep copy of the category.
func (c *Category) Clone() *Category {
	out := NewCategory()
	if c == nil {
		return out
	}
	for _, k := range c.keys {
		out.Set(k, c.values[k])
	}
	return out
}

// UnmarshalJSON decodes a JSON object preserving its key order.
func (c *Category) UnmarshalJSON(data []byte) error {
	c.keys = nil
	c.values = make(map[string]string)

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("category must be a JSON object, got %v", tok)
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("unexpected category key token %v", keyTok)
		}
		var value string
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("category key %q: %w", key, err)
		}
		c.Set(key, value)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

// MarshalJSON encodes the category as a JSON object in document order.
func (c *Category) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range c.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(c.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
