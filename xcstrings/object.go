package xcstrings

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// member is one key of a JSON object with its compacted raw value.
type member struct {
	key string
	raw json.RawMessage
}

// object is a JSON object that remembers key order and keeps values it does
// not interpret as raw bytes.
type object struct {
	members []member
	index   map[string]int
}

func newObject() *object {
	return &object{index: make(map[string]int)}
}

// parseObject decodes a JSON object with token streaming so key order from
// the document survives a round trip.
func parseObject(data []byte) (*object, error) {
	o := newObject()
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected '{', got %v", tok)
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("expected string key, got %T", keyTok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("value for %q: %w", key, err)
		}
		var compact bytes.Buffer
		if err := json.Compact(&compact, raw); err != nil {
			return nil, fmt.Errorf("value for %q: %w", key, err)
		}
		o.set(key, compact.Bytes())
	}

	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *object) get(key string) (json.RawMessage, bool) {
	idx, ok := o.index[key]
	if !ok {
		return nil, false
	}
	return o.members[idx].raw, true
}

// set replaces the value of key in place, or appends key when it is new.
func (o *object) set(key string, raw json.RawMessage) {
	if idx, ok := o.index[key]; ok {
		o.members[idx].raw = raw
		return
	}
	o.index[key] = len(o.members)
	o.members = append(o.members, member{key: key, raw: raw})
}

func (o *object) has(key string) bool {
	_, ok := o.index[key]
	return ok
}

func (o *object) keys() []string {
	keys := make([]string, len(o.members))
	for i, m := range o.members {
		keys[i] = m.key
	}
	return keys
}

// compact writes the object as compact JSON.
func (o *object) compact(buf *bytes.Buffer) {
	buf.WriteByte('{')
	for i, m := range o.members {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(marshalString(m.key))
		buf.WriteByte(':')
		buf.Write(m.raw)
	}
	buf.WriteByte('}')
}

func (o *object) bytes() json.RawMessage {
	var buf bytes.Buffer
	o.compact(&buf)
	return buf.Bytes()
}

// marshalString encodes s as a JSON string without escaping HTML characters.
// Non-ASCII text is written as UTF-8.
func marshalString(s string) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	return bytes.TrimRight(buf.Bytes(), "\n")
}
