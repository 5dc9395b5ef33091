package prompt

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MarshalJSON encodes the literal as an array of strings. Only text
// components have an encoding.
func (l Literal) MarshalJSON() ([]byte, error) {
	out := make([]string, 0, len(l.components))
	for _, c := range l.components {
		t, ok := c.Payload.(Text)
		if !ok {
			return nil, fmt.Errorf("%w: encoding %s payload", ErrUnimplemented, c.Payload.Kind())
		}
		out = append(out, string(t))
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts an array of strings or a single string.
func (l *Literal) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = New(s)
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode literal: %w", err)
	}
	components := make([]Component, 0, len(raw))
	for i, r := range raw {
		var s string
		if err := json.Unmarshal(r, &s); err != nil {
			return fmt.Errorf("%w: decoding component %d: only text is supported", ErrUnimplemented, i)
		}
		components = append(components, Component{Payload: Text(s)})
	}
	*l = Literal{components: components}
	return nil
}
