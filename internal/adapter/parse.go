package adapter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// row is one upstream record with its fields left undecoded
type row map[string]json.RawMessage

// decodeRows accepts every envelope Taostats has used for list endpoints:
// {"data":[...]}, {"data":{...}}, a bare array, or a bare object.
func decodeRows(body []byte) ([]row, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("empty response body")
	}

	switch body[0] {
	case '[':
		var rows []row
		if err := json.Unmarshal(body, &rows); err != nil {
			return nil, fmt.Errorf("failed to decode array response: %w", err)
		}
		return rows, nil
	case '{':
		var obj row
		if err := json.Unmarshal(body, &obj); err != nil {
			return nil, fmt.Errorf("failed to decode object response: %w", err)
		}
		data, ok := obj["data"]
		if !ok || isNull(data) {
			return []row{obj}, nil
		}
		return decodeRows(data)
	default:
		return nil, fmt.Errorf("unexpected response body starting with %q", body[0])
	}
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(bytes.TrimSpace(raw)) == "null"
}

// field returns the first present, non-null value among names
func (r row) field(names ...string) (json.RawMessage, bool) {
	for _, name := range names {
		if raw, ok := r[name]; ok && !isNull(raw) {
			return raw, true
		}
	}
	return nil, false
}

// decimalField reads a number encoded as a JSON number or string
func (r row) decimalField(names ...string) (decimal.Decimal, bool) {
	raw, ok := r.field(names...)
	if !ok {
		return decimal.Zero, false
	}

	var s string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return decimal.Zero, false
		}
	} else {
		s = string(raw)
	}

	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// intField reads an integer encoded as a number or string
func (r row) intField(names ...string) (int, bool) {
	d, ok := r.decimalField(names...)
	if !ok || !d.IsInteger() {
		return 0, false
	}
	return int(d.IntPart()), true
}

// stringField reads a string, or the ss58 form of an account object
// ({"ss58": "...", "hex": "..."}).
func (r row) stringField(names ...string) (string, bool) {
	raw, ok := r.field(names...)
	if !ok {
		return "", false
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return s, s != ""
	case '{':
		var account row
		if err := json.Unmarshal(raw, &account); err != nil {
			return "", false
		}
		return account.stringField("ss58", "address", "hex")
	default:
		s := string(raw)
		if _, err := strconv.ParseFloat(s, 64); err == nil {
			return s, true
		}
		return "", false
	}
}
