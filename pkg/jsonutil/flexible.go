// Package jsonutil decodes loosely typed JSON fields the way language
// models actually emit them: numbers where strings belong, quoted
// numbers where integers belong, scalars where lists belong.
package jsonutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FlexibleStringValue converts a json.RawMessage to a string, tolerating
// numbers and booleans in place of strings. Returns empty string for
// null or missing input.
func FlexibleStringValue(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var strVal string
	if err := json.Unmarshal(raw, &strVal); err == nil {
		return strVal
	}

	var numVal float64
	if err := json.Unmarshal(raw, &numVal); err == nil {
		if numVal == float64(int64(numVal)) {
			return strconv.FormatInt(int64(numVal), 10)
		}
		return strconv.FormatFloat(numVal, 'g', -1, 64)
	}

	var boolVal bool
	if err := json.Unmarshal(raw, &boolVal); err == nil {
		return strconv.FormatBool(boolVal)
	}

	return string(raw)
}

// FlexibleIntValue converts a JSON number or numeric string to an int.
// The second return is false for null, missing or non-numeric input.
func FlexibleIntValue(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}

	var numVal float64
	if err := json.Unmarshal(raw, &numVal); err == nil {
		return int(numVal), true
	}

	var strVal string
	if err := json.Unmarshal(raw, &strVal); err == nil {
		if n, err := strconv.Atoi(strings.TrimSpace(strVal)); err == nil {
			return n, true
		}
	}

	return 0, false
}

// FlexibleValue decodes a JSON scalar or flat array of scalars into its
// Go value. Integral numbers come back as int64, other numbers as
// float64, so drivers bind them without float noise. Objects and nested
// arrays are rejected.
func FlexibleValue(raw json.RawMessage) (any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return normalizeValue(v, false)
}

func normalizeValue(v any, inList bool) (any, error) {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, nil
		}
		f, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", t.String())
		}
		return f, nil
	case []any:
		if inList {
			return nil, fmt.Errorf("nested lists are not valid values")
		}
		out := make([]any, len(t))
		for i, el := range t {
			n, err := normalizeValue(el, true)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case map[string]any:
		return nil, fmt.Errorf("objects are not valid values")
	default:
		return v, nil
	}
}
