package store

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Attribute value kinds as stored.
const (
	attrFloat  = "float"
	attrInt    = "int"
	attrBool   = "bool"
	attrString = "string"
	attrFloats = "floats"
)

// encodeAttr converts a supported attribute value to its stored form.
// Supported values are float64, float32, int, int64, bool, string and []float64.
func encodeAttr(v any) (kind, value string, err error) {
	switch x := v.(type) {
	case float64:
		return attrFloat, strconv.FormatFloat(x, 'g', -1, 64), nil
	case float32:
		return attrFloat, strconv.FormatFloat(float64(x), 'g', -1, 64), nil
	case int:
		return attrInt, strconv.FormatInt(int64(x), 10), nil
	case int64:
		return attrInt, strconv.FormatInt(x, 10), nil
	case bool:
		return attrBool, strconv.FormatBool(x), nil
	case string:
		return attrString, x, nil
	case []float64:
		b, err := json.Marshal(x)
		if err != nil {
			return "", "", err
		}
		return attrFloats, string(b), nil
	}
	return "", "", fmt.Errorf("store: unsupported attribute type %T", v)
}

func decodeAttr(kind, value string) (any, error) {
	switch kind {
	case attrFloat:
		return strconv.ParseFloat(value, 64)
	case attrInt:
		return strconv.ParseInt(value, 10, 64)
	case attrBool:
		return strconv.ParseBool(value)
	case attrString:
		return value, nil
	case attrFloats:
		var out []float64
		if err := json.Unmarshal([]byte(value), &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, fmt.Errorf("store: unknown attribute kind %q", kind)
}
