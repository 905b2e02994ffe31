package toolclient

import (
	"encoding/json"
	"reflect"
	"strconv"
	"strings"

	"github.com/effective-security/toolrouter/pkg/schema"
	"github.com/effective-security/xlog"
	"github.com/invopop/jsonschema"
)

var truthy = map[string]bool{
	"true": true,
	"1":    true,
	"yes":  true,
	"on":   true,
}

// CoerceArguments converts argument values to the types declared by the schema.
// Numeric strings become numbers, boolean strings map through the truthy set,
// array strings are decoded as JSON. Undeclared arguments pass through,
// and a value that fails to convert is kept as is.
// The input map is not modified.
func CoerceArguments(args map[string]any, s *jsonschema.Schema) map[string]any {
	res := make(map[string]any, len(args))
	for k, v := range args {
		res[k] = v
	}
	if !schema.HasProperties(s) {
		return res
	}

	for key, value := range args {
		typ := schema.PropertyType(s, key)
		if typ == "" {
			continue
		}
		converted, err := coerce(typ, value)
		if err != nil {
			logger.KV(xlog.WARNING,
				"status", "coerce_failed",
				"param", key,
				"type", typ,
				"err", err.Error(),
			)
			continue
		}
		res[key] = converted
	}
	return res
}

func coerce(typ string, value any) (any, error) {
	str, isString := value.(string)
	switch typ {
	case "integer":
		if isString {
			return strconv.Atoi(strings.TrimSpace(str))
		}
	case "number":
		if isString {
			return strconv.ParseFloat(strings.TrimSpace(str), 64)
		}
	case "boolean":
		if isString {
			return truthy[strings.ToLower(str)], nil
		}
		return isTruthy(value), nil
	case "array":
		if isString {
			var v any
			if err := json.Unmarshal([]byte(str), &v); err != nil {
				// not JSON, the original string is kept
				return value, nil
			}
			return v, nil
		}
	}
	return value, nil
}

func isTruthy(v any) bool {
	if v == nil {
		return false
	}
	switch val := v.(type) {
	case bool:
		return val
	case float64:
		return val != 0
	case int:
		return val != 0
	case string:
		return val != ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
		return rv.Len() > 0
	}
	return true
}
