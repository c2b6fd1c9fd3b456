package crud

import (
	"encoding/json"
	"fmt"

	"github.com/conduit-lang/nestwrite/internal/orm/schema"
	"github.com/spf13/cast"
)

// IsScalar reports whether v can stand for a primary key value
func IsScalar(v interface{}) bool {
	switch v.(type) {
	case string, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	}
	return false
}

// NormalizeKey converts a key value from a payload into the resource's key type.
// JSON numbers decode as float64, so integer keys are coerced.
func NormalizeKey(resource *schema.ResourceSchema, key interface{}) (interface{}, error) {
	if key == nil {
		return nil, nil
	}
	if resource.KeyType == schema.KeyInt {
		if f, ok := key.(float64); ok && f != float64(int64(f)) {
			return nil, fmt.Errorf("%s key %v is not an integer", resource.Name, key)
		}
		n, err := cast.ToInt64E(key)
		if err != nil {
			return nil, fmt.Errorf("%s key %v is not an integer: %w", resource.Name, key, err)
		}
		return n, nil
	}
	if !IsScalar(key) {
		return nil, fmt.Errorf("%s key %v is not a scalar", resource.Name, key)
	}
	return cast.ToString(key), nil
}

// KeyString returns the canonical string form of a scalar key, used to compare keys
// coming from different sources.
func KeyString(key interface{}) string {
	switch k := key.(type) {
	case float64:
		if k == float64(int64(k)) {
			return cast.ToString(int64(k))
		}
	case float32:
		if k == float32(int64(k)) {
			return cast.ToString(int64(k))
		}
	case []byte:
		return string(k)
	}
	return cast.ToString(key)
}
