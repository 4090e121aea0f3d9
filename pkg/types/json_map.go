package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONMap stores an arbitrary key/value payload as a JSON column.
type JSONMap map[string]string

// Value serializes the map for persistence.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan deserializes JSON text or bytes back into the map.
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("jsonmap: unsupported scan type %T", value)
	}
}
