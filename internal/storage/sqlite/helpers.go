package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Timestamps are stored as Unix milliseconds so queue ordering stays
// meaningful for items touched within the same second.

func timeToMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func millisToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullableMillis(t *time.Time) sql.NullInt64 {
	if t == nil || t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Valid: true, Int64: timeToMillis(*t)}
}

func millisToTimePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := millisToTime(v.Int64)
	return &t
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{Valid: true, String: s}
}

// marshalJSON serializes a value to a nullable JSON column. Nil maps and
// nil pointers store as NULL.
func marshalJSON(v interface{}) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	switch m := v.(type) {
	case map[string]interface{}:
		if m == nil {
			return sql.NullString{}, nil
		}
	case []string:
		if m == nil {
			return sql.NullString{}, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to serialize json column: %w", err)
	}
	if string(data) == "null" {
		return sql.NullString{}, nil
	}
	return sql.NullString{Valid: true, String: string(data)}, nil
}

// unmarshalMap deserializes a nullable JSON column into a map.
func unmarshalMap(v sql.NullString) (map[string]interface{}, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(v.String), &m); err != nil {
		return nil, fmt.Errorf("failed to parse json column: %w", err)
	}
	return m, nil
}

// unmarshalInto parses a JSON column into a typed destination.
func unmarshalInto(data string, dest interface{}) error {
	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return fmt.Errorf("failed to parse json column: %w", err)
	}
	return nil
}

// unmarshalStrings deserializes a nullable JSON column into a string slice.
func unmarshalStrings(v sql.NullString) ([]string, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(v.String), &out); err != nil {
		return nil, fmt.Errorf("failed to parse json column: %w", err)
	}
	return out, nil
}

// isUniqueViolation reports whether err is a SQLite unique constraint
// failure.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
