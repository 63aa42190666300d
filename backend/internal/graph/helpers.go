package graph

import (
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// ============================================================================
// Row Helpers
// ============================================================================

func getStringFromRow(row map[string]interface{}, key string) string {
	if str, ok := row[key].(string); ok {
		return str
	}
	return ""
}

func getInt64FromRow(row map[string]interface{}, key string) int64 {
	switch v := row[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

func getFloat64FromRow(row map[string]interface{}, key string) float64 {
	switch v := row[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	}
	return 0.0
}

func getBoolFromRow(row map[string]interface{}, key string) bool {
	if b, ok := row[key].(bool); ok {
		return b
	}
	return false
}

// getTimeFromRow accepts native times, driver temporal values and RFC3339 strings.
func getTimeFromRow(row map[string]interface{}, key string) time.Time {
	switch v := row[key].(type) {
	case time.Time:
		return v
	case dbtype.LocalDateTime:
		return v.Time()
	case string:
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

func copyProps(props map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}
