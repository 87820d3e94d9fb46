package entity

import (
	"fmt"
	"strconv"
	"time"
)

// SourceRow is a row read from a tenant source table, keyed by column name.
type SourceRow map[string]any

// ID returns the integer identifier stored under column.
func (r SourceRow) ID(column string) (int64, error) {
	raw, ok := r[column]
	if !ok || raw == nil {
		return 0, fmt.Errorf("source row: missing %q column", column)
	}
	switch v := raw.(type) {
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case int:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case float64:
		if v != float64(int64(v)) {
			return 0, fmt.Errorf("source row: non-integer %q value %v", column, v)
		}
		return int64(v), nil
	case []byte:
		return strconv.ParseInt(string(v), 10, 64)
	case string:
		return strconv.ParseInt(v, 10, 64)
	}
	return 0, fmt.Errorf("source row: unsupported %q type %T", column, raw)
}

// Event is the canonical record delivered to downstream sinks.
type Event struct {
	EventID     string         `json:"event_id"`
	EventType   string         `json:"event_type"`
	Tenant      string         `json:"tenant"`
	SourceRowID int64          `json:"source_row_id"`
	ObservedAt  string         `json:"observed_at"`
	Data        map[string]any `json:"data,omitempty"`
}

// EventID derives the dedup key. It does not depend on observation time.
func EventID(eventType, tenant string, sourceRowID int64) string {
	return fmt.Sprintf("%s:%s:%d", eventType, tenant, sourceRowID)
}

func FormatObservedAt(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
