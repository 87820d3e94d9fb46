package usecase

import (
	"math"
	"strconv"
	"time"

	"github.com/hoamxTrav/hoamx-watcher-agent/internal/domain/entity"
)

// EventBuilder turns source rows into canonical events. Only the clock is
// impure; event ids depend on the row alone.
type EventBuilder struct {
	EventType string
	IDColumn  string
	Now       func() time.Time
}

func NewEventBuilder(eventType, idColumn string) EventBuilder {
	return EventBuilder{EventType: eventType, IDColumn: idColumn, Now: time.Now}
}

func (b EventBuilder) Build(tenant string, row entity.SourceRow, includeFullRow bool) (entity.Event, error) {
	rowID, err := row.ID(b.IDColumn)
	if err != nil {
		return entity.Event{}, err
	}
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}

	ev := entity.Event{
		EventID:     entity.EventID(b.EventType, tenant, rowID),
		EventType:   b.EventType,
		Tenant:      tenant,
		SourceRowID: rowID,
		ObservedAt:  entity.FormatObservedAt(now()),
	}
	if includeFullRow {
		ev.Data = rowData(row)
	}
	return ev, nil
}

func rowData(row entity.SourceRow) map[string]any {
	data := make(map[string]any, len(row))
	for k, v := range row {
		switch val := v.(type) {
		case []byte:
			data[k] = string(val)
		case time.Time:
			data[k] = val.UTC().Format(time.RFC3339Nano)
		case float64:
			data[k] = finiteOrString(val)
		case float32:
			data[k] = finiteOrString(float64(val))
		default:
			data[k] = val
		}
	}
	return data
}

// finiteOrString keeps NaN and infinities (valid in postgres float columns)
// as "NaN", "+Inf" and "-Inf", since JSON has no literal for them.
func finiteOrString(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	return v
}
