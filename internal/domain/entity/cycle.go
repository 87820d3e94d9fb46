package entity

const (
	CycleStatusOK    = "OK"
	CycleStatusError = "ERROR"
)

type CycleRequest struct {
	Tenant      string
	BatchSize   int
	EmitFullRow bool
	RequestID   string
}

// CycleResult summarises one watch cycle. Errors is never nil.
type CycleResult struct {
	Tenant                     string   `json:"tenant"`
	WatcherName                string   `json:"watcher_name"`
	Status                     string   `json:"status"`
	ObservedCount              int      `json:"observed_count"`
	NewEventsCount             int      `json:"new_events_count"`
	DispatchedCount            int      `json:"dispatched_count"`
	SkippedExistingEventsCount int      `json:"skipped_existing_events_count"`
	LastSeenIDBefore           int64    `json:"last_seen_id_before"`
	LastSeenIDAfter            int64    `json:"last_seen_id_after"`
	DurationMS                 int64    `json:"duration_ms"`
	Errors                     []string `json:"errors"`
}
