package logging

const (
	// FieldComponent is the structured logging key for component names.
	FieldComponent = "component"
	// FieldEventType names the event a log line reports, e.g. series_worker_started.
	FieldEventType = "event_type"
	// FieldErrorHint suggests the next step to an operator.
	FieldErrorHint = "error_hint"
	// FieldImpact describes the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldSeriesKey is the key of the series a log line belongs to.
	FieldSeriesKey = "series_key"
	// FieldWorkerID is the run id of the series worker.
	FieldWorkerID = "worker_id"
	// FieldPath is the source path of an item.
	FieldPath = "path"
	// FieldPipeline is the configured pipeline kind.
	FieldPipeline = "pipeline"
	// FieldSessionID identifies one daemon run.
	FieldSessionID = "session_id"
)
