package api

import (
	"time"

	"seriesd/internal/history"
	"seriesd/internal/series"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Series describes an open series worker.
type Series struct {
	Key            string  `json:"key"`
	RunID          string  `json:"runId"`
	State          string  `json:"state"`
	Items          int     `json:"items"`
	Failures       int     `json:"failures"`
	TimeoutSeconds float64 `json:"timeoutSeconds"`
	IdleSeconds    float64 `json:"idleSeconds"`
	StartedAt      string  `json:"startedAt,omitempty"`
	LastActivity   string  `json:"lastActivity,omitempty"`
	Terminated     bool    `json:"terminated"`
}

// HistoryRun describes one finished series.
type HistoryRun struct {
	ID              int64   `json:"id"`
	RunID           string  `json:"runId"`
	Key             string  `json:"key"`
	Pipeline        string  `json:"pipeline"`
	Outcome         string  `json:"outcome"`
	Items           int     `json:"items"`
	Failures        int     `json:"failures"`
	StartedAt       string  `json:"startedAt,omitempty"`
	FinishedAt      string  `json:"finishedAt,omitempty"`
	DurationSeconds float64 `json:"durationSeconds"`
	Terminated      bool    `json:"terminated"`
	ErrorMessage    string  `json:"errorMessage,omitempty"`
}

// CheckResult mirrors a preflight check.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// Counters summarizes what the daemon has processed since it started.
type Counters struct {
	Ingested       int64 `json:"ingested"`
	Skipped        int64 `json:"skipped"`
	Failed         int64 `json:"failed"`
	StartedSeries  int64 `json:"startedSeries"`
	FinishedSeries int64 `json:"finishedSeries"`
	FailedSeries   int64 `json:"failedSeries"`
	SetupFailures  int64 `json:"setupFailures"`
	ItemsHandled   int64 `json:"itemsHandled"`
	ItemFailures   int64 `json:"itemFailures"`
	Rejected       int64 `json:"rejected"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running        bool          `json:"running"`
	PID            int           `json:"pid"`
	Mode           string        `json:"mode"`
	Pipeline       string        `json:"pipeline"`
	SourceDir      string        `json:"sourceDir"`
	DestDir        string        `json:"destDir,omitempty"`
	KeyFormat      string        `json:"keyFormat"`
	IdleTimeout    float64       `json:"idleTimeoutSeconds"`
	StartedAt      string        `json:"startedAt,omitempty"`
	UptimeSeconds  float64       `json:"uptimeSeconds"`
	ActiveSeries   int           `json:"activeSeries"`
	PendingFiles   int           `json:"pendingFiles"`
	Counters       Counters      `json:"counters"`
	LockFilePath   string        `json:"lockFilePath"`
	HistoryPath    string        `json:"historyPath,omitempty"`
	Preflight      []CheckResult `json:"preflight"`
	RegistryClosed bool          `json:"registryClosed"`
}

// SeriesListResponse wraps the open series.
type SeriesListResponse struct {
	Series []Series `json:"series"`
}

// HistoryResponse wraps finished series, newest first.
type HistoryResponse struct {
	Runs []HistoryRun `json:"runs"`
}

// FromWorkerInfo converts a worker snapshot taken at now.
func FromWorkerInfo(info series.WorkerInfo, now time.Time) Series {
	out := Series{
		Key:            info.Key,
		RunID:          info.ID,
		State:          info.StateName,
		Items:          info.Items,
		Failures:       info.Failures,
		TimeoutSeconds: info.Timeout.Seconds(),
		StartedAt:      formatTime(info.StartedAt),
		LastActivity:   formatTime(info.LastActivity),
		Terminated:     info.Terminated,
	}
	if !info.LastActivity.IsZero() {
		out.IdleSeconds = now.Sub(info.LastActivity).Seconds()
	}
	return out
}

// FromRun converts a ledger row.
func FromRun(run history.Run) HistoryRun {
	return HistoryRun{
		ID:              run.ID,
		RunID:           run.RunID,
		Key:             run.Key,
		Pipeline:        run.Pipeline,
		Outcome:         string(run.Outcome),
		Items:           run.Items,
		Failures:        run.Failures,
		StartedAt:       formatTime(run.StartedAt),
		FinishedAt:      formatTime(run.FinishedAt),
		DurationSeconds: run.Duration().Seconds(),
		Terminated:      run.Terminated,
		ErrorMessage:    run.Error,
	}
}

// FromRuns converts a slice of ledger rows.
func FromRuns(runs []history.Run) []HistoryRun {
	out := make([]HistoryRun, 0, len(runs))
	for _, run := range runs {
		out = append(out, FromRun(run))
	}
	return out
}

// ParseTime reads a timestamp produced by this package. Empty or invalid
// values return the zero time.
func ParseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(dateTimeFormat, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
