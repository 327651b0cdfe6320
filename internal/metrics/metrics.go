package metrics

import (
	"sync"
	"time"
)

type Metrics struct {
	mu sync.RWMutex

	// Counters
	RunsTotal           int64
	NewsCollected       int64
	DuplicatesFiltered  int64
	EvaluationsAccepted int64
	EvaluationsRejected int64
	EvaluationsFailed   int64
	MessagesSent        int64
	MessagesFailed      int64

	// Timings
	LastProcessingTime    time.Duration
	AverageProcessingTime time.Duration
	TotalProcessingTime   time.Duration
	ProcessingCount       int64

	// Status
	LastRunID     string
	LastRunTime   time.Time
	LastErrorTime time.Time
	LastError     string
	IsHealthy     bool
}

var Global = New()

func New() *Metrics {
	return &Metrics{IsHealthy: true}
}

// RunStats is the per-run delta folded into the counters by RecordRun.
type RunStats struct {
	Collected  int
	Duplicates int
	Accepted   int
	Rejected   int
	Failed     int
	Sent       int
	SendFailed int
}

func (m *Metrics) RecordRun(runID string, s RunStats, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.RunsTotal++
	m.NewsCollected += int64(s.Collected)
	m.DuplicatesFiltered += int64(s.Duplicates)
	m.EvaluationsAccepted += int64(s.Accepted)
	m.EvaluationsRejected += int64(s.Rejected)
	m.EvaluationsFailed += int64(s.Failed)
	m.MessagesSent += int64(s.Sent)
	m.MessagesFailed += int64(s.SendFailed)

	m.LastProcessingTime = duration
	m.TotalProcessingTime += duration
	m.ProcessingCount++
	m.AverageProcessingTime = m.TotalProcessingTime / time.Duration(m.ProcessingCount)

	m.LastRunID = runID
	m.LastRunTime = time.Now()
	m.IsHealthy = true
}

func (m *Metrics) SetError(err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastError = err
	m.LastErrorTime = time.Now()
	m.IsHealthy = false
}

func (m *Metrics) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.IsHealthy
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"runs_total":                 m.RunsTotal,
		"news_collected":             m.NewsCollected,
		"duplicates_filtered":        m.DuplicatesFiltered,
		"evaluations_accepted":       m.EvaluationsAccepted,
		"evaluations_rejected":       m.EvaluationsRejected,
		"evaluations_failed":         m.EvaluationsFailed,
		"messages_sent":              m.MessagesSent,
		"messages_failed":            m.MessagesFailed,
		"last_processing_time_ms":    m.LastProcessingTime.Milliseconds(),
		"average_processing_time_ms": m.AverageProcessingTime.Milliseconds(),
		"last_run_id":                m.LastRunID,
		"last_run_time":              formatTime(m.LastRunTime),
		"last_error_time":            formatTime(m.LastErrorTime),
		"last_error":                 m.LastError,
		"is_healthy":                 m.IsHealthy,
	}
}
