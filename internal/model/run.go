package model

import "time"

// RunStatus is the lifecycle state of an analysis run.
type RunStatus string

const (
	RunStatusPending     RunStatus = "pending"
	RunStatusDiscovering RunStatus = "discovering"
	RunStatusEnriching   RunStatus = "enriching"
	RunStatusAnalyzing   RunStatus = "analyzing"
	RunStatusReporting   RunStatus = "reporting"
	RunStatusCompleted   RunStatus = "completed"
	RunStatusFailed      RunStatus = "failed"
)

var nextStatus = map[RunStatus]RunStatus{
	RunStatusPending:     RunStatusDiscovering,
	RunStatusDiscovering: RunStatusEnriching,
	RunStatusEnriching:   RunStatusAnalyzing,
	RunStatusAnalyzing:   RunStatusReporting,
	RunStatusReporting:   RunStatusCompleted,
}

// Terminal reports whether no further transition is allowed.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// CanTransition reports whether s may move to next. Any non-terminal state
// may fail; otherwise states advance strictly in order.
func (s RunStatus) CanTransition(next RunStatus) bool {
	if s.Terminal() {
		return false
	}
	if next == RunStatusFailed {
		return true
	}
	return nextStatus[s] == next
}

// StatusTransition is one recorded state change.
type StatusTransition struct {
	From RunStatus `json:"from"`
	To   RunStatus `json:"to"`
	At   time.Time `json:"at"`
}

// StageTiming records the wall-clock span of a pipeline stage.
type StageTiming struct {
	Stage      RunStatus `json:"stage"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
	DurationMs int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
}

// Run is a persisted analysis run.
type Run struct {
	ID          string             `json:"id"`
	Input       BusinessInput      `json:"input"`
	Status      RunStatus          `json:"status"`
	Reason      string             `json:"reason,omitempty"`
	Transitions []StatusTransition `json:"transitions"`
	Report      *CompetitorReport  `json:"report,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// TokenUsage tracks LLM token consumption.
type TokenUsage struct {
	InputTokens         int `json:"input_tokens"`
	OutputTokens        int `json:"output_tokens"`
	CacheCreationTokens int `json:"cache_creation_tokens,omitempty"`
	CacheReadTokens     int `json:"cache_read_tokens,omitempty"`
	Calls               int `json:"calls"`
}

// Add accumulates other into u.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CacheCreationTokens += other.CacheCreationTokens
	u.CacheReadTokens += other.CacheReadTokens
	u.Calls += other.Calls
}
