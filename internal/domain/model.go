// Package domain defines core business entities and value objects for termai.
//
// The domain layer is independent of infrastructure concerns and represents
// pure data structures shared by the terminal, context, and analysis layers.
package domain

import "time"

// CommandKind classifies a command for relevance scoring.
type CommandKind string

const (
	KindNavigation CommandKind = "navigation"
	KindFileOp     CommandKind = "file_op"
	KindText       CommandKind = "text"
	KindSystem     CommandKind = "system"
	KindNetwork    CommandKind = "network"
	KindGit        CommandKind = "git"
	KindPackage    CommandKind = "package"
	KindDev        CommandKind = "dev"
	KindDangerous  CommandKind = "dangerous"
	KindOther      CommandKind = "other"
)

// CommandRecord captures one executed command. Immutable once finalized.
type CommandRecord struct {
	Command   string        `json:"command"`
	Directory string        `json:"directory"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   time.Time     `json:"ended_at"`
	ExitCode  int           `json:"exit_code"`
	Output    string        `json:"output"`
	ErrorText string        `json:"error"`
	Duration  time.Duration `json:"duration"`
	Kind      CommandKind   `json:"kind"`
}

// IsError reports whether the command exited non-zero.
func (r CommandRecord) IsError() bool {
	return r.ExitCode != 0
}

// Verb returns the leading word of the command text.
func (r CommandRecord) Verb() string {
	for i := 0; i < len(r.Command); i++ {
		if r.Command[i] == ' ' {
			return r.Command[:i]
		}
	}
	return r.Command
}

// ContextEntry is a CommandRecord with its relevance score, computed once at
// finalization and never revised.
type ContextEntry struct {
	Record    CommandRecord `json:"record"`
	Relevance float64       `json:"relevance"`
}

// TriggerKind is the closed set of trigger variants.
type TriggerKind string

const (
	TriggerError   TriggerKind = "error"
	TriggerPattern TriggerKind = "pattern"
	TriggerKeyword TriggerKind = "keyword"
	TriggerManual  TriggerKind = "manual"
)

// Trigger is a rule deciding whether a completed command warrants analysis.
type Trigger struct {
	Kind        TriggerKind
	Pattern     string
	Keyword     string
	Priority    int // 1-10, higher fires first
	Description string
	Cooldown    time.Duration
}

// RequestState tracks an AnalysisRequest through its lifecycle.
type RequestState string

const (
	StateQueued     RequestState = "queued"
	StateDispatched RequestState = "dispatched"
	StateSucceeded  RequestState = "succeeded"
	StateFailed     RequestState = "failed"
	StateResolved   RequestState = "resolved"
	StateAbandoned  RequestState = "abandoned"
)

// AnalysisRequest is one queued unit of work for the analysis engine.
type AnalysisRequest struct {
	ID        string
	Trigger   Trigger
	Payload   ContextPayload
	Priority  int
	CreatedAt time.Time
	Retries   int
	State     RequestState
}

// ContextPayload is the redacted, token-budgeted context shipped with an
// analysis request.
type ContextPayload struct {
	Entries []ContextEntry
	Summary string
	Subject CommandRecord // the command that fired the trigger
	Manual  string        // user text for manual requests
}

// CommandTexts returns up to n most recent command texts in payload order.
func (p ContextPayload) CommandTexts(n int) []string {
	entries := p.Entries
	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	texts := make([]string, 0, len(entries))
	for _, e := range entries {
		texts = append(texts, e.Record.Command)
	}
	return texts
}

// AnalysisResponse is the parsed inference output.
type AnalysisResponse struct {
	Content     string
	Suggestions []string
	Warnings    []string
	Errors      []string
	Confidence  float64
	Elapsed     time.Duration
	FromCache   bool
}

// CacheEntry stores one analysis response under its request key.
type CacheEntry struct {
	Key       string
	Response  AnalysisResponse
	CreatedAt time.Time
}

// CacheStats exposes hit/miss/eviction counters.
type CacheStats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int
}

// EventType names the bus topics.
type EventType string

const (
	EventCommandStart      EventType = "command-start"
	EventCommandEnd        EventType = "command-end"
	EventOutput            EventType = "output"
	EventContextUpdated    EventType = "context-updated"
	EventAnalysisRequested EventType = "analysis-requested"
	EventAnalysisCompleted EventType = "analysis-completed"
	EventAnalysisFailed    EventType = "analysis-failed"
	EventSessionStopped    EventType = "session-stopped"
)

// Event is one published bus message.
type Event struct {
	Type     EventType
	Priority int
	At       time.Time
	Payload  any
}

// CommandEndPayload accompanies EventCommandEnd.
type CommandEndPayload struct {
	Record CommandRecord
}

// AnalysisCompletedPayload accompanies EventAnalysisCompleted.
type AnalysisCompletedPayload struct {
	Request  AnalysisRequest
	Response AnalysisResponse
}

// AnalysisFailedPayload accompanies EventAnalysisFailed.
type AnalysisFailedPayload struct {
	Request AnalysisRequest
	Reason  string
}

// SessionStoppedPayload accompanies EventSessionStopped. ExitCode is the
// shell's exit status, -1 when it died from a signal.
type SessionStoppedPayload struct {
	SessionID string
	ExitCode  int
}

// SessionInfo describes the live session.
type SessionInfo struct {
	ID         string    `json:"id"`
	Shell      string    `json:"shell"`
	WorkingDir string    `json:"working_dir"`
	Cols       int       `json:"cols"`
	Rows       int       `json:"rows"`
	StartedAt  time.Time `json:"started_at"`
	GitBranch  string    `json:"git_branch,omitempty"`
	GitDirty   bool      `json:"git_dirty,omitempty"`
	Task       string    `json:"task,omitempty"`
}

// SessionSnapshot is the exportable view of a finished or running session.
type SessionSnapshot struct {
	Info      SessionInfo     `json:"info"`
	Records   []CommandRecord `json:"records"`
	Important []ContextEntry  `json:"important"`
	Stats     HistoryStats    `json:"stats"`
}

// HistoryStats summarizes command history.
type HistoryStats struct {
	Total       int            `json:"total"`
	Errors      int            `json:"errors"`
	ErrorRate   float64        `json:"error_rate"`
	AvgDuration time.Duration  `json:"avg_duration"`
	TopVerbs    map[string]int `json:"top_verbs"`
}
