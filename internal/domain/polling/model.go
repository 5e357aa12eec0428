package polling

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Trigger kinds for a poll run.
const (
	TriggerManual    = "manual"
	TriggerScheduled = "scheduled"
)

// PollRun lifecycle. A run is created in_progress and transitions exactly
// once to a terminal status; it is immutable afterwards.
const (
	RunInProgress = "in_progress"
	RunSuccess    = "success"
	RunNoMessages = "no_messages"
	RunError      = "error"
)

// Per-message processing outcomes.
const (
	MsgProcessed = "processed"
	MsgNewRecord = "new_record"
	MsgUnmatched = "unmatched"
	MsgError     = "error"
)

// Classification of an inbound message.
const (
	ClassSolicited   = "solicited"
	ClassUnsolicited = "unsolicited"
	ClassUnknown     = "unknown"
)

// PollRun maps to the poll_runs table: one execution of the polling
// procedure, with the envelopes exchanged and the aggregate outcome.
type PollRun struct {
	ID                uuid.UUID               `db:"id" json:"id"`
	TriggerKind       string                  `db:"trigger_kind" json:"trigger_kind"`
	Status            string                  `db:"status" json:"status"`
	OutboundEnvelope  json.RawMessage         `db:"outbound_envelope" json:"outbound_envelope,omitempty"`
	InboundEnvelope   json.RawMessage         `db:"inbound_envelope" json:"inbound_envelope,omitempty"`
	ResponseCode      *string                 `db:"response_code" json:"response_code,omitempty"`
	MessagesReceived  int                     `db:"messages_received" json:"messages_received"`
	MessagesProcessed int                     `db:"messages_processed" json:"messages_processed"`
	MessagesMatched   int                     `db:"messages_matched" json:"messages_matched"`
	MessagesUnmatched int                     `db:"messages_unmatched" json:"messages_unmatched"`
	Summary           map[string]*KindSummary `db:"summary" json:"summary,omitempty"`
	Errors            []string                `db:"errors" json:"errors,omitempty"`
	StartedAt         time.Time               `db:"started_at" json:"started_at"`
	CompletedAt       *time.Time              `db:"completed_at" json:"completed_at,omitempty"`
	DurationMS        *int64                  `db:"duration_ms" json:"duration_ms,omitempty"`
}

// KindSummary aggregates per-payload-kind outcomes within one run.
type KindSummary struct {
	Matched    int `json:"matched"`
	Unmatched  int `json:"unmatched"`
	NewRecords int `json:"new_records"`
	Errors     int `json:"errors"`
}

// PollMessage maps to the poll_messages table: one write-once audit row per
// message extracted from a run, written regardless of processing outcome.
type PollMessage struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	RunID           uuid.UUID       `db:"run_id" json:"run_id"`
	HeaderID        *string         `db:"header_id" json:"header_id,omitempty"`
	ResponseID      *string         `db:"response_id" json:"response_id,omitempty"`
	EventCode       *string         `db:"event_code" json:"event_code,omitempty"`
	PayloadKind     string          `db:"payload_kind" json:"payload_kind"`
	Payload         json.RawMessage `db:"payload" json:"payload,omitempty"`
	Classification  string          `db:"classification" json:"classification"`
	Matched         bool            `db:"matched" json:"matched"`
	MatchedTable    *string         `db:"matched_table" json:"matched_table,omitempty"`
	MatchedRecordID *string         `db:"matched_record_id" json:"matched_record_id,omitempty"`
	MatchStrategy   *string         `db:"match_strategy" json:"match_strategy,omitempty"`
	Status          string          `db:"status" json:"status"`
	Error           *string         `db:"error" json:"error,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}

// CorrelationResult is the transient outcome of matching a message to local
// state. A non-empty Table+RecordID pair has IsNew=false unless the updater
// just inserted the record on the advanced-authorization path.
type CorrelationResult struct {
	Matched  bool
	Table    string
	RecordID string
	Strategy string
	IsNew    bool
	Reason   string
}

// PollRunResult is the structured result the trigger surface returns. The
// surface reports failures through Status and Errors rather than error
// returns, except for infrastructure failures.
type PollRunResult struct {
	RunID     uuid.UUID               `json:"run_id"`
	Status    string                  `json:"status"`
	Received  int                     `json:"messages_received"`
	Processed int                     `json:"messages_processed"`
	Matched   int                     `json:"messages_matched"`
	Unmatched int                     `json:"messages_unmatched"`
	Summary   map[string]*KindSummary `json:"summary,omitempty"`
	Errors    []string                `json:"errors,omitempty"`
}
