package authorization

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Statuses a claim-like record moves through as payer responses arrive.
// The status is a pure function of the latest applied outcome/disposition:
// re-applying the same payload yields the same status.
const (
	StatusDraft     = "draft"
	StatusQueued    = "queued"
	StatusPartial   = "partial"
	StatusApproved  = "approved"
	StatusDenied    = "denied"
	StatusError     = "error"
	StatusCancelled = "cancelled"
)

// Adjudication outcomes for records and line items.
const (
	AdjudicationApproved = "approved"
	AdjudicationRejected = "rejected"
	AdjudicationPartial  = "partial"
	AdjudicationPending  = "pending"
)

// PriorAuthorization maps to the prior_authorizations table: a locally
// originated pre-authorization request awaiting the payer's decision.
type PriorAuthorization struct {
	ID                  uuid.UUID       `db:"id" json:"id"`
	FHIRID              string          `db:"fhir_id" json:"fhir_id"`
	OutboundBundleID    *string         `db:"outbound_bundle_id" json:"outbound_bundle_id,omitempty"`
	RequestFHIRID       *string         `db:"request_fhir_id" json:"request_fhir_id,omitempty"`
	PatientRef          *string         `db:"patient_ref" json:"patient_ref,omitempty"`
	PayerRef            *string         `db:"payer_ref" json:"payer_ref,omitempty"`
	Status              string          `db:"status" json:"status"`
	AdjudicationOutcome *string         `db:"adjudication_outcome" json:"adjudication_outcome,omitempty"`
	Disposition         *string         `db:"disposition" json:"disposition,omitempty"`
	PreAuthRef          *string         `db:"pre_auth_ref" json:"pre_auth_ref,omitempty"`
	TotalSubmitted      *float64        `db:"total_submitted" json:"total_submitted,omitempty"`
	TotalApproved       *float64        `db:"total_approved" json:"total_approved,omitempty"`
	Currency            *string         `db:"currency" json:"currency,omitempty"`
	LastResponse        json.RawMessage `db:"last_response" json:"last_response,omitempty"`
	RespondedAt         *time.Time      `db:"responded_at" json:"responded_at,omitempty"`
	CreatedAt           time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time       `db:"updated_at" json:"updated_at"`
}

// Item maps to the prior_authorization_items table (line items with their
// per-item adjudication).
type Item struct {
	ID             uuid.UUID `db:"id" json:"id"`
	AuthID         uuid.UUID `db:"auth_id" json:"auth_id"`
	Sequence       int       `db:"sequence" json:"sequence"`
	Adjudication   string    `db:"adjudication" json:"adjudication"`
	Reason         *string   `db:"reason" json:"reason,omitempty"`
	ApprovedAmount *float64  `db:"approved_amount" json:"approved_amount,omitempty"`
}

// ResponseRecord maps to the authorization_responses table: one append-only
// row per applied inbound payload, regardless of whether the payload changed
// the record.
type ResponseRecord struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	AuthID      uuid.UUID       `db:"auth_id" json:"auth_id"`
	Outcome     *string         `db:"outcome" json:"outcome,omitempty"`
	Disposition *string         `db:"disposition" json:"disposition,omitempty"`
	Payload     json.RawMessage `db:"payload" json:"payload"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// AdvancedAuthorization maps to the advanced_authorizations table: a
// payer-initiated authorization with no locally originated request.
// Identifier is the payload's own identifier and the upsert key.
type AdvancedAuthorization struct {
	ID                  uuid.UUID       `db:"id" json:"id"`
	Identifier          string          `db:"identifier" json:"identifier"`
	Status              string          `db:"status" json:"status"`
	AdjudicationOutcome *string         `db:"adjudication_outcome" json:"adjudication_outcome,omitempty"`
	Disposition         *string         `db:"disposition" json:"disposition,omitempty"`
	PreAuthRef          *string         `db:"pre_auth_ref" json:"pre_auth_ref,omitempty"`
	TotalApproved       *float64        `db:"total_approved" json:"total_approved,omitempty"`
	Currency            *string         `db:"currency" json:"currency,omitempty"`
	Payload             json.RawMessage `db:"payload" json:"payload"`
	RespondedAt         *time.Time      `db:"responded_at" json:"responded_at,omitempty"`
	CreatedAt           time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time       `db:"updated_at" json:"updated_at"`
}
