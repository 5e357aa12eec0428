package claims

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ClaimSubmission maps to the claim_submissions table: a claim sent to the
// payer through the exchange, awaiting adjudication.
type ClaimSubmission struct {
	ID                  uuid.UUID       `db:"id" json:"id"`
	FHIRID              string          `db:"fhir_id" json:"fhir_id"`
	OutboundBundleID    *string         `db:"outbound_bundle_id" json:"outbound_bundle_id,omitempty"`
	RequestFHIRID       *string         `db:"request_fhir_id" json:"request_fhir_id,omitempty"`
	PatientRef          *string         `db:"patient_ref" json:"patient_ref,omitempty"`
	PayerRef            *string         `db:"payer_ref" json:"payer_ref,omitempty"`
	Status              string          `db:"status" json:"status"`
	AdjudicationOutcome *string         `db:"adjudication_outcome" json:"adjudication_outcome,omitempty"`
	Disposition         *string         `db:"disposition" json:"disposition,omitempty"`
	TotalSubmitted      *float64        `db:"total_submitted" json:"total_submitted,omitempty"`
	TotalBenefit        *float64        `db:"total_benefit" json:"total_benefit,omitempty"`
	TotalPatientShare   *float64        `db:"total_patient_share" json:"total_patient_share,omitempty"`
	Currency            *string         `db:"currency" json:"currency,omitempty"`
	LastResponse        json.RawMessage `db:"last_response" json:"last_response,omitempty"`
	RespondedAt         *time.Time      `db:"responded_at" json:"responded_at,omitempty"`
	CreatedAt           time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time       `db:"updated_at" json:"updated_at"`
}

// Item maps to the claim_submission_items table.
type Item struct {
	ID             uuid.UUID `db:"id" json:"id"`
	ClaimID        uuid.UUID `db:"claim_id" json:"claim_id"`
	Sequence       int       `db:"sequence" json:"sequence"`
	Adjudication   string    `db:"adjudication" json:"adjudication"`
	Reason         *string   `db:"reason" json:"reason,omitempty"`
	ApprovedAmount *float64  `db:"approved_amount" json:"approved_amount,omitempty"`
}

// ResponseRecord maps to the claim_responses table (append-only history of
// inbound adjudication payloads).
type ResponseRecord struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	ClaimID     uuid.UUID       `db:"claim_id" json:"claim_id"`
	Outcome     *string         `db:"outcome" json:"outcome,omitempty"`
	Disposition *string         `db:"disposition" json:"disposition,omitempty"`
	Payload     json.RawMessage `db:"payload" json:"payload"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}
