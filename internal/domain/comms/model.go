package comms

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// CommunicationRequest maps to the communication_requests table: an inbound
// request from the payer asking the provider for additional information about
// a submitted claim or authorization. Identifier is unique, so re-delivered
// copies of the same request collapse into one row.
type CommunicationRequest struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	Identifier   string          `db:"identifier" json:"identifier"`
	AboutRef     *string         `db:"about_ref" json:"about_ref,omitempty"`
	Status       string          `db:"status" json:"status"`
	Payload      json.RawMessage `db:"payload" json:"payload"`
	Acknowledged bool            `db:"acknowledged" json:"acknowledged"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// Communication maps to the communications table: a payer-sent communication
// (typically a reply to something the provider sent). Identifier is unique.
type Communication struct {
	ID         uuid.UUID       `db:"id" json:"id"`
	Identifier string          `db:"identifier" json:"identifier"`
	BasedOnRef *string         `db:"based_on_ref" json:"based_on_ref,omitempty"`
	Status     string          `db:"status" json:"status"`
	Payload    json.RawMessage `db:"payload" json:"payload"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}
