package provider

import (
	"time"

	"github.com/google/uuid"
)

// Identity maps to the provider_identities table: the organization on whose
// behalf poll requests are issued to the exchange.
type Identity struct {
	ID        uuid.UUID `db:"id" json:"id"`
	License   string    `db:"license" json:"license"`
	Name      string    `db:"name" json:"name"`
	OrgFHIRID *string   `db:"org_fhir_id" json:"org_fhir_id,omitempty"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
