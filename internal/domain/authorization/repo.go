package authorization

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, a *PriorAuthorization) error
	GetByID(ctx context.Context, id uuid.UUID) (*PriorAuthorization, error)
	// FindByOutboundBundleID returns every record whose stored outbound
	// request identifier equals id. Callers decide what multiple matches
	// mean; the correlator fails closed on them.
	FindByOutboundBundleID(ctx context.Context, id string) ([]*PriorAuthorization, error)
	// FindByRequestFHIRID matches the FHIR id of the request resource
	// embedded in the original outbound bundle.
	FindByRequestFHIRID(ctx context.Context, id string) ([]*PriorAuthorization, error)
	ApplyResponse(ctx context.Context, a *PriorAuthorization) error
	ReplaceItems(ctx context.Context, authID uuid.UUID, items []*Item) error
	GetItems(ctx context.Context, authID uuid.UUID) ([]*Item, error)
	AddResponseRecord(ctx context.Context, rec *ResponseRecord) error
	ListResponseRecords(ctx context.Context, authID uuid.UUID) ([]*ResponseRecord, error)
}

type AdvancedRepository interface {
	// Upsert inserts or fully replaces the record keyed by its payload
	// identifier in one atomic statement. Returns true when a new row was
	// inserted.
	Upsert(ctx context.Context, a *AdvancedAuthorization) (bool, error)
	GetByIdentifier(ctx context.Context, identifier string) (*AdvancedAuthorization, error)
}
