package claims

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, c *ClaimSubmission) error
	GetByID(ctx context.Context, id uuid.UUID) (*ClaimSubmission, error)
	FindByOutboundBundleID(ctx context.Context, id string) ([]*ClaimSubmission, error)
	FindByRequestFHIRID(ctx context.Context, id string) ([]*ClaimSubmission, error)
	ApplyResponse(ctx context.Context, c *ClaimSubmission) error
	ReplaceItems(ctx context.Context, claimID uuid.UUID, items []*Item) error
	GetItems(ctx context.Context, claimID uuid.UUID) ([]*Item, error)
	AddResponseRecord(ctx context.Context, rec *ResponseRecord) error
	ListResponseRecords(ctx context.Context, claimID uuid.UUID) ([]*ResponseRecord, error)
}
