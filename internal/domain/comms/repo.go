package comms

import "context"

type Repository interface {
	// InsertRequestOnce stores a CommunicationRequest keyed by its identifier.
	// It returns alreadyStored=true when a row with the same identifier
	// exists, in which case nothing is written.
	InsertRequestOnce(ctx context.Context, cr *CommunicationRequest) (alreadyStored bool, err error)
	GetRequestByIdentifier(ctx context.Context, identifier string) (*CommunicationRequest, error)
	// MarkAcknowledged flips the acknowledged flag. It is one-way: an
	// acknowledged request never reverts.
	MarkAcknowledged(ctx context.Context, identifier string) error

	InsertCommunicationOnce(ctx context.Context, c *Communication) (alreadyStored bool, err error)
	GetCommunicationByIdentifier(ctx context.Context, identifier string) (*Communication, error)
}
