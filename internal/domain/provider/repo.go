package provider

import "context"

type Repository interface {
	Create(ctx context.Context, p *Identity) error
	GetActive(ctx context.Context) (*Identity, error)
	GetByLicense(ctx context.Context, license string) (*Identity, error)
}
