package provider

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/hie/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const cols = `id, license, name, org_fhir_id, active, created_at, updated_at`

func (r *repoPG) scan(row pgx.Row) (*Identity, error) {
	var p Identity
	err := row.Scan(&p.ID, &p.License, &p.Name, &p.OrgFHIRID, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *repoPG) Create(ctx context.Context, p *Identity) error {
	p.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO provider_identities (id, license, name, org_fhir_id, active)
		VALUES ($1,$2,$3,$4,$5)`,
		p.ID, p.License, p.Name, p.OrgFHIRID, p.Active)
	return err
}

func (r *repoPG) GetActive(ctx context.Context) (*Identity, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx,
		`SELECT `+cols+` FROM provider_identities WHERE active ORDER BY created_at LIMIT 1`))
}

func (r *repoPG) GetByLicense(ctx context.Context, license string) (*Identity, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx,
		`SELECT `+cols+` FROM provider_identities WHERE license = $1`, license))
}
