package comms

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

func (r *repoPG) InsertRequestOnce(ctx context.Context, cr *CommunicationRequest) (bool, error) {
	cr.ID = uuid.New()
	if cr.Status == "" {
		cr.Status = "active"
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO communication_requests (id, identifier, about_ref, status, payload)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (identifier) DO NOTHING`,
		cr.ID, cr.Identifier, cr.AboutRef, cr.Status, cr.Payload)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 0, nil
}

func (r *repoPG) GetRequestByIdentifier(ctx context.Context, identifier string) (*CommunicationRequest, error) {
	var cr CommunicationRequest
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, identifier, about_ref, status, payload, acknowledged, created_at, updated_at
		FROM communication_requests WHERE identifier = $1`, identifier).
		Scan(&cr.ID, &cr.Identifier, &cr.AboutRef, &cr.Status, &cr.Payload,
			&cr.Acknowledged, &cr.CreatedAt, &cr.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &cr, nil
}

func (r *repoPG) MarkAcknowledged(ctx context.Context, identifier string) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE communication_requests SET acknowledged = TRUE, updated_at = NOW()
		WHERE identifier = $1 AND NOT acknowledged`, identifier)
	return err
}

func (r *repoPG) InsertCommunicationOnce(ctx context.Context, c *Communication) (bool, error) {
	c.ID = uuid.New()
	if c.Status == "" {
		c.Status = "completed"
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO communications (id, identifier, based_on_ref, status, payload)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (identifier) DO NOTHING`,
		c.ID, c.Identifier, c.BasedOnRef, c.Status, c.Payload)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 0, nil
}

func (r *repoPG) GetCommunicationByIdentifier(ctx context.Context, identifier string) (*Communication, error) {
	var c Communication
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, identifier, based_on_ref, status, payload, created_at
		FROM communications WHERE identifier = $1`, identifier).
		Scan(&c.ID, &c.Identifier, &c.BasedOnRef, &c.Status, &c.Payload, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
