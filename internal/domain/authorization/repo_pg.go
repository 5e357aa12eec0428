package authorization

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

func conn(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return pool
}

// =========== PriorAuthorization Repository ===========

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const authCols = `id, fhir_id, outbound_bundle_id, request_fhir_id, patient_ref, payer_ref,
	status, adjudication_outcome, disposition, pre_auth_ref,
	total_submitted, total_approved, currency, last_response, responded_at,
	created_at, updated_at`

func scanAuth(row pgx.Row) (*PriorAuthorization, error) {
	var a PriorAuthorization
	err := row.Scan(&a.ID, &a.FHIRID, &a.OutboundBundleID, &a.RequestFHIRID, &a.PatientRef, &a.PayerRef,
		&a.Status, &a.AdjudicationOutcome, &a.Disposition, &a.PreAuthRef,
		&a.TotalSubmitted, &a.TotalApproved, &a.Currency, &a.LastResponse, &a.RespondedAt,
		&a.CreatedAt, &a.UpdatedAt)
	return &a, err
}

func (r *repoPG) Create(ctx context.Context, a *PriorAuthorization) error {
	a.ID = uuid.New()
	if a.FHIRID == "" {
		a.FHIRID = a.ID.String()
	}
	if a.Status == "" {
		a.Status = StatusDraft
	}
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO prior_authorizations (id, fhir_id, outbound_bundle_id, request_fhir_id,
			patient_ref, payer_ref, status, total_submitted, currency)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		a.ID, a.FHIRID, a.OutboundBundleID, a.RequestFHIRID,
		a.PatientRef, a.PayerRef, a.Status, a.TotalSubmitted, a.Currency)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*PriorAuthorization, error) {
	return scanAuth(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+authCols+` FROM prior_authorizations WHERE id = $1`, id))
}

func (r *repoPG) FindByOutboundBundleID(ctx context.Context, id string) ([]*PriorAuthorization, error) {
	return r.find(ctx, `SELECT `+authCols+` FROM prior_authorizations WHERE outbound_bundle_id = $1`, id)
}

func (r *repoPG) FindByRequestFHIRID(ctx context.Context, id string) ([]*PriorAuthorization, error) {
	return r.find(ctx, `SELECT `+authCols+` FROM prior_authorizations WHERE request_fhir_id = $1`, id)
}

func (r *repoPG) find(ctx context.Context, sql string, args ...interface{}) ([]*PriorAuthorization, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*PriorAuthorization
	for rows.Next() {
		a, err := scanAuth(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *repoPG) ApplyResponse(ctx context.Context, a *PriorAuthorization) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE prior_authorizations SET status=$2, adjudication_outcome=$3, disposition=$4,
			pre_auth_ref=$5, total_approved=$6, currency=COALESCE($7, currency),
			last_response=$8, responded_at=$9, updated_at=NOW()
		WHERE id = $1`,
		a.ID, a.Status, a.AdjudicationOutcome, a.Disposition,
		a.PreAuthRef, a.TotalApproved, a.Currency,
		a.LastResponse, a.RespondedAt)
	return err
}

func (r *repoPG) ReplaceItems(ctx context.Context, authID uuid.UUID, items []*Item) error {
	c := conn(ctx, r.pool)
	if _, err := c.Exec(ctx, `DELETE FROM prior_authorization_items WHERE auth_id = $1`, authID); err != nil {
		return err
	}
	for _, it := range items {
		it.ID = uuid.New()
		it.AuthID = authID
		if _, err := c.Exec(ctx, `
			INSERT INTO prior_authorization_items (id, auth_id, sequence, adjudication, reason, approved_amount)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			it.ID, it.AuthID, it.Sequence, it.Adjudication, it.Reason, it.ApprovedAmount); err != nil {
			return err
		}
	}
	return nil
}

func (r *repoPG) GetItems(ctx context.Context, authID uuid.UUID) ([]*Item, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT id, auth_id, sequence, adjudication, reason, approved_amount
		FROM prior_authorization_items WHERE auth_id = $1 ORDER BY sequence`, authID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.AuthID, &it.Sequence, &it.Adjudication, &it.Reason, &it.ApprovedAmount); err != nil {
			return nil, err
		}
		items = append(items, &it)
	}
	return items, rows.Err()
}

func (r *repoPG) AddResponseRecord(ctx context.Context, rec *ResponseRecord) error {
	rec.ID = uuid.New()
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO authorization_responses (id, auth_id, outcome, disposition, payload)
		VALUES ($1,$2,$3,$4,$5)`,
		rec.ID, rec.AuthID, rec.Outcome, rec.Disposition, rec.Payload)
	return err
}

func (r *repoPG) ListResponseRecords(ctx context.Context, authID uuid.UUID) ([]*ResponseRecord, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT id, auth_id, outcome, disposition, payload, created_at
		FROM authorization_responses WHERE auth_id = $1 ORDER BY created_at`, authID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var recs []*ResponseRecord
	for rows.Next() {
		var rec ResponseRecord
		if err := rows.Scan(&rec.ID, &rec.AuthID, &rec.Outcome, &rec.Disposition, &rec.Payload, &rec.CreatedAt); err != nil {
			return nil, err
		}
		recs = append(recs, &rec)
	}
	return recs, rows.Err()
}

// =========== AdvancedAuthorization Repository ===========

type advancedRepoPG struct{ pool *pgxpool.Pool }

func NewAdvancedRepoPG(pool *pgxpool.Pool) AdvancedRepository { return &advancedRepoPG{pool: pool} }

const advCols = `id, identifier, status, adjudication_outcome, disposition, pre_auth_ref,
	total_approved, currency, payload, responded_at, created_at, updated_at`

func scanAdvanced(row pgx.Row) (*AdvancedAuthorization, error) {
	var a AdvancedAuthorization
	err := row.Scan(&a.ID, &a.Identifier, &a.Status, &a.AdjudicationOutcome, &a.Disposition, &a.PreAuthRef,
		&a.TotalApproved, &a.Currency, &a.Payload, &a.RespondedAt, &a.CreatedAt, &a.UpdatedAt)
	return &a, err
}

func (r *advancedRepoPG) Upsert(ctx context.Context, a *AdvancedAuthorization) (bool, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	// Single atomic upsert: two concurrent polls discovering the same
	// payer-initiated message must not race into duplicate rows.
	var inserted bool
	err := conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO advanced_authorizations (id, identifier, status, adjudication_outcome,
			disposition, pre_auth_ref, total_approved, currency, payload, responded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (identifier) DO UPDATE SET
			status = EXCLUDED.status,
			adjudication_outcome = EXCLUDED.adjudication_outcome,
			disposition = EXCLUDED.disposition,
			pre_auth_ref = EXCLUDED.pre_auth_ref,
			total_approved = EXCLUDED.total_approved,
			currency = EXCLUDED.currency,
			payload = EXCLUDED.payload,
			responded_at = EXCLUDED.responded_at,
			updated_at = NOW()
		RETURNING id, (xmax = 0)`,
		a.ID, a.Identifier, a.Status, a.AdjudicationOutcome,
		a.Disposition, a.PreAuthRef, a.TotalApproved, a.Currency, a.Payload, a.RespondedAt,
	).Scan(&a.ID, &inserted)
	return inserted, err
}

func (r *advancedRepoPG) GetByIdentifier(ctx context.Context, identifier string) (*AdvancedAuthorization, error) {
	return scanAdvanced(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+advCols+` FROM advanced_authorizations WHERE identifier = $1`, identifier))
}
