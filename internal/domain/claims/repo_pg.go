package claims

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

const claimCols = `id, fhir_id, outbound_bundle_id, request_fhir_id, patient_ref, payer_ref,
	status, adjudication_outcome, disposition,
	total_submitted, total_benefit, total_patient_share, currency,
	last_response, responded_at, created_at, updated_at`

func scanClaim(row pgx.Row) (*ClaimSubmission, error) {
	var c ClaimSubmission
	err := row.Scan(&c.ID, &c.FHIRID, &c.OutboundBundleID, &c.RequestFHIRID, &c.PatientRef, &c.PayerRef,
		&c.Status, &c.AdjudicationOutcome, &c.Disposition,
		&c.TotalSubmitted, &c.TotalBenefit, &c.TotalPatientShare, &c.Currency,
		&c.LastResponse, &c.RespondedAt, &c.CreatedAt, &c.UpdatedAt)
	return &c, err
}

func (r *repoPG) Create(ctx context.Context, c *ClaimSubmission) error {
	c.ID = uuid.New()
	if c.FHIRID == "" {
		c.FHIRID = c.ID.String()
	}
	if c.Status == "" {
		c.Status = "draft"
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO claim_submissions (id, fhir_id, outbound_bundle_id, request_fhir_id,
			patient_ref, payer_ref, status, total_submitted, currency)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		c.ID, c.FHIRID, c.OutboundBundleID, c.RequestFHIRID,
		c.PatientRef, c.PayerRef, c.Status, c.TotalSubmitted, c.Currency)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*ClaimSubmission, error) {
	return scanClaim(r.conn(ctx).QueryRow(ctx,
		`SELECT `+claimCols+` FROM claim_submissions WHERE id = $1`, id))
}

func (r *repoPG) FindByOutboundBundleID(ctx context.Context, id string) ([]*ClaimSubmission, error) {
	return r.find(ctx, `SELECT `+claimCols+` FROM claim_submissions WHERE outbound_bundle_id = $1`, id)
}

func (r *repoPG) FindByRequestFHIRID(ctx context.Context, id string) ([]*ClaimSubmission, error) {
	return r.find(ctx, `SELECT `+claimCols+` FROM claim_submissions WHERE request_fhir_id = $1`, id)
}

func (r *repoPG) find(ctx context.Context, sql string, args ...interface{}) ([]*ClaimSubmission, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*ClaimSubmission
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func (r *repoPG) ApplyResponse(ctx context.Context, c *ClaimSubmission) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE claim_submissions SET status=$2, adjudication_outcome=$3, disposition=$4,
			total_benefit=$5, total_patient_share=$6, currency=COALESCE($7, currency),
			last_response=$8, responded_at=$9, updated_at=NOW()
		WHERE id = $1`,
		c.ID, c.Status, c.AdjudicationOutcome, c.Disposition,
		c.TotalBenefit, c.TotalPatientShare, c.Currency,
		c.LastResponse, c.RespondedAt)
	return err
}

func (r *repoPG) ReplaceItems(ctx context.Context, claimID uuid.UUID, items []*Item) error {
	c := r.conn(ctx)
	if _, err := c.Exec(ctx, `DELETE FROM claim_submission_items WHERE claim_id = $1`, claimID); err != nil {
		return err
	}
	for _, it := range items {
		it.ID = uuid.New()
		it.ClaimID = claimID
		if _, err := c.Exec(ctx, `
			INSERT INTO claim_submission_items (id, claim_id, sequence, adjudication, reason, approved_amount)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			it.ID, it.ClaimID, it.Sequence, it.Adjudication, it.Reason, it.ApprovedAmount); err != nil {
			return err
		}
	}
	return nil
}

func (r *repoPG) GetItems(ctx context.Context, claimID uuid.UUID) ([]*Item, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, claim_id, sequence, adjudication, reason, approved_amount
		FROM claim_submission_items WHERE claim_id = $1 ORDER BY sequence`, claimID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.ClaimID, &it.Sequence, &it.Adjudication, &it.Reason, &it.ApprovedAmount); err != nil {
			return nil, err
		}
		items = append(items, &it)
	}
	return items, rows.Err()
}

func (r *repoPG) AddResponseRecord(ctx context.Context, rec *ResponseRecord) error {
	rec.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO claim_responses (id, claim_id, outcome, disposition, payload)
		VALUES ($1,$2,$3,$4,$5)`,
		rec.ID, rec.ClaimID, rec.Outcome, rec.Disposition, rec.Payload)
	return err
}

func (r *repoPG) ListResponseRecords(ctx context.Context, claimID uuid.UUID) ([]*ResponseRecord, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, claim_id, outcome, disposition, payload, created_at
		FROM claim_responses WHERE claim_id = $1 ORDER BY created_at`, claimID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var recs []*ResponseRecord
	for rows.Next() {
		var rec ResponseRecord
		if err := rows.Scan(&rec.ID, &rec.ClaimID, &rec.Outcome, &rec.Disposition, &rec.Payload, &rec.CreatedAt); err != nil {
			return nil, err
		}
		recs = append(recs, &rec)
	}
	return recs, rows.Err()
}
