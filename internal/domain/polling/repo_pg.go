package polling

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

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

func (r *repoPG) CreateRun(ctx context.Context, run *PollRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	run.Status = RunInProgress
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO poll_runs (id, trigger_kind, status, outbound_envelope, started_at)
		VALUES ($1,$2,$3,$4,$5)`,
		run.ID, run.TriggerKind, run.Status, run.OutboundEnvelope, run.StartedAt)
	return err
}

func (r *repoPG) FinalizeRun(ctx context.Context, run *PollRun) error {
	summary, err := json.Marshal(run.Summary)
	if err != nil {
		return fmt.Errorf("encode run summary: %w", err)
	}
	errList, err := json.Marshal(run.Errors)
	if err != nil {
		return fmt.Errorf("encode run errors: %w", err)
	}

	now := time.Now().UTC()
	run.CompletedAt = &now
	dur := now.Sub(run.StartedAt).Milliseconds()
	run.DurationMS = &dur

	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE poll_runs SET status=$2, inbound_envelope=$3, response_code=$4,
			messages_received=$5, messages_processed=$6, messages_matched=$7, messages_unmatched=$8,
			summary=$9, errors=$10, completed_at=$11, duration_ms=$12
		WHERE id = $1 AND status = 'in_progress'`,
		run.ID, run.Status, run.InboundEnvelope, run.ResponseCode,
		run.MessagesReceived, run.MessagesProcessed, run.MessagesMatched, run.MessagesUnmatched,
		summary, errList, run.CompletedAt, *run.DurationMS)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("poll run %s already finalized", run.ID)
	}
	return nil
}

const runCols = `id, trigger_kind, status, outbound_envelope, inbound_envelope, response_code,
	messages_received, messages_processed, messages_matched, messages_unmatched,
	summary, errors, started_at, completed_at, duration_ms`

func scanRun(row pgx.Row) (*PollRun, error) {
	var run PollRun
	var summary, errList []byte
	err := row.Scan(&run.ID, &run.TriggerKind, &run.Status, &run.OutboundEnvelope, &run.InboundEnvelope, &run.ResponseCode,
		&run.MessagesReceived, &run.MessagesProcessed, &run.MessagesMatched, &run.MessagesUnmatched,
		&summary, &errList, &run.StartedAt, &run.CompletedAt, &run.DurationMS)
	if err != nil {
		return nil, err
	}
	if len(summary) > 0 {
		_ = json.Unmarshal(summary, &run.Summary)
	}
	if len(errList) > 0 {
		_ = json.Unmarshal(errList, &run.Errors)
	}
	return &run, nil
}

func (r *repoPG) GetRun(ctx context.Context, id uuid.UUID) (*PollRun, error) {
	return scanRun(r.conn(ctx).QueryRow(ctx,
		`SELECT `+runCols+` FROM poll_runs WHERE id = $1`, id))
}

func (r *repoPG) ListRuns(ctx context.Context, limit, offset int) ([]*PollRun, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM poll_runs`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+runCols+` FROM poll_runs ORDER BY started_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var runs []*PollRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		runs = append(runs, run)
	}
	return runs, total, rows.Err()
}

func (r *repoPG) AddMessage(ctx context.Context, msg *PollMessage) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO poll_messages (id, run_id, header_id, response_id, event_code,
			payload_kind, payload, classification, matched, matched_table, matched_record_id,
			match_strategy, status, error)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		msg.ID, msg.RunID, msg.HeaderID, msg.ResponseID, msg.EventCode,
		msg.PayloadKind, msg.Payload, msg.Classification, msg.Matched, msg.MatchedTable, msg.MatchedRecordID,
		msg.MatchStrategy, msg.Status, msg.Error)
	return err
}

func (r *repoPG) ListMessages(ctx context.Context, runID uuid.UUID) ([]*PollMessage, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, run_id, header_id, response_id, event_code, payload_kind, payload,
			classification, matched, matched_table, matched_record_id, match_strategy,
			status, error, created_at
		FROM poll_messages WHERE run_id = $1 ORDER BY created_at`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []*PollMessage
	for rows.Next() {
		var m PollMessage
		if err := rows.Scan(&m.ID, &m.RunID, &m.HeaderID, &m.ResponseID, &m.EventCode, &m.PayloadKind, &m.Payload,
			&m.Classification, &m.Matched, &m.MatchedTable, &m.MatchedRecordID, &m.MatchStrategy,
			&m.Status, &m.Error, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

func (r *repoPG) MarkAbandoned(ctx context.Context, maxAge time.Duration) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE poll_runs SET status='error',
			errors = '["abandoned: run exceeded the watchdog interval"]'::jsonb,
			completed_at = NOW()
		WHERE status = 'in_progress' AND started_at < NOW() - $1::interval`,
		fmt.Sprintf("%d seconds", int(maxAge.Seconds())))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
