// Package postgres provides PostgreSQL repository implementations.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/textdispatch/internal/domain"
	"github.com/ignite/textdispatch/internal/pkg/logger"
)

const sendResultsTable = "send_results"

const sendResultsSchema = `
CREATE TABLE IF NOT EXISTS send_results (
	id              UUID PRIMARY KEY,
	batch_id        TEXT NOT NULL,
	row_index       INTEGER NOT NULL,
	phone           TEXT NOT NULL,
	variant         TEXT NOT NULL,
	message         TEXT NOT NULL,
	fields          JSONB NOT NULL DEFAULT '{}',
	ok              BOOLEAN NOT NULL,
	status          TEXT NOT NULL,
	service         TEXT NOT NULL DEFAULT '',
	likely_landline BOOLEAN NOT NULL DEFAULT FALSE,
	error           TEXT NOT NULL DEFAULT '',
	sent_at         TIMESTAMPTZ,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_send_results_batch ON send_results (batch_id, row_index);
`

// SendResultRepo archives per-recipient send results. It implements
// sending.ResultArchive.
type SendResultRepo struct{ db *sql.DB }

// NewSendResultRepo creates a Postgres-backed send result archive.
func NewSendResultRepo(db *sql.DB) *SendResultRepo { return &SendResultRepo{db: db} }

// EnsureSchema creates the send_results table if it does not exist.
func (r *SendResultRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, sendResultsSchema); err != nil {
		return fmt.Errorf("ensure send_results schema: %w", err)
	}
	return nil
}

// SaveResults copies a batch's results in one transaction. Either every row
// is stored or none is.
func (r *SendResultRepo) SaveResults(ctx context.Context, batchID string, results []domain.SendResult) error {
	if len(results) == 0 {
		return nil
	}

	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer txn.Rollback()

	stmt, err := txn.Prepare(pq.CopyIn(
		sendResultsTable,
		"id", "batch_id", "row_index", "phone", "variant", "message",
		"fields", "ok", "status", "service", "likely_landline", "error", "sent_at",
	))
	if err != nil {
		return fmt.Errorf("failed to prepare COPY: %w", err)
	}

	for _, res := range results {
		fields, err := json.Marshal(res.Fields)
		if err != nil || res.Fields == nil {
			fields = []byte("{}")
		}
		var sentAt interface{}
		if res.SentAt != nil {
			sentAt = *res.SentAt
		}
		if _, err := stmt.ExecContext(ctx,
			uuid.New().String(),
			batchID,
			res.Index,
			res.Phone,
			string(res.Variant),
			res.Message,
			string(fields),
			res.OK,
			string(res.Status),
			res.Service,
			res.LikelyLandline,
			res.Error,
			sentAt,
		); err != nil {
			stmt.Close()
			return fmt.Errorf("copy send result %d: %w", res.Index, err)
		}
	}

	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return fmt.Errorf("flush COPY: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("close COPY: %w", err)
	}
	if err := txn.Commit(); err != nil {
		return fmt.Errorf("commit send results: %w", err)
	}

	logger.Info("send results archived", "batch_id", batchID, "results", len(results))
	return nil
}

// ListByBatch returns a batch's archived results in row order.
func (r *SendResultRepo) ListByBatch(ctx context.Context, batchID string) ([]domain.SendResult, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT row_index, phone, variant, message, fields, ok, status,
		       service, likely_landline, error, sent_at
		FROM send_results
		WHERE batch_id = $1
		ORDER BY row_index, created_at
	`, batchID)
	if err != nil {
		return nil, fmt.Errorf("list send results: %w", err)
	}
	defer rows.Close()

	var out []domain.SendResult
	for rows.Next() {
		var (
			res     domain.SendResult
			variant string
			status  string
			fields  []byte
			sentAt  sql.NullTime
		)
		if err := rows.Scan(
			&res.Index, &res.Phone, &variant, &res.Message, &fields, &res.OK, &status,
			&res.Service, &res.LikelyLandline, &res.Error, &sentAt,
		); err != nil {
			return nil, fmt.Errorf("scan send result: %w", err)
		}
		res.Variant = domain.Variant(variant)
		res.Status = domain.DeliveryStatus(status)
		if len(fields) > 0 {
			if err := json.Unmarshal(fields, &res.Fields); err != nil {
				return nil, fmt.Errorf("decode send result fields: %w", err)
			}
		}
		if sentAt.Valid {
			t := sentAt.Time.In(time.UTC)
			res.SentAt = &t
		}
		out = append(out, res)
	}
	return out, rows.Err()
}
