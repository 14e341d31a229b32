package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/polyvault/internal/domain"
)

// ActionStore implements domain.AuditStore over the vault_actions table.
type ActionStore struct {
	pool *pgxpool.Pool
}

// NewActionStore creates an ActionStore backed by pool.
func NewActionStore(pool *pgxpool.Pool) *ActionStore {
	return &ActionStore{pool: pool}
}

// Log appends rec. Detail is stored as JSONB.
func (s *ActionStore) Log(ctx context.Context, rec domain.ActionRecord) error {
	var detailJSON []byte
	if len(rec.Detail) > 0 {
		var err error
		if detailJSON, err = json.Marshal(rec.Detail); err != nil {
			return fmt.Errorf("postgres: marshal action detail: %w", err)
		}
	}
	hashes := rec.TxHashes
	if hashes == nil {
		hashes = []string{}
	}

	const query = `
		INSERT INTO vault_actions (action, vault, amount, tx_hashes, ok, error_kind, detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := s.pool.Exec(ctx, query,
		string(rec.Action), rec.Vault, rec.Amount, hashes, rec.OK, rec.ErrorKind, detailJSON,
	); err != nil {
		return fmt.Errorf("postgres: log action %s: %w", rec.Action, err)
	}
	return nil
}

// List returns the newest records first with optional time bounds.
func (s *ActionStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.ActionRecord, error) {
	query := `SELECT id, action, vault, amount, tx_hashes, ok, error_kind, detail, created_at
		FROM vault_actions WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC, id DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list actions: %w", err)
	}
	defer rows.Close()

	var out []domain.ActionRecord
	for rows.Next() {
		var (
			rec        domain.ActionRecord
			action     string
			detailJSON []byte
		)
		if err := rows.Scan(&rec.ID, &action, &rec.Vault, &rec.Amount, &rec.TxHashes,
			&rec.OK, &rec.ErrorKind, &detailJSON, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan action: %w", err)
		}
		rec.Action = domain.Action(action)
		if detailJSON != nil {
			if err := json.Unmarshal(detailJSON, &rec.Detail); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal action detail: %w", err)
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list actions rows: %w", err)
	}
	return out, nil
}

var _ domain.AuditStore = (*ActionStore)(nil)
