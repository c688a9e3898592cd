package results

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/EternisAI/silo-provisioner/internal/provisioning"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	insertRun = `INSERT INTO provisioning_runs
	(id, flavor, skipped, started_at, finished_at, entry_count, success_count)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

	insertEntry = `INSERT INTO provisioning_entries
	(run_id, position, name, root, kind, stage, error, username, email, password_hash, responses)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::jsonb)`

	selectRun = `SELECT id, flavor, skipped, started_at, finished_at, entry_count, success_count
	FROM provisioning_runs WHERE id = $1`

	selectEntries = `SELECT position, name, root, kind, stage, error, username, email, password_hash, responses
	FROM provisioning_entries WHERE run_id = $1 ORDER BY position`

	listRuns = `SELECT id, flavor, skipped, started_at, finished_at, entry_count, success_count
	FROM provisioning_runs ORDER BY started_at DESC LIMIT $1`
)

// PostgresStore keeps runs in the provisioning_runs and provisioning_entries tables.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Save(ctx context.Context, run *provisioning.Run) error {
	rec, err := NewRunRecord(run)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, insertRun,
		rec.ID, rec.Flavor, rec.Skipped, rec.StartedAt, rec.FinishedAt, rec.EntryCount, rec.SuccessCount,
	); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	if len(rec.Entries) > 0 {
		batch := &pgx.Batch{}
		for _, e := range rec.Entries {
			responses, err := json.Marshal(e.Responses)
			if err != nil {
				return fmt.Errorf("failed to encode responses for %s: %w", e.Root, err)
			}
			batch.Queue(insertEntry,
				rec.ID, e.Position, e.Name, e.Root, e.Kind, e.Stage, e.Error,
				e.Username, e.Email, e.PasswordHash, string(responses),
			)
		}

		br := tx.SendBatch(ctx, batch)
		for range rec.Entries {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("failed to insert entry: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("failed to insert entries: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}

	slog.Debug("Run stored", "run_id", rec.ID.String(), "entries", rec.EntryCount)
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*RunRecord, error) {
	var rec RunRecord
	err := s.pool.QueryRow(ctx, selectRun, id).Scan(
		&rec.ID, &rec.Flavor, &rec.Skipped, &rec.StartedAt, &rec.FinishedAt, &rec.EntryCount, &rec.SuccessCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	rows, err := s.pool.Query(ctx, selectEntries, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get entries: %w", err)
	}
	defer rows.Close()

	rec.Entries = []EntryRecord{}
	for rows.Next() {
		var (
			e         EntryRecord
			responses []byte
		)
		if err := rows.Scan(
			&e.Position, &e.Name, &e.Root, &e.Kind, &e.Stage, &e.Error,
			&e.Username, &e.Email, &e.PasswordHash, &responses,
		); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		if err := json.Unmarshal(responses, &e.Responses); err != nil {
			return nil, fmt.Errorf("failed to decode responses for %s: %w", e.Root, err)
		}
		rec.Entries = append(rec.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read entries: %w", err)
	}
	return &rec, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to reach database: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, limit int) ([]RunRecord, error) {
	rows, err := s.pool.Query(ctx, listRuns, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	result := []RunRecord{}
	for rows.Next() {
		var rec RunRecord
		if err := rows.Scan(
			&rec.ID, &rec.Flavor, &rec.Skipped, &rec.StartedAt, &rec.FinishedAt, &rec.EntryCount, &rec.SuccessCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return result, nil
}
