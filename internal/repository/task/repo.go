package task

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/dbpg"

	"github.com/aliskhannn/image-distributor/internal/model"
)

var ErrTaskNotFound = errors.New("task not found")

//go:embed schema.sql
var schema string

// Repository keeps the task ledger in PostgreSQL.
type Repository struct {
	db *dbpg.DB
}

// NewRepository creates a new Repository with the given DB connection.
func NewRepository(db *dbpg.DB) *Repository {
	return &Repository{db: db}
}

// Migrate creates the ledger table if it does not exist.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: failed to create tasks table: %w", err)
	}

	return nil
}

// Save inserts the record or overwrites the row with the same ID.
func (r *Repository) Save(ctx context.Context, rec model.Record) error {
	query := `
		INSERT INTO tasks (id, location, operation, status, reason, attempt, result, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE
		SET location = EXCLUDED.location,
		    operation = EXCLUDED.operation,
		    status = EXCLUDED.status,
		    reason = EXCLUDED.reason,
		    attempt = EXCLUDED.attempt,
		    result = EXCLUDED.result,
		    updated_at = EXCLUDED.updated_at
    `

	_, err := r.db.ExecContext(
		ctx, query, rec.ID, rec.Location, string(rec.Operation), string(rec.Status),
		rec.Reason, rec.Attempt, rec.Result, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save: failed to save task %s: %w", rec.ID, err)
	}

	return nil
}

// Get retrieves the ledger row of a task.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (model.Record, error) {
	query := `
		SELECT location, operation, status, reason, attempt, result, updated_at
		FROM tasks
		WHERE id = $1
    `

	rec := model.Record{ID: id}
	var op, status string

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&rec.Location, &op, &status, &rec.Reason, &rec.Attempt, &rec.Result, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Record{}, ErrTaskNotFound
		}

		return model.Record{}, fmt.Errorf("get: failed to get task: %w", err)
	}

	rec.Operation = model.Operation(op)
	rec.Status = model.Status(status)

	return rec, nil
}
