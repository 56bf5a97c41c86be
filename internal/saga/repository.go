package saga

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/tracseq/lims-core/pkg/constant"
)

// Repository persists SagaInstance rows. Grounded on the same
// postgres-adapter shape as sample/storage (manual SQL + squirrel +
// pgconn.PgError mapping), generalized here to store the variant
// steps/compensations/context_data as jsonb columns since their shape is
// saga-definition-specific rather than a fixed column set.
//
//go:generate mockgen --destination=repository_mock.go --package=saga . Repository
type Repository interface {
	Create(ctx context.Context, inst *Instance) error
	ByID(ctx context.Context, id uuid.UUID) (*Instance, error)
	// Save persists inst under the row's lock (spec.md §5: "per-instance
	// row locks to make crash recovery safe for a multi-process
	// deployment"), overwriting state/steps/compensations/context_data.
	Save(ctx context.Context, inst *Instance) error
	// ListRecoverable returns every instance in Running or Compensating
	// state, for the crash-recovery scan (spec.md §4.6).
	ListRecoverable(ctx context.Context) ([]*Instance, error)
}

// PostgresRepository is the production Repository.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func mapPGError(err error, entityType string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return constant.New(constant.KindNotFound, entityType, entityType+" not found")
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return constant.Wrap(constant.KindValidation, entityType, err)
		case "23503":
			return constant.Wrap(constant.KindValidation, entityType, err)
		}
	}

	return constant.Wrap(constant.KindInternal, entityType, err)
}

const sagaColumns = "id, name, state, context_data, steps, compensations, initiator_user_id, " +
	"cancel_requested, created_at, updated_at"

func scanInstance(row interface{ Scan(...any) error }) (*Instance, error) {
	var (
		inst                         Instance
		contextDataRaw, steps, comps []byte
	)

	err := row.Scan(&inst.ID, &inst.Name, &inst.State, &contextDataRaw, &steps, &comps,
		&inst.InitiatorUserID, &inst.CancelRequested, &inst.CreatedAt, &inst.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(contextDataRaw, &inst.ContextData); err != nil {
		return nil, fmt.Errorf("saga: unmarshal context_data: %w", err)
	}

	if err := json.Unmarshal(steps, &inst.Steps); err != nil {
		return nil, fmt.Errorf("saga: unmarshal steps: %w", err)
	}

	if err := json.Unmarshal(comps, &inst.Compensations); err != nil {
		return nil, fmt.Errorf("saga: unmarshal compensations: %w", err)
	}

	return &inst, nil
}

func (r *PostgresRepository) Create(ctx context.Context, inst *Instance) error {
	contextData, err := json.Marshal(inst.ContextData)
	if err != nil {
		return fmt.Errorf("saga: marshal context_data: %w", err)
	}

	steps, err := json.Marshal(inst.Steps)
	if err != nil {
		return fmt.Errorf("saga: marshal steps: %w", err)
	}

	comps, err := json.Marshal(inst.Compensations)
	if err != nil {
		return fmt.Errorf("saga: marshal compensations: %w", err)
	}

	query, args, err := sq.Insert("saga_instances").
		Columns("id", "name", "state", "context_data", "steps", "compensations",
			"initiator_user_id", "cancel_requested", "created_at", "updated_at").
		Values(inst.ID, inst.Name, inst.State, contextData, steps, comps,
			inst.InitiatorUserID, inst.CancelRequested, inst.CreatedAt, inst.UpdatedAt).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("saga: build insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return mapPGError(err, "saga_instance")
	}

	return nil
}

func (r *PostgresRepository) ByID(ctx context.Context, id uuid.UUID) (*Instance, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+sagaColumns+" FROM saga_instances WHERE id = $1", id)

	inst, err := scanInstance(row)
	if err != nil {
		return nil, mapPGError(err, "saga_instance")
	}

	return inst, nil
}

// Save overwrites inst's mutable state inside a SELECT ... FOR UPDATE
// transaction, so a concurrently running recovery process on another node
// can't race a live coordinator's checkpoint (spec.md §5).
func (r *PostgresRepository) Save(ctx context.Context, inst *Instance) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return mapPGError(err, "saga_instance")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "SELECT id FROM saga_instances WHERE id = $1 FOR UPDATE", inst.ID); err != nil {
		return mapPGError(err, "saga_instance")
	}

	contextData, err := json.Marshal(inst.ContextData)
	if err != nil {
		return fmt.Errorf("saga: marshal context_data: %w", err)
	}

	steps, err := json.Marshal(inst.Steps)
	if err != nil {
		return fmt.Errorf("saga: marshal steps: %w", err)
	}

	comps, err := json.Marshal(inst.Compensations)
	if err != nil {
		return fmt.Errorf("saga: marshal compensations: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE saga_instances SET state = $2, context_data = $3, steps = $4, compensations = $5, "+
			"cancel_requested = $6, updated_at = now() WHERE id = $1",
		inst.ID, inst.State, contextData, steps, comps, inst.CancelRequested)
	if err != nil {
		return mapPGError(err, "saga_instance")
	}

	if err := tx.Commit(); err != nil {
		return mapPGError(err, "saga_instance")
	}

	return nil
}

// recoverableStates lists every State the crash-recovery scan picks back
// up (spec.md §4.6: a coordinator that died mid-step or mid-compensation
// leaves its instance in one of these). Queried with pq.Array + = ANY
// rather than a fixed IN (...) list so a third recoverable state never
// needs a second SQL edit here.
var recoverableStates = []State{StateRunning, StateCompensating}

func (r *PostgresRepository) ListRecoverable(ctx context.Context) ([]*Instance, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+sagaColumns+" FROM saga_instances WHERE state = ANY($1)",
		pq.Array(recoverableStates))
	if err != nil {
		return nil, mapPGError(err, "saga_instance")
	}
	defer rows.Close()

	var out []*Instance

	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, mapPGError(err, "saga_instance")
		}

		out = append(out, inst)
	}

	if err := rows.Err(); err != nil {
		return nil, mapPGError(err, "saga_instance")
	}

	return out, nil
}

var _ Repository = (*PostgresRepository)(nil)
