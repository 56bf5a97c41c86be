package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tracseq/lims-core/pkg/constant"
)

// Repository persists locations and containers. Capacity mutations run
// inside a serializable transaction holding a row lock on the location,
// per spec.md §4.4: "C5 never reads current_capacity into application
// memory and writes it back without the row lock."
//
//go:generate mockgen --destination=repository_mock.go --package=storage . Repository
type Repository interface {
	CreateLocation(ctx context.Context, loc *Location) error
	LocationByID(ctx context.Context, id uuid.UUID) (*Location, error)
	LocationByName(ctx context.Context, name string) (*Location, error)

	// MutateLocationLocked runs fn with the location row locked for update
	// inside a serializable transaction; fn validates and returns the new
	// current_capacity, which is written back before commit. fn's error
	// (validation failure) aborts the transaction without writing.
	MutateLocationLocked(ctx context.Context, id uuid.UUID, fn func(loc *Location) (newCapacity int, err error)) (*Location, error)

	CreateContainer(ctx context.Context, c *Container) error
	ContainerCapacitySum(ctx context.Context, locationID uuid.UUID) (int, error)
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
		case "23505": // unique_violation
			return constant.Wrap(constant.KindValidation, entityType, err)
		case "23503": // foreign_key_violation
			return constant.Wrap(constant.KindValidation, entityType, err)
		}
	}

	return constant.Wrap(constant.KindInternal, entityType, err)
}

const locationColumns = "id, name, temperature_zone, max_capacity, current_capacity, status, created_at, updated_at"

func scanLocation(row interface{ Scan(...any) error }) (*Location, error) {
	var l Location

	err := row.Scan(&l.ID, &l.Name, &l.TemperatureZone, &l.MaxCapacity, &l.CurrentCapacity,
		&l.Status, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}

	return &l, nil
}

func (r *PostgresRepository) CreateLocation(ctx context.Context, loc *Location) error {
	query, args, err := sq.Insert("storage_locations").
		Columns("id", "name", "temperature_zone", "max_capacity", "current_capacity", "status", "created_at", "updated_at").
		Values(loc.ID, loc.Name, loc.TemperatureZone, loc.MaxCapacity, loc.CurrentCapacity, loc.Status, loc.CreatedAt, loc.UpdatedAt).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("storage: build insert location: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return mapPGError(err, "storage_location")
	}

	return nil
}

func (r *PostgresRepository) LocationByID(ctx context.Context, id uuid.UUID) (*Location, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+locationColumns+" FROM storage_locations WHERE id = $1", id)

	l, err := scanLocation(row)
	if err != nil {
		return nil, mapPGError(err, "storage_location")
	}

	return l, nil
}

func (r *PostgresRepository) LocationByName(ctx context.Context, name string) (*Location, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+locationColumns+" FROM storage_locations WHERE name = $1", name)

	l, err := scanLocation(row)
	if err != nil {
		return nil, mapPGError(err, "storage_location")
	}

	return l, nil
}

func (r *PostgresRepository) MutateLocationLocked(ctx context.Context, id uuid.UUID, fn func(loc *Location) (int, error)) (*Location, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, mapPGError(err, "storage_location")
	}

	defer tx.Rollback() //nolint:errcheck

	row := tx.QueryRowContext(ctx, "SELECT "+locationColumns+" FROM storage_locations WHERE id = $1 FOR UPDATE", id)

	loc, err := scanLocation(row)
	if err != nil {
		return nil, mapPGError(err, "storage_location")
	}

	newCapacity, err := fn(loc)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE storage_locations SET current_capacity = $2, updated_at = now() WHERE id = $1",
		id, newCapacity); err != nil {
		return nil, mapPGError(err, "storage_location")
	}

	if err := tx.Commit(); err != nil {
		return nil, mapPGError(err, "storage_location")
	}

	loc.CurrentCapacity = newCapacity

	return loc, nil
}

func (r *PostgresRepository) CreateContainer(ctx context.Context, c *Container) error {
	query, args, err := sq.Insert("storage_containers").
		Columns("id", "barcode", "location_id", "position", "capacity", "occupants").
		Values(c.ID, c.Barcode, c.LocationID, c.Position, c.Capacity, c.Occupants).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("storage: build insert container: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return mapPGError(err, "container")
	}

	return nil
}

func (r *PostgresRepository) ContainerCapacitySum(ctx context.Context, locationID uuid.UUID) (int, error) {
	var sum sql.NullInt64

	err := r.db.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(capacity), 0) FROM storage_containers WHERE location_id = $1", locationID).Scan(&sum)
	if err != nil {
		return 0, mapPGError(err, "container")
	}

	return int(sum.Int64), nil
}

var _ Repository = (*PostgresRepository)(nil)
