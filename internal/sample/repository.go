package sample

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

// Repository persists the Sample row. Grounded on the teacher's postgres
// adapters (components/ledger/internal/adapters/database/postgres/organization.postgresql.go):
// manual SQL, squirrel for dynamic UPDATE fragments, pgconn.PgError mapped
// to the domain error taxonomy.
//
//go:generate mockgen --destination=repository_mock.go --package=sample . Repository
type Repository interface {
	Create(ctx context.Context, s *Sample) error
	ByID(ctx context.Context, id uuid.UUID) (*Sample, error)
	ByBarcode(ctx context.Context, barcode string) (*Sample, error)
	BarcodeExists(ctx context.Context, barcode string) (bool, error)
	Update(ctx context.Context, s *Sample) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status, locationID *uuid.UUID, updatedBy *string) error
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
			return constant.Wrap(constant.KindDuplicateBarcode, entityType, err)
		case "23503": // foreign_key_violation
			return constant.Wrap(constant.KindValidation, entityType, err)
		}
	}

	return constant.Wrap(constant.KindInternal, entityType, err)
}

const sampleColumns = "id, name, barcode, sample_type, status, template_id, concentration, volume, " +
	"unit, quality_score, location_id, created_at, updated_at, created_by, updated_by"

func scanSample(row interface{ Scan(...any) error }) (*Sample, error) {
	var s Sample

	err := row.Scan(&s.ID, &s.Name, &s.Barcode, &s.SampleType, &s.Status, &s.TemplateID,
		&s.Concentration, &s.Volume, &s.Unit, &s.QualityScore, &s.LocationID,
		&s.CreatedAt, &s.UpdatedAt, &s.CreatedBy, &s.UpdatedBy)
	if err != nil {
		return nil, err
	}

	return &s, nil
}

func (r *PostgresRepository) Create(ctx context.Context, s *Sample) error {
	query, args, err := sq.Insert("samples").
		Columns("id", "name", "barcode", "sample_type", "status", "template_id", "concentration",
			"volume", "unit", "quality_score", "location_id", "created_at", "updated_at", "created_by", "updated_by").
		Values(s.ID, s.Name, s.Barcode, s.SampleType, s.Status, s.TemplateID, s.Concentration,
			s.Volume, s.Unit, s.QualityScore, s.LocationID, s.CreatedAt, s.UpdatedAt, s.CreatedBy, s.UpdatedBy).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("sample: build insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return mapPGError(err, "sample")
	}

	return nil
}

func (r *PostgresRepository) ByID(ctx context.Context, id uuid.UUID) (*Sample, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+sampleColumns+" FROM samples WHERE id = $1", id)

	s, err := scanSample(row)
	if err != nil {
		return nil, mapPGError(err, "sample")
	}

	return s, nil
}

func (r *PostgresRepository) ByBarcode(ctx context.Context, barcode string) (*Sample, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+sampleColumns+" FROM samples WHERE barcode = $1", barcode)

	s, err := scanSample(row)
	if err != nil {
		return nil, mapPGError(err, "sample")
	}

	return s, nil
}

func (r *PostgresRepository) BarcodeExists(ctx context.Context, barcode string) (bool, error) {
	var count int

	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM samples WHERE barcode = $1", barcode).Scan(&count)
	if err != nil {
		return false, mapPGError(err, "sample")
	}

	return count > 0, nil
}

// Update persists every mutable column on s, using updated_at as an
// optimistic-concurrency fence: the WHERE clause requires the row's
// updated_at to still match the value the caller read it with, so a
// concurrent writer's update can't be silently clobbered (spec.md §5's
// locking-discipline note). Callers must treat a zero rows-affected result
// as a conflict and re-read.
func (r *PostgresRepository) Update(ctx context.Context, s *Sample) error {
	previousUpdatedAt := s.UpdatedAt

	query, args, err := sq.Update("samples").
		Set("name", s.Name).
		Set("barcode", s.Barcode).
		Set("sample_type", s.SampleType).
		Set("concentration", s.Concentration).
		Set("volume", s.Volume).
		Set("unit", s.Unit).
		Set("quality_score", s.QualityScore).
		Set("updated_at", s.UpdatedAt).
		Set("updated_by", s.UpdatedBy).
		Where(sq.Eq{"id": s.ID}).
		Where(sq.Eq{"updated_at": previousUpdatedAt}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("sample: build update: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return mapPGError(err, "sample")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return mapPGError(err, "sample")
	}

	if rows == 0 {
		return constant.New(constant.KindBusinessRule, "sample", "sample was concurrently modified")
	}

	return nil
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, locationID *uuid.UUID, updatedBy *string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE samples SET status = $2, location_id = $3, updated_at = now(), updated_by = $4 WHERE id = $1",
		id, status, locationID, updatedBy)
	if err != nil {
		return mapPGError(err, "sample")
	}

	return nil
}

var _ Repository = (*PostgresRepository)(nil)
