package postgres

import (
	"context"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/machoalfa/eclesia-access/internal/core/domain"
	"github.com/machoalfa/eclesia-access/internal/repository"
)

// dbExecutor is the subset of pgxpool.Pool the repository needs; pgxmock
// satisfies it in tests.
type dbExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ProfileRepository implements port.ProfileStore against PostgreSQL.
type ProfileRepository struct {
	db      dbExecutor
	builder squirrel.StatementBuilderType
}

// NewProfileRepository wires a PostgreSQL-backed profile store.
func NewProfileRepository(db dbExecutor) *ProfileRepository {
	return &ProfileRepository{
		db:      db,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// GetProfile loads the authorization record for a subject id. Missing rows
// surface repository.ErrNotFound.
func (r *ProfileRepository) GetProfile(ctx context.Context, subjectID string) (*domain.Profile, error) {
	stmt, args, err := r.builder.
		Select("subject_id", "email", "role", "active").
		From("access.profiles").
		Where(squirrel.Eq{"subject_id": subjectID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select profile sql: %w", err)
	}

	var profile domain.Profile
	row := r.db.QueryRow(ctx, stmt, args...)
	if err := row.Scan(&profile.SubjectID, &profile.Email, &profile.Role, &profile.Active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("select profile: %w", err)
	}

	return &profile, nil
}

// UpsertProfile creates or replaces a profile row. Used by provisioning
// tooling and tests rather than the login path.
func (r *ProfileRepository) UpsertProfile(ctx context.Context, profile domain.Profile) error {
	stmt, args, err := r.builder.
		Insert("access.profiles").
		Columns("subject_id", "email", "role", "active").
		Values(profile.SubjectID, profile.Email, profile.Role, profile.Active).
		Suffix("ON CONFLICT (subject_id) DO UPDATE SET email = EXCLUDED.email, role = EXCLUDED.role, active = EXCLUDED.active").
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert profile sql: %w", err)
	}

	if _, err := r.db.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

// SetActive flips the active flag for a subject.
func (r *ProfileRepository) SetActive(ctx context.Context, subjectID string, active bool) error {
	stmt, args, err := r.builder.
		Update("access.profiles").
		Set("active", active).
		Where(squirrel.Eq{"subject_id": subjectID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update profile sql: %w", err)
	}

	tag, err := r.db.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
