package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/arklim/invoice-auth/internal/core/domain"
	"github.com/arklim/invoice-auth/internal/core/port"
	"github.com/arklim/invoice-auth/internal/repository"
)

type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgBeginner interface {
	pgExecutor
	Begin(ctx context.Context) (pgx.Tx, error)
}

var accountColumns = []string{
	"id",
	"email",
	"name",
	"password_hash",
	"is_active",
	"is_locked",
	"locked_until",
	"failed_login_attempts",
	"last_login_attempt",
	"refresh_token_hash",
	"mfa_secret",
	"mfa_enabled",
	"created_at",
	"updated_at",
}

// AccountRepository implements port.AccountStore on the accounts table.
type AccountRepository struct {
	db      pgBeginner
	table   string
	builder squirrel.StatementBuilderType
	now     func() time.Time
}

// NewAccountRepository wires a PostgreSQL-backed account store. schema
// qualifies the accounts table; empty means the search_path decides.
func NewAccountRepository(db pgBeginner, schema string) *AccountRepository {
	table := "accounts"
	if schema != "" {
		table = schema + ".accounts"
	}
	return &AccountRepository{
		db:      db,
		table:   table,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// FindByEmail matches e-mail case-insensitively.
func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.selectOne(ctx, r.db, squirrel.Expr("lower(email) = ?", domain.NormalizeEmail(email)), false)
}

// FindByID retrieves an account by identifier.
func (r *AccountRepository) FindByID(ctx context.Context, id string) (*domain.Account, error) {
	return r.selectOne(ctx, r.db, squirrel.Eq{"id": id}, false)
}

// UpdateSecurityFields locks the row, checks the update's expectations
// against it and writes the changed columns in the same transaction.
func (r *AccountRepository) UpdateSecurityFields(ctx context.Context, id string, update domain.SecurityUpdate) (*domain.Account, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	acct, err := r.selectOne(ctx, tx, squirrel.Eq{"id": id}, true)
	if err != nil {
		return nil, err
	}

	if !update.Matches(*acct) {
		return nil, repository.ErrConflict
	}

	if !update.IsEmpty() {
		update.Apply(acct)
		acct.UpdatedAt = r.now()

		stmt, args, err := r.builder.Update(r.table).
			SetMap(securityColumns(update)).
			Set("updated_at", acct.UpdatedAt).
			Where(squirrel.Eq{"id": id}).
			ToSql()
		if err != nil {
			return nil, fmt.Errorf("build update account sql: %w", err)
		}

		tag, err := tx.Exec(ctx, stmt, args...)
		if err != nil {
			return nil, fmt.Errorf("update account security fields: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil, repository.ErrNotFound
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	committed = true

	return acct, nil
}

func (r *AccountRepository) selectOne(ctx context.Context, exec pgExecutor, where squirrel.Sqlizer, forUpdate bool) (*domain.Account, error) {
	query := r.builder.Select(accountColumns...).From(r.table).Where(where).Limit(1)
	if forUpdate {
		query = query.Suffix("FOR UPDATE")
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select account sql: %w", err)
	}

	var (
		acct             domain.Account
		name             sql.NullString
		lockedUntil      sql.NullTime
		lastAttemptAt    sql.NullTime
		refreshTokenHash sql.NullString
		mfaSecret        sql.NullString
	)
	if err := exec.QueryRow(ctx, stmt, args...).Scan(
		&acct.ID,
		&acct.Email,
		&name,
		&acct.PasswordHash,
		&acct.IsActive,
		&acct.IsLocked,
		&lockedUntil,
		&acct.FailedAttempts,
		&lastAttemptAt,
		&refreshTokenHash,
		&mfaSecret,
		&acct.MfaEnabled,
		&acct.CreatedAt,
		&acct.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}

	acct.Name = name.String
	acct.LockedUntil = nullableTimePtr(lockedUntil)
	acct.LastAttemptAt = nullableTimePtr(lastAttemptAt)
	acct.RefreshTokenHash = nullableStringPtr(refreshTokenHash)
	acct.MfaSecret = nullableStringPtr(mfaSecret)

	return &acct, nil
}

func securityColumns(u domain.SecurityUpdate) map[string]any {
	cols := make(map[string]any, 7)
	if u.FailedAttempts != nil {
		cols["failed_login_attempts"] = *u.FailedAttempts
	}
	if u.IsLocked != nil {
		cols["is_locked"] = *u.IsLocked
	}
	if u.LockedUntil != nil {
		cols["locked_until"] = u.LockedUntil.Ptr()
	}
	if u.LastAttemptAt != nil {
		cols["last_login_attempt"] = u.LastAttemptAt.Ptr()
	}
	if u.RefreshTokenHash != nil {
		cols["refresh_token_hash"] = u.RefreshTokenHash.Ptr()
	}
	if u.MfaSecret != nil {
		cols["mfa_secret"] = u.MfaSecret.Ptr()
	}
	if u.MfaEnabled != nil {
		cols["mfa_enabled"] = *u.MfaEnabled
	}
	return cols
}

var _ port.AccountStore = (*AccountRepository)(nil)

func nullableStringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	out := v.String
	return &out
}

func nullableTimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	out := v.Time.UTC()
	return &out
}
