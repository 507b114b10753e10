package sqlserver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gvangeel/yellow/internal/identity"
	mssql "github.com/microsoft/go-mssqldb"
)

const (
	indexUserName = "ux_users_normalized_user_name"
	indexEmail    = "ux_users_normalized_email"
)

const userColumns = `id, user_name, normalized_user_name, email, normalized_email, email_confirmed,
	password_hash, security_stamp, concurrency_stamp, phone_number, lockout_end, lockout_enabled,
	access_failed_count, created_at, updated_at`

type UserStore struct {
	db *sql.DB
}

var _ identity.UserStore = (*UserStore)(nil)

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) Create(ctx context.Context, u *identity.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (@id, @user_name, @normalized_user_name, @email, @normalized_email, @email_confirmed,
			@password_hash, @security_stamp, @concurrency_stamp, @phone_number, @lockout_end, @lockout_enabled,
			@access_failed_count, @created_at, @updated_at)`,
		sql.Named("id", mssql.UniqueIdentifier(u.ID)),
		sql.Named("user_name", u.UserName),
		sql.Named("normalized_user_name", u.NormalizedUserName),
		sql.Named("email", nullString(u.Email)),
		sql.Named("normalized_email", nullString(u.NormalizedEmail)),
		sql.Named("email_confirmed", u.EmailConfirmed),
		sql.Named("password_hash", nullString(u.PasswordHash)),
		sql.Named("security_stamp", u.SecurityStamp),
		sql.Named("concurrency_stamp", u.ConcurrencyStamp),
		sql.Named("phone_number", nullString(u.PhoneNumber)),
		sql.Named("lockout_end", nullTime(u.LockoutEnd)),
		sql.Named("lockout_enabled", u.LockoutEnabled),
		sql.Named("access_failed_count", u.AccessFailedCount),
		sql.Named("created_at", u.CreatedAt),
		sql.Named("updated_at", u.UpdatedAt),
	)
	if err != nil {
		return mapWriteError(err, "insert")
	}
	return nil
}

func (s *UserStore) GetByID(ctx context.Context, id uuid.UUID) (*identity.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = @id`,
		sql.Named("id", mssql.UniqueIdentifier(id)))
	return scanUser(row)
}

func (s *UserStore) GetByNormalizedEmail(ctx context.Context, normalizedEmail string) (*identity.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE normalized_email = @email`,
		sql.Named("email", normalizedEmail))
	return scanUser(row)
}

func (s *UserStore) GetByNormalizedUserName(ctx context.Context, normalizedUserName string) (*identity.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE normalized_user_name = @name`,
		sql.Named("name", normalizedUserName))
	return scanUser(row)
}

func (s *UserStore) Update(ctx context.Context, u *identity.User) error {
	next := identity.NewConcurrencyStamp()

	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET
			user_name = @user_name,
			normalized_user_name = @normalized_user_name,
			email = @email,
			normalized_email = @normalized_email,
			email_confirmed = @email_confirmed,
			password_hash = @password_hash,
			security_stamp = @security_stamp,
			concurrency_stamp = @next_stamp,
			phone_number = @phone_number,
			lockout_end = @lockout_end,
			lockout_enabled = @lockout_enabled,
			access_failed_count = @access_failed_count,
			updated_at = @updated_at
		WHERE id = @id AND concurrency_stamp = @stamp`,
		sql.Named("id", mssql.UniqueIdentifier(u.ID)),
		sql.Named("stamp", u.ConcurrencyStamp),
		sql.Named("next_stamp", next),
		sql.Named("user_name", u.UserName),
		sql.Named("normalized_user_name", u.NormalizedUserName),
		sql.Named("email", nullString(u.Email)),
		sql.Named("normalized_email", nullString(u.NormalizedEmail)),
		sql.Named("email_confirmed", u.EmailConfirmed),
		sql.Named("password_hash", nullString(u.PasswordHash)),
		sql.Named("security_stamp", u.SecurityStamp),
		sql.Named("phone_number", nullString(u.PhoneNumber)),
		sql.Named("lockout_end", nullTime(u.LockoutEnd)),
		sql.Named("lockout_enabled", u.LockoutEnabled),
		sql.Named("access_failed_count", u.AccessFailedCount),
		sql.Named("updated_at", u.UpdatedAt),
	)
	if err != nil {
		return mapWriteError(err, "update")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return s.missingOrStale(ctx, u.ID)
	}

	u.ConcurrencyStamp = next
	return nil
}

// missingOrStale explains an update that matched no row.
func (s *UserStore) missingOrStale(ctx context.Context, id uuid.UUID) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = @id`,
		sql.Named("id", mssql.UniqueIdentifier(id))).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return identity.ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to check user existence: %w", err)
	}
	return identity.ErrConcurrencyFailure
}

func scanUser(row *sql.Row) (*identity.User, error) {
	var (
		u                                              identity.User
		id                                             mssql.UniqueIdentifier
		email, normalizedEmail, passwordHash, phoneNum sql.NullString
		lockoutEnd                                     sql.NullTime
	)
	err := row.Scan(&id, &u.UserName, &u.NormalizedUserName, &email, &normalizedEmail, &u.EmailConfirmed,
		&passwordHash, &u.SecurityStamp, &u.ConcurrencyStamp, &phoneNum, &lockoutEnd, &u.LockoutEnabled,
		&u.AccessFailedCount, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, identity.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	u.ID = uuid.UUID(id)
	u.Email = email.String
	u.NormalizedEmail = normalizedEmail.String
	u.PasswordHash = passwordHash.String
	u.PhoneNumber = phoneNum.String
	if lockoutEnd.Valid {
		u.LockoutEnd = lockoutEnd.Time.UTC()
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return &u, nil
}

func mapWriteError(err error, op string) error {
	if idx, ok := uniqueViolation(err); ok {
		switch idx {
		case indexEmail:
			return identity.ErrDuplicateEmail
		default:
			return identity.ErrDuplicateUserName
		}
	}
	return fmt.Errorf("failed to %s user: %w", op, err)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
