package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

const userColumns = `id::text, name, email, password_hash, role, home_authority, created_at`

// Users is the Postgres user repository.
type Users struct {
	pool *pgxpool.Pool
}

// NewUsers creates the repository.
func NewUsers(pool *pgxpool.Pool) *Users {
	return &Users{pool: pool}
}

// InsertUser creates an account. Emails are stored lower-cased.
func (q *Users) InsertUser(ctx context.Context, in NewUser) (User, error) {
	const query = `
        INSERT INTO users (name, email, password_hash, role, home_authority, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING ` + userColumns

	row := q.pool.QueryRow(ctx, query,
		strings.TrimSpace(in.Name),
		strings.ToLower(strings.TrimSpace(in.Email)),
		in.PasswordHash,
		in.Role,
		in.HomeAuthority,
		time.Now().UTC(),
	)
	user, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return User{}, ErrDuplicate
		}
		return User{}, err
	}
	return user, nil
}

func (q *Users) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := q.pool.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE email = $1",
		strings.ToLower(strings.TrimSpace(email)))
	return scanUser(row)
}

func (q *Users) GetUserByID(ctx context.Context, id string) (User, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return User{}, ErrNotFound
	}
	row := q.pool.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", uid)
	return scanUser(row)
}

// ListUsers returns accounts, newest first.
func (q *Users) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := q.pool.Query(ctx, "SELECT "+userColumns+" FROM users ORDER BY created_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.HomeAuthority, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}
