package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/inkpress/inkpress/internal/model"
)

const userColumns = `id, email, password_hash, role, name, created_at, updated_at, last_login_at`

func scanUser(row interface{ Scan(...any) error }) (model.User, error) {
	var u model.User
	var createdAt, updatedAt string
	var lastLogin sql.NullString
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.Name,
		&createdAt, &updatedAt, &lastLogin); err != nil {
		return model.User{}, err
	}
	var err error
	if u.CreatedAt, err = ParseTime(createdAt); err != nil {
		return model.User{}, err
	}
	if u.UpdatedAt, err = ParseTime(updatedAt); err != nil {
		return model.User{}, err
	}
	if u.LastLoginAt, err = nullTimeString(lastLogin); err != nil {
		return model.User{}, err
	}
	return u, nil
}

// CreateUserParams holds the fields for creating a user.
type CreateUserParams struct {
	Email        string
	PasswordHash string
	Role         string
	Name         string
}

// CreateUser inserts a new user and returns it.
func (q *Queries) CreateUser(ctx context.Context, p CreateUserParams) (model.User, error) {
	now := FormatTime(time.Now())
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO users (email, password_hash, role, name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, p.Email, p.PasswordHash, p.Role, p.Name, now, now)
	if err != nil {
		return model.User{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.User{}, err
	}
	return q.GetUserByID(ctx, id)
}

// GetUserByID returns the user with the given id.
func (q *Queries) GetUserByID(ctx context.Context, id int64) (model.User, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// GetUserByEmail returns the user with the given email.
func (q *Queries) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	return scanUser(row)
}

// ListUsers returns all users ordered by creation time.
func (q *Queries) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// CountUsers returns the total number of users.
func (q *Queries) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

// TouchLastLogin records a successful login for the user.
func (q *Queries) TouchLastLogin(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE users SET last_login_at = ? WHERE id = ?`, FormatTime(time.Now()), id)
	return err
}
