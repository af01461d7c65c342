package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Role gates access to the fleet views.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User is an account record.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

var (
	// ErrNotFound is returned when a user does not exist.
	ErrNotFound = errors.New("not found")
	// ErrEmailTaken is returned on a duplicate registration.
	ErrEmailTaken = errors.New("email already registered")
)

// CreateUser inserts a new account. The email must be unique.
func (s *Store) CreateUser(u *User) error {
	_, err := s.db.Exec(
		`INSERT INTO users (id, email, password_hash, role, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, u.Role, u.CreatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// UserByEmail looks up an account by email.
func (s *Store) UserByEmail(email string) (*User, error) {
	return s.scanUser(s.db.QueryRow(
		`SELECT id, email, password_hash, role, created_at FROM users WHERE email = ?`, email))
}

// UserByID looks up an account by id.
func (s *Store) UserByID(id string) (*User, error) {
	return s.scanUser(s.db.QueryRow(
		`SELECT id, email, password_hash, role, created_at FROM users WHERE id = ?`, id))
}

// Role returns the account's role. A missing role record reads as
// RoleUser: absence never blocks sign-in.
func (s *Store) Role(userID string) (Role, error) {
	var role Role
	err := s.db.QueryRow(`SELECT role FROM users WHERE id = ?`, userID).Scan(&role)
	if err == sql.ErrNoRows {
		return RoleUser, nil
	}
	if err != nil {
		return RoleUser, fmt.Errorf("role lookup: %w", err)
	}
	if role == "" {
		role = RoleUser
	}
	return role, nil
}

// SetRole updates the account's role. Used by the makeadmin tool only.
func (s *Store) SetRole(userID string, role Role) error {
	res, err := s.db.Exec(`UPDATE users SET role = ? WHERE id = ?`, role, userID)
	if err != nil {
		return fmt.Errorf("set role: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) scanUser(row *sql.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

func isUniqueViolation(err error) bool {
	// mattn/go-sqlite3 reports constraint failures with this prefix
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
