package directory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrUserNotFound = errors.New("user not found")

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

type AuthUser struct {
	ID           string
	Email        string
	RoleID       string
	RoleName     string
	PasswordHash string
}

func (s *Store) FindActiveUserByEmail(ctx context.Context, email string) (AuthUser, error) {
	var out AuthUser
	err := s.DB.QueryRow(ctx, `
    SELECT u.id, u.email, u.role_id, r.name, u.password_hash
    FROM users u
    JOIN roles r ON u.role_id = r.id
    WHERE u.email = $1 AND u.is_active
  `, email).Scan(&out.ID, &out.Email, &out.RoleID, &out.RoleName, &out.PasswordHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return AuthUser{}, ErrUserNotFound
	}
	return out, err
}

func (s *Store) UserByID(ctx context.Context, userID string) (User, error) {
	var out User
	err := s.DB.QueryRow(ctx, `
    SELECT u.id, u.email, u.full_name, u.role_id, r.name, u.is_active, u.created_at
    FROM users u
    JOIN roles r ON u.role_id = r.id
    WHERE u.id = $1
  `, userID).Scan(&out.ID, &out.Email, &out.FullName, &out.RoleID, &out.RoleName, &out.IsActive, &out.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	return out, err
}

// UsersWithRole returns the active holders of a role. Consumed by the
// assignment resolver when a KPI is assigned to a role.
func (s *Store) UsersWithRole(ctx context.Context, roleID string) ([]User, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT u.id, u.email, u.full_name, u.role_id, r.name, u.is_active, u.created_at
    FROM users u
    JOIN roles r ON u.role_id = r.id
    WHERE u.role_id = $1 AND u.is_active AND r.is_active
    ORDER BY u.email
  `, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.FullName, &u.RoleID, &u.RoleName, &u.IsActive, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) RoleByID(ctx context.Context, roleID string) (Role, error) {
	var out Role
	err := s.DB.QueryRow(ctx, `
    SELECT id, name, slug, is_active, created_at
    FROM roles
    WHERE id = $1
  `, roleID).Scan(&out.ID, &out.Name, &out.Slug, &out.IsActive, &out.CreatedAt)
	return out, err
}

func (s *Store) UpdateLastLogin(ctx context.Context, userID string) error {
	_, err := s.DB.Exec(ctx, "UPDATE users SET last_login = now() WHERE id = $1", userID)
	return err
}
