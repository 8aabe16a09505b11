package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/estatehub/billing-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const userColumns = `id, estate_id, role, first_name, last_name, email, phone, password_hash, created_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	if err := row.Scan(
		&user.ID,
		&user.EstateID,
		&user.Role,
		&user.FirstName,
		&user.LastName,
		&user.Email,
		&user.Phone,
		&user.PasswordHash,
		&user.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateEstateWithAdmin inserts an estate and its first administrator atomically.
func (r *Repository) CreateEstateWithAdmin(ctx context.Context, estate *domain.Estate, admin *domain.User) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin estate transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := tx.QueryRow(ctx,
		`INSERT INTO estates (name, address) VALUES ($1, $2) RETURNING id, created_at`,
		estate.Name, estate.Address,
	).Scan(&estate.ID, &estate.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert estate: %w", err)
	}

	admin.EstateID = estate.ID
	admin.Role = domain.RoleAdmin
	if err := insertUser(ctx, tx, admin); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit estate transaction: %w", err)
	}
	return nil
}

// CreateUser inserts a user into an existing estate.
func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	return insertUser(ctx, r.db, user)
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertUser(ctx context.Context, q queryRower, user *domain.User) error {
	query := `
		INSERT INTO users (estate_id, role, first_name, last_name, email, phone, password_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	err := q.QueryRow(ctx, query,
		user.EstateID,
		string(user.Role),
		user.FirstName,
		user.LastName,
		user.Email,
		user.Phone,
		user.PasswordHash,
	).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		if name, ok := constraintViolation(err, pgUniqueViolation); ok && name == constraintUserEmail {
			return ErrEmailTaken
		}
		if _, ok := constraintViolation(err, pgForeignKeyViolation); ok {
			return ErrEstateNotFound
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// FindEstateByID loads an estate.
func (r *Repository) FindEstateByID(ctx context.Context, estateID uuid.UUID) (*domain.Estate, error) {
	var estate domain.Estate
	err := r.db.QueryRow(ctx,
		`SELECT id, name, address, created_at FROM estates WHERE id = $1`, estateID,
	).Scan(&estate.ID, &estate.Name, &estate.Address, &estate.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEstateNotFound
		}
		return nil, err
	}
	return &estate, nil
}

// FindUserByEmail loads a user by login email.
func (r *Repository) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	user, err := scanUser(r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// FindUserByID loads a user by id.
func (r *Repository) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	user, err := scanUser(r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// ListBillableUsers returns every non-administrator member of an estate.
func (r *Repository) ListBillableUsers(ctx context.Context, estateID uuid.UUID) ([]domain.User, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+userColumns+` FROM users WHERE estate_id = $1 AND role <> 'ADMIN' ORDER BY created_at, id`,
		estateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []domain.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}
