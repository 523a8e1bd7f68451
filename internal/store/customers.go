package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront/internal/models"
)

const customerColumns = "id, login, email, first_name, last_name, password_hash, created_at"

// CreateCustomer inserts a customer account
func (s *Store) CreateCustomer(ctx context.Context, c *models.Customer) error {
	query := `
		INSERT INTO customers (login, email, first_name, last_name, password_hash)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	return s.db.QueryRowxContext(ctx, query,
		c.Login, c.Email, c.FirstName, c.LastName, c.PasswordHash).Scan(&c.ID, &c.CreatedAt)
}

// DeleteCustomer removes a customer account
func (s *Store) DeleteCustomer(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM customers WHERE id = $1", id)
	return err
}

// GetCustomerByID retrieves a customer by ID
func (s *Store) GetCustomerByID(ctx context.Context, id int64) (*models.Customer, error) {
	return s.getCustomer(ctx, "id = $1", id)
}

// GetCustomerByLogin retrieves a customer by login name, case-insensitively
func (s *Store) GetCustomerByLogin(ctx context.Context, login string) (*models.Customer, error) {
	return s.getCustomer(ctx, "LOWER(login) = LOWER($1)", login)
}

// GetCustomerByEmail retrieves a customer by email, case-insensitively
func (s *Store) GetCustomerByEmail(ctx context.Context, email string) (*models.Customer, error) {
	return s.getCustomer(ctx, "LOWER(email) = LOWER($1)", email)
}

func (s *Store) getCustomer(ctx context.Context, where string, arg interface{}) (*models.Customer, error) {
	var c models.Customer
	err := s.db.GetContext(ctx, &c, "SELECT "+customerColumns+" FROM customers WHERE "+where, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("customer %v: %w", arg, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
