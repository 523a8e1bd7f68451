package service

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/checkout"
	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// CustomerService manages the accounts created or used at checkout
type CustomerService struct {
	customers CustomerRepository
	cost      int
	logger    *zap.Logger
}

// NewCustomerService creates a new customer service
func NewCustomerService(customers CustomerRepository) *CustomerService {
	return &CustomerService{
		customers: customers,
		cost:      bcrypt.DefaultCost,
		logger:    util.Named("customer"),
	}
}

// CheckAvailability records an error when the login or email of a new
// account already belongs to someone
func (s *CustomerService) CheckAvailability(ctx context.Context, acct checkout.NewAccount, errs checkout.Errors) error {
	if acct.Login != "" {
		taken, err := s.exists(ctx, s.customers.GetCustomerByLogin, acct.Login)
		if err != nil {
			return err
		}
		if taken {
			errs.Set(checkout.ErrCodeUsernameUnavailable, "Username already taken")
		}
	}
	if acct.EmailAddr != "" {
		taken, err := s.exists(ctx, s.customers.GetCustomerByEmail, acct.EmailAddr)
		if err != nil {
			return err
		}
		if taken {
			errs.Set(checkout.ErrCodeEmailUnavailable, "Email already used")
		}
	}
	return nil
}

func (s *CustomerService) exists(ctx context.Context, lookup func(context.Context, string) (*models.Customer, error), value string) (bool, error) {
	_, err := lookup(ctx, value)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up customer: %w", err)
	}
	return true, nil
}

// Register creates an account with a bcrypt password hash
func (s *CustomerService) Register(ctx context.Context, acct checkout.NewAccount) (*models.Customer, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(acct.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	c := &models.Customer{
		Login:        acct.Login,
		Email:        acct.EmailAddr,
		FirstName:    acct.FirstName,
		LastName:     acct.LastName,
		PasswordHash: string(hash),
	}
	if err := s.customers.CreateCustomer(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to create customer: %w", err)
	}

	s.logger.Info("customer registered", zap.Int64("customer_id", c.ID), zap.String("login", c.Login))
	return c, nil
}

// Authenticate checks a login and password. A failed check returns an error
// code instead of an error.
func (s *CustomerService) Authenticate(ctx context.Context, login, password string) (*models.Customer, string, error) {
	c, err := s.customers.GetCustomerByLogin(ctx, login)
	if errors.Is(err, store.ErrNotFound) {
		return nil, checkout.ErrCodeUsernameIncorrect, nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to look up customer: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(password)); err != nil {
		return nil, checkout.ErrCodePasswordIncorrect, nil
	}
	return c, "", nil
}

// Get loads a customer by id
func (s *CustomerService) Get(ctx context.Context, id int64) (*models.Customer, error) {
	return s.customers.GetCustomerByID(ctx, id)
}

// Delete removes an account
func (s *CustomerService) Delete(ctx context.Context, id int64) error {
	if err := s.customers.DeleteCustomer(ctx, id); err != nil {
		return fmt.Errorf("failed to delete customer: %w", err)
	}
	s.logger.Info("customer deleted", zap.Int64("customer_id", id))
	return nil
}
