// Package customers exposes the minimal customer lookup the settlement core
// consumes. Customer CRUD lives outside this core.
package customers

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrCustomerNotFound indicates the referenced customer does not exist.
var ErrCustomerNotFound = errors.New("customers: not found")

// Customer is the identity slice settlement needs: an existence check.
type Customer struct {
	ID   int64
	Name string
}

// Directory resolves customer identities.
type Directory interface {
	GetCustomer(ctx context.Context, id int64) (*Customer, error)
}

// Repository is the PostgreSQL backed Directory.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetCustomer retrieves a customer by ID.
func (r *Repository) GetCustomer(ctx context.Context, id int64) (*Customer, error) {
	var c Customer
	err := r.pool.QueryRow(ctx, `SELECT id, name FROM customers WHERE id = $1`, id).Scan(&c.ID, &c.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCustomerNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
