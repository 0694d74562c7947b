package settlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/money"
	"github.com/meridian-erp/meridian-erp/internal/payment"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// PgRepository persists payments and allocations in PostgreSQL and scopes
// the settlement transaction.
type PgRepository struct {
	pool     *pgxpool.Pool
	invoices *ledger.Repository
}

// NewRepository constructs the repository. The ledger repository runs the
// invoice updates inside the same transaction.
func NewRepository(pool *pgxpool.Pool, invoices *ledger.Repository) *PgRepository {
	return &PgRepository{pool: pool, invoices: invoices}
}

const paymentColumns = "id, number, customer_id, amount, paid_at, method, reference, notes, status, created_at, updated_at"

func scanPayment(row pgx.Row) (*payment.Payment, error) {
	var p payment.Payment
	err := row.Scan(&p.ID, &p.Number, &p.CustomerID, &p.Amount, &p.PaidAt,
		&p.Method, &p.Reference, &p.Notes, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPayment retrieves a payment with its allocations.
func (r *PgRepository) GetPayment(ctx context.Context, id int64) (*payment.Payment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM ar_payments WHERE id = $1`, id)
	p, err := scanPayment(row)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, ar_payment_id, ar_invoice_id, amount, created_at
		FROM ar_payment_allocations
		WHERE ar_payment_id = $1
		ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var a payment.Allocation
		if err := rows.Scan(&a.ID, &a.PaymentID, &a.InvoiceID, &a.Amount, &a.CreatedAt); err != nil {
			return nil, err
		}
		p.Allocations = append(p.Allocations, a)
	}
	return p, rows.Err()
}

// ListPayments returns payments newest first, optionally filtered by
// customer. customerID of zero lists all customers.
func (r *PgRepository) ListPayments(ctx context.Context, customerID int64) ([]payment.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM ar_payments`
	args := []any{}
	if customerID > 0 {
		query += ` WHERE customer_id = $1`
		args = append(args, customerID)
	}
	query += ` ORDER BY id DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []payment.Payment
	for rows.Next() {
		var p payment.Payment
		if err := rows.Scan(&p.ID, &p.Number, &p.CustomerID, &p.Amount, &p.PaidAt,
			&p.Method, &p.Reference, &p.Notes, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// WithTx runs fn inside a repeatable-read transaction exposing the
// settlement write operations.
func (r *PgRepository) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx, invoices: r.invoices})
	})
}

type txRepository struct {
	tx       pgx.Tx
	invoices *ledger.Repository
}

func (t *txRepository) GeneratePaymentNumber(ctx context.Context) (string, error) {
	var number string
	err := t.tx.QueryRow(ctx, "SELECT generate_ar_payment_number()").Scan(&number)
	return number, err
}

func (t *txRepository) CreatePayment(ctx context.Context, p payment.Payment) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO ar_payments (number, customer_id, amount, paid_at, method, reference, notes, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING id`,
		p.Number, p.CustomerID, p.Amount, p.PaidAt, p.Method, p.Reference, p.Notes, p.Status).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, fmt.Errorf("settlement: payment number %s already exists: %w", p.Number, err)
		}
		return 0, err
	}
	return id, nil
}

func (t *txRepository) CreateAllocation(ctx context.Context, paymentID, invoiceID int64, amount money.Money) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO ar_payment_allocations (ar_payment_id, ar_invoice_id, amount, created_at)
		VALUES ($1, $2, $3, NOW())`,
		paymentID, invoiceID, amount)
	return err
}

func (t *txRepository) ApplyPayment(ctx context.Context, invoiceID int64, amount money.Money) (*ledger.Invoice, error) {
	return t.invoices.ApplyPayment(ctx, t.tx, invoiceID, amount)
}

func (t *txRepository) SetInvoiceStatus(ctx context.Context, invoiceID int64, status ledger.InvoiceStatus) error {
	return t.invoices.SetStatus(ctx, t.tx, invoiceID, status)
}
