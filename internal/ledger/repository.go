package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/money"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for invoices.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const invoiceColumns = "id, number, customer_id, total, amount_paid, status, due_at, created_at, updated_at"

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.Number, &inv.CustomerID, &inv.Total, &inv.AmountPaid,
		&inv.Status, &inv.DueAt, &inv.CreatedAt, &inv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInvoiceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// CreateInvoiceInput for issuing invoices. Issuing itself happens outside the
// settlement core but collaborators and seeds need the entry point.
type CreateInvoiceInput struct {
	Number     string
	CustomerID int64
	Total      money.Money
	DueAt      time.Time
}

// CreateInvoice inserts a new unpaid invoice, generating a number when none
// is supplied.
func (r *Repository) CreateInvoice(ctx context.Context, input CreateInvoiceInput) (*Invoice, error) {
	number := input.Number
	if number == "" {
		var err error
		number, err = r.GenerateInvoiceNumber(ctx)
		if err != nil {
			return nil, err
		}
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO ar_invoices (number, customer_id, total, amount_paid, status, due_at, created_at, updated_at)
		VALUES ($1, $2, $3, 0, $4, $5, NOW(), NOW())
		RETURNING `+invoiceColumns,
		number, input.CustomerID, input.Total, StatusUnpaid, input.DueAt)
	return scanInvoice(row)
}

// GetInvoice retrieves an invoice by ID.
func (r *Repository) GetInvoice(ctx context.Context, id int64) (*Invoice, error) {
	return r.getInvoice(ctx, r.pool, id)
}

func (r *Repository) getInvoice(ctx context.Context, q db.Querier, id int64) (*Invoice, error) {
	row := q.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM ar_invoices WHERE id = $1`, id)
	return scanInvoice(row)
}

// ListOpenInvoices returns invoices with a positive amount due, oldest first
// (ascending ID, the auto-allocation order). customerID of zero lists all
// customers.
func (r *Repository) ListOpenInvoices(ctx context.Context, customerID int64) ([]Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM ar_invoices WHERE total - amount_paid > 0`
	args := []any{}
	if customerID > 0 {
		query += ` AND customer_id = $1`
		args = append(args, customerID)
	}
	query += ` ORDER BY id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []Invoice
	for rows.Next() {
		var inv Invoice
		if err := rows.Scan(&inv.ID, &inv.Number, &inv.CustomerID, &inv.Total, &inv.AmountPaid,
			&inv.Status, &inv.DueAt, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

// ListInvoicesRequest filters invoice listings.
type ListInvoicesRequest struct {
	Status     InvoiceStatus
	CustomerID int64
	Limit      int
	Offset     int
}

// ListInvoices returns invoices with optional filtering.
func (r *Repository) ListInvoices(ctx context.Context, req ListInvoicesRequest) ([]Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM ar_invoices WHERE 1=1`
	args := []any{}
	argNum := 1

	if req.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, string(req.Status))
		argNum++
	}
	if req.CustomerID > 0 {
		query += fmt.Sprintf(" AND customer_id = $%d", argNum)
		args = append(args, req.CustomerID)
		argNum++
	}
	query += " ORDER BY id"
	if req.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, req.Limit)
		argNum++
	}
	if req.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argNum)
		args = append(args, req.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []Invoice
	for rows.Next() {
		var inv Invoice
		if err := rows.Scan(&inv.ID, &inv.Number, &inv.CustomerID, &inv.Total, &inv.AmountPaid,
			&inv.Status, &inv.DueAt, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

// ApplyPayment increments an invoice's paid amount inside q, which is the
// settlement transaction. The guard is a single conditional update so the
// read-check-write is atomic relative to concurrent settlements: when the
// row no longer has enough due, no row matches and the caller gets an
// OverAllocationError flagged as a stale read.
func (r *Repository) ApplyPayment(ctx context.Context, q db.Querier, invoiceID int64, amount money.Money) (*Invoice, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("ledger: allocation amount must be positive, got %s", amount)
	}

	row := q.QueryRow(ctx, `
		UPDATE ar_invoices
		SET amount_paid = amount_paid + $2, updated_at = NOW()
		WHERE id = $1 AND total - amount_paid >= $2
		RETURNING `+invoiceColumns,
		invoiceID, amount)

	inv, err := scanInvoice(row)
	if err == nil {
		return inv, nil
	}
	if !errors.Is(err, ErrInvoiceNotFound) {
		return nil, err
	}

	// No row matched: either the invoice is gone or its due amount shrank
	// underneath us.
	existing, getErr := r.getInvoice(ctx, q, invoiceID)
	if getErr != nil {
		return nil, getErr
	}
	return nil, &OverAllocationError{
		InvoiceID: invoiceID,
		Requested: amount,
		Due:       existing.AmountDue(),
		StaleRead: true,
	}
}

// SetStatus persists a derived invoice status inside q.
func (r *Repository) SetStatus(ctx context.Context, q db.Querier, invoiceID int64, status InvoiceStatus) error {
	tag, err := q.Exec(ctx, `UPDATE ar_invoices SET status = $2, updated_at = NOW() WHERE id = $1`, invoiceID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

// AllocationSum returns the sum of all persisted allocations targeting an
// invoice, across all payments.
func (r *Repository) AllocationSum(ctx context.Context, invoiceID int64) (money.Money, error) {
	var sum money.Money
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM ar_payment_allocations WHERE ar_invoice_id = $1`,
		invoiceID).Scan(&sum)
	if err != nil {
		return money.Zero(), err
	}
	return sum, nil
}

// VerifyAllocationInvariant checks that amount_paid equals the sum of the
// invoice's persisted allocations. Defense in depth after settlement commit.
func (r *Repository) VerifyAllocationInvariant(ctx context.Context, invoiceID int64) error {
	inv, err := r.GetInvoice(ctx, invoiceID)
	if err != nil {
		return err
	}
	sum, err := r.AllocationSum(ctx, invoiceID)
	if err != nil {
		return err
	}
	if !inv.AmountPaid.Equal(sum) {
		return fmt.Errorf("ledger: invoice %d amount_paid %s does not match allocation sum %s",
			invoiceID, inv.AmountPaid, sum)
	}
	return nil
}

// RefreshOverdueStatuses flips unpaid invoices past their due date to
// OVERDUE. Display-level qualification only; partial invoices keep PARTIAL.
func (r *Repository) RefreshOverdueStatuses(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE ar_invoices
		SET status = $1, updated_at = NOW()
		WHERE status = $2 AND due_at < $3 AND amount_paid = 0`,
		StatusOverdue, StatusUnpaid, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// GenerateInvoiceNumber generates a unique invoice number.
func (r *Repository) GenerateInvoiceNumber(ctx context.Context) (string, error) {
	var number string
	err := r.pool.QueryRow(ctx, "SELECT generate_ar_invoice_number()").Scan(&number)
	return number, err
}
