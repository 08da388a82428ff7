package invoice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool used by PostgresStore.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists invoices in the invoices table created by Migrate.
type PostgresStore struct {
	DB DB
}

const (
	insertInvoiceSQL = `INSERT INTO invoices (id, owner, invoice_no, total_cents, payload, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	listInvoicesSQL  = `SELECT payload FROM invoices WHERE owner = $1 ORDER BY created_at DESC, id DESC`
	getInvoiceSQL    = `SELECT payload FROM invoices WHERE owner = $1 AND id = $2`
	latestInvoiceSQL = `SELECT payload FROM invoices WHERE owner = $1 ORDER BY created_at DESC, id DESC LIMIT 1`
	clearInvoicesSQL = `DELETE FROM invoices WHERE owner = $1`
)

// Save inserts inv.
func (s *PostgresStore) Save(ctx context.Context, inv Invoice) error {
	if err := validate(inv); err != nil {
		return err
	}
	payload, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("encode invoice: %w", err)
	}
	totalCents := inv.Totals.Total.Shift(2).Round(0).IntPart()
	if _, err := s.DB.Exec(ctx, insertInvoiceSQL, inv.ID, inv.Owner, inv.InvoiceNo, totalCents, payload, inv.CreatedAt); err != nil {
		return fmt.Errorf("insert invoice: %w", err)
	}
	return nil
}

// List returns the owner's invoices, newest first.
func (s *PostgresStore) List(ctx context.Context, owner string) ([]Invoice, error) {
	rows, err := s.DB.Query(ctx, listInvoicesSQL, owner)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()

	out := []Invoice{}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var inv Invoice
		if err := json.Unmarshal(payload, &inv); err != nil {
			return nil, fmt.Errorf("decode invoice: %w", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// Get loads one invoice by id.
func (s *PostgresStore) Get(ctx context.Context, owner, id string) (Invoice, error) {
	return s.one(ctx, getInvoiceSQL, owner, id)
}

// Latest returns the newest invoice for owner.
func (s *PostgresStore) Latest(ctx context.Context, owner string) (Invoice, error) {
	return s.one(ctx, latestInvoiceSQL, owner)
}

// Clear removes the owner's history.
func (s *PostgresStore) Clear(ctx context.Context, owner string) error {
	_, err := s.DB.Exec(ctx, clearInvoicesSQL, owner)
	return err
}

func (s *PostgresStore) one(ctx context.Context, sql string, args ...any) (Invoice, error) {
	var payload []byte
	if err := s.DB.QueryRow(ctx, sql, args...).Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, ErrNotFound
		}
		return Invoice{}, fmt.Errorf("load invoice: %w", err)
	}
	var inv Invoice
	if err := json.Unmarshal(payload, &inv); err != nil {
		return Invoice{}, fmt.Errorf("decode invoice: %w", err)
	}
	return inv, nil
}
