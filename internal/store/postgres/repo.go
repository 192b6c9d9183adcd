// Package postgres persists top-up receipts: one row per ledger credit
// attempt made after a payment was captured. The receipts are an audit
// trail for reconciliation, never a source of balance truth.
package postgres

import (
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo { return &Repo{db: db} }
