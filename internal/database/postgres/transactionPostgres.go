package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/schatha/stamford-parking-system-sub001/internal/entity"
)

type transactionRepository struct {
	db *sql.DB
}

func NewTransactionRepository(db *sql.DB) TransactionRepository {
	return &transactionRepository{db: db}
}

const transactionColumns = `
	id, session_id, user_id, kind, amount, status, COALESCE(external_ref, ''),
	failure_reason, created_at, updated_at`

func scanTransaction(row interface{ Scan(...interface{}) error }) (*entity.Transaction, error) {
	var tx entity.Transaction
	err := row.Scan(
		&tx.ID,
		&tx.SessionID,
		&tx.UserID,
		&tx.Kind,
		&tx.Amount,
		&tx.Status,
		&tx.ExternalRef,
		&tx.FailureReason,
		&tx.CreatedAt,
		&tx.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *transactionRepository) queryTransactions(ctx context.Context, query string, args ...interface{}) ([]*entity.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %v", err)
	}
	defer rows.Close()

	var txs []*entity.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %v", err)
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %v", err)
	}
	return txs, nil
}

func (r *transactionRepository) Create(ctx context.Context, tx *entity.Transaction) error {
	query := `
		INSERT INTO transactions (
			id, session_id, user_id, kind, amount, status, external_ref,
			failure_reason, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query,
		tx.ID,
		tx.SessionID,
		tx.UserID,
		tx.Kind,
		tx.Amount,
		tx.Status,
		tx.ExternalRef,
		tx.FailureReason,
		tx.CreatedAt,
		tx.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %v", err)
	}
	return nil
}

func (r *transactionRepository) GetByExternalRef(ctx context.Context, externalRef string) (*entity.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE external_ref = $1`

	tx, err := scanTransaction(r.db.QueryRowContext(ctx, query, externalRef))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction by external ref: %v", err)
	}
	return tx, nil
}

func (r *transactionRepository) GetPendingCharge(ctx context.Context, sessionID uuid.UUID) (*entity.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE session_id = $1 AND kind = $2 AND status = $3
		ORDER BY created_at
		LIMIT 1
	`

	tx, err := scanTransaction(r.db.QueryRowContext(ctx, query,
		sessionID, entity.TransactionKindCharge, entity.TransactionStatusPending))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending charge: %v", err)
	}
	return tx, nil
}

func (r *transactionRepository) GetCompletedCharges(ctx context.Context, sessionID uuid.UUID) ([]*entity.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE session_id = $1 AND kind = $2 AND status = $3
		ORDER BY created_at
	`
	return r.queryTransactions(ctx, query,
		sessionID, entity.TransactionKindCharge, entity.TransactionStatusCompleted)
}

func (r *transactionRepository) GetBySessionID(ctx context.Context, sessionID uuid.UUID) ([]*entity.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE session_id = $1 ORDER BY created_at`
	return r.queryTransactions(ctx, query, sessionID)
}

func (r *transactionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status entity.TransactionStatus, externalRef, reason string) error {
	query := `
		UPDATE transactions
		SET status = $2,
			external_ref = COALESCE(NULLIF($3, ''), external_ref),
			failure_reason = $4,
			updated_at = $5
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, status, externalRef, reason, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update transaction status: %v", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %v", err)
	}
	if rowsAffected == 0 {
		return entity.ErrTransactionNotFound
	}
	return nil
}
