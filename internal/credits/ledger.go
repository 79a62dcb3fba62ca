package credits

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/fedutinova/lectary/internal/database"
	"github.com/fedutinova/lectary/internal/models"
)

// Ledger deducts and refunds prepaid credits against the users table.
// Deduction is the first half of a saga: it happens before the expensive
// pipeline runs, and the pipeline compensates with Refund on failure. The
// narrow window where a user is charged for work that then fails is an
// accepted trade-off, not something to paper over with a wider transaction.
type Ledger struct {
	db *database.DB
}

func NewLedger(db *database.DB) *Ledger {
	return &Ledger{db: db}
}

var validColumns = func() map[string]bool {
	m := make(map[string]bool, len(models.CreditColumns))
	for _, c := range models.CreditColumns {
		m[c] = true
	}
	return m
}()

func checkColumns(creditTypes []string) error {
	for _, t := range creditTypes {
		if !validColumns[t] {
			return fmt.Errorf("unknown credit type %q", t)
		}
	}
	return nil
}

// Deduct tries each credit type in priority order and decrements the first
// one with a positive balance, all inside a single row-locked transaction so
// concurrent deductions for the same user serialize. Returns the name of the
// type actually charged, or "" when every balance is exhausted.
func (l *Ledger) Deduct(ctx context.Context, uid string, creditTypes ...string) (string, error) {
	if len(creditTypes) == 0 {
		return "", fmt.Errorf("no credit types given")
	}
	if err := checkColumns(creditTypes); err != nil {
		return "", err
	}

	var deducted string
	err := l.db.WithTx(ctx, func(tx pgx.Tx) error {
		balances, err := lockBalances(ctx, tx, uid, creditTypes)
		if err != nil {
			return err
		}
		for _, creditType := range creditTypes {
			if balances[creditType] <= 0 {
				continue
			}
			query := fmt.Sprintf(
				`UPDATE users SET %s = %s - 1, total_processed = total_processed + 1 WHERE uid = $1`,
				creditType, creditType,
			)
			if _, err := tx.Exec(ctx, query, uid); err != nil {
				return fmt.Errorf("deduct %s: %w", creditType, err)
			}
			deducted = creditType
			return nil
		}
		return nil // exhausted; commit the no-op
	})
	if err != nil {
		return "", err
	}
	return deducted, nil
}

// Refund returns one credit of creditType after a failed job. Best-effort
// compensation: failures are logged, never propagated into the job's own
// failure handling.
func (l *Ledger) Refund(ctx context.Context, uid, creditType string) error {
	if uid == "" || creditType == "" {
		return nil
	}
	if err := checkColumns([]string{creditType}); err != nil {
		return err
	}
	query := fmt.Sprintf(
		`UPDATE users SET %s = %s + 1, total_processed = total_processed - 1 WHERE uid = $1`,
		creditType, creditType,
	)
	if _, err := l.db.Pool().Exec(ctx, query, uid); err != nil {
		slog.Error("failed to refund credit", "uid", uid, "credit_type", creditType, "err", err)
		return fmt.Errorf("refund %s: %w", creditType, err)
	}
	slog.Info("refunded credit after processing failure", "uid", uid, "credit_type", creditType)
	return nil
}

// DeductSlides reserves amount slides credits in one transaction; all or
// nothing. Used for interview extras priced in slides-credit units.
func (l *Ledger) DeductSlides(ctx context.Context, uid string, amount int) (bool, error) {
	if amount <= 0 {
		return true, nil
	}
	ok := false
	err := l.db.WithTx(ctx, func(tx pgx.Tx) error {
		balances, err := lockBalances(ctx, tx, uid, []string{models.CreditSlides})
		if err != nil {
			return err
		}
		if balances[models.CreditSlides] < amount {
			return nil
		}
		if _, err := tx.Exec(ctx,
			`UPDATE users SET slides_credits = slides_credits - $1 WHERE uid = $2`,
			amount, uid,
		); err != nil {
			return fmt.Errorf("deduct slides credits: %w", err)
		}
		ok = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (l *Ledger) RefundSlides(ctx context.Context, uid string, amount int) error {
	if uid == "" || amount <= 0 {
		return nil
	}
	if _, err := l.db.Pool().Exec(ctx,
		`UPDATE users SET slides_credits = slides_credits + $1 WHERE uid = $2`,
		amount, uid,
	); err != nil {
		slog.Error("failed to refund slides credits", "uid", uid, "amount", amount, "err", err)
		return fmt.Errorf("refund slides credits: %w", err)
	}
	slog.Info("refunded slides credits", "uid", uid, "amount", amount)
	return nil
}

func lockBalances(ctx context.Context, tx pgx.Tx, uid string, creditTypes []string) (map[string]int, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM users WHERE uid = $1 FOR UPDATE`,
		strings.Join(creditTypes, ", "),
	)
	dest := make([]any, len(creditTypes))
	values := make([]int, len(creditTypes))
	for i := range values {
		dest[i] = &values[i]
	}
	if err := tx.QueryRow(ctx, query, uid).Scan(dest...); err != nil {
		if err == pgx.ErrNoRows {
			return map[string]int{}, nil
		}
		return nil, fmt.Errorf("lock user balances: %w", err)
	}
	out := make(map[string]int, len(creditTypes))
	for i, creditType := range creditTypes {
		out[creditType] = values[i]
	}
	return out, nil
}
