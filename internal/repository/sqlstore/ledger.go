package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"susu-ledger-backend/internal/domain"
	"susu-ledger-backend/internal/logger"
)

type ledgerRepository struct {
	c conn
}

const txColumns = `id, account_id, kind, amount, method, status, reference, created_at, group_id, cycle, dedupe_key, settled_at`

// Append writes tx to the log, assigning its id. A completed entry moves the
// owner's cached balance in the same statement sequence; callers run Append
// inside WithTx so both land or neither does.
func (r *ledgerRepository) Append(ctx context.Context, tx *domain.Transaction) error {
	logger.EnterMethod("ledgerRepository.Append", "accountID", tx.AccountID, "kind", tx.Kind, "amount", tx.Amount)
	if tx.Amount <= 0 {
		return domain.BadRequest("invalid amount")
	}
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}

	var group sql.NullString
	if tx.GroupID != nil {
		group = sql.NullString{String: string(*tx.GroupID), Valid: true}
	}
	var cycle sql.NullInt64
	if tx.Cycle != nil {
		cycle = sql.NullInt64{Int64: int64(*tx.Cycle), Valid: true}
	}

	query := `INSERT INTO transactions (` + txColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	logger.DatabaseCall("INSERT", "transactions", "transactionID", tx.ID, "kind", tx.Kind)
	_, err := r.c.exec(ctx, query, tx.ID, string(tx.AccountID), string(tx.Kind), int64(tx.Amount), tx.Method.String(),
		string(tx.Status), nullString(tx.Reference), toNanos(tx.Timestamp), group, cycle,
		nullString(tx.DedupeKey), nullNanos(tx.SettledAt))
	logger.DatabaseResult("INSERT", 1, err, "transactionID", tx.ID)
	if err != nil {
		if r.c.d.isUniqueViolation(err) {
			logger.ExitMethod("ledgerRepository.Append", "duplicate", true)
			return domain.ErrDuplicate
		}
		logger.ExitMethodWithError("ledgerRepository.Append", err)
		return domain.Internal(err, "failed to append transaction")
	}

	if tx.Status == domain.TransactionCompleted {
		if err := r.applyBalance(ctx, tx.AccountID, tx.Kind.SignedAmount(tx.Amount), tx.Timestamp); err != nil {
			logger.ExitMethodWithError("ledgerRepository.Append", err)
			return err
		}
	}
	logger.ExitMethod("ledgerRepository.Append", "transactionID", tx.ID)
	return nil
}

func (r *ledgerRepository) applyBalance(ctx context.Context, account domain.AccountID, delta domain.Amount, at time.Time) error {
	if delta == 0 {
		return nil
	}
	// the bound is compared against the stored balance so the check itself
	// cannot overflow
	guard, bound := `balance >= ?`, int64(-delta)
	if delta > 0 {
		guard, bound = `balance <= ?`, math.MaxInt64-int64(delta)
	}
	query := `UPDATE users SET balance = balance + ?, updated_at = ? WHERE id = ? AND ` + guard
	res, err := r.c.exec(ctx, query, int64(delta), toNanos(at), string(account), bound)
	if err != nil {
		return domain.Internal(err, "failed to update balance")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if delta > 0 {
			return domain.BadRequest("balance of %s cannot absorb %d", account, delta)
		}
		return domain.InsufficientFunds("balance of %s cannot absorb %d", account, delta)
	}
	return nil
}

// Settle moves a pending entry to a terminal status and applies its balance
// effect when it completes. Terminal entries are never touched again.
func (r *ledgerRepository) Settle(ctx context.Context, id string, status domain.TransactionStatus, at time.Time) (*domain.Transaction, error) {
	if !status.IsTerminal() {
		return nil, domain.BadRequest("settlement status must be terminal, got %q", status)
	}
	query := `UPDATE transactions SET status = ?, settled_at = ? WHERE id = ? AND status = ?`
	logger.DatabaseCall("UPDATE", "transactions", "transactionID", id, "status", status)
	res, err := r.c.exec(ctx, query, string(status), toNanos(at), id, string(domain.TransactionPending))
	if err != nil {
		logger.DatabaseResult("UPDATE", 0, err, "transactionID", id)
		return nil, domain.Internal(err, "failed to settle transaction")
	}
	n, _ := res.RowsAffected()
	logger.DatabaseResult("UPDATE", n, nil, "transactionID", id)

	tx, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, domain.BadRequest("transaction %s is already %s", id, tx.Status)
	}
	if status == domain.TransactionCompleted {
		if err := r.applyBalance(ctx, tx.AccountID, tx.Kind.SignedAmount(tx.Amount), at); err != nil {
			return nil, err
		}
	}
	return tx, nil
}

func (r *ledgerRepository) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	return r.getOne(ctx, `WHERE id = ?`, id)
}

func (r *ledgerRepository) FindByDedupeKey(ctx context.Context, key string) (*domain.Transaction, error) {
	return r.getOne(ctx, `WHERE dedupe_key = ?`, key)
}

// FindByReference returns the oldest pending entry carrying reference, or
// the oldest settled one when none is pending.
func (r *ledgerRepository) FindByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	return r.getOne(ctx, `WHERE reference = ? ORDER BY CASE WHEN status = ? THEN 0 ELSE 1 END, created_at, id LIMIT 1`,
		reference, string(domain.TransactionPending))
}

func (r *ledgerRepository) getOne(ctx context.Context, where string, args ...any) (*domain.Transaction, error) {
	query := `SELECT ` + txColumns + ` FROM transactions ` + where
	tx, err := scanTransaction(r.c.queryRow(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("transaction not found")
	}
	if err != nil {
		return nil, domain.Internal(err, "failed to get transaction")
	}
	return tx, nil
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var (
		tx                   domain.Transaction
		kind, method, status string
		amount, createdAt    int64
		reference, dedupeKey sql.NullString
		group                sql.NullString
		cycle, settledAt     sql.NullInt64
	)
	err := row.Scan(&tx.ID, &tx.AccountID, &kind, &amount, &method, &status, &reference, &createdAt,
		&group, &cycle, &dedupeKey, &settledAt)
	if err != nil {
		return nil, err
	}
	tx.Kind = domain.TransactionKind(kind)
	tx.Amount = domain.Amount(amount)
	// method was validated on the way in
	tx.Method, _ = domain.ParsePaymentMethod(method)
	tx.Status = domain.TransactionStatus(status)
	tx.Reference = stringPtr(reference)
	tx.Timestamp = fromNanos(createdAt)
	if group.Valid {
		g := domain.GroupCode(group.String)
		tx.GroupID = &g
	}
	if cycle.Valid {
		c := uint32(cycle.Int64)
		tx.Cycle = &c
	}
	tx.DedupeKey = stringPtr(dedupeKey)
	tx.SettledAt = timePtr(settledAt)
	return &tx, nil
}

// BalanceOf recomputes the personal balance from the log.
func (r *ledgerRepository) BalanceOf(ctx context.Context, account domain.AccountID) (domain.Amount, error) {
	query := `SELECT COALESCE(SUM(CASE WHEN kind IN (?, ?) THEN amount WHEN kind = ? THEN -amount ELSE 0 END), 0)
	          FROM transactions WHERE account_id = ? AND status = ?`
	var sum int64
	err := r.c.queryRow(ctx, query,
		string(domain.TransactionDeposit), string(domain.TransactionGroupPayout), string(domain.TransactionWithdraw),
		string(account), string(domain.TransactionCompleted)).Scan(&sum)
	if err != nil {
		return 0, domain.Internal(err, "failed to compute balance")
	}
	return domain.Amount(sum), nil
}

// HeldAmount is the sum of pending withdrawals, which are reserved against
// the available balance until they settle.
func (r *ledgerRepository) HeldAmount(ctx context.Context, account domain.AccountID) (domain.Amount, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE account_id = ? AND kind = ? AND status = ?`
	var sum int64
	err := r.c.queryRow(ctx, query, string(account), string(domain.TransactionWithdraw),
		string(domain.TransactionPending)).Scan(&sum)
	if err != nil {
		return 0, domain.Internal(err, "failed to compute held amount")
	}
	return domain.Amount(sum), nil
}

// History pages newest first with a (timestamp, id) keyset cursor.
func (r *ledgerRepository) History(ctx context.Context, account domain.AccountID, filter domain.HistoryFilter) (*domain.HistoryPage, error) {
	where := []string{"account_id = ?"}
	args := []any{string(account)}
	if filter.Kind != nil {
		where = append(where, "kind = ?")
		args = append(args, string(*filter.Kind))
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.GroupID != nil {
		where = append(where, "group_id = ?")
		args = append(args, string(*filter.GroupID))
	}
	if filter.After != nil {
		ts := toNanos(filter.After.Timestamp)
		where = append(where, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, ts, ts, filter.After.ID)
	}
	query := `SELECT ` + txColumns + ` FROM transactions WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		// one extra row tells us whether another page exists
		query += ` LIMIT ?`
		args = append(args, filter.Limit+1)
	}

	logger.DatabaseCall("SELECT", "transactions", "accountID", account, "limit", filter.Limit)
	rows, err := r.c.query(ctx, query, args...)
	if err != nil {
		logger.DatabaseResult("SELECT", 0, err, "accountID", account)
		return nil, domain.Internal(err, "failed to list transactions")
	}
	defer rows.Close()

	page := &domain.HistoryPage{Transactions: []domain.Transaction{}}
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, domain.Internal(err, "failed to scan transaction")
		}
		page.Transactions = append(page.Transactions, *tx)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Internal(err, "failed to list transactions")
	}
	logger.DatabaseResult("SELECT", int64(len(page.Transactions)), nil, "accountID", account)

	if filter.Limit > 0 && len(page.Transactions) > filter.Limit {
		page.Transactions = page.Transactions[:filter.Limit]
		last := page.Transactions[filter.Limit-1]
		page.Next = &domain.HistoryCursor{Timestamp: last.Timestamp, ID: last.ID}
	}
	return page, nil
}

func (r *ledgerRepository) Summary(ctx context.Context, account domain.AccountID) (*domain.SavingsSummary, error) {
	query := `SELECT kind, COALESCE(SUM(amount), 0) FROM transactions
	          WHERE account_id = ? AND status = ? GROUP BY kind`
	rows, err := r.c.query(ctx, query, string(account), string(domain.TransactionCompleted))
	if err != nil {
		return nil, domain.Internal(err, "failed to summarise transactions")
	}
	defer rows.Close()

	s := &domain.SavingsSummary{}
	for rows.Next() {
		var (
			kind string
			sum  int64
		)
		if err := rows.Scan(&kind, &sum); err != nil {
			return nil, domain.Internal(err, "failed to scan summary")
		}
		switch domain.TransactionKind(kind) {
		case domain.TransactionDeposit:
			s.TotalDeposits = domain.Amount(sum)
		case domain.TransactionWithdraw:
			s.TotalWithdrawals = domain.Amount(sum)
		case domain.TransactionGroupContribution:
			s.TotalContributions = domain.Amount(sum)
		case domain.TransactionGroupPayout:
			s.TotalPayouts = domain.Amount(sum)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Internal(err, "failed to summarise transactions")
	}
	return s, nil
}

// CollectedForCycle sums the completed contributions of one cycle.
func (r *ledgerRepository) CollectedForCycle(ctx context.Context, group domain.GroupCode, cycle uint32) (domain.Amount, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM transactions
	          WHERE group_id = ? AND cycle = ? AND kind = ? AND status = ?`
	var sum int64
	err := r.c.queryRow(ctx, query, string(group), cycle, string(domain.TransactionGroupContribution),
		string(domain.TransactionCompleted)).Scan(&sum)
	if err != nil {
		return 0, domain.Internal(err, "failed to sum contributions")
	}
	return domain.Amount(sum), nil
}

// ListStalePending returns pending deposits and withdrawals created before
// the cutoff, oldest first.
func (r *ledgerRepository) ListStalePending(ctx context.Context, before time.Time, limit int) ([]domain.Transaction, error) {
	query := `SELECT ` + txColumns + ` FROM transactions WHERE status = ? AND kind IN (?, ?) AND created_at < ?
	          ORDER BY created_at, id LIMIT ?`
	rows, err := r.c.query(ctx, query, string(domain.TransactionPending), string(domain.TransactionDeposit),
		string(domain.TransactionWithdraw), toNanos(before), limit)
	if err != nil {
		return nil, domain.Internal(err, "failed to list pending transactions")
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, domain.Internal(err, "failed to scan transaction")
		}
		out = append(out, *tx)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Internal(err, "failed to list pending transactions")
	}
	return out, nil
}
