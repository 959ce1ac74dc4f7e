package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"susu-ledger-backend/internal/domain"
	"susu-ledger-backend/internal/logger"
)

type groupRepository struct {
	c conn
}

const groupColumns = `id, name, description, admin_id, contribution_amount, frequency, max_members,
	start_date, current_cycle, total_cycles, next_payout_date, status, created_at, updated_at`

func (r *groupRepository) Create(ctx context.Context, g *domain.Group) error {
	query := `INSERT INTO savings_groups (` + groupColumns + `)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	logger.DatabaseCall("INSERT", "savings_groups", "groupID", g.ID)
	_, err := r.c.exec(ctx, query,
		string(g.ID), g.Name, g.Description, string(g.Admin), int64(g.ContributionAmount), string(g.Frequency),
		g.MaxMembers, toNanos(g.StartDate), g.CurrentCycle, g.TotalCycles, toNanos(g.NextPayoutDate),
		string(g.Status), toNanos(g.CreatedAt), toNanos(g.UpdatedAt))
	logger.DatabaseResult("INSERT", 1, err, "groupID", g.ID)
	if err != nil {
		if r.c.d.isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return domain.Internal(err, "failed to create group")
	}
	return nil
}

func (r *groupRepository) GetByID(ctx context.Context, id domain.GroupCode) (*domain.Group, error) {
	return r.get(ctx, id, "")
}

func (r *groupRepository) GetForUpdate(ctx context.Context, id domain.GroupCode) (*domain.Group, error) {
	return r.get(ctx, id, r.c.lockSuffix())
}

func (r *groupRepository) get(ctx context.Context, id domain.GroupCode, suffix string) (*domain.Group, error) {
	query := `SELECT ` + groupColumns + ` FROM savings_groups WHERE id = ?` + suffix
	g, err := scanGroup(r.c.queryRow(ctx, query, string(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("group %s not found", id)
	}
	if err != nil {
		return nil, domain.Internal(err, "failed to get group")
	}
	members, err := r.members(ctx, id, suffix)
	if err != nil {
		return nil, err
	}
	g.Members = members
	return g, nil
}

func (r *groupRepository) members(ctx context.Context, id domain.GroupCode, suffix string) ([]domain.Member, error) {
	query := `SELECT user_id, joined_at, payout_order, has_received_payout, payout_date, contribution_status, missed_cycles
	          FROM group_members WHERE group_id = ? ORDER BY payout_order` + suffix
	rows, err := r.c.query(ctx, query, string(id))
	if err != nil {
		return nil, domain.Internal(err, "failed to list members")
	}
	defer rows.Close()

	members := []domain.Member{}
	for rows.Next() {
		var (
			m          domain.Member
			joinedAt   int64
			payoutDate sql.NullInt64
			status     string
		)
		if err := rows.Scan(&m.UserID, &joinedAt, &m.PayoutOrder, &m.HasReceivedPayout, &payoutDate, &status, &m.MissedCycles); err != nil {
			return nil, domain.Internal(err, "failed to scan member")
		}
		m.JoinedAt = fromNanos(joinedAt)
		m.PayoutDate = timePtr(payoutDate)
		m.ContributionStatus = domain.ContributionStatus(status)
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Internal(err, "failed to list members")
	}
	return members, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGroup(row rowScanner) (*domain.Group, error) {
	var (
		g                                 domain.Group
		amount                            int64
		frequency, status                 string
		start, next, createdAt, updatedAt int64
	)
	err := row.Scan(&g.ID, &g.Name, &g.Description, &g.Admin, &amount, &frequency, &g.MaxMembers,
		&start, &g.CurrentCycle, &g.TotalCycles, &next, &status, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	g.ContributionAmount = domain.Amount(amount)
	g.Frequency = domain.Frequency(frequency)
	g.StartDate = fromNanos(start)
	g.NextPayoutDate = fromNanos(next)
	g.Status = domain.GroupStatus(status)
	g.IsActive = g.Status == domain.GroupStatusActive
	g.CreatedAt = fromNanos(createdAt)
	g.UpdatedAt = fromNanos(updatedAt)
	return &g, nil
}

func (r *groupRepository) Update(ctx context.Context, g *domain.Group) error {
	query := `UPDATE savings_groups SET name = ?, description = ?, current_cycle = ?, total_cycles = ?,
	          next_payout_date = ?, status = ?, updated_at = ? WHERE id = ?`
	logger.DatabaseCall("UPDATE", "savings_groups", "groupID", g.ID, "cycle", g.CurrentCycle, "status", g.Status)
	res, err := r.c.exec(ctx, query, g.Name, g.Description, g.CurrentCycle, g.TotalCycles,
		toNanos(g.NextPayoutDate), string(g.Status), toNanos(g.UpdatedAt), string(g.ID))
	if err != nil {
		logger.DatabaseResult("UPDATE", 0, err, "groupID", g.ID)
		return domain.Internal(err, "failed to update group")
	}
	n, _ := res.RowsAffected()
	logger.DatabaseResult("UPDATE", n, nil, "groupID", g.ID)
	if n == 0 {
		return domain.NotFound("group %s not found", g.ID)
	}
	return nil
}

func (r *groupRepository) AddMember(ctx context.Context, id domain.GroupCode, m *domain.Member) error {
	query := `INSERT INTO group_members (group_id, user_id, joined_at, payout_order, has_received_payout, payout_date, contribution_status, missed_cycles)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	logger.DatabaseCall("INSERT", "group_members", "groupID", id, "userID", m.UserID, "payoutOrder", m.PayoutOrder)
	_, err := r.c.exec(ctx, query, string(id), string(m.UserID), toNanos(m.JoinedAt), m.PayoutOrder,
		m.HasReceivedPayout, nullNanos(m.PayoutDate), string(m.ContributionStatus), m.MissedCycles)
	logger.DatabaseResult("INSERT", 1, err, "groupID", id, "userID", m.UserID)
	if err != nil {
		if r.c.d.isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return domain.Internal(err, "failed to add member")
	}
	return nil
}

func (r *groupRepository) UpdateMember(ctx context.Context, id domain.GroupCode, m *domain.Member) error {
	query := `UPDATE group_members SET has_received_payout = ?, payout_date = ?, contribution_status = ?, missed_cycles = ?
	          WHERE group_id = ? AND user_id = ?`
	res, err := r.c.exec(ctx, query, m.HasReceivedPayout, nullNanos(m.PayoutDate), string(m.ContributionStatus),
		m.MissedCycles, string(id), string(m.UserID))
	if err != nil {
		return domain.Internal(err, "failed to update member")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFound("member %s not found in group %s", m.UserID, id)
	}
	return nil
}

// ListByMember returns every group user belongs to, members included,
// ordered by creation time.
func (r *groupRepository) ListByMember(ctx context.Context, user domain.AccountID) ([]domain.Group, error) {
	query := `SELECT g.id FROM savings_groups g JOIN group_members m ON m.group_id = g.id
	          WHERE m.user_id = ? ORDER BY g.created_at, g.id`
	ids, err := r.listCodes(ctx, query, string(user))
	if err != nil {
		return nil, err
	}
	groups := make([]domain.Group, 0, len(ids))
	for _, id := range ids {
		g, err := r.get(ctx, id, "")
		if err != nil {
			return nil, err
		}
		groups = append(groups, *g)
	}
	return groups, nil
}

func (r *groupRepository) ListDueForActivation(ctx context.Context, now time.Time, minMembers int) ([]domain.GroupCode, error) {
	query := `SELECT g.id FROM savings_groups g
	          WHERE g.status = ? AND g.start_date <= ?
	            AND (SELECT COUNT(*) FROM group_members m WHERE m.group_id = g.id) >= ?
	          ORDER BY g.start_date, g.id`
	return r.listCodes(ctx, query, string(domain.GroupStatusForming), toNanos(now), minMembers)
}

func (r *groupRepository) ListWithOverdueMembers(ctx context.Context, now time.Time) ([]domain.GroupCode, error) {
	query := `SELECT DISTINCT g.id FROM savings_groups g JOIN group_members m ON m.group_id = g.id
	          WHERE g.status = ? AND g.next_payout_date < ? AND m.contribution_status = ?
	          ORDER BY g.id`
	return r.listCodes(ctx, query, string(domain.GroupStatusActive), toNanos(now), string(domain.ContributionPending))
}

func (r *groupRepository) listCodes(ctx context.Context, query string, args ...any) ([]domain.GroupCode, error) {
	rows, err := r.c.query(ctx, query, args...)
	if err != nil {
		return nil, domain.Internal(err, "failed to list groups")
	}
	defer rows.Close()

	var ids []domain.GroupCode
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, domain.Internal(err, "failed to scan group id")
		}
		ids = append(ids, domain.GroupCode(id))
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Internal(err, "failed to list groups")
	}
	return ids, nil
}
