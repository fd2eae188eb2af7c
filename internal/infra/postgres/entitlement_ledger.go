package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"testseries-attempt-service/internal/domain"
)

// EntitlementLedger reads and consumes purchase records. Consume relies on
// the attempt_used predicate in the UPDATE, so two racing starts cannot both
// spend the same order.
type EntitlementLedger struct {
	pool *pgxpool.Pool
}

func NewEntitlementLedger(pool *pgxpool.Pool) *EntitlementLedger {
	return &EntitlementLedger{pool: pool}
}

func (l *EntitlementLedger) FindUnused(ctx context.Context, studentID, testID string) (domain.Order, bool, error) {
	var o domain.Order
	err := l.pool.QueryRow(ctx, `
		SELECT id, student_id, test_ids, settled, attempt_used
		FROM orders
		WHERE student_id=$1 AND settled AND NOT attempt_used AND $2 = ANY(test_ids)
		LIMIT 1`, studentID, testID).
		Scan(&o.ID, &o.StudentID, &o.TestIDs, &o.Settled, &o.AttemptUsed)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, false, nil
	}
	if err != nil {
		return domain.Order{}, false, fmt.Errorf("find order: %w", err)
	}
	return o, true, nil
}

func (l *EntitlementLedger) Consume(ctx context.Context, orderID string) error {
	tag, err := l.pool.Exec(ctx, `UPDATE orders SET attempt_used = TRUE WHERE id=$1 AND attempt_used = FALSE`, orderID)
	if err != nil {
		return fmt.Errorf("consume order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrEntitlementUsed
	}
	return nil
}

func (l *EntitlementLedger) Release(ctx context.Context, orderID string) error {
	_, err := l.pool.Exec(ctx, `UPDATE orders SET attempt_used = FALSE WHERE id=$1`, orderID)
	if err != nil {
		return fmt.Errorf("release order: %w", err)
	}
	return nil
}
