package service

import (
	"context"
	"time"

	"github.com/Astemirdum/borrow-service/borrowing/internal/model"
	"go.uber.org/zap"
)

// RunOverdueSweeper periodically re-runs the derived-overdue query and
// publishes an event for each loan that crossed its due date since the
// previous pass. Reporting only: read paths derive overdue themselves, so
// correctness never depends on this job.
func (s *Service) RunOverdueSweeper(ctx context.Context) error {
	ticker := time.NewTicker(s.policy.SweepInterval)
	defer ticker.Stop()

	lastSweep := time.Now().UTC()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			now := time.Now().UTC()
			s.sweep(ctx, lastSweep, now)
			lastSweep = now
		}
	}
}

func (s *Service) sweep(ctx context.Context, since, now time.Time) {
	items, err := s.repo.ListOverdue(ctx, now)
	if err != nil {
		s.log.Error("overdue sweep", zap.Error(err))
		return
	}
	for _, bw := range items {
		if !bw.DueDate.After(since) {
			continue // already reported on a previous pass
		}
		fee := ComputeLateFee(bw.DueDate, now, s.policy.FeeRateCentsPerDay)
		s.publish(model.BorrowingEvent{
			Type:         model.EventBorrowingOverdue,
			BorrowingUid: bw.BorrowingUid,
			BookUid:      bw.BookUid,
			Username:     bw.Username,
			DueDate:      bw.DueDate,
			LateFee:      model.FormatCents(fee.FeeCents),
		})
	}
	s.log.Debug("overdue sweep done", zap.Int("overdue", len(items)))
}
