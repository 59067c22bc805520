package service

import (
	"context"
	"time"

	"github.com/Astemirdum/borrow-service/borrowing/internal/errs"
	"github.com/Astemirdum/borrow-service/borrowing/internal/model"
	"github.com/Astemirdum/borrow-service/borrowing/internal/repository"
	"github.com/Astemirdum/borrow-service/pkg/auth"
	"github.com/Astemirdum/borrow-service/pkg/cache"
	"github.com/Astemirdum/borrow-service/pkg/kafka"
	"go.uber.org/zap"
)

// Policy is the injected borrowing policy; the service never hardcodes
// durations or fee rates.
type Policy struct {
	MinDays            int           `envconfig:"BORROW_MIN_DAYS" default:"1"`
	MaxDays            int           `envconfig:"BORROW_MAX_DAYS" default:"30"`
	FeeRateCentsPerDay int64         `envconfig:"LATE_FEE_CENTS_PER_DAY" default:"50"`
	CacheTTL           time.Duration `envconfig:"AVAILABILITY_CACHE_TTL" default:"30s"`
	SweepInterval      time.Duration `envconfig:"OVERDUE_SWEEP_INTERVAL" default:"10m"`
}

type Service struct {
	log    *zap.Logger
	repo   repository.Repository
	enq    Enqueuer
	cache  cache.Cache
	policy Policy
}

func NewService(repo repository.Repository, enq Enqueuer, policy Policy, log *zap.Logger) *Service {
	return &Service{
		log:    log,
		repo:   repo,
		enq:    enq,
		cache:  cache.New(policy.CacheTTL),
		policy: policy,
	}
}

func (s *Service) CreateRequest(ctx context.Context, req model.CreateBorrowRequest) (model.BorrowRequest, error) {
	if req.RequestedDays < s.policy.MinDays || req.RequestedDays > s.policy.MaxDays {
		return model.BorrowRequest{}, errs.ErrInvalidDuration
	}
	book, err := s.repo.GetBook(ctx, req.BookUid)
	if err != nil {
		return model.BorrowRequest{}, errs.Storage(err)
	}
	res, err := s.repo.CreateRequest(ctx, book.ID, req)
	if err != nil {
		return model.BorrowRequest{}, errs.Storage(err)
	}
	return res, nil
}

func (s *Service) CancelRequest(ctx context.Context, requestUid, username string) (model.BorrowRequest, error) {
	res, err := s.repo.CancelRequest(ctx, requestUid, username)
	if err != nil {
		return model.BorrowRequest{}, errs.Storage(err)
	}
	return res, nil
}

// ProcessRequest applies an admin decision to a pending request. A failed
// approval (no copies) leaves the request pending so the admin may retry.
func (s *Service) ProcessRequest(ctx context.Context, requestUid string, req model.ProcessRequest) (model.ProcessResult, error) {
	switch req.Action {
	case model.ActionReject:
		if req.Reason == "" {
			return model.ProcessResult{}, errs.ErrMissingReason
		}
		updated, err := s.repo.RejectRequest(ctx, requestUid, req.Reason)
		if err != nil {
			return model.ProcessResult{}, errs.Storage(err)
		}
		return model.ProcessResult{Request: updated}, nil

	case model.ActionApprove:
		res, err := s.repo.ApproveRequest(ctx, requestUid, func(totalCopies, activeCount int) error {
			if !Availability("", totalCopies, activeCount).IsAvailable {
				return errs.ErrNoCopiesAvailable
			}
			return nil
		})
		if err != nil {
			return model.ProcessResult{}, errs.Storage(err)
		}
		s.cache.Invalidate(res.Request.BookUid)
		s.publish(model.BorrowingEvent{
			Type:         model.EventRequestApproved,
			BorrowingUid: res.Borrowing.BorrowingUid,
			BookUid:      res.Borrowing.BookUid,
			Username:     res.Borrowing.Username,
			DueDate:      res.Borrowing.DueDate,
		})
		return res, nil

	default:
		return model.ProcessResult{}, errs.ErrInvalidState
	}
}

func (s *Service) ReturnBorrowing(ctx context.Context, borrowingUid string, caller auth.Identity, returnNotes string) (model.BorrowingView, error) {
	bw, err := s.repo.GetBorrowing(ctx, borrowingUid)
	if err != nil {
		return model.BorrowingView{}, errs.Storage(err)
	}
	if bw.Username != caller.Username && !caller.IsAdmin() {
		return model.BorrowingView{}, errs.ErrNotOwner
	}

	res, err := s.repo.ReturnBorrowing(ctx, borrowingUid, func(dueDate time.Time) model.LateFee {
		return ComputeLateFee(dueDate, time.Now().UTC(), s.policy.FeeRateCentsPerDay)
	}, returnNotes)
	if err != nil {
		return model.BorrowingView{}, errs.Storage(err)
	}

	s.cache.Invalidate(res.BookUid)
	view := s.toView(res, time.Now().UTC())
	s.publish(model.BorrowingEvent{
		Type:         model.EventBorrowingReturn,
		BorrowingUid: res.BorrowingUid,
		BookUid:      res.BookUid,
		Username:     res.Username,
		DueDate:      res.DueDate,
		LateFee:      view.LateFee,
	})
	return view, nil
}

// CheckAvailability serves the non-authoritative read view; the approval
// path never consults this cache.
func (s *Service) CheckAvailability(ctx context.Context, bookUid string) (model.Availability, error) {
	if v, ok := s.cache.Get(bookUid); ok {
		if av, ok := v.(model.Availability); ok {
			return av, nil
		}
	}
	book, err := s.repo.GetBook(ctx, bookUid)
	if err != nil {
		return model.Availability{}, errs.Storage(err)
	}
	active, err := s.repo.ActiveCount(ctx, bookUid)
	if err != nil {
		return model.Availability{}, errs.Storage(err)
	}
	av := Availability(book.BookUid, book.TotalCopies, active)
	s.cache.Set(bookUid, av)
	return av, nil
}

// InvalidateBook drops the cached availability for one book; used by the
// catalog event consumer.
func (s *Service) InvalidateBook(_ context.Context, bookUid string) error {
	if bookUid == "" {
		s.cache.Clear()
		return nil
	}
	s.cache.Invalidate(bookUid)
	return nil
}

func (s *Service) ListRequests(ctx context.Context, username string) ([]model.BorrowRequest, error) {
	items, err := s.repo.ListRequests(ctx, username)
	if err != nil {
		return nil, errs.Storage(err)
	}
	return items, nil
}

func (s *Service) ListPendingRequests(ctx context.Context) ([]model.BorrowRequest, error) {
	items, err := s.repo.ListPendingRequests(ctx)
	if err != nil {
		return nil, errs.Storage(err)
	}
	return items, nil
}

// ListBorrowings returns the caller's unreturned loans; history selects the
// returned ones instead.
func (s *Service) ListBorrowings(ctx context.Context, username string, history bool) ([]model.BorrowingView, error) {
	items, err := s.repo.ListBorrowings(ctx, username, history)
	if err != nil {
		return nil, errs.Storage(err)
	}
	return s.toViews(items), nil
}

func (s *Service) ListOverdue(ctx context.Context) ([]model.BorrowingView, error) {
	items, err := s.repo.ListOverdue(ctx, time.Now().UTC())
	if err != nil {
		return nil, errs.Storage(err)
	}
	return s.toViews(items), nil
}

func (s *Service) toViews(items []model.Borrowing) []model.BorrowingView {
	now := time.Now().UTC()
	views := make([]model.BorrowingView, 0, len(items))
	for _, bw := range items {
		views = append(views, s.toView(bw, now))
	}
	return views
}

// toView resolves the derived status and, for unreturned loans, prices the
// fee at now so an admin always sees the current amount.
func (s *Service) toView(bw model.Borrowing, now time.Time) model.BorrowingView {
	view := model.BorrowingView{
		Borrowing: bw,
		Status:    bw.StatusAt(now),
	}
	switch view.Status {
	case model.BorrowingStatusReturned:
		fee := ComputeLateFee(bw.DueDate, *bw.ReturnedAt, s.policy.FeeRateCentsPerDay)
		view.DaysOverdue = fee.DaysOverdue
		view.LateFee = model.FormatCents(bw.LateFeeCents)
	case model.BorrowingStatusOverdue:
		fee := ComputeLateFee(bw.DueDate, now, s.policy.FeeRateCentsPerDay)
		view.DaysOverdue = fee.DaysOverdue
		view.LateFee = model.FormatCents(fee.FeeCents)
	default:
		view.LateFee = model.FormatCents(0)
	}
	return view
}

func (s *Service) publish(ev model.BorrowingEvent) {
	if s.enq == nil {
		return
	}
	if err := s.enq.Enqueue(kafka.BorrowingTopic, ev); err != nil {
		s.log.Error("enqueue", zap.String("type", string(ev.Type)), zap.Error(err))
	}
}
