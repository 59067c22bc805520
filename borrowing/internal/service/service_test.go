package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/Astemirdum/borrow-service/borrowing/internal/errs"
	"github.com/Astemirdum/borrow-service/borrowing/internal/model"
	repo_mocks "github.com/Astemirdum/borrow-service/borrowing/internal/repository/mocks"
	"github.com/Astemirdum/borrow-service/borrowing/internal/service"
	"github.com/Astemirdum/borrow-service/pkg/auth"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newService(t *testing.T) (*service.Service, *repo_mocks.MockRepository) {
	t.Helper()
	c := gomock.NewController(t)
	t.Cleanup(c.Finish)
	repo := repo_mocks.NewMockRepository(c)
	svc := service.NewService(repo, nil, service.Policy{
		MinDays:            1,
		MaxDays:            30,
		FeeRateCentsPerDay: 50,
		CacheTTL:           time.Minute,
	}, zap.NewExample().Named("test"))
	return svc, repo
}

func TestService_CreateRequest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("duration out of range", func(t *testing.T) {
		t.Parallel()
		svc, _ := newService(t)
		_, err := svc.CreateRequest(ctx, model.CreateBorrowRequest{BookUid: "b1", Username: "ivan", RequestedDays: 0})
		require.ErrorIs(t, err, errs.ErrInvalidDuration)
		_, err = svc.CreateRequest(ctx, model.CreateBorrowRequest{BookUid: "b1", Username: "ivan", RequestedDays: 31})
		require.ErrorIs(t, err, errs.ErrInvalidDuration)
	})

	t.Run("book not found", func(t *testing.T) {
		t.Parallel()
		svc, repo := newService(t)
		repo.EXPECT().GetBook(ctx, "missing").Return(model.Book{}, errs.ErrBookNotFound)
		_, err := svc.CreateRequest(ctx, model.CreateBorrowRequest{BookUid: "missing", Username: "ivan", RequestedDays: 14})
		require.ErrorIs(t, err, errs.ErrBookNotFound)
	})

	t.Run("duplicate pending", func(t *testing.T) {
		t.Parallel()
		svc, repo := newService(t)
		req := model.CreateBorrowRequest{BookUid: "b1", Username: "ivan", RequestedDays: 14}
		repo.EXPECT().GetBook(ctx, "b1").Return(model.Book{ID: 7, BookUid: "b1", TotalCopies: 1}, nil)
		repo.EXPECT().CreateRequest(ctx, 7, req).Return(model.BorrowRequest{}, errs.ErrDuplicateRequest)
		_, err := svc.CreateRequest(ctx, req)
		require.ErrorIs(t, err, errs.ErrDuplicateRequest)
	})

	t.Run("ok", func(t *testing.T) {
		t.Parallel()
		svc, repo := newService(t)
		req := model.CreateBorrowRequest{BookUid: "b1", Username: "ivan", RequestedDays: 14}
		repo.EXPECT().GetBook(ctx, "b1").Return(model.Book{ID: 7, BookUid: "b1", TotalCopies: 1}, nil)
		repo.EXPECT().CreateRequest(ctx, 7, req).
			Return(model.BorrowRequest{RequestUid: "r1", BookUid: "b1", Username: "ivan", Status: model.RequestStatusPending, RequestedDays: 14}, nil)
		res, err := svc.CreateRequest(ctx, req)
		require.NoError(t, err)
		require.Equal(t, model.RequestStatusPending, res.Status)
	})
}

func TestService_ProcessRequest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("reject without reason", func(t *testing.T) {
		t.Parallel()
		svc, _ := newService(t)
		_, err := svc.ProcessRequest(ctx, "r1", model.ProcessRequest{Action: model.ActionReject})
		require.ErrorIs(t, err, errs.ErrMissingReason)
	})

	t.Run("reject with reason", func(t *testing.T) {
		t.Parallel()
		svc, repo := newService(t)
		reason := "damaged copy"
		repo.EXPECT().RejectRequest(ctx, "r1", reason).
			Return(model.BorrowRequest{RequestUid: "r1", Status: model.RequestStatusRejected, RejectionReason: &reason}, nil)
		res, err := svc.ProcessRequest(ctx, "r1", model.ProcessRequest{Action: model.ActionReject, Reason: reason})
		require.NoError(t, err)
		require.Equal(t, model.RequestStatusRejected, res.Request.Status)
		require.Nil(t, res.Borrowing)
	})

	t.Run("approve with free copy", func(t *testing.T) {
		t.Parallel()
		svc, repo := newService(t)
		repo.EXPECT().ApproveRequest(ctx, "r1", gomock.Any()).
			DoAndReturn(func(_ context.Context, _ string, decide func(totalCopies, activeCount int) error) (model.ProcessResult, error) {
				if err := decide(2, 1); err != nil {
					return model.ProcessResult{}, err
				}
				return model.ProcessResult{
					Request:   model.BorrowRequest{RequestUid: "r1", BookUid: "b1", Status: model.RequestStatusApproved},
					Borrowing: &model.Borrowing{BorrowingUid: "bw1", BookUid: "b1", Username: "ivan"},
				}, nil
			})
		res, err := svc.ProcessRequest(ctx, "r1", model.ProcessRequest{Action: model.ActionApprove})
		require.NoError(t, err)
		require.Equal(t, model.RequestStatusApproved, res.Request.Status)
		require.NotNil(t, res.Borrowing)
	})

	t.Run("approve with no copies leaves request pending", func(t *testing.T) {
		t.Parallel()
		svc, repo := newService(t)
		repo.EXPECT().ApproveRequest(ctx, "r1", gomock.Any()).
			DoAndReturn(func(_ context.Context, _ string, decide func(totalCopies, activeCount int) error) (model.ProcessResult, error) {
				return model.ProcessResult{}, decide(1, 1)
			})
		_, err := svc.ProcessRequest(ctx, "r1", model.ProcessRequest{Action: model.ActionApprove})
		require.ErrorIs(t, err, errs.ErrNoCopiesAvailable)
	})
}

func TestService_ReturnBorrowing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("stranger is rejected", func(t *testing.T) {
		t.Parallel()
		svc, repo := newService(t)
		repo.EXPECT().GetBorrowing(ctx, "bw1").Return(model.Borrowing{BorrowingUid: "bw1", Username: "ivan"}, nil)
		_, err := svc.ReturnBorrowing(ctx, "bw1", auth.Identity{Username: "oleg", Role: auth.RoleUser}, "")
		require.ErrorIs(t, err, errs.ErrNotOwner)
	})

	t.Run("admin may return for anyone", func(t *testing.T) {
		t.Parallel()
		svc, repo := newService(t)
		now := time.Now().UTC()
		returned := model.Borrowing{
			BorrowingUid: "bw1", BookUid: "b1", Username: "ivan",
			BorrowedAt: now.AddDate(0, 0, -14), DueDate: now.AddDate(0, 0, -3),
			ReturnedAt: &now, LateFeeCents: 150,
		}
		repo.EXPECT().GetBorrowing(ctx, "bw1").Return(model.Borrowing{BorrowingUid: "bw1", Username: "ivan"}, nil)
		repo.EXPECT().ReturnBorrowing(ctx, "bw1", gomock.Any(), "worn cover").Return(returned, nil)
		view, err := svc.ReturnBorrowing(ctx, "bw1", auth.Identity{Username: "admin", Role: auth.RoleAdmin}, "worn cover")
		require.NoError(t, err)
		require.Equal(t, model.BorrowingStatusReturned, view.Status)
		require.Equal(t, "1.50", view.LateFee)
		require.Equal(t, 3, view.DaysOverdue)
	})

	t.Run("second return is rejected", func(t *testing.T) {
		t.Parallel()
		svc, repo := newService(t)
		repo.EXPECT().GetBorrowing(ctx, "bw1").Return(model.Borrowing{BorrowingUid: "bw1", Username: "ivan"}, nil)
		repo.EXPECT().ReturnBorrowing(ctx, "bw1", gomock.Any(), "").Return(model.Borrowing{}, errs.ErrInvalidState)
		_, err := svc.ReturnBorrowing(ctx, "bw1", auth.Identity{Username: "ivan", Role: auth.RoleUser}, "")
		require.ErrorIs(t, err, errs.ErrInvalidState)
	})
}

func TestService_CheckAvailability_Cached(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, repo := newService(t)

	repo.EXPECT().GetBook(ctx, "b1").Return(model.Book{ID: 7, BookUid: "b1", TotalCopies: 2}, nil).Times(1)
	repo.EXPECT().ActiveCount(ctx, "b1").Return(1, nil).Times(1)

	want := model.Availability{BookUid: "b1", TotalCopies: 2, ActiveCount: 1, AvailableCopies: 1, IsAvailable: true}

	av, err := svc.CheckAvailability(ctx, "b1")
	require.NoError(t, err)
	require.Equal(t, want, av)

	// second read is served from the cache
	av, err = svc.CheckAvailability(ctx, "b1")
	require.NoError(t, err)
	require.Equal(t, want, av)

	// invalidation forces a fresh read
	require.NoError(t, svc.InvalidateBook(ctx, "b1"))
	repo.EXPECT().GetBook(ctx, "b1").Return(model.Book{ID: 7, BookUid: "b1", TotalCopies: 2}, nil).Times(1)
	repo.EXPECT().ActiveCount(ctx, "b1").Return(2, nil).Times(1)
	av, err = svc.CheckAvailability(ctx, "b1")
	require.NoError(t, err)
	require.False(t, av.IsAvailable)
}

func TestService_StorageErrorIsTagged(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, repo := newService(t)
	repo.EXPECT().ListPendingRequests(ctx).Return(nil, context.DeadlineExceeded)
	_, err := svc.ListPendingRequests(ctx)
	require.ErrorIs(t, err, errs.ErrStorageUnavailable)
}
