package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Astemirdum/borrow-service/borrowing/internal/errs"
	"github.com/Astemirdum/borrow-service/borrowing/internal/model"
	"github.com/Astemirdum/borrow-service/borrowing/internal/service"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeStore serializes approvals with one mutex the way the repository
// serializes them with the book row lock, and records every intermediate
// active count so the copy invariant can be checked after each step.
type fakeStore struct {
	mu          sync.Mutex
	book        model.Book
	requests    map[string]*model.BorrowRequest
	active      int
	activePeaks []int
}

func newFakeStore(totalCopies int, pendingRequests int) *fakeStore {
	f := &fakeStore{
		book:     model.Book{ID: 1, BookUid: "b1", Name: "SICP", TotalCopies: totalCopies},
		requests: make(map[string]*model.BorrowRequest),
	}
	for i := 0; i < pendingRequests; i++ {
		uid := fmt.Sprintf("r%d", i)
		f.requests[uid] = &model.BorrowRequest{
			RequestUid: uid, BookUid: "b1",
			Username: fmt.Sprintf("user%d", i), Status: model.RequestStatusPending, RequestedDays: 14,
		}
	}
	return f
}

func (f *fakeStore) ApproveRequest(_ context.Context, requestUid string, decide func(totalCopies, activeCount int) error) (model.ProcessResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[requestUid]
	if !ok {
		return model.ProcessResult{}, errs.ErrNotFound
	}
	if req.Status.Terminal() {
		return model.ProcessResult{}, errs.ErrInvalidState
	}
	if err := decide(f.book.TotalCopies, f.active); err != nil {
		return model.ProcessResult{}, err
	}
	f.active++
	f.activePeaks = append(f.activePeaks, f.active)
	req.Status = model.RequestStatusApproved
	now := time.Now().UTC()
	return model.ProcessResult{
		Request: *req,
		Borrowing: &model.Borrowing{
			BorrowingUid: "bw-" + requestUid, BookUid: "b1", Username: req.Username,
			BorrowedAt: now, DueDate: now.AddDate(0, 0, req.RequestedDays),
		},
	}, nil
}

func (f *fakeStore) GetBook(_ context.Context, bookUid string) (model.Book, error) {
	if bookUid != f.book.BookUid {
		return model.Book{}, errs.ErrBookNotFound
	}
	return f.book, nil
}

func (f *fakeStore) ActiveCount(_ context.Context, _ string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active, nil
}

func (f *fakeStore) CreateRequest(_ context.Context, _ int, req model.CreateBorrowRequest) (model.BorrowRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if r.Username == req.Username && r.BookUid == req.BookUid && r.Status == model.RequestStatusPending {
			return model.BorrowRequest{}, errs.ErrDuplicateRequest
		}
	}
	uid := fmt.Sprintf("r%d", len(f.requests))
	r := &model.BorrowRequest{RequestUid: uid, BookUid: req.BookUid, Username: req.Username,
		Status: model.RequestStatusPending, RequestedDays: req.RequestedDays, RequestedAt: time.Now().UTC()}
	f.requests[uid] = r
	return *r, nil
}

func (f *fakeStore) GetRequest(_ context.Context, requestUid string) (model.BorrowRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.requests[requestUid]; ok {
		return *r, nil
	}
	return model.BorrowRequest{}, errs.ErrNotFound
}

func (f *fakeStore) CancelRequest(_ context.Context, _, _ string) (model.BorrowRequest, error) {
	return model.BorrowRequest{}, errs.ErrNotFound
}

func (f *fakeStore) RejectRequest(_ context.Context, _, _ string) (model.BorrowRequest, error) {
	return model.BorrowRequest{}, errs.ErrNotFound
}

func (f *fakeStore) GetBorrowing(_ context.Context, _ string) (model.Borrowing, error) {
	return model.Borrowing{}, errs.ErrNotFound
}

func (f *fakeStore) ReturnBorrowing(_ context.Context, _ string, _ func(time.Time) model.LateFee, _ string) (model.Borrowing, error) {
	return model.Borrowing{}, errs.ErrNotFound
}

func (f *fakeStore) ListRequests(_ context.Context, _ string) ([]model.BorrowRequest, error) {
	return nil, nil
}

func (f *fakeStore) ListPendingRequests(_ context.Context) ([]model.BorrowRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.BorrowRequest
	for _, r := range f.requests {
		if r.Status == model.RequestStatusPending {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeStore) ListBorrowings(_ context.Context, _ string, _ bool) ([]model.Borrowing, error) {
	return nil, nil
}

func (f *fakeStore) ListOverdue(_ context.Context, _ time.Time) ([]model.Borrowing, error) {
	return nil, nil
}

func TestService_ConcurrentApprovals_InvariantHolds(t *testing.T) {
	t.Parallel()
	const (
		totalCopies = 2
		contenders  = 16
	)
	store := newFakeStore(totalCopies, contenders)
	svc := service.NewService(store, nil, service.Policy{MinDays: 1, MaxDays: 30, FeeRateCentsPerDay: 50, CacheTTL: time.Minute},
		zap.NewExample().Named("test"))

	var wg sync.WaitGroup
	results := make([]error, contenders)
	for i := 0; i < contenders; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.ProcessRequest(context.Background(),
				fmt.Sprintf("r%d", i), model.ProcessRequest{Action: model.ActionApprove})
			results[i] = err
		}()
	}
	wg.Wait()

	var approved, noCopies int
	for _, err := range results {
		switch {
		case err == nil:
			approved++
		case errors.Is(err, errs.ErrNoCopiesAvailable):
			noCopies++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, totalCopies, approved, "exactly one approval per copy")
	require.Equal(t, contenders-totalCopies, noCopies)

	// invariant held after every committed approval
	for _, peak := range store.activePeaks {
		require.LessOrEqual(t, peak, totalCopies)
	}

	// losers stay pending for a later retry
	pending, err := store.ListPendingRequests(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, contenders-totalCopies)
}

func TestService_LastCopyRace_SecondApprovalLoses(t *testing.T) {
	t.Parallel()
	store := newFakeStore(1, 2)
	svc := service.NewService(store, nil, service.Policy{MinDays: 1, MaxDays: 30, FeeRateCentsPerDay: 50, CacheTTL: time.Minute},
		zap.NewExample().Named("test"))

	first, err := svc.ProcessRequest(context.Background(), "r0", model.ProcessRequest{Action: model.ActionApprove})
	require.NoError(t, err)
	require.NotNil(t, first.Borrowing)

	_, err = svc.ProcessRequest(context.Background(), "r1", model.ProcessRequest{Action: model.ActionApprove})
	require.ErrorIs(t, err, errs.ErrNoCopiesAvailable)

	second, err := store.GetRequest(context.Background(), "r1")
	require.NoError(t, err)
	require.Equal(t, model.RequestStatusPending, second.Status)
}
