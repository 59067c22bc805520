package handler

import (
	"context"

	"github.com/Astemirdum/borrow-service/borrowing/internal/model"
	"github.com/Astemirdum/borrow-service/borrowing/internal/service"
	"github.com/Astemirdum/borrow-service/pkg/auth"
)

//go:generate go run github.com/golang/mock/mockgen -source=service.go -destination=mocks/mock.go -package=service_mocks

type BorrowingService interface {
	CreateRequest(ctx context.Context, req model.CreateBorrowRequest) (model.BorrowRequest, error)
	CancelRequest(ctx context.Context, requestUid, username string) (model.BorrowRequest, error)
	ProcessRequest(ctx context.Context, requestUid string, req model.ProcessRequest) (model.ProcessResult, error)
	ReturnBorrowing(ctx context.Context, borrowingUid string, caller auth.Identity, returnNotes string) (model.BorrowingView, error)
	CheckAvailability(ctx context.Context, bookUid string) (model.Availability, error)
	InvalidateBook(ctx context.Context, bookUid string) error

	ListRequests(ctx context.Context, username string) ([]model.BorrowRequest, error)
	ListPendingRequests(ctx context.Context) ([]model.BorrowRequest, error)
	ListBorrowings(ctx context.Context, username string, history bool) ([]model.BorrowingView, error)
	ListOverdue(ctx context.Context) ([]model.BorrowingView, error)
}

var _ BorrowingService = (*service.Service)(nil)
