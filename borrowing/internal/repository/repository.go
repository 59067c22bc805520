package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Astemirdum/borrow-service/borrowing/internal/errs"
	"github.com/Astemirdum/borrow-service/borrowing/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

//go:generate go run github.com/golang/mock/mockgen -source=repository.go -destination=mocks/mock.go -package=repo_mocks

type Repository interface {
	GetBook(ctx context.Context, bookUid string) (model.Book, error)
	ActiveCount(ctx context.Context, bookUid string) (int, error)

	CreateRequest(ctx context.Context, bookID int, req model.CreateBorrowRequest) (model.BorrowRequest, error)
	GetRequest(ctx context.Context, requestUid string) (model.BorrowRequest, error)
	CancelRequest(ctx context.Context, requestUid, username string) (model.BorrowRequest, error)
	RejectRequest(ctx context.Context, requestUid, reason string) (model.BorrowRequest, error)
	ApproveRequest(ctx context.Context, requestUid string, decide func(totalCopies, activeCount int) error) (model.ProcessResult, error)

	GetBorrowing(ctx context.Context, borrowingUid string) (model.Borrowing, error)
	ReturnBorrowing(ctx context.Context, borrowingUid string, fee func(dueDate time.Time) model.LateFee, returnNotes string) (model.Borrowing, error)

	ListRequests(ctx context.Context, username string) ([]model.BorrowRequest, error)
	ListPendingRequests(ctx context.Context) ([]model.BorrowRequest, error)
	ListBorrowings(ctx context.Context, username string, returned bool) ([]model.Borrowing, error)
	ListOverdue(ctx context.Context, asOf time.Time) ([]model.Borrowing, error)
}

type repository struct {
	db  *sqlx.DB
	log *zap.Logger
}

func NewRepository(db *sqlx.DB, log *zap.Logger) (*repository, error) {
	return &repository{
		db:  db,
		log: log.Named("repo"),
	}, nil
}

const (
	bookTableName      = `book`
	requestTableName   = `borrow_request`
	borrowingTableName = `borrowing`
)

var qb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var requestColumns = []string{
	"br.id", "br.request_uid", "b.book_uid", "br.username", "br.status",
	"br.requested_days", "br.requested_at", "br.processed_at", "br.rejection_reason",
}

var borrowingColumns = []string{
	"bw.id", "bw.borrowing_uid", "b.book_uid", "bw.username", "bw.borrowed_at",
	"bw.due_date", "bw.returned_at", "bw.late_fee_cents", "bw.borrow_notes", "bw.return_notes",
}

func (r *repository) GetBook(ctx context.Context, bookUid string) (model.Book, error) {
	query, args, err := qb.Select("id", "book_uid", "name", "author", "total_copies").
		From(bookTableName).
		Where(sq.Eq{"book_uid": bookUid}).
		Limit(1).
		ToSql()
	if err != nil {
		return model.Book{}, err
	}
	var book model.Book
	if err := r.db.GetContext(ctx, &book, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Book{}, errs.ErrBookNotFound
		}
		return model.Book{}, err
	}
	return book, nil
}

func (r *repository) ActiveCount(ctx context.Context, bookUid string) (int, error) {
	q := fmt.Sprintf(`
	select count(*) from %s bw
	join %s b on b.id = bw.book_id
	where b.book_uid = $1 and bw.returned_at is null`, borrowingTableName, bookTableName)

	var count int
	if err := r.db.QueryRowContext(ctx, q, bookUid).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repository) CreateRequest(ctx context.Context, bookID int, req model.CreateBorrowRequest) (model.BorrowRequest, error) {
	q := fmt.Sprintf(`
	insert into %s (request_uid, book_id, username, status, requested_days, requested_at, borrow_notes)
	values ($1, $2, $3, $4, $5, $6, $7)
	returning id, request_uid, username, status, requested_days, requested_at, processed_at, rejection_reason`,
		requestTableName)

	var res model.BorrowRequest
	err := r.db.GetContext(ctx, &res, q,
		uuid.New(), bookID, req.Username, model.RequestStatusPending, req.RequestedDays, time.Now().UTC(), nullable(req.BorrowNotes))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return model.BorrowRequest{}, errs.ErrDuplicateRequest
		}
		r.log.Error("CreateRequest", zap.Error(err))
		return model.BorrowRequest{}, err
	}
	res.BookUid = req.BookUid
	return res, nil
}

func (r *repository) GetRequest(ctx context.Context, requestUid string) (model.BorrowRequest, error) {
	query, args, err := qb.Select(requestColumns...).
		From(requestTableName + " br").
		Join(fmt.Sprintf("%s b on b.id = br.book_id", bookTableName)).
		Where(sq.Eq{"br.request_uid": requestUid}).
		Limit(1).
		ToSql()
	if err != nil {
		return model.BorrowRequest{}, err
	}
	var req model.BorrowRequest
	if err := r.db.GetContext(ctx, &req, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.BorrowRequest{}, errs.ErrNotFound
		}
		return model.BorrowRequest{}, err
	}
	return req, nil
}

// CancelRequest sets PENDING -> CANCELLED for the owning user.
func (r *repository) CancelRequest(ctx context.Context, requestUid, username string) (model.BorrowRequest, error) {
	var res model.BorrowRequest
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		req, err := lockRequest(ctx, tx, requestUid)
		if err != nil {
			return err
		}
		if req.Username != username {
			return errs.ErrNotOwner
		}
		if req.Status.Terminal() {
			return errs.ErrInvalidState
		}
		res, err = updateRequestStatus(ctx, tx, req.ID, model.RequestStatusCancelled, nil)
		return err
	})
	return res, err
}

// RejectRequest sets PENDING -> REJECTED with the given reason.
func (r *repository) RejectRequest(ctx context.Context, requestUid, reason string) (model.BorrowRequest, error) {
	var res model.BorrowRequest
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		req, err := lockRequest(ctx, tx, requestUid)
		if err != nil {
			return err
		}
		if req.Status.Terminal() {
			return errs.ErrInvalidState
		}
		res, err = updateRequestStatus(ctx, tx, req.ID, model.RequestStatusRejected, &reason)
		return err
	})
	return res, err
}

// ApproveRequest runs the whole approval as one unit of work: the book row is
// locked FOR UPDATE, so concurrent approvals for the same book serialize and
// the active count read under the lock cannot go stale before commit.
// The decide callback aborts the transaction with ErrNoCopiesAvailable when
// nothing is free; the request then stays PENDING.
func (r *repository) ApproveRequest(ctx context.Context, requestUid string, decide func(totalCopies, activeCount int) error) (model.ProcessResult, error) {
	var res model.ProcessResult
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		req, err := lockRequest(ctx, tx, requestUid)
		if err != nil {
			return err
		}
		if req.Status.Terminal() {
			return errs.ErrInvalidState
		}

		var book model.Book
		lockBookQ := fmt.Sprintf(`select id, book_uid, name, author, total_copies from %s where id = $1 for update`, bookTableName)
		if err := tx.GetContext(ctx, &book, lockBookQ, req.bookID); err != nil {
			return err
		}

		var activeCount int
		countQ := fmt.Sprintf(`select count(*) from %s where book_id = $1 and returned_at is null`, borrowingTableName)
		if err := tx.QueryRowContext(ctx, countQ, req.bookID).Scan(&activeCount); err != nil {
			return err
		}
		if err := decide(book.TotalCopies, activeCount); err != nil {
			return err
		}

		now := time.Now().UTC()
		insertQ := fmt.Sprintf(`
		insert into %s (borrowing_uid, book_id, username, borrowed_at, due_date, borrow_notes)
		values ($1, $2, $3, $4, $5, $6)
		returning id, borrowing_uid, username, borrowed_at, due_date, returned_at, late_fee_cents, borrow_notes, return_notes`,
			borrowingTableName)
		var bw model.Borrowing
		if err := tx.GetContext(ctx, &bw, insertQ,
			uuid.New(), req.bookID, req.Username, now,
			now.AddDate(0, 0, req.RequestedDays), nullable(req.borrowNotes)); err != nil {
			return err
		}
		bw.BookUid = book.BookUid

		updated, err := updateRequestStatus(ctx, tx, req.ID, model.RequestStatusApproved, nil)
		if err != nil {
			return err
		}
		updated.BookUid = book.BookUid
		res = model.ProcessResult{Request: updated, Borrowing: &bw}
		return nil
	})
	return res, err
}

func (r *repository) GetBorrowing(ctx context.Context, borrowingUid string) (model.Borrowing, error) {
	query, args, err := qb.Select(borrowingColumns...).
		From(borrowingTableName + " bw").
		Join(fmt.Sprintf("%s b on b.id = bw.book_id", bookTableName)).
		Where(sq.Eq{"bw.borrowing_uid": borrowingUid}).
		Limit(1).
		ToSql()
	if err != nil {
		return model.Borrowing{}, err
	}
	var bw model.Borrowing
	if err := r.db.GetContext(ctx, &bw, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Borrowing{}, errs.ErrNotFound
		}
		return model.Borrowing{}, err
	}
	return bw, nil
}

// ReturnBorrowing finalizes the loan. The guarded update (returned_at is null)
// makes the second of two concurrent returns lose with ErrInvalidState.
func (r *repository) ReturnBorrowing(ctx context.Context, borrowingUid string, fee func(dueDate time.Time) model.LateFee, returnNotes string) (model.Borrowing, error) {
	var res model.Borrowing
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		var bw model.Borrowing
		q := fmt.Sprintf(`
		select bw.id, bw.borrowing_uid, b.book_uid, bw.username, bw.borrowed_at, bw.due_date,
		       bw.returned_at, bw.late_fee_cents, bw.borrow_notes, bw.return_notes
		from %s bw
		join %s b on b.id = bw.book_id
		where bw.borrowing_uid = $1
		for update of bw`, borrowingTableName, bookTableName)
		if err := tx.GetContext(ctx, &bw, q, borrowingUid); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errs.ErrNotFound
			}
			return err
		}
		if bw.ReturnedAt != nil {
			return errs.ErrInvalidState
		}

		f := fee(bw.DueDate)
		updQ := fmt.Sprintf(`
		update %s set returned_at = $2, late_fee_cents = $3, return_notes = $4
		where id = $1 and returned_at is null
		returning id, borrowing_uid, username, borrowed_at, due_date, returned_at, late_fee_cents, borrow_notes, return_notes`,
			borrowingTableName)
		if err := tx.GetContext(ctx, &res, updQ, bw.ID, time.Now().UTC(), f.FeeCents, nullable(returnNotes)); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errs.ErrInvalidState
			}
			return err
		}
		res.BookUid = bw.BookUid
		return nil
	})
	return res, err
}

func (r *repository) ListRequests(ctx context.Context, username string) ([]model.BorrowRequest, error) {
	return r.selectRequests(ctx, sq.Eq{"br.username": username})
}

func (r *repository) ListPendingRequests(ctx context.Context) ([]model.BorrowRequest, error) {
	return r.selectRequests(ctx, sq.Eq{"br.status": model.RequestStatusPending})
}

func (r *repository) selectRequests(ctx context.Context, pred any) ([]model.BorrowRequest, error) {
	query, args, err := qb.Select(requestColumns...).
		From(requestTableName + " br").
		Join(fmt.Sprintf("%s b on b.id = br.book_id", bookTableName)).
		Where(pred).
		OrderBy("br.requested_at desc", "br.id desc").
		ToSql()
	if err != nil {
		return nil, err
	}
	var items []model.BorrowRequest
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) ListBorrowings(ctx context.Context, username string, returned bool) ([]model.Borrowing, error) {
	q := qb.Select(borrowingColumns...).
		From(borrowingTableName + " bw").
		Join(fmt.Sprintf("%s b on b.id = bw.book_id", bookTableName)).
		Where(sq.Eq{"bw.username": username}).
		OrderBy("bw.borrowed_at desc", "bw.id desc")
	if returned {
		q = q.Where("bw.returned_at is not null")
	} else {
		q = q.Where("bw.returned_at is null")
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	var items []model.Borrowing
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) ListOverdue(ctx context.Context, asOf time.Time) ([]model.Borrowing, error) {
	query, args, err := qb.Select(borrowingColumns...).
		From(borrowingTableName + " bw").
		Join(fmt.Sprintf("%s b on b.id = bw.book_id", bookTableName)).
		Where("bw.returned_at is null").
		Where(sq.LtOrEq{"bw.due_date": asOf}).
		OrderBy("bw.due_date asc").
		ToSql()
	if err != nil {
		return nil, err
	}
	var items []model.Borrowing
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.log.Error("tx rollback", zap.Error(rbErr))
		}
		return err
	}
	return tx.Commit()
}

// lockedRequest carries internal columns the model hides.
type lockedRequest struct {
	model.BorrowRequest
	bookID      int
	borrowNotes string
}

func lockRequest(ctx context.Context, tx *sqlx.Tx, requestUid string) (lockedRequest, error) {
	q := fmt.Sprintf(`
	select id, request_uid, book_id, username, status, requested_days, requested_at, processed_at, rejection_reason, coalesce(borrow_notes, '')
	from %s where request_uid = $1 for update`, requestTableName)

	var req lockedRequest
	row := tx.QueryRowxContext(ctx, q, requestUid)
	err := row.Scan(&req.ID, &req.RequestUid, &req.bookID, &req.Username, &req.Status,
		&req.RequestedDays, &req.RequestedAt, &req.ProcessedAt, &req.RejectionReason, &req.borrowNotes)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return lockedRequest{}, errs.ErrNotFound
		}
		return lockedRequest{}, err
	}
	return req, nil
}

func updateRequestStatus(ctx context.Context, tx *sqlx.Tx, id int, status model.RequestStatus, reason *string) (model.BorrowRequest, error) {
	q := fmt.Sprintf(`
	update %s br set status = $2, processed_at = $3, rejection_reason = $4
	from %s b
	where br.id = $1 and b.id = br.book_id
	returning br.id, br.request_uid, b.book_uid, br.username, br.status, br.requested_days, br.requested_at, br.processed_at, br.rejection_reason`,
		requestTableName, bookTableName)

	var res model.BorrowRequest
	if err := tx.GetContext(ctx, &res, q, id, status, time.Now().UTC(), reason); err != nil {
		return model.BorrowRequest{}, err
	}
	return res, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
