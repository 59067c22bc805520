package model

import (
	"fmt"
	"time"
)

type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "PENDING"
	RequestStatusApproved  RequestStatus = "APPROVED"
	RequestStatusRejected  RequestStatus = "REJECTED"
	RequestStatusCancelled RequestStatus = "CANCELLED"
)

// Terminal reports whether no further transition is valid.
func (s RequestStatus) Terminal() bool {
	return s != RequestStatusPending
}

type BorrowingStatus string

const (
	BorrowingStatusActive   BorrowingStatus = "ACTIVE"
	BorrowingStatusOverdue  BorrowingStatus = "OVERDUE"
	BorrowingStatusReturned BorrowingStatus = "RETURNED"
)

type ProcessAction string

const (
	ActionApprove ProcessAction = "APPROVE"
	ActionReject  ProcessAction = "REJECT"
)

type Book struct {
	ID          int    `json:"-" db:"id"`
	BookUid     string `json:"bookUid" db:"book_uid"`
	Name        string `json:"name" db:"name"`
	Author      string `json:"author" db:"author"`
	TotalCopies int    `json:"totalCopies" db:"total_copies"`
}

type BorrowRequest struct {
	ID              int           `json:"-" db:"id"`
	RequestUid      string        `json:"requestUid" db:"request_uid"`
	BookUid         string        `json:"bookUid" db:"book_uid"`
	Username        string        `json:"username" db:"username"`
	Status          RequestStatus `json:"status" db:"status"`
	RequestedDays   int           `json:"requestedDays" db:"requested_days"`
	RequestedAt     time.Time     `json:"requestedAt" db:"requested_at"`
	ProcessedAt     *time.Time    `json:"processedAt,omitempty" db:"processed_at"`
	RejectionReason *string       `json:"rejectionReason,omitempty" db:"rejection_reason"`
}

type Borrowing struct {
	ID           int        `json:"-" db:"id"`
	BorrowingUid string     `json:"borrowingUid" db:"borrowing_uid"`
	BookUid      string     `json:"bookUid" db:"book_uid"`
	Username     string     `json:"username" db:"username"`
	BorrowedAt   time.Time  `json:"borrowedAt" db:"borrowed_at"`
	DueDate      time.Time  `json:"dueDate" db:"due_date"`
	ReturnedAt   *time.Time `json:"returnedAt,omitempty" db:"returned_at"`
	LateFeeCents int64      `json:"-" db:"late_fee_cents"`
	BorrowNotes  *string    `json:"borrowNotes,omitempty" db:"borrow_notes"`
	ReturnNotes  *string    `json:"returnNotes,omitempty" db:"return_notes"`
}

// StatusAt derives the display status from stored timestamps.
// OVERDUE is never persisted.
func (b Borrowing) StatusAt(now time.Time) BorrowingStatus {
	switch {
	case b.ReturnedAt != nil:
		return BorrowingStatusReturned
	case !now.Before(b.DueDate):
		return BorrowingStatusOverdue
	default:
		return BorrowingStatusActive
	}
}

// BorrowingView is a Borrowing with its derived fields resolved at read time.
type BorrowingView struct {
	Borrowing   `json:",inline"`
	Status      BorrowingStatus `json:"status"`
	DaysOverdue int             `json:"daysOverdue"`
	LateFee     string          `json:"lateFee"`
}

type Availability struct {
	BookUid         string `json:"bookUid"`
	TotalCopies     int    `json:"totalCopies"`
	ActiveCount     int    `json:"activeCount"`
	AvailableCopies int    `json:"availableCopies"`
	IsAvailable     bool   `json:"isAvailable"`
}

type CreateBorrowRequest struct {
	BookUid       string `json:"bookUid" validate:"required"`
	RequestedDays int    `json:"requestedDays" validate:"required,gt=0"`
	BorrowNotes   string `json:"borrowNotes"`
	Username      string `json:"-" validate:"required"`
}

type ProcessRequest struct {
	Action ProcessAction `json:"action" validate:"required,oneof=APPROVE REJECT"`
	Reason string        `json:"reason"`
}

type ReturnRequest struct {
	ReturnNotes string `json:"returnNotes"`
}

// ProcessResult carries the updated request and, on approval, the new loan.
type ProcessResult struct {
	Request   BorrowRequest `json:"request"`
	Borrowing *Borrowing    `json:"borrowing,omitempty"`
}

type LateFee struct {
	DaysOverdue int
	FeeCents    int64
}

// FormatCents renders a cent amount with two decimals, e.g. 150 -> "1.50".
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

type EventType string

const (
	EventRequestApproved  EventType = "request.approved"
	EventBorrowingReturn  EventType = "borrowing.returned"
	EventBorrowingOverdue EventType = "borrowing.overdue"
)

// BorrowingEvent is published to the notification topic.
type BorrowingEvent struct {
	Type         EventType `json:"type"`
	BorrowingUid string    `json:"borrowingUid"`
	BookUid      string    `json:"bookUid"`
	Username     string    `json:"username"`
	DueDate      time.Time `json:"dueDate"`
	LateFee      string    `json:"lateFee,omitempty"`
}

// CatalogEvent arrives from the catalog service when a book changes.
type CatalogEvent struct {
	Type    string `json:"type"`
	BookUid string `json:"bookUid"`
}
