package service

import (
	"github.com/Astemirdum/borrow-service/borrowing/internal/model"
)

// Availability computes the copy ledger for one book. Overdue copies are
// still out, so activeCount covers every unreturned borrowing.
func Availability(bookUid string, totalCopies, activeCount int) model.Availability {
	available := totalCopies - activeCount
	if available < 0 {
		available = 0
	}
	return model.Availability{
		BookUid:         bookUid,
		TotalCopies:     totalCopies,
		ActiveCount:     activeCount,
		AvailableCopies: available,
		IsAvailable:     available > 0,
	}
}
