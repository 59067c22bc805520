package service

import (
	"time"

	"github.com/Astemirdum/borrow-service/borrowing/internal/model"
)

const hoursPerDay = 24

// ComputeLateFee charges rateCentsPerDay for every started day past dueDate.
// Non-decreasing in asOf; zero at or before the due date.
func ComputeLateFee(dueDate, asOf time.Time, rateCentsPerDay int64) model.LateFee {
	if !asOf.After(dueDate) {
		return model.LateFee{}
	}
	late := asOf.Sub(dueDate)
	days := int(late / (hoursPerDay * time.Hour))
	if late%(hoursPerDay*time.Hour) != 0 {
		days++
	}
	return model.LateFee{
		DaysOverdue: days,
		FeeCents:    int64(days) * rateCentsPerDay,
	}
}
