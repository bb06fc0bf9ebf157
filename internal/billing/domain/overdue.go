package domain

import "time"

const DisplayStatusOverdue = "overdue"

// IsOverdue reports whether an unpaid bill's due date is before today.
// A bill due today is not overdue. Dates compare by calendar day in
// today's location.
func IsOverdue(bill Bill, today time.Time) bool {
	if bill.Status != BillStatusUnpaid {
		return false
	}
	return startOfDay(bill.DueDate.In(today.Location())).Before(startOfDay(today))
}

// DisplayStatus is the stored status, or "overdue" for unpaid bills past due.
func DisplayStatus(bill Bill, today time.Time) string {
	if IsOverdue(bill, today) {
		return DisplayStatusOverdue
	}
	return string(bill.Status)
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
