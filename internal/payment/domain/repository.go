package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Decision is the terminal state applied to a pending payment.
type Decision struct {
	Status  PaymentStatus
	At      time.Time
	ActorID *string
	Notes   *string
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payment, error)
	ListByBill(ctx context.Context, db *gorm.DB, billID snowflake.ID) ([]*Payment, error)
	// DecidePending applies the decision only while the payment is pending
	// and reports whether a row changed.
	DecidePending(ctx context.Context, db *gorm.DB, id snowflake.ID, decision Decision) (bool, error)
}
