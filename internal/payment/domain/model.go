package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusConfirmed PaymentStatus = "confirmed"
	PaymentStatusRejected  PaymentStatus = "rejected"
)

// IsTerminal reports whether the payment has been decided.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusConfirmed || s == PaymentStatusRejected
}

// Payment is a tenant-reported transfer against a bill. After creation only
// status, confirmed_at, confirmed_by and notes change.
type Payment struct {
	ID            snowflake.ID  `gorm:"primaryKey" json:"id"`
	BillID        snowflake.ID  `gorm:"not null;index" json:"bill_id"`
	PaymentNumber string        `gorm:"not null;uniqueIndex" json:"payment_number"`
	Amount        int64         `gorm:"not null" json:"amount"`
	PaymentDate   time.Time     `gorm:"not null" json:"payment_date"`
	PaymentMethod string        `gorm:"size:50" json:"payment_method,omitempty"`
	ProofImage    *string       `gorm:"size:255" json:"proof_image,omitempty"`
	Status        PaymentStatus `gorm:"type:varchar(20);not null;default:pending;index" json:"status"`
	Notes         string        `json:"notes,omitempty"`
	ConfirmedAt   *time.Time    `json:"confirmed_at,omitempty"`
	ConfirmedBy   *string       `gorm:"size:64" json:"confirmed_by,omitempty"`
	CreatedAt     time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time     `gorm:"not null" json:"updated_at"`
}

func (Payment) TableName() string { return "payments" }
