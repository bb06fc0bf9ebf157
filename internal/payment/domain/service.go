package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type ReportPaymentRequest struct {
	BillNumber    string    `json:"bill_number" validate:"required,max=32"`
	Amount        int64     `json:"amount" validate:"gt=0"`
	PaymentDate   time.Time `json:"payment_date"`
	PaymentMethod string    `json:"payment_method" validate:"max=50"`
	ProofImage    string    `json:"proof_image" validate:"omitempty,max=255"`
	Notes         string    `json:"notes" validate:"max=1000"`
}

type ConfirmRequest struct {
	PaymentID string
	ActorID   string
	Now       time.Time
}

type RejectRequest struct {
	PaymentID string
	Reason    string
	ActorID   string
	Now       time.Time
}

// BillState is the parent bill as it stands after a decision commits.
type BillState struct {
	ID         snowflake.ID `json:"id"`
	BillNumber string       `json:"bill_number"`
	Status     string       `json:"status"`
	Total      int64        `json:"total"`
	DueDate    time.Time    `json:"due_date"`
}

// DecisionResult is returned by Confirm and Reject.
type DecisionResult struct {
	Payment Payment   `json:"payment"`
	Bill    BillState `json:"bill"`
}

type Service interface {
	ReportPayment(context.Context, ReportPaymentRequest) (Payment, error)
	Confirm(context.Context, ConfirmRequest) (DecisionResult, error)
	Reject(context.Context, RejectRequest) (DecisionResult, error)
	GetByID(context.Context, string) (Payment, error)
	ListByBill(context.Context, string) ([]Payment, error)
	// RenderReceipt returns the PDF receipt of a confirmed payment.
	RenderReceipt(context.Context, string) ([]byte, error)
}

var (
	ErrInvalidID          = errors.New("invalid_id")
	ErrInvalidPaymentDate = errors.New("invalid_payment_date")
	ErrReasonRequired     = errors.New("invalid_reason")
	// ErrNotFound covers unknown payments and payments that are no longer pending.
	ErrNotFound        = errors.New("not_found")
	ErrBillNotFound    = errors.New("bill_not_found")
	ErrBillNotPayable  = errors.New("bill_not_payable")
	ErrReceiptNotReady = errors.New("receipt_not_ready")
)
