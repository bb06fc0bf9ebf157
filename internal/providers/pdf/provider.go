package pdf

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("providers.pdf",
	fx.Provide(New),
)

type Provider interface {
	GenerateInvoice(ctx context.Context, data InvoiceData) ([]byte, error)
	GenerateReceipt(ctx context.Context, data ReceiptData) ([]byte, error)
}

// InvoiceData is the pre-formatted content of a bill document.
type InvoiceData struct {
	PropertyName    string
	PropertyAddress string
	BillNumber      string
	IssueDate       string
	DueDate         string
	Period          string
	Status          string

	TenantName  string
	TenantEmail string
	TenantPhone string
	RoomName    string

	Items []InvoiceItem

	Total string
	Notes string
}

type InvoiceItem struct {
	Description string
	Qty         int
	UnitPrice   string
	Amount      string
}

// ReceiptData is the content of a payment receipt.
type ReceiptData struct {
	InvoiceData
	PaymentNumber string
	PaymentMethod string
	AmountPaid    string
	DatePaid      string
	ConfirmedBy   string
}

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}
