package pdf

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleInvoice() InvoiceData {
	return InvoiceData{
		PropertyName: "Kost Melati",
		BillNumber:   "INV-20240301-0001",
		IssueDate:    "1 Mar 2024",
		DueDate:      "8 Mar 2024",
		Period:       "March 2024",
		TenantName:   "Ani",
		RoomName:     "A1",
		Items: []InvoiceItem{
			{Description: "Room rent – A1", Qty: 1, UnitPrice: "Rp 1.500.000", Amount: "Rp 1.500.000"},
		},
		Total: "Rp 1.500.000",
	}
}

func TestGenerateInvoice(t *testing.T) {
	out, err := New().GenerateInvoice(context.Background(), sampleInvoice())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestGenerateInvoiceRequiresNumber(t *testing.T) {
	data := sampleInvoice()
	data.BillNumber = ""
	_, err := New().GenerateInvoice(context.Background(), data)
	assert.ErrorIs(t, err, ErrMissingNumber)
}

func TestGenerateReceipt(t *testing.T) {
	out, err := New().GenerateReceipt(context.Background(), ReceiptData{
		InvoiceData:   sampleInvoice(),
		PaymentNumber: "PAY-20240305-0001",
		PaymentMethod: "transfer",
		AmountPaid:    "Rp 1.500.000",
		DatePaid:      "5 Mar 2024",
		ConfirmedBy:   "admin-1",
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}
