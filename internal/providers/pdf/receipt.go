package pdf

import (
	"context"
	"fmt"

	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

func (p *PDFProvider) GenerateReceipt(ctx context.Context, data ReceiptData) ([]byte, error) {
	if data.PaymentNumber == "" || data.BillNumber == "" {
		return nil, ErrMissingNumber
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m := newDocument()
	addHeader(m, "Receipt", data.InvoiceData)
	addItems(m, data.InvoiceData)

	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Total", props.Text{Size: 9}),
		text.NewCol(2, data.Total, props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Amount paid", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, data.AmountPaid, props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	m.AddRow(24,
		col.New(12).Add(
			text.New("Payment: "+data.PaymentNumber, props.Text{Top: 4, Size: 9}),
			text.New("Method: "+data.PaymentMethod, props.Text{Top: 8, Size: 9}),
			text.New("Paid on: "+data.DatePaid, props.Text{Top: 12, Size: 9}),
			text.New("Confirmed by: "+data.ConfirmedBy, props.Text{Top: 16, Size: 9}),
		),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate receipt pdf: %w", err)
	}
	return doc.GetBytes(), nil
}
