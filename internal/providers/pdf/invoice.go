package pdf

import (
	"context"
	"errors"
	"fmt"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

var ErrMissingNumber = errors.New("missing_document_number")

func (p *PDFProvider) GenerateInvoice(ctx context.Context, data InvoiceData) ([]byte, error) {
	if data.BillNumber == "" {
		return nil, ErrMissingNumber
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m := newDocument()
	addHeader(m, "Invoice", data)
	addItems(m, data)

	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Total", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, data.Total, props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	if data.Notes != "" {
		m.AddRow(15, text.NewCol(12, data.Notes, props.Text{Size: 8, Top: 5}))
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate invoice pdf: %w", err)
	}
	return doc.GetBytes(), nil
}

func newDocument() core.Maroto {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()
	return maroto.New(cfg)
}

func addHeader(m core.Maroto, title string, data InvoiceData) {
	m.AddRow(12,
		text.NewCol(8, data.PropertyName, props.Text{Size: 14, Style: fontstyle.Bold}),
		text.NewCol(4, title, props.Text{Size: 20, Style: fontstyle.Bold, Align: align.Right}),
	)
	m.AddRow(8, text.NewCol(12, data.PropertyAddress, props.Text{Size: 9}))

	m.AddRow(22,
		col.New(6).Add(
			text.New("Number: "+data.BillNumber, props.Text{Top: 0, Size: 9}),
			text.New("Issued: "+data.IssueDate, props.Text{Top: 4, Size: 9}),
			text.New("Due: "+data.DueDate, props.Text{Top: 8, Size: 9}),
			text.New("Period: "+data.Period, props.Text{Top: 12, Size: 9}),
		),
		col.New(6).Add(
			text.New("Bill to", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
			text.New(data.TenantName, props.Text{Top: 4, Size: 9, Align: align.Right}),
			text.New(data.RoomName, props.Text{Top: 8, Size: 9, Align: align.Right}),
			text.New(data.TenantEmail, props.Text{Top: 12, Size: 9, Align: align.Right}),
		),
	)
	if data.Status != "" {
		m.AddRow(10, text.NewCol(12, "Status: "+data.Status, props.Text{Style: fontstyle.Bold, Size: 10}))
	}
}

func addItems(m core.Maroto, data InvoiceData) {
	m.AddRow(10,
		text.NewCol(6, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Qty", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Unit price", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	m.AddRow(2, line.NewCol(12))

	for _, item := range data.Items {
		m.AddRow(8,
			text.NewCol(6, item.Description, props.Text{Size: 9}),
			text.NewCol(2, fmt.Sprintf("%d", item.Qty), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, item.UnitPrice, props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, item.Amount, props.Text{Size: 9, Align: align.Right}),
		)
	}
	m.AddRow(2, line.NewCol(12))
}
