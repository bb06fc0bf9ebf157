package domain

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/smallbiznis/kost/internal/payment/domain"
	tenancydomain "github.com/smallbiznis/kost/internal/tenancy/domain"
	"gorm.io/datatypes"
)

type BillStatus string

// Overdue is not a stored status; see IsOverdue.
const (
	BillStatusUnpaid    BillStatus = "unpaid"
	BillStatusPaid      BillStatus = "paid"
	BillStatusCancelled BillStatus = "cancelled"
)

func (s BillStatus) Valid() bool {
	switch s {
	case BillStatusUnpaid, BillStatusPaid, BillStatusCancelled:
		return true
	default:
		return false
	}
}

// Bill is one tenant's charge for one calendar month. The pair
// (tenant_id, period_key) is unique.
type Bill struct {
	ID          snowflake.ID            `gorm:"primaryKey" json:"id"`
	TenantID    snowflake.ID            `gorm:"not null;uniqueIndex:ux_bills_tenant_period,priority:1" json:"tenant_id"`
	Tenant      *tenancydomain.Tenant   `gorm:"foreignKey:TenantID;constraint:OnDelete:CASCADE" json:"tenant,omitempty"`
	BillNumber  string                  `gorm:"size:32;not null;uniqueIndex" json:"bill_number"`
	BillDate    time.Time               `gorm:"not null" json:"bill_date"`
	DueDate     time.Time               `gorm:"not null;index" json:"due_date"`
	PeriodStart time.Time               `gorm:"not null" json:"period_start"`
	PeriodEnd   time.Time               `gorm:"not null" json:"period_end"`
	PeriodKey   string                  `gorm:"size:7;not null;uniqueIndex:ux_bills_tenant_period,priority:2" json:"period_key"`
	Subtotal    int64                   `gorm:"not null" json:"subtotal"`
	Total       int64                   `gorm:"not null" json:"total"`
	Status      BillStatus              `gorm:"type:varchar(20);not null;default:unpaid;index" json:"status"`
	Notes       string                  `json:"notes,omitempty"`
	Metadata    datatypes.JSONMap       `json:"metadata,omitempty"`
	Items       []BillItem              `gorm:"foreignKey:BillID;constraint:OnDelete:CASCADE" json:"items,omitempty"`
	Payments    []paymentdomain.Payment `gorm:"foreignKey:BillID;constraint:OnDelete:CASCADE" json:"payments,omitempty"`
	CreatedAt   time.Time               `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time               `gorm:"not null" json:"updated_at"`
}

func (Bill) TableName() string { return "bills" }

type BillItem struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	BillID      snowflake.ID `gorm:"not null;index" json:"bill_id"`
	Description string       `gorm:"not null" json:"description"`
	Amount      int64        `gorm:"not null" json:"amount"`
	Quantity    int64        `gorm:"not null;default:1" json:"quantity"`
	Total       int64        `gorm:"not null" json:"total"`
	CreatedAt   time.Time    `gorm:"not null" json:"created_at"`
}

func (BillItem) TableName() string { return "bill_items" }

// NewBillItem derives the line total from amount and quantity.
func NewBillItem(id snowflake.ID, description string, amount, quantity int64, at time.Time) BillItem {
	if quantity <= 0 {
		quantity = 1
	}
	return BillItem{
		ID:          id,
		Description: description,
		Amount:      amount,
		Quantity:    quantity,
		Total:       amount * quantity,
		CreatedAt:   at,
	}
}

// ItemsTotal sums the line totals.
func (b Bill) ItemsTotal() int64 {
	var sum int64
	for _, item := range b.Items {
		sum += item.Total
	}
	return sum
}

// RoomRentDescription is the line item text for monthly room rent.
func RoomRentDescription(roomName string) string {
	return fmt.Sprintf("Room rent – %s", roomName)
}

// Period is a calendar month in the location of the instant it was built from.
type Period struct {
	Start time.Time
	End   time.Time
	Key   string
}

// PeriodFor returns the month containing now. End is the first instant of
// the month's last day.
func PeriodFor(now time.Time) Period {
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return Period{
		Start: start,
		End:   start.AddDate(0, 1, -1),
		Key:   start.Format("2006-01"),
	}
}
