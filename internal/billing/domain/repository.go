package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kost/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListBillFilter struct {
	Status    BillStatus
	TenantID  snowflake.ID
	PeriodKey string
	// OverdueAsOf selects unpaid bills due before the given day.
	OverdueAsOf *time.Time
}

type Repository interface {
	ExistsForPeriod(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, periodKey string) (bool, error)
	// InsertBill writes the bill and its items.
	InsertBill(ctx context.Context, db *gorm.DB, bill *Bill) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Bill, error)
	FindByNumber(ctx context.Context, db *gorm.DB, number string) (*Bill, error)
	// FindDetailedByNumber loads tenant, room, property, items and payments.
	FindDetailedByNumber(ctx context.Context, db *gorm.DB, number string) (*Bill, error)
	List(ctx context.Context, db *gorm.DB, filter ListBillFilter, page pagination.Pagination) ([]*Bill, error)
	// MarkPaid moves an unpaid bill to paid and reports whether a row changed.
	MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error)
	GetSetting(ctx context.Context, db *gorm.DB) (*BillingSetting, error)
	SaveSetting(ctx context.Context, db *gorm.DB, setting *BillingSetting) error
}
