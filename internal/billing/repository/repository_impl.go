package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kost/internal/billing/domain"
	"github.com/smallbiznis/kost/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) ExistsForPeriod(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, periodKey string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.Bill{}).
		Where("tenant_id = ? AND period_key = ?", tenantID, periodKey).
		Limit(1).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) InsertBill(ctx context.Context, db *gorm.DB, bill *domain.Bill) error {
	items := bill.Items
	if err := db.WithContext(ctx).
		Omit(clause.Associations).
		Create(bill).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		items[i].BillID = bill.ID
	}
	return db.WithContext(ctx).Create(&items).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Bill, error) {
	var bill domain.Bill
	err := db.WithContext(ctx).Where("id = ?", id).Take(&bill).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &bill, nil
}

func (r *repo) FindByNumber(ctx context.Context, db *gorm.DB, number string) (*domain.Bill, error) {
	var bill domain.Bill
	err := db.WithContext(ctx).Where("bill_number = ?", number).Take(&bill).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &bill, nil
}

func (r *repo) FindDetailedByNumber(ctx context.Context, db *gorm.DB, number string) (*domain.Bill, error) {
	var bill domain.Bill
	err := db.WithContext(ctx).
		Preload("Tenant").
		Preload("Tenant.Room").
		Preload("Tenant.Room.Property").
		Preload("Items", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("created_at asc, id asc")
		}).
		Preload("Payments", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("created_at asc, id asc")
		}).
		Where("bill_number = ?", number).
		Take(&bill).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &bill, nil
}

// List pages by id descending. Snowflake ids follow creation order, so the
// newest bills come first.
func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListBillFilter, page pagination.Pagination) ([]*domain.Bill, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.Bill{}).
		Preload("Tenant")
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.TenantID != 0 {
		stmt = stmt.Where("tenant_id = ?", filter.TenantID)
	}
	if filter.PeriodKey != "" {
		stmt = stmt.Where("period_key = ?", filter.PeriodKey)
	}
	if filter.OverdueAsOf != nil {
		stmt = stmt.Where("status = ? AND due_date < ?", domain.BillStatusUnpaid, *filter.OverdueAsOf)
	}

	cursor, err := pagination.DecodeCursor(page.PageToken)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		stmt = stmt.Where("id < ?", cursor.ID)
	}

	var bills []*domain.Bill
	err = stmt.
		Order("id desc").
		Limit(page.Limit() + 1).
		Find(&bills).Error
	if err != nil {
		return nil, err
	}
	return bills, nil
}

func (r *repo) MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Bill{}).
		Where("id = ? AND status = ?", id, domain.BillStatusUnpaid).
		Updates(map[string]any{
			"status":     domain.BillStatusPaid,
			"updated_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) GetSetting(ctx context.Context, db *gorm.DB) (*domain.BillingSetting, error) {
	var setting domain.BillingSetting
	err := db.WithContext(ctx).Where("id = ?", domain.SettingID).Take(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &setting, nil
}

func (r *repo) SaveSetting(ctx context.Context, db *gorm.DB, setting *domain.BillingSetting) error {
	setting.ID = domain.SettingID
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"auto_generate_enabled",
				"generation_day",
				"due_days",
				"notify_on_generate",
				"notify_on_payment",
				"email_template",
				"updated_at",
			}),
		}).
		Create(setting).Error
}
