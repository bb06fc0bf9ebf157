package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kost/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, payment *domain.Payment) error {
	return db.WithContext(ctx).Create(payment).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Payment, error) {
	var item domain.Payment
	err := db.WithContext(ctx).Where("id = ?", id).Take(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repo) ListByBill(ctx context.Context, db *gorm.DB, billID snowflake.ID) ([]*domain.Payment, error) {
	var items []*domain.Payment
	err := db.WithContext(ctx).
		Where("bill_id = ?", billID).
		Order("created_at asc, id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) DecidePending(ctx context.Context, db *gorm.DB, id snowflake.ID, decision domain.Decision) (bool, error) {
	updates := map[string]any{
		"status":     decision.Status,
		"updated_at": decision.At,
	}
	if decision.Status == domain.PaymentStatusConfirmed {
		updates["confirmed_at"] = decision.At
	}
	if decision.ActorID != nil {
		updates["confirmed_by"] = *decision.ActorID
	}
	if decision.Notes != nil {
		updates["notes"] = *decision.Notes
	}

	res := db.WithContext(ctx).
		Model(&domain.Payment{}).
		Where("id = ? AND status = ?", id, domain.PaymentStatusPending).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
