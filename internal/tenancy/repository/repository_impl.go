package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kost/internal/tenancy/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertProperty(ctx context.Context, db *gorm.DB, property *domain.Property) error {
	return db.WithContext(ctx).Create(property).Error
}

func (r *repo) FindPropertyByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Property, error) {
	var property domain.Property
	err := db.WithContext(ctx).Where("id = ?", id).Take(&property).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &property, nil
}

func (r *repo) InsertRoom(ctx context.Context, db *gorm.DB, room *domain.Room) error {
	return db.WithContext(ctx).Omit("Property").Create(room).Error
}

func (r *repo) FindRoomByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Room, error) {
	var room domain.Room
	err := db.WithContext(ctx).Where("id = ?", id).Take(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// UpdateRoomStatus moves a room from one status to another and reports
// whether the row was in the expected status.
func (r *repo) UpdateRoomStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to domain.RoomStatus, at time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Room{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": at})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) InsertTenant(ctx context.Context, db *gorm.DB, tenant *domain.Tenant) error {
	return db.WithContext(ctx).Omit("Room").Create(tenant).Error
}

func (r *repo) FindTenantByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Tenant, error) {
	var tenant domain.Tenant
	err := db.WithContext(ctx).
		Preload("Room").
		Preload("Room.Property").
		Where("id = ?", id).
		Take(&tenant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

func (r *repo) Deactivate(ctx context.Context, db *gorm.DB, id snowflake.ID, checkOutDate time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Tenant{}).
		Where("id = ? AND is_active = ?", id, true).
		Updates(map[string]any{
			"is_active":      false,
			"check_out_date": checkOutDate,
			"updated_at":     checkOutDate,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListActive returns active tenants with their room, oldest check-in first.
func (r *repo) ListActive(ctx context.Context, db *gorm.DB) ([]*domain.Tenant, error) {
	var tenants []*domain.Tenant
	err := db.WithContext(ctx).
		Preload("Room").
		Where("is_active = ?", true).
		Order("check_in_date asc, id asc").
		Find(&tenants).Error
	if err != nil {
		return nil, err
	}
	return tenants, nil
}
