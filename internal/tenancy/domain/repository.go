package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertProperty(ctx context.Context, db *gorm.DB, property *Property) error
	FindPropertyByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Property, error)
	InsertRoom(ctx context.Context, db *gorm.DB, room *Room) error
	FindRoomByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Room, error)
	UpdateRoomStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to RoomStatus, at time.Time) (bool, error)
	InsertTenant(ctx context.Context, db *gorm.DB, tenant *Tenant) error
	FindTenantByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Tenant, error)
	Deactivate(ctx context.Context, db *gorm.DB, id snowflake.ID, checkOutDate time.Time) (bool, error)
	ListActive(ctx context.Context, db *gorm.DB) ([]*Tenant, error)
}
