package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type RoomStatus string

const (
	RoomStatusAvailable   RoomStatus = "available"
	RoomStatusOccupied    RoomStatus = "occupied"
	RoomStatusMaintenance RoomStatus = "maintenance"
)

type Property struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Name      string       `gorm:"not null" json:"name"`
	Slug      string       `gorm:"not null;uniqueIndex" json:"slug"`
	Address   string       `json:"address,omitempty"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null" json:"updated_at"`
}

func (Property) TableName() string { return "properties" }

// Room price is in rupiah. Changing it never touches bills already generated.
type Room struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	PropertyID snowflake.ID `gorm:"not null;index" json:"property_id"`
	Property   *Property    `gorm:"foreignKey:PropertyID;constraint:OnDelete:CASCADE" json:"property,omitempty"`
	Name       string       `gorm:"not null" json:"name"`
	Price      int64        `gorm:"not null" json:"price"`
	Capacity   int          `gorm:"not null;default:1" json:"capacity"`
	Status     RoomStatus   `gorm:"type:varchar(20);not null;default:available" json:"status"`
	CreatedAt  time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time    `gorm:"not null" json:"updated_at"`
}

func (Room) TableName() string { return "rooms" }

// Tenant is a boarding-house occupant, not an organization.
type Tenant struct {
	ID           snowflake.ID      `gorm:"primaryKey" json:"id"`
	RoomID       snowflake.ID      `gorm:"not null;index" json:"room_id"`
	Room         *Room             `gorm:"foreignKey:RoomID;constraint:OnDelete:CASCADE" json:"room,omitempty"`
	Name         string            `gorm:"not null" json:"name"`
	Email        string            `json:"email,omitempty"`
	Phone        string            `json:"phone,omitempty"`
	CheckInDate  time.Time         `gorm:"not null" json:"check_in_date"`
	CheckOutDate *time.Time        `json:"check_out_date,omitempty"`
	IsActive     bool              `gorm:"not null;default:true;index" json:"is_active"`
	Metadata     datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt    time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time         `gorm:"not null" json:"updated_at"`
}

func (Tenant) TableName() string { return "tenants" }

// RoomName is safe to call on tenants loaded without their room.
func (t Tenant) RoomName() string {
	if t.Room == nil {
		return ""
	}
	return t.Room.Name
}
