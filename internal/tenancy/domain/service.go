package domain

import (
	"context"
	"errors"
	"time"
)

type CreatePropertyRequest struct {
	Name    string `json:"name" validate:"required,max=150"`
	Address string `json:"address" validate:"max=500"`
}

type CreateRoomRequest struct {
	PropertyID string `json:"property_id" validate:"required"`
	Name       string `json:"name" validate:"required,max=100"`
	Price      int64  `json:"price" validate:"gt=0"`
	Capacity   int    `json:"capacity" validate:"omitempty,gte=1,lte=10"`
}

type CheckInRequest struct {
	RoomID      string         `json:"room_id" validate:"required"`
	Name        string         `json:"name" validate:"required,max=150"`
	Email       string         `json:"email" validate:"omitempty,email"`
	Phone       string         `json:"phone" validate:"omitempty,max=30"`
	CheckInDate time.Time      `json:"check_in_date"`
	Metadata    map[string]any `json:"metadata"`
}

type CheckOutRequest struct {
	TenantID     string
	CheckOutDate time.Time
}

type Service interface {
	CreateProperty(context.Context, CreatePropertyRequest) (Property, error)
	CreateRoom(context.Context, CreateRoomRequest) (Room, error)
	CheckIn(context.Context, CheckInRequest) (Tenant, error)
	CheckOut(context.Context, CheckOutRequest) (Tenant, error)
	ListActive(context.Context) ([]Tenant, error)
	GetByID(context.Context, string) (Tenant, error)
}

var (
	ErrInvalidID         = errors.New("invalid_id")
	ErrInvalidProperty   = errors.New("invalid_property")
	ErrInvalidRoom       = errors.New("invalid_room")
	ErrNotFound          = errors.New("not_found")
	ErrRoomNotAvailable  = errors.New("room_not_available")
	ErrTenantInactive    = errors.New("tenant_inactive")
	ErrPropertySlugTaken = errors.New("property_slug_taken")
)
