package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/kost/internal/clock"
	"github.com/smallbiznis/kost/internal/tenancy/domain"
	"github.com/smallbiznis/kost/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	validate *validator.Validate
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("tenancy.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (s *Service) CreateProperty(ctx context.Context, req domain.CreatePropertyRequest) (domain.Property, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Address = strings.TrimSpace(req.Address)
	if err := s.validate.Struct(req); err != nil {
		return domain.Property{}, err
	}

	now := s.clock.Now()
	property := domain.Property{
		ID:        s.genID.Generate(),
		Name:      req.Name,
		Slug:      slug.Make(req.Name),
		Address:   req.Address,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if property.Slug == "" {
		return domain.Property{}, domain.ErrInvalidProperty
	}

	if err := s.repo.InsertProperty(ctx, s.db, &property); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Property{}, domain.ErrPropertySlugTaken
		}
		return domain.Property{}, err
	}
	return property, nil
}

func (s *Service) CreateRoom(ctx context.Context, req domain.CreateRoomRequest) (domain.Room, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validate.Struct(req); err != nil {
		return domain.Room{}, err
	}
	propertyID, err := parseID(req.PropertyID)
	if err != nil {
		return domain.Room{}, err
	}

	property, err := s.repo.FindPropertyByID(ctx, s.db, propertyID)
	if err != nil {
		return domain.Room{}, err
	}
	if property == nil {
		return domain.Room{}, domain.ErrInvalidProperty
	}

	capacity := req.Capacity
	if capacity == 0 {
		capacity = 1
	}
	now := s.clock.Now()
	room := domain.Room{
		ID:         s.genID.Generate(),
		PropertyID: property.ID,
		Name:       req.Name,
		Price:      req.Price,
		Capacity:   capacity,
		Status:     domain.RoomStatusAvailable,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.InsertRoom(ctx, s.db, &room); err != nil {
		return domain.Room{}, err
	}
	room.Property = property
	return room, nil
}

// CheckIn registers an active tenant and marks the room occupied.
func (s *Service) CheckIn(ctx context.Context, req domain.CheckInRequest) (domain.Tenant, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Phone = strings.TrimSpace(req.Phone)
	if err := s.validate.Struct(req); err != nil {
		return domain.Tenant{}, err
	}
	roomID, err := parseID(req.RoomID)
	if err != nil {
		return domain.Tenant{}, err
	}

	now := s.clock.Now()
	checkIn := req.CheckInDate
	if checkIn.IsZero() {
		checkIn = now
	}
	metadata := datatypes.JSONMap{}
	for k, v := range req.Metadata {
		metadata[k] = v
	}

	var tenant domain.Tenant
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		room, err := s.repo.FindRoomByID(ctx, tx, roomID)
		if err != nil {
			return err
		}
		if room == nil {
			return domain.ErrInvalidRoom
		}

		ok, err := s.repo.UpdateRoomStatus(ctx, tx, room.ID, domain.RoomStatusAvailable, domain.RoomStatusOccupied, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrRoomNotAvailable
		}
		room.Status = domain.RoomStatusOccupied

		tenant = domain.Tenant{
			ID:          s.genID.Generate(),
			RoomID:      room.ID,
			Name:        req.Name,
			Email:       req.Email,
			Phone:       req.Phone,
			CheckInDate: checkIn,
			IsActive:    true,
			Metadata:    metadata,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.repo.InsertTenant(ctx, tx, &tenant); err != nil {
			return err
		}
		tenant.Room = room
		return nil
	})
	if err != nil {
		return domain.Tenant{}, err
	}

	s.log.Info("tenant checked in",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("room_id", tenant.RoomID.String()),
	)
	return tenant, nil
}

// CheckOut deactivates the tenant and frees the room. Existing bills stay.
func (s *Service) CheckOut(ctx context.Context, req domain.CheckOutRequest) (domain.Tenant, error) {
	tenantID, err := parseID(req.TenantID)
	if err != nil {
		return domain.Tenant{}, err
	}
	at := req.CheckOutDate
	if at.IsZero() {
		at = s.clock.Now()
	}

	var tenant *domain.Tenant
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindTenantByID(ctx, tx, tenantID)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrNotFound
		}

		ok, err := s.repo.Deactivate(ctx, tx, current.ID, at)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrTenantInactive
		}
		if _, err := s.repo.UpdateRoomStatus(ctx, tx, current.RoomID, domain.RoomStatusOccupied, domain.RoomStatusAvailable, at); err != nil {
			return err
		}

		tenant, err = s.repo.FindTenantByID(ctx, tx, tenantID)
		return err
	})
	if err != nil {
		return domain.Tenant{}, err
	}

	s.log.Info("tenant checked out", zap.String("tenant_id", tenant.ID.String()))
	return *tenant, nil
}

func (s *Service) ListActive(ctx context.Context) ([]domain.Tenant, error) {
	items, err := s.repo.ListActive(ctx, s.db)
	if err != nil {
		return nil, err
	}
	tenants := make([]domain.Tenant, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		tenants = append(tenants, *item)
	}
	return tenants, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Tenant, error) {
	tenantID, err := parseID(id)
	if err != nil {
		return domain.Tenant{}, err
	}
	item, err := s.repo.FindTenantByID(ctx, s.db, tenantID)
	if err != nil {
		return domain.Tenant{}, err
	}
	if item == nil {
		return domain.Tenant{}, domain.ErrNotFound
	}
	return *item, nil
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
