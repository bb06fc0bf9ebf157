package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	"github.com/smallbiznis/kost/internal/billing/domain"
	"github.com/smallbiznis/kost/internal/billing/format"
	"github.com/smallbiznis/kost/internal/billing/notify"
	"github.com/smallbiznis/kost/internal/clock"
	"github.com/smallbiznis/kost/internal/observability/metrics"
	"github.com/smallbiznis/kost/internal/providers/pdf"
	"github.com/smallbiznis/kost/internal/sequence"
	tenancydomain "github.com/smallbiznis/kost/internal/tenancy/domain"
	"github.com/smallbiznis/kost/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	TenantRepo tenancydomain.Repository
	Sequence   sequence.Generator
	PDF        pdf.Provider
	Notifier   notify.Notifier
	Metrics    *metrics.BillingMetrics  `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	tenantRepo tenancydomain.Repository
	sequence   sequence.Generator
	pdf        pdf.Provider
	notifier   notify.Notifier
	metrics    *metrics.BillingMetrics
	validate   *validator.Validate
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("billing.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		tenantRepo: p.TenantRepo,
		sequence:   p.Sequence,
		pdf:        p.PDF,
		notifier:   p.Notifier,
		metrics:    p.Metrics,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
	}
}

// GetBillByNumber returns the bill with tenant, room, property, items and payments.
func (s *Service) GetBillByNumber(ctx context.Context, number string) (domain.BillView, error) {
	bill, err := s.findDetailed(ctx, number)
	if err != nil {
		return domain.BillView{}, err
	}
	return s.view(*bill), nil
}

func (s *Service) findDetailed(ctx context.Context, number string) (*domain.Bill, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, domain.ErrNotFound
	}
	bill, err := s.repo.FindDetailedByNumber(ctx, s.db, number)
	if err != nil {
		return nil, err
	}
	if bill == nil {
		return nil, domain.ErrNotFound
	}
	return bill, nil
}

func (s *Service) ListBills(ctx context.Context, req domain.ListBillsRequest) (domain.ListBillsResponse, error) {
	filter := domain.ListBillFilter{}

	if status := strings.TrimSpace(req.Status); status != "" {
		if status == domain.DisplayStatusOverdue {
			req.Overdue = true
		} else {
			parsed := domain.BillStatus(strings.ToLower(status))
			if !parsed.Valid() {
				return domain.ListBillsResponse{}, domain.ErrInvalidStatus
			}
			filter.Status = parsed
		}
	}
	if tenantID := strings.TrimSpace(req.TenantID); tenantID != "" {
		id, err := parseID(tenantID)
		if err != nil {
			return domain.ListBillsResponse{}, err
		}
		filter.TenantID = id
	}
	if key := strings.TrimSpace(req.PeriodKey); key != "" {
		if _, err := time.Parse("2006-01", key); err != nil {
			return domain.ListBillsResponse{}, domain.ErrInvalidPeriod
		}
		filter.PeriodKey = key
	}
	if req.Overdue {
		now := s.clock.Now()
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		filter.OverdueAsOf = &today
	}

	page := pagination.Pagination{PageToken: req.PageToken, PageSize: req.PageSize}
	bills, err := s.repo.List(ctx, s.db, filter, page)
	if err != nil {
		return domain.ListBillsResponse{}, err
	}

	bills, pageInfo, err := pagination.Trim(bills, page.Limit(), func(b *domain.Bill) pagination.Cursor {
		return pagination.Cursor{ID: b.ID.Int64()}
	})
	if err != nil {
		return domain.ListBillsResponse{}, err
	}

	views := make([]domain.BillView, 0, len(bills))
	for _, bill := range bills {
		views = append(views, s.view(*bill))
	}
	return domain.ListBillsResponse{PageInfo: pageInfo, Bills: views}, nil
}

func (s *Service) view(bill domain.Bill) domain.BillView {
	today := s.clock.Now()
	return domain.BillView{
		Bill:          bill,
		DisplayStatus: domain.DisplayStatus(bill, today),
		Overdue:       domain.IsOverdue(bill, today),
	}
}

// GetSetting returns the stored setting, or the defaults when none is saved.
func (s *Service) GetSetting(ctx context.Context) (domain.BillingSetting, error) {
	return s.loadSetting(ctx, s.db)
}

func (s *Service) loadSetting(ctx context.Context, db *gorm.DB) (domain.BillingSetting, error) {
	setting, err := s.repo.GetSetting(ctx, db)
	if err != nil {
		return domain.BillingSetting{}, err
	}
	if setting == nil {
		return domain.DefaultBillingSetting(), nil
	}
	return *setting, nil
}

func (s *Service) UpdateSetting(ctx context.Context, req domain.UpdateSettingRequest) (domain.BillingSetting, error) {
	if err := s.validate.Struct(req); err != nil {
		return domain.BillingSetting{}, err
	}

	var updated domain.BillingSetting
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		setting, err := s.loadSetting(ctx, tx)
		if err != nil {
			return err
		}

		if req.AutoGenerateEnabled != nil {
			setting.AutoGenerateEnabled = *req.AutoGenerateEnabled
		}
		if req.GenerationDay != nil {
			setting.GenerationDay = *req.GenerationDay
		}
		if req.DueDays != nil {
			setting.DueDays = *req.DueDays
		}
		if req.NotifyOnGenerate != nil {
			setting.NotifyOnGenerate = *req.NotifyOnGenerate
		}
		if req.NotifyOnPayment != nil {
			setting.NotifyOnPayment = *req.NotifyOnPayment
		}
		if req.EmailTemplate != nil {
			tmpl := strings.TrimSpace(*req.EmailTemplate)
			if tmpl != "" {
				if err := notify.ValidateTemplate(tmpl); err != nil {
					return fmt.Errorf("%w: %v", domain.ErrInvalidEmailTemplate, err)
				}
			}
			setting.EmailTemplate = tmpl
		}

		setting.ID = domain.SettingID
		setting.UpdatedAt = s.clock.Now()
		if err := s.repo.SaveSetting(ctx, tx, &setting); err != nil {
			return err
		}
		updated = setting
		return nil
	})
	if err != nil {
		return domain.BillingSetting{}, err
	}

	s.log.Info("billing setting updated",
		zap.Bool("auto_generate_enabled", updated.AutoGenerateEnabled),
		zap.Int("generation_day", updated.GenerationDay),
		zap.Int("due_days", updated.DueDays),
	)
	return updated, nil
}

// RenderInvoice produces the PDF document for a bill.
func (s *Service) RenderInvoice(ctx context.Context, number string) ([]byte, error) {
	bill, err := s.findDetailed(ctx, number)
	if err != nil {
		return nil, err
	}
	return s.pdf.GenerateInvoice(ctx, InvoiceData(*bill, s.clock.Now()))
}

// InvoiceData formats a fully loaded bill for the PDF renderer.
func InvoiceData(bill domain.Bill, today time.Time) pdf.InvoiceData {
	data := pdf.InvoiceData{
		BillNumber: bill.BillNumber,
		IssueDate:  format.Date(bill.BillDate),
		DueDate:    format.Date(bill.DueDate),
		Period:     format.Period(bill.PeriodStart),
		Status:     strings.ToUpper(domain.DisplayStatus(bill, today)),
		Total:      format.Rupiah(bill.Total),
		Notes:      bill.Notes,
	}
	if tenant := bill.Tenant; tenant != nil {
		data.TenantName = tenant.Name
		data.TenantEmail = tenant.Email
		data.TenantPhone = tenant.Phone
		data.RoomName = tenant.RoomName()
		if tenant.Room != nil && tenant.Room.Property != nil {
			data.PropertyName = tenant.Room.Property.Name
			data.PropertyAddress = tenant.Room.Property.Address
		}
	}
	for _, item := range bill.Items {
		data.Items = append(data.Items, pdf.InvoiceItem{
			Description: item.Description,
			Qty:         int(item.Quantity),
			UnitPrice:   format.Rupiah(item.Amount),
			Amount:      format.Rupiah(item.Total),
		})
	}
	return data
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
