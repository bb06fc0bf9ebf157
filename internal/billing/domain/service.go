package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kost/pkg/db/pagination"
)

type Outcome string

const (
	OutcomeGenerated Outcome = "generated"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// TenantResult is one line of a generation run.
type TenantResult struct {
	TenantID   snowflake.ID `json:"tenant_id"`
	TenantName string       `json:"tenant_name"`
	Outcome    Outcome      `json:"outcome"`
	BillNumber string       `json:"bill_number,omitempty"`
	Error      string       `json:"error,omitempty"`
}

// GenerateSummary counts per-tenant outcomes. Generated+Skipped+Failed
// always equals TenantsConsidered.
type GenerateSummary struct {
	PeriodKey         string         `json:"period_key"`
	TenantsConsidered int            `json:"tenants_considered"`
	Generated         int            `json:"generated"`
	Skipped           int            `json:"skipped"`
	Failed            int            `json:"failed"`
	Results           []TenantResult `json:"results"`
}

func (s *GenerateSummary) record(result TenantResult) {
	s.Results = append(s.Results, result)
	switch result.Outcome {
	case OutcomeGenerated:
		s.Generated++
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeFailed:
		s.Failed++
	}
}

func (s *GenerateSummary) Generate(tenantID snowflake.ID, tenantName, billNumber string) {
	s.record(TenantResult{TenantID: tenantID, TenantName: tenantName, Outcome: OutcomeGenerated, BillNumber: billNumber})
}

func (s *GenerateSummary) Skip(tenantID snowflake.ID, tenantName, reason string) {
	s.record(TenantResult{TenantID: tenantID, TenantName: tenantName, Outcome: OutcomeSkipped, Error: reason})
}

func (s *GenerateSummary) Fail(tenantID snowflake.ID, tenantName string, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	s.record(TenantResult{TenantID: tenantID, TenantName: tenantName, Outcome: OutcomeFailed, Error: msg})
}

type ListBillsRequest struct {
	Status    string
	TenantID  string
	PeriodKey string
	Overdue   bool
	PageToken string
	PageSize  int
}

// BillView is a bill with its derived display status.
type BillView struct {
	Bill
	DisplayStatus string `json:"display_status"`
	Overdue       bool   `json:"overdue"`
}

type ListBillsResponse struct {
	pagination.PageInfo
	Bills []BillView `json:"bills"`
}

type UpdateSettingRequest struct {
	AutoGenerateEnabled *bool   `json:"auto_generate_enabled"`
	GenerationDay       *int    `json:"generation_day" validate:"omitempty,gte=1,lte=28"`
	DueDays             *int    `json:"due_days" validate:"omitempty,gte=1,lte=60"`
	NotifyOnGenerate    *bool   `json:"notify_on_generate"`
	NotifyOnPayment     *bool   `json:"notify_on_payment"`
	EmailTemplate       *string `json:"email_template" validate:"omitempty,max=10000"`
}

type Service interface {
	GenerateMonthlyBills(ctx context.Context, now time.Time) (GenerateSummary, error)
	GetBillByNumber(ctx context.Context, number string) (BillView, error)
	ListBills(ctx context.Context, req ListBillsRequest) (ListBillsResponse, error)
	GetSetting(ctx context.Context) (BillingSetting, error)
	UpdateSetting(ctx context.Context, req UpdateSettingRequest) (BillingSetting, error)
	RenderInvoice(ctx context.Context, number string) ([]byte, error)
}

const SkipReasonAlreadyExists = "already exists"

var (
	ErrInvalidID            = errors.New("invalid_id")
	ErrInvalidStatus        = errors.New("invalid_status")
	ErrInvalidPeriod        = errors.New("invalid_period")
	ErrInvalidEmailTemplate = errors.New("invalid_email_template")
	ErrNotFound             = errors.New("not_found")
	ErrRoomMissing          = errors.New("room_missing")
	ErrInvalidRoomPrice     = errors.New("invalid_room_price")
)
