package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/kost/internal/billing/domain"
	"github.com/smallbiznis/kost/internal/billing/format"
	"github.com/smallbiznis/kost/internal/observability/logger"
	"github.com/smallbiznis/kost/internal/observability/tracing"
	tenancydomain "github.com/smallbiznis/kost/internal/tenancy/domain"
	"github.com/smallbiznis/kost/pkg/db"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// errAlreadyBilled aborts a tenant's transaction when its bill for the
// period already exists.
var errAlreadyBilled = errors.New("already_billed")

// GenerateMonthlyBills issues one bill per active tenant for the month
// containing now. Each tenant runs in its own transaction; a failure for one
// tenant never affects the others. The returned error is reserved for
// failures before any tenant is processed and for a cancelled context, in
// which case the summary covers the tenants handled so far.
func (s *Service) GenerateMonthlyBills(ctx context.Context, now time.Time) (domain.GenerateSummary, error) {
	ctx, span := otel.Tracer("kost/billing").Start(ctx, "billing.generate_monthly_bills")
	defer span.End()

	start := time.Now()
	period := domain.PeriodFor(now)
	summary := domain.GenerateSummary{PeriodKey: period.Key, Results: []domain.TenantResult{}}
	log := logger.WithContext(ctx, s.log).With(zap.String("period", period.Key))

	setting, err := s.loadSetting(ctx, s.db)
	if err != nil {
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, "load setting")
		return summary, fmt.Errorf("load billing setting: %w", err)
	}
	tenants, err := s.tenantRepo.ListActive(ctx, s.db)
	if err != nil {
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, "list tenants")
		return summary, fmt.Errorf("list active tenants: %w", err)
	}
	summary.TenantsConsidered = len(tenants)

	var (
		issued      []*domain.Bill
		interrupted error
	)
	for i, tenant := range tenants {
		if err := ctx.Err(); err != nil {
			interrupted = fmt.Errorf("bill generation stopped after %d of %d tenants: %w", i, len(tenants), err)
			break
		}
		if tenant == nil {
			continue
		}
		tenantLog := logger.WithTenant(log, tenant.ID.Int64(), tenant.Name)

		bill, err := s.generateForTenant(ctx, tenant, setting, period, now)
		switch {
		case err != nil && ctx.Err() != nil:
			// The tenant's transaction was rolled back by the cancellation.
			interrupted = fmt.Errorf("bill generation stopped after %d of %d tenants: %w", i, len(tenants), ctx.Err())
		case err == nil:
			summary.Generate(tenant.ID, tenant.Name, bill.BillNumber)
			issued = append(issued, bill)
			tenantLog.Info("bill generated", zap.String("bill_number", bill.BillNumber))
		case errors.Is(err, errAlreadyBilled):
			summary.Skip(tenant.ID, tenant.Name, domain.SkipReasonAlreadyExists)
			tenantLog.Debug("bill already exists")
		default:
			summary.Fail(tenant.ID, tenant.Name, err)
			tenantLog.Error("bill generation failed", zap.Error(err))
		}
		if interrupted != nil {
			break
		}
	}

	s.metrics.ObserveGenerationRun(time.Since(start), summary.Generated, summary.Skipped, summary.Failed)
	span.SetAttributes(
		attribute.String("billing.period", period.Key),
		attribute.Int("billing.tenants", summary.TenantsConsidered),
		attribute.Int("billing.generated", summary.Generated),
		attribute.Int("billing.skipped", summary.Skipped),
		attribute.Int("billing.failed", summary.Failed),
	)
	switch {
	case interrupted != nil:
		span.RecordError(interrupted)
		span.SetStatus(codes.Error, "interrupted")
	case summary.Failed > 0:
		span.SetStatus(codes.Error, "partial failure")
	}

	// Issued bills are committed, so their emails go out even after a cancel.
	notifyCtx := context.WithoutCancel(ctx)
	for _, bill := range issued {
		if err := s.notifier.BillGenerated(notifyCtx, setting, bill, bill.Tenant); err != nil {
			log.Warn("bill notification failed",
				zap.String("bill_number", bill.BillNumber),
				zap.Error(err),
			)
		}
	}

	log.Info("bill generation finished",
		zap.Int("tenants", summary.TenantsConsidered),
		zap.Int("generated", summary.Generated),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
	)
	if interrupted != nil {
		log.Warn("bill generation interrupted", zap.Error(interrupted))
		return summary, interrupted
	}
	return summary, nil
}

func (s *Service) generateForTenant(ctx context.Context, tenant *tenancydomain.Tenant, setting domain.BillingSetting, period domain.Period, now time.Time) (*domain.Bill, error) {
	if tenant.Room == nil {
		return nil, domain.ErrRoomMissing
	}
	if tenant.Room.Price <= 0 {
		return nil, domain.ErrInvalidRoomPrice
	}

	var bill *domain.Bill
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exists, err := s.repo.ExistsForPeriod(ctx, tx, tenant.ID, period.Key)
		if err != nil {
			return err
		}
		if exists {
			return errAlreadyBilled
		}

		number, err := s.sequence.Next(ctx, tx, format.PrefixBill, now)
		if err != nil {
			return fmt.Errorf("allocate bill number: %w", err)
		}

		price := tenant.Room.Price
		item := domain.NewBillItem(s.genID.Generate(), domain.RoomRentDescription(tenant.Room.Name), price, 1, now)
		// Later room price changes never touch issued bills.
		snapshot := datatypes.JSONMap{
			"room_name":  tenant.Room.Name,
			"room_price": price,
		}
		candidate := &domain.Bill{
			ID:          s.genID.Generate(),
			TenantID:    tenant.ID,
			BillNumber:  number,
			BillDate:    now,
			DueDate:     now.AddDate(0, 0, setting.EffectiveDueDays()),
			PeriodStart: period.Start,
			PeriodEnd:   period.End,
			PeriodKey:   period.Key,
			Subtotal:    item.Total,
			Total:       item.Total,
			Status:      domain.BillStatusUnpaid,
			Metadata:    snapshot,
			Items:       []domain.BillItem{item},
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		if err := s.repo.InsertBill(ctx, tx, candidate); err != nil {
			// A concurrent run inserted the same (tenant, period) first.
			if db.IsDuplicateKeyErr(err) {
				return errAlreadyBilled
			}
			return fmt.Errorf("insert bill: %w", err)
		}
		bill = candidate
		return nil
	})
	if err != nil {
		return nil, err
	}

	bill.Tenant = tenant
	return bill, nil
}
