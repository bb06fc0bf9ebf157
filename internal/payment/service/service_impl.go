package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	billingdomain "github.com/smallbiznis/kost/internal/billing/domain"
	"github.com/smallbiznis/kost/internal/billing/format"
	"github.com/smallbiznis/kost/internal/billing/notify"
	billingservice "github.com/smallbiznis/kost/internal/billing/service"
	"github.com/smallbiznis/kost/internal/clock"
	"github.com/smallbiznis/kost/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/kost/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/kost/internal/payment/domain"
	"github.com/smallbiznis/kost/internal/providers/pdf"
	"github.com/smallbiznis/kost/internal/sequence"
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
	Repo       paymentdomain.Repository
	BillRepo   billingdomain.Repository
	Sequence   sequence.Generator
	PDF        pdf.Provider
	Notifier   notify.Notifier
	ObsMetrics *obsmetrics.BillingMetrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       paymentdomain.Repository
	billRepo   billingdomain.Repository
	sequence   sequence.Generator
	pdf        pdf.Provider
	notifier   notify.Notifier
	obsMetrics *obsmetrics.BillingMetrics
	validate   *validator.Validate
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		billRepo:   p.BillRepo,
		sequence:   p.Sequence,
		pdf:        p.PDF,
		notifier:   p.Notifier,
		obsMetrics: p.ObsMetrics,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
	}
}

// ReportPayment records a tenant's transfer as pending. A bill may carry
// several pending reports; only unpaid bills accept new ones.
func (s *Service) ReportPayment(ctx context.Context, req paymentdomain.ReportPaymentRequest) (paymentdomain.Payment, error) {
	req.BillNumber = strings.TrimSpace(req.BillNumber)
	req.PaymentMethod = strings.TrimSpace(req.PaymentMethod)
	req.ProofImage = strings.TrimSpace(req.ProofImage)
	req.Notes = strings.TrimSpace(req.Notes)
	if err := s.validate.Struct(req); err != nil {
		return paymentdomain.Payment{}, err
	}
	if req.PaymentDate.IsZero() {
		return paymentdomain.Payment{}, paymentdomain.ErrInvalidPaymentDate
	}

	now := s.clock.Now()
	var payment paymentdomain.Payment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bill, err := s.billRepo.FindByNumber(ctx, tx, req.BillNumber)
		if err != nil {
			return err
		}
		if bill == nil {
			return paymentdomain.ErrBillNotFound
		}
		if bill.Status != billingdomain.BillStatusUnpaid {
			return paymentdomain.ErrBillNotPayable
		}

		number, err := s.sequence.Next(ctx, tx, format.PrefixPayment, now)
		if err != nil {
			return err
		}

		payment = paymentdomain.Payment{
			ID:            s.genID.Generate(),
			BillID:        bill.ID,
			PaymentNumber: number,
			Amount:        req.Amount,
			PaymentDate:   req.PaymentDate,
			PaymentMethod: req.PaymentMethod,
			Status:        paymentdomain.PaymentStatusPending,
			Notes:         req.Notes,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if req.ProofImage != "" {
			proof := req.ProofImage
			payment.ProofImage = &proof
		}
		return s.repo.Insert(ctx, tx, &payment)
	})
	if err != nil {
		return paymentdomain.Payment{}, err
	}

	s.obsMetrics.IncPayment(obsmetrics.PaymentActionReported)
	logger.WithContext(ctx, s.log).Info("payment reported",
		zap.String("payment_number", payment.PaymentNumber),
		zap.String("bill_number", req.BillNumber),
		zap.Int64("amount", payment.Amount),
	)
	return payment, nil
}

// Confirm moves a pending payment to confirmed and marks its bill paid in
// the same transaction. Unknown and already decided payments both report
// ErrNotFound.
func (s *Service) Confirm(ctx context.Context, req paymentdomain.ConfirmRequest) (paymentdomain.DecisionResult, error) {
	id, err := parseID(req.PaymentID)
	if err != nil {
		return paymentdomain.DecisionResult{}, err
	}
	at := s.decisionTime(req.Now)
	log := logger.WithContext(ctx, s.log)

	var result paymentdomain.DecisionResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		changed, err := s.repo.DecidePending(ctx, tx, id, paymentdomain.Decision{
			Status:  paymentdomain.PaymentStatusConfirmed,
			At:      at,
			ActorID: optionalString(req.ActorID),
		})
		if err != nil {
			return err
		}
		if !changed {
			return s.undecidable(ctx, tx, log, id)
		}

		payment, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if payment == nil {
			return paymentdomain.ErrNotFound
		}

		if _, err := s.billRepo.MarkPaid(ctx, tx, payment.BillID, at); err != nil {
			return err
		}
		bill, err := s.billRepo.FindByID(ctx, tx, payment.BillID)
		if err != nil {
			return err
		}
		if bill == nil {
			return paymentdomain.ErrBillNotFound
		}
		// MarkPaid only moves unpaid bills; an already paid bill is fine.
		if bill.Status != billingdomain.BillStatusPaid {
			return paymentdomain.ErrBillNotPayable
		}
		result = paymentdomain.DecisionResult{Payment: *payment, Bill: billState(bill)}
		return nil
	})
	if err != nil {
		return paymentdomain.DecisionResult{}, err
	}

	s.obsMetrics.IncPayment(obsmetrics.PaymentActionConfirmed)
	log.Info("payment confirmed",
		zap.String("payment_number", result.Payment.PaymentNumber),
		zap.String("bill_number", result.Bill.BillNumber),
		zap.String("actor_id", req.ActorID),
	)
	s.notifyConfirmed(ctx, log, &result.Payment)
	return result, nil
}

func (s *Service) notifyConfirmed(ctx context.Context, log *zap.Logger, payment *paymentdomain.Payment) {
	setting, err := s.billRepo.GetSetting(ctx, s.db)
	if err != nil {
		log.Warn("load billing setting for notification", zap.Error(err))
		return
	}
	if setting == nil {
		defaults := billingdomain.DefaultBillingSetting()
		setting = &defaults
	}
	if !setting.NotifyOnPayment {
		return
	}

	bill, err := s.billRepo.FindByID(ctx, s.db, payment.BillID)
	if err == nil && bill != nil {
		bill, err = s.billRepo.FindDetailedByNumber(ctx, s.db, bill.BillNumber)
	}
	if err != nil || bill == nil {
		log.Warn("load bill for notification", zap.Error(err))
		return
	}
	if err := s.notifier.PaymentConfirmed(ctx, *setting, bill, payment); err != nil {
		log.Warn("payment notification failed",
			zap.String("payment_number", payment.PaymentNumber),
			zap.Error(err),
		)
	}
}

// Reject closes a pending payment with a reason. The bill is untouched.
func (s *Service) Reject(ctx context.Context, req paymentdomain.RejectRequest) (paymentdomain.DecisionResult, error) {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return paymentdomain.DecisionResult{}, paymentdomain.ErrReasonRequired
	}
	id, err := parseID(req.PaymentID)
	if err != nil {
		return paymentdomain.DecisionResult{}, err
	}
	at := s.decisionTime(req.Now)
	log := logger.WithContext(ctx, s.log)

	var result paymentdomain.DecisionResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		changed, err := s.repo.DecidePending(ctx, tx, id, paymentdomain.Decision{
			Status:  paymentdomain.PaymentStatusRejected,
			At:      at,
			ActorID: optionalString(req.ActorID),
			Notes:   &reason,
		})
		if err != nil {
			return err
		}
		if !changed {
			return s.undecidable(ctx, tx, log, id)
		}

		payment, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if payment == nil {
			return paymentdomain.ErrNotFound
		}
		bill, err := s.billRepo.FindByID(ctx, tx, payment.BillID)
		if err != nil {
			return err
		}
		if bill == nil {
			return paymentdomain.ErrBillNotFound
		}
		result = paymentdomain.DecisionResult{Payment: *payment, Bill: billState(bill)}
		return nil
	})
	if err != nil {
		return paymentdomain.DecisionResult{}, err
	}

	s.obsMetrics.IncPayment(obsmetrics.PaymentActionRejected)
	log.Info("payment rejected",
		zap.String("payment_number", result.Payment.PaymentNumber),
		zap.String("bill_number", result.Bill.BillNumber),
		zap.String("actor_id", req.ActorID),
	)
	return result, nil
}

// undecidable explains a conditional update that matched no pending row.
func (s *Service) undecidable(ctx context.Context, tx *gorm.DB, log *zap.Logger, id snowflake.ID) error {
	payment, err := s.repo.FindByID(ctx, tx, id)
	if err != nil {
		return err
	}
	if payment != nil && payment.Status.IsTerminal() {
		log.Debug("payment already decided",
			zap.String("payment_number", payment.PaymentNumber),
			zap.String("status", string(payment.Status)),
		)
	}
	return paymentdomain.ErrNotFound
}

func billState(bill *billingdomain.Bill) paymentdomain.BillState {
	return paymentdomain.BillState{
		ID:         bill.ID,
		BillNumber: bill.BillNumber,
		Status:     string(bill.Status),
		Total:      bill.Total,
		DueDate:    bill.DueDate,
	}
}

func (s *Service) GetByID(ctx context.Context, paymentID string) (paymentdomain.Payment, error) {
	id, err := parseID(paymentID)
	if err != nil {
		return paymentdomain.Payment{}, err
	}
	payment, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return paymentdomain.Payment{}, err
	}
	if payment == nil {
		return paymentdomain.Payment{}, paymentdomain.ErrNotFound
	}
	return *payment, nil
}

func (s *Service) ListByBill(ctx context.Context, billNumber string) ([]paymentdomain.Payment, error) {
	bill, err := s.billRepo.FindByNumber(ctx, s.db, strings.TrimSpace(billNumber))
	if err != nil {
		return nil, err
	}
	if bill == nil {
		return nil, paymentdomain.ErrBillNotFound
	}

	items, err := s.repo.ListByBill(ctx, s.db, bill.ID)
	if err != nil {
		return nil, err
	}
	payments := make([]paymentdomain.Payment, 0, len(items))
	for _, item := range items {
		payments = append(payments, *item)
	}
	return payments, nil
}

func (s *Service) RenderReceipt(ctx context.Context, paymentID string) ([]byte, error) {
	payment, err := s.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status != paymentdomain.PaymentStatusConfirmed {
		return nil, paymentdomain.ErrReceiptNotReady
	}

	bill, err := s.billRepo.FindByID(ctx, s.db, payment.BillID)
	if err == nil && bill != nil {
		bill, err = s.billRepo.FindDetailedByNumber(ctx, s.db, bill.BillNumber)
	}
	if err != nil {
		return nil, err
	}
	if bill == nil {
		return nil, paymentdomain.ErrBillNotFound
	}

	data := pdf.ReceiptData{
		InvoiceData:   billingservice.InvoiceData(*bill, s.clock.Now()),
		PaymentNumber: payment.PaymentNumber,
		PaymentMethod: payment.PaymentMethod,
		AmountPaid:    format.Rupiah(payment.Amount),
		DatePaid:      format.Date(payment.PaymentDate),
	}
	if payment.ConfirmedBy != nil {
		data.ConfirmedBy = *payment.ConfirmedBy
	}
	return s.pdf.GenerateReceipt(ctx, data)
}

func (s *Service) decisionTime(at time.Time) time.Time {
	if at.IsZero() {
		return s.clock.Now()
	}
	return at
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil {
		return 0, paymentdomain.ErrInvalidID
	}
	return id, nil
}
