package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/smallbiznis/kost/internal/billing/domain"
	"github.com/smallbiznis/kost/internal/billing/format"
	"github.com/smallbiznis/kost/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/kost/internal/payment/domain"
	"github.com/smallbiznis/kost/internal/providers/email"
	tenancydomain "github.com/smallbiznis/kost/internal/tenancy/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrNoRecipient = errors.New("no_recipient")

// TemplateData is exposed to billing email templates.
type TemplateData struct {
	TenantName    string
	BillNumber    string
	RoomName      string
	Period        string
	Total         string
	DueDate       string
	PaymentNumber string
	Amount        string
}

type Notifier interface {
	BillGenerated(ctx context.Context, setting domain.BillingSetting, bill *domain.Bill, tenant *tenancydomain.Tenant) error
	PaymentConfirmed(ctx context.Context, setting domain.BillingSetting, bill *domain.Bill, payment *paymentdomain.Payment) error
}

type Params struct {
	fx.In

	Log     *zap.Logger
	Email   email.Provider
	Metrics *metrics.BillingMetrics `optional:"true"`
}

type notifier struct {
	log     *zap.Logger
	email   email.Provider
	metrics *metrics.BillingMetrics
}

func New(p Params) Notifier {
	return &notifier{
		log:     p.Log.Named("billing.notify"),
		email:   p.Email,
		metrics: p.Metrics,
	}
}

// BillGenerated is a no-op unless notify_on_generate is set.
func (n *notifier) BillGenerated(ctx context.Context, setting domain.BillingSetting, bill *domain.Bill, tenant *tenancydomain.Tenant) error {
	if !setting.NotifyOnGenerate || bill == nil || tenant == nil {
		return nil
	}
	data := billData(bill, tenant)
	return n.send(ctx, tenant.Email, domain.DefaultEmailSubject, setting.Template(), data)
}

// PaymentConfirmed is a no-op unless notify_on_payment is set. The bill must
// carry its tenant.
func (n *notifier) PaymentConfirmed(ctx context.Context, setting domain.BillingSetting, bill *domain.Bill, payment *paymentdomain.Payment) error {
	if !setting.NotifyOnPayment || bill == nil || bill.Tenant == nil || payment == nil {
		return nil
	}
	data := billData(bill, bill.Tenant)
	data.PaymentNumber = payment.PaymentNumber
	data.Amount = format.Rupiah(payment.Amount)
	return n.send(ctx, bill.Tenant.Email, domain.DefaultPaymentSubject, domain.DefaultPaymentTemplate, data)
}

func (n *notifier) send(ctx context.Context, to, subjectTemplate, bodyTemplate string, data TemplateData) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return ErrNoRecipient
	}

	subject, err := email.RenderSubject(subjectTemplate, data)
	if err != nil {
		n.metrics.IncNotification(err)
		return fmt.Errorf("render subject: %w", err)
	}
	body, err := email.Render(bodyTemplate, data)
	if err != nil {
		n.metrics.IncNotification(err)
		return fmt.Errorf("render body: %w", err)
	}

	err = n.email.Send(ctx, []string{to}, subject, body)
	n.metrics.IncNotification(err)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	n.log.Debug("billing email sent",
		zap.String("bill_number", data.BillNumber),
		zap.String("subject", subject),
	)
	return nil
}

func billData(bill *domain.Bill, tenant *tenancydomain.Tenant) TemplateData {
	return TemplateData{
		TenantName: tenant.Name,
		BillNumber: bill.BillNumber,
		RoomName:   tenant.RoomName(),
		Period:     format.Period(bill.PeriodStart),
		Total:      format.Rupiah(bill.Total),
		DueDate:    format.Date(bill.DueDate),
	}
}

// ValidateTemplate checks that body renders against TemplateData.
func ValidateTemplate(body string) error {
	if err := email.Validate(body); err != nil {
		return err
	}
	_, err := email.Render(body, TemplateData{})
	return err
}
