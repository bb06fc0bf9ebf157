package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	billingdomain "github.com/smallbiznis/kost/internal/billing/domain"
	billingrepository "github.com/smallbiznis/kost/internal/billing/repository"
	"github.com/smallbiznis/kost/internal/clock"
	"github.com/smallbiznis/kost/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/kost/internal/payment/domain"
	"github.com/smallbiznis/kost/internal/payment/repository"
	"github.com/smallbiznis/kost/internal/providers/pdf"
	"github.com/smallbiznis/kost/internal/sequence"
	tenancydomain "github.com/smallbiznis/kost/internal/tenancy/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) BillGenerated(ctx context.Context, setting billingdomain.BillingSetting, bill *billingdomain.Bill, tenant *tenancydomain.Tenant) error {
	args := m.Called(ctx, setting, bill, tenant)
	return args.Error(0)
}

func (m *mockNotifier) PaymentConfirmed(ctx context.Context, setting billingdomain.BillingSetting, bill *billingdomain.Bill, payment *paymentdomain.Payment) error {
	args := m.Called(ctx, setting, bill, payment)
	return args.Error(0)
}

type testEnv struct {
	registry *prometheus.Registry
	db       *gorm.DB
	node     *snowflake.Node
	clock    *clock.FakeClock
	notifier *mockNotifier
	svc      paymentdomain.Service
}

var wib = time.FixedZone("WIB", 7*60*60)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:payment_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&tenancydomain.Property{},
		&tenancydomain.Room{},
		&tenancydomain.Tenant{},
		&paymentdomain.Payment{},
		&billingdomain.Bill{},
		&billingdomain.BillItem{},
		&billingdomain.BillingSetting{},
		&sequence.DocumentSequence{},
	))
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	registry := swapPrometheusRegistry(t)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	env := &testEnv{
		registry: registry,
		db:       setupTestDB(t),
		node:     node,
		clock:    clock.NewFakeClock(time.Date(2024, 3, 5, 10, 0, 0, 0, wib)),
		notifier: &mockNotifier{},
	}
	env.svc = NewService(Params{
		DB:         env.db,
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      env.clock,
		Repo:       repository.Provide(),
		BillRepo:   billingrepository.Provide(),
		Sequence:   sequence.New(),
		PDF:        pdf.New(),
		Notifier:   env.notifier,
		ObsMetrics: metrics.Billing(),
	})
	return env
}

func swapPrometheusRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	registry := prometheus.NewRegistry()
	oldRegisterer := prometheus.DefaultRegisterer
	oldGatherer := prometheus.DefaultGatherer
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
	metrics.ResetBillingMetricsForTest()
	t.Cleanup(func() {
		prometheus.DefaultRegisterer = oldRegisterer
		prometheus.DefaultGatherer = oldGatherer
		metrics.ResetBillingMetricsForTest()
	})
	return registry
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name, action string) float64 {
	t.Helper()
	families, err := registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			for _, label := range metric.Label {
				if label.GetName() == "action" && label.GetValue() == action {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s{action=%q} not found", name, action)
	return 0
}

// seedBill stores a tenant with room and one bill in the given status.
func (e *testEnv) seedBill(t *testing.T, number string, status billingdomain.BillStatus) *billingdomain.Bill {
	t.Helper()
	now := e.clock.Now()
	property := tenancydomain.Property{ID: e.node.Generate(), Name: "Kost Melati", Slug: fmt.Sprintf("melati-%d", e.node.Generate()), CreatedAt: now, UpdatedAt: now}
	require.NoError(t, e.db.Create(&property).Error)
	room := tenancydomain.Room{ID: e.node.Generate(), PropertyID: property.ID, Name: "A1", Price: 1500000, Capacity: 1, Status: tenancydomain.RoomStatusOccupied, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, e.db.Omit("Property").Create(&room).Error)
	tenant := tenancydomain.Tenant{ID: e.node.Generate(), RoomID: room.ID, Name: "Ani", Email: "ani@example.com", CheckInDate: now, IsActive: true, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, e.db.Omit("Room").Create(&tenant).Error)

	period := billingdomain.PeriodFor(now)
	bill := &billingdomain.Bill{
		ID:          e.node.Generate(),
		TenantID:    tenant.ID,
		BillNumber:  number,
		BillDate:    now,
		DueDate:     now.AddDate(0, 0, 7),
		PeriodStart: period.Start,
		PeriodEnd:   period.End,
		PeriodKey:   period.Key,
		Subtotal:    room.Price,
		Total:       room.Price,
		Status:      status,
		Items:       []billingdomain.BillItem{billingdomain.NewBillItem(e.node.Generate(), billingdomain.RoomRentDescription(room.Name), room.Price, 1, now)},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, billingrepository.Provide().InsertBill(context.Background(), e.db, bill))
	return bill
}

func (e *testEnv) billStatus(t *testing.T, id snowflake.ID) billingdomain.BillStatus {
	t.Helper()
	var bill billingdomain.Bill
	require.NoError(t, e.db.Where("id = ?", id).Take(&bill).Error)
	return bill.Status
}

func (e *testEnv) report(t *testing.T, number string) paymentdomain.Payment {
	t.Helper()
	payment, err := e.svc.ReportPayment(context.Background(), paymentdomain.ReportPaymentRequest{
		BillNumber:    number,
		Amount:        1500000,
		PaymentDate:   e.clock.Now(),
		PaymentMethod: "bank transfer",
	})
	require.NoError(t, err)
	return payment
}

func TestReportPayment(t *testing.T) {
	env := newTestEnv(t)
	env.seedBill(t, "INV-20240305-0001", billingdomain.BillStatusUnpaid)

	first := env.report(t, "INV-20240305-0001")
	assert.Equal(t, paymentdomain.PaymentStatusPending, first.Status)
	assert.Equal(t, "PAY-20240305-0001", first.PaymentNumber)
	assert.Nil(t, first.ConfirmedAt)

	second := env.report(t, "INV-20240305-0001")
	assert.Equal(t, "PAY-20240305-0002", second.PaymentNumber)

	payments, err := env.svc.ListByBill(context.Background(), "INV-20240305-0001")
	require.NoError(t, err)
	assert.Len(t, payments, 2)

	assert.Equal(t, 2.0, getCounterValue(t, env.registry, "kost_billing_payments_total", metrics.PaymentActionReported))
}

func TestReportPaymentValidation(t *testing.T) {
	env := newTestEnv(t)
	env.seedBill(t, "INV-20240305-0001", billingdomain.BillStatusUnpaid)
	env.seedBill(t, "INV-20240305-0002", billingdomain.BillStatusPaid)
	ctx := context.Background()

	_, err := env.svc.ReportPayment(ctx, paymentdomain.ReportPaymentRequest{BillNumber: "INV-20240305-0001", Amount: 0, PaymentDate: env.clock.Now()})
	var verrs validator.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "Amount", verrs[0].Field())

	_, err = env.svc.ReportPayment(ctx, paymentdomain.ReportPaymentRequest{BillNumber: "INV-20240305-0001", Amount: 10})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidPaymentDate)

	_, err = env.svc.ReportPayment(ctx, paymentdomain.ReportPaymentRequest{BillNumber: "INV-20990101-0001", Amount: 10, PaymentDate: env.clock.Now()})
	assert.ErrorIs(t, err, paymentdomain.ErrBillNotFound)

	_, err = env.svc.ReportPayment(ctx, paymentdomain.ReportPaymentRequest{BillNumber: "INV-20240305-0002", Amount: 10, PaymentDate: env.clock.Now()})
	assert.ErrorIs(t, err, paymentdomain.ErrBillNotPayable)

	var n int64
	require.NoError(t, env.db.Model(&paymentdomain.Payment{}).Count(&n).Error)
	assert.Equal(t, int64(0), n)
}

func TestConfirmCascadesToBill(t *testing.T) {
	env := newTestEnv(t)
	bill := env.seedBill(t, "INV-20240305-0001", billingdomain.BillStatusUnpaid)
	payment := env.report(t, bill.BillNumber)

	at := env.clock.Now().Add(time.Hour)
	result, err := env.svc.Confirm(context.Background(), paymentdomain.ConfirmRequest{
		PaymentID: payment.ID.String(),
		ActorID:   "admin-1",
		Now:       at,
	})
	require.NoError(t, err)
	confirmed := result.Payment
	assert.Equal(t, paymentdomain.PaymentStatusConfirmed, confirmed.Status)
	require.NotNil(t, confirmed.ConfirmedAt)
	assert.True(t, confirmed.ConfirmedAt.Equal(at))
	require.NotNil(t, confirmed.ConfirmedBy)
	assert.Equal(t, "admin-1", *confirmed.ConfirmedBy)
	assert.Equal(t, billingdomain.BillStatusPaid, env.billStatus(t, bill.ID))
	assert.Equal(t, bill.ID, result.Bill.ID)
	assert.Equal(t, bill.BillNumber, result.Bill.BillNumber)
	assert.Equal(t, string(billingdomain.BillStatusPaid), result.Bill.Status)

	// Notifications are off by default.
	env.notifier.AssertNotCalled(t, "PaymentConfirmed", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestConfirmSecondPaymentOnPaidBill(t *testing.T) {
	env := newTestEnv(t)
	bill := env.seedBill(t, "INV-20240305-0001", billingdomain.BillStatusUnpaid)
	first := env.report(t, bill.BillNumber)
	second := env.report(t, bill.BillNumber)

	_, err := env.svc.Confirm(context.Background(), paymentdomain.ConfirmRequest{PaymentID: first.ID.String(), ActorID: "admin-1"})
	require.NoError(t, err)
	confirmed, err := env.svc.Confirm(context.Background(), paymentdomain.ConfirmRequest{PaymentID: second.ID.String(), ActorID: "admin-1"})
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.PaymentStatusConfirmed, confirmed.Payment.Status)
	assert.Equal(t, string(billingdomain.BillStatusPaid), confirmed.Bill.Status)
	assert.Equal(t, billingdomain.BillStatusPaid, env.billStatus(t, bill.ID))
}

func TestConfirmCancelledBillRollsBack(t *testing.T) {
	env := newTestEnv(t)
	bill := env.seedBill(t, "INV-20240305-0001", billingdomain.BillStatusUnpaid)
	payment := env.report(t, bill.BillNumber)
	require.NoError(t, env.db.Model(&billingdomain.Bill{}).Where("id = ?", bill.ID).Update("status", billingdomain.BillStatusCancelled).Error)

	_, err := env.svc.Confirm(context.Background(), paymentdomain.ConfirmRequest{PaymentID: payment.ID.String(), ActorID: "admin-1"})
	assert.ErrorIs(t, err, paymentdomain.ErrBillNotPayable)

	stored, err := env.svc.GetByID(context.Background(), payment.ID.String())
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.PaymentStatusPending, stored.Status)
	assert.Nil(t, stored.ConfirmedAt)
}

func TestRejectLeavesBillUnpaid(t *testing.T) {
	env := newTestEnv(t)
	bill := env.seedBill(t, "INV-20240305-0001", billingdomain.BillStatusUnpaid)
	payment := env.report(t, bill.BillNumber)

	result, err := env.svc.Reject(context.Background(), paymentdomain.RejectRequest{
		PaymentID: payment.ID.String(),
		Reason:    "transfer not received",
		ActorID:   "admin-2",
	})
	require.NoError(t, err)
	rejected := result.Payment
	assert.Equal(t, paymentdomain.PaymentStatusRejected, rejected.Status)
	assert.Equal(t, "transfer not received", rejected.Notes)
	assert.Nil(t, rejected.ConfirmedAt)
	require.NotNil(t, rejected.ConfirmedBy)
	assert.Equal(t, "admin-2", *rejected.ConfirmedBy)
	assert.Equal(t, billingdomain.BillStatusUnpaid, env.billStatus(t, bill.ID))
	assert.Equal(t, bill.BillNumber, result.Bill.BillNumber)
	assert.Equal(t, string(billingdomain.BillStatusUnpaid), result.Bill.Status)
}

func TestRejectRequiresReason(t *testing.T) {
	env := newTestEnv(t)
	bill := env.seedBill(t, "INV-20240305-0001", billingdomain.BillStatusUnpaid)
	payment := env.report(t, bill.BillNumber)

	_, err := env.svc.Reject(context.Background(), paymentdomain.RejectRequest{PaymentID: payment.ID.String(), Reason: "   "})
	assert.ErrorIs(t, err, paymentdomain.ErrReasonRequired)

	stored, err := env.svc.GetByID(context.Background(), payment.ID.String())
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.PaymentStatusPending, stored.Status)
}

func TestDecisionsAreTerminal(t *testing.T) {
	env := newTestEnv(t)
	bill := env.seedBill(t, "INV-20240305-0001", billingdomain.BillStatusUnpaid)
	confirmedPayment := env.report(t, bill.BillNumber)
	rejectedPayment := env.report(t, bill.BillNumber)
	ctx := context.Background()

	_, err := env.svc.Reject(ctx, paymentdomain.RejectRequest{PaymentID: rejectedPayment.ID.String(), Reason: "duplicate"})
	require.NoError(t, err)
	_, err = env.svc.Confirm(ctx, paymentdomain.ConfirmRequest{PaymentID: confirmedPayment.ID.String()})
	require.NoError(t, err)

	_, err = env.svc.Confirm(ctx, paymentdomain.ConfirmRequest{PaymentID: confirmedPayment.ID.String()})
	assert.ErrorIs(t, err, paymentdomain.ErrNotFound)
	_, err = env.svc.Reject(ctx, paymentdomain.RejectRequest{PaymentID: confirmedPayment.ID.String(), Reason: "late"})
	assert.ErrorIs(t, err, paymentdomain.ErrNotFound)
	_, err = env.svc.Confirm(ctx, paymentdomain.ConfirmRequest{PaymentID: rejectedPayment.ID.String()})
	assert.ErrorIs(t, err, paymentdomain.ErrNotFound)

	stored, err := env.svc.GetByID(ctx, rejectedPayment.ID.String())
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.PaymentStatusRejected, stored.Status)
	assert.Equal(t, "duplicate", stored.Notes)

	_, err = env.svc.Confirm(ctx, paymentdomain.ConfirmRequest{PaymentID: env.node.Generate().String()})
	assert.ErrorIs(t, err, paymentdomain.ErrNotFound)
	_, err = env.svc.Confirm(ctx, paymentdomain.ConfirmRequest{PaymentID: "not-an-id"})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidID)
}

func TestFailedRedecisionLeavesBillUnpaid(t *testing.T) {
	env := newTestEnv(t)
	bill := env.seedBill(t, "INV-20240305-0001", billingdomain.BillStatusUnpaid)
	payment := env.report(t, bill.BillNumber)
	ctx := context.Background()

	_, err := env.svc.Reject(ctx, paymentdomain.RejectRequest{PaymentID: payment.ID.String(), Reason: "wrong amount", ActorID: "admin-1"})
	require.NoError(t, err)

	_, err = env.svc.Confirm(ctx, paymentdomain.ConfirmRequest{PaymentID: payment.ID.String(), ActorID: "admin-1"})
	assert.ErrorIs(t, err, paymentdomain.ErrNotFound)
	_, err = env.svc.Reject(ctx, paymentdomain.RejectRequest{PaymentID: payment.ID.String(), Reason: "again", ActorID: "admin-1"})
	assert.ErrorIs(t, err, paymentdomain.ErrNotFound)

	assert.Equal(t, billingdomain.BillStatusUnpaid, env.billStatus(t, bill.ID))
	stored, err := env.svc.GetByID(ctx, payment.ID.String())
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.PaymentStatusRejected, stored.Status)
	assert.Equal(t, "wrong amount", stored.Notes)
}

func TestConfirmNotifiesWhenEnabled(t *testing.T) {
	env := newTestEnv(t)
	bill := env.seedBill(t, "INV-20240305-0001", billingdomain.BillStatusUnpaid)
	payment := env.report(t, bill.BillNumber)

	setting := billingdomain.DefaultBillingSetting()
	setting.NotifyOnPayment = true
	require.NoError(t, billingrepository.Provide().SaveSetting(context.Background(), env.db, &setting))

	env.notifier.On("PaymentConfirmed", mock.Anything, mock.Anything,
		mock.MatchedBy(func(b *billingdomain.Bill) bool { return b.Tenant != nil && b.Tenant.Name == "Ani" }),
		mock.Anything,
	).Return(nil).Once()

	_, err := env.svc.Confirm(context.Background(), paymentdomain.ConfirmRequest{PaymentID: payment.ID.String(), ActorID: "admin-1"})
	require.NoError(t, err)
	env.notifier.AssertExpectations(t)
}

func TestRenderReceipt(t *testing.T) {
	env := newTestEnv(t)
	bill := env.seedBill(t, "INV-20240305-0001", billingdomain.BillStatusUnpaid)
	payment := env.report(t, bill.BillNumber)
	ctx := context.Background()

	_, err := env.svc.RenderReceipt(ctx, payment.ID.String())
	assert.ErrorIs(t, err, paymentdomain.ErrReceiptNotReady)

	_, err = env.svc.Confirm(ctx, paymentdomain.ConfirmRequest{PaymentID: payment.ID.String(), ActorID: "admin-1"})
	require.NoError(t, err)

	out, err := env.svc.RenderReceipt(ctx, payment.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(out[:4]))
}
