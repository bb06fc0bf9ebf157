package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/kost/internal/billing/domain"
	"github.com/smallbiznis/kost/internal/billing/repository"
	"github.com/smallbiznis/kost/internal/clock"
	paymentdomain "github.com/smallbiznis/kost/internal/payment/domain"
	"github.com/smallbiznis/kost/internal/providers/pdf"
	"github.com/smallbiznis/kost/internal/sequence"
	tenancydomain "github.com/smallbiznis/kost/internal/tenancy/domain"
	tenancyrepository "github.com/smallbiznis/kost/internal/tenancy/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var jakarta = time.FixedZone("WIB", 7*60*60)

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) BillGenerated(ctx context.Context, setting domain.BillingSetting, bill *domain.Bill, tenant *tenancydomain.Tenant) error {
	args := m.Called(ctx, setting, bill, tenant)
	return args.Error(0)
}

func (m *mockNotifier) PaymentConfirmed(ctx context.Context, setting domain.BillingSetting, bill *domain.Bill, payment *paymentdomain.Payment) error {
	args := m.Called(ctx, setting, bill, payment)
	return args.Error(0)
}

// failingRepo fails InsertBill for one tenant and optionally hides existing
// bills from the fast-path check.
type failingRepo struct {
	domain.Repository
	failTenant snowflake.ID
	blindCheck bool
}

func (r *failingRepo) InsertBill(ctx context.Context, db *gorm.DB, bill *domain.Bill) error {
	if bill.TenantID == r.failTenant {
		return errors.New("disk full")
	}
	return r.Repository.InsertBill(ctx, db, bill)
}

func (r *failingRepo) ExistsForPeriod(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, periodKey string) (bool, error) {
	if r.blindCheck {
		return false, nil
	}
	return r.Repository.ExistsForPeriod(ctx, db, tenantID, periodKey)
}

// roomlessTenants drops the preloaded room from every active tenant.
type roomlessTenants struct {
	tenancydomain.Repository
}

func (r roomlessTenants) ListActive(ctx context.Context, db *gorm.DB) ([]*tenancydomain.Tenant, error) {
	tenants, err := r.Repository.ListActive(ctx, db)
	for _, tenant := range tenants {
		tenant.Room = nil
	}
	return tenants, err
}

// cancellingTenants cancels the run right after the tenants are listed.
type cancellingTenants struct {
	tenancydomain.Repository
	cancel context.CancelFunc
}

func (r cancellingTenants) ListActive(ctx context.Context, db *gorm.DB) ([]*tenancydomain.Tenant, error) {
	tenants, err := r.Repository.ListActive(ctx, db)
	r.cancel()
	return tenants, err
}

// cancellingRepo cancels the run when the nth tenant is checked.
type cancellingRepo struct {
	domain.Repository
	cancel   context.CancelFunc
	cancelAt int
	checks   int
}

func (r *cancellingRepo) ExistsForPeriod(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, periodKey string) (bool, error) {
	r.checks++
	if r.checks == r.cancelAt {
		r.cancel()
		return false, ctx.Err()
	}
	return r.Repository.ExistsForPeriod(ctx, db, tenantID, periodKey)
}

type fixture struct {
	db         *gorm.DB
	node       *snowflake.Node
	clock      *clock.FakeClock
	notifier   *mockNotifier
	repo       domain.Repository
	tenantRepo tenancydomain.Repository
	svc        *Service
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:billing_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&tenancydomain.Property{},
		&tenancydomain.Room{},
		&tenancydomain.Tenant{},
		&paymentdomain.Payment{},
		&domain.Bill{},
		&domain.BillItem{},
		&domain.BillingSetting{},
		&sequence.DocumentSequence{},
	))
	return db
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	db := setupTestDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	f := &fixture{
		db:         db,
		node:       node,
		clock:      clock.NewFakeClock(now),
		notifier:   &mockNotifier{},
		repo:       repository.Provide(),
		tenantRepo: tenancyrepository.Provide(),
	}
	f.notifier.On("BillGenerated", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	f.rebuild()
	return f
}

func (f *fixture) rebuild() {
	f.svc = New(Params{
		DB:         f.db,
		Log:        zap.NewNop(),
		GenID:      f.node,
		Clock:      f.clock,
		Repo:       f.repo,
		TenantRepo: f.tenantRepo,
		Sequence:   sequence.New(),
		PDF:        pdf.New(),
		Notifier:   f.notifier,
	}).(*Service)
}

func (f *fixture) addTenant(t *testing.T, name, roomName string, price int64, active bool) *tenancydomain.Tenant {
	t.Helper()
	now := f.clock.Now()
	property := tenancydomain.Property{ID: f.node.Generate(), Name: "Kost " + name, Slug: fmt.Sprintf("kost-%d", f.node.Generate()), CreatedAt: now, UpdatedAt: now}
	require.NoError(t, f.db.Create(&property).Error)
	room := tenancydomain.Room{ID: f.node.Generate(), PropertyID: property.ID, Name: roomName, Price: price, Capacity: 1, Status: tenancydomain.RoomStatusOccupied, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, f.db.Omit("Property").Create(&room).Error)
	tenant := tenancydomain.Tenant{ID: f.node.Generate(), RoomID: room.ID, Name: name, Email: name + "@example.com", CheckInDate: now.AddDate(0, -1, 0), IsActive: true, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, f.db.Omit("Room").Create(&tenant).Error)
	if !active {
		require.NoError(t, f.db.Model(&tenancydomain.Tenant{}).Where("id = ?", tenant.ID).Update("is_active", false).Error)
	}
	return &tenant
}

func countBills(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&domain.Bill{}).Count(&n).Error)
	return n
}

func TestGenerateMonthlyBills_EmptyBatch(t *testing.T) {
	f := newFixture(t, time.Date(2024, 3, 1, 0, 0, 0, 0, jakarta))

	summary, err := f.svc.GenerateMonthlyBills(context.Background(), f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.TenantsConsidered)
	assert.Equal(t, 0, summary.Generated)
	assert.Equal(t, 0, summary.Skipped)
	assert.Equal(t, 0, summary.Failed)
	assert.Empty(t, summary.Results)
	assert.Equal(t, int64(0), countBills(t, f.db))
}

func TestGenerateMonthlyBills_CreatesOneBillPerActiveTenant(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, jakarta)
	f := newFixture(t, now)
	ani := f.addTenant(t, "ani", "A1", 1500000, true)
	budi := f.addTenant(t, "budi", "B2", 1250000, true)
	f.addTenant(t, "citra", "C3", 900000, false)

	summary, err := f.svc.GenerateMonthlyBills(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TenantsConsidered)
	assert.Equal(t, 2, summary.Generated)
	assert.Equal(t, 0, summary.Skipped)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, "2024-03", summary.PeriodKey)
	require.Len(t, summary.Results, 2)

	numbers := []string{summary.Results[0].BillNumber, summary.Results[1].BillNumber}
	assert.ElementsMatch(t, []string{"INV-20240301-0001", "INV-20240301-0002"}, numbers)

	for _, tenant := range []*tenancydomain.Tenant{ani, budi} {
		var bill domain.Bill
		require.NoError(t, f.db.Preload("Items").Where("tenant_id = ?", tenant.ID).Take(&bill).Error)
		require.Len(t, bill.Items, 1)

		var room tenancydomain.Room
		require.NoError(t, f.db.Where("id = ?", tenant.RoomID).Take(&room).Error)

		assert.Equal(t, room.Price, bill.Total)
		assert.Equal(t, bill.Subtotal, bill.Total)
		assert.Equal(t, bill.ItemsTotal(), bill.Total)
		assert.Equal(t, domain.RoomRentDescription(room.Name), bill.Items[0].Description)
		assert.Equal(t, room.Name, bill.Metadata["room_name"])
		assert.EqualValues(t, room.Price, bill.Metadata["room_price"])
		assert.Equal(t, int64(1), bill.Items[0].Quantity)
		assert.Equal(t, domain.BillStatusUnpaid, bill.Status)
		assert.True(t, bill.DueDate.Equal(now.AddDate(0, 0, 7)))
		assert.True(t, bill.PeriodStart.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, jakarta)))
		assert.True(t, bill.PeriodEnd.Equal(time.Date(2024, 3, 31, 0, 0, 0, 0, jakarta)))
	}

	f.notifier.AssertNumberOfCalls(t, "BillGenerated", 2)
}

func TestGenerateMonthlyBills_SecondRunSkips(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, jakarta)
	f := newFixture(t, now)
	f.addTenant(t, "ani", "A1", 1500000, true)
	f.addTenant(t, "budi", "B2", 1250000, true)

	_, err := f.svc.GenerateMonthlyBills(context.Background(), now)
	require.NoError(t, err)

	later := now.AddDate(0, 0, 10)
	summary, err := f.svc.GenerateMonthlyBills(context.Background(), later)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Generated)
	assert.Equal(t, 2, summary.Skipped)
	for _, result := range summary.Results {
		assert.Equal(t, domain.OutcomeSkipped, result.Outcome)
		assert.Equal(t, domain.SkipReasonAlreadyExists, result.Error)
	}
	assert.Equal(t, int64(2), countBills(t, f.db))
}

func TestGenerateMonthlyBills_UniqueIndexFallback(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, jakarta)
	f := newFixture(t, now)
	f.addTenant(t, "ani", "A1", 1500000, true)

	_, err := f.svc.GenerateMonthlyBills(context.Background(), now)
	require.NoError(t, err)

	// Simulates a concurrent run that passed the existence check.
	f.repo = &failingRepo{Repository: repository.Provide(), blindCheck: true}
	f.rebuild()

	summary, err := f.svc.GenerateMonthlyBills(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, int64(1), countBills(t, f.db))
}

func TestGenerateMonthlyBills_PartialFailureIsolated(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, jakarta)
	f := newFixture(t, now)
	f.addTenant(t, "ani", "A1", 1500000, true)
	budi := f.addTenant(t, "budi", "B2", 1250000, true)
	f.addTenant(t, "citra", "C3", 900000, true)

	f.repo = &failingRepo{Repository: repository.Provide(), failTenant: budi.ID}
	f.rebuild()

	summary, err := f.svc.GenerateMonthlyBills(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.TenantsConsidered)
	assert.Equal(t, 2, summary.Generated)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, summary.TenantsConsidered, summary.Generated+summary.Skipped+summary.Failed)

	var failed domain.TenantResult
	for _, result := range summary.Results {
		if result.Outcome == domain.OutcomeFailed {
			failed = result
		}
	}
	assert.Equal(t, budi.ID, failed.TenantID)
	assert.Contains(t, failed.Error, "disk full")

	var n int64
	require.NoError(t, f.db.Model(&domain.Bill{}).Where("tenant_id = ?", budi.ID).Count(&n).Error)
	assert.Equal(t, int64(0), n)

	// The failed tenant's number was rolled back with its transaction.
	var numbers []string
	require.NoError(t, f.db.Model(&domain.Bill{}).Order("bill_number").Pluck("bill_number", &numbers).Error)
	assert.Equal(t, []string{"INV-20240301-0001", "INV-20240301-0002"}, numbers)
}

func TestGenerateMonthlyBills_CancelledBeforeFirstTenant(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, jakarta)
	f := newFixture(t, now)
	f.addTenant(t, "ani", "A1", 1500000, true)
	f.addTenant(t, "budi", "B2", 1250000, true)
	f.addTenant(t, "citra", "C3", 900000, true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.tenantRepo = cancellingTenants{Repository: tenancyrepository.Provide(), cancel: cancel}
	f.rebuild()

	summary, err := f.svc.GenerateMonthlyBills(ctx, now)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, summary.TenantsConsidered)
	assert.Equal(t, 0, summary.Generated)
	assert.Equal(t, 0, summary.Failed)
	assert.Empty(t, summary.Results)
	assert.Equal(t, int64(0), countBills(t, f.db))
}

func TestGenerateMonthlyBills_CancelledMidRunKeepsCommittedBills(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, jakarta)
	f := newFixture(t, now)
	f.addTenant(t, "ani", "A1", 1500000, true)
	f.addTenant(t, "budi", "B2", 1250000, true)
	f.addTenant(t, "citra", "C3", 900000, true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.repo = &cancellingRepo{Repository: repository.Provide(), cancel: cancel, cancelAt: 2}
	f.rebuild()

	summary, err := f.svc.GenerateMonthlyBills(ctx, now)
	require.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "after 1 of 3 tenants")
	assert.Equal(t, 1, summary.Generated)
	assert.Equal(t, 0, summary.Failed)
	require.Len(t, summary.Results, 1)
	assert.Equal(t, domain.OutcomeGenerated, summary.Results[0].Outcome)
	assert.Equal(t, int64(1), countBills(t, f.db))
	f.notifier.AssertNumberOfCalls(t, "BillGenerated", 1)
}

func TestGenerateMonthlyBills_MissingRoomFails(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, jakarta)
	f := newFixture(t, now)
	f.addTenant(t, "ani", "A1", 1500000, true)
	f.tenantRepo = roomlessTenants{Repository: tenancyrepository.Provide()}
	f.rebuild()

	summary, err := f.svc.GenerateMonthlyBills(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, domain.ErrRoomMissing.Error(), summary.Results[0].Error)
}

func TestGenerateMonthlyBills_UsesConfiguredDueDays(t *testing.T) {
	now := time.Date(2024, 3, 5, 9, 0, 0, 0, jakarta)
	f := newFixture(t, now)
	f.addTenant(t, "ani", "A1", 1500000, true)

	dueDays := 14
	_, err := f.svc.UpdateSetting(context.Background(), domain.UpdateSettingRequest{DueDays: &dueDays})
	require.NoError(t, err)

	_, err = f.svc.GenerateMonthlyBills(context.Background(), now)
	require.NoError(t, err)

	var bill domain.Bill
	require.NoError(t, f.db.Take(&bill).Error)
	assert.True(t, bill.DueDate.Equal(now.AddDate(0, 0, 14)))
	assert.True(t, bill.BillDate.Equal(now))
}

func TestGenerateMonthlyBills_NotificationFailureIsNotCounted(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, jakarta)
	f := newFixture(t, now)
	f.notifier = &mockNotifier{}
	f.notifier.On("BillGenerated", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp down"))
	f.rebuild()
	f.addTenant(t, "ani", "A1", 1500000, true)

	summary, err := f.svc.GenerateMonthlyBills(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Generated)
	assert.Equal(t, 0, summary.Failed)
	f.notifier.AssertExpectations(t)
}

func TestGetBillByNumber(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, jakarta)
	f := newFixture(t, now)
	f.addTenant(t, "ani", "A1", 1500000, true)
	_, err := f.svc.GenerateMonthlyBills(context.Background(), now)
	require.NoError(t, err)

	view, err := f.svc.GetBillByNumber(context.Background(), "INV-20240301-0001")
	require.NoError(t, err)
	require.NotNil(t, view.Tenant)
	require.NotNil(t, view.Tenant.Room)
	require.NotNil(t, view.Tenant.Room.Property)
	assert.Equal(t, "A1", view.Tenant.Room.Name)
	assert.Len(t, view.Items, 1)
	assert.Equal(t, "unpaid", view.DisplayStatus)
	assert.False(t, view.Overdue)

	f.clock.Set(now.AddDate(0, 0, 8))
	view, err = f.svc.GetBillByNumber(context.Background(), "INV-20240301-0001")
	require.NoError(t, err)
	assert.Equal(t, domain.DisplayStatusOverdue, view.DisplayStatus)
	assert.Equal(t, domain.BillStatusUnpaid, view.Status)

	_, err = f.svc.GetBillByNumber(context.Background(), "INV-20990101-0001")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListBills(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, jakarta)
	f := newFixture(t, now)
	for i := 0; i < 3; i++ {
		f.addTenant(t, fmt.Sprintf("t%d", i), fmt.Sprintf("R%d", i), 1000000, true)
	}
	_, err := f.svc.GenerateMonthlyBills(context.Background(), now)
	require.NoError(t, err)

	first, err := f.svc.ListBills(context.Background(), domain.ListBillsRequest{PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, first.Bills, 2)
	assert.True(t, first.HasMore)
	require.NotEmpty(t, first.NextPageToken)

	second, err := f.svc.ListBills(context.Background(), domain.ListBillsRequest{PageSize: 2, PageToken: first.NextPageToken})
	require.NoError(t, err)
	assert.Len(t, second.Bills, 1)
	assert.False(t, second.HasMore)

	_, err = f.svc.ListBills(context.Background(), domain.ListBillsRequest{Status: "bogus"})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)

	_, err = f.svc.ListBills(context.Background(), domain.ListBillsRequest{PeriodKey: "2024-13"})
	assert.ErrorIs(t, err, domain.ErrInvalidPeriod)

	f.clock.Set(now.AddDate(0, 0, 9))
	overdue, err := f.svc.ListBills(context.Background(), domain.ListBillsRequest{Status: "overdue"})
	require.NoError(t, err)
	assert.Len(t, overdue.Bills, 3)
	for _, bill := range overdue.Bills {
		assert.True(t, bill.Overdue)
	}
}

func TestSettings(t *testing.T) {
	f := newFixture(t, time.Date(2024, 3, 1, 0, 0, 0, 0, jakarta))

	setting, err := f.svc.GetSetting(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultBillingSetting(), setting)

	disabled := false
	day := 5
	updated, err := f.svc.UpdateSetting(context.Background(), domain.UpdateSettingRequest{
		AutoGenerateEnabled: &disabled,
		GenerationDay:       &day,
	})
	require.NoError(t, err)
	assert.False(t, updated.AutoGenerateEnabled)
	assert.Equal(t, 5, updated.GenerationDay)
	assert.Equal(t, domain.DefaultDueDays, updated.DueDays)

	stored, err := f.svc.GetSetting(context.Background())
	require.NoError(t, err)
	assert.False(t, stored.AutoGenerateEnabled)
	assert.Equal(t, 5, stored.GenerationDay)

	badDay := 31
	_, err = f.svc.UpdateSetting(context.Background(), domain.UpdateSettingRequest{GenerationDay: &badDay})
	assert.Error(t, err)

	badTemplate := "{{.TenantName"
	_, err = f.svc.UpdateSetting(context.Background(), domain.UpdateSettingRequest{EmailTemplate: &badTemplate})
	assert.ErrorIs(t, err, domain.ErrInvalidEmailTemplate)
}

func TestRenderInvoice(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, jakarta)
	f := newFixture(t, now)
	f.addTenant(t, "ani", "A1", 1500000, true)
	_, err := f.svc.GenerateMonthlyBills(context.Background(), now)
	require.NoError(t, err)

	out, err := f.svc.RenderInvoice(context.Background(), "INV-20240301-0001")
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(out[:4]))

	_, err = f.svc.RenderInvoice(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestInvoiceDataFormatsAmounts(t *testing.T) {
	bill := domain.Bill{
		BillNumber:  "INV-20240301-0001",
		BillDate:    time.Date(2024, 3, 1, 0, 0, 0, 0, jakarta),
		DueDate:     time.Date(2024, 3, 8, 0, 0, 0, 0, jakarta),
		PeriodStart: time.Date(2024, 3, 1, 0, 0, 0, 0, jakarta),
		Total:       1500000,
		Status:      domain.BillStatusPaid,
		Items:       []domain.BillItem{domain.NewBillItem(1, "Room rent – A1", 1500000, 1, time.Now())},
		Tenant: &tenancydomain.Tenant{
			Name: "Ani",
			Room: &tenancydomain.Room{Name: "A1", Property: &tenancydomain.Property{Name: "Kost Melati"}},
		},
	}

	data := InvoiceData(bill, time.Date(2024, 4, 1, 0, 0, 0, 0, jakarta))
	assert.Equal(t, "Rp 1.500.000", data.Total)
	assert.Equal(t, "PAID", data.Status)
	assert.Equal(t, "Kost Melati", data.PropertyName)
	assert.Equal(t, "March 2024", data.Period)
	require.Len(t, data.Items, 1)
	assert.Equal(t, 1, data.Items[0].Qty)
}
