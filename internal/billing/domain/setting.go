package domain

import "time"

const (
	SettingID             = 1
	DefaultGenerationDay  = 1
	DefaultDueDays        = 7
	MaxGenerationDay      = 28
	DefaultEmailSubject   = "Bill {{.BillNumber}} for {{.Period}}"
	DefaultPaymentSubject = "Payment {{.PaymentNumber}} confirmed"
)

const DefaultEmailTemplate = `<p>Hello {{.TenantName}},</p>
<p>Your bill <strong>{{.BillNumber}}</strong> for room {{.RoomName}} covering {{.Period}} has been issued.</p>
<p>Amount due: <strong>{{.Total}}</strong><br>Due date: {{.DueDate}}</p>
<p>Please report your transfer once paid. Thank you.</p>`

const DefaultPaymentTemplate = `<p>Hello {{.TenantName}},</p>
<p>We have confirmed payment <strong>{{.PaymentNumber}}</strong> of {{.Amount}} for bill {{.BillNumber}}.</p>
<p>Thank you.</p>`

// BillingSetting is the single row of admin billing preferences. Columns
// carry no database defaults so that false and zero values persist.
type BillingSetting struct {
	ID                  int       `gorm:"primaryKey;autoIncrement:false" json:"-"`
	AutoGenerateEnabled bool      `gorm:"not null" json:"auto_generate_enabled"`
	GenerationDay       int       `gorm:"not null" json:"generation_day"`
	DueDays             int       `gorm:"not null" json:"due_days"`
	NotifyOnGenerate    bool      `gorm:"not null" json:"notify_on_generate"`
	NotifyOnPayment     bool      `gorm:"not null" json:"notify_on_payment"`
	EmailTemplate       string    `gorm:"type:text" json:"email_template"`
	UpdatedAt           time.Time `gorm:"not null" json:"updated_at"`
}

func (BillingSetting) TableName() string { return "billing_settings" }

func DefaultBillingSetting() BillingSetting {
	return BillingSetting{
		ID:                  SettingID,
		AutoGenerateEnabled: true,
		GenerationDay:       DefaultGenerationDay,
		DueDays:             DefaultDueDays,
		EmailTemplate:       DefaultEmailTemplate,
	}
}

// EffectiveDueDays falls back to the default when unset.
func (s BillingSetting) EffectiveDueDays() int {
	if s.DueDays <= 0 {
		return DefaultDueDays
	}
	return s.DueDays
}

func (s BillingSetting) Template() string {
	if s.EmailTemplate == "" {
		return DefaultEmailTemplate
	}
	return s.EmailTemplate
}

// DueOn reports whether the scheduled run should generate bills today.
func (s BillingSetting) DueOn(today time.Time) bool {
	return s.AutoGenerateEnabled && today.Day() == s.GenerationDay
}
