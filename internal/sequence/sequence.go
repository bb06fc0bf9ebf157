package sequence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/kost/internal/billing/format"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrSequenceExhausted = errors.New("sequence_exhausted")
	ErrInvalidPrefix     = errors.New("invalid_prefix")
)

// DocumentSequence is the per-prefix, per-day counter behind bill and
// payment numbers.
type DocumentSequence struct {
	Prefix    string    `gorm:"primaryKey;size:8"`
	Day       string    `gorm:"primaryKey;size:8"`
	LastValue int64     `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (DocumentSequence) TableName() string { return "document_sequences" }

// Generator hands out document numbers. Next must run inside the caller's
// transaction so the number is released if that transaction rolls back.
type Generator interface {
	Next(ctx context.Context, tx *gorm.DB, prefix string, at time.Time) (string, error)
}

type counter struct {
	template string
	max      int64
}

func New() Generator {
	return NewWithTemplate(format.DefaultDocumentNumberTemplate)
}

func NewWithTemplate(template string) Generator {
	return &counter{
		template: template,
		max:      format.MaxSequence(template),
	}
}

// Next bumps the counter for (prefix, day of at) with a single upsert and
// reads the value back in the same transaction. Concurrent callers
// serialize on the counter row.
func (c *counter) Next(ctx context.Context, tx *gorm.DB, prefix string, at time.Time) (string, error) {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		return "", ErrInvalidPrefix
	}
	day := at.Format("20060102")

	row := DocumentSequence{
		Prefix:    prefix,
		Day:       day,
		LastValue: 1,
		UpdatedAt: at,
	}
	err := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "prefix"}, {Name: "day"}},
			DoUpdates: clause.Assignments(map[string]any{
				"last_value": gorm.Expr("document_sequences.last_value + 1"),
				"updated_at": at,
			}),
		}).
		Create(&row).Error
	if err != nil {
		return "", fmt.Errorf("bump %s sequence: %w", prefix, err)
	}

	var current DocumentSequence
	if err := tx.WithContext(ctx).
		Where("prefix = ? AND day = ?", prefix, day).
		Take(&current).Error; err != nil {
		return "", fmt.Errorf("read %s sequence: %w", prefix, err)
	}

	if c.max > 0 && current.LastValue > c.max {
		return "", ErrSequenceExhausted
	}
	return format.FormatDocumentNumber(c.template, prefix, at, current.LastValue)
}
