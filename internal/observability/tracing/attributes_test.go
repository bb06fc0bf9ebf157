package tracing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsContactDetails(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("bill.number", "INV-20240101-0001"),
		attribute.String("tenant.email", "a@example.com"),
		attribute.String("tenant.phone", "0812"),
	)
	assert.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key("bill.number"), attrs[0].Key)
}

func TestSafeError(t *testing.T) {
	assert.Nil(t, SafeError(nil))
	assert.EqualError(t, SafeError(errors.New("insert bill\nSQL: INSERT ...")), "insert bill")
}

func TestClampRatio(t *testing.T) {
	assert.Equal(t, 0.0, clampRatio(-1))
	assert.Equal(t, 1.0, clampRatio(3))
	assert.Equal(t, 0.25, clampRatio(0.25))
}
