package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	gormlogger "gorm.io/gorm/logger"
)

func TestOperationFromSQL(t *testing.T) {
	assert.Equal(t, "SELECT", operationFromSQL(`SELECT * FROM "bills" WHERE id = 1`))
	assert.Equal(t, "INSERT", operationFromSQL(`WITH x AS (SELECT 1) INSERT INTO bills VALUES (1)`))
	assert.Equal(t, "UNKNOWN", operationFromSQL(""))
}

func TestTableFromSQL(t *testing.T) {
	assert.Equal(t, "bills", tableFromSQL(`SELECT * FROM "bills" WHERE id = 1`))
	assert.Equal(t, "payments", tableFromSQL(`UPDATE "payments" SET status = 'confirmed'`))
	assert.Equal(t, "document_sequences", tableFromSQL(`INSERT INTO document_sequences (prefix) VALUES ('INV')`))
	assert.Empty(t, tableFromSQL("BEGIN"))
}

func TestGormLoggerConfigFor(t *testing.T) {
	assert.Equal(t, gormlogger.Info, GormLoggerConfigFor("debug").Level)
	assert.Equal(t, gormlogger.Warn, GormLoggerConfigFor("info").Level)
	assert.Equal(t, gormlogger.Silent, GormLoggerConfigFor("off").Level)
	assert.True(t, GormLoggerConfigFor("info").IgnoreRecordNotFound)
}
