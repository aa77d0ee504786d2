package db

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/wildroots/wildroots-backend/pkg/config"
	"github.com/wildroots/wildroots-backend/pkg/logger"
)

type ledgerRow struct {
	ID     int
	Amount int64
}

func openSQLite(t *testing.T, logg *logger.Logger) *Client {
	t.Helper()
	client, err := New(context.Background(), config.DBConfig{
		Driver:             config.DBDriverSQLite,
		DSN:                filepath.Join(t.TempDir(), "ledger.db"),
		MaxOpenConns:       20,
		MaxIdleConns:       10,
		SlowQueryThreshold: time.Hour,
	}, logg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.DB().AutoMigrate(&ledgerRow{}))
	return client
}

func countRows(t *testing.T, client *Client) int64 {
	t.Helper()
	var count int64
	require.NoError(t, client.DB().Model(&ledgerRow{}).Count(&count).Error)
	return count
}

func TestNewRequiresDSN(t *testing.T) {
	_, err := New(context.Background(), config.DBConfig{Driver: config.DBDriverSQLite}, nil)
	assert.ErrorIs(t, err, errDSNRequired)
}

func TestNewLimitsSQLiteToOneConnection(t *testing.T) {
	client := openSQLite(t, nil)
	sqlDB, err := client.DB().DB()
	require.NoError(t, err)
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
	assert.NoError(t, client.Ping(context.Background()))
}

func TestWithTxCommitsAndRollsBack(t *testing.T) {
	client := openSQLite(t, nil)
	ctx := context.Background()

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&ledgerRow{Amount: 500}).Error
	}))
	assert.EqualValues(t, 1, countRows(t, client))

	boom := errors.New("boom")
	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&ledgerRow{Amount: 700}).Error; err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.EqualValues(t, 1, countRows(t, client))

	assert.Panics(t, func() {
		_ = client.WithTx(ctx, func(tx *gorm.DB) error {
			tx.Create(&ledgerRow{Amount: 900})
			panic("mid-transaction")
		})
	})
	assert.EqualValues(t, 1, countRows(t, client))
}

func TestSQLiteDSNAddsMissingParams(t *testing.T) {
	assert.Equal(t, "ledger.db?_busy_timeout=5000&_txlock=immediate", sqliteDSN("ledger.db"))
	assert.Equal(t, "file:x?mode=memory&_busy_timeout=100&_txlock=immediate", sqliteDSN("file:x?mode=memory&_busy_timeout=100"))
	assert.Equal(t, "x.db?_busy_timeout=1&_txlock=deferred", sqliteDSN("x.db?_busy_timeout=1&_txlock=deferred"))
}

func TestQueryLoggerReportsFailuresOnly(t *testing.T) {
	var buf bytes.Buffer
	client := openSQLite(t, logger.New(logger.Options{ServiceName: "db-test", Output: &buf}))
	buf.Reset()

	var row ledgerRow
	err := client.DB().First(&row, 42).Error
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.Empty(t, buf.String())

	err = client.DB().Exec("SELECT * FROM no_such_table").Error
	require.Error(t, err)
	assert.Contains(t, buf.String(), "query failed")
	assert.Contains(t, buf.String(), "no_such_table")
}
