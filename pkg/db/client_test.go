package db

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/carrental-backend/pkg/config"
)

type ledgerRow struct {
	ID   int
	Note string
}

func openMemory(t *testing.T) *Client {
	t.Helper()
	client, err := New(context.Background(), config.DBConfig{
		Driver:       DriverSQLite,
		DSN:          "file:" + uuid.NewString() + "?mode=memory&cache=shared",
		MaxOpenConns: 1,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.DB().AutoMigrate(&ledgerRow{}))
	return client
}

func rowCount(t *testing.T, c *Client) int64 {
	t.Helper()
	var n int64
	require.NoError(t, c.DB().Model(&ledgerRow{}).Count(&n).Error)
	return n
}

func TestNewRequiresDSN(t *testing.T) {
	_, err := New(context.Background(), config.DBConfig{Driver: DriverSQLite}, nil)
	require.Error(t, err)
}

func TestNewAppliesPoolLimits(t *testing.T) {
	client := openMemory(t)
	require.NoError(t, client.Ping(context.Background()))

	pool, err := client.DB().DB()
	require.NoError(t, err)
	assert.Equal(t, 1, pool.Stats().MaxOpenConnections)
}

func TestWithTxCommitsOrRollsBack(t *testing.T) {
	client := openMemory(t)
	ctx := context.Background()

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&ledgerRow{Note: "kept"}).Error
	}))
	require.EqualValues(t, 1, rowCount(t, client))

	boom := errors.New("boom")
	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&ledgerRow{Note: "discarded"}).Error; err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.EqualValues(t, 1, rowCount(t, client))
}

func TestWithTxRollsBackAndRepanics(t *testing.T) {
	client := openMemory(t)

	require.Panics(t, func() {
		_ = client.WithTx(context.Background(), func(tx *gorm.DB) error {
			if err := tx.Create(&ledgerRow{Note: "half-written"}).Error; err != nil {
				return err
			}
			panic("boom")
		})
	})
	require.EqualValues(t, 0, rowCount(t, client))
}

func TestDialectorFor(t *testing.T) {
	assert.Equal(t, "sqlite", dialectorFor(config.DBConfig{Driver: DriverSQLite, DSN: "file::memory:"}).Name())
	assert.Equal(t, "postgres", dialectorFor(config.DBConfig{DSN: "postgres://localhost/carrental"}).Name())
}
