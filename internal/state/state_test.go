package state

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boofi-labs/keeper/internal/types"
)

var testVault = common.HexToAddress("0x00000000000000000000000000000000000000a1")

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func TestEnsureSchema(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS liquidation_attempts")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDropSchema(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("DROP TABLE IF EXISTS liquidation_attempts")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.DropSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordAttempt_Success(t *testing.T) {
	s, mock := newMockStore(t)
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	receipt := types.LiquidationReceipt{
		CycleID: "5f1b0c2e-8a43-4d7e-9a51-0b6f3c9f2d10",
		Vault:   testVault,
		Result: &types.TransactionResult{
			TxHash:      "0x1111111111111111111111111111111111111111111111111111111111111111",
			BlockNumber: 42,
			GasUsed:     210000,
			Status:      1,
			Success:     true,
		},
		Success:   true,
		Timestamp: ts,
	}

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO liquidation_attempts")).
		WithArgs(ts, receipt.CycleID, testVault.Hex(), true, false,
			receipt.Result.TxHash, int64(42), int64(210000), "").
		WillReturnRows(sqlmock.NewRows([]string{"attempt_id"}).AddRow(7))

	id, err := s.RecordAttempt(context.Background(), receipt)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordAttempt_FailureWithoutTx(t *testing.T) {
	s, mock := newMockStore(t)
	receipt := types.LiquidationReceipt{
		CycleID: "5f1b0c2e-8a43-4d7e-9a51-0b6f3c9f2d10",
		Vault:   testVault,
		Message: "insufficient funds",
	}

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO liquidation_attempts")).
		WithArgs(sqlmock.AnyArg(), receipt.CycleID, testVault.Hex(), false, false,
			nil, nil, nil, "insufficient funds").
		WillReturnRows(sqlmock.NewRows([]string{"attempt_id"}).AddRow(8))

	_, err := s.RecordAttempt(context.Background(), receipt)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordAttempt_MissingSchema(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO liquidation_attempts")).
		WillReturnError(&pq.Error{Code: undefinedTable, Message: `relation "liquidation_attempts" does not exist`})

	_, err := s.RecordAttempt(context.Background(), types.LiquidationReceipt{Vault: testVault})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EnsureSchema")

	var pqErr *pq.Error
	assert.True(t, errors.As(err, &pqErr))
}

func TestRecentAttempts(t *testing.T) {
	s, mock := newMockStore(t)
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{
		"attempt_id", "attempted_at", "cycle_id", "vault", "success", "dry_run",
		"tx_hash", "block_number", "gas_used", "message",
	}).
		AddRow(2, ts, "c2", testVault.Hex(), false, false, nil, nil, nil, "reverted").
		AddRow(1, ts.Add(-time.Minute), "c1", testVault.Hex(), true, false, "0xabc", 42, 21000, nil)

	mock.ExpectQuery(regexp.QuoteMeta("FROM liquidation_attempts")).
		WithArgs(sqlmock.AnyArg(), 20).
		WillReturnRows(rows)

	attempts, err := s.RecentAttempts(context.Background(), 0, []common.Address{testVault})
	require.NoError(t, err)
	require.Len(t, attempts, 2)

	assert.Equal(t, int64(2), attempts[0].ID)
	assert.False(t, attempts[0].Success)
	assert.Equal(t, "reverted", attempts[0].Message)
	assert.Empty(t, attempts[0].TxHash)

	assert.Equal(t, "0xabc", attempts[1].TxHash)
	assert.Equal(t, uint64(42), attempts[1].BlockNumber)
	assert.Equal(t, uint64(21000), attempts[1].GasUsed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAttemptStats(t *testing.T) {
	s, mock := newMockStore(t)
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("COUNT(*) FILTER (WHERE success)")).
		WillReturnRows(sqlmock.NewRows([]string{"count", "succeeded", "max"}).AddRow(5, 3, ts))

	stats, err := s.GetAttemptStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Total)
	assert.Equal(t, 3, stats.Succeeded)
	assert.Equal(t, 2, stats.Failed)
	require.NotNil(t, stats.LastAttempt)
	assert.True(t, ts.Equal(*stats.LastAttempt))
}

func TestCycleCounter(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT current_cycle FROM cycle_counter")).
		WillReturnRows(sqlmock.NewRows([]string{"current_cycle"}).AddRow(41))
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE cycle_counter")).
		WillReturnRows(sqlmock.NewRows([]string{"current_cycle"}).AddRow(42))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE cycle_counter")).
		WithArgs(0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	current, err := s.GetCurrentCycleNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, 41, current)

	next, err := s.IncrementCycleNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, 42, next)

	require.NoError(t, s.ResetCycleNumber(ctx, 0))
	assert.Error(t, s.ResetCycleNumber(ctx, -1))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResetCycleNumber_NoRow(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE cycle_counter")).
		WithArgs(3).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.Error(t, s.ResetCycleNumber(context.Background(), 3))
}

func TestStore_NotInitialized(t *testing.T) {
	var s *Store
	ctx := context.Background()

	assert.ErrorIs(t, s.Ping(ctx), ErrNotInitialized)
	assert.ErrorIs(t, s.EnsureSchema(ctx), ErrNotInitialized)
	_, err := s.RecordAttempt(ctx, types.LiquidationReceipt{})
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = s.IncrementCycleNumber(ctx)
	assert.ErrorIs(t, err, ErrNotInitialized)
	s.Close()
}
