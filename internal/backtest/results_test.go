package backtest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"marlin/internal/engine"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResults(t *testing.T) *ResultStore {
	t.Helper()
	rs, err := NewResultStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rs.Close() })
	return rs
}

func TestResultStoreRunLifecycle(t *testing.T) {
	rs := newTestResults(t)
	ctx := context.Background()

	run := Run{
		ID:             "run-1",
		Symbol:         "eurusd",
		Timeframe:      "1h",
		Status:         RunStatusRunning,
		StartTS:        1000,
		EndTS:          2000,
		InitialBalance: 10000,
		Config:         json.RawMessage(`{"order_size":1000}`),
	}
	require.NoError(t, rs.InsertRun(ctx, run))

	got, err := rs.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "EURUSD", got.Symbol)
	assert.Equal(t, RunStatusRunning, got.Status)
	assert.Equal(t, 10000.0, got.InitialBalance)
	assert.JSONEq(t, `{"order_size":1000}`, string(got.Config))
	assert.True(t, got.CompletedAt.IsZero())

	stats := RunStats{
		FinalBalance:   10500,
		Profit:         500,
		ReturnPct:      5,
		WinRate:        60,
		MaxDrawdownPct: 2.5,
		Trades:         5,
		Wins:           3,
		Losses:         2,
	}
	require.NoError(t, rs.UpdateRunSummary(ctx, "run-1", RunStatusDone, stats, ""))

	got, err = rs.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, RunStatusDone, got.Status)
	assert.Equal(t, stats, got.Stats)
	assert.False(t, got.CompletedAt.IsZero())
}

func TestResultStoreUpdateMissingRun(t *testing.T) {
	rs := newTestResults(t)
	err := rs.UpdateRunSummary(context.Background(), "nope", RunStatusDone, RunStats{}, "")
	assert.True(t, IsNotFound(err))
}

func TestResultStoreTradesRoundTrip(t *testing.T) {
	rs := newTestResults(t)
	ctx := context.Background()
	require.NoError(t, rs.InsertRun(ctx, Run{ID: "run-2", Symbol: "EURUSD", Timeframe: "1h", Status: RunStatusRunning}))

	dateIn := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	dateOut := dateIn.Add(3 * time.Hour)
	out := engine.TradeOut{
		TradeType: engine.OrderOutLong,
		IndexIn:   2,
		IndexOut:  5,
		PriceIn:   1.1052,
		PriceOut:  1.1150,
		DateIn:    dateIn,
		DateOut:   dateOut,
		Profit:    8.87,
		ProfitPer: 0.89,
		RunUp:     12.3,
		DrawDown:  -4.1,
	}
	id, err := rs.InsertTrade(ctx, "run-2", out, 904.8)
	require.NoError(t, err)
	assert.Positive(t, id)

	trades, err := rs.ListTrades(ctx, "run-2", 10)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	tr := trades[0]
	assert.Equal(t, string(engine.OrderOutLong), tr.TradeType)
	assert.Equal(t, 1.1052, tr.PriceIn)
	assert.Equal(t, 1.1150, tr.PriceOut)
	assert.Equal(t, 904.8, tr.Quantity)
	assert.Equal(t, dateIn.UnixMilli(), tr.DateIn.UnixMilli())
	assert.Equal(t, dateOut.UnixMilli(), tr.DateOut.UnixMilli())
	assert.NotEmpty(t, tr.Detail)

	other, err := rs.ListTrades(ctx, "run-other", 10)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestResultStoreSnapshots(t *testing.T) {
	rs := newTestResults(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, rs.InsertSnapshot(ctx, EquitySnapshot{
			RunID:    "run-3",
			TS:       int64(1000 + i),
			Equity:   10000 + float64(i)*10,
			Balance:  10000,
			Drawdown: float64(i),
		}))
	}

	snaps, err := rs.ListSnapshots(ctx, "run-3", 10)
	require.NoError(t, err)
	require.Len(t, snaps, 3)
	assert.Equal(t, int64(1000), snaps[0].TS)
	assert.Equal(t, 10020.0, snaps[2].Equity)
}

func TestResultStoreListRunsOrder(t *testing.T) {
	rs := newTestResults(t)
	ctx := context.Background()

	require.NoError(t, rs.InsertRun(ctx, Run{ID: "a", Symbol: "EURUSD", Timeframe: "1h", Status: RunStatusDone}))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, rs.InsertRun(ctx, Run{ID: "b", Symbol: "EURUSD", Timeframe: "1h", Status: RunStatusDone}))

	runs, err := rs.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "b", runs[0].ID)
}
