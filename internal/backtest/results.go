package backtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"marlin/internal/engine"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	RunStatusPending = "pending"
	RunStatusRunning = "running"
	RunStatusDone    = "done"
	RunStatusFailed  = "failed"
)

// Run 是一次回测的元数据与汇总指标。
type Run struct {
	ID             string          `json:"id"`
	Symbol         string          `json:"symbol"`
	Timeframe      string          `json:"timeframe"`
	Status         string          `json:"status"`
	StartTS        int64           `json:"start_ts"`
	EndTS          int64           `json:"end_ts"`
	InitialBalance float64         `json:"initial_balance"`
	Stats          RunStats        `json:"stats"`
	Config         json.RawMessage `json:"config,omitempty"`
	Message        string          `json:"message,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	CompletedAt    time.Time       `json:"completed_at,omitempty"`
}

// RunStats 汇总已平仓交易。
type RunStats struct {
	FinalBalance   float64 `json:"final_balance"`
	Profit         float64 `json:"profit"`
	ReturnPct      float64 `json:"return_pct"`
	WinRate        float64 `json:"win_rate"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	Trades         int     `json:"trades"`
	Wins           int     `json:"wins"`
	Losses         int     `json:"losses"`
}

// TradeRecord 是一笔已平仓交易的持久化形式。
type TradeRecord struct {
	ID        int64           `json:"id"`
	RunID     string          `json:"run_id"`
	TradeType string          `json:"trade_type"`
	IndexIn   int64           `json:"index_in"`
	IndexOut  int64           `json:"index_out"`
	PriceIn   float64         `json:"price_in"`
	PriceOut  float64         `json:"price_out"`
	Quantity  float64         `json:"quantity"`
	Profit    float64         `json:"profit"`
	ProfitPer float64         `json:"profit_per"`
	RunUp     float64         `json:"run_up"`
	DrawDown  float64         `json:"draw_down"`
	DateIn    time.Time       `json:"date_in"`
	DateOut   time.Time       `json:"date_out"`
	Detail    json.RawMessage `json:"detail,omitempty"`
}

// EquitySnapshot 是权益曲线上的一个点。
type EquitySnapshot struct {
	ID       int64   `json:"id"`
	RunID    string  `json:"run_id"`
	TS       int64   `json:"ts"`
	Equity   float64 `json:"equity"`
	Balance  float64 `json:"balance"`
	Drawdown float64 `json:"drawdown"`
}

type runModel struct {
	ID              string         `gorm:"column:id;primaryKey"`
	Symbol          string         `gorm:"column:symbol;index"`
	Timeframe       string         `gorm:"column:timeframe"`
	Status          string         `gorm:"column:status"`
	StartTS         int64          `gorm:"column:start_ts"`
	EndTS           int64          `gorm:"column:end_ts"`
	InitialBalance  float64        `gorm:"column:initial_balance"`
	FinalBalance    float64        `gorm:"column:final_balance"`
	Profit          float64        `gorm:"column:profit"`
	ReturnPct       float64        `gorm:"column:return_pct"`
	WinRate         float64        `gorm:"column:win_rate"`
	MaxDrawdownPct  float64        `gorm:"column:max_drawdown"`
	Trades          int            `gorm:"column:trades"`
	Wins            int            `gorm:"column:wins"`
	Losses          int            `gorm:"column:losses"`
	ConfigJSON      datatypes.JSON `gorm:"column:config_json"`
	Message         string         `gorm:"column:message"`
	CreatedAtUnix   int64          `gorm:"column:created_at;index"`
	UpdatedAtUnix   int64          `gorm:"column:updated_at"`
	CompletedAtUnix int64          `gorm:"column:completed_at"`
}

func (runModel) TableName() string { return "backtest_runs" }

type tradeModel struct {
	ID          int64          `gorm:"column:id;primaryKey;autoIncrement"`
	RunID       string         `gorm:"column:run_id;index"`
	TradeType   string         `gorm:"column:trade_type"`
	IndexIn     int64          `gorm:"column:index_in"`
	IndexOut    int64          `gorm:"column:index_out"`
	PriceIn     float64        `gorm:"column:price_in"`
	PriceOut    float64        `gorm:"column:price_out"`
	Quantity    float64        `gorm:"column:quantity"`
	Profit      float64        `gorm:"column:profit"`
	ProfitPer   float64        `gorm:"column:profit_per"`
	RunUp       float64        `gorm:"column:run_up"`
	DrawDown    float64        `gorm:"column:draw_down"`
	DateInUnix  int64          `gorm:"column:date_in"`
	DateOutUnix int64          `gorm:"column:date_out"`
	Detail      datatypes.JSON `gorm:"column:detail_json"`
}

func (tradeModel) TableName() string { return "backtest_trades" }

type snapshotModel struct {
	ID       int64   `gorm:"column:id;primaryKey;autoIncrement"`
	RunID    string  `gorm:"column:run_id;index"`
	TS       int64   `gorm:"column:ts"`
	Equity   float64 `gorm:"column:equity"`
	Balance  float64 `gorm:"column:balance"`
	Drawdown float64 `gorm:"column:drawdown"`
}

func (snapshotModel) TableName() string { return "backtest_snapshots" }

// ResultStore 管理回测结果（runs/trades/snapshots）。
type ResultStore struct {
	db *gorm.DB
}

func NewResultStore(root string) (*ResultStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("result store root required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(root, "runs.db")
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(&sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&runModel{}, &tradeModel{}, &snapshotModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &ResultStore{db: db}, nil
}

func (s *ResultStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *ResultStore) InsertRun(ctx context.Context, run Run) error {
	now := time.Now().UnixMilli()
	model := runModel{
		ID:             run.ID,
		Symbol:         strings.ToUpper(run.Symbol),
		Timeframe:      run.Timeframe,
		Status:         run.Status,
		StartTS:        run.StartTS,
		EndTS:          run.EndTS,
		InitialBalance: run.InitialBalance,
		ConfigJSON:     datatypes.JSON(run.Config),
		Message:        run.Message,
		CreatedAtUnix:  now,
		UpdatedAtUnix:  now,
	}
	return s.db.WithContext(ctx).Create(&model).Error
}

func (s *ResultStore) UpdateRunSummary(ctx context.Context, id, status string, stats RunStats, message string) error {
	now := time.Now().UnixMilli()
	payload := map[string]interface{}{
		"status":        status,
		"final_balance": stats.FinalBalance,
		"profit":        stats.Profit,
		"return_pct":    stats.ReturnPct,
		"win_rate":      stats.WinRate,
		"max_drawdown":  stats.MaxDrawdownPct,
		"trades":        stats.Trades,
		"wins":          stats.Wins,
		"losses":        stats.Losses,
		"message":       message,
		"updated_at":    now,
	}
	if status == RunStatusDone || status == RunStatusFailed {
		payload["completed_at"] = now
	}
	res := s.db.WithContext(ctx).Model(&runModel{}).Where("id = ?", id).Updates(payload)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// InsertTrade 持久化一笔已平仓交易，Detail 可携带出入场订单快照。
func (s *ResultStore) InsertTrade(ctx context.Context, runID string, out engine.TradeOut, quantity float64) (int64, error) {
	detail, err := json.Marshal(out)
	if err != nil {
		return 0, err
	}
	model := tradeModel{
		RunID:       runID,
		TradeType:   string(out.TradeType),
		IndexIn:     out.IndexIn,
		IndexOut:    out.IndexOut,
		PriceIn:     out.PriceIn,
		PriceOut:    out.PriceOut,
		Quantity:    quantity,
		Profit:      out.Profit,
		ProfitPer:   out.ProfitPer,
		RunUp:       out.RunUp,
		DrawDown:    out.DrawDown,
		DateInUnix:  out.DateIn.UnixMilli(),
		DateOutUnix: out.DateOut.UnixMilli(),
		Detail:      datatypes.JSON(detail),
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return 0, err
	}
	return model.ID, nil
}

func (s *ResultStore) InsertSnapshot(ctx context.Context, snap EquitySnapshot) error {
	model := snapshotModel{
		RunID:    snap.RunID,
		TS:       snap.TS,
		Equity:   snap.Equity,
		Balance:  snap.Balance,
		Drawdown: snap.Drawdown,
	}
	return s.db.WithContext(ctx).Create(&model).Error
}

func (s *ResultStore) GetRun(ctx context.Context, id string) (Run, error) {
	var model runModel
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		return Run{}, err
	}
	return runModelToRun(model), nil
}

func (s *ResultStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var models []runModel
	if err := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]Run, 0, len(models))
	for _, m := range models {
		out = append(out, runModelToRun(m))
	}
	return out, nil
}

func (s *ResultStore) ListTrades(ctx context.Context, runID string, limit int) ([]TradeRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 500
	}
	var models []tradeModel
	if err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("id ASC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]TradeRecord, 0, len(models))
	for _, m := range models {
		out = append(out, TradeRecord{
			ID:        m.ID,
			RunID:     m.RunID,
			TradeType: m.TradeType,
			IndexIn:   m.IndexIn,
			IndexOut:  m.IndexOut,
			PriceIn:   m.PriceIn,
			PriceOut:  m.PriceOut,
			Quantity:  m.Quantity,
			Profit:    m.Profit,
			ProfitPer: m.ProfitPer,
			RunUp:     m.RunUp,
			DrawDown:  m.DrawDown,
			DateIn:    time.UnixMilli(m.DateInUnix),
			DateOut:   time.UnixMilli(m.DateOutUnix),
			Detail:    json.RawMessage(m.Detail),
		})
	}
	return out, nil
}

func (s *ResultStore) ListSnapshots(ctx context.Context, runID string, limit int) ([]EquitySnapshot, error) {
	if limit <= 0 || limit > 5000 {
		limit = 2000
	}
	var models []snapshotModel
	if err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("ts ASC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]EquitySnapshot, 0, len(models))
	for _, m := range models {
		out = append(out, EquitySnapshot{
			ID:       m.ID,
			RunID:    m.RunID,
			TS:       m.TS,
			Equity:   m.Equity,
			Balance:  m.Balance,
			Drawdown: m.Drawdown,
		})
	}
	return out, nil
}

// IsNotFound 判断查询未命中。
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

func runModelToRun(m runModel) Run {
	run := Run{
		ID:             m.ID,
		Symbol:         m.Symbol,
		Timeframe:      m.Timeframe,
		Status:         m.Status,
		StartTS:        m.StartTS,
		EndTS:          m.EndTS,
		InitialBalance: m.InitialBalance,
		Config:         json.RawMessage(m.ConfigJSON),
		Message:        m.Message,
		CreatedAt:      time.UnixMilli(m.CreatedAtUnix),
		UpdatedAt:      time.UnixMilli(m.UpdatedAtUnix),
		Stats: RunStats{
			FinalBalance:   m.FinalBalance,
			Profit:         m.Profit,
			ReturnPct:      m.ReturnPct,
			WinRate:        m.WinRate,
			MaxDrawdownPct: m.MaxDrawdownPct,
			Trades:         m.Trades,
			Wins:           m.Wins,
			Losses:         m.Losses,
		},
	}
	if m.CompletedAtUnix > 0 {
		run.CompletedAt = time.UnixMilli(m.CompletedAtUnix)
	}
	return run
}
