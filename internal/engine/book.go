package engine

import (
	"fmt"
	"time"

	"marlin/internal/config"
	"marlin/internal/logger"
)

// Book 独占持有订单账本。插入顺序即时间顺序，只允许尾部追加与原地状态
// 更新，不做重排，同样的输入重放结果一致。
type Book struct {
	mode   ExecutionMode
	cfg    config.EngineConfig
	orders []Order
}

func NewBook(cfg config.EngineConfig) (*Book, error) {
	mode, err := ParseMode(cfg.ExecutionMode)
	if err != nil {
		return nil, fmt.Errorf("order book: %w", err)
	}
	return &Book{mode: mode, cfg: cfg}, nil
}

func (b *Book) Mode() ExecutionMode {
	return b.mode
}

func (b *Book) Len() int {
	return len(b.orders)
}

// Orders 返回底层账本（只读约定；审计与持久化用）。
func (b *Book) Orders() []Order {
	return b.orders
}

// Pending 返回最近 max_pending_orders 条记录里仍在挂单的订单，
// 保持时间顺序。
func (b *Book) Pending() []Order {
	max := b.cfg.MaxPendingOrders
	if len(b.orders) == 0 || max <= 0 {
		return nil
	}
	start := len(b.orders) - max
	if start < 0 {
		start = 0
	}
	out := make([]Order, 0, max)
	for _, o := range b.orders[start:] {
		if o.Status == StatusPending {
			out = append(out, o)
		}
	}
	return out
}

// CategoryCounts 统计最近窗口内挂单的类别数量（买入、卖出/止盈、止损）。
func (b *Book) CategoryCounts() (buys, sells, stops int) {
	max := b.cfg.MaxPendingOrders
	taken := 0
	for i := len(b.orders) - 1; i >= 0 && taken < max; i-- {
		taken++
		o := &b.orders[i]
		if o.Status != StatusPending {
			continue
		}
		switch {
		case o.Type.IsEntry():
			buys++
		case o.Type.IsExit():
			sells++
		case o.Type.IsStop():
			stops++
		}
	}
	return buys, sells, stops
}

// InsertBatch 容量门控的批量插入。逐单按类别上限过滤；过滤后若加上
// 已有挂单会超出 max_pending_orders，则整批拒绝，账本保持不变。
func (b *Book) InsertBatch(batch []Order) error {
	if len(batch) == 0 {
		return nil
	}
	buys, sells, stops := b.CategoryCounts()
	maxBuys, maxSells, maxStops := b.cfg.Categories()

	admitted := make([]Order, 0, len(batch))
	for _, o := range batch {
		if o.Status != StatusPending {
			continue
		}
		// 已放行的订单计入额度，同一批内同类订单不得突破上限。
		var ok bool
		switch {
		case o.Type.IsEntry():
			// 买单要求止损仍有额度，避免无保护持仓。
			ok = buys < maxBuys && stops < maxStops
			if ok {
				buys++
			}
		case o.Type.IsExit():
			ok = sells < maxSells
			if ok {
				sells++
			}
		case o.Type.IsStop():
			ok = stops < maxStops
			if ok {
				stops++
			}
		}
		if !ok {
			logger.Warnf("order %s dropped: category ceiling reached (buy=%d sell=%d stop=%d)",
				o.Type.Kind, buys, sells, stops)
			continue
		}
		admitted = append(admitted, o)
	}

	pending := len(b.Pending())
	if pending+len(admitted) > b.cfg.MaxPendingOrders {
		return &RejectError{
			Reason: RejectCapacity,
			Detail: fmt.Sprintf("pending=%d admitted=%d max=%d", pending, len(admitted), b.cfg.MaxPendingOrders),
		}
	}
	b.orders = append(b.orders, admitted...)
	return nil
}

// CancelExpired 处理到期挂单。回测模式物理删除（稳定过滤，不在迭代中
// 挪动下标）；实时模式标记取消并留存审计痕迹。返回受影响数量。
func (b *Book) CancelExpired(now time.Time) int {
	affected := 0
	if b.mode.IsBacktest() {
		kept := b.orders[:0]
		for _, o := range b.orders {
			if o.Status == StatusPending && !o.StillValid(now) {
				affected++
				continue
			}
			kept = append(kept, o)
		}
		b.orders = kept
		return affected
	}
	for i := range b.orders {
		o := &b.orders[i]
		if o.Status == StatusPending && !o.StillValid(now) {
			o.Cancel(now)
			affected++
		}
	}
	return affected
}

// CancelAllPending 在持仓平掉后强制取消所有剩余挂单。
func (b *Book) CancelAllPending(at time.Time) int {
	affected := 0
	if b.mode.IsBacktest() {
		kept := b.orders[:0]
		for _, o := range b.orders {
			if o.Status == StatusPending {
				affected++
				continue
			}
			kept = append(kept, o)
		}
		b.orders = kept
		return affected
	}
	for i := range b.orders {
		o := &b.orders[i]
		if o.Status == StatusPending {
			logger.Infof("canceling pending order %d (%s)", o.ID, o.Type.Kind)
			o.Cancel(at)
			affected++
		}
	}
	return affected
}

// ExtendAllPending 顺延所有挂单的有效期（保留存活止损单）。
func (b *Book) ExtendAllPending(d time.Duration) {
	for i := range b.orders {
		o := &b.orders[i]
		if o.Status != StatusPending || o.ValidUntil == nil {
			continue
		}
		o.ExtendValidity(d)
		logger.Infof("extending order %d validity to %s", o.ID, o.ValidUntil.Format(time.RFC3339))
	}
}

// Fulfill 找到第一个与触发订单同类型的挂单并标记成交。
// 找不到时安静返回 false，不允许让外层的成交流程失败。
func (b *Book) Fulfill(index int, at time.Time, trigger Order) bool {
	for i := range b.orders {
		o := &b.orders[i]
		if o.Status == StatusPending && o.Type == trigger.Type {
			o.Fulfill(index, at)
			return true
		}
	}
	return false
}

// seed 仅测试用途：以给定订单重置账本。
func (b *Book) seed(orders []Order) {
	b.orders = append([]Order(nil), orders...)
}
