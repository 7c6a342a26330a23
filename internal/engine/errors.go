package engine

import (
	"errors"
	"fmt"
)

// RejectReason 标识一次软拒绝的原因，调用方据此记录日志并在下一步重试。
type RejectReason string

const (
	RejectTargetCrossed RejectReason = "target_price_crossed"
	RejectStopSide      RejectReason = "stop_loss_wrong_side"
	RejectExitSide      RejectReason = "exit_wrong_side"
	RejectCapacity      RejectReason = "capacity_exceeded"
)

// RejectError 表示整批订单被丢弃，账本保持不变。
// Fatal 标记对应原设计里直接 panic 的违规（目标价已被穿越），
// 调用方可以选择升级处理而不是静默跳过。
type RejectError struct {
	Reason RejectReason
	Kind   OrderKind
	Detail string
	Fatal  bool
}

func (e *RejectError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("order batch rejected (%s, %s): %s", e.Reason, e.Kind, e.Detail)
	}
	return fmt.Sprintf("order batch rejected (%s): %s", e.Reason, e.Detail)
}

// IsReject 判断错误是否为软拒绝。
func IsReject(err error) bool {
	var re *RejectError
	return errors.As(err, &re)
}

// IsFatalReject 判断错误是否属于致命违规类别。
func IsFatalReject(err error) bool {
	var re *RejectError
	return errors.As(err, &re) && re.Fatal
}
